package repository

import (
	"certlearn_backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CertificateRepository struct {
	DB *gorm.DB
}

func NewCertificateRepository(db *gorm.DB) *CertificateRepository {
	return &CertificateRepository{DB: db}
}

// CreateIfAbsent 借助唯一索引保证同一 (user, checkpoint) 只签发一次，
// 已存在时返回已有记录且 created 为 false
func (r *CertificateRepository) CreateIfAbsent(cert *model.Certificate) (created bool, err error) {
	res := r.DB.Clauses(clause.OnConflict{DoNothing: true}).Create(cert)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		return true, nil
	}
	existing, err := r.FindByUserAndCheckpoint(cert.UserID, cert.CheckpointID)
	if err != nil {
		return false, err
	}
	*cert = *existing
	return false, nil
}

func (r *CertificateRepository) FindByUserAndCheckpoint(userID, checkpointID uint) (*model.Certificate, error) {
	var cert model.Certificate
	err := r.DB.Where("user_id = ? AND checkpoint_id = ?", userID, checkpointID).First(&cert).Error
	return &cert, err
}

func (r *CertificateRepository) ListByUser(userID uint) ([]model.Certificate, error) {
	var certs []model.Certificate
	err := r.DB.Where("user_id = ?", userID).Order("issued_at DESC").Find(&certs).Error
	return certs, err
}
