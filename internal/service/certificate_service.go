package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"certlearn_backend/internal/model"
	"certlearn_backend/internal/repository"
	"certlearn_backend/internal/util"
	"certlearn_backend/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CertificateService 认证考试通过后的证书签发。
// 唯一索引兜底幂等：同一 (user, checkpoint) 并发通过也只会有一张证书。
type CertificateService struct {
	Certs   *repository.CertificateRepository
	Users   *repository.UserRepository
	Storage *StorageService
}

func NewCertificateService(certs *repository.CertificateRepository, users *repository.UserRepository, storage *StorageService) *CertificateService {
	return &CertificateService{Certs: certs, Users: users, Storage: storage}
}

// certificateArtifact 存储层的证书制品内容
type certificateArtifact struct {
	SerialNumber string    `json:"serialNumber"`
	HolderName   string    `json:"holderName"`
	HolderEmail  string    `json:"holderEmail"`
	CheckpointID uint      `json:"checkpointId"`
	Score        float64   `json:"score"`
	IssuedAt     time.Time `json:"issuedAt"`
}

// IssueForQuiz 为通过认证考试的学员签发证书。
// 重复调用返回已有证书，不会重新生成制品。
func (s *CertificateService) IssueForQuiz(userID, checkpointID, bankID uint, score float64) (*model.Certificate, error) {
	cert := &model.Certificate{
		UserID:       userID,
		CheckpointID: checkpointID,
		BankID:       bankID,
		SerialNumber: model.GenerateUUID(),
		Score:        score,
		IssuedAt:     time.Now(),
	}

	created, err := s.Certs.CreateIfAbsent(cert)
	if err != nil {
		return nil, util.NewPersistenceError("failed to issue certificate", err)
	}
	if !created {
		return cert, nil
	}

	// 制品上传失败不回滚签发，证书记录本身是权威事实
	if url, err := s.uploadArtifact(cert); err != nil {
		logger.Log.Error("证书制品上传失败",
			zap.String("serial", cert.SerialNumber),
			zap.Error(err))
	} else {
		cert.ArtifactURL = url
		if err := s.Certs.DB.Model(cert).Update("artifact_url", url).Error; err != nil {
			logger.Log.Error("证书制品地址更新失败",
				zap.String("serial", cert.SerialNumber),
				zap.Error(err))
		}
	}

	logger.Log.Info("certificate issued",
		zap.Uint("userId", userID),
		zap.Uint("checkpointId", checkpointID),
		zap.String("serial", cert.SerialNumber))
	return cert, nil
}

func (s *CertificateService) uploadArtifact(cert *model.Certificate) (string, error) {
	if s.Storage == nil {
		return "", nil
	}

	user, err := s.Users.FindByID(cert.UserID)
	if err != nil {
		return "", err
	}

	artifact := certificateArtifact{
		SerialNumber: cert.SerialNumber,
		HolderName:   user.Name,
		HolderEmail:  user.Email,
		CheckpointID: cert.CheckpointID,
		Score:        cert.Score,
		IssuedAt:     cert.IssuedAt,
	}
	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return "", err
	}

	filename := fmt.Sprintf("certificates/%s.json", cert.SerialNumber)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.Storage.Upload(ctx, filename, bytes.NewReader(data), int64(len(data)), "application/json")
}

// GetBySerial 按序列号查询证书，供外部验证
func (s *CertificateService) GetBySerial(serial string) (*model.Certificate, error) {
	var cert model.Certificate
	err := s.Certs.DB.Where("serial_number = ?", serial).First(&cert).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &util.AppError{Kind: util.KindNotFound, Message: "certificate not found"}
		}
		return nil, err
	}
	return &cert, nil
}

func (s *CertificateService) ListByUser(userID uint) ([]model.Certificate, error) {
	return s.Certs.ListByUser(userID)
}
