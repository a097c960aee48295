package model

import "time"

// Certificate 认证检查点通过后签发，(userId, checkpointId) 唯一保证不重复签发
type Certificate struct {
	BaseModel
	UserID       uint      `gorm:"uniqueIndex:idx_cert_user_checkpoint;not null" json:"userId"`
	CheckpointID uint      `gorm:"uniqueIndex:idx_cert_user_checkpoint;not null" json:"checkpointId"`
	BankID       uint      `gorm:"index" json:"bankId"`
	SerialNumber string    `gorm:"size:36;uniqueIndex;not null" json:"serialNumber"`
	Score        float64   `gorm:"not null" json:"score"`
	ArtifactURL  string    `gorm:"size:500" json:"artifactUrl"`
	IssuedAt     time.Time `json:"issuedAt"`
}

func (Certificate) TableName() string {
	return "certificates"
}
