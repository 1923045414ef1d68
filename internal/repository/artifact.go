package repository

import (
	"context"
	"time"

	"github.com/wfunc/teleprompt/internal/models"
	"gorm.io/gorm"
)

// ArtifactRepository 生成图片记录仓储接口
type ArtifactRepository interface {
	Create(ctx context.Context, record *models.ArtifactRecord) error
	FindByArtifactID(ctx context.Context, artifactID string) (*models.ArtifactRecord, error)
	FindByRoomCode(ctx context.Context, roomCode string) ([]*models.ArtifactRecord, error)
	FindExpired(ctx context.Context, now time.Time, limit int) ([]*models.ArtifactRecord, error)
	Delete(ctx context.Context, id uint) error
	ExtendExpiry(ctx context.Context, sessionID string, expiresAt time.Time) error
}

// artifactRepo 生成图片记录仓储实现
type artifactRepo struct {
	db *gorm.DB
}

// NewArtifactRepository 创建生成图片记录仓储
func NewArtifactRepository(db *gorm.DB) ArtifactRepository {
	return &artifactRepo{db: db}
}

// Create 创建记录
func (r *artifactRepo) Create(ctx context.Context, record *models.ArtifactRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

// FindByArtifactID 根据图片ID查找
func (r *artifactRepo) FindByArtifactID(ctx context.Context, artifactID string) (*models.ArtifactRecord, error) {
	var record models.ArtifactRecord
	err := r.db.WithContext(ctx).
		Where("artifact_id = ?", artifactID).
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// FindByRoomCode 根据房间码查找
func (r *artifactRepo) FindByRoomCode(ctx context.Context, roomCode string) ([]*models.ArtifactRecord, error) {
	var records []*models.ArtifactRecord
	err := r.db.WithContext(ctx).
		Where("room_code = ?", roomCode).
		Order("round ASC").
		Find(&records).Error
	return records, err
}

// FindExpired 查找已过保留期的记录
func (r *artifactRepo) FindExpired(ctx context.Context, now time.Time, limit int) ([]*models.ArtifactRecord, error) {
	var records []*models.ArtifactRecord
	query := r.db.WithContext(ctx).
		Where("expires_at <= ?", now).
		Order("expires_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&records).Error
	return records, err
}

// Delete 删除记录
func (r *artifactRepo) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.ArtifactRecord{}, id).Error
}

// ExtendExpiry 按会话延长保留期
func (r *artifactRepo) ExtendExpiry(ctx context.Context, sessionID string, expiresAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.ArtifactRecord{}).
		Where("session_id = ?", sessionID).
		Update("expires_at", expiresAt).Error
}
