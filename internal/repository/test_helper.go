package repository

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/teleprompt/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestDB 创建内存测试数据库
func TestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(&models.ArtifactRecord{})
	require.NoError(t, err)

	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
	})

	return db
}

// CreateTestArtifact 构造一条测试记录
func CreateTestArtifact(roomCode, sessionID, author string, round int, expiresAt time.Time) *models.ArtifactRecord {
	return &models.ArtifactRecord{
		ArtifactID: uuid.New().String(),
		RoomCode:   roomCode,
		SessionID:  sessionID,
		Author:     author,
		Round:      round,
		Kind:       "image",
		Path:       "/static/generated/" + uuid.New().String() + ".png",
		Source:     "generated",
		ExpiresAt:  expiresAt,
	}
}
