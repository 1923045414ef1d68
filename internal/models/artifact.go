package models

import (
	"time"

	"gorm.io/gorm"
)

// ArtifactRecord 生成图片落盘记录
// 每张写入磁盘的生成图片对应一行，到期清理任务据此删除过期文件。
type ArtifactRecord struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	ArtifactID string `gorm:"uniqueIndex;size:36" json:"artifact_id"` // UUID
	RoomCode   string `gorm:"index;size:16" json:"room_code"`
	SessionID  string `gorm:"index;size:36" json:"session_id"`
	Author     string `gorm:"size:64" json:"author"`
	Round      int    `json:"round"`
	Kind       string `gorm:"size:16" json:"kind"`  // image / drawing
	Path       string `gorm:"size:255" json:"path"` // 磁盘相对路径
	Source     string `gorm:"size:16" json:"source"` // generated / stock / upload
	ExpiresAt  time.Time `gorm:"index" json:"expires_at"`
}

// TableName 指定表名
func (ArtifactRecord) TableName() string {
	return "artifact_records"
}
