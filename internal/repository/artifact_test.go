package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestArtifactRepository_Create(t *testing.T) {
	db := TestDB(t)
	repo := NewArtifactRepository(db)
	ctx := context.Background()

	record := CreateTestArtifact("ABCD", "session-1", "小明", 0, time.Now().Add(time.Hour))
	err := repo.Create(ctx, record)
	require.NoError(t, err)
	assert.NotZero(t, record.ID)

	found, err := repo.FindByArtifactID(ctx, record.ArtifactID)
	require.NoError(t, err)
	assert.Equal(t, record.RoomCode, found.RoomCode)
	assert.Equal(t, record.Path, found.Path)
	assert.Equal(t, "generated", found.Source)
}

func TestArtifactRepository_FindByArtifactID_NotFound(t *testing.T) {
	db := TestDB(t)
	repo := NewArtifactRepository(db)

	_, err := repo.FindByArtifactID(context.Background(), "不存在的ID")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestArtifactRepository_FindByRoomCode(t *testing.T) {
	db := TestDB(t)
	repo := NewArtifactRepository(db)
	ctx := context.Background()
	expires := time.Now().Add(time.Hour)

	// 乱序写入，查询应按轮次排序
	require.NoError(t, repo.Create(ctx, CreateTestArtifact("ABCD", "s1", "小红", 2, expires)))
	require.NoError(t, repo.Create(ctx, CreateTestArtifact("ABCD", "s1", "小明", 0, expires)))
	require.NoError(t, repo.Create(ctx, CreateTestArtifact("ABCD", "s1", "小刚", 1, expires)))
	require.NoError(t, repo.Create(ctx, CreateTestArtifact("WXYZ", "s2", "路人", 0, expires)))

	records, err := repo.FindByRoomCode(ctx, "ABCD")
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, 0, records[0].Round)
	assert.Equal(t, 1, records[1].Round)
	assert.Equal(t, 2, records[2].Round)
}

func TestArtifactRepository_FindExpired(t *testing.T) {
	db := TestDB(t)
	repo := NewArtifactRepository(db)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, repo.Create(ctx, CreateTestArtifact("ABCD", "s1", "小明", 0, now.Add(-time.Hour))))
	require.NoError(t, repo.Create(ctx, CreateTestArtifact("ABCD", "s1", "小红", 1, now.Add(-time.Minute))))
	require.NoError(t, repo.Create(ctx, CreateTestArtifact("ABCD", "s1", "小刚", 2, now.Add(time.Hour))))

	expired, err := repo.FindExpired(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, expired, 2)
	// 最早到期的排在前面
	assert.Equal(t, 0, expired[0].Round)

	// limit生效
	expired, err = repo.FindExpired(ctx, now, 1)
	require.NoError(t, err)
	assert.Len(t, expired, 1)
}

func TestArtifactRepository_Delete(t *testing.T) {
	db := TestDB(t)
	repo := NewArtifactRepository(db)
	ctx := context.Background()

	record := CreateTestArtifact("ABCD", "s1", "小明", 0, time.Now().Add(time.Hour))
	require.NoError(t, repo.Create(ctx, record))

	require.NoError(t, repo.Delete(ctx, record.ID))

	_, err := repo.FindByArtifactID(ctx, record.ArtifactID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestArtifactRepository_ExtendExpiry(t *testing.T) {
	db := TestDB(t)
	repo := NewArtifactRepository(db)
	ctx := context.Background()
	now := time.Now()

	// 同一会话两条，另一会话一条
	a := CreateTestArtifact("ABCD", "s1", "小明", 0, now.Add(time.Minute))
	b := CreateTestArtifact("ABCD", "s1", "小红", 1, now.Add(time.Minute))
	c := CreateTestArtifact("WXYZ", "s2", "路人", 0, now.Add(time.Minute))
	require.NoError(t, repo.Create(ctx, a))
	require.NoError(t, repo.Create(ctx, b))
	require.NoError(t, repo.Create(ctx, c))

	newExpiry := now.Add(24 * time.Hour)
	require.NoError(t, repo.ExtendExpiry(ctx, "s1", newExpiry))

	// s1的两条被延长，不再出现在过期查询里
	expired, err := repo.FindExpired(ctx, now.Add(time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "s2", expired[0].SessionID)
}
