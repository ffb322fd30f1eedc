package session

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ixugo/goddd/pkg/orm"
	"github.com/shirou/gopsutil/v4/disk"
)

// StartCleanupWorker 启动定时清理协程
// 程序启动时执行一次清理，随后每 60 分钟执行一次
func (c *Core) StartCleanupWorker() {
	if c.conf == nil || (c.conf.RetainDays <= 0 && c.conf.DiskUsageThreshold <= 0) {
		slog.Info("session cleanup disabled")
		return
	}

	slog.Info("session cleanup worker started",
		"retain_days", c.conf.RetainDays,
		"disk_threshold", c.conf.DiskUsageThreshold,
		"storage_dir", c.StorageDir(),
	)

	c.runCleanup()

	ticker := time.NewTicker(60 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		c.runCleanup()
	}
}

func (c *Core) runCleanup() {
	c.cleanupExpiredSessions()
	c.cleanupByDiskUsage()
}

// cleanupExpiredSessions 清理超过保留天数的会话，先删文件再删记录
func (c *Core) cleanupExpiredSessions() {
	if c.conf.RetainDays <= 0 {
		return
	}

	ctx := context.Background()
	cutoff := time.Now().AddDate(0, 0, -c.conf.RetainDays)

	deleted, failed := c.deleteSessions(ctx, orm.Where("started_at < ?", orm.Time{Time: cutoff}))
	if deleted > 0 || failed > 0 {
		slog.Info("expired session cleanup completed",
			"retain_days", c.conf.RetainDays,
			"cutoff_time", cutoff.Format(time.DateTime),
			"sessions_deleted", deleted,
			"failed_files", failed,
		)
	}
}

// cleanupByDiskUsage 磁盘使用率超过阈值时，从最旧的会话开始删除
func (c *Core) cleanupByDiskUsage() {
	if c.conf.DiskUsageThreshold <= 0 || c.conf.DiskUsageThreshold >= 100 {
		return
	}
	if _, err := os.Stat(c.StorageDir()); os.IsNotExist(err) {
		return
	}

	for range 32 {
		usage, err := disk.Usage(c.StorageDir())
		if err != nil {
			slog.Warn("failed to get disk usage", "err", err)
			return
		}
		if usage.UsedPercent < c.conf.DiskUsageThreshold {
			return
		}

		deleted, _ := c.deleteOldestBatch(context.Background(), 10)
		if deleted == 0 {
			slog.Warn("disk usage above threshold but no sessions left to delete",
				"used_percent", usage.UsedPercent,
				"threshold", c.conf.DiskUsageThreshold,
			)
			return
		}
		slog.Info("disk usage cleanup pass",
			"used_percent", usage.UsedPercent,
			"sessions_deleted", deleted,
		)
	}
}

// cleanupPager 内部使用的分页器，避免传入 nil 导致空指针
type cleanupPager struct {
	limit int
}

func (p *cleanupPager) Offset() int { return 0 }
func (p *cleanupPager) Limit() int  { return p.limit }

// deleteOldestBatch 删除最旧的一批已结束会话
func (c *Core) deleteOldestBatch(ctx context.Context, limit int) (int, int) {
	query := orm.NewQuery(1).OrderBy("started_at ASC")
	query.Where("ended_at IS NOT NULL")

	var oldest []*Session
	pager := &cleanupPager{limit: limit}
	_, err := c.store.Session().Find(ctx, &oldest, pager, query.Encode()...)
	if err != nil {
		slog.Error("failed to query oldest sessions", "err", err)
		return 0, 0
	}
	if len(oldest) == 0 {
		return 0, 0
	}

	ids := make([]string, 0, len(oldest))
	for _, s := range oldest {
		ids = append(ids, s.ID)
	}
	return c.deleteSessions(ctx, orm.Where("id IN ?", ids))
}

// deleteSessions 删除匹配的会话记录及其视频文件，返回（删除数，文件失败数）
func (c *Core) deleteSessions(ctx context.Context, opts ...orm.QueryOption) (int, int) {
	var items []*Session
	pager := &cleanupPager{limit: 1000}
	if _, err := c.store.Session().Find(ctx, &items, pager, opts...); err != nil {
		slog.Error("failed to query sessions for cleanup", "err", err)
		return 0, 0
	}

	deleted, failed := 0, 0
	for _, s := range items {
		// 录制中的会话不清理
		if s.EndedAt == nil {
			continue
		}
		if s.RecordingPath != "" {
			if err := os.Remove(s.RecordingPath); err != nil && !os.IsNotExist(err) {
				slog.Warn("failed to remove recording file", "path", s.RecordingPath, "err", err)
				failed++
				continue
			}
		}
		var out Session
		if err := c.store.Session().Del(ctx, &out, orm.Where("id=?", s.ID)); err != nil {
			slog.Error("failed to delete session row", "id", s.ID, "err", err)
			continue
		}
		deleted++
	}

	cleanupEmptyDirs(c.StorageDir())
	return deleted, failed
}

// cleanupEmptyDirs 移除按天归档后留下的空目录
func cleanupEmptyDirs(root string) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(root, e.Name())
		sub, err := os.ReadDir(dir)
		if err == nil && len(sub) == 0 {
			_ = os.Remove(dir)
		}
	}
}
