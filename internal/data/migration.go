package data

import (
	"context"
	"log/slog"
	"time"

	"github.com/gowvp/scanbox/internal/core/scan"
	"github.com/ixugo/goddd/pkg/orm"
	"gorm.io/gorm"
)

// Capture 旧版扫码记录模型（用于迁移）
type Capture struct {
	ID         int64  `gorm:"primaryKey"`
	Barcode    string `gorm:"column:barcode"`
	DetectedAt string `gorm:"column:detected_at"`
	VideoPath  string `gorm:"column:video_path"`
}

func (*Capture) TableName() string {
	return "captures"
}

// legacyTimeLayout 旧表时间是 ISO 格式文本，小数秒（微秒）可有可无
const legacyTimeLayout = "2006-01-02T15:04:05.999999"

func parseLegacyTime(s string) (time.Time, error) {
	return time.ParseInLocation(legacyTimeLayout, s, time.Local)
}

// MigrateCaptureData 迁移旧版 captures 表数据到 detections 表
// 迁移完成后，旧表数据保留，建议手动确认后删除
func MigrateCaptureData(db *gorm.DB) error {
	ctx := context.Background()

	if !db.Migrator().HasTable("captures") {
		slog.Debug("没有需要迁移的旧表数据")
		return nil
	}

	var captures []Capture
	if err := db.WithContext(ctx).Find(&captures).Error; err != nil {
		slog.Error("查询 captures 失败", "err", err)
		return err
	}

	migratedCount := 0
	for _, c := range captures {
		observedAt, err := parseLegacyTime(c.DetectedAt)
		if err != nil {
			slog.Warn("旧记录时间格式无法解析，跳过", "id", c.ID, "detected_at", c.DetectedAt)
			continue
		}

		// 检查是否已迁移过相同的记录
		var existing scan.Detection
		if err := db.WithContext(ctx).
			Where("barcode = ? AND observed_at = ?", c.Barcode, observedAt).
			First(&existing).Error; err == nil {
			continue
		}

		detection := scan.Detection{
			Barcode:    c.Barcode,
			ObservedAt: orm.Time{Time: observedAt},
			Day:        observedAt.Format(scan.DayLayout),
		}
		if c.VideoPath != "" {
			path := c.VideoPath
			detection.RecordingPath = &path
		}

		if err := db.WithContext(ctx).Create(&detection).Error; err != nil {
			slog.Error("迁移扫码记录失败", "err", err, "barcode", c.Barcode)
			continue
		}
		migratedCount++
	}

	if migratedCount > 0 {
		slog.Info("旧表数据迁移完成", "count", migratedCount)
	}
	return nil
}
