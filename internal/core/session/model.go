package session

import "github.com/ixugo/goddd/pkg/orm"

// Session 一次 start 到 stop 的录制区间
type Session struct {
	// ID 由开始时间推导，如 20240105100000
	ID string `gorm:"primaryKey" json:"id"`
	// RecordingPath 本次会话的视频文件路径
	RecordingPath string   `gorm:"column:recording_path" json:"recording_path"`
	StartedAt     orm.Time `gorm:"column:started_at;index" json:"started_at"`
	// EndedAt 结束时间，录制中为 NULL
	EndedAt *orm.Time `gorm:"column:ended_at" json:"ended_at"`
	// Detections 会话内去重后的检测条数，停止时回填
	Detections int64 `gorm:"column:detections" json:"detections"`
}

func (*Session) TableName() string {
	return "sessions"
}
