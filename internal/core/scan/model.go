package scan

import "github.com/ixugo/goddd/pkg/orm"

// Detection 一次唯一观测到的条码，入库后不再修改
type Detection struct {
	ID      int64  `gorm:"primaryKey" json:"id"`
	Barcode string `gorm:"column:barcode;notNull;index" json:"barcode"`
	// ObservedAt 采集时刻（墙钟时间）
	ObservedAt orm.Time `gorm:"column:observed_at;index" json:"observed_at"`
	// Day 观测日期 YYYY-MM-DD，入库时冗余写入，跨方言的日期检索与聚合都走这一列
	Day string `gorm:"column:day;index" json:"day"`
	// RecordingPath 观测时活跃录像的文件路径，未在录制时为 NULL
	RecordingPath *string `gorm:"column:recording_path" json:"recording_path"`
}

func (*Detection) TableName() string {
	return "detections"
}

// DayCount 日报条目
type DayCount struct {
	Day   string `gorm:"column:day" json:"day"`
	Total int64  `gorm:"column:total" json:"total"`
}
