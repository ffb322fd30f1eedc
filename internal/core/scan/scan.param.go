package scan

import (
	"github.com/ixugo/goddd/pkg/orm"
	"github.com/ixugo/goddd/pkg/web"
)

type FindDetectionsInput struct {
	web.PagerFilter
	// Fragment 同时匹配条码子串与日期子串（YYYY-MM-DD）
	Fragment string `form:"q"`
}

type AddDetectionInput struct {
	Barcode       string   `json:"barcode"`
	ObservedAt    orm.Time `json:"observed_at"`
	RecordingPath *string  `json:"recording_path"`
}
