package scan

import (
	"context"
	"encoding/csv"
	"io"
	"log/slog"
	"strconv"

	"github.com/ixugo/goddd/pkg/orm"
	"github.com/ixugo/goddd/pkg/reason"
	"github.com/jinzhu/copier"
	"gorm.io/gorm"
)

// DayLayout 日期列的存储格式
const DayLayout = "2006-01-02"

// AddDetection Insert into database
// 去重由采集侧的会话保证，这里只负责持久化与插入顺序
func (c Core) AddDetection(ctx context.Context, in *AddDetectionInput) (*Detection, error) {
	if in.Barcode == "" {
		return nil, reason.ErrBadRequest.SetMsg("barcode is required")
	}

	var out Detection
	if err := copier.Copy(&out, in); err != nil {
		slog.ErrorContext(ctx, "Copy", "err", err)
	}
	out.Day = in.ObservedAt.Format(DayLayout)

	if err := c.store.Detection().Add(ctx, &out); err != nil {
		return nil, reason.ErrDB.Withf(`Add err[%s]`, err.Error())
	}
	return &out, nil
}

// FindDetections 分页查询检测记录，fragment 为空时返回全部。
// fragment 作为子串同时匹配条码与日期列，按 observed_at 降序排列（与检索页一致）
func (c Core) FindDetections(ctx context.Context, in *FindDetectionsInput) ([]*Detection, int64, error) {
	query := orm.NewQuery(2).OrderBy("observed_at DESC")

	if in.Fragment != "" {
		like := "%" + in.Fragment + "%"
		query.Where("barcode LIKE ? OR day LIKE ?", like, like)
	}

	items := make([]*Detection, 0, in.Limit())
	total, err := c.store.Detection().Find(ctx, &items, in, query.Encode()...)
	if err != nil {
		return nil, 0, reason.ErrDB.Withf(`Find in[%+v] err[%s]`, in, err.Error())
	}
	return items, total, nil
}

// DailyReport 按天统计检测条数，只包含有记录的日期，按日期降序
func (c Core) DailyReport(ctx context.Context) ([]DayCount, error) {
	var items []DayCount
	err := c.store.Detection().Session(ctx, func(db *gorm.DB) error {
		return db.Model(&Detection{}).
			Select("day, COUNT(*) as total").
			Group("day").
			Order("day DESC").
			Find(&items).Error
	})
	if err != nil {
		return nil, reason.ErrDB.Withf(`DailyReport err[%s]`, err.Error())
	}
	return items, nil
}

// ExportDailyReport 将日报写出为 CSV
func (c Core) ExportDailyReport(ctx context.Context, w io.Writer) error {
	items, err := c.DailyReport(ctx)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Date", "Total Detections"}); err != nil {
		return err
	}
	for _, item := range items {
		if err := cw.Write([]string{item.Day, strconv.FormatInt(item.Total, 10)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
