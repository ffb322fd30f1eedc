package scandb

import (
	"context"
	"log/slog"

	"github.com/gowvp/scanbox/internal/core/scan"
	"github.com/ixugo/goddd/pkg/orm"
	"gorm.io/gorm"
)

var _ scan.Storer = DB{}

type DB struct {
	db *gorm.DB
}

func NewDB(db *gorm.DB) DB {
	return DB{db: db}
}

func (d DB) AutoMigrate(ok bool) DB {
	if ok {
		if err := d.db.AutoMigrate(new(scan.Detection)); err != nil {
			slog.Error("AutoMigrate", "err", err)
		}
	}
	return d
}

func (d DB) Detection() scan.DetectionStorer {
	return Detection{db: d.db}
}

var _ scan.DetectionStorer = Detection{}

type Detection struct {
	db *gorm.DB
}

func (d Detection) scoped(ctx context.Context, opts []orm.QueryOption) *gorm.DB {
	tx := d.db.WithContext(ctx).Model(new(scan.Detection))
	for _, opt := range opts {
		tx = opt(tx)
	}
	return tx
}

// Find implements scan.DetectionStorer.
func (d Detection) Find(ctx context.Context, out *[]*scan.Detection, pager orm.Pager, opts ...orm.QueryOption) (int64, error) {
	var total int64
	if err := d.scoped(ctx, opts).Count(&total).Error; err != nil {
		return 0, err
	}
	err := d.scoped(ctx, opts).Offset(pager.Offset()).Limit(pager.Limit()).Find(out).Error
	return total, err
}

// Get implements scan.DetectionStorer.
func (d Detection) Get(ctx context.Context, out *scan.Detection, opts ...orm.QueryOption) error {
	return d.scoped(ctx, opts).First(out).Error
}

// Add implements scan.DetectionStorer.
func (d Detection) Add(ctx context.Context, in *scan.Detection) error {
	return d.db.WithContext(ctx).Create(in).Error
}

// Count implements scan.DetectionStorer.
func (d Detection) Count(ctx context.Context, opts ...orm.QueryOption) (int64, error) {
	var total int64
	err := d.scoped(ctx, opts).Count(&total).Error
	return total, err
}

// Session implements scan.DetectionStorer.
func (d Detection) Session(ctx context.Context, changeFns ...func(*gorm.DB) error) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, fn := range changeFns {
			if err := fn(tx); err != nil {
				return err
			}
		}
		return nil
	})
}
