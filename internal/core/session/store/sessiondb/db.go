package sessiondb

import (
	"context"
	"log/slog"

	"github.com/gowvp/scanbox/internal/core/session"
	"github.com/ixugo/goddd/pkg/orm"
	"gorm.io/gorm"
)

var _ session.Storer = DB{}

type DB struct {
	db *gorm.DB
}

func NewDB(db *gorm.DB) DB {
	return DB{db: db}
}

func (d DB) AutoMigrate(ok bool) DB {
	if ok {
		if err := d.db.AutoMigrate(new(session.Session)); err != nil {
			slog.Error("AutoMigrate", "err", err)
		}
	}
	return d
}

func (d DB) Session() session.SessionStorer {
	return Session{db: d.db}
}

var _ session.SessionStorer = Session{}

type Session struct {
	db *gorm.DB
}

func (s Session) scoped(ctx context.Context, opts []orm.QueryOption) *gorm.DB {
	tx := s.db.WithContext(ctx).Model(new(session.Session))
	for _, opt := range opts {
		tx = opt(tx)
	}
	return tx
}

// Find implements session.SessionStorer.
func (s Session) Find(ctx context.Context, out *[]*session.Session, pager orm.Pager, opts ...orm.QueryOption) (int64, error) {
	var total int64
	if err := s.scoped(ctx, opts).Count(&total).Error; err != nil {
		return 0, err
	}
	err := s.scoped(ctx, opts).Offset(pager.Offset()).Limit(pager.Limit()).Find(out).Error
	return total, err
}

// Get implements session.SessionStorer.
func (s Session) Get(ctx context.Context, out *session.Session, opts ...orm.QueryOption) error {
	return s.scoped(ctx, opts).First(out).Error
}

// Add implements session.SessionStorer.
func (s Session) Add(ctx context.Context, in *session.Session) error {
	return s.db.WithContext(ctx).Create(in).Error
}

// Edit implements session.SessionStorer.
func (s Session) Edit(ctx context.Context, out *session.Session, changeFn func(*session.Session), opts ...orm.QueryOption) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		scoped := tx.Model(new(session.Session))
		for _, opt := range opts {
			scoped = opt(scoped)
		}
		if err := scoped.First(out).Error; err != nil {
			return err
		}
		changeFn(out)
		return tx.Save(out).Error
	})
}

// Del implements session.SessionStorer.
func (s Session) Del(ctx context.Context, out *session.Session, opts ...orm.QueryOption) error {
	return s.scoped(ctx, opts).Delete(out).Error
}

// Count implements session.SessionStorer.
func (s Session) Count(ctx context.Context, opts ...orm.QueryOption) (int64, error) {
	var total int64
	err := s.scoped(ctx, opts).Count(&total).Error
	return total, err
}

// Session implements session.SessionStorer.
func (s Session) Session(ctx context.Context, changeFns ...func(*gorm.DB) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, fn := range changeFns {
			if err := fn(tx); err != nil {
				return err
			}
		}
		return nil
	})
}
