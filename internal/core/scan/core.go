package scan

import (
	"context"

	"github.com/ixugo/goddd/pkg/orm"
	"gorm.io/gorm"
)

// DetectionStorer Instantiation interface
type DetectionStorer interface {
	Find(context.Context, *[]*Detection, orm.Pager, ...orm.QueryOption) (int64, error)
	Get(context.Context, *Detection, ...orm.QueryOption) error
	Add(context.Context, *Detection) error
	Count(context.Context, ...orm.QueryOption) (int64, error)

	Session(context.Context, ...func(*gorm.DB) error) error
}

// Storer data persistence
type Storer interface {
	Detection() DetectionStorer
}

// Core business domain
type Core struct {
	store Storer
}

// NewCore create business domain
func NewCore(store Storer) Core {
	return Core{store: store}
}
