package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gowvp/scanbox/internal/conf"
	"github.com/ixugo/goddd/pkg/orm"
	"gorm.io/gorm"
)

var (
	// ErrRecorderBusy 已有会话在录制中
	ErrRecorderBusy = errors.New("session: recording already in progress")
	// ErrNothingToStop 当前没有活跃会话
	ErrNothingToStop = errors.New("session: no active recording")
)

// SessionStorer Instantiation interface
type SessionStorer interface {
	Find(context.Context, *[]*Session, orm.Pager, ...orm.QueryOption) (int64, error)
	Get(context.Context, *Session, ...orm.QueryOption) error
	Add(context.Context, *Session) error
	Edit(context.Context, *Session, func(*Session), ...orm.QueryOption) error
	Del(context.Context, *Session, ...orm.QueryOption) error
	Count(context.Context, ...orm.QueryOption) (int64, error)

	Session(context.Context, ...func(*gorm.DB) error) error
}

// Storer data persistence
type Storer interface {
	Session() SessionStorer
}

// VideoSink 会话绑定的视频输出，Close 必须保证文件可播放
type VideoSink interface {
	Write(data []byte) error
	Close() error
	Path() string
}

// SinkOpener 打开指定路径的视频输出，由装配层绑定编码参数
type SinkOpener func(path string) (VideoSink, error)

// active 当前录制中的会话状态
type active struct {
	id        string
	path      string
	startedAt time.Time
	sink      VideoSink
}

// Core business domain
type Core struct {
	store Storer
	conf  *conf.Recording
	open  SinkOpener

	m      sync.Mutex
	active *active
}

type Option func(*Core)

// WithConfig 注入录像配置
func WithConfig(conf *conf.Recording) Option {
	return func(c *Core) {
		c.conf = conf
	}
}

// WithSinkOpener 注入视频输出的工厂
func WithSinkOpener(open SinkOpener) Option {
	return func(c *Core) {
		c.open = open
	}
}

// NewCore create business domain
func NewCore(store Storer, opts ...Option) *Core {
	c := Core{store: store}
	for _, opt := range opts {
		opt(&c)
	}
	return &c
}

// StorageDir 录像根目录
func (c *Core) StorageDir() string {
	if c.conf == nil {
		return "recordings"
	}
	if c.conf.StorageDir == "" {
		return "recordings"
	}
	return c.conf.StorageDir
}
