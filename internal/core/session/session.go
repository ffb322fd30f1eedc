package session

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/ixugo/goddd/pkg/orm"
	"github.com/ixugo/goddd/pkg/reason"
)

// IDLayout 会话 ID 由开始时间推导
const IDLayout = "20060102150405"

// PathFor 计算某一时刻开始的会话的录像路径：<root>/<YYYYMMDD>/<HHMMSS>.mp4，
// 同一天的会话落在同一目录，便于按日归档与回放
func (c *Core) PathFor(now time.Time) string {
	return filepath.Join(c.StorageDir(), now.Format("20060102"), now.Format("150405")+".mp4")
}

// Start 开始一次录制会话。已有会话活跃时返回 ErrRecorderBusy，
// 原会话保持不变
func (c *Core) Start(ctx context.Context, now time.Time) (*Session, error) {
	c.m.Lock()
	defer c.m.Unlock()

	if c.active != nil {
		return nil, ErrRecorderBusy
	}
	if c.open == nil {
		return nil, fmt.Errorf("session: sink opener not configured")
	}

	path := c.PathFor(now)
	sink, err := c.open(path)
	if err != nil {
		return nil, fmt.Errorf("session: open sink %s: %w", path, err)
	}

	out := Session{
		ID:            now.Format(IDLayout),
		RecordingPath: path,
		StartedAt:     orm.Time{Time: now},
	}
	if err := c.store.Session().Add(ctx, &out); err != nil {
		// 入库失败不保留无主的视频文件句柄
		_ = sink.Close()
		return nil, reason.ErrDB.Withf(`Add err[%s]`, err.Error())
	}

	c.active = &active{
		id:        out.ID,
		path:      path,
		startedAt: now,
		sink:      sink,
	}
	slog.Info("recording started", "session", out.ID, "path", path)
	return &out, nil
}

// Write 活跃会话存在时追加一帧，空闲时为无操作。
// 写入失败只上报，不终止会话
func (c *Core) Write(data []byte) error {
	c.m.Lock()
	defer c.m.Unlock()

	if c.active == nil {
		return nil
	}
	if err := c.active.sink.Write(data); err != nil {
		return fmt.Errorf("session %s: %w", c.active.id, err)
	}
	return nil
}

// Stop 停止当前会话并确保文件封装完成。没有活跃会话时返回 ErrNothingToStop
func (c *Core) Stop(ctx context.Context, now time.Time, detections int64) (*Session, error) {
	c.m.Lock()
	defer c.m.Unlock()
	return c.stopLocked(ctx, now, detections)
}

func (c *Core) stopLocked(ctx context.Context, now time.Time, detections int64) (*Session, error) {
	if c.active == nil {
		return nil, ErrNothingToStop
	}

	act := c.active
	c.active = nil

	// 先关闭 sink，保证即使后续入库失败，文件也已经封装完成
	closeErr := act.sink.Close()
	if closeErr != nil {
		slog.Error("finalize recording", "session", act.id, "err", closeErr)
	}

	// 无论封口与入库结果如何，会话都已经结束，调用方据此清理会话级状态
	var out Session
	if err := c.store.Session().Edit(ctx, &out, func(s *Session) {
		s.EndedAt = &orm.Time{Time: now}
		s.Detections = detections
	}, orm.Where("id=?", act.id)); err != nil {
		out = Session{ID: act.id, RecordingPath: act.path, StartedAt: orm.Time{Time: act.startedAt}}
		return &out, reason.ErrDB.Withf(`Edit id[%s] err[%s]`, act.id, err.Error())
	}

	slog.Info("recording stopped", "session", act.id, "path", act.path, "detections", detections)
	return &out, closeErr
}

// CloseOnShutdown 进程退出路径专用：有活跃会话则停止，空闲时无操作。
// detections 为调用方统计的会话内检测数，随会话一并落库。
// 必须能在 main 的退出 defer 中到达，保证异常退出也不会留下坏文件
func (c *Core) CloseOnShutdown(ctx context.Context, detections int64) {
	c.m.Lock()
	defer c.m.Unlock()

	if c.active == nil {
		return
	}
	slog.Warn("closing active recording on shutdown", "session", c.active.id)
	if _, err := c.stopLocked(ctx, time.Now(), detections); err != nil {
		slog.Error("close recording on shutdown", "err", err)
	}
}

// CurrentPath 当前活跃会话的录像路径，空闲时返回 nil
func (c *Core) CurrentPath() *string {
	c.m.Lock()
	defer c.m.Unlock()
	if c.active == nil {
		return nil
	}
	path := c.active.path
	return &path
}

// IsRecording 是否有活跃会话
func (c *Core) IsRecording() bool {
	c.m.Lock()
	defer c.m.Unlock()
	return c.active != nil
}

// GetCurrent 当前活跃会话的持久化记录，空闲时返回 ErrNothingToStop
func (c *Core) GetCurrent(ctx context.Context) (*Session, error) {
	c.m.Lock()
	id := ""
	if c.active != nil {
		id = c.active.id
	}
	c.m.Unlock()

	if id == "" {
		return nil, ErrNothingToStop
	}
	var out Session
	if err := c.store.Session().Get(ctx, &out, orm.Where("id=?", id)); err != nil {
		return nil, reason.ErrDB.Withf(`Get id[%s] err[%s]`, id, err.Error())
	}
	return &out, nil
}

// FindSessions 分页查询会话列表
func (c *Core) FindSessions(ctx context.Context, in *FindSessionsInput) ([]*Session, int64, error) {
	query := orm.NewQuery(2).OrderBy("started_at DESC")
	if in.Day != "" {
		if day, err := time.ParseInLocation("2006-01-02", in.Day, time.Local); err == nil {
			query.Where("started_at >= ? AND started_at < ?",
				orm.Time{Time: day}, orm.Time{Time: day.AddDate(0, 0, 1)})
		}
	}

	items := make([]*Session, 0, in.Limit())
	total, err := c.store.Session().Find(ctx, &items, in, query.Encode()...)
	if err != nil {
		return nil, 0, reason.ErrDB.Withf(`Find in[%+v] err[%s]`, in, err.Error())
	}
	return items, total, nil
}

// GetSession Query a single object
func (c *Core) GetSession(ctx context.Context, id string) (*Session, error) {
	var out Session
	if err := c.store.Session().Get(ctx, &out, orm.Where("id=?", id)); err != nil {
		if orm.IsErrRecordNotFound(err) {
			return nil, reason.ErrNotFound.Withf(`Get id[%s] err[%s]`, id, err.Error())
		}
		return nil, reason.ErrDB.Withf(`Get id[%s] err[%s]`, id, err.Error())
	}
	return &out, nil
}
