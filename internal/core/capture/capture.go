// Package capture 驱动采集主循环：取帧 → 写录像 → 解码 → 去重 → 入库 → 发布。
// 一次 tick 内五个阶段严格串行，跨 tick 状态（去重集合、会话、状态文本）
// 全部由同一把锁保护，任何阶段的失败只影响当前 tick，不终止进程
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gowvp/scanbox/internal/core/scan"
	"github.com/gowvp/scanbox/internal/core/session"
	"github.com/gowvp/scanbox/pkg/barcode"
	"github.com/gowvp/scanbox/pkg/ffcam"
	"github.com/ixugo/goddd/pkg/conc"
	"github.com/ixugo/goddd/pkg/orm"
)

// reopenAfterFailures 连续取帧失败达到该次数后重建帧来源
const reopenAfterFailures = 5

// FrameSource 帧来源，节奏由本循环把控，而非来源方。
// 连续取帧失败时由本循环调用 Reopen 重建采集流
type FrameSource interface {
	NextFrame(timeout time.Duration) (*ffcam.Frame, error)
	Reopen() error
	Close() error
}

// Decoder 单帧条码解码，无状态
type Decoder interface {
	Decode(img image.Image) []barcode.Symbol
}

// Snapshot 发布给展示层的单帧结果
type Snapshot struct {
	Frame   *ffcam.Frame     `json:"-"`
	Symbols []barcode.Symbol `json:"symbols"`
	Status  string           `json:"status"`
	At      time.Time        `json:"at"`
}

type Core struct {
	source   FrameSource
	decoder  Decoder
	recorder *session.Core
	scanCore scan.Core
	dedup    *scan.Deduplicator

	interval     time.Duration
	frameTimeout time.Duration
	maxBackoff   time.Duration

	m sync.Mutex // 一次完整 tick 的临界区，Start/Stop 会话也走这把锁
	// sessionDetections 当前会话内新增的检测数，停止时写回会话记录
	sessionDetections int64
	status            string
	backoff           time.Duration
	// captureFails 连续取帧失败次数，达到阈值后重建帧来源
	captureFails int

	subscribers *conc.Map[int64, chan Snapshot]
	subSeq      atomic.Int64
	ticks       atomic.Uint64
}

func NewCore(source FrameSource, decoder Decoder, recorder *session.Core, scanCore scan.Core, interval time.Duration) *Core {
	if interval <= 0 {
		interval = 33 * time.Millisecond
	}
	frameTimeout := max(3*interval, 100*time.Millisecond)
	return &Core{
		source:       source,
		decoder:      decoder,
		recorder:     recorder,
		scanCore:     scanCore,
		dedup:        scan.NewDeduplicator(),
		interval:     interval,
		frameTimeout: frameTimeout,
		maxBackoff:   2 * time.Second,
		status:       "No barcode detected yet.",
		subscribers:  conc.NewMap[int64, chan Snapshot](),
	}
}

// Run 以配置的间隔驱动 Tick，直到 ctx 结束。
// 采集失败后按有界退避延后下一次 tick，从不退出循环
func (c *Core) Run(ctx context.Context) {
	slog.Info("capture loop started", "interval", c.interval)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("capture loop stopped", "ticks", c.ticks.Load())
			return
		case <-ticker.C:
		}

		if err := c.Tick(ctx); err != nil {
			delay := c.nextBackoff()
			slog.Warn("tick failed", "err", err, "retry_in", delay)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}
		c.resetBackoff()
	}
}

// Tick 执行一轮采集。返回错误仅用于上报，调用方应继续调度下一轮
func (c *Core) Tick(ctx context.Context) error {
	c.m.Lock()
	defer c.m.Unlock()
	c.ticks.Add(1)

	frame, err := c.source.NextFrame(c.frameTimeout)
	if err != nil {
		c.captureFails++
		// ffmpeg 流中断后帧通道会永久关闭，只有重建来源才能恢复
		if c.captureFails >= reopenAfterFailures {
			if rerr := c.source.Reopen(); rerr != nil {
				slog.Error("reopen frame source", "err", rerr)
			} else {
				slog.Info("frame source reopened", "after_failures", c.captureFails)
				c.captureFails = 0
			}
		}
		c.status = fmt.Sprintf("Camera error: %v", err)
		c.publish(Snapshot{Status: c.status, At: time.Now()})
		return fmt.Errorf("capture: %w", err)
	}
	c.captureFails = 0

	// 录像写入失败不影响解码与入库
	if err := c.recorder.Write(frame.Data); err != nil {
		c.status = fmt.Sprintf("Recorder error: %v", err)
		slog.Warn("recorder write", "err", err)
	}

	symbols := c.decoder.Decode(frame.Gray())
	for _, sym := range symbols {
		if !c.dedup.Observe(sym.Payload, frame.Timestamp) {
			continue
		}
		in := scan.AddDetectionInput{
			Barcode:       sym.Payload,
			ObservedAt:    orm.Time{Time: frame.Timestamp},
			RecordingPath: c.recorder.CurrentPath(),
		}
		if _, err := c.scanCore.AddDetection(ctx, &in); err != nil {
			// 入库失败撤销去重标记，后续帧重试；本轮继续
			c.dedup.Forget(sym.Payload)
			c.status = fmt.Sprintf("Persist error: %v", err)
			slog.Error("persist detection", "barcode", sym.Payload, "err", err)
			continue
		}
		c.sessionDetections++
		c.status = fmt.Sprintf("Detected barcode: %s at %s",
			sym.Payload, frame.Timestamp.Format(time.DateTime))
		slog.Info("barcode detected", "barcode", sym.Payload, "format", sym.Format)
	}

	c.publish(Snapshot{Frame: frame, Symbols: symbols, Status: c.status, At: frame.Timestamp})
	return nil
}

// StartSession 开始录制会话并重置去重集合，与 tick 串行
func (c *Core) StartSession(ctx context.Context) (*session.Session, error) {
	c.m.Lock()
	defer c.m.Unlock()

	out, err := c.recorder.Start(ctx, time.Now())
	if err != nil {
		return nil, err
	}
	c.dedup.Reset()
	c.sessionDetections = 0
	c.status = fmt.Sprintf("Recording started: %s", out.RecordingPath)
	return out, nil
}

// StopSession 停止录制会话，回填会话检测数并重置去重集合。
// 只要会话发生了结束迁移，即使封口或入库报错也重置去重状态，
// 否则上一会话的条码会吞掉下一次扫描
func (c *Core) StopSession(ctx context.Context) (*session.Session, error) {
	c.m.Lock()
	defer c.m.Unlock()

	out, err := c.recorder.Stop(ctx, time.Now(), c.sessionDetections)
	if errors.Is(err, session.ErrNothingToStop) {
		return nil, err
	}
	c.dedup.Reset()
	c.sessionDetections = 0
	if err != nil {
		c.status = fmt.Sprintf("Recording stopped with error: %v", err)
		return out, err
	}
	c.status = "Recording stopped."
	return out, nil
}

// Close 退出路径：等待进行中的 tick 结束，停掉活跃会话并释放摄像头
func (c *Core) Close(ctx context.Context) {
	c.m.Lock()
	defer c.m.Unlock()

	c.recorder.CloseOnShutdown(ctx, c.sessionDetections)
	if err := c.source.Close(); err != nil {
		slog.Error("close frame source", "err", err)
	}
}

// Status 最近一次 tick 的状态文本
func (c *Core) Status() string {
	c.m.Lock()
	defer c.m.Unlock()
	return c.status
}

// Ticks 已执行的 tick 总数
func (c *Core) Ticks() uint64 {
	return c.ticks.Load()
}

// Subscribe 注册一个快照订阅者，返回的 id 用于退订。
// 订阅通道带缓冲，消费不及时丢帧而不是阻塞采集
func (c *Core) Subscribe() (int64, <-chan Snapshot) {
	id := c.subSeq.Add(1)
	ch := make(chan Snapshot, 1)
	c.subscribers.Store(id, ch)
	return id, ch
}

// Unsubscribe 退订并关闭通道，与发布方互斥，避免向已关闭通道发送
func (c *Core) Unsubscribe(id int64) {
	c.m.Lock()
	defer c.m.Unlock()
	if ch, ok := c.subscribers.Load(id); ok {
		c.subscribers.Delete(id)
		close(ch)
	}
}

func (c *Core) publish(snap Snapshot) {
	c.subscribers.Range(func(_ int64, ch chan Snapshot) bool {
		select {
		case ch <- snap:
		default:
			// 丢掉旧帧塞新帧，保持订阅端看到的是最新画面
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
		return true
	})
}

func (c *Core) nextBackoff() time.Duration {
	c.m.Lock()
	defer c.m.Unlock()
	if c.backoff <= 0 {
		c.backoff = c.interval
	} else {
		c.backoff = min(c.backoff*2, c.maxBackoff)
	}
	return c.backoff
}

func (c *Core) resetBackoff() {
	c.m.Lock()
	c.backoff = 0
	c.m.Unlock()
}
