package capture

import (
	"context"
	"errors"
	"image"
	"testing"
	"time"

	"github.com/gowvp/scanbox/internal/conf"
	"github.com/gowvp/scanbox/internal/core/scan"
	"github.com/gowvp/scanbox/internal/core/session"
	"github.com/gowvp/scanbox/pkg/barcode"
	"github.com/gowvp/scanbox/pkg/ffcam"
	"github.com/ixugo/goddd/pkg/orm"
	"gorm.io/gorm"
)

// fakeSource 按脚本回放帧或错误
type fakeSource struct {
	seq     uint64
	errs    map[uint64]error // 第 n 次调用返回错误
	failAll bool             // 持续失败，直到 Reopen
	reopens int
	closed  bool
}

func newFrame(seq uint64, at time.Time) *ffcam.Frame {
	const w, h = 4, 4
	return &ffcam.Frame{Seq: seq, Timestamp: at, Width: w, Height: h, Data: make([]byte, w*h*3/2)}
}

func (f *fakeSource) NextFrame(time.Duration) (*ffcam.Frame, error) {
	f.seq++
	if f.failAll {
		return nil, ffcam.ErrCapture
	}
	if err, ok := f.errs[f.seq]; ok {
		return nil, err
	}
	return newFrame(f.seq, time.Now()), nil
}

func (f *fakeSource) Reopen() error {
	f.reopens++
	f.failAll = false
	return nil
}

func (f *fakeSource) Close() error { f.closed = true; return nil }

// fakeDecoder 每次 Decode 依次弹出一组预设结果
type fakeDecoder struct {
	script [][]barcode.Symbol
	calls  int
}

func (f *fakeDecoder) Decode(image.Image) []barcode.Symbol {
	f.calls++
	if len(f.script) == 0 {
		return nil
	}
	out := f.script[0]
	if len(f.script) > 1 {
		f.script = f.script[1:]
	}
	return out
}

func symbols(payloads ...string) []barcode.Symbol {
	out := make([]barcode.Symbol, 0, len(payloads))
	for _, p := range payloads {
		out = append(out, barcode.Symbol{Payload: p, Format: "CODE_128"})
	}
	return out
}

// memDetections 内存版检测存储
type memDetections struct {
	items  []*scan.Detection
	addErr error
}

func (m *memDetections) Detection() scan.DetectionStorer { return (*memDetectionStorer)(m) }

type memDetectionStorer memDetections

func (m *memDetectionStorer) Find(_ context.Context, out *[]*scan.Detection, _ orm.Pager, _ ...orm.QueryOption) (int64, error) {
	*out = append(*out, m.items...)
	return int64(len(m.items)), nil
}

func (m *memDetectionStorer) Get(context.Context, *scan.Detection, ...orm.QueryOption) error {
	return gorm.ErrRecordNotFound
}

func (m *memDetectionStorer) Add(_ context.Context, in *scan.Detection) error {
	if m.addErr != nil {
		return m.addErr
	}
	cp := *in
	m.items = append(m.items, &cp)
	return nil
}

func (m *memDetectionStorer) Count(context.Context, ...orm.QueryOption) (int64, error) {
	return int64(len(m.items)), nil
}

func (m *memDetectionStorer) Session(context.Context, ...func(*gorm.DB) error) error { return nil }

// memSessions 内存版会话存储，只跟踪最近一个会话
type memSessions struct {
	last *session.Session
}

func (m *memSessions) Session() session.SessionStorer { return (*memSessionStorer)(m) }

type memSessionStorer memSessions

func (m *memSessionStorer) Find(_ context.Context, out *[]*session.Session, _ orm.Pager, _ ...orm.QueryOption) (int64, error) {
	if m.last != nil {
		*out = append(*out, m.last)
		return 1, nil
	}
	return 0, nil
}

func (m *memSessionStorer) Get(_ context.Context, out *session.Session, _ ...orm.QueryOption) error {
	if m.last == nil {
		return gorm.ErrRecordNotFound
	}
	*out = *m.last
	return nil
}

func (m *memSessionStorer) Add(_ context.Context, in *session.Session) error {
	cp := *in
	m.last = &cp
	return nil
}

func (m *memSessionStorer) Edit(_ context.Context, out *session.Session, changeFn func(*session.Session), _ ...orm.QueryOption) error {
	if m.last == nil {
		return gorm.ErrRecordNotFound
	}
	changeFn(m.last)
	*out = *m.last
	return nil
}

func (m *memSessionStorer) Del(context.Context, *session.Session, ...orm.QueryOption) error {
	m.last = nil
	return nil
}

func (m *memSessionStorer) Count(context.Context, ...orm.QueryOption) (int64, error) { return 0, nil }

func (m *memSessionStorer) Session(context.Context, ...func(*gorm.DB) error) error { return nil }

type nullSink struct{ path string }

func (n *nullSink) Write([]byte) error { return nil }
func (n *nullSink) Close() error       { return nil }
func (n *nullSink) Path() string       { return n.path }

func newTestCore(source FrameSource, decoder Decoder, detections *memDetections) (*Core, *memSessions) {
	sessions := memSessions{}
	recorder := session.NewCore(&sessions,
		session.WithConfig(&conf.Recording{StorageDir: "recordings"}),
		session.WithSinkOpener(func(path string) (session.VideoSink, error) {
			return &nullSink{path: path}, nil
		}),
	)
	return NewCore(source, decoder, recorder, scan.NewCore(detections), 10*time.Millisecond), &sessions
}

func TestTickDeduplicatesWithinSession(t *testing.T) {
	ctx := context.Background()
	detections := memDetections{}

	// 同一条码出现 50 帧，随后出现第二个条码
	script := make([][]barcode.Symbol, 0, 51)
	for range 50 {
		script = append(script, symbols("ABC123"))
	}
	script = append(script, symbols("XYZ789"))

	c, _ := newTestCore(&fakeSource{}, &fakeDecoder{script: script}, &detections)

	if _, err := c.StartSession(ctx); err != nil {
		t.Fatal(err)
	}
	for range 51 {
		if err := c.Tick(ctx); err != nil {
			t.Fatal(err)
		}
	}

	if len(detections.items) != 2 {
		t.Fatalf("got %d detections, want 2", len(detections.items))
	}
	first, second := detections.items[0], detections.items[1]
	if first.Barcode != "ABC123" || second.Barcode != "XYZ789" {
		t.Fatalf("barcodes = %s, %s", first.Barcode, second.Barcode)
	}
	if first.RecordingPath == nil || *first.RecordingPath == "" {
		t.Fatal("detection during session should carry the recording path")
	}

	if _, err := c.StopSession(ctx); err != nil {
		t.Fatal(err)
	}
}

func TestDetectionWithoutSessionHasNoPath(t *testing.T) {
	ctx := context.Background()
	detections := memDetections{}
	c, _ := newTestCore(&fakeSource{}, &fakeDecoder{script: [][]barcode.Symbol{symbols("QR1")}}, &detections)

	if err := c.Tick(ctx); err != nil {
		t.Fatal(err)
	}
	if len(detections.items) != 1 {
		t.Fatalf("got %d detections, want 1", len(detections.items))
	}
	if detections.items[0].RecordingPath != nil {
		t.Fatalf("recording path = %v, want nil", *detections.items[0].RecordingPath)
	}
}

func TestSessionRestartResetsDedup(t *testing.T) {
	ctx := context.Background()
	detections := memDetections{}
	c, _ := newTestCore(&fakeSource{}, &fakeDecoder{script: [][]barcode.Symbol{symbols("ABC123")}}, &detections)

	if _, err := c.StartSession(ctx); err != nil {
		t.Fatal(err)
	}
	_ = c.Tick(ctx)
	if _, err := c.StopSession(ctx); err != nil {
		t.Fatal(err)
	}

	// 新会话里同一条码应再次入库
	if _, err := c.StartSession(ctx); err != nil {
		t.Fatal(err)
	}
	_ = c.Tick(ctx)

	if len(detections.items) != 2 {
		t.Fatalf("got %d detections, want 2 across two sessions", len(detections.items))
	}
}

// failingSink 封口时报错，模拟磁盘写满等收尾故障
type failingSink struct{ path string }

func (f *failingSink) Write([]byte) error { return nil }
func (f *failingSink) Close() error       { return errors.New("flush: no space left") }
func (f *failingSink) Path() string       { return f.path }

func TestStopFailureStillResetsDedup(t *testing.T) {
	ctx := context.Background()
	detections := memDetections{}
	sessions := memSessions{}
	recorder := session.NewCore(&sessions,
		session.WithConfig(&conf.Recording{StorageDir: "recordings"}),
		session.WithSinkOpener(func(path string) (session.VideoSink, error) {
			return &failingSink{path: path}, nil
		}),
	)
	c := NewCore(&fakeSource{}, &fakeDecoder{script: [][]barcode.Symbol{symbols("ABC123")}},
		recorder, scan.NewCore(&detections), 10*time.Millisecond)

	if _, err := c.StartSession(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.Tick(ctx); err != nil {
		t.Fatal(err)
	}
	out, err := c.StopSession(ctx)
	if err == nil {
		t.Fatal("expected stop error from failing sink")
	}
	if out == nil {
		t.Fatal("session snapshot should accompany the stop error")
	}

	// 会话虽以错误收尾，但确实已结束：同一条码在新会话中要重新入库
	if _, err := c.StartSession(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.Tick(ctx); err != nil {
		t.Fatal(err)
	}
	if len(detections.items) != 2 {
		t.Fatalf("got %d detections, want 2 across the failed stop", len(detections.items))
	}
}

func TestSourceReopenedAfterRepeatedFailures(t *testing.T) {
	ctx := context.Background()
	detections := memDetections{}
	source := fakeSource{failAll: true}
	c, _ := newTestCore(&source, &fakeDecoder{script: [][]barcode.Symbol{symbols("ABC123")}}, &detections)

	for range reopenAfterFailures {
		if err := c.Tick(ctx); !errors.Is(err, ffcam.ErrCapture) {
			t.Fatalf("err = %v, want ErrCapture", err)
		}
	}
	if source.reopens != 1 {
		t.Fatalf("reopens = %d, want 1", source.reopens)
	}
	// 重建之后恢复取帧与识别
	if err := c.Tick(ctx); err != nil {
		t.Fatal(err)
	}
	if len(detections.items) != 1 {
		t.Fatalf("got %d detections, want 1 after reopen", len(detections.items))
	}
}

func TestCaptureErrorDegradesSingleTick(t *testing.T) {
	ctx := context.Background()
	detections := memDetections{}
	source := fakeSource{errs: map[uint64]error{2: ffcam.ErrCapture}}
	c, _ := newTestCore(&source, &fakeDecoder{script: [][]barcode.Symbol{symbols("ABC123")}}, &detections)

	if err := c.Tick(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.Tick(ctx); !errors.Is(err, ffcam.ErrCapture) {
		t.Fatalf("err = %v, want ErrCapture", err)
	}
	// 失败的 tick 不应影响去重状态：下一帧同一条码仍是重复
	if err := c.Tick(ctx); err != nil {
		t.Fatal(err)
	}
	if len(detections.items) != 1 {
		t.Fatalf("got %d detections, want 1", len(detections.items))
	}
}

func TestPersistFailureRetriesNextTick(t *testing.T) {
	ctx := context.Background()
	detections := memDetections{addErr: errors.New("disk full")}
	c, _ := newTestCore(&fakeSource{}, &fakeDecoder{script: [][]barcode.Symbol{symbols("ABC123")}}, &detections)

	if err := c.Tick(ctx); err != nil {
		t.Fatal("persist failure must not fail the tick:", err)
	}
	if len(detections.items) != 0 {
		t.Fatal("nothing should be stored while the store errors")
	}

	detections.addErr = nil
	if err := c.Tick(ctx); err != nil {
		t.Fatal(err)
	}
	if len(detections.items) != 1 {
		t.Fatalf("got %d detections, want 1 after retry", len(detections.items))
	}
}

func TestStartStopErrorsPassThrough(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCore(&fakeSource{}, &fakeDecoder{}, &memDetections{})

	if _, err := c.StopSession(ctx); !errors.Is(err, session.ErrNothingToStop) {
		t.Fatalf("err = %v, want ErrNothingToStop", err)
	}
	if _, err := c.StartSession(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := c.StartSession(ctx); !errors.Is(err, session.ErrRecorderBusy) {
		t.Fatalf("err = %v, want ErrRecorderBusy", err)
	}
}

func TestSubscribePublish(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCore(&fakeSource{}, &fakeDecoder{script: [][]barcode.Symbol{symbols("ABC123")}}, &memDetections{})

	id, ch := c.Subscribe()
	defer c.Unsubscribe(id)

	if err := c.Tick(ctx); err != nil {
		t.Fatal(err)
	}
	select {
	case snap := <-ch:
		if len(snap.Symbols) != 1 || snap.Symbols[0].Payload != "ABC123" {
			t.Fatalf("snapshot symbols = %+v", snap.Symbols)
		}
		if snap.Frame == nil {
			t.Fatal("snapshot missing frame")
		}
	default:
		t.Fatal("no snapshot published")
	}
}

func TestCloseReleasesSource(t *testing.T) {
	ctx := context.Background()
	source := fakeSource{}
	c, sessions := newTestCore(&source, &fakeDecoder{script: [][]barcode.Symbol{symbols("ABC123")}}, &memDetections{})

	if _, err := c.StartSession(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.Tick(ctx); err != nil {
		t.Fatal(err)
	}
	c.Close(ctx)

	if !source.closed {
		t.Fatal("frame source not closed")
	}
	if sessions.last == nil || sessions.last.EndedAt == nil {
		t.Fatal("active session not finalized on close")
	}
	if sessions.last.Detections != 1 {
		t.Fatalf("detections = %d, want 1 carried into the closed session", sessions.last.Detections)
	}
}
