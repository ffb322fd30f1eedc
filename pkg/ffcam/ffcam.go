// Package ffcam captures raw video frames from a local camera device by
// driving an ffmpeg child process. ffmpeg reads the V4L2 device and writes
// fixed-size YUV420P frames to stdout, which are exposed to the caller as a
// pull-based sequence via NextFrame.
package ffcam

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ixugo/goddd/pkg/queue"
)

var (
	// ErrDeviceUnavailable 摄像头无法打开，启动阶段致命
	ErrDeviceUnavailable = errors.New("ffcam: camera device unavailable")
	// ErrCapture 单帧读取失败，可在下一个 tick 重试
	ErrCapture = errors.New("ffcam: capture failed")
	// ErrClosed 设备已关闭
	ErrClosed = errors.New("ffcam: device closed")
)

type (
	Config struct {
		Device        string // 设备路径，如 /dev/video0；留空时由 DeviceIndex 推导
		DeviceIndex   int
		Width, Height int
		FPS           int
		InputFormat   string // 默认 v4l2
		// WarmupTimeout 等待首帧的最长时间，超时视为设备不可用
		WarmupTimeout time.Duration
	}

	// Frame 一帧 YUV420P 像素数据，生命周期由调用方控制
	Frame struct {
		Seq       uint64
		Timestamp time.Time
		Width     int
		Height    int
		Data      []byte
	}

	// Camera 持有 ffmpeg 子进程与帧通道
	Camera struct {
		config    Config
		frameSize int
		frameCh   chan *Frame
		errCh     chan error
		ctx       context.Context
		cancel    context.CancelFunc
		m         sync.Mutex
		opened    bool
		cmd       *exec.Cmd
		wg        sync.WaitGroup
		ffmpegLog *queue.CirQueue[string]
		lastFrame time.Time

		frameCount, dropCount uint64
	}

	Stats struct {
		Device                string
		FrameCount, DropCount uint64
		LastFrame             time.Time
		FrameSize             int
		IsOpen                bool
	}
)

// DevicePath 根据设备序号推导 V4L2 设备路径
func DevicePath(index int) string {
	return "/dev/video" + strconv.Itoa(index)
}

// Gray 以亮度平面构造灰度图，与帧共享底层内存，不做拷贝
func (f *Frame) Gray() *image.Gray {
	return &image.Gray{
		Pix:    f.Data[:f.Width*f.Height],
		Stride: f.Width,
		Rect:   image.Rect(0, 0, f.Width, f.Height),
	}
}

// YCbCr 将 YUV420P 平面数据映射为 image.YCbCr，用于 JPEG 编码预览
func (f *Frame) YCbCr() *image.YCbCr {
	ySize := f.Width * f.Height
	cSize := ySize / 4
	return &image.YCbCr{
		Y:              f.Data[:ySize],
		Cb:             f.Data[ySize : ySize+cSize],
		Cr:             f.Data[ySize+cSize : ySize+2*cSize],
		YStride:        f.Width,
		CStride:        f.Width / 2,
		SubsampleRatio: image.YCbCrSubsampleRatio420,
		Rect:           image.Rect(0, 0, f.Width, f.Height),
	}
}

func New(cfg Config) (*Camera, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("ffcam: invalid resolution: %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.FPS <= 0 {
		cfg.FPS = 30
	}
	if cfg.Device == "" {
		cfg.Device = DevicePath(cfg.DeviceIndex)
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = "v4l2"
	}
	if cfg.WarmupTimeout <= 0 {
		cfg.WarmupTimeout = 10 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Camera{
		config:    cfg,
		frameSize: cfg.Width * cfg.Height * 3 / 2,
		frameCh:   make(chan *Frame, 4),
		errCh:     make(chan error, 1),
		ctx:       ctx,
		cancel:    cancel,
		ffmpegLog: queue.NewCirQueue[string](100),
	}, nil
}

// FrameSize 单帧字节数（YUV420P：宽×高×1.5）
func (c *Camera) FrameSize() int {
	return c.frameSize
}

func (c *Camera) Device() string {
	return c.config.Device
}

func (c *Camera) buildFFmpegArgs() []string {
	return []string{
		"-hide_banner",
		"-loglevel", "warning",
		"-f", c.config.InputFormat,
		"-framerate", strconv.Itoa(c.config.FPS),
		"-video_size", fmt.Sprintf("%dx%d", c.config.Width, c.config.Height),
		"-i", c.config.Device,
		"-f", "rawvideo",
		"-pix_fmt", "yuv420p",
		"-vf", fmt.Sprintf("fps=%d,scale=%d:%d", c.config.FPS, c.config.Width, c.config.Height),
		"pipe:1",
	}
}

// Open 启动 ffmpeg 并等待首帧到达，首帧超时视为设备不可用。
// Close 之后可再次 Open：每次打开都换新的上下文与通道，
// 旧通道可能已被上一轮采集关闭
func (c *Camera) Open() error {
	c.m.Lock()
	if c.opened {
		c.m.Unlock()
		return fmt.Errorf("ffcam: device already open: %s", c.config.Device)
	}

	ctx, cancel := context.WithCancel(context.Background())
	frameCh := make(chan *Frame, 4)
	errCh := make(chan error, 1)
	c.ctx, c.cancel = ctx, cancel
	c.frameCh, c.errCh = frameCh, errCh

	c.cmd = exec.CommandContext(ctx, "ffmpeg", c.buildFFmpegArgs()...)
	stdout, err := c.cmd.StdoutPipe()
	if err != nil {
		c.m.Unlock()
		return fmt.Errorf("ffcam: stdout pipe: %w", err)
	}
	stderr, err := c.cmd.StderrPipe()
	if err != nil {
		c.m.Unlock()
		return fmt.Errorf("ffcam: stderr pipe: %w", err)
	}
	if err := c.cmd.Start(); err != nil {
		c.m.Unlock()
		return fmt.Errorf("%w: %s: %v", ErrDeviceUnavailable, c.config.Device, err)
	}
	c.opened = true
	c.m.Unlock()

	c.wg.Go(func() { c.captureLoop(ctx, stdout, frameCh, errCh) })
	c.wg.Go(func() { c.readStderr(stderr) })

	// 等首帧，拿到后塞回通道供 NextFrame 消费
	frame, err := c.NextFrame(c.config.WarmupTimeout)
	if err != nil {
		_ = c.Close()
		return fmt.Errorf("%w: %s: no frames within %s", ErrDeviceUnavailable, c.config.Device, c.config.WarmupTimeout)
	}
	select {
	case c.frameCh <- frame:
	default:
	}
	return nil
}

// captureLoop 按帧大小从 ffmpeg stdout 读取定长帧。
// 通道随本次 Open 绑定，退出时只关闭属于自己这一代的通道
func (c *Camera) captureLoop(ctx context.Context, stdout io.Reader, frameCh chan *Frame, errCh chan error) {
	defer close(frameCh)

	reader := bufio.NewReaderSize(stdout, c.frameSize*4)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		buf := make([]byte, c.frameSize)
		if _, err := io.ReadFull(reader, buf); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				select {
				case errCh <- fmt.Errorf("%w: stream ended: %v", ErrCapture, err):
				default:
				}
				return
			}
			select {
			case errCh <- fmt.Errorf("%w: read frame: %v", ErrCapture, err):
			default:
			}
			return
		}

		seq := atomic.AddUint64(&c.frameCount, 1)
		now := time.Now()
		c.m.Lock()
		c.lastFrame = now
		c.m.Unlock()

		frame := Frame{
			Seq:       seq,
			Timestamp: now,
			Width:     c.config.Width,
			Height:    c.config.Height,
			Data:      buf,
		}

		select {
		case frameCh <- &frame:
		case <-ctx.Done():
			return
		default:
			// 消费端落后时丢弃最旧的待读帧，保持低延迟
			atomic.AddUint64(&c.dropCount, 1)
			select {
			case <-frameCh:
			default:
			}
			select {
			case frameCh <- &frame:
			default:
			}
		}
	}
}

func (c *Camera) readStderr(stderr io.Reader) {
	scan := bufio.NewScanner(stderr)
	for scan.Scan() {
		c.ffmpegLog.Push(scan.Text())
	}
}

// NextFrame 拉取下一帧，由调用方的 tick 决定节奏
func (c *Camera) NextFrame(timeout time.Duration) (*Frame, error) {
	c.m.Lock()
	frameCh, errCh, ctx := c.frameCh, c.errCh, c.ctx
	c.m.Unlock()

	select {
	case frame, ok := <-frameCh:
		if !ok {
			return nil, fmt.Errorf("%w: frame channel closed", ErrCapture)
		}
		return frame, nil
	case err := <-errCh:
		return nil, err
	case <-ctx.Done():
		return nil, ErrClosed
	case <-time.After(timeout):
		return nil, fmt.Errorf("%w: no frame within %s", ErrCapture, timeout)
	}
}

// Reopen 关闭当前 ffmpeg 进程并重新拉起，用于采集流中断后的恢复
func (c *Camera) Reopen() error {
	if err := c.Close(); err != nil {
		return err
	}
	return c.Open()
}

// Log 返回 ffmpeg stderr 的最近输出
func (c *Camera) Log() []string {
	return c.ffmpegLog.Range()
}

// Close 停止采集并确保 ffmpeg 进程退出
func (c *Camera) Close() error {
	c.m.Lock()
	if !c.opened {
		c.m.Unlock()
		return nil
	}
	c.opened = false
	c.m.Unlock()

	if cancel := c.cancel; cancel != nil {
		cancel()
	}
	c.wg.Wait()

	if c.cmd != nil && c.cmd.Process != nil {
		done := make(chan error, 1)
		go func() {
			done <- c.cmd.Wait()
		}()
		select {
		case <-time.After(5 * time.Second):
			if err := c.cmd.Process.Kill(); err != nil {
				return fmt.Errorf("ffcam: kill ffmpeg: %w", err)
			}
			<-done
		case <-done:
		}
	}
	return nil
}

func (c *Camera) GetStats() Stats {
	c.m.Lock()
	defer c.m.Unlock()
	return Stats{
		Device:     c.config.Device,
		FrameCount: atomic.LoadUint64(&c.frameCount),
		DropCount:  atomic.LoadUint64(&c.dropCount),
		LastFrame:  c.lastFrame,
		FrameSize:  c.frameSize,
		IsOpen:     c.opened,
	}
}
