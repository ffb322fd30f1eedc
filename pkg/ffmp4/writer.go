// Package ffmp4 writes raw YUV420P frames into an MP4 container by piping
// them through an ffmpeg child process. Close flushes the encoder and waits
// for ffmpeg to finalize the container, so the resulting file is playable
// even when recording is cut short.
package ffmp4

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/ixugo/goddd/pkg/queue"
)

var (
	// ErrFrameSize 帧字节数与预期分辨率不符，拒绝写入以免损坏文件
	ErrFrameSize = errors.New("ffmp4: frame size mismatch")
	// ErrWriterClosed 写入器已关闭
	ErrWriterClosed = errors.New("ffmp4: writer closed")
)

type Config struct {
	Path          string
	Width, Height int
	FPS           int
	// CloseTimeout 等待 ffmpeg 完成封装的最长时间
	CloseTimeout time.Duration
}

// Writer 单个录制文件的视频写入器，固定分辨率
type Writer struct {
	config    Config
	frameSize int
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	ffmpegLog *queue.CirQueue[string]
	wg        sync.WaitGroup

	m      sync.Mutex
	closed bool
	frames uint64
}

func (w *Writer) buildFFmpegArgs() []string {
	return []string{
		"-hide_banner",
		"-loglevel", "warning",
		"-f", "rawvideo",
		"-pix_fmt", "yuv420p",
		"-video_size", fmt.Sprintf("%dx%d", w.config.Width, w.config.Height),
		"-framerate", strconv.Itoa(w.config.FPS),
		"-i", "pipe:0",
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
		"-y",
		w.config.Path,
	}
}

// New 创建写入器并启动 ffmpeg，目标目录不存在时自动创建
func New(cfg Config) (*Writer, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("ffmp4: invalid resolution: %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.FPS <= 0 {
		cfg.FPS = 30
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("ffmp4: path is required")
	}
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = 10 * time.Second
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("ffmp4: mkdir: %w", err)
	}

	w := Writer{
		config:    cfg,
		frameSize: cfg.Width * cfg.Height * 3 / 2,
		ffmpegLog: queue.NewCirQueue[string](100),
	}
	w.cmd = exec.Command("ffmpeg", w.buildFFmpegArgs()...)
	stdin, err := w.cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmp4: stdin pipe: %w", err)
	}
	stderr, err := w.cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmp4: stderr pipe: %w", err)
	}
	if err := w.cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmp4: start ffmpeg: %w", err)
	}
	w.stdin = stdin

	w.wg.Go(func() {
		scan := bufio.NewScanner(stderr)
		for scan.Scan() {
			w.ffmpegLog.Push(scan.Text())
		}
	})
	return &w, nil
}

func (w *Writer) Path() string {
	return w.config.Path
}

func (w *Writer) FrameSize() int {
	return w.frameSize
}

// Write 追加一帧，帧大小不匹配时拒绝写入
func (w *Writer) Write(data []byte) error {
	if len(data) != w.frameSize {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrFrameSize, len(data), w.frameSize)
	}
	w.m.Lock()
	defer w.m.Unlock()
	if w.closed {
		return ErrWriterClosed
	}
	if _, err := w.stdin.Write(data); err != nil {
		return fmt.Errorf("ffmp4: write frame: %w", err)
	}
	w.frames++
	return nil
}

// Frames 已写入的帧数
func (w *Writer) Frames() uint64 {
	w.m.Lock()
	defer w.m.Unlock()
	return w.frames
}

// Log 返回 ffmpeg stderr 的最近输出
func (w *Writer) Log() []string {
	return w.ffmpegLog.Range()
}

// Close 关闭输入流并等待 ffmpeg 完成封装，重复调用无害
func (w *Writer) Close() error {
	w.m.Lock()
	if w.closed {
		w.m.Unlock()
		return nil
	}
	w.closed = true
	w.m.Unlock()

	// 关闭 stdin 触发 ffmpeg 刷出缓冲并写入 moov
	if err := w.stdin.Close(); err != nil {
		return fmt.Errorf("ffmp4: close stdin: %w", err)
	}
	w.wg.Wait()

	done := make(chan error, 1)
	go func() {
		done <- w.cmd.Wait()
	}()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("ffmp4: ffmpeg exit: %w", err)
		}
	case <-time.After(w.config.CloseTimeout):
		if err := w.cmd.Process.Kill(); err != nil {
			return fmt.Errorf("ffmp4: kill ffmpeg: %w", err)
		}
		<-done
		return fmt.Errorf("ffmp4: finalize timed out after %s", w.config.CloseTimeout)
	}
	return nil
}
