package ffcam

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestNewValidatesConfig(t *testing.T) {
	if _, err := New(Config{Width: 0, Height: 480}); err == nil {
		t.Fatal("expected error for zero width")
	}
	cam, err := New(Config{DeviceIndex: 2, Width: 640, Height: 480})
	if err != nil {
		t.Fatal(err)
	}
	if got, want := cam.Device(), "/dev/video2"; got != want {
		t.Fatalf("device = %s, want %s", got, want)
	}
	if got, want := cam.FrameSize(), 640*480*3/2; got != want {
		t.Fatalf("frame size = %d, want %d", got, want)
	}
}

func TestBuildFFmpegArgs(t *testing.T) {
	cam, err := New(Config{Device: "/dev/video0", Width: 1280, Height: 720, FPS: 25})
	if err != nil {
		t.Fatal(err)
	}
	args := strings.Join(cam.buildFFmpegArgs(), " ")
	for _, want := range []string{
		"-f v4l2",
		"-video_size 1280x720",
		"-framerate 25",
		"-i /dev/video0",
		"-pix_fmt yuv420p",
		"pipe:1",
	} {
		if !strings.Contains(args, want) {
			t.Errorf("args missing %q: %s", want, args)
		}
	}
}

func TestNextFrameTimeout(t *testing.T) {
	cam, err := New(Config{Device: "/dev/video9", Width: 320, Height: 240})
	if err != nil {
		t.Fatal(err)
	}
	_, err = cam.NextFrame(10 * time.Millisecond)
	if !errors.Is(err, ErrCapture) {
		t.Fatalf("err = %v, want ErrCapture", err)
	}
}

// 采集协程退出会关闭自己那一代的帧通道；换代之后 NextFrame 必须跟上新通道
func TestNextFrameFollowsCurrentGeneration(t *testing.T) {
	cam, err := New(Config{Device: "/dev/video9", Width: 320, Height: 240})
	if err != nil {
		t.Fatal(err)
	}

	close(cam.frameCh)
	if _, err := cam.NextFrame(10 * time.Millisecond); !errors.Is(err, ErrCapture) {
		t.Fatalf("err = %v, want ErrCapture on closed channel", err)
	}

	// 模拟重新打开后换上的新通道
	fresh := make(chan *Frame, 1)
	fresh <- &Frame{Seq: 42}
	cam.m.Lock()
	cam.frameCh = fresh
	cam.m.Unlock()

	frame, err := cam.NextFrame(time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if frame.Seq != 42 {
		t.Fatalf("seq = %d, want 42", frame.Seq)
	}
}

func TestNextFrameAfterClose(t *testing.T) {
	cam, err := New(Config{Device: "/dev/video9", Width: 320, Height: 240})
	if err != nil {
		t.Fatal(err)
	}
	cam.cancel()
	if _, err := cam.NextFrame(time.Second); !errors.Is(err, ErrClosed) {
		t.Fatalf("err = %v, want ErrClosed", err)
	}
}

func TestFramePlanes(t *testing.T) {
	const w, h = 4, 4
	data := make([]byte, w*h*3/2)
	for i := range data {
		data[i] = byte(i)
	}
	f := Frame{Width: w, Height: h, Data: data}

	gray := f.Gray()
	if gray.Bounds().Dx() != w || gray.Bounds().Dy() != h {
		t.Fatalf("gray bounds = %v", gray.Bounds())
	}
	if gray.Pix[0] != 0 || gray.Pix[w*h-1] != byte(w*h-1) {
		t.Fatal("gray plane does not alias the Y plane")
	}

	img := f.YCbCr()
	if len(img.Cb) != w*h/4 || len(img.Cr) != w*h/4 {
		t.Fatalf("chroma plane sizes = %d, %d", len(img.Cb), len(img.Cr))
	}
	if img.Cb[0] != byte(w*h) {
		t.Fatal("Cb plane offset wrong")
	}
}
