package ffmp4

import (
	"strings"
	"testing"
)

func TestNewValidatesConfig(t *testing.T) {
	if _, err := New(Config{Path: "a.mp4", Width: 0, Height: 480}); err == nil {
		t.Fatal("expected error for zero width")
	}
	if _, err := New(Config{Width: 640, Height: 480}); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestBuildFFmpegArgs(t *testing.T) {
	w := Writer{config: Config{Path: "recordings/20240105/100000.mp4", Width: 640, Height: 480, FPS: 30}}
	args := strings.Join(w.buildFFmpegArgs(), " ")
	for _, want := range []string{
		"-f rawvideo",
		"-video_size 640x480",
		"-framerate 30",
		"-i pipe:0",
		"-c:v libx264",
		"-movflags +faststart",
		"recordings/20240105/100000.mp4",
	} {
		if !strings.Contains(args, want) {
			t.Errorf("args missing %q: %s", want, args)
		}
	}
}
