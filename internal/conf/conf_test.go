package conf

import (
	"path/filepath"
	"testing"
	"time"
)

func TestSetupConfigWritesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	bc, err := SetupConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if bc.Camera.Width != 1280 || bc.Camera.Height != 720 {
		t.Fatalf("unexpected default resolution: %dx%d", bc.Camera.Width, bc.Camera.Height)
	}

	// 第二次读取刚落盘的文件，应得到同样的配置
	bc2, err := SetupConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if bc2.Camera.TickInterval.Duration() != 33*time.Millisecond {
		t.Fatalf("tick interval = %s", bc2.Camera.TickInterval.Duration())
	}
	if bc2.Recording.StorageDir != "recordings" {
		t.Fatalf("storage dir = %s", bc2.Recording.StorageDir)
	}
}

func TestDurationUnmarshal(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("1h30m")); err != nil {
		t.Fatal(err)
	}
	if d.Duration() != 90*time.Minute {
		t.Fatalf("duration = %s", d.Duration())
	}
	if err := d.UnmarshalText([]byte("not-a-duration")); err == nil {
		t.Fatal("expected parse error")
	}
}
