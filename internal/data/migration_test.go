package data

import (
	"testing"
	"time"
)

func TestParseLegacyTime(t *testing.T) {
	// 旧表由 Python 程序写入，detected_at 多数带微秒，少数整秒无小数位
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2024-01-05T10:00:00.123456", time.Date(2024, 1, 5, 10, 0, 0, 123456000, time.Local)},
		{"2024-01-05T10:00:00", time.Date(2024, 1, 5, 10, 0, 0, 0, time.Local)},
		{"2024-12-31T23:59:59.5", time.Date(2024, 12, 31, 23, 59, 59, 500000000, time.Local)},
	}
	for _, tt := range tests {
		got, err := parseLegacyTime(tt.in)
		if err != nil {
			t.Fatalf("parse %q: %v", tt.in, err)
		}
		if !got.Equal(tt.want) {
			t.Fatalf("parse %q = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseLegacyTimeRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "not a time", "2024-01-05 10:00:00"} {
		if _, err := parseLegacyTime(in); err == nil {
			t.Fatalf("parse %q should fail", in)
		}
	}
}
