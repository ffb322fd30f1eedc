package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Bootstrap 进程级配置，启动时读取一次，运行期间不变
type Bootstrap struct {
	Debug        bool   `toml:"debug"`
	BuildVersion string `toml:"-"`

	Server    Server    `toml:"server"`
	Camera    Camera    `toml:"camera"`
	Recording Recording `toml:"recording"`
	Data      Data      `toml:"data"`
}

type Server struct {
	HTTP HTTP `toml:"http"`
}

type HTTP struct {
	Port int `toml:"port"`
}

type Camera struct {
	// Device 设备路径，优先于 DeviceIndex；留空时按序号推导
	Device      string `toml:"device"`
	DeviceIndex int    `toml:"device_index"`
	Width       int    `toml:"width"`
	Height      int    `toml:"height"`
	FPS         int    `toml:"fps"`
	// TickInterval 采集循环的节拍间隔
	TickInterval Duration `toml:"tick_interval"`
}

type Recording struct {
	// StorageDir 录像根目录，按 <dir>/<YYYYMMDD>/<HHMMSS>.mp4 组织
	StorageDir string `toml:"storage_dir"`
	// RetainDays 超过天数的会话录像被清理，<=0 表示不清理
	RetainDays int `toml:"retain_days"`
	// DiskUsageThreshold 磁盘使用率（百分比）超过阈值时清理最旧录像，0 表示关闭
	DiskUsageThreshold float64 `toml:"disk_usage_threshold"`
}

type Data struct {
	Database Database `toml:"database"`
}

type Database struct {
	// Dsn 以 postgres:// 或 mysql:// 开头时选择对应驱动，否则视为 sqlite 文件路径
	Dsn             string   `toml:"dsn"`
	MaxIdleConns    int32    `toml:"max_idle_conns"`
	MaxOpenConns    int32    `toml:"max_open_conns"`
	ConnMaxLifetime Duration `toml:"conn_max_lifetime"`
	SlowThreshold   Duration `toml:"slow_threshold"`
}

// Duration 支持 "200ms"/"1h" 字符串写法的时长
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func defaultBootstrap() *Bootstrap {
	return &Bootstrap{
		Server: Server{HTTP: HTTP{Port: 8081}},
		Camera: Camera{
			DeviceIndex:  0,
			Width:        1280,
			Height:       720,
			FPS:          30,
			TickInterval: Duration(33 * time.Millisecond),
		},
		Recording: Recording{
			StorageDir:         "recordings",
			RetainDays:         30,
			DiskUsageThreshold: 90,
		},
		Data: Data{Database: Database{
			Dsn:             "data/scanbox.db",
			MaxIdleConns:    10,
			MaxOpenConns:    50,
			ConnMaxLifetime: Duration(6 * time.Hour),
			SlowThreshold:   Duration(200 * time.Millisecond),
		}},
	}
}

// SetupConfig 读取 TOML 配置，文件不存在时落盘默认值再返回
func SetupConfig(path string) (*Bootstrap, error) {
	bc := defaultBootstrap()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if err := writeDefault(path, bc); err != nil {
			return nil, err
		}
		return bc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(data, bc); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return bc, nil
}

func writeDefault(path string, bc *Bootstrap) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}
	data, err := toml.Marshal(bc)
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}
	return nil
}
