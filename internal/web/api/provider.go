package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/wire"
	"github.com/gowvp/scanbox/internal/conf"
	"github.com/gowvp/scanbox/internal/core/capture"
	"github.com/gowvp/scanbox/internal/core/scan"
	"github.com/gowvp/scanbox/internal/core/scan/store/scandb"
	"github.com/gowvp/scanbox/internal/core/session"
	"github.com/gowvp/scanbox/internal/core/session/store/sessiondb"
	"github.com/gowvp/scanbox/pkg/barcode"
	"github.com/gowvp/scanbox/pkg/ffcam"
	"github.com/gowvp/scanbox/pkg/ffmp4"
	"github.com/ixugo/goddd/pkg/orm"
	"gorm.io/gorm"
)

var ProviderSet = wire.NewSet(
	wire.Struct(new(Usecase), "*"),
	NewHTTPHandler,
	NewScanStore, NewScanCore, NewScanAPI,
	NewSessionStore, NewSessionCore, NewSessionAPI,
	NewFrameSource, NewCaptureCore,
	NewRecordingAPI,
	NewPreviewAPI,
)

type Usecase struct {
	Conf *conf.Bootstrap
	DB   *gorm.DB

	Capture      *capture.Core
	ScanAPI      ScanAPI
	SessionAPI   SessionAPI
	RecordingAPI RecordingAPI
	PreviewAPI   PreviewAPI
}

// NewHTTPHandler 生成Gin框架路由内容
func NewHTTPHandler(uc *Usecase) http.Handler {
	if !uc.Conf.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	g := gin.New()
	setupRouter(g, uc)
	return g
}

func NewScanStore(db *gorm.DB) scan.Storer {
	return scandb.NewDB(db).AutoMigrate(orm.GetEnabledAutoMigrate())
}

func NewScanCore(store scan.Storer) scan.Core {
	return scan.NewCore(store)
}

func NewSessionStore(db *gorm.DB) session.Storer {
	return sessiondb.NewDB(db).AutoMigrate(orm.GetEnabledAutoMigrate())
}

// NewSessionCore 创建录制会话核心服务，落盘走 ffmpeg MP4 写入器
func NewSessionCore(store session.Storer, cfg *conf.Bootstrap) *session.Core {
	cam := cfg.Camera
	core := session.NewCore(store,
		session.WithConfig(&cfg.Recording),
		session.WithSinkOpener(func(path string) (session.VideoSink, error) {
			return ffmp4.New(ffmp4.Config{
				Path:   path,
				Width:  cam.Width,
				Height: cam.Height,
				FPS:    cam.FPS,
			})
		}),
	)

	// 启动清理协程
	go core.StartCleanupWorker()

	return core
}

// NewFrameSource 打开摄像头，失败即启动失败
func NewFrameSource(cfg *conf.Bootstrap) (capture.FrameSource, error) {
	cam, err := ffcam.New(ffcam.Config{
		Device:      cfg.Camera.Device,
		DeviceIndex: cfg.Camera.DeviceIndex,
		Width:       cfg.Camera.Width,
		Height:      cfg.Camera.Height,
		FPS:         cfg.Camera.FPS,
	})
	if err != nil {
		return nil, err
	}
	if err := cam.Open(); err != nil {
		return nil, err
	}
	return cam, nil
}

func NewCaptureCore(source capture.FrameSource, recorder *session.Core, scanCore scan.Core, cfg *conf.Bootstrap) *capture.Core {
	return capture.NewCore(source, barcode.NewDecoder(), recorder, scanCore, cfg.Camera.TickInterval.Duration())
}
