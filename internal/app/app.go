package app

import (
	"net/http"

	"github.com/gowvp/scanbox/internal/conf"
	"github.com/gowvp/scanbox/internal/data"
	"github.com/gowvp/scanbox/internal/web/api"
)

// SetupApp 组装依赖，返回业务入口与 http.Handler
// 摄像头打开失败会在此处直接返回错误
func SetupApp(bc *conf.Bootstrap) (*api.Usecase, http.Handler, func(), error) {
	uc, cleanup, err := wireApp(bc)
	if err != nil {
		return nil, nil, nil, err
	}

	// 迁移旧版 captures 表数据，失败不阻塞启动
	_ = data.MigrateCaptureData(uc.DB)

	return uc, api.NewHTTPHandler(uc), cleanup, nil
}
