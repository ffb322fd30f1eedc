package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gowvp/scanbox/internal/core/scan"
	"github.com/ixugo/goddd/pkg/web"
)

// ScanAPI 为 http 提供业务方法
type ScanAPI struct {
	scanCore scan.Core
}

func NewScanAPI(core scan.Core) ScanAPI {
	return ScanAPI{scanCore: core}
}

func registerScan(g gin.IRouter, api ScanAPI, handler ...gin.HandlerFunc) {
	group := g.Group("/detections", handler...)
	group.GET("", web.WrapH(api.findDetections))
	group.GET("/daily", web.WrapH(api.getDailyReport))
	group.GET("/daily/export", api.exportDailyReport)
}

// findDetections 分页查询扫码记录，q 同时模糊匹配条码与日期
func (a ScanAPI) findDetections(c *gin.Context, in *scan.FindDetectionsInput) (any, error) {
	items, total, err := a.scanCore.FindDetections(c.Request.Context(), in)
	return gin.H{"items": items, "total": total}, err
}

func (a ScanAPI) getDailyReport(c *gin.Context, _ *struct{}) (any, error) {
	items, err := a.scanCore.DailyReport(c.Request.Context())
	return gin.H{"items": items}, err
}

// exportDailyReport 导出按天统计的 CSV 文件
func (a ScanAPI) exportDailyReport(c *gin.Context) {
	filename := fmt.Sprintf("daily_report_%s.csv", time.Now().Format("20060102"))
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	if err := a.scanCore.ExportDailyReport(c.Request.Context(), c.Writer); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": 1, "msg": err.Error()})
	}
}
