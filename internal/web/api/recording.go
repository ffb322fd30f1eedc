package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gowvp/scanbox/internal/core/session"
	"github.com/grafov/m3u8"
	"github.com/ixugo/goddd/pkg/web"
)

// RecordingAPI 为 http 提供业务方法
type RecordingAPI struct {
	core *session.Core
}

func NewRecordingAPI(core *session.Core) RecordingAPI {
	return RecordingAPI{core: core}
}

func registerRecording(g gin.IRouter, api RecordingAPI, handler ...gin.HandlerFunc) {
	{
		group := g.Group("/recordings", handler...)
		// HLS 播放列表（按天聚合当日全部会话录像）
		group.GET("/days/:day/index.m3u8", api.dayPlaylist)
		group.GET("/:id/download", api.downloadRecording)
	}

	// 静态文件服务，用于访问录像 MP4 文件
	// Gin Static 支持 HTTP Range 请求，实现边下载边播放（秒播）
	if dir := api.core.StorageDir(); dir != "" {
		slog.Info("注册录像静态文件服务", "path", "/static/recordings", "dir", dir)
		g.Static("/static/recordings", dir)
	}
}

// downloadRecording 下载某个会话的录像文件
func (a RecordingAPI) downloadRecording(c *gin.Context) {
	s, err := a.core.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"code": 1, "msg": err.Error()})
		return
	}

	if _, err := os.Stat(s.RecordingPath); os.IsNotExist(err) {
		c.JSON(http.StatusNotFound, gin.H{"code": 1, "msg": "recording file not found"})
		return
	}

	fileName := filepath.Base(s.RecordingPath)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", fileName))
	c.File(s.RecordingPath)
}

// dayPlaylist 生成 HLS m3u8 播放列表
// 把某一天的所有会话录像拼成一个 VOD 列表
// 路径: /recordings/days/:day/index.m3u8 （day 格式 2006-01-02）
func (a RecordingAPI) dayPlaylist(c *gin.Context) {
	day := c.Param("day")
	if _, err := time.ParseInLocation("2006-01-02", day, time.Local); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": 1, "msg": "day 格式应为 2006-01-02"})
		return
	}

	sessions, _, err := a.core.FindSessions(c.Request.Context(), &session.FindSessionsInput{
		PagerFilter: web.PagerFilter{Page: 1, Size: 10000},
		Day:         day,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": 1, "msg": err.Error()})
		return
	}

	// 进行中的会话文件尚未封口，不能播放
	ended := make([]*session.Session, 0, len(sessions))
	for _, s := range sessions {
		if s.EndedAt != nil {
			ended = append(ended, s)
		}
	}
	if len(ended) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"code": 1, "msg": "no recordings found for this day"})
		return
	}

	content := a.generateM3U8(ended)
	c.Header("Content-Type", "application/vnd.apple.mpegurl")
	c.Header("Cache-Control", "no-cache")
	c.String(http.StatusOK, content)
}

// generateM3U8 根据会话列表生成 m3u8 播放列表
func (a RecordingAPI) generateM3U8(sessions []*session.Session) string {
	count := len(sessions)
	if count == 0 {
		return ""
	}

	// winSize=0 表示 VOD，不使用滑动窗口
	pl, err := m3u8.NewMediaPlaylist(0, uint(count))
	if err != nil {
		return ""
	}
	pl.MediaType = m3u8.VOD

	// 按开始时间升序排列
	sorted := make([]*session.Session, len(sessions))
	copy(sorted, sessions)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].StartedAt.Before(sorted[j].StartedAt.Time)
	})

	storageDir := a.core.StorageDir()
	for i, s := range sorted {
		// 每个 MP4 的时间戳都从 0 开始，片段之间必须添加 DISCONTINUITY
		// 告诉 HLS.js 重置解码器，避免时间戳不连续导致的解析错误
		if i > 0 {
			pl.SetDiscontinuity()
		}

		rel, err := filepath.Rel(storageDir, s.RecordingPath)
		if err != nil {
			rel = s.RecordingPath
		}
		rel = strings.TrimPrefix(filepath.ToSlash(rel), "/")

		duration := 0.0
		if s.EndedAt != nil {
			duration = s.EndedAt.Sub(s.StartedAt.Time).Seconds()
		}
		// 相对路径，浏览器按当前域名访问，代理与直连均可用
		_ = pl.Append("/static/recordings/"+rel, duration, "")
	}

	pl.Close()
	return pl.String()
}
