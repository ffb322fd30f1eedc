package api

import (
	"encoding/json"
	"fmt"
	"image/jpeg"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gowvp/scanbox/internal/core/capture"
)

// PreviewAPI 实时预览，基于采集循环的帧广播
type PreviewAPI struct {
	capture *capture.Core
}

func NewPreviewAPI(core *capture.Core) PreviewAPI {
	return PreviewAPI{capture: core}
}

func registerPreview(g gin.IRouter, api PreviewAPI, handler ...gin.HandlerFunc) {
	group := g.Group("/preview", handler...)
	group.GET("/mjpeg", api.streamMJPEG)
	group.GET("/events", api.streamEvents)
	group.GET("/snapshot", api.getSnapshot)
}

const mjpegBoundary = "frame"

// streamMJPEG 以 multipart/x-mixed-replace 推送 JPEG 帧
// 浏览器 <img> 标签可直接播放
func (a PreviewAPI) streamMJPEG(c *gin.Context) {
	id, ch := a.capture.Subscribe()
	defer a.capture.Unsubscribe(id)

	c.Header("Content-Type", "multipart/x-mixed-replace; boundary="+mjpegBoundary)
	c.Header("Cache-Control", "no-cache")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"msg": "不支持流式响应"})
		return
	}

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case snap, open := <-ch:
			if !open {
				return
			}
			if snap.Frame == nil {
				continue
			}
			fmt.Fprintf(c.Writer, "--%s\r\nContent-Type: image/jpeg\r\n\r\n", mjpegBoundary)
			if err := jpeg.Encode(c.Writer, snap.Frame.YCbCr(), &jpeg.Options{Quality: 75}); err != nil {
				return
			}
			fmt.Fprint(c.Writer, "\r\n")
			flusher.Flush()
		}
	}
}

// streamEvents 通过 SSE 推送识别结果与状态变化，不含图像数据
func (a PreviewAPI) streamEvents(c *gin.Context) {
	id, ch := a.capture.Subscribe()
	defer a.capture.Unsubscribe(id)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"msg": "不支持 SSE"})
		return
	}

	ctx := c.Request.Context()
	lastStatus := ""
	for {
		select {
		case <-ctx.Done():
			return
		case snap, open := <-ch:
			if !open {
				return
			}
			// 无新识别结果且状态未变时不推送，减少无意义的心跳
			if len(snap.Symbols) == 0 && snap.Status == lastStatus {
				continue
			}
			lastStatus = snap.Status
			data, err := json.Marshal(snap)
			if err != nil {
				continue
			}
			fmt.Fprintf(c.Writer, "event: snapshot\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}

// getSnapshot 抓取单帧 JPEG
func (a PreviewAPI) getSnapshot(c *gin.Context) {
	id, ch := a.capture.Subscribe()
	defer a.capture.Unsubscribe(id)

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case snap, open := <-ch:
			if !open {
				c.JSON(http.StatusServiceUnavailable, gin.H{"msg": "采集循环已停止"})
				return
			}
			if snap.Frame == nil {
				continue
			}
			c.Header("Content-Type", "image/jpeg")
			_ = jpeg.Encode(c.Writer, snap.Frame.YCbCr(), &jpeg.Options{Quality: 85})
			return
		}
	}
}
