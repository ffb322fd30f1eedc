package api

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/gowvp/scanbox/internal/core/capture"
	"github.com/gowvp/scanbox/internal/core/session"
	"github.com/ixugo/goddd/pkg/reason"
	"github.com/ixugo/goddd/pkg/web"
)

// SessionAPI 为 http 提供业务方法
type SessionAPI struct {
	core    *session.Core
	capture *capture.Core
}

func NewSessionAPI(core *session.Core, cap *capture.Core) SessionAPI {
	return SessionAPI{core: core, capture: cap}
}

func registerSession(g gin.IRouter, api SessionAPI, handler ...gin.HandlerFunc) {
	group := g.Group("/sessions", handler...)
	group.POST("/start", web.WrapH(api.startSession))
	group.POST("/stop", web.WrapH(api.stopSession))
	group.GET("", web.WrapH(api.findSessions))
	group.GET("/current", web.WrapH(api.getCurrent))
	group.GET("/:id", web.WrapH(api.getSession))
}

// startSession 开始录制会话，经采集循环串行执行，避免与 tick 竞争
func (a SessionAPI) startSession(c *gin.Context, _ *struct{}) (*session.Session, error) {
	s, err := a.capture.StartSession(c.Request.Context())
	if errors.Is(err, session.ErrRecorderBusy) {
		return nil, reason.ErrBadRequest.SetMsg("录制进行中，请先停止当前会话")
	}
	return s, err
}

func (a SessionAPI) stopSession(c *gin.Context, _ *struct{}) (*session.Session, error) {
	s, err := a.capture.StopSession(c.Request.Context())
	if errors.Is(err, session.ErrNothingToStop) {
		return nil, reason.ErrBadRequest.SetMsg("当前没有进行中的录制")
	}
	return s, err
}

func (a SessionAPI) findSessions(c *gin.Context, in *session.FindSessionsInput) (any, error) {
	items, total, err := a.core.FindSessions(c.Request.Context(), in)
	return gin.H{"items": items, "total": total}, err
}

// getCurrent 查询当前录制状态，未在录制时 recording=false
func (a SessionAPI) getCurrent(c *gin.Context, _ *struct{}) (any, error) {
	if !a.core.IsRecording() {
		return gin.H{"recording": false}, nil
	}
	s, err := a.core.GetCurrent(c.Request.Context())
	if err != nil {
		return nil, err
	}
	return gin.H{"recording": true, "session": s}, nil
}

func (a SessionAPI) getSession(c *gin.Context, _ *struct{}) (*session.Session, error) {
	return a.core.GetSession(c.Request.Context(), c.Param("id"))
}
