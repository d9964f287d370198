package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/loykin/slumber/internal/media"
	"github.com/loykin/slumber/internal/metrics"
	"github.com/loykin/slumber/internal/timer"
)

// Engine is the timer surface the API drives.
type Engine interface {
	State() timer.State
	Observe() (<-chan timer.State, func())
	Start(minutes int64)
	Pause()
	Cancel()
	SetDuration(minutes int64) bool
}

// Controls stores posted transport controls.
type Controls interface {
	Post(pc media.PostedControl) (media.PostedControl, error)
	Remove(id string) error
	List() []media.PostedControl
}

// Router provides embeddable HTTP handlers for the sleep timer.
// Endpoints, relative to basePath:
//
//	GET    /state           current state
//	GET    /state/stream    server-sent "state" events, latest state first
//	POST   /start           body {"duration_minutes": n}, optional
//	POST   /pause
//	POST   /cancel
//	PUT    /duration        body {"duration_minutes": n}, idle only
//	GET    /controls        posted transport controls
//	POST   /controls        post or refresh a control
//	DELETE /controls/:id
//	GET    /healthz
//
// Control endpoints answer with the resulting state. They never fail because
// the timer was in the wrong state; such calls are ignored.
type Router struct {
	eng      Engine
	controls Controls
	basePath string
	logger   *slog.Logger
}

// NewRouter constructs a Router. controls may be nil, which leaves the
// /controls endpoints unregistered.
func NewRouter(eng Engine, controls Controls, basePath string, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{eng: eng, controls: controls, basePath: sanitizeBase(basePath), logger: logger}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/state", r.handleState)
	group.GET("/state/stream", r.handleStream)
	group.POST("/start", r.handleStart)
	group.POST("/pause", r.handlePause)
	group.POST("/cancel", r.handleCancel)
	group.PUT("/duration", r.handleDuration)
	group.GET("/healthz", r.handleHealth)
	if r.controls != nil {
		group.GET("/controls", r.handleListControls)
		group.POST("/controls", r.handlePostControl)
		group.DELETE("/controls/:id", r.handleDeleteControl)
	}
	return g
}

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

type durationReq struct {
	DurationMinutes *int64 `json:"duration_minutes"`
}

type durationResp struct {
	Applied bool        `json:"applied"`
	State   timer.State `json:"state"`
}

type healthResp struct {
	OK    bool               `json:"ok"`
	Phase timer.Phase        `json:"phase"`
	Self  *metrics.SelfUsage `json:"self,omitempty"`
}

func (r *Router) handleState(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.eng.State())
}

func (r *Router) handleStream(c *gin.Context) {
	ch, cancel := r.eng.Observe()
	defer cancel()
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	ctx := c.Request.Context()
	c.Stream(func(io.Writer) bool {
		select {
		case st, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent("state", st)
			return true
		case <-ctx.Done():
			return false
		}
	})
}

// bindDuration reads an optional duration body. present is false for an
// empty body.
func bindDuration(c *gin.Context) (minutes int64, present bool, err error) {
	if c.Request.ContentLength == 0 {
		return 0, false, nil
	}
	var req durationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return 0, false, nil
		}
		return 0, false, err
	}
	if req.DurationMinutes == nil {
		return 0, false, nil
	}
	return *req.DurationMinutes, true, nil
}

func checkMinutes(m int64) string {
	switch {
	case m <= 0:
		return "duration_minutes must be positive"
	case m > timer.MaxMinutes:
		return fmt.Sprintf("duration_minutes must be at most %d", timer.MaxMinutes)
	}
	return ""
}

func (r *Router) handleStart(c *gin.Context) {
	minutes, ok, err := bindDuration(c)
	if err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if !ok {
		minutes = r.eng.State().InitialDurationMinutes
	} else if msg := checkMinutes(minutes); msg != "" {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: msg})
		return
	}
	r.eng.Start(minutes)
	writeJSON(c, http.StatusOK, r.eng.State())
}

func (r *Router) handlePause(c *gin.Context) {
	r.eng.Pause()
	writeJSON(c, http.StatusOK, r.eng.State())
}

func (r *Router) handleCancel(c *gin.Context) {
	r.eng.Cancel()
	writeJSON(c, http.StatusOK, r.eng.State())
}

func (r *Router) handleDuration(c *gin.Context) {
	minutes, ok, err := bindDuration(c)
	if err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if !ok {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "duration_minutes required"})
		return
	}
	if msg := checkMinutes(minutes); msg != "" {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: msg})
		return
	}
	applied := r.eng.SetDuration(minutes)
	writeJSON(c, http.StatusOK, durationResp{Applied: applied, State: r.eng.State()})
}

func (r *Router) handleHealth(c *gin.Context) {
	resp := healthResp{OK: true, Phase: r.eng.State().Phase}
	if self, err := metrics.Self(); err == nil {
		resp.Self = &self
	} else {
		r.logger.Debug("process stats unavailable", "error", err)
	}
	writeJSON(c, http.StatusOK, resp)
}

func (r *Router) handleListControls(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.controls.List())
}

func (r *Router) handlePostControl(c *gin.Context) {
	var pc media.PostedControl
	if err := c.ShouldBindJSON(&pc); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if pc.ID != "" && !isSafeID(pc.ID) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid id: allowed [A-Za-z0-9._-] and no '..'"})
		return
	}
	out, err := r.controls.Post(pc)
	if err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	r.logger.Debug("control posted", "id", out.ID, "source", out.Source, "actions", len(out.Actions))
	writeJSON(c, http.StatusOK, out)
}

func (r *Router) handleDeleteControl(c *gin.Context) {
	id := c.Param("id")
	if !isSafeID(id) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid id"})
		return
	}
	if err := r.controls.Remove(id); err != nil {
		if errors.Is(err, media.ErrControlNotFound) {
			writeJSON(c, http.StatusNotFound, errorResp{Error: err.Error()})
			return
		}
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}
