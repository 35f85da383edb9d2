package controllers

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"termhost/internal/config"
	"termhost/internal/models"
	"termhost/services"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
)

type SystemController struct {
	server *services.Server
}

/**
 * Create new System controller instance
 * @param {*services.Server} server - Server aggregate backing the handlers
 * @returns {*SystemController} New System controller instance
 * @description
 * - Handles status, logs, restart and the whole update surface
 * @example
 * server := services.NewServer(cfg)
 * controller := controllers.NewSystemController(server)
 */
func NewSystemController(server *services.Server) *SystemController {
	return &SystemController{
		server: server,
	}
}

/**
 * Register all system API routes to Gin engine
 * @param {*gin.Engine} r - Gin router instance
 * @description
 * - Registers routes for:
 *   - Service status/logs/restart
 *   - Update check, update start, progress stream and poll
 * @example
 * router := gin.Default()
 * controller := NewSystemController(server)
 * controller.RegisterRoutes(router)
 */
func (s *SystemController) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/termhost/api/v1")
	// 服务管理接口
	api.GET("/system/status", s.GetStatus)
	api.GET("/system/logs", s.GetLogs)
	api.POST("/system/restart", s.RestartService)
	// 更新接口
	api.POST("/system/update/check", s.CheckUpdate)
	api.POST("/system/update", s.StartUpdate)
	api.GET("/system/update/stream", s.StreamUpdate)
	api.GET("/system/update/status", s.GetUpdateStatus)
}

// GetStatus returns the service status snapshot
//
//	@Summary		Get system status
//	@Description	Get service status, cached update info, derived health and whether an update is running
//	@Tags			System
//	@Accept			json
//	@Produce		json
//	@Success		200	{object}	map[string]interface{}	"System status response"
//	@Router			/termhost/api/v1/system/status [get]
func (s *SystemController) GetStatus(c *gin.Context) {
	health := s.server.GetHealth(c.Request.Context())
	c.JSON(200, gin.H{
		"service":          health.Service,
		"initSystem":       health.InitSystem,
		"health":           health.Health,
		"updateInfo":       health.UpdateInfo,
		"lastAttempt":      health.LastAttempt,
		"updateInProgress": s.server.Orchestrator().InProgress(),
	})
}

// GetLogs returns the most recent service log lines
//
//	@Summary		Get service logs
//	@Description	Tail the managed service's logs via the platform's native log facility
//	@Tags			System
//	@Accept			json
//	@Produce		json
//	@Param			lines	query		int						false	"Number of lines to return (1-10000, default 100)"
//	@Success		200		{object}	map[string]interface{}	"Log lines response"
//	@Router			/termhost/api/v1/system/logs [get]
func (s *SystemController) GetLogs(c *gin.Context) {
	lines, err := strconv.Atoi(c.DefaultQuery("lines", strconv.Itoa(services.DefaultLogLines)))
	if err != nil {
		lines = services.DefaultLogLines
	}
	lines = services.ClampLogLines(lines)

	logs := s.server.Controller().Logs(c.Request.Context(), lines)
	c.JSON(200, gin.H{
		"lines": len(logs),
		"logs":  logs,
	})
}

// RestartService restarts the managed service through its init system
//
//	@Summary		Restart service
//	@Description	Restart the managed service using the platform's native service mechanism
//	@Tags			System
//	@Accept			json
//	@Produce		json
//	@Success		200	{object}	map[string]interface{}	"Restart success response"
//	@Failure		500	{object}	models.ErrorResponse	"Restart failure response"
//	@Router			/termhost/api/v1/system/restart [post]
func (s *SystemController) RestartService(c *gin.Context) {
	if err := s.server.Controller().Restart(c.Request.Context()); err != nil {
		code := "system.restart_failed"
		if errors.Is(err, services.ErrManualRestart) {
			// manual模式下这是预期结果，不是内部故障
			code = "system.manual_restart"
		}
		c.JSON(500, gin.H{
			"success": false,
			"message": err.Error(),
			"code":    code,
		})
		return
	}
	c.JSON(200, gin.H{
		"success": true,
		"message": "Service restarted",
	})
}

// CheckUpdate performs an immediate update check
//
//	@Summary		Check for updates
//	@Description	Compare the local revision with the remote tracking branch
//	@Tags			Update
//	@Accept			json
//	@Produce		json
//	@Success		200	{object}	models.UpdateInfo		"Update check result"
//	@Failure		500	{object}	models.ErrorResponse	"Check failure response"
//	@Router			/termhost/api/v1/system/update/check [post]
func (s *SystemController) CheckUpdate(c *gin.Context) {
	info, err := s.server.Checker().Check(c.Request.Context())
	if err != nil {
		// 检查失败不等于没有更新，必须让调用方区分这两种结果
		c.JSON(500, &models.ErrorResponse{
			Code:  "update.check_failed",
			Error: err.Error(),
		})
		return
	}
	c.JSON(200, info)
}

// StartUpdate starts an asynchronous update run
//
//	@Summary		Start update
//	@Description	Start an update run; at most one runs at a time, concurrent requests get a conflict
//	@Tags			Update
//	@Accept			json
//	@Produce		json
//	@Success		200	{object}	map[string]interface{}	"Update started response"
//	@Failure		409	{object}	models.ErrorResponse	"Update already in progress"
//	@Router			/termhost/api/v1/system/update [post]
func (s *SystemController) StartUpdate(c *gin.Context) {
	updateID, err := s.server.Orchestrator().StartUpdate()
	if err != nil {
		if errors.Is(err, config.ErrUpdateInProgress) {
			c.JSON(409, gin.H{
				"success": false,
				"message": err.Error(),
				"code":    "update.conflict",
			})
			return
		}
		c.JSON(500, gin.H{
			"success": false,
			"message": err.Error(),
			"code":    "update.start_failed",
		})
		return
	}
	c.JSON(200, gin.H{
		"success":  true,
		"message":  "Update started",
		"updateId": updateID,
	})
}

// StreamUpdate streams the events of one update run over SSE
//
//	@Summary		Stream update progress
//	@Description	Server-sent events for one update run; a late subscriber of a finished run gets one synthesized terminal event
//	@Tags			Update
//	@Produce		text/event-stream
//	@Param			id	query		string					true	"Update run identifier"
//	@Success		200	{string}	string					"SSE event stream"
//	@Failure		400	{object}	models.ErrorResponse	"Missing update id"
//	@Failure		404	{object}	models.ErrorResponse	"Unknown update id"
//	@Router			/termhost/api/v1/system/update/stream [get]
func (s *SystemController) StreamUpdate(c *gin.Context) {
	updateID := c.Query("id")
	if updateID == "" {
		c.JSON(400, &models.ErrorResponse{
			Code:  "update.missing_id",
			Error: "query parameter 'id' is required",
		})
		return
	}

	attempt := s.server.Orchestrator().LastAttempt()
	if attempt == nil || attempt.UpdateID != updateID {
		c.JSON(404, &models.ErrorResponse{
			Code:  "update.notexist",
			Error: fmt.Sprintf("update [%s] isn't exist", updateID),
		})
		return
	}

	c.Header("Content-Type", sse.ContentType)
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	// 先订阅再判断终态，保证不会漏掉收尾事件
	ch, unsubscribe := s.server.Broadcaster().Subscribe(updateID)
	defer unsubscribe()

	// 订阅窗口内运行可能刚好结束，重读终态，终态事件此时已经发完了
	if latest := s.server.Orchestrator().LastAttempt(); latest != nil && latest.UpdateID == updateID {
		attempt = latest
	}
	if attempt.Status != models.AttemptInProgress {
		// 迟到的订阅者：用留存的更新记录合成一条终态事件
		c.Render(200, sse.Event{Data: terminalEvent(attempt)})
		c.Writer.Flush()
		return
	}

	clientGone := c.Request.Context().Done()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-clientGone:
			return false
		case event, ok := <-ch:
			if !ok {
				return false
			}
			c.Render(200, sse.Event{Data: event})
			return true
		}
	})
}

// GetUpdateStatus returns the retained record of the most recent update run
//
//	@Summary		Get update status
//	@Description	Poll model for clients that can't hold an SSE stream open
//	@Tags			Update
//	@Accept			json
//	@Produce		json
//	@Success		200	{object}	map[string]interface{}	"Update status response"
//	@Router			/termhost/api/v1/system/update/status [get]
func (s *SystemController) GetUpdateStatus(c *gin.Context) {
	response := gin.H{
		"inProgress":      s.server.Orchestrator().InProgress(),
		"lastAttempt":     s.server.Orchestrator().LastAttempt(),
		"updateAvailable": false,
		"currentVersion":  "",
		"latestVersion":   "",
	}
	if info := s.server.Checker().Latest(); info != nil {
		response["updateAvailable"] = info.Available
		response["currentVersion"] = info.CurrentVersion
		response["latestVersion"] = info.LatestVersion
	}
	c.JSON(200, response)
}

// terminalEvent 把留存的更新记录折叠成一条终态事件
func terminalEvent(attempt *models.UpdateAttempt) models.UpdateEvent {
	event := models.UpdateEvent{
		UpdateID: attempt.UpdateID,
		Error:    attempt.Error,
	}
	switch attempt.Status {
	case models.AttemptSuccess:
		event.Type = models.EventComplete
		event.Message = "Update complete"
		event.Progress = 100
		event.NewVersion = attempt.ToVersion
	case models.AttemptRollback:
		event.Type = models.EventComplete
		event.Message = fmt.Sprintf("Rolled back to %s", attempt.RolledBackTo)
	default:
		event.Type = models.EventError
		event.Message = "Update failed"
	}
	return event
}
