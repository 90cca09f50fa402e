package main

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"i4.energy/across/atbridge/modem"
	"i4.energy/across/atbridge/store"
)

// Server handles incoming HTTP requests for running AT commands on the
// configured router and managing its connection settings
type Server struct {
	Logger *slog.Logger
	App    *App

	router *gin.Engine
}

// NewServer creates the server and registers its routes
func NewServer(app *App, logger *slog.Logger) *Server {
	s := &Server{
		Logger: logger,
		App:    app,
		router: gin.New(),
	}
	s.router.Use(gin.Recovery(), s.logRequests)

	s.router.GET("/cgi-bin/get_atcommand", s.handleGetATCommand)
	s.router.GET("/cgi-bin/remote_config", s.handleGetConfig)
	s.router.POST("/cgi-bin/remote_config", s.handleUpdateConfig)
	s.router.GET("/cgi-bin/remote_status", s.handleStatus)

	api := s.router.Group("/api/v1")
	{
		api.POST("/at", s.handleAT)
	}

	if app.Config.WWWRoot != "" {
		s.serveFiles(app.Config.WWWRoot)
	}

	return s
}

// ServeHTTP implements the http.Handler interface for the Server struct
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// serveFiles answers GET and HEAD requests no route claims from root, so the
// web UI and the cgi-bin API share one origin.
func (s *Server) serveFiles(root string) {
	files := http.FileServer(http.Dir(root))
	s.router.NoRoute(func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			s.sendError(c, "Not found", http.StatusNotFound)
			return
		}
		files.ServeHTTP(c.Writer, c.Request)
	})
}

func (s *Server) logRequests(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.Logger.Debug("HTTP request",
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"status", c.Writer.Status(),
		"duration", time.Since(start),
	)
}

func (s *Server) sendError(c *gin.Context, message string, statusCode int) {
	c.JSON(statusCode, gin.H{
		"success": false,
		"message": message,
	})
}

// statusFor maps executor errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, modem.ErrConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, modem.ErrConnection), errors.Is(err, modem.ErrExecution), errors.Is(err, modem.ErrHealthCheck):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// parseSeconds reads an optional timeout in seconds. Empty means zero.
func parseSeconds(value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	secs, err := strconv.ParseFloat(value, 64)
	if err != nil || secs < 0 {
		return 0, errors.New("timeout must be a non-negative number of seconds")
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// handleGetATCommand runs the chain in the atcmd query parameter and answers
// with the combined modem output as plain text
func (s *Server) handleGetATCommand(c *gin.Context) {
	command := c.Query("atcmd")
	if strings.TrimSpace(command) == "" {
		s.sendError(c, "the 'atcmd' parameter is required", http.StatusBadRequest)
		return
	}

	timeout, err := parseSeconds(c.Query("timeout"))
	if err != nil {
		s.sendError(c, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := s.App.Run(c.Request.Context(), command, timeout)
	if err != nil {
		s.Logger.Error("Failed to run AT command", "error", err)
		s.sendError(c, err.Error(), statusFor(err))
		return
	}

	if result.Aborted {
		var parts []string
		for _, part := range []string{result.Stdout, result.Stderr} {
			if part != "" {
				parts = append(parts, part)
			}
		}
		c.String(http.StatusBadGateway, strings.Join(parts, "\n\n"))
		return
	}
	c.String(http.StatusOK, result.Stdout)
}

// handleAT runs a chain and answers with the structured result
func (s *Server) handleAT(c *gin.Context) {
	type ATRequest struct {
		Command string  `json:"command" binding:"required"`
		Timeout float64 `json:"timeout"`
	}

	var req ATRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.sendError(c, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Timeout < 0 {
		s.sendError(c, "timeout must be a non-negative number of seconds", http.StatusBadRequest)
		return
	}

	result, err := s.App.Run(c.Request.Context(), req.Command, time.Duration(req.Timeout*float64(time.Second)))
	if err != nil {
		s.Logger.Error("Failed to run AT command", "error", err)
		s.sendError(c, err.Error(), statusFor(err))
		return
	}

	type ATResponse struct {
		Success bool `json:"success"`
		modem.ChainResult
	}
	c.JSON(http.StatusOK, ATResponse{
		Success:     !result.Aborted,
		ChainResult: result,
	})
}

func (s *Server) handleGetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"config":  s.App.Store.Load(),
	})
}

// handleUpdateConfig applies a partial settings update. A password of "***"
// or "" keeps the stored one.
func (s *Server) handleUpdateConfig(c *gin.Context) {
	var patch store.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		s.sendError(c, err.Error(), http.StatusBadRequest)
		return
	}

	settings, err := s.App.Store.Update(patch)
	if err != nil {
		s.Logger.Error("Failed to save settings", "error", err)
		s.sendError(c, err.Error(), statusFor(err))
		return
	}

	s.Logger.Info("Settings updated", "settings", settings)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Configuration saved.",
		"config":  settings,
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	timeout, err := parseSeconds(c.Query("timeout"))
	if err != nil {
		s.sendError(c, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.App.Ping(c.Request.Context(), timeout); err != nil {
		s.Logger.Warn("Router health check failed", "error", err)
		s.sendError(c, err.Error(), statusFor(err))
		return
	}

	target := s.App.Store.Load().Target()
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"message":   "Connected to " + target.Host + ".",
		"interface": target.Interface,
	})
}
