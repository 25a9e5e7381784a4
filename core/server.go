package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"agentchat/catalog"
	"agentchat/engine"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// turnReporter is implemented by engines that can report busy sessions.
type turnReporter interface {
	ActiveTurns() []string
}

// Server is the HTTP surface of the gateway: the WebSocket endpoint, the
// agent and model APIs, uploads and static files.
type Server struct {
	catalog  *catalog.Catalog
	engine   engine.Engine
	registry *Registry
	router   *Router
	config   *Config
	logger   *logrus.Logger
}

// NewServer creates a server instance with all dependencies wired.
func NewServer(config *Config, cat *catalog.Catalog, eng engine.Engine, logger *logrus.Logger) *Server {
	registry := NewRegistry(logger)
	return &Server{
		catalog:  cat,
		engine:   eng,
		registry: registry,
		router:   NewRouter(config, cat, eng, registry, logger),
		config:   config,
		logger:   logger,
	}
}

func (s *Server) handleAgents(c echo.Context) error {
	return c.JSON(http.StatusOK, s.catalog.List())
}

func (s *Server) handleModels(c echo.Context) error {
	requestLogger := s.logger.WithFields(logrus.Fields{
		"endpoint": "/api/models",
		"method":   "GET",
		"clientIP": c.RealIP(),
	})

	models, err := s.engine.ListModels(c.Request().Context())
	if err != nil {
		requestLogger.WithError(err).Error("Failed to fetch models")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to fetch models"})
	}
	return c.JSON(http.StatusOK, models)
}

func (s *Server) handleUpload(c echo.Context) error {
	requestLogger := s.logger.WithFields(logrus.Fields{
		"endpoint": "/upload",
		"method":   "POST",
		"clientIP": c.RealIP(),
	})

	fileHeader, err := c.FormFile("file")
	if err != nil {
		requestLogger.WithError(err).Warn("Upload without file")
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "No file uploaded"})
	}
	if s.config.MaxUploadBytes > 0 && fileHeader.Size > s.config.MaxUploadBytes {
		requestLogger.WithField("size", fileHeader.Size).Warn("Upload too large")
		return c.JSON(http.StatusRequestEntityTooLarge, map[string]string{"error": "File too large"})
	}

	src, err := fileHeader.Open()
	if err != nil {
		requestLogger.WithError(err).Error("Failed to open uploaded file")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to store file"})
	}
	defer src.Close()

	path, err := s.storeUpload(src)
	if err != nil {
		requestLogger.WithError(err).Error("Failed to store uploaded file")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to store file"})
	}

	requestLogger.WithFields(logrus.Fields{
		"name": fileHeader.Filename,
		"size": fileHeader.Size,
		"path": path,
	}).Info("File uploaded")

	return c.JSON(http.StatusOK, UploadResponse{Path: path, Name: fileHeader.Filename})
}

// storeUpload copies src into the upload directory under a random name and
// returns its absolute path.
func (s *Server) storeUpload(src io.Reader) (string, error) {
	dir, err := filepath.Abs(s.config.UploadDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve upload directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create upload directory: %w", err)
	}

	path := filepath.Join(dir, uuid.NewString())
	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to close %s: %w", path, err)
	}
	return path, nil
}

func (s *Server) handleStatus(c echo.Context) error {
	s.logger.WithFields(logrus.Fields{
		"endpoint": "/status",
		"method":   "GET",
		"clientIP": c.RealIP(),
	}).Debug("Health check requested")

	activeTurns := []string{}
	if reporter, ok := s.engine.(turnReporter); ok {
		activeTurns = reporter.ActiveTurns()
	}

	return c.JSON(http.StatusOK, StatusResponse{
		Status:      "healthy",
		Sessions:    s.registry.Stats(),
		Agents:      s.catalog.Len(),
		ActiveTurns: activeTurns,
	})
}

// handleRoot serves WebSocket upgrades on / and the web client otherwise.
func (s *Server) handleRoot(c echo.Context) error {
	if websocket.IsWebSocketUpgrade(c.Request()) {
		return s.router.HandleWebSocket(c)
	}
	return c.File(filepath.Join(s.config.StaticDir, "index.html"))
}

// RegisterRoutes registers all HTTP routes for the server
func (s *Server) RegisterRoutes(e *echo.Echo) {
	s.logger.Info("Registering routes")

	// API routes
	e.GET("/api/agents", s.handleAgents)
	e.GET("/api/models", s.handleModels)
	e.POST("/upload", s.handleUpload)
	e.GET("/status", s.handleStatus)

	// WebSocket
	e.GET("/ws", s.router.HandleWebSocket)
	e.GET("/", s.handleRoot)

	// Serve static files
	e.Static("/", s.config.StaticDir)
	s.logger.Info("Routes registered successfully")
}

// Shutdown destroys all live sessions, stops the engine and removes the
// upload directory. It does not stop the HTTP listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.router.ShutdownAll(ctx)

	var errs []error
	if err := s.engine.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop engine: %w", err))
	}

	if s.config.UploadDir != "" {
		if err := os.RemoveAll(s.config.UploadDir); err != nil {
			errs = append(errs, fmt.Errorf("failed to remove upload directory: %w", err))
		} else {
			s.logger.WithField("uploadDir", s.config.UploadDir).Info("Upload directory removed")
		}
	}

	return errors.Join(errs...)
}
