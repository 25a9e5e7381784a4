/*
Package main is the entry point for the agentchat gateway.

The gateway loads agent definitions from markdown files and serves a
WebSocket chat protocol in which every connection owns one chat session,
optionally running as one of the loaded agents. Sessions are backed by a
langchaingo model; agents that declare tools run with the workspace tools.

The application follows these initialization steps:
1. Load configuration from the YAML file and environment variables
2. Initialize structured logging
3. Load the agent catalog
4. Initialize the model provider, workspace tools and chat engine
5. Set up HTTP middleware and routes
6. Start the server with graceful shutdown support
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"agentchat/catalog"
	"agentchat/core"
	"agentchat/engine"
	"agentchat/tools"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

func main() {
	config, err := core.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := core.InitializeLogger(config)
	logger.Info("Starting agentchat gateway")

	agents := catalog.Load(config.AgentsDir, logger)

	workspaceDir := config.WorkspaceDir
	if workspaceDir == "" {
		if workspaceDir, err = os.Getwd(); err != nil {
			logger.WithError(err).Fatal("Failed to get working directory")
		}
	}
	workspace, err := tools.NewWorkspace(workspaceDir)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open workspace")
	}
	toolRegistry := tools.NewRegistry(workspace, logger)

	llm, err := engine.NewProviderModel(context.Background(), config.ProviderConfig(), logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize LLM")
	}

	defaultModel := config.DefaultModel
	if defaultModel == "" {
		defaultModel = config.ProviderModel
	}
	chatEngine := engine.NewLLMEngine(llm, engine.Options{
		Provider:          config.LLMProvider,
		DefaultModel:      defaultModel,
		Models:            config.Models,
		RequestTimeout:    config.RequestTimeout,
		ContextLimit:      config.ContextLimit,
		MaxIterations:     config.MaxIterations,
		LogTruncateLength: config.LogTruncateLength,
		Tools:             toolRegistry,
	}, logger)

	server := core.NewServer(config, agents, chatEngine, logger)

	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	server.RegisterRoutes(e)

	go func() {
		logger.WithField("port", config.Port).Info("Starting server")
		if err := e.Start(fmt.Sprintf(":%s", config.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// 30 seconds for sessions to wind down and requests to finish.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Failed to release sessions")
	}

	if err := e.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Failed to gracefully shutdown server")
	} else {
		logger.Info("Server shutdown complete")
	}
}
