// Package server wires the gateway together: HTTP API, realtime channel,
// terminal multiplexer, and the authentication stack.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"arcane/pkg/auth"
	"arcane/pkg/config"
	"arcane/pkg/health"
	"arcane/pkg/middleware"
	"arcane/pkg/realtime"
	"arcane/pkg/session"
	"arcane/pkg/storage"
	"arcane/pkg/terminal"

	"github.com/gin-gonic/gin"
)

// Server is the gateway instance
type Server struct {
	cfg      *config.ServerConfig
	rootDir  string
	store    storage.Store
	backend  auth.Backend
	sessions *session.Manager
	mux      *terminal.Multiplexer
	gate     *realtime.Gate
	monitor  *health.Monitor

	// static registration list; plugin discovery is not a runtime concern
	plugins []string

	bmu     sync.Mutex
	bridges map[*realtime.Conn]*termBridge

	engine     *gin.Engine
	httpServer *http.Server
}

// NewServer creates a fully wired gateway from configuration
func NewServer(cfg *config.ServerConfig) (*Server, error) {
	rootDir, err := filepath.Abs(cfg.RootDir)
	if err != nil {
		return nil, fmt.Errorf("invalid root directory: %w", err)
	}

	store, err := storage.NewStore(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	backend, err := auth.NewBackend(cfg.Auth, store)
	if err != nil {
		store.Close()
		return nil, err
	}

	sessions := session.NewManager(store,
		time.Duration(cfg.Session.TimeoutSeconds)*time.Second,
		time.Duration(cfg.Session.SweepSeconds)*time.Second,
	)

	s := &Server{
		cfg:      cfg,
		rootDir:  rootDir,
		store:    store,
		backend:  backend,
		sessions: sessions,
		mux:      terminal.New(cfg.Terminal),
		gate:     realtime.NewGate(sessions),
		monitor:  health.NewMonitor(rootDir),
		plugins:  []string{"edit"},
		bridges:  make(map[*realtime.Conn]*termBridge),
	}

	s.registerRealtime()
	s.engine = s.setupRouter()
	s.httpServer = &http.Server{
		Addr:    cfg.Address,
		Handler: s.engine,
	}

	return s, nil
}

// setupRouter builds the gin engine with all routes
func (s *Server) setupRouter() *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestID())
	engine.Use(middleware.RequestLogging())

	api := engine.Group("/api")
	{
		api.POST("/login", s.handleLogin)
		api.POST("/reauth", s.requireSession(false), s.handleReauth)
		api.POST("/logout", s.requireSession(true), s.handleLogout)
		api.GET("/apps", s.requireSession(true), s.handleApps)
		api.GET("/health", s.handleHealth)

		api.GET("/dir", s.requireSession(true), s.handleDir)
		api.GET("/file/:name", s.requireSession(true), s.handleFile)
		api.POST("/save/:name", s.requireSession(true), s.handleSave)
		api.POST("/newFile/:name", s.requireSession(true), s.handleNewFile)
		api.POST("/newDir", s.requireSession(true), s.handleNewDir)
		api.POST("/delete", s.requireSession(true), s.handleDelete)

		api.GET("/edit/newterminal", s.requireSession(true), s.handleNewTerminal)
		api.GET("/edit/openterminals", s.requireSession(true), s.handleOpenTerminals)
	}

	engine.GET("/ws", gin.WrapF(s.gate.HandleWS))

	// serve the browser frontend when present
	if info, err := os.Stat(s.cfg.WebDir); err == nil && info.IsDir() {
		engine.Static("/app", s.cfg.WebDir)
	}

	return engine
}

// Start begins serving. Blocks until the listener stops.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the gateway: listener first, then terminals,
// session sweep, and the store.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)

	s.mux.Shutdown()
	s.sessions.Close()

	if cerr := s.store.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
