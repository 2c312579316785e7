package handlers

import (
	"time"

	"tavern-net/internal/engine"
	"tavern-net/internal/utils"
)

// Server holds all server dependencies, including the engine and its metrics
type Server struct {
	Engine         *engine.Engine
	Metrics        *utils.MetricsCollector
	Debug          bool
	RequestTimeout time.Duration
}

// NewServer creates a new Server instance with the given components
func NewServer(e *engine.Engine, debug bool) *Server {
	return &Server{
		Engine:         e,
		Metrics:        e.Metrics,
		Debug:          debug,
		RequestTimeout: 2 * time.Second,
	}
}
