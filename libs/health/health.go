package health

import (
	"net/http"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

// Manager tracks readiness for one service. Liveness is unconditional;
// readiness flips off during startup and shutdown so load balancers drain
// before the listener closes.
type Manager struct {
	service string
	ready   atomic.Bool
}

func NewManager(service string, initialReady bool) *Manager {
	m := &Manager{service: service}
	m.ready.Store(initialReady)
	return m
}

func (m *Manager) SetReady(ready bool) {
	m.ready.Store(ready)
}

func (m *Manager) IsReady() bool {
	return m.ready.Load()
}

func (m *Manager) LivenessHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": m.service})
}

func (m *Manager) ReadinessHandler(c *gin.Context) {
	if m.IsReady() {
		c.JSON(http.StatusOK, gin.H{"status": "ready", "service": m.service})
		return
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "service": m.service})
}
