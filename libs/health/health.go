package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
)

// Check reports whether a dependency can serve traffic.
type Check func(ctx context.Context) error

type Manager struct {
	ready   atomic.Bool
	timeout time.Duration

	mu     sync.RWMutex
	checks map[string]Check
}

func NewManager(initialReady bool) *Manager {
	m := &Manager{timeout: 2 * time.Second, checks: make(map[string]Check)}
	m.ready.Store(initialReady)
	return m
}

// AddCheck registers a dependency probe run on every readiness request.
func (m *Manager) AddCheck(name string, check Check) {
	m.mu.Lock()
	m.checks[name] = check
	m.mu.Unlock()
}

func (m *Manager) SetReady(ready bool) {
	m.ready.Store(ready)
}

func (m *Manager) IsReady() bool {
	return m.ready.Load()
}

// Run probes every registered dependency concurrently and returns the
// failures keyed by check name.
func (m *Manager) Run(ctx context.Context) map[string]string {
	m.mu.RLock()
	names := make([]string, 0, len(m.checks))
	for name := range m.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	checks := make([]Check, len(names))
	for i, name := range names {
		checks[i] = m.checks[name]
	}
	m.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	errs := make([]error, len(checks))
	var wg sync.WaitGroup
	for i, check := range checks {
		wg.Add(1)
		go func(i int, check Check) {
			defer wg.Done()
			errs[i] = check(ctx)
		}(i, check)
	}
	wg.Wait()

	failed := make(map[string]string)
	for i, err := range errs {
		if err != nil {
			failed[names[i]] = err.Error()
		}
	}
	return failed
}

func LivenessHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func ReadinessHandler(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.IsReady() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
			return
		}
		if failed := m.Run(c.Request.Context()); len(failed) > 0 {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "checks": failed})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}
}
