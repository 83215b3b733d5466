package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"whatsapp-agent/backend/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"
)

// Status represents the health status of a component
type Status string

const (
	// StatusUp indicates a component is working correctly
	StatusUp Status = "up"
	// StatusDown indicates a component is not working
	StatusDown Status = "down"
	// StatusDegraded indicates a component is working but with reduced functionality
	StatusDegraded Status = "degraded"
)

const checkTimeout = 5 * time.Second

var componentStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "component_health",
	Help: "Last health check result per component: 1 up, 0.5 degraded, 0 down",
}, []string{"component"})

func (s Status) gauge() float64 {
	switch s {
	case StatusUp:
		return 1
	case StatusDegraded:
		return 0.5
	}
	return 0
}

// Component represents a system component that can be health-checked
type Component struct {
	Name        string    `json:"name"`
	Status      Status    `json:"status"`
	Description string    `json:"description,omitempty"`
	Error       string    `json:"error,omitempty"`
	LastChecked time.Time `json:"last_checked"`
}

// Check represents a health check function
type Check func(ctx context.Context) (Status, string, error)

// Checker manages health checks for the system
type Checker struct {
	checks      map[string]Check
	critical    map[string]bool
	components  map[string]*Component
	checkPeriod time.Duration
	mutex       sync.RWMutex
	log         *logger.Logger
}

// NewChecker creates a new health checker
func NewChecker(log *logger.Logger, checkPeriod time.Duration) *Checker {
	if checkPeriod <= 0 {
		checkPeriod = 30 * time.Second
	}
	return &Checker{
		checks:      make(map[string]Check),
		critical:    make(map[string]bool),
		components:  make(map[string]*Component),
		checkPeriod: checkPeriod,
		log:         log,
	}
}

// RegisterCheck registers a new health check. A down critical component makes the system unhealthy.
func (c *Checker) RegisterCheck(name string, critical bool, check Check) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.checks[name] = check
	c.critical[name] = critical
	c.components[name] = &Component{
		Name:        name,
		Status:      StatusDown,
		Description: "Not checked yet",
	}
}

// RunChecks executes all registered checks concurrently, each bounded by checkTimeout
func (c *Checker) RunChecks(ctx context.Context) {
	c.mutex.RLock()
	checks := make(map[string]Check, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mutex.RUnlock()

	var g errgroup.Group
	for name, check := range checks {
		g.Go(func() error {
			checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()
			status, description, err := check(checkCtx)
			c.record(name, status, description, err)
			return nil
		})
	}
	_ = g.Wait()
}

func (c *Checker) record(name string, status Status, description string, err error) {
	c.mutex.Lock()
	component := c.components[name]
	previous := component.Status
	component.Status = status
	component.Description = description
	component.LastChecked = time.Now()
	component.Error = ""
	if err != nil {
		component.Error = err.Error()
	}
	c.mutex.Unlock()

	componentStatus.WithLabelValues(name).Set(status.gauge())
	switch {
	case err != nil:
		c.log.Error("Health check failed", "component", name, "status", string(status), "error", err.Error())
	case status != previous:
		c.log.Info("Component status changed", "component", name, "from", string(previous), "to", string(status))
	}
}

// Start runs the checks now and then periodically until ctx is cancelled
func (c *Checker) Start(ctx context.Context) {
	go func() {
		c.RunChecks(ctx)

		ticker := time.NewTicker(c.checkPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.RunChecks(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// GetStatus returns the current health status
func (c *Checker) GetStatus() map[string]*Component {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	result := make(map[string]*Component, len(c.components))
	for k, v := range c.components {
		componentCopy := *v
		result[k] = &componentCopy
	}

	return result
}

// IsSystemHealthy returns true if all critical components are up
func (c *Checker) IsSystemHealthy() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	for name, component := range c.components {
		if component.Status == StatusDown && c.critical[name] {
			return false
		}
	}

	return true
}

// Overall summarises the components: ok, degraded or down
func (c *Checker) Overall() string {
	if !c.IsSystemHealthy() {
		return "down"
	}
	for _, component := range c.GetStatus() {
		if component.Status != StatusUp {
			return "degraded"
		}
	}
	return "ok"
}

// HTTPHandler returns an HTTP handler for health checks
func (c *Checker) HTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("refresh") == "true" {
			c.RunChecks(r.Context())
		}

		w.Header().Set("Content-Type", "application/json")
		if !c.IsSystemHealthy() {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}

		response := map[string]any{
			"status":     c.Overall(),
			"timestamp":  time.Now(),
			"components": c.GetStatus(),
		}

		if err := json.NewEncoder(w).Encode(response); err != nil {
			c.log.Error("Failed to encode health check response", "error", err.Error())
		}
	}
}

// RegisterDatabaseCheck registers a database health check. Without a configured database the
// component reports degraded rather than down.
func (c *Checker) RegisterDatabaseCheck(configured bool, ping func(ctx context.Context) error) {
	c.RegisterCheck("database", configured, func(ctx context.Context) (Status, string, error) {
		if !configured {
			return StatusDegraded, "No database configured, messages are not persisted", nil
		}
		if err := ping(ctx); err != nil {
			return StatusDown, "Database connection failed", err
		}
		return StatusUp, "Database connection is established", nil
	})
}
