package pool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kandev/serverpool/internal/common/appctx"
	"github.com/kandev/serverpool/internal/common/config"
	"github.com/kandev/serverpool/internal/common/logger"
	"github.com/kandev/serverpool/internal/events"
	"github.com/kandev/serverpool/internal/events/bus"
)

const (
	defaultStopTimeout     = 5 * time.Second
	defaultStopConcurrency = 8
)

// Manager creates, tracks and disposes pooled server instances.
// Each instance gets a fresh port from a monotonic allocator and its own
// HTTP server; pings on any instance are published as activity events.
type Manager struct {
	config   config.PoolConfig
	logger   *logger.Logger
	ports    *PortAllocator
	registry *Registry
	eventBus bus.EventBus
	browser  BrowserOpener

	closed   atomic.Bool
	pending  sync.WaitGroup
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewManager creates a new instance manager. eventBus may be nil, in which
// case lifecycle and activity events are only logged.
func NewManager(cfg config.PoolConfig, eventBus bus.EventBus, log *logger.Logger) *Manager {
	gin.SetMode(gin.ReleaseMode)

	m := &Manager{
		config:   cfg,
		logger:   log.WithFields(zap.String("component", "instance-manager")),
		ports:    NewPortAllocator(cfg.BasePort),
		registry: NewRegistry(),
		eventBus: eventBus,
		stopCh:   make(chan struct{}),
	}
	if cfg.OpenBrowser {
		m.browser = SystemBrowser{}
	}
	return m
}

// SetBrowserOpener replaces the browser opener used after Create.
// A nil opener disables browser launching.
func (m *Manager) SetBrowserOpener(opener BrowserOpener) {
	m.browser = opener
}

// Create allocates a port, starts a new instance on it and registers it.
// On a bind failure nothing is registered and the port stays consumed.
func (m *Manager) Create(ctx context.Context) (*CreateResponse, error) {
	if m.closed.Load() {
		return nil, ErrManagerClosed
	}

	id := uuid.New().String()
	inst, err := m.startWithRetries(id)
	if err != nil {
		m.logger.Error("failed to create instance", zap.String("instance_id", id), zap.Error(err))
		return nil, err
	}

	if !m.registry.Put(inst) {
		_ = inst.Stop(ctx)
		return nil, fmt.Errorf("instance with ID %s already exists", id)
	}

	log := m.logger.WithInstance(inst.ID, inst.Port)
	log.Info("created instance", zap.String("url", inst.URL()))
	m.publish(context.WithoutCancel(ctx), events.ServerCreated, inst)

	if m.browser != nil {
		if err := m.browser.Open(context.WithoutCancel(ctx), inst.URL()); err != nil {
			log.Warn("failed to open browser", zap.Error(err))
		}
	}

	return &CreateResponse{
		ID:   inst.ID,
		Port: inst.Port,
		URL:  inst.URL(),
	}, nil
}

// startWithRetries binds a new instance, moving on to the next port when the
// allocated one is already in use, up to BindRetries extra attempts.
func (m *Manager) startWithRetries(id string) (*Instance, error) {
	attempts := m.config.BindRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		port, err := m.ports.Allocate()
		if err != nil {
			return nil, err
		}
		inst, err := startInstance(id, m.config.BindHost, port, m.onActivity, m.logger)
		if err == nil {
			return inst, nil
		}
		lastErr = err
		if !isAddrInUse(err) {
			break
		}
		m.logger.Warn("port already in use; retrying",
			zap.String("instance_id", id),
			zap.Int("port", port),
			zap.Int("attempt", attempt+1))
	}
	return nil, lastErr
}

// onActivity is invoked by an instance for each ping it serves.
func (m *Manager) onActivity(inst *Instance) {
	m.logger.WithInstance(inst.ID, inst.Port).Debug("ping received")
	// The request context ends with the ping; subscribers run after it.
	m.publish(context.Background(), events.ServerActivity, inst)
}

func (m *Manager) publish(ctx context.Context, eventType string, inst *Instance) {
	if m.eventBus == nil {
		return
	}
	event := events.NewInstanceEvent(eventType, inst.ID, inst.Port)
	if err := m.eventBus.Publish(ctx, eventType, event); err != nil {
		m.logger.Warn("failed to publish event",
			zap.String("event_type", eventType),
			zap.String("instance_id", inst.ID),
			zap.Error(err))
	}
}

// Get returns an instance by ID.
func (m *Manager) Get(id string) (*Instance, bool) {
	return m.registry.Get(id)
}

// List returns the ids of all live instances in creation order.
func (m *Manager) List() []string {
	return m.registry.List()
}

// ListInfo returns info for all live instances in creation order.
func (m *Manager) ListInfo() []*InstanceInfo {
	instances := m.registry.Instances()
	result := make([]*InstanceInfo, 0, len(instances))
	for _, inst := range instances {
		result = append(result, inst.Info())
	}
	return result
}

// Dispose unregisters and stops an instance. Unknown ids are a no-op.
// In sync mode it returns once the listener is closed; in async mode the
// stop continues in the background. It always reports true.
func (m *Manager) Dispose(ctx context.Context, id string) bool {
	inst, ok := m.registry.Remove(id)
	if !ok {
		m.logger.Debug("dispose requested for unknown instance", zap.String("instance_id", id))
		return true
	}

	m.logger.WithInstance(inst.ID, inst.Port).Info("instance is going to dispose")

	if m.config.AsyncDispose() {
		m.background(2*m.stopTimeout(), func(bctx context.Context) {
			_ = m.stopInstance(bctx, inst)
		})
		return true
	}

	_ = m.stopInstance(ctx, inst)
	return true
}

// DisposeAll atomically drains the registry and stops every drained instance
// with bounded concurrency. It always reports true.
func (m *Manager) DisposeAll(ctx context.Context) bool {
	drained := m.registry.Clear()
	if len(drained) == 0 {
		return true
	}

	m.logger.Info("disposing all instances", zap.Int("count", len(drained)))

	if m.config.AsyncDispose() {
		batches := (len(drained) + m.stopLimit() - 1) / m.stopLimit()
		m.background(time.Duration(batches+1)*m.stopTimeout(), func(bctx context.Context) {
			m.stopAll(bctx, drained)
		})
		return true
	}

	m.stopAll(ctx, drained)
	return true
}

// Shutdown disposes every instance and waits for background stops to finish.
// Create fails with ErrManagerClosed afterwards.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.closed.Store(true)
	m.stopAll(ctx, m.registry.Clear())

	done := make(chan struct{})
	go func() {
		m.pending.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
		m.logger.Warn("shutdown deadline reached with instance stops still pending")
	}
	m.stopOnce.Do(func() { close(m.stopCh) })
	return err
}

// background runs fn on a context that outlives the caller's request but
// ends with the manager.
func (m *Manager) background(timeout time.Duration, fn func(ctx context.Context)) {
	m.pending.Add(1)
	go func() {
		defer m.pending.Done()
		ctx, cancel := appctx.Detached(m.stopCh, timeout)
		defer cancel()
		fn(ctx)
	}()
}

func (m *Manager) stopAll(ctx context.Context, instances []*Instance) {
	if len(instances) == 0 {
		return
	}

	var g errgroup.Group
	g.SetLimit(m.stopLimit())
	for _, inst := range instances {
		inst := inst
		g.Go(func() error {
			return m.stopInstance(ctx, inst)
		})
	}
	if err := g.Wait(); err != nil {
		m.logger.Warn("some instances did not stop cleanly", zap.Error(err))
	}
}

func (m *Manager) stopInstance(ctx context.Context, inst *Instance) error {
	stopCtx, cancel := context.WithTimeout(ctx, m.stopTimeout())
	defer cancel()

	log := m.logger.WithInstance(inst.ID, inst.Port)
	err := inst.Stop(stopCtx)
	if err != nil {
		log.Warn("instance stop failed", zap.Error(err))
	} else {
		log.Info("instance is disposed")
	}
	m.publish(context.WithoutCancel(ctx), events.ServerDisposed, inst)
	return err
}

func (m *Manager) stopTimeout() time.Duration {
	if d := m.config.StopTimeoutDuration(); d > 0 {
		return d
	}
	return defaultStopTimeout
}

func (m *Manager) stopLimit() int {
	if m.config.StopConcurrency > 0 {
		return m.config.StopConcurrency
	}
	return defaultStopConcurrency
}
