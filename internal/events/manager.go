package events

import "github.com/windmill-labs/windmill-worker/pkg/logger"

// Manager wires the event bus to the standard set of handlers (logging,
// in-process metrics, failure-rate alerting).
type Manager struct {
	bus            *EventBus
	loggerHandler  *LoggerHandler
	metricsHandler *MetricsHandler
	alertHandler   *AlertHandler
}

// Config configures the event manager.
type Config struct {
	BufferSize     int  `yaml:"buffer_size" json:"buffer_size"`
	EnableLogging  bool `yaml:"enable_logging" json:"enable_logging"`
	EnableMetrics  bool `yaml:"enable_metrics" json:"enable_metrics"`
	EnableAlerts   bool `yaml:"enable_alerts" json:"enable_alerts"`
	AlertThreshold int  `yaml:"alert_threshold" json:"alert_threshold"`
}

func DefaultConfig() *Config {
	return &Config{
		BufferSize:     1000,
		EnableLogging:  true,
		EnableMetrics:  true,
		EnableAlerts:   true,
		AlertThreshold: 10,
	}
}

// NewManager creates a new event manager and subscribes its handlers.
func NewManager(config *Config) *Manager {
	bus := NewEventBus(config.BufferSize)

	manager := &Manager{bus: bus}

	if config.EnableLogging {
		manager.loggerHandler = NewLoggerHandler("info")
		for _, t := range []EventType{
			EventJobQueued, EventJobStarted, EventJobCompleted, EventJobFailed, EventJobCancelled,
			EventFlowStepAdvanced, EventFlowSuspended, EventFlowResumed, EventFlowCompleted,
			EventZombieReclaimed, EventZombieKilled, EventError,
		} {
			bus.Subscribe(t, manager.loggerHandler)
		}
	}

	if config.EnableMetrics {
		manager.metricsHandler = NewMetricsHandler()
		eventTypes := []EventType{
			EventWorkerStarted, EventWorkerStopped,
			EventJobQueued, EventJobStarted, EventJobCompleted, EventJobFailed, EventJobCancelled,
			EventPoolStarted, EventPoolStopped, EventPoolScaled,
			EventFlowStepAdvanced, EventFlowSuspended, EventFlowResumed, EventFlowCompleted,
			EventZombieReclaimed, EventZombieKilled,
			EventSystemStarted, EventSystemStopped, EventError,
		}
		for _, eventType := range eventTypes {
			bus.Subscribe(eventType, manager.metricsHandler)
		}
	}

	if config.EnableAlerts {
		manager.alertHandler = NewAlertHandler(config.AlertThreshold)
		for _, t := range []EventType{EventJobFailed, EventError, EventZombieKilled, EventJobCompleted} {
			bus.Subscribe(t, manager.alertHandler)
		}
	}

	logger.Default().InfoFields("event manager initialized", logger.Fields{
		"buffer_size": config.BufferSize,
		"logging":     config.EnableLogging,
		"metrics":     config.EnableMetrics,
		"alerts":      config.EnableAlerts,
	})

	return manager
}

// GetBus returns the event bus.
func (m *Manager) GetBus() *EventBus {
	return m.bus
}

// GetEmitter creates a new event emitter scoped to source.
func (m *Manager) GetEmitter(source string) *EventEmitter {
	return NewEventEmitter(m.bus, source)
}

// GetMetrics returns system metrics.
func (m *Manager) GetMetrics() map[string]interface{} {
	metrics := make(map[string]interface{})
	metrics["bus"] = m.bus.GetStats()
	if m.metricsHandler != nil {
		metrics["events"] = m.metricsHandler.GetMetrics()
	}
	return metrics
}

// AddHandler adds a custom event handler.
func (m *Manager) AddHandler(eventType EventType, handler EventHandler) error {
	return m.bus.Subscribe(eventType, handler)
}

// RemoveHandler removes an event handler.
func (m *Manager) RemoveHandler(eventType EventType, handler EventHandler) error {
	return m.bus.Unsubscribe(eventType, handler)
}

// Close shuts down the event manager.
func (m *Manager) Close() error {
	logger.Default().Info("shutting down event manager")
	return m.bus.Close()
}

// Health checks the health of the event system.
func (m *Manager) Health() map[string]interface{} {
	stats := m.bus.GetStats()

	health := map[string]interface{}{
		"status": "healthy",
		"stats":  stats,
	}

	bufferSize := stats["buffer_size"].(int)
	queuedEvents := stats["queued_events"].(int)

	if queuedEvents > bufferSize*8/10 {
		health["status"] = "warning"
		health["warning"] = "event buffer is getting full"
	}
	if queuedEvents >= bufferSize {
		health["status"] = "critical"
		health["error"] = "event buffer is full"
	}

	return health
}
