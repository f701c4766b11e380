package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/windmill-labs/windmill-worker/pkg/logger"
)

// LoggerHandler logs all events through the structured logger.
type LoggerHandler struct {
	logLevel string
}

func NewLoggerHandler(logLevel string) *LoggerHandler {
	return &LoggerHandler{logLevel: logLevel}
}

func (h *LoggerHandler) Handle(event Event) error {
	logger.Default().InfoFields("event occurred", logger.Fields{
		"event_type": string(event.Type),
		"event_id":   event.ID,
		"source":     event.Source,
		"job_id":     event.JobID,
		"timestamp":  event.Timestamp,
		"data":       event.Data,
	})
	return nil
}

func (h *LoggerHandler) CanHandle(eventType EventType) bool {
	return true
}

// MetricsHandler tracks coarse event counters in-process, independent of
// the Prometheus registry (exposed through Manager.GetMetrics).
type MetricsHandler struct {
	eventCounts map[EventType]int64
	errorCounts map[EventType]int64
	lastSeen    map[EventType]time.Time
}

func NewMetricsHandler() *MetricsHandler {
	return &MetricsHandler{
		eventCounts: make(map[EventType]int64),
		errorCounts: make(map[EventType]int64),
		lastSeen:    make(map[EventType]time.Time),
	}
}

func (h *MetricsHandler) Handle(event Event) error {
	h.eventCounts[event.Type]++
	h.lastSeen[event.Type] = event.Timestamp

	if event.Type == EventJobFailed || event.Type == EventError || event.Type == EventZombieKilled {
		h.errorCounts[event.Type]++
	}

	return nil
}

func (h *MetricsHandler) CanHandle(eventType EventType) bool {
	return true
}

func (h *MetricsHandler) GetMetrics() map[string]interface{} {
	return map[string]interface{}{
		"event_counts": h.eventCounts,
		"error_counts": h.errorCounts,
		"last_seen":    h.lastSeen,
	}
}

// AlertHandler raises an alert once the failure count crosses a threshold
// (then resets the count to zero); each successful job completion lowers
// the count by one.
type AlertHandler struct {
	alertThreshold int
	errorCount     int
}

func NewAlertHandler(threshold int) *AlertHandler {
	return &AlertHandler{alertThreshold: threshold}
}

func (h *AlertHandler) Handle(event Event) error {
	switch event.Type {
	case EventJobFailed, EventError, EventZombieKilled:
		h.errorCount++
		if h.errorCount >= h.alertThreshold {
			logger.Default().ErrorFields("high job failure rate detected", logger.Fields{
				"error_count":  h.errorCount,
				"threshold":    h.alertThreshold,
				"latest_event": event.ID,
			})
			h.errorCount = 0
		}

	case EventJobCompleted:
		if h.errorCount > 0 {
			h.errorCount--
		}
	}

	return nil
}

func (h *AlertHandler) CanHandle(eventType EventType) bool {
	return eventType == EventJobFailed ||
		eventType == EventError ||
		eventType == EventZombieKilled ||
		eventType == EventJobCompleted
}

// JSONHandler renders every event as a JSON line through an arbitrary sink.
type JSONHandler struct {
	output func(string) error
}

func NewJSONHandler(outputFunc func(string) error) *JSONHandler {
	return &JSONHandler{output: outputFunc}
}

func (h *JSONHandler) Handle(event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return h.output(string(data))
}

func (h *JSONHandler) CanHandle(eventType EventType) bool {
	return true
}
