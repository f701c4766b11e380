package events

import "time"

// EventEmitter implements Emitter by publishing onto an EventPublisher
// (normally the EventBus) asynchronously.
type EventEmitter struct {
	bus    EventPublisher
	source string
}

// NewEventEmitter creates a new event emitter.
func NewEventEmitter(bus EventPublisher, source string) *EventEmitter {
	return &EventEmitter{
		bus:    bus,
		source: source,
	}
}

func (e *EventEmitter) emit(t EventType, jobID string, data map[string]interface{}) {
	e.bus.PublishAsync(Event{
		Type:   t,
		Source: e.source,
		JobID:  jobID,
		Data:   data,
	})
}

func (e *EventEmitter) EmitWorkerStarted(workerID int) {
	e.emit(EventWorkerStarted, "", map[string]interface{}{"worker_id": workerID})
}

func (e *EventEmitter) EmitWorkerStopped(workerID int) {
	e.emit(EventWorkerStopped, "", map[string]interface{}{"worker_id": workerID})
}

func (e *EventEmitter) EmitJobQueued(jobID string, priority int) {
	e.emit(EventJobQueued, jobID, map[string]interface{}{"priority": priority})
}

func (e *EventEmitter) EmitJobStarted(jobID string, workerID int) {
	e.emit(EventJobStarted, jobID, map[string]interface{}{"worker_id": workerID})
}

func (e *EventEmitter) EmitJobCompleted(jobID string, workerID int, duration time.Duration) {
	e.emit(EventJobCompleted, jobID, map[string]interface{}{
		"worker_id": workerID,
		"duration":  duration.String(),
	})
}

func (e *EventEmitter) EmitJobFailed(jobID string, workerID int, errMsg string) {
	e.emit(EventJobFailed, jobID, map[string]interface{}{
		"worker_id": workerID,
		"error":     errMsg,
	})
}

func (e *EventEmitter) EmitJobCancelled(jobID, reason string) {
	e.emit(EventJobCancelled, jobID, map[string]interface{}{"reason": reason})
}

func (e *EventEmitter) EmitPoolStarted(totalWorkers int) {
	e.emit(EventPoolStarted, "", map[string]interface{}{"total_workers": totalWorkers})
}

func (e *EventEmitter) EmitPoolStopped(totalWorkers int) {
	e.emit(EventPoolStopped, "", map[string]interface{}{"total_workers": totalWorkers})
}

func (e *EventEmitter) EmitPoolScaled(direction string, totalWorkers int) {
	e.emit(EventPoolScaled, "", map[string]interface{}{
		"direction":     direction,
		"total_workers": totalWorkers,
	})
}

func (e *EventEmitter) EmitFlowStepAdvanced(flowJobID string, step int, moduleID string) {
	e.emit(EventFlowStepAdvanced, flowJobID, map[string]interface{}{
		"step":      step,
		"module_id": moduleID,
	})
}

func (e *EventEmitter) EmitFlowSuspended(flowJobID, moduleID string) {
	e.emit(EventFlowSuspended, flowJobID, map[string]interface{}{"module_id": moduleID})
}

func (e *EventEmitter) EmitFlowResumed(flowJobID, moduleID string) {
	e.emit(EventFlowResumed, flowJobID, map[string]interface{}{"module_id": moduleID})
}

func (e *EventEmitter) EmitFlowCompleted(flowJobID string, success bool) {
	e.emit(EventFlowCompleted, flowJobID, map[string]interface{}{"success": success})
}

func (e *EventEmitter) EmitZombieReclaimed(jobID string) {
	e.emit(EventZombieReclaimed, jobID, nil)
}

func (e *EventEmitter) EmitZombieKilled(jobID, reason string) {
	e.emit(EventZombieKilled, jobID, map[string]interface{}{"reason": reason})
}

func (e *EventEmitter) EmitSystemStarted(component string) {
	e.emit(EventSystemStarted, "", map[string]interface{}{"component": component})
}

func (e *EventEmitter) EmitSystemStopped(component string) {
	e.emit(EventSystemStopped, "", map[string]interface{}{"component": component})
}

func (e *EventEmitter) EmitError(component string, err error) {
	e.emit(EventError, "", map[string]interface{}{
		"component": component,
		"error":     err.Error(),
	})
}
