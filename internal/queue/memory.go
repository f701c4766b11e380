package queue

import (
	"container/heap"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// priorityHeap orders jobs by priority (higher first) then scheduled_for
// (earlier first).
type priorityHeap struct {
	jobs []*Job
}

func (pq *priorityHeap) Len() int { return len(pq.jobs) }

func (pq *priorityHeap) Less(i, j int) bool {
	pi, pj := priorityOf(pq.jobs[i]), priorityOf(pq.jobs[j])
	if pi == pj {
		return pq.jobs[i].ScheduledFor.Before(pq.jobs[j].ScheduledFor)
	}
	return pi > pj
}

func (pq *priorityHeap) Swap(i, j int) { pq.jobs[i], pq.jobs[j] = pq.jobs[j], pq.jobs[i] }

func (pq *priorityHeap) Push(x interface{}) { pq.jobs = append(pq.jobs, x.(*Job)) }

func (pq *priorityHeap) Pop() interface{} {
	old := pq.jobs
	n := len(old)
	job := old[n-1]
	pq.jobs = old[:n-1]
	return job
}

func priorityOf(j *Job) int {
	if j.Priority == nil {
		return 0
	}
	return *j.Priority
}

// MemoryClient is a non-durable, in-process Client used by tests.
type MemoryClient struct {
	mu        sync.Mutex
	pending   *priorityHeap
	jobs      map[string]*Job
	completed map[string]*CompletedJob
	closed    bool
}

// NewMemoryClient creates an empty in-memory queue client.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		pending:   &priorityHeap{},
		jobs:      make(map[string]*Job),
		completed: make(map[string]*CompletedJob),
	}
}

func (m *MemoryClient) Push(ctx context.Context, job *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("queue closed")
	}
	m.jobs[job.ID] = job
	if !job.Running && job.Suspend == 0 && !job.ScheduledFor.After(time.Now()) {
		heap.Push(m.pending, job)
	}
	return nil
}

func (m *MemoryClient) Pull(ctx context.Context, workerName string, tags []string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, fmt.Errorf("queue closed")
	}

	now := time.Now()
	var picked *Job
	var rest []*Job
	for m.pending.Len() > 0 {
		candidate := heap.Pop(m.pending).(*Job)
		if candidate.Running || candidate.Suspend != 0 || candidate.ScheduledFor.After(now) {
			continue
		}
		if !tagMatches(candidate.Tag, tags) {
			rest = append(rest, candidate)
			continue
		}
		picked = candidate
		break
	}
	for _, r := range rest {
		heap.Push(m.pending, r)
	}
	if picked == nil {
		return nil, nil
	}

	picked.Running = true
	picked.Worker = &workerName
	pingAt := now
	picked.LastPing = &pingAt
	return picked, nil
}

func tagMatches(tag string, tags []string) bool {
	if len(tags) == 0 {
		return true
	}
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

func (m *MemoryClient) Ping(ctx context.Context, workerName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for _, j := range m.jobs {
		if j.Running && j.Worker != nil && *j.Worker == workerName {
			j.LastPing = &now
		}
	}
	return nil
}

func (m *MemoryClient) IsCanceled(ctx context.Context, jobID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return false, fmt.Errorf("job not found: %s", jobID)
	}
	return job.Canceled, nil
}

func (m *MemoryClient) Cancel(ctx context.Context, jobID, reason, canceledBy string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return fmt.Errorf("job not found: %s", jobID)
	}
	job.Canceled = true
	job.CanceledReason = &reason
	job.CanceledBy = &canceledBy
	return nil
}

func (m *MemoryClient) Complete(ctx context.Context, job *Job, success bool, result json.RawMessage, logs string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.jobs, job.ID)
	m.completed[job.ID] = &CompletedJob{
		Job:        *job,
		Success:    success,
		Result:     result,
		DurationMS: 0,
	}
	m.completed[job.ID].Logs = logs
	return nil
}

func (m *MemoryClient) Get(ctx context.Context, jobID string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("job not found: %s", jobID)
	}
	jobCopy := *job
	return &jobCopy, nil
}

func (m *MemoryClient) UpdateFlowStatus(ctx context.Context, jobID string, status json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return fmt.Errorf("job not found: %s", jobID)
	}
	job.FlowStatus = status
	return nil
}

func (m *MemoryClient) AppendLogs(ctx context.Context, jobID, chunk string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return 0, fmt.Errorf("job not found: %s", jobID)
	}
	job.Logs += chunk
	return len(job.Logs), nil
}

func (m *MemoryClient) CountRunning(ctx context.Context, concurrencyKey string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, j := range m.jobs {
		if j.Running && j.Tag == concurrencyKey {
			count++
		}
	}
	return count, nil
}

func (m *MemoryClient) ListZombies(ctx context.Context, cutoff time.Time) ([]*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var zombies []*Job
	for _, j := range m.jobs {
		if j.Running && j.LastPing != nil && j.LastPing.Before(cutoff) {
			jobCopy := *j
			zombies = append(zombies, &jobCopy)
		}
	}
	return zombies, nil
}

func (m *MemoryClient) ReleaseZombie(ctx context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return fmt.Errorf("job not found: %s", jobID)
	}
	job.Running = false
	job.Worker = nil
	if !job.ScheduledFor.After(time.Now()) && job.Suspend == 0 {
		heap.Push(m.pending, job)
	}
	return nil
}

func (m *MemoryClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
