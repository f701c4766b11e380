package supervisor

import (
	"context"
	"strings"
	"sync"
	"time"
)

// logAccumulator batches lines arriving within a flush window into a single
// AppendLogs write, serialized so the DB always reflects a prefix of the
// child's total output.
type logAccumulator struct {
	writer     LogWriter
	jobID      string
	maxSize    int
	flushEvery time.Duration

	mu      sync.Mutex
	pending strings.Builder
	total   int
	full    bool
}

func newLogAccumulator(writer LogWriter, jobID string, maxSize int, flushEvery time.Duration) *logAccumulator {
	return &logAccumulator{
		writer:     writer,
		jobID:      jobID,
		maxSize:    maxSize,
		flushEvery: flushEvery,
	}
}

// add appends line to the pending batch, truncating (and marking full) if it
// would overflow maxSize. Returns true if the limit was hit by this line.
func (a *logAccumulator) add(line string) (overflowed bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.full {
		return true
	}

	remaining := a.maxSize - a.total - a.pending.Len()
	if remaining <= 0 {
		a.full = true
		a.pending.WriteString("\n...killing job\n")
		return true
	}
	if len(line) > remaining {
		line = line[:remaining]
		a.full = true
	}
	a.pending.WriteString(line)
	a.pending.WriteString("\n")
	if a.full {
		a.pending.WriteString("...killing job\n")
	}
	return a.full
}

// flush writes any buffered lines out via AppendLogs and clears the batch.
// It is the caller's responsibility to ensure only one flush is in flight
// at a time (run run() is single-goroutine, so this is naturally satisfied).
func (a *logAccumulator) flush(ctx context.Context) error {
	a.mu.Lock()
	chunk := a.pending.String()
	a.pending.Reset()
	a.mu.Unlock()

	if chunk == "" {
		return nil
	}
	n, err := a.writer.AppendLogs(ctx, a.jobID, chunk)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.total = n
	a.mu.Unlock()
	return nil
}

// run drains lines until closed, flushing on a flushEvery cadence (and once
// more after the channel closes), signaling overflow to overflowCh exactly
// once.
func (a *logAccumulator) run(ctx context.Context, lines <-chan string, overflowCh chan<- struct{}) {
	ticker := time.NewTicker(a.flushEvery)
	defer ticker.Stop()

	overflowSignaled := false
	signalOverflow := func() {
		if !overflowSignaled {
			overflowSignaled = true
			select {
			case overflowCh <- struct{}{}:
			default:
			}
		}
	}

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				_ = a.flush(ctx)
				return
			}
			if a.add(line) {
				_ = a.flush(ctx)
				signalOverflow()
				continue
			}
		case <-ticker.C:
			_ = a.flush(ctx)
		case <-ctx.Done():
			_ = a.flush(ctx)
			return
		}
	}
}
