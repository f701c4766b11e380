package supervisor

import (
	"bufio"
	"context"
	"io"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/windmill-labs/windmill-worker/internal/werr"
	"github.com/windmill-labs/windmill-worker/pkg/logger"
)

// Supervisor runs a spawned child to completion under the three
// co-operating conditions: timeout, cancellation, log limit.
type Supervisor struct {
	logs   LogWriter
	cancel CancelChecker
	log    logger.Logger
}

// New builds a Supervisor around the queue client's log/cancel surfaces.
func New(logs LogWriter, cancel CancelChecker) *Supervisor {
	return &Supervisor{logs: logs, cancel: cancel, log: logger.Default().WithComponent("supervisor")}
}

// Supervise runs proc to completion, merging its stdout/stderr into the
// job's logs column and killing it the moment any of timeout, cancellation,
// or the log-size limit fires (step 5's "kill-reason" outcome).
func (s *Supervisor) Supervise(ctx context.Context, proc childProcess, opts Options) (*Result, error) {
	start := time.Now()
	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	flushWindow := opts.FlushWindow
	if flushWindow <= 0 {
		flushWindow = 500 * time.Millisecond
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	lines := make(chan string, 64)
	overflowCh := make(chan struct{}, 1)
	killCh := make(chan KillReason, 1)
	doneCh := make(chan error, 1)

	var wg sync.WaitGroup
	wg.Add(2)
	go mergeReader(proc.Stdout(), lines, &wg)
	go mergeReader(proc.Stderr(), lines, &wg)
	go func() {
		wg.Wait()
		close(lines)
	}()

	accum := newLogAccumulator(s.logs, opts.JobID, opts.MaxLogSize, flushWindow)
	go accum.run(runCtx, lines, overflowCh)

	go func() {
		select {
		case <-overflowCh:
			select {
			case killCh <- KillTooManyLogs:
			default:
			}
		case <-runCtx.Done():
		}
	}()

	go s.pollCancel(runCtx, opts.JobID, pollInterval, killCh)

	if opts.Timeout > 0 {
		go s.watchTimeout(runCtx, opts.JobID, opts.Timeout, killCh)
	}

	go func() {
		doneCh <- proc.Wait()
	}()

	var reason KillReason
	var waitErr error

	select {
	case reason = <-killCh:
		s.log.Info("killing supervised child", "job_id", opts.JobID, "reason", string(reason))
		_ = proc.Kill()
		waitErr = <-doneCh
	case waitErr = <-doneCh:
		reason = KillNone
	}

	cancelRun()
	<-runCtx.Done()
	// Give the accumulator a moment to drain whatever is left in lines.
	time.Sleep(5 * time.Millisecond)
	_ = accum.flush(context.Background())

	result := &Result{
		KillReason: reason,
		Duration:   time.Since(start),
	}

	if reason != KillNone {
		result.Signaled = true
		return result, werr.Killed(string(reason))
	}

	if waitErr == nil {
		result.ExitCode = 0
		return result, nil
	}

	if exitErr, ok := waitErr.(interface{ ExitCode() int }); ok {
		code := exitErr.ExitCode()
		if code == -1 {
			result.Signaled = true
			return result, werr.TerminatedBySignal()
		}
		result.ExitCode = code
		return result, werr.ExitStatus(code)
	}

	return result, werr.Execution("child wait failed", waitErr)
}

// mergeReader scans proc's pipe line-by-line, feeding the shared lines
// channel until EOF (step 1's "merge stdout and stderr line-by-line").
func mergeReader(r io.Reader, lines chan<- string, wg *sync.WaitGroup) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines <- scanner.Text()
	}
}

// pollCancel rate-limits a SELECT canceled poll to once per interval,
// signaling killCh the moment the row is observed canceled (step 3).
func (s *Supervisor) pollCancel(ctx context.Context, jobID string, interval time.Duration, killCh chan<- KillReason) {
	limiter := rate.NewLimiter(rate.Every(interval), 1)
	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		canceled, err := s.cancel.IsCanceled(ctx, jobID)
		if err != nil {
			s.log.Warn("cancel poll failed", "job_id", jobID, "error", err.Error())
			continue
		}
		if canceled {
			select {
			case killCh <- KillCancelled:
			default:
			}
			return
		}
	}
}

// watchTimeout fires once after d, marking the row canceled with the
// "duration > N" reason before signaling the kill (step 4).
func (s *Supervisor) watchTimeout(ctx context.Context, jobID string, d time.Duration, killCh chan<- KillReason) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		if err := s.cancel.Cancel(ctx, jobID, "duration > "+d.String(), "system"); err != nil {
			s.log.Warn("failed to mark timed-out job canceled", "job_id", jobID, "error", err.Error())
		}
		select {
		case killCh <- KillTimeout:
		default:
		}
	case <-ctx.Done():
	}
}
