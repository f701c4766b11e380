package supervisor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeProcess struct {
	stdout io.Reader
	stderr io.Reader
	waitCh chan error
	killed bool
	mu     sync.Mutex
}

func newFakeProcess(stdout, stderr string, exitAfter time.Duration, exitErr error) *fakeProcess {
	p := &fakeProcess{
		stdout: bytes.NewBufferString(stdout),
		stderr: bytes.NewBufferString(stderr),
		waitCh: make(chan error, 1),
	}
	go func() {
		time.Sleep(exitAfter)
		p.waitCh <- exitErr
	}()
	return p
}

func (p *fakeProcess) Stdout() io.Reader { return p.stdout }
func (p *fakeProcess) Stderr() io.Reader { return p.stderr }
func (p *fakeProcess) Wait() error       { return <-p.waitCh }
func (p *fakeProcess) Kill() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.killed {
		return nil
	}
	p.killed = true
	go func() { p.waitCh <- fmt.Errorf("signal: killed") }()
	return nil
}

type fakeQueue struct {
	mu        sync.Mutex
	logs      strings.Builder
	canceled  bool
	canceledReason string
}

func (q *fakeQueue) AppendLogs(ctx context.Context, jobID, chunk string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.logs.WriteString(chunk)
	return q.logs.Len(), nil
}

func (q *fakeQueue) IsCanceled(ctx context.Context, jobID string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.canceled, nil
}

func (q *fakeQueue) Cancel(ctx context.Context, jobID, reason, canceledBy string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.canceled = true
	q.canceledReason = reason
	return nil
}

func TestSupervise_NormalExitAccumulatesLogs(t *testing.T) {
	proc := newFakeProcess("line one\nline two\n", "", 10*time.Millisecond, nil)
	q := &fakeQueue{}
	s := New(q, q)

	result, err := s.Supervise(context.Background(), proc, Options{
		JobID:        "job1",
		MaxLogSize:   1000,
		PollInterval: 20 * time.Millisecond,
		FlushWindow:  10 * time.Millisecond,
	})
	require.NoError(t, err)
	require.Equal(t, KillNone, result.KillReason)
	require.False(t, proc.killed)
	require.Contains(t, q.logs.String(), "line one")
	require.Contains(t, q.logs.String(), "line two")
}

func TestSupervise_CancellationKillsChild(t *testing.T) {
	proc := newFakeProcess("", "", time.Hour, nil)
	q := &fakeQueue{}
	s := New(q, q)

	go func() {
		time.Sleep(30 * time.Millisecond)
		q.mu.Lock()
		q.canceled = true
		q.mu.Unlock()
	}()

	result, err := s.Supervise(context.Background(), proc, Options{
		JobID:        "job2",
		MaxLogSize:   1000,
		PollInterval: 10 * time.Millisecond,
		FlushWindow:  10 * time.Millisecond,
	})
	require.Error(t, err)
	require.Equal(t, KillCancelled, result.KillReason)
	require.True(t, proc.killed)
}

func TestSupervise_LogLimitTriggersOverflowKill(t *testing.T) {
	proc := newFakeProcess(strings.Repeat("x", 200)+"\n", "", time.Hour, nil)
	q := &fakeQueue{}
	s := New(q, q)

	go func() {
		// Emulate the child never exiting on its own; Supervise should
		// observe the overflow and kill it well before this fires.
		time.Sleep(2 * time.Second)
	}()

	result, err := s.Supervise(context.Background(), proc, Options{
		JobID:        "job3",
		MaxLogSize:   50,
		PollInterval: 2 * time.Second,
		FlushWindow:  10 * time.Millisecond,
	})
	require.Error(t, err)
	require.Equal(t, KillTooManyLogs, result.KillReason)
	require.True(t, proc.killed)
	require.LessOrEqual(t, q.logs.Len(), 50+len("\n...killing job\n"))
}
