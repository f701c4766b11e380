// Package workerd wires queue, supervisor, flow, zombie, events and
// metrics together into the main worker loop: pull a job, dispatch it by
// kind, supervise or advance it, and repeat.
package workerd

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/windmill-labs/windmill-worker/internal/dependency"
	"github.com/windmill-labs/windmill-worker/internal/events"
	"github.com/windmill-labs/windmill-worker/internal/executor"
	"github.com/windmill-labs/windmill-worker/internal/flow"
	"github.com/windmill-labs/windmill-worker/internal/metrics"
	"github.com/windmill-labs/windmill-worker/internal/queue"
	"github.com/windmill-labs/windmill-worker/internal/sandbox"
	"github.com/windmill-labs/windmill-worker/internal/supervisor"
	"github.com/windmill-labs/windmill-worker/internal/werr"
	"github.com/windmill-labs/windmill-worker/internal/zombie"
	"github.com/windmill-labs/windmill-worker/pkg/config"
	"github.com/windmill-labs/windmill-worker/pkg/logger"
)

// Loop is one worker process: it pulls jobs, dispatches flows to the flow
// engine and scripts to the supervised executor, and pings/reaps alongside.
type Loop struct {
	name   string
	cfg    config.WorkerConfig
	envs   config.EnvsConfig
	q      queue.Client
	sup    *supervisor.Supervisor
	engine *flow.Engine
	reaper *zombie.Reaper
	emit   events.Emitter
	mx     *metrics.Registry
	log    logger.Logger

	resolver *dependency.Resolver
	heavy    *dependency.HeavyCache

	// sameWorkerChan is a bounded channel of jobs that Run dispatches
	// alongside queue pulls. No code path sends on it: child jobs flagged
	// same_worker=true are claimed through Pull like any other job.
	sameWorkerChan chan *queue.Job

	wg sync.WaitGroup
}

// New builds a worker Loop from its fully-wired dependencies.
func New(name string, cfg config.WorkerConfig, envs config.EnvsConfig, q queue.Client, sup *supervisor.Supervisor, engine *flow.Engine, reaper *zombie.Reaper, emit events.Emitter, mx *metrics.Registry) *Loop {
	return &Loop{
		name:           name,
		cfg:            cfg,
		envs:           envs,
		q:              q,
		sup:            sup,
		engine:         engine,
		reaper:         reaper,
		emit:           emit,
		mx:             mx,
		log:            logger.Default().WithComponent("workerd"),
		resolver:       dependency.New(),
		sameWorkerChan: make(chan *queue.Job, 64),
	}
}

// WithHeavyCache attaches the shared heavy-dependency install cache used
// while resolving "dependencies"-kind jobs.
func (l *Loop) WithHeavyCache(h *dependency.HeavyCache) *Loop {
	l.heavy = h
	return l
}

// Run blocks, pulling and dispatching jobs until ctx is canceled. It also
// starts the ping loop and zombie reaper as sibling goroutines.
func (l *Loop) Run(ctx context.Context) error {
	l.emit.EmitWorkerStarted(0)
	defer l.emit.EmitWorkerStopped(0)

	l.wg.Add(2)
	go func() {
		defer l.wg.Done()
		l.pingLoop(ctx)
	}()
	go func() {
		defer l.wg.Done()
		if l.reaper != nil {
			l.reaper.Run(ctx)
		}
	}()

	pollInterval := l.cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.wg.Wait()
			return nil

		case job := <-l.sameWorkerChan:
			l.dispatch(ctx, job)

		case <-ticker.C:
			job, err := l.q.Pull(ctx, l.name, nil)
			if err != nil {
				l.log.Warn("pull failed", "error", err.Error())
				continue
			}
			if job == nil {
				continue
			}
			if l.mx != nil {
				l.mx.JobsClaimed.WithLabelValues(string(job.JobKind)).Inc()
			}
			l.dispatch(ctx, job)
		}
	}
}

// dispatch routes a claimed job to the flow engine (flow/flow_preview
// kinds), the dependency resolver (dependencies kind) or the supervised
// language executor (script/preview and any other kind).
func (l *Loop) dispatch(ctx context.Context, job *queue.Job) {
	switch job.JobKind {
	case queue.KindFlow, queue.KindFlowPreview:
		l.dispatchFlow(ctx, job)
	case queue.KindDependencies:
		l.dispatchDependencies(ctx, job)
	default:
		l.dispatchScript(ctx, job)
	}
}

// dispatchDependencies resolves and locks a script's dependencies instead
// of running it, installing any heavy packages into the shared cache along
// the way.
func (l *Loop) dispatchDependencies(ctx context.Context, job *queue.Job) {
	dir, err := sandbox.New(l.cfg.JobDirRoot, job.ID, l.cfg.KeepJobDir)
	if err != nil {
		l.failJob(ctx, job, werr.Internal("creating job dir", err))
		return
	}
	defer dir.Cleanup()

	code := ""
	if job.RawCode != nil {
		code = *job.RawCode
	}

	lang := queue.LanguagePython
	if job.Language != nil {
		lang = *job.Language
	}

	var result *dependency.Result
	switch lang {
	case queue.LanguageGo:
		result, err = l.resolver.LockGo(dir.Root, code)
	default:
		result, err = l.resolver.LockPython(dir.Root, code)
	}
	if err != nil {
		l.failJob(ctx, job, werr.Internal("locking dependencies", err))
		return
	}
	if result.LockErrorLog != "" {
		l.failJob(ctx, job, werr.Execution("dependency lock failed", errString(result.LockErrorLog)))
		return
	}

	if l.heavy != nil && lang != queue.LanguageGo {
		for _, line := range strings.Split(result.Lock, "\n") {
			req := strings.TrimSpace(line)
			if req == "" {
				continue
			}
			if _, ok := l.heavy.IsHeavy(req); ok {
				if _, err := l.heavy.EnsureInstalled(ctx, req, l.envs.PipIndexURL); err != nil {
					l.log.Warn("heavy dependency install failed", "requirement", req, "error", err.Error())
				}
			}
		}
	}

	out, _ := json.Marshal(map[string]string{"lock": result.Lock})
	if err := l.q.Complete(ctx, job, true, out, job.Logs); err != nil {
		l.log.Error("completing dependency job failed", "job_id", job.ID, "error", err.Error())
	}
}

func (l *Loop) dispatchFlow(ctx context.Context, job *queue.Job) {
	var value flow.FlowValue
	if err := json.Unmarshal(job.RawFlow, &value); err != nil {
		l.failJob(ctx, job, werr.Internal("parsing raw_flow", err))
		return
	}

	var err error
	if len(job.FlowStatus) == 0 {
		err = l.engine.Start(ctx, job, &value)
	} else {
		var status flow.FlowStatus
		if uErr := json.Unmarshal(job.FlowStatus, &status); uErr != nil {
			l.failJob(ctx, job, werr.Internal("parsing flow_status", uErr))
			return
		}
		// A flow job claimed with flow_status already set is passed to
		// OnChildCompleted with an empty child job id. That id matches no
		// dispatched child, so the call returns an error (logged below) and
		// the flow is not advanced.
		err = l.engine.OnChildCompleted(ctx, job, &value, &status, "", true, job.FlowStatus)
	}
	if err != nil {
		l.log.Error("flow dispatch failed", "job_id", job.ID, "error", err.Error())
	}
}

func (l *Loop) dispatchScript(ctx context.Context, job *queue.Job) {
	lang := queue.LanguagePython
	if job.Language != nil {
		lang = *job.Language
	}

	dir, err := sandbox.New(l.cfg.JobDirRoot, job.ID, l.cfg.KeepJobDir)
	if err != nil {
		l.failJob(ctx, job, werr.Internal("creating job dir", err))
		return
	}
	defer dir.Cleanup()

	code := ""
	if job.RawCode != nil {
		code = *job.RawCode
	}
	if err := executor.Build(dir, lang, code, job.Args); err != nil {
		l.failJob(ctx, job, werr.Internal("building job artifacts", err))
		return
	}

	timeout := l.cfg.DefaultTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	reserved := executor.ReservedEnv{
		JobID:        job.ID,
		Workspace:    job.WorkspaceID,
		BaseURL:      l.cfg.BaseURL,
		InternalURL:  l.cfg.BaseInternalURL,
		ParentJob:    derefStr(job.ParentJob),
		SchedulePath: derefStr(job.SchedulePath),
	}
	env := executor.DirectModeEnv(reserved, l.envs.Path, l.envs.Home, "")

	cmd, err := executor.BuildCmd(dir, lang, l.envs.PythonPath, l.envs.DenoPath, l.envs.GoPath, l.envs.NsjailPath, "", env)
	if err != nil {
		l.failJob(ctx, job, werr.Internal("building child command", err))
		return
	}

	proc, err := supervisor.WrapCmd(cmd)
	if err != nil {
		l.failJob(ctx, job, werr.Internal("wiring child pipes", err))
		return
	}
	if err := cmd.Start(); err != nil {
		l.failJob(ctx, job, werr.Internal("starting child process", err))
		return
	}

	result, supErr := l.sup.Supervise(ctx, proc, supervisor.Options{
		JobID:      job.ID,
		Timeout:    timeout,
		MaxLogSize: l.cfg.MaxLogSize,
	})

	if supErr != nil {
		l.failJob(ctx, job, supErr)
		l.emit.EmitJobFailed(job.ID, 0, supErr.Error())
		if l.mx != nil {
			l.mx.JobsFailed.WithLabelValues(string(job.JobKind), string(werr.KindOf(supErr))).Inc()
		}
		return
	}

	out, err := executor.ReadResult(dir)
	if err != nil {
		l.failJob(ctx, job, werr.Execution("reading result.json", err))
		return
	}

	if err := l.q.Complete(ctx, job, true, out, job.Logs); err != nil {
		l.log.Error("completing job failed", "job_id", job.ID, "error", err.Error())
		return
	}
	l.emit.EmitJobCompleted(job.ID, 0, result.Duration)
	if l.mx != nil {
		l.mx.JobsCompleted.WithLabelValues(string(job.JobKind)).Inc()
		l.mx.JobDuration.WithLabelValues(string(job.JobKind)).Observe(result.Duration.Seconds())
	}
}

func (l *Loop) failJob(ctx context.Context, job *queue.Job, cause error) {
	result, _ := json.Marshal(map[string]string{"error": cause.Error()})
	if err := l.q.Complete(ctx, job, false, result, job.Logs); err != nil {
		l.log.Error("failing job failed", "job_id", job.ID, "error", err.Error())
	}
}

func (l *Loop) pingLoop(ctx context.Context) {
	interval := l.cfg.PingInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := l.q.Ping(ctx, l.name); err != nil {
				l.log.Warn("ping failed", "error", err.Error())
			}
		case <-ctx.Done():
			return
		}
	}
}

func errString(s string) error { return errors.New(s) }

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
