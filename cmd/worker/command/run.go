package command

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/windmill-labs/windmill-worker/internal/dependency"
	"github.com/windmill-labs/windmill-worker/internal/events"
	"github.com/windmill-labs/windmill-worker/internal/flow"
	"github.com/windmill-labs/windmill-worker/internal/metrics"
	"github.com/windmill-labs/windmill-worker/internal/queue"
	"github.com/windmill-labs/windmill-worker/internal/supervisor"
	"github.com/windmill-labs/windmill-worker/internal/webhook"
	"github.com/windmill-labs/windmill-worker/internal/workerd"
	"github.com/windmill-labs/windmill-worker/internal/zombie"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the worker loop",
	Long:  "Connect to the queue database, claim jobs, and execute scripts and flows until interrupted.",
	RunE:  runWorker,
}

func init() {
	runCmd.Flags().Bool("webhook-server", true, "Start the inbound webhook trigger server alongside the worker loop")
}

func runWorker(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	q, err := queue.NewPostgresClient(cfg.Database)
	if err != nil {
		return err
	}
	defer q.Close()

	bus := events.NewEventBus(256)
	bus.Subscribe(events.EventError, events.NewLoggerHandler(cfg.Logging.Level))
	emit := events.NewEventEmitter(bus, cfg.Worker.Name)

	mx := metrics.New(cfg.Worker.Name)
	defer mx.Close()

	reaper := zombie.New(q, emit, mx, cfg.Worker.ZombieCheckInterval, time.Duration(cfg.Worker.ZombieTimeoutMultiplier)*cfg.Worker.DefaultTimeout)
	engine := flow.NewEngine(q, emit, mx)
	sup := supervisor.New(q, q)

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	defer rdb.Close()
	heavy := dependency.NewHeavyCache(rdb, "/cache/pip_permanent", cfg.Envs.PythonHeavyDeps)

	loop := workerd.New(cfg.Worker.Name, cfg.Worker, cfg.Envs, q, sup, engine, reaper, emit, mx).WithHeavyCache(heavy)

	if withWebhook, _ := cmd.Flags().GetBool("webhook-server"); withWebhook {
		srv := webhook.NewServer(func(provider, path string, req webhook.Request) (int, interface{}) {
			now := time.Now()
			err := q.Push(context.Background(), &queue.Job{
				ID:             uuid.NewString(),
				CreatedAt:      now,
				ScheduledFor:   now,
				JobKind:        queue.KindScript,
				PermissionedAs: "webhook:" + provider,
				Args:           req.Body,
				Tag:            path,
			})
			if err != nil {
				return http.StatusInternalServerError, map[string]string{"error": err.Error()}
			}
			return http.StatusAccepted, map[string]string{"status": "queued"}
		}, cfg.Webhook.RateLimitPerSec)

		httpSrv := &http.Server{Addr: cfg.Webhook.ListenAddr, Handler: srv.Handler()}
		go func() {
			log.Info("starting webhook server", "addr", cfg.Webhook.ListenAddr)
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("webhook server stopped", "error", err.Error())
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = httpSrv.Shutdown(shutdownCtx)
		}()
	}

	log.Info("worker starting", "name", cfg.Worker.Name)
	return loop.Run(ctx)
}
