package main

import (
	"os"

	"github.com/windmill-labs/windmill-worker/cmd/worker/command"
	"github.com/windmill-labs/windmill-worker/pkg/config"
	"github.com/windmill-labs/windmill-worker/pkg/logger"
)

func main() {
	mgr := config.NewManager()
	cfg, err := mgr.Load(config.GetConfigPath())
	if err != nil {
		os.Stderr.WriteString("failed to load configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		os.Stderr.WriteString("failed to initialize logger: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := command.Execute(cfg, log); err != nil {
		log.Error("command execution failed", "error", err.Error())
		os.Exit(1)
	}
}
