package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/richmiles/in-the-event-of-my-death/internal/client/cli"
	"github.com/richmiles/in-the-event-of-my-death/internal/client/client"
	"github.com/richmiles/in-the-event-of-my-death/internal/client/config"
	"github.com/richmiles/in-the-event-of-my-death/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadConfig(os.Args[1:])
	logger := logging.NewJSONLogger(os.Stderr, cfg.LogLevel).With("target", cfg.ServerURL)

	api := client.NewHTTPClient(cfg.ServerURL, cfg.RequestTimeout)
	rep, err := cli.NewApp(cfg, api, logger).Run(ctx)
	if err != nil {
		logger.Error(ctx, "smoke check failed", "error", err, "reason", client.ReasonOf(err))
		stop()
		os.Exit(1)
	}

	if cfg.HealthOnly {
		fmt.Println("OK: server healthy")
		return
	}
	fmt.Printf("OK: secret %s created (difficulty %d, solved in %s), status %s\n",
		rep.SecretID, rep.Difficulty, rep.SolveTime, rep.Status)
}
