// Command service is SchedulerGodX's composition-root entrypoint: it reads
// configuration from the environment, opens the store and broker, wires
// ServiceCore, runs startup recovery, and blocks on the consume loop.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/EliseyGodX/SchedulerGodX/v1/brokers"
	"github.com/EliseyGodX/SchedulerGodX/v1/config"
	"github.com/EliseyGodX/SchedulerGodX/v1/executor"
	"github.com/EliseyGodX/SchedulerGodX/v1/handlers"
	"github.com/EliseyGodX/SchedulerGodX/v1/log"
	"github.com/EliseyGodX/SchedulerGodX/v1/service"
	"github.com/EliseyGodX/SchedulerGodX/v1/store"
)

func main() {
	cfg := config.FromEnv()

	s, err := store.Open(cfg.Store.Path)
	if err != nil {
		log.FATAL.Printf("open store: %v", err)
		os.Exit(1)
	}

	registry := handlers.NewRegistry()
	handlers.RegisterBuiltins(registry)
	soft := executor.NewSoft(registry)

	var hard executor.Interface
	if h, err := executor.NewHard(cfg.Hard); err != nil {
		log.WARNING.Printf("hard-mode executor unavailable, hard tasks will fail: %v", err)
	} else {
		hard = h
	}

	broker := brokers.NewAMQPBroker(cfg)

	core := service.New(cfg, s, broker, soft, hard)

	if err := core.Recover(context.Background()); err != nil {
		log.FATAL.Printf("recovery: %v", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.INFO.Print("service: shutting down")
		_ = core.Stop()
	}()

	// A per-process-lifetime consumer tag avoids collisions when an old
	// connection's consumer hasn't fully torn down yet on a fast restart.
	consumerTag := "schedulergodx-service-" + uuid.NewString()
	if err := core.Run(consumerTag, cfg.AMQP.PrefetchCount); err != nil {
		log.FATAL.Printf("consume loop: %v", err)
		os.Exit(1)
	}
}
