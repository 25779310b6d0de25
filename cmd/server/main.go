package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/apimart/gateway/internal/api"
	"github.com/apimart/gateway/internal/collaborator/boltcounter"
	"github.com/apimart/gateway/internal/collaborator/platform"
	"github.com/apimart/gateway/internal/collaborator/redisledger"
	"github.com/apimart/gateway/internal/config"
	"github.com/apimart/gateway/internal/gateway"
	"github.com/apimart/gateway/internal/logging"
	"github.com/apimart/gateway/internal/upstream"
	"github.com/apimart/gateway/internal/usage"
	"github.com/apimart/gateway/internal/watcher"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Configure File Path")
	flag.Parse()

	if configPath == "" {
		wd, err := os.Getwd()
		if err != nil {
			log.Fatalf("failed to get working directory: %v", err)
		}
		configPath = path.Join(wd, "config.yaml")
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logging.Setup(cfg.Debug)

	platformClient := platform.NewClient(cfg.PlatformBaseURL)
	ledger := redisledger.New(cfg.RedisAddr, cfg.RedisPassword)
	defer func() { _ = ledger.Close() }()

	counter, err := boltcounter.Open(cfg.CounterPath)
	if err != nil {
		log.Fatalf("failed to open counter store: %v", err)
	}
	defer func() { _ = counter.Close() }()

	usage.RegisterPlugin(usage.NewLoggerPlugin(cfg.RequestLog))

	filter := gateway.NewFilter(
		policyFromConfig(cfg),
		gateway.NewSignatureVerifier(platformClient, nil),
		platformClient,
		platformClient,
		gateway.NewQuotaGate(ledger, counter),
		upstream.NewForwarder(cfg.UpstreamHost),
		cfg.CollaboratorTimeout(),
	)

	server := api.NewServer(cfg, filter)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	configWatcher, err := watcher.NewWatcher(configPath, func(updated *config.Config) {
		filter.UpdatePolicy(policyFromConfig(updated))
	})
	if err != nil {
		log.Fatalf("failed to create config watcher: %v", err)
	}
	go func() {
		if errWatch := configWatcher.Start(ctx); errWatch != nil && ctx.Err() == nil {
			log.Errorf("config watcher stopped: %v", errWatch)
		}
	}()

	go func() {
		if errStart := server.Start(); errStart != nil {
			log.Fatalf("server failed: %v", errStart)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err = server.Stop(shutdownCtx); err != nil {
		log.Errorf("graceful shutdown failed: %v", err)
	}
}

func policyFromConfig(cfg *config.Config) gateway.Policy {
	return gateway.Policy{
		Table: gateway.RouteTable{
			Public:        cfg.Routes.Public,
			InternalDebug: cfg.Routes.InternalDebug,
			Platform:      cfg.Routes.Platform,
			ThirdParty:    cfg.Routes.ThirdParty,
		},
		IPAllowList:   cfg.IPAllowList,
		SessionCookie: cfg.SessionCookie,
		UpstreamHost:  cfg.UpstreamHost,
	}
}
