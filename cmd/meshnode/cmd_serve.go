package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/browser-network/network/internal/nodeconfig"
	"github.com/browser-network/network/pkg/meshnet"
	"github.com/browser-network/network/pkg/meshnet/transport"
)

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configFlag := fs.String("config", "", "path to config file")
	metricsAddr := fs.String("metrics-listen", "", "address to serve Prometheus metrics on (empty disables)")
	fs.Parse(args)

	fmt.Printf("meshnode %s (%s)\n", version, commit)

	cfgFile, err := nodeconfig.FindConfigFile(*configFlag)
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}
	cfg, err := nodeconfig.Load(cfgFile)
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}
	if err := nodeconfig.Archive(cfgFile); err != nil {
		log.Printf("Warning: failed to archive config: %v", err)
	}

	identity, err := loadIdentity(cfg)
	if err != nil {
		log.Fatalf("Identity error: %v", err)
	}

	logger := slog.Default().With("address", string(identity.Address), "network_id", cfg.Network.NetworkID)

	node, err := meshnet.NewNode(identity, cfg.ToMeshConfig(), meshnet.Deps{
		NewTransport:   transport.NewPionTransport,
		SwitchboardURL: cfg.Switchboard.URL,
		NetworkID:      cfg.Network.NetworkID,
	}, logger)
	if err != nil {
		log.Fatalf("Failed to construct node: %v", err)
	}

	if *metricsAddr != "" {
		startMetricsServer(node, *metricsAddr, logger)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		if err := node.Run(ctx); err != nil {
			logger.Error("node run failed", "error", err)
		}
	}()

	select {
	case sig := <-sigCh:
		fmt.Printf("\nReceived %s, shutting down...\n", sig)
	case <-ctx.Done():
	}

	cancel()
	node.Teardown()
	<-runDone
	fmt.Println("Node stopped.")
}

func startMetricsServer(node *meshnet.Node, addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", node.MetricsHandler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("metrics listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()
}
