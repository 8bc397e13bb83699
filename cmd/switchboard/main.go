// Command switchboard runs the reference rendezvous server nodes poll to
// exchange WebRTC negotiation items before any mesh connection exists
// between them.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/browser-network/network/internal/switchboard"
)

var (
	version = "dev"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))

	fs := flag.NewFlagSet("switchboard", flag.ExitOnError)
	addr := fs.String("listen", "127.0.0.1:8090", "address to listen on")
	showVersion := fs.Bool("version", false, "print version and exit")
	fs.Parse(os.Args[1:])

	if *showVersion {
		fmt.Printf("switchboard %s\n", version)
		return
	}

	srv := switchboard.NewServer(slog.Default())
	httpServer := &http.Server{
		Addr:         *addr,
		Handler:      srv.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	slog.Info("switchboard listening", "addr", *addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("switchboard server error", "error", err)
		os.Exit(1)
	}
}
