// Command meshnode runs a self-healing peer-to-peer mesh overlay node.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
)

// Set via -ldflags at build time:
//
//	go build -ldflags "-X main.version=0.1.0 -X main.commit=$(git rev-parse --short HEAD)" -o meshnode ./cmd/meshnode
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "init":
		runInit(os.Args[2:])
	case "serve":
		runServe(os.Args[2:])
	case "whoami":
		runWhoami(os.Args[2:])
	case "status":
		runStatus(os.Args[2:])
	case "config":
		runConfig(os.Args[2:])
	case "version", "--version":
		printVersion()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printVersion() {
	fmt.Printf("meshnode %s (%s)\n", version, commit)
	fmt.Printf("Go %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

func printUsage() {
	fmt.Println("Usage: meshnode <command> [options]")
	fmt.Println()
	fmt.Println("  init                     Create a new identity and config file")
	fmt.Println("  serve                    Run the mesh node in the foreground")
	fmt.Println("  whoami                   Print this node's address")
	fmt.Println("  status                   Print node and config status")
	fmt.Println("  config show              Print resolved config and archive status")
	fmt.Println("  config rollback          Restore config from the last-known-good archive")
	fmt.Println("  version                  Print version information")
}
