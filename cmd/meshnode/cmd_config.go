package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/browser-network/network/internal/nodeconfig"
)

func runConfig(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: meshnode config <show|rollback>")
		os.Exit(1)
	}
	switch args[0] {
	case "show":
		runConfigShow(args[1:])
	case "rollback":
		runConfigRollback(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown config subcommand: %s\n", args[0])
		os.Exit(1)
	}
}

func runConfigShow(args []string) {
	fs := flag.NewFlagSet("config show", flag.ExitOnError)
	configFlag := fs.String("config", "", "path to config file")
	fs.Parse(args)

	cfgFile, err := nodeconfig.FindConfigFile(*configFlag)
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}
	cfg, err := nodeconfig.Load(cfgFile)
	if err != nil {
		fmt.Printf("WARNING: config has validation errors: %v\n\n", err)
	}

	fmt.Printf("# Resolved config from %s\n", cfgFile)
	out, err := yaml.Marshal(cfg)
	if err != nil {
		log.Fatalf("Failed to marshal config: %v", err)
	}
	fmt.Print(string(out))

	if nodeconfig.HasArchive(cfgFile) {
		fmt.Printf("\n# Last-known-good archive: %s\n", nodeconfig.ArchivePath(cfgFile))
	} else {
		fmt.Printf("\n# No last-known-good archive (will be created on next successful meshnode serve)\n")
	}
}

func runConfigRollback(args []string) {
	fs := flag.NewFlagSet("config rollback", flag.ExitOnError)
	configFlag := fs.String("config", "", "path to config file")
	fs.Parse(args)

	cfgFile, err := nodeconfig.FindConfigFile(*configFlag)
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}

	if !nodeconfig.HasArchive(cfgFile) {
		fmt.Printf("No last-known-good archive for %s\n", cfgFile)
		fmt.Println("Archives are created automatically on each successful meshnode serve startup.")
		os.Exit(1)
	}

	if err := nodeconfig.Rollback(cfgFile); err != nil {
		log.Fatalf("Rollback failed: %v", err)
	}

	fmt.Printf("Restored %s from last-known-good archive\n", cfgFile)
	fmt.Println("You can now restart meshnode serve.")
}
