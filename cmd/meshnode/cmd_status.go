package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/browser-network/network/internal/nodeconfig"
)

func runStatus(args []string) {
	if err := doStatus(args, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func doStatus(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configFlag := fs.String("config", "", "path to config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	fmt.Fprintf(stdout, "meshnode %s (%s)\n", version, commit)
	fmt.Fprintln(stdout)

	cfgFile, err := nodeconfig.FindConfigFile(*configFlag)
	if err != nil {
		fmt.Fprintf(stdout, "Config:  not found (%v)\n", err)
		fmt.Fprintln(stdout)
		fmt.Fprintln(stdout, "Run 'meshnode init' to create a configuration.")
		return fmt.Errorf("config not found: %w", err)
	}
	cfg, err := nodeconfig.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	identity, err := loadIdentity(cfg)
	if err != nil {
		fmt.Fprintf(stdout, "Address: error (%v)\n", err)
	} else {
		fmt.Fprintf(stdout, "Address: %s\n", identity.Address)
	}
	fmt.Fprintf(stdout, "Signed:  %t\n", cfg.Identity.KeyFile != "")
	fmt.Fprintf(stdout, "Config:  %s\n", cfgFile)
	fmt.Fprintf(stdout, "Network: %s\n", cfg.Network.NetworkID)
	fmt.Fprintf(stdout, "Switchboard: %s\n", cfg.Switchboard.URL)
	fmt.Fprintln(stdout)

	fmt.Fprintf(stdout, "Max connections:        %d\n", cfg.Network.MaxConnections)
	fmt.Fprintf(stdout, "Presence interval:      %s\n", cfg.Network.PresenceBroadcastInterval)
	fmt.Fprintf(stdout, "Switchboard interval:   %s (fast) / %s (slow)\n",
		cfg.Network.FastSwitchboardRequestInterval, cfg.Network.SlowSwitchboardRequestInterval)
	if cfg.Network.MaxMessageRateBeforeRude > 0 {
		fmt.Fprintf(stdout, "Rude threshold:         %d msg/window\n", cfg.Network.MaxMessageRateBeforeRude)
	} else {
		fmt.Fprintln(stdout, "Rude threshold:         unbounded")
	}
	return nil
}
