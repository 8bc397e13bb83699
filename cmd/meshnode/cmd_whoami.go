package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/browser-network/network/internal/nodeconfig"
	"github.com/browser-network/network/pkg/meshnet"
)

func runWhoami(args []string) {
	fs := flag.NewFlagSet("whoami", flag.ExitOnError)
	configFlag := fs.String("config", "", "path to config file")
	fs.Parse(args)

	cfgFile, err := nodeconfig.FindConfigFile(*configFlag)
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}
	cfg, err := nodeconfig.Load(cfgFile)
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}

	identity, err := loadIdentity(cfg)
	if err != nil {
		log.Fatalf("Identity error: %v", err)
	}
	fmt.Println(string(identity.Address))
}

// loadIdentity derives the node's meshnet.Identity from config: a signed
// identity when a secret is configured, else an unsigned one using the
// configured address verbatim.
func loadIdentity(cfg *nodeconfig.NodeConfig) (*meshnet.Identity, error) {
	if cfg.Identity.KeyFile != "" {
		return meshnet.NewSignedIdentity([]byte(cfg.Identity.KeyFile))
	}
	return meshnet.NewUnsignedIdentity(meshnet.Address(cfg.Identity.Address)), nil
}
