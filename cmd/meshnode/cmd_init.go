package main

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"golang.org/x/term"

	"github.com/browser-network/network/pkg/meshnet/crypto"
)

func runInit(args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	out := fs.String("config", "meshnode.yaml", "path to write the config file")
	networkID := fs.String("network-id", "default", "mesh network identifier")
	switchboardURL := fs.String("switchboard-url", "http://127.0.0.1:8090", "switchboard base URL")
	unsigned := fs.Bool("unsigned", false, "run without message signing (testing only)")
	interactive := fs.Bool("interactive", false, "derive the signing key from a typed passphrase instead of a random secret")
	fs.Parse(args)

	if _, err := os.Stat(*out); err == nil {
		log.Fatalf("refusing to overwrite existing config at %s", *out)
	}

	var identityBlock string
	switch {
	case *unsigned:
		identityBlock = fmt.Sprintf("identity:\n  address: node-%s\n", randomHex(8))
	case *interactive:
		secret, err := readPassphraseConfirm(os.Stdout)
		if err != nil {
			log.Fatalf("read passphrase: %v", err)
		}
		kp, err := crypto.KeyPairFromSecret([]byte(secret))
		if err != nil {
			log.Fatalf("derive key pair: %v", err)
		}
		identityBlock = fmt.Sprintf("identity:\n  key_file: %s\n  address: %s\n", secret, kp.PublicHex)
	default:
		secret := randomHex(32)
		kp, err := crypto.KeyPairFromSecret([]byte(secret))
		if err != nil {
			log.Fatalf("derive key pair: %v", err)
		}
		identityBlock = fmt.Sprintf("identity:\n  key_file: %s\n  address: %s\n", secret, kp.PublicHex)
	}

	contents := fmt.Sprintf(`version: 1
%s
network:
  network_id: %s
  max_connections: 10

switchboard:
  url: %s
`, identityBlock, *networkID, *switchboardURL)

	if err := os.MkdirAll(filepath.Dir(*out), 0700); err != nil && filepath.Dir(*out) != "." {
		log.Fatalf("create config directory: %v", err)
	}
	if err := os.WriteFile(*out, []byte(contents), 0600); err != nil {
		log.Fatalf("write config: %v", err)
	}
	fmt.Printf("Wrote config to %s\n", *out)
}

func readPassphrase(w io.Writer, prompt string) (string, error) {
	fmt.Fprint(w, prompt)
	passBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w) // newline after hidden input
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase: %w", err)
	}
	return string(passBytes), nil
}

// readPassphraseConfirm reads and confirms a passphrase, used to derive the
// node's signing key deterministically from something the operator can
// re-type instead of a random secret. The passphrase itself is still written
// to the config file's key_file field.
func readPassphraseConfirm(w io.Writer) (string, error) {
	pass1, err := readPassphrase(w, "Enter passphrase: ")
	if err != nil {
		return "", err
	}
	if len(pass1) < 8 {
		return "", fmt.Errorf("passphrase must be at least 8 characters")
	}
	pass2, err := readPassphrase(w, "Confirm passphrase: ")
	if err != nil {
		return "", err
	}
	if pass1 != pass2 {
		return "", fmt.Errorf("passphrases do not match")
	}
	return pass1, nil
}

func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		log.Fatalf("generate random bytes: %v", err)
	}
	return hex.EncodeToString(b)
}
