package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"HexPoQ/internal/backend"
)

// Config holds the node configuration.
type Config struct {
	// DataPath is the directory for persistent storage.
	DataPath string

	// HTTPAddress is the HTTP API listen address.
	HTTPAddress string

	// QUICAddress is the QUIC mesh listen address.
	QUICAddress string

	// KeyPath is the path to the Ed25519 private key file.
	KeyPath string

	// PrivateKey is the node's Ed25519 identity key.
	PrivateKey ed25519.PrivateKey

	// BackendKind selects the quantum backend generation.
	BackendKind string

	// RemoteURL is the endpoint for the remote backend.
	RemoteURL string

	// WasmPath is the simulator module path for the wasm backend.
	WasmPath string

	// Shots is the number of measurement runs per execution.
	Shots int

	// NoiseLevel is the simulated readout noise level.
	NoiseLevel float64

	// BackendTimeout bounds a single backend execution.
	BackendTimeout time.Duration

	// Peers are mesh addresses to connect to at startup.
	Peers []string

	// GossipFanout is peers per gossip hop.
	GossipFanout int

	// AttestThreshold is the validator count required for a certificate.
	AttestThreshold int
}

// parseFlags parses command-line flags into Config.
func parseFlags() *Config {
	cfg := &Config{}

	var peers string

	flag.StringVar(&cfg.DataPath, "data", "./data", "Data directory path")
	flag.StringVar(&cfg.HTTPAddress, "http", ":8080", "HTTP API address")
	flag.StringVar(&cfg.QUICAddress, "quic", ":9000", "QUIC mesh address")
	flag.StringVar(&cfg.KeyPath, "key", "", "Ed25519 private key path (generates new if missing)")
	flag.StringVar(&cfg.BackendKind, "backend", "simulator", "Quantum backend: simulator, remote or wasm")
	flag.StringVar(&cfg.RemoteURL, "remote-url", "", "Remote backend endpoint URL")
	flag.StringVar(&cfg.WasmPath, "wasm", "", "WASM simulator module path")
	flag.IntVar(&cfg.Shots, "shots", 1024, "Measurement shots per execution")
	flag.Float64Var(&cfg.NoiseLevel, "noise", 0.01, "Simulator readout noise level")
	flag.DurationVar(&cfg.BackendTimeout, "timeout", 30*time.Second, "Backend execution timeout")
	flag.StringVar(&peers, "peers", "", "Comma-separated mesh peer addresses")
	flag.IntVar(&cfg.GossipFanout, "fanout", 4, "Gossip fanout per hop")
	flag.IntVar(&cfg.AttestThreshold, "attest-threshold", 1, "Attestations required for a certificate")
	flag.Parse()

	if peers != "" {
		for _, p := range strings.Split(peers, ",") {
			if p = strings.TrimSpace(p); p != "" {
				cfg.Peers = append(cfg.Peers, p)
			}
		}
	}

	return cfg
}

// backendConfig maps the flag values onto a backend configuration.
func (c *Config) backendConfig() backend.Config {
	return backend.Config{
		Kind:       backend.Kind(c.BackendKind),
		Shots:      c.Shots,
		NoiseLevel: c.NoiseLevel,
		RemoteURL:  c.RemoteURL,
		WasmPath:   c.WasmPath,
	}
}

// loadOrGenerateKey loads the private key from file or generates a new one.
func loadOrGenerateKey(keyPath string) (ed25519.PrivateKey, error) {
	if keyPath == "" {
		return generateNewKey()
	}

	data, err := os.ReadFile(keyPath)
	if os.IsNotExist(err) {
		return generateAndSaveKey(keyPath)
	}

	if err != nil {
		return nil, fmt.Errorf("read key file:\n%w", err)
	}

	if len(data) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid key size: got %d, want %d", len(data), ed25519.PrivateKeySize)
	}

	return ed25519.PrivateKey(data), nil
}

// generateNewKey creates a new Ed25519 private key.
func generateNewKey() (ed25519.PrivateKey, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key:\n%w", err)
	}

	return priv, nil
}

// generateAndSaveKey creates a new key and saves it to the given path.
func generateAndSaveKey(path string) (ed25519.PrivateKey, error) {
	priv, err := generateNewKey()
	if err != nil {
		return nil, err
	}

	if err := os.WriteFile(path, priv, 0600); err != nil {
		return nil, fmt.Errorf("save key to %s:\n%w", path, err)
	}

	return priv, nil
}
