package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"HexPoQ/internal/api"
	"HexPoQ/internal/archive"
	"HexPoQ/internal/attest"
	"HexPoQ/internal/backend"
	"HexPoQ/internal/challenge"
	"HexPoQ/internal/logger"
	"HexPoQ/internal/network"
	"HexPoQ/internal/proof"
	"HexPoQ/internal/prover"
	"HexPoQ/internal/storage"
	"HexPoQ/internal/verifier"
)

// Node is a running HexPoQ validator node.
type Node struct {
	cfg       *Config
	storage   *storage.Store
	backend   backend.Backend
	prover    *prover.Prover
	verifier  *verifier.Verifier
	challenge *challenge.Manager
	keys      *attest.KeyPair
	collector *attest.Collector
	mesh      *network.Mesh
	api       *api.Server
}

// NewNode creates and initializes a new node.
func NewNode(cfg *Config) (*Node, error) {
	n := &Node{cfg: cfg}

	if err := n.initStorage(); err != nil {
		return nil, err
	}

	if err := n.initBackend(); err != nil {
		n.Close()
		return nil, err
	}

	if err := n.initAttestation(); err != nil {
		n.Close()
		return nil, err
	}

	if err := n.initMesh(); err != nil {
		n.Close()
		return nil, err
	}

	n.initAPI()

	return n, nil
}

// initStorage opens the Pebble store and builds the proof pipeline on it.
func (n *Node) initStorage() error {
	if err := os.MkdirAll(n.cfg.DataPath, 0755); err != nil {
		return fmt.Errorf("create data directory:\n%w", err)
	}

	db, err := storage.Open(n.cfg.DataPath + "/db")
	if err != nil {
		return fmt.Errorf("init storage:\n%w", err)
	}

	n.storage = db
	n.verifier = verifier.New(verifier.NewPebbleStore(db))
	n.challenge = challenge.NewManager(db, n.verifier)

	return nil
}

// initBackend constructs the configured quantum backend and the prover.
func (n *Node) initBackend() error {
	b, err := backend.New(n.cfg.backendConfig())
	if err != nil {
		return fmt.Errorf("init backend:\n%w", err)
	}

	n.backend = b
	n.prover = prover.New(b, n.cfg.BackendTimeout)

	return nil
}

// initAttestation derives the BLS keys and sets up the collector.
// The validator set starts as just this node; peers extend it by
// announcing their attestation keys over the mesh.
func (n *Node) initAttestation() error {
	keys, err := attest.DeriveKeyPair(n.cfg.PrivateKey)
	if err != nil {
		return fmt.Errorf("derive attestation keys:\n%w", err)
	}

	n.keys = keys
	n.collector = attest.NewCollector([][]byte{keys.PublicKeyBytes()}, n.cfg.AttestThreshold)

	return nil
}

// initMesh creates the QUIC mesh and wires the gossip handlers.
func (n *Node) initMesh() error {
	mesh, err := network.NewMesh(network.Config{
		PrivateKey:   n.cfg.PrivateKey,
		ListenAddr:   n.cfg.QUICAddress,
		GossipFanout: n.cfg.GossipFanout,
	})
	if err != nil {
		return fmt.Errorf("init mesh:\n%w", err)
	}

	mesh.SetValidatorKey(n.keys.PublicKeyBytes())
	mesh.SetHandlers(network.Handlers{
		Proof:             n.handleGossipedProof,
		Attestation:       n.handleGossipedAttestation,
		ValidatorAnnounce: n.handleValidatorAnnounce,
		Challenge:         n.handleGossipedChallenge,
		ArchiveRequest:    func() ([]byte, error) { return archive.Create(n.storage) },
		ProofRequest:      n.handleProofRequest,
	})

	n.mesh = mesh

	return nil
}

// initAPI creates the HTTP API server.
func (n *Node) initAPI() {
	n.api = api.New(n.cfg.HTTPAddress, n.prover, n.verifier, n.challenge, n, n)
	n.api.OnAccept(n.acceptProof)
}

// Run starts the node and blocks until a shutdown signal arrives.
func (n *Node) Run() error {
	if err := n.mesh.Start(); err != nil {
		return fmt.Errorf("start mesh:\n%w", err)
	}

	for _, addr := range n.cfg.Peers {
		if _, err := n.mesh.Connect(addr); err != nil {
			logger.Warn("peer connection failed", "addr", addr, "error", err)
		}
	}

	if err := n.api.Start(); err != nil {
		return fmt.Errorf("start api:\n%w", err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("shutting down")
	n.Close()

	return nil
}

// Close releases every component, tolerating partial initialization.
func (n *Node) Close() {
	if n.api != nil {
		n.api.Stop()
	}

	if n.mesh != nil {
		n.mesh.Close()
	}

	if n.challenge != nil {
		n.challenge.Close()
	}

	if closer, ok := n.backend.(interface{ Close() error }); ok {
		closer.Close()
	}

	if n.storage != nil {
		n.storage.Close()
	}
}

// acceptProof persists and propagates a proof that passed verification.
// It also signs the node's own attestation and floods it.
func (n *Node) acceptProof(p *proof.QuantumProof) {
	if err := archive.SaveProof(n.storage, p); err != nil {
		logger.Error("persist proof failed", "artifact", p.ProofArtifact[:16], "error", err)
	}

	if err := n.mesh.GossipProof(p); err != nil {
		logger.Debug("proof gossip incomplete", "error", err)
	}

	att := n.keys.Sign(p.ProofArtifact)

	if cert, err := n.collector.Add(att); err != nil {
		logger.Warn("own attestation rejected", "error", err)
	} else if cert != nil {
		logger.Info("artifact certified", "artifact", cert.Artifact[:16])
	}

	if err := n.mesh.GossipAttestation(att); err != nil {
		logger.Debug("attestation gossip incomplete", "error", err)
	}
}

// handleGossipedProof verifies a proof received from the mesh. The return
// value tells the mesh whether to keep flooding it.
func (n *Node) handleGossipedProof(p *network.Peer, qp *proof.QuantumProof) bool {
	if err := n.verifier.Verify(qp); err != nil {
		logger.Debug("gossiped proof rejected", "peer", p.Address(), "error", err)
		return false
	}

	n.acceptProof(qp)

	return true
}

// handleGossipedAttestation feeds a remote attestation to the collector.
func (n *Node) handleGossipedAttestation(p *network.Peer, a *attest.Attestation) bool {
	cert, err := n.collector.Add(a)
	if err != nil {
		logger.Debug("attestation rejected", "peer", p.Address(), "error", err)
		return false
	}

	if cert != nil {
		logger.Info("artifact certified", "artifact", cert.Artifact[:16])
	}

	return true
}

// handleValidatorAnnounce grows the attestation validator set with a key
// announced over the mesh. Known keys stop the announce from re-flooding.
func (n *Node) handleValidatorAnnounce(p *network.Peer, key []byte) bool {
	if !n.collector.AddValidator(key) {
		return false
	}

	logger.Info("validator announced", "peer", p.Address(), "validators", len(n.collector.Validators()))

	return true
}

// handleGossipedChallenge logs challenges announced by peers. Provers watch
// the log and race them through their own node's API.
func (n *Node) handleGossipedChallenge(p *network.Peer, c *challenge.Challenge) {
	logger.Info("challenge announced",
		"peer", p.Address(),
		"id", c.ID[:12],
		"qubits", c.QubitCount,
		"reward", c.Reward)
}

// handleProofRequest serves stored proofs to peers.
func (n *Node) handleProofRequest(artifact string) ([]byte, error) {
	p, err := archive.LoadProof(n.storage, artifact)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("unknown artifact")
	}

	return json.Marshal(p)
}

// LoadProof implements api.ProofArchiver.
func (n *Node) LoadProof(artifact string) (*proof.QuantumProof, error) {
	return archive.LoadProof(n.storage, artifact)
}

// CountProofs implements api.ProofArchiver.
func (n *Node) CountProofs() (int, error) {
	return archive.CountProofs(n.storage)
}

// BackendName implements api.StatusProvider.
func (n *Node) BackendName() string {
	return n.backend.Name()
}

// PeerCount implements api.StatusProvider.
func (n *Node) PeerCount() int {
	return n.mesh.PeerCount()
}
