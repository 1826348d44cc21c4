package network

import (
	"context"
	"crypto/ed25519"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	"HexPoQ/internal/attest"
	"HexPoQ/internal/challenge"
	"HexPoQ/internal/logger"
	"HexPoQ/internal/proof"
)

const (
	// alpnProtocol is the ALPN identifier for the proof mesh.
	alpnProtocol = "hexpoq/1"

	// defaultGossipFanout is how many peers a gossiped proof is forwarded to.
	defaultGossipFanout = 4

	// defaultReconnectDelay is the initial delay between reconnect attempts.
	defaultReconnectDelay = 5 * time.Second

	// maxReconnectDelay caps the reconnect backoff.
	maxReconnectDelay = 60 * time.Second
)

// Config holds the configuration for a Mesh.
type Config struct {
	PrivateKey     ed25519.PrivateKey // PrivateKey is the node's identity key
	ListenAddr     string             // ListenAddr is the QUIC listen address (e.g. ":9000")
	GossipFanout   int                // GossipFanout is peers per gossip hop (default 4)
	ReconnectDelay time.Duration      // ReconnectDelay is the initial reconnect delay
}

// Handlers receives decoded mesh traffic. Nil fields drop the traffic kind.
// Handlers returning a bool report whether the payload was accepted; only
// accepted payloads are forwarded to other peers.
type Handlers struct {
	// Proof is called for each new gossiped proof.
	Proof func(*Peer, *proof.QuantumProof) bool

	// Attestation is called for each new gossiped attestation.
	Attestation func(*Peer, *attest.Attestation) bool

	// ValidatorAnnounce is called with each newly announced attestation key.
	ValidatorAnnounce func(*Peer, []byte) bool

	// Challenge is called for each new challenge announcement.
	Challenge func(*Peer, *challenge.Challenge)

	// ArchiveRequest returns the node's compressed proof archive.
	ArchiveRequest func() ([]byte, error)

	// ProofRequest returns the serialized proof for an artifact.
	ProofRequest func(artifact string) ([]byte, error)
}

// Mesh is the QUIC gossip mesh carrying proofs, attestations and
// challenges between validator nodes. Peers authenticate each other by the
// ed25519 key embedded in their TLS certificate.
type Mesh struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
	listenAddr string
	tlsConfig  *tls.Config
	quicConfig *quic.Config
	fanout     int

	listener *quic.Listener

	peers   map[string]*Peer // peers maps public key hex to peer
	peersMu sync.RWMutex

	knownAddrs   map[string]string // knownAddrs maps public key hex to dial address
	knownAddrsMu sync.RWMutex

	validatorKey []byte // validatorKey is the attestation key announced to peers

	reconnectDelay time.Duration

	dedup *dedup

	handlers   Handlers
	handlersMu sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewMesh creates a mesh node.
func NewMesh(cfg Config) (*Mesh, error) {
	if cfg.PrivateKey == nil {
		return nil, fmt.Errorf("private key is required")
	}

	if cfg.ListenAddr == "" {
		return nil, fmt.Errorf("listen address is required")
	}

	if cfg.GossipFanout <= 0 {
		cfg.GossipFanout = defaultGossipFanout
	}

	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}

	cert, err := identityCertificate(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("generate certificate: %w", err)
	}

	tlsConfig := &tls.Config{
		Certificates:       []tls.Certificate{cert},
		ClientAuth:         tls.RequireAnyClientCert,
		InsecureSkipVerify: true, // Identity is the ed25519 key, verified on setup
		NextProtos:         []string{alpnProtocol},
	}

	quicConfig := &quic.Config{
		MaxIdleTimeout:  30 * time.Second,
		KeepAlivePeriod: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Mesh{
		privateKey:     cfg.PrivateKey,
		publicKey:      cfg.PrivateKey.Public().(ed25519.PublicKey),
		listenAddr:     cfg.ListenAddr,
		tlsConfig:      tlsConfig,
		quicConfig:     quicConfig,
		fanout:         cfg.GossipFanout,
		reconnectDelay: cfg.ReconnectDelay,
		peers:          make(map[string]*Peer),
		knownAddrs:     make(map[string]string),
		dedup:          newDedup(),
		ctx:            ctx,
		cancel:         cancel,
	}, nil
}

// PublicKey returns the node's identity key.
func (m *Mesh) PublicKey() ed25519.PublicKey {
	return m.publicKey
}

// Addr returns the listener's address, or "" before Start.
func (m *Mesh) Addr() string {
	if m.listener == nil {
		return ""
	}

	return m.listener.Addr().String()
}

// SetHandlers installs the traffic handlers. Call before Start.
func (m *Mesh) SetHandlers(h Handlers) {
	m.handlersMu.Lock()
	m.handlers = h
	m.handlersMu.Unlock()
}

// SetValidatorKey installs the attestation public key this node announces
// to every peer it connects with.
func (m *Mesh) SetValidatorKey(publicKey []byte) {
	m.handlersMu.Lock()
	m.validatorKey = publicKey
	m.handlersMu.Unlock()
}

// validatorAnnounce is the wire shape of a KindValidatorAnnounce payload.
type validatorAnnounce struct {
	PublicKey []byte `json:"public_key"` // PublicKey is the compressed attestation key
}

// Start begins accepting connections.
func (m *Mesh) Start() error {
	listener, err := quic.ListenAddr(m.listenAddr, m.tlsConfig, m.quicConfig)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	m.listener = listener

	m.wg.Add(1)
	go m.acceptLoop()

	logger.Info("mesh listening", "addr", listener.Addr().String())
	return nil
}

// Connect dials a remote node.
func (m *Mesh) Connect(addr string) (*Peer, error) {
	conn, err := quic.DialAddr(m.ctx, addr, m.tlsConfig, m.quicConfig)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	peer, err := m.setupPeer(conn, addr)
	if err != nil {
		conn.CloseWithError(1, "setup failed")
		return nil, err
	}

	// Only dialed addresses are worth remembering; an inbound peer's remote
	// address is an ephemeral client port that cannot be redialed.
	m.knownAddrsMu.Lock()
	m.knownAddrs[hex.EncodeToString(peer.publicKey)] = addr
	m.knownAddrsMu.Unlock()

	return peer, nil
}

// GossipProof floods a proof to a random subset of peers. Priming the
// sender's own dedup filter stops the proof from echoing back; a payload
// the filter has already seen was flooded on receipt and is not resent.
func (m *Mesh) GossipProof(p *proof.QuantumProof) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal proof: %w", err)
	}

	if !m.dedup.check(payload) {
		return nil
	}

	return m.gossip(KindProof, payload)
}

// GossipAttestation floods an attestation to a random subset of peers.
func (m *Mesh) GossipAttestation(a *attest.Attestation) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal attestation: %w", err)
	}

	if !m.dedup.check(payload) {
		return nil
	}

	return m.gossip(KindAttestation, payload)
}

// AnnounceChallenge broadcasts a challenge to every connected peer.
func (m *Mesh) AnnounceChallenge(c *challenge.Challenge) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal challenge: %w", err)
	}

	m.dedup.check(payload)

	var lastErr error
	for _, p := range m.peerList() {
		if err := p.send(KindChallenge, payload); err != nil {
			lastErr = err
		}
	}

	return lastErr
}

// RequestArchive fetches a peer's compressed proof archive.
func (m *Mesh) RequestArchive(ctx context.Context, p *Peer) ([]byte, error) {
	return p.request(ctx, KindArchiveRequest, nil)
}

// RequestProof fetches the proof behind an artifact from a peer.
func (m *Mesh) RequestProof(ctx context.Context, p *Peer, artifact string) (*proof.QuantumProof, error) {
	payload, err := p.request(ctx, KindProofRequest, []byte(artifact))
	if err != nil {
		return nil, err
	}

	var qp proof.QuantumProof
	if err := json.Unmarshal(payload, &qp); err != nil {
		return nil, fmt.Errorf("unmarshal proof: %w", err)
	}

	return &qp, nil
}

// Peers returns the connected peers.
func (m *Mesh) Peers() []*Peer {
	return m.peerList()
}

// PeerCount returns the number of connected peers.
func (m *Mesh) PeerCount() int {
	m.peersMu.RLock()
	defer m.peersMu.RUnlock()

	return len(m.peers)
}

// Close shuts the mesh down.
func (m *Mesh) Close() error {
	m.cancel()

	if m.listener != nil {
		m.listener.Close()
	}

	m.peersMu.Lock()
	for _, p := range m.peers {
		p.Close()
	}
	m.peers = make(map[string]*Peer)
	m.peersMu.Unlock()

	m.dedup.close()
	m.wg.Wait()

	return nil
}

// gossip sends a frame to up to fanout random peers.
func (m *Mesh) gossip(kind Kind, payload []byte) error {
	peers := m.peerList()

	if m.fanout < len(peers) {
		indices := rand.Perm(len(peers))[:m.fanout]
		selected := make([]*Peer, m.fanout)
		for i, idx := range indices {
			selected[i] = peers[idx]
		}
		peers = selected
	}

	var lastErr error
	for _, p := range peers {
		if err := p.send(kind, payload); err != nil {
			lastErr = err
		}
	}

	return lastErr
}

// dispatch decodes a gossip frame and hands it to the matching handler.
// Payloads the handler accepts are re-gossiped so they flood the mesh;
// rejected or unhandled payloads die at this hop, and the dedup filter
// stops the flood from looping.
func (m *Mesh) dispatch(p *Peer, kind Kind, payload []byte) {
	m.handlersMu.RLock()
	h := m.handlers
	m.handlersMu.RUnlock()

	switch kind {
	case KindProof:
		var qp proof.QuantumProof
		if err := json.Unmarshal(payload, &qp); err != nil {
			logger.Debug("bad proof payload", "peer", p.address, "error", err)
			return
		}

		if h.Proof != nil && h.Proof(p, &qp) {
			m.gossip(KindProof, payload)
		}

	case KindAttestation:
		var a attest.Attestation
		if err := json.Unmarshal(payload, &a); err != nil {
			logger.Debug("bad attestation payload", "peer", p.address, "error", err)
			return
		}

		if h.Attestation != nil && h.Attestation(p, &a) {
			m.gossip(KindAttestation, payload)
		}

	case KindValidatorAnnounce:
		var va validatorAnnounce
		if err := json.Unmarshal(payload, &va); err != nil {
			logger.Debug("bad validator announce", "peer", p.address, "error", err)
			return
		}

		if h.ValidatorAnnounce != nil && h.ValidatorAnnounce(p, va.PublicKey) {
			m.gossip(KindValidatorAnnounce, payload)
		}

	case KindChallenge:
		var c challenge.Challenge
		if err := json.Unmarshal(payload, &c); err != nil {
			logger.Debug("bad challenge payload", "peer", p.address, "error", err)
			return
		}

		if h.Challenge != nil {
			h.Challenge(p, &c)
		}

	default:
		logger.Debug("unknown frame kind", "peer", p.address, "kind", int(kind))
	}
}

// handleRequest answers a bidirectional request.
func (m *Mesh) handleRequest(p *Peer, kind Kind, payload []byte) ([]byte, error) {
	m.handlersMu.RLock()
	h := m.handlers
	m.handlersMu.RUnlock()

	switch kind {
	case KindArchiveRequest:
		if h.ArchiveRequest == nil {
			return nil, fmt.Errorf("no archive handler registered")
		}
		return h.ArchiveRequest()

	case KindProofRequest:
		if h.ProofRequest == nil {
			return nil, fmt.Errorf("no proof handler registered")
		}
		return h.ProofRequest(string(payload))

	default:
		return nil, fmt.Errorf("unknown request kind %d", kind)
	}
}

// peerList snapshots the peer set.
func (m *Mesh) peerList() []*Peer {
	m.peersMu.RLock()
	defer m.peersMu.RUnlock()

	peers := make([]*Peer, 0, len(m.peers))
	for _, p := range m.peers {
		peers = append(peers, p)
	}

	return peers
}

// acceptLoop accepts incoming connections.
func (m *Mesh) acceptLoop() {
	defer m.wg.Done()

	for {
		conn, err := m.listener.Accept(m.ctx)
		if err != nil {
			return // Listener closed
		}

		go m.handleIncoming(conn)
	}
}

// handleIncoming sets up an inbound peer.
func (m *Mesh) handleIncoming(conn *quic.Conn) {
	if _, err := m.setupPeer(conn, conn.RemoteAddr().String()); err != nil {
		conn.CloseWithError(1, "setup failed")
	}
}

// setupPeer authenticates a connection and registers the peer.
func (m *Mesh) setupPeer(conn *quic.Conn, addr string) (*Peer, error) {
	pubKey, err := peerIdentity(conn.ConnectionState().TLS)
	if err != nil {
		return nil, fmt.Errorf("extract peer identity: %w", err)
	}

	keyHex := hex.EncodeToString(pubKey)

	peer := &Peer{
		publicKey: pubKey,
		address:   addr,
		conn:      conn,
		mesh:      m,
	}

	m.peersMu.Lock()
	m.peers[keyHex] = peer
	m.peersMu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		peer.receiveLoop()
	}()

	m.announceValidatorKey(peer)

	logger.Debug("peer connected", "peer", addr, "key", keyHex[:12])
	return peer, nil
}

// announceValidatorKey sends this node's attestation key to a new peer.
func (m *Mesh) announceValidatorKey(p *Peer) {
	m.handlersMu.RLock()
	key := m.validatorKey
	m.handlersMu.RUnlock()

	if key == nil {
		return
	}

	payload, err := json.Marshal(validatorAnnounce{PublicKey: key})
	if err != nil {
		return
	}

	m.dedup.check(payload)

	if err := p.send(KindValidatorAnnounce, payload); err != nil {
		logger.Debug("validator announce failed", "peer", p.address, "error", err)
	}
}

// handlePeerDisconnect unregisters a peer and schedules reconnection.
func (m *Mesh) handlePeerDisconnect(p *Peer) {
	keyHex := hex.EncodeToString(p.publicKey)

	m.peersMu.Lock()
	delete(m.peers, keyHex)
	m.peersMu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.reconnectPeer(keyHex)
	}()
}

// reconnectPeer redials a lost peer with exponential backoff.
func (m *Mesh) reconnectPeer(keyHex string) {
	delay := m.reconnectDelay

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-time.After(delay):
		}

		m.knownAddrsMu.RLock()
		addr, ok := m.knownAddrs[keyHex]
		m.knownAddrsMu.RUnlock()

		if !ok {
			return
		}

		m.peersMu.RLock()
		_, exists := m.peers[keyHex]
		m.peersMu.RUnlock()

		if exists {
			return // Already reconnected
		}

		if _, err := m.Connect(addr); err == nil {
			return
		}

		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}
