package network

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quic-go/quic-go"

	"HexPoQ/internal/logger"
)

// defaultRequestTimeout bounds Request calls whose context has no deadline.
const defaultRequestTimeout = 30 * time.Second

// Peer is a live connection to a remote mesh node.
type Peer struct {
	publicKey ed25519.PublicKey // publicKey is the remote node's identity
	address   string            // address is the remote address, kept for reconnection
	conn      *quic.Conn
	mesh      *Mesh
	closed    atomic.Bool
	mu        sync.Mutex // mu serializes stream opens for sends
}

// PublicKey returns the remote node's identity key.
func (p *Peer) PublicKey() ed25519.PublicKey {
	return p.publicKey
}

// Address returns the remote address.
func (p *Peer) Address() string {
	return p.address
}

// send ships one frame on a fresh unidirectional stream.
func (p *Peer) send(kind Kind, payload []byte) error {
	if p.closed.Load() {
		return fmt.Errorf("peer is closed")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	stream, err := p.conn.OpenUniStreamSync(context.Background())
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}

	if err := writeFrame(stream, kind, payload); err != nil {
		stream.Close()
		return fmt.Errorf("write frame: %w", err)
	}

	return stream.Close()
}

// request sends a frame on a bidirectional stream and waits for the reply.
func (p *Peer) request(ctx context.Context, kind Kind, payload []byte) ([]byte, error) {
	if p.closed.Load() {
		return nil, fmt.Errorf("peer is closed")
	}

	stream, err := p.conn.OpenStreamSync(ctx)
	if err != nil {
		return nil, fmt.Errorf("open stream:\n%w", err)
	}
	defer stream.Close()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultRequestTimeout)
	}
	stream.SetDeadline(deadline)

	if err := writeFrame(stream, kind, payload); err != nil {
		return nil, fmt.Errorf("write request:\n%w", err)
	}

	_, response, err := readFrame(stream)
	if err != nil {
		return nil, fmt.Errorf("read response:\n%w", err)
	}

	return response, nil
}

// Close closes the peer connection.
func (p *Peer) Close() error {
	if p.closed.Swap(true) {
		return nil
	}

	return p.conn.CloseWithError(0, "closed")
}

// receiveLoop accepts incoming streams until the connection drops.
func (p *Peer) receiveLoop() {
	go p.acceptBidiStreams(context.Background())

	for {
		stream, err := p.conn.AcceptUniStream(context.Background())
		if err != nil {
			logger.Debug("peer receive loop ended", "peer", p.address, "error", err)
			break
		}

		go p.handleUniStream(stream)
	}

	p.handleDisconnect()
}

// acceptBidiStreams serves request/response streams.
func (p *Peer) acceptBidiStreams(ctx context.Context) {
	for {
		stream, err := p.conn.AcceptStream(ctx)
		if err != nil {
			return
		}

		go p.handleBidiStream(stream)
	}
}

// handleBidiStream answers one request.
func (p *Peer) handleBidiStream(stream *quic.Stream) {
	defer stream.Close()

	kind, payload, err := readFrame(stream)
	if err != nil {
		return
	}

	response, err := p.mesh.handleRequest(p, kind, payload)
	if err != nil {
		logger.Debug("request failed", "peer", p.address, "kind", int(kind), "error", err)
		return
	}

	writeFrame(stream, kind, response)
}

// handleUniStream processes one gossip frame, dropping duplicates.
func (p *Peer) handleUniStream(stream *quic.ReceiveStream) {
	kind, payload, err := readFrame(stream)
	if err != nil {
		logger.Debug("stream read error", "peer", p.address, "error", err)
		return
	}

	if !p.mesh.dedup.check(payload) {
		return
	}

	p.mesh.dispatch(p, kind, payload)
}

// handleDisconnect tears the peer down and schedules reconnection.
func (p *Peer) handleDisconnect() {
	if p.closed.Swap(true) {
		return
	}

	p.mesh.handlePeerDisconnect(p)
}
