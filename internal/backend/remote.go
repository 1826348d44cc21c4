package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"HexPoQ/internal/circuit"
)

// maxResponseSize caps remote backend responses (histograms can be large
// but are bounded by shots).
const maxResponseSize = 8 << 20

// Remote executes circuits on an external HTTP quantum service.
// The circuit is shipped as its canonical descriptor so the service sees
// exactly the structure the proof will be bound to.
type Remote struct {
	url    string
	shots  int
	client *http.Client
}

// NewRemote creates a remote backend for the given endpoint URL.
// Timeouts come from the caller's context, not the client.
func NewRemote(url string, shots int) *Remote {
	return &Remote{
		url:    url,
		shots:  shots,
		client: &http.Client{},
	}
}

// Name returns the backend name recorded in proof metadata.
func (r *Remote) Name() string {
	return "remote"
}

// executeRequest is the wire form of a remote execution request.
type executeRequest struct {
	CircuitDescriptor string `json:"circuit_descriptor"`
	Shots             int    `json:"shots"`
}

// Execute POSTs the circuit to the remote service and decodes the outcome.
// Transport failures and cancellations surface as ErrUnavailable.
func (r *Remote) Execute(ctx context.Context, lat *circuit.Lattice, sched *circuit.Schedule) (*Result, error) {
	body, err := json.Marshal(executeRequest{
		CircuitDescriptor: circuit.EncodeDescriptor(lat, sched),
		Shots:             r.shots,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { io.Copy(io.Discard, resp.Body); resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var result Result
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrMalformedOutput, err)
	}

	return &result, nil
}
