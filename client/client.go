// Package client is the HTTP client for a HexPoQ node.
package client

import (
	"fmt"

	"HexPoQ/internal/challenge"
	"HexPoQ/internal/proof"
)

// Client connects to a HexPoQ node via HTTP.
type Client struct {
	nodeAddr string // nodeAddr is the HTTP address (e.g. "127.0.0.1:8080")
}

// Status holds the node state reported by /status.
type Status struct {
	Backend        string `json:"backend"`        // Backend is the node's quantum backend name
	Peers          int    `json:"peers"`          // Peers is the connected mesh peer count
	AcceptedProofs int    `json:"acceptedProofs"` // AcceptedProofs is the archive size
	OpenChallenges int    `json:"openChallenges"` // OpenChallenges is the open challenge count
}

// NewClient creates a client for a node address.
func NewClient(nodeAddr string) *Client {
	return &Client{nodeAddr: nodeAddr}
}

// RequestProof asks the node to generate a proof on its backend.
func (c *Client) RequestProof(qubitBudget, difficulty int) (*proof.QuantumProof, error) {
	body := map[string]int{
		"qubit_budget": qubitBudget,
		"difficulty":   difficulty,
	}

	var p proof.QuantumProof
	if err := httpPostJSON(c.url("/prove"), body, &p); err != nil {
		return nil, fmt.Errorf("request proof:\n%w", err)
	}

	return &p, nil
}

// SubmitProof submits a proof for verification.
// Returns the accepted artifact hash.
func (c *Client) SubmitProof(p *proof.QuantumProof) (string, error) {
	var result struct {
		Artifact string `json:"artifact"`
	}

	if err := httpPostJSON(c.url("/proof"), p, &result); err != nil {
		return "", fmt.Errorf("submit proof:\n%w", err)
	}

	return result.Artifact, nil
}

// GetProof fetches an accepted proof by artifact.
func (c *Client) GetProof(artifact string) (*proof.QuantumProof, error) {
	var p proof.QuantumProof
	if err := httpGet(c.url("/proof/"+artifact), &p); err != nil {
		return nil, fmt.Errorf("get proof:\n%w", err)
	}

	return &p, nil
}

// IssueChallenge opens a new challenge on the node.
func (c *Client) IssueChallenge(qubitBudget, difficulty int) (*challenge.Challenge, error) {
	body := map[string]int{
		"qubit_budget": qubitBudget,
		"difficulty":   difficulty,
	}

	var ch challenge.Challenge
	if err := httpPostJSON(c.url("/challenge"), body, &ch); err != nil {
		return nil, fmt.Errorf("issue challenge:\n%w", err)
	}

	return &ch, nil
}

// Challenges lists the node's open challenges.
func (c *Client) Challenges() ([]challenge.Challenge, error) {
	var open []challenge.Challenge
	if err := httpGet(c.url("/challenges"), &open); err != nil {
		return nil, fmt.Errorf("list challenges:\n%w", err)
	}

	return open, nil
}

// SubmitChallenge settles a challenge with a proof on behalf of a validator.
// Returns the credited reward.
func (c *Client) SubmitChallenge(validator, challengeID string, p *proof.QuantumProof) (int64, error) {
	body := map[string]any{
		"validator": validator,
		"proof":     p,
	}

	var result struct {
		Reward int64 `json:"reward"`
	}

	if err := httpPostJSON(c.url("/challenge/"+challengeID+"/submit"), body, &result); err != nil {
		return 0, fmt.Errorf("submit challenge:\n%w", err)
	}

	return result.Reward, nil
}

// Score returns a validator's accumulated score.
func (c *Client) Score(validator string) (int64, error) {
	var result struct {
		Score int64 `json:"score"`
	}

	if err := httpGet(c.url("/score/"+validator), &result); err != nil {
		return 0, fmt.Errorf("get score:\n%w", err)
	}

	return result.Score, nil
}

// Status returns the node's current status.
func (c *Client) Status() (*Status, error) {
	var s Status
	if err := httpGet(c.url("/status"), &s); err != nil {
		return nil, fmt.Errorf("get status:\n%w", err)
	}

	return &s, nil
}

// url builds the full endpoint URL for a path.
func (c *Client) url(path string) string {
	return "http://" + c.nodeAddr + path
}
