package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"HexPoQ/internal/backend"
	"HexPoQ/internal/challenge"
	"HexPoQ/internal/logger"
	"HexPoQ/internal/proof"
	"HexPoQ/internal/verifier"
)

const (
	// maxProofSize is the maximum accepted proof submission size.
	maxProofSize = 1 << 20 // 1 MB
)

// ProofGenerator produces proofs on request.
type ProofGenerator interface {
	Generate(ctx context.Context, qubitBudget, difficulty int) (*proof.QuantumProof, error)
}

// ProofVerifier validates submitted proofs.
type ProofVerifier interface {
	Verify(p *proof.QuantumProof) error
}

// ChallengeService issues and settles challenges.
type ChallengeService interface {
	Issue(qubitBudget, difficulty int) (*challenge.Challenge, error)
	Submit(validator, challengeID string, p *proof.QuantumProof) (int64, error)
	Open() []*challenge.Challenge
	Score(validator string) (int64, error)
}

// ProofArchiver exposes accepted proofs for retrieval.
type ProofArchiver interface {
	LoadProof(artifact string) (*proof.QuantumProof, error)
	CountProofs() (int, error)
}

// StatusProvider exposes node state for monitoring.
type StatusProvider interface {
	BackendName() string
	PeerCount() int
}

// Server is the HTTP API server.
type Server struct {
	addr      string           // addr is the HTTP listen address
	prover    ProofGenerator   // prover generates proofs locally
	verifier  ProofVerifier    // verifier validates submissions
	challenge ChallengeService // challenge issues and settles challenges
	archive   ProofArchiver    // archive serves accepted proofs
	status    StatusProvider   // status provides node state for monitoring
	onAccept  func(*proof.QuantumProof)
	server    *http.Server
}

// New creates a new HTTP API server.
func New(addr string, prover ProofGenerator, v ProofVerifier, cs ChallengeService, archiver ProofArchiver, status StatusProvider) *Server {
	return &Server{
		addr:      addr,
		prover:    prover,
		verifier:  v,
		challenge: cs,
		archive:   archiver,
		status:    status,
	}
}

// OnAccept sets a hook called after a proof passes verification,
// with the store mark already durable. The node uses it to persist and
// gossip accepted proofs.
func (s *Server) OnAccept(fn func(*proof.QuantumProof)) {
	s.onAccept = fn
}

// routes builds the request multiplexer.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /prove", s.handleProve)
	mux.HandleFunc("POST /proof", s.handleSubmitProof)
	mux.HandleFunc("GET /proof/{artifact}", s.handleGetProof)
	mux.HandleFunc("POST /challenge", s.handleIssueChallenge)
	mux.HandleFunc("GET /challenges", s.handleListChallenges)
	mux.HandleFunc("POST /challenge/{id}/submit", s.handleSubmitChallenge)
	mux.HandleFunc("GET /score/{validator}", s.handleScore)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /health", s.handleHealth)

	return mux
}

// Start starts the HTTP server in a goroutine.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second, // proof generation can be slow
	}

	go func() {
		logger.Info("http api started", "addr", s.addr)

		if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// proveRequest is the body of POST /prove.
type proveRequest struct {
	QubitBudget int `json:"qubit_budget"`
	Difficulty  int `json:"difficulty"`
}

// handleProve generates a proof on the local backend.
func (s *Server) handleProve(w http.ResponseWriter, r *http.Request) {
	var req proveRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxProofSize)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}

	if req.QubitBudget <= 0 {
		writeError(w, http.StatusBadRequest, "qubit_budget must be positive")
		return
	}

	p, err := s.prover.Generate(r.Context(), req.QubitBudget, req.Difficulty)
	if err != nil {
		if errors.Is(err, backend.ErrUnavailable) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, p)
}

// handleSubmitProof verifies a submitted proof and records its artifact.
func (s *Server) handleSubmitProof(w http.ResponseWriter, r *http.Request) {
	var p proof.QuantumProof
	if err := json.NewDecoder(io.LimitReader(r.Body, maxProofSize)).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid proof: %v", err))
		return
	}

	if err := s.verifier.Verify(&p); err != nil {
		writeError(w, verificationStatus(err), err.Error())
		return
	}

	if s.onAccept != nil {
		s.onAccept(&p)
	}

	logger.Debug("proof accepted", "artifact", p.ProofArtifact[:16])

	writeJSON(w, http.StatusAccepted, map[string]string{
		"artifact": p.ProofArtifact,
	})
}

// handleGetProof returns an accepted proof by artifact.
func (s *Server) handleGetProof(w http.ResponseWriter, r *http.Request) {
	artifact := r.PathValue("artifact")

	p, err := s.archive.LoadProof(artifact)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, "unknown artifact")
		return
	}

	writeJSON(w, http.StatusOK, p)
}

// challengeRequest is the body of POST /challenge.
type challengeRequest struct {
	QubitBudget int `json:"qubit_budget"`
	Difficulty  int `json:"difficulty"`
}

// handleIssueChallenge opens a new challenge.
func (s *Server) handleIssueChallenge(w http.ResponseWriter, r *http.Request) {
	var req challengeRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxProofSize)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}

	if req.QubitBudget <= 0 {
		writeError(w, http.StatusBadRequest, "qubit_budget must be positive")
		return
	}

	c, err := s.challenge.Issue(req.QubitBudget, req.Difficulty)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, c)
}

// handleListChallenges returns the open challenges.
func (s *Server) handleListChallenges(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.challenge.Open())
}

// challengeSubmission is the body of POST /challenge/{id}/submit.
type challengeSubmission struct {
	Validator string              `json:"validator"`
	Proof     *proof.QuantumProof `json:"proof"`
}

// handleSubmitChallenge settles a challenge with a proof.
func (s *Server) handleSubmitChallenge(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var sub challengeSubmission
	if err := json.NewDecoder(io.LimitReader(r.Body, maxProofSize)).Decode(&sub); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid submission: %v", err))
		return
	}

	if sub.Validator == "" {
		writeError(w, http.StatusBadRequest, "validator is required")
		return
	}

	reward, err := s.challenge.Submit(sub.Validator, id, sub.Proof)
	if err != nil {
		writeError(w, submissionStatus(err), err.Error())
		return
	}

	if s.onAccept != nil && sub.Proof != nil {
		s.onAccept(sub.Proof)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"reward": reward,
	})
}

// handleScore returns a validator's accumulated score.
func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	validator := r.PathValue("validator")

	score, err := s.challenge.Score(validator)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"validator": validator,
		"score":     score,
	})
}

// handleStatus returns node state for monitoring.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.status == nil {
		writeError(w, http.StatusServiceUnavailable, "status not available")
		return
	}

	proofs, err := s.archive.CountProofs()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"backend":        s.status.BackendName(),
		"peers":          s.status.PeerCount(),
		"acceptedProofs": proofs,
		"openChallenges": len(s.challenge.Open()),
	})
}

// handleHealth handles GET /health requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// verificationStatus maps a verification failure to an HTTP status.
// Replays are conflicts; everything else in the pipeline is a bad request.
func verificationStatus(err error) int {
	if errors.Is(err, verifier.ErrReplayDetected) {
		return http.StatusConflict
	}

	return http.StatusBadRequest
}

// submissionStatus maps a challenge settlement failure to an HTTP status.
func submissionStatus(err error) int {
	switch {
	case errors.Is(err, challenge.ErrChallengeNotFound):
		return http.StatusNotFound
	case errors.Is(err, challenge.ErrChallengeExpired):
		return http.StatusGone
	case errors.Is(err, challenge.ErrCircuitMismatch):
		return http.StatusBadRequest
	default:
		return verificationStatus(err)
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}
