package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// ErrRejected is returned by Record when the server rejects the transaction
// because its chain linkage was stale. The chain itself is intact; retry
// the operation.
var ErrRejected = errors.New("transaction rejected by ledger")

// ErrContention is returned by Coordinate when one or more of the requested
// agents is already locked by another coordination.
var ErrContention = errors.New("one or more agents are locked")

// Transaction mirrors one ledger entry as returned by the server.
type Transaction struct {
	ID         string    `json:"tx_id"`
	Timestamp  time.Time `json:"timestamp"`
	Operation  string    `json:"operation"`
	DataHash   string    `json:"data_hash"`
	PrevHash   string    `json:"prev_hash"`
	MerkleRoot string    `json:"merkle_root"`
	Status     string    `json:"status"`
}

// Manifest is the chain-head snapshot returned by ManifestSnapshot.
type Manifest struct {
	ChainLength int       `json:"chain_length"`
	LatestHash  string    `json:"latest_hash"`
	GenesisHash string    `json:"genesis_hash"`
	GeneratedAt time.Time `json:"generated_at"`
}

// ChainStatus is the outcome of a full-chain verification.
type ChainStatus struct {
	Valid      bool   `json:"valid"`
	BreakIndex *int   `json:"break_index,omitempty"`
	Error      string `json:"error,omitempty"`
}

// RecordRequest is the payload for Record.
type RecordRequest struct {
	Type      string            `json:"type"`
	Files     []string          `json:"files,omitempty"`
	Operation string            `json:"operation"`
	Agent     string            `json:"agent"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Event mirrors one temporal event as returned by Timeline.
type Event struct {
	ID        string       `json:"event_id"`
	Timestamp time.Time    `json:"timestamp"`
	Kind      string       `json:"kind"`
	Agent     string       `json:"agent"`
	Payload   EventPayload `json:"payload"`
	Sequence  int          `json:"sequence"`
}

// EventPayload is the structured body of a temporal event.
type EventPayload struct {
	CoordinationID string            `json:"coordination_id,omitempty"`
	Operation      string            `json:"operation,omitempty"`
	Agents         []string          `json:"agents,omitempty"`
	Phase          string            `json:"phase,omitempty"`
	Outcome        string            `json:"outcome,omitempty"`
	Detail         map[string]string `json:"detail,omitempty"`
}

// Proof mirrors one before/after proof as returned by the server.
type Proof struct {
	ID           string    `json:"proof_id"`
	Operation    string    `json:"operation"`
	Files        []string  `json:"files"`
	BeforeHash   string    `json:"before_hash"`
	AfterHash    string    `json:"after_hash"`
	SkippedFiles []string  `json:"skipped_files,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	FinalizedAt  time.Time `json:"finalized_at,omitzero"`
	Finalized    bool      `json:"finalized"`
}

// ProofStats summarises the proof collection.
type ProofStats struct {
	Total    int `json:"total"`
	Verified int `json:"verified"`
	Pending  int `json:"pending"`
}

// IntegrityResult holds the four integrity checks and their logical AND.
type IntegrityResult struct {
	ChainIntegrity      bool   `json:"chain_integrity"`
	TemporalConsistency bool   `json:"temporal_consistency"`
	ProofValidity       bool   `json:"proof_validity"`
	ManifestAccuracy    bool   `json:"manifest_accuracy"`
	OverallIntegrity    bool   `json:"overall_integrity"`
	Error               string `json:"error,omitempty"`
}

// Report is the consolidation report snapshot returned by Report.
type Report struct {
	ReportID       string           `json:"report_id"`
	GeneratedAt    time.Time        `json:"generated_at"`
	Manifest       *Manifest        `json:"manifest"`
	TemporalEvents int              `json:"temporal_events"`
	Proofs         ProofStats       `json:"proof_statistics"`
	Integrity      *IntegrityResult `json:"integrity_verification"`
}

// Client is the Chronos SDK entry point.
type Client struct {
	base        string
	httpClient  *http.Client
	bearerToken string
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = hc
		return nil
	}
}

// WithBearerToken attaches a pre-obtained service token to every request.
func WithBearerToken(token string) Option {
	return func(c *Client) error {
		c.bearerToken = token
		return nil
	}
}

// New creates a new Chronos SDK Client connected to base, e.g.
// "http://localhost:8460".
func New(base string, opts ...Option) (*Client, error) {
	if base == "" {
		return nil, errors.New("base URL is empty")
	}
	c := &Client{
		base:       base,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustNew is like New but panics on error. Useful in tests and program init.
func MustNew(base string, opts ...Option) *Client {
	c, err := New(base, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// Record records an operation through the server's verifier and returns the
// confirmed transaction id. A stale-linkage rejection is reported as
// ErrRejected.
func (c *Client) Record(ctx context.Context, req RecordRequest) (string, error) {
	var out struct {
		TxID string `json:"tx_id"`
	}
	status, err := c.doJSON(ctx, http.MethodPost, "/api/v1/ledger/record", req, &out)
	if status == http.StatusConflict {
		return "", ErrRejected
	}
	if err != nil {
		return "", err
	}
	return out.TxID, nil
}

// VerifyChain walks the full chain server-side and returns the result.
func (c *Client) VerifyChain(ctx context.Context) (*ChainStatus, error) {
	var out ChainStatus
	if _, err := c.doJSON(ctx, http.MethodGet, "/api/v1/ledger/verify", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ManifestSnapshot fetches the current chain-head manifest.
func (c *Client) ManifestSnapshot(ctx context.Context) (*Manifest, error) {
	var out Manifest
	if _, err := c.doJSON(ctx, http.MethodGet, "/api/v1/ledger/manifest", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetTransaction fetches the transaction at chain position idx.
func (c *Client) GetTransaction(ctx context.Context, idx int) (*Transaction, error) {
	var out Transaction
	path := fmt.Sprintf("/api/v1/ledger/transactions/%d", idx)
	if _, err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Timeline fetches the sequence-ordered event timeline. Pass an empty agent
// for all events, or an agent name to filter.
func (c *Client) Timeline(ctx context.Context, agent string) ([]Event, error) {
	path := "/api/v1/timeline"
	if agent != "" {
		path += "?agent=" + url.QueryEscape(agent)
	}
	var out struct {
		Events []Event `json:"events"`
	}
	if _, err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Events, nil
}

// RegisterEvent registers a temporal event and returns its id.
func (c *Client) RegisterEvent(ctx context.Context, kind, agent string, payload EventPayload) (string, error) {
	req := struct {
		Kind    string       `json:"kind"`
		Agent   string       `json:"agent"`
		Payload EventPayload `json:"payload"`
	}{Kind: kind, Agent: agent, Payload: payload}

	var out struct {
		EventID string `json:"event_id"`
	}
	if _, err := c.doJSON(ctx, http.MethodPost, "/api/v1/events", req, &out); err != nil {
		return "", err
	}
	return out.EventID, nil
}

// Coordinate opens a coordination window over the named agents. When any
// agent is already locked by another coordination the server rejects the
// attempt and ErrContention is returned.
func (c *Client) Coordinate(ctx context.Context, operation string, agents []string) error {
	req := struct {
		Operation string   `json:"operation"`
		Agents    []string `json:"agents"`
	}{Operation: operation, Agents: agents}

	status, err := c.doJSON(ctx, http.MethodPost, "/api/v1/coordinate", req, nil)
	if status == http.StatusConflict {
		return ErrContention
	}
	return err
}

// CreateProof captures the before-state of the given fileset and returns the
// new proof.
func (c *Client) CreateProof(ctx context.Context, operation string, files []string) (*Proof, error) {
	req := struct {
		Operation string   `json:"operation"`
		Files     []string `json:"files"`
	}{Operation: operation, Files: files}

	var out Proof
	if _, err := c.doJSON(ctx, http.MethodPost, "/api/v1/proofs", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FinalizeProof captures the after-state of proof id, optionally over a
// different fileset, and returns the updated proof.
func (c *Client) FinalizeProof(ctx context.Context, id string, files []string) (*Proof, error) {
	req := struct {
		Files []string `json:"files"`
	}{Files: files}

	var out Proof
	path := "/api/v1/proofs/" + url.PathEscape(id) + "/finalize"
	if _, err := c.doJSON(ctx, http.MethodPost, path, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetProof fetches one proof by id.
func (c *Client) GetProof(ctx context.Context, id string) (*Proof, error) {
	var out Proof
	if _, err := c.doJSON(ctx, http.MethodGet, "/api/v1/proofs/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyProof applies the strict verification predicate to proof id.
func (c *Client) VerifyProof(ctx context.Context, id string) (bool, error) {
	var out struct {
		Verified bool `json:"verified"`
	}
	path := "/api/v1/proofs/" + url.PathEscape(id) + "/verify"
	if _, err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return false, err
	}
	return out.Verified, nil
}

// Integrity runs the server's four-way integrity verification.
func (c *Client) Integrity(ctx context.Context) (*IntegrityResult, error) {
	var out IntegrityResult
	if _, err := c.doJSON(ctx, http.MethodGet, "/api/v1/integrity", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Report fetches a consolidation report snapshot.
func (c *Client) Report(ctx context.Context) (*Report, error) {
	var out Report
	if _, err := c.doJSON(ctx, http.MethodGet, "/api/v1/report", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// doJSON executes one JSON request against the server. It returns the HTTP
// status code alongside any error so callers can map specific statuses
// (409, mainly) to sentinel errors.
func (c *Client) doJSON(ctx context.Context, method, path string, reqBody, respBody any) (int, error) {
	var bodyReader io.Reader
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return 0, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, bodyReader)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return resp.StatusCode, fmt.Errorf("server returned HTTP %d: %s", resp.StatusCode, apiErr.Error)
		}
		return resp.StatusCode, fmt.Errorf("server returned HTTP %d: %s", resp.StatusCode, string(body))
	}

	if respBody != nil && len(body) > 0 {
		if err := json.Unmarshal(body, respBody); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
