package escrow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// HTTPClient implements Client against the escrow gateway's REST API. The
// gateway owns keys and chain connectivity; this client only moves requests
// and responses.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates an HTTPClient for the gateway at baseURL.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		client:  http.DefaultClient,
	}
}

// CreateEscrow deploys a new escrow contract and returns its address.
func (c *HTTPClient) CreateEscrow(ctx context.Context, chainID int64, token string) (string, error) {
	var out struct {
		EscrowAddress string `json:"escrow_address"`
	}
	err := c.post(ctx, "/escrows", map[string]any{
		"chain_id": chainID,
		"token":    token,
	}, &out)
	if err != nil {
		return "", err
	}
	if !ValidAddress(out.EscrowAddress) {
		return "", fmt.Errorf("gateway returned invalid escrow address %q", out.EscrowAddress)
	}
	return out.EscrowAddress, nil
}

// FundEscrow transfers amount into the escrow.
func (c *HTTPClient) FundEscrow(ctx context.Context, chainID int64, escrowAddress string, amount float64) error {
	return c.post(ctx, "/escrows/fund", map[string]any{
		"chain_id":       chainID,
		"escrow_address": escrowAddress,
		"amount":         amount,
	}, nil)
}

// SetupEscrow writes the oracle routing and manifest pointers to the escrow.
func (c *HTTPClient) SetupEscrow(ctx context.Context, chainID int64, escrowAddress string, cfg Config) error {
	return c.post(ctx, "/escrows/setup", map[string]any{
		"chain_id":          chainID,
		"escrow_address":    escrowAddress,
		"exchange_oracle":   cfg.ExchangeOracle,
		"recording_oracle":  cfg.RecordingOracle,
		"reputation_oracle": cfg.ReputationOracle,
		"manifest_url":      cfg.ManifestURL,
		"manifest_hash":     cfg.ManifestHash,
	}, nil)
}

// CancelEscrow requests on-chain cancellation.
func (c *HTTPClient) CancelEscrow(ctx context.Context, chainID int64, escrowAddress string) error {
	return c.post(ctx, "/escrows/cancel", map[string]any{
		"chain_id":       chainID,
		"escrow_address": escrowAddress,
	}, nil)
}

// GetStatus reads the escrow's current on-chain status.
func (c *HTTPClient) GetStatus(ctx context.Context, chainID int64, escrowAddress string) (Status, error) {
	var out struct {
		Status Status `json:"status"`
	}
	path := fmt.Sprintf("/escrows/%s/status?chain_id=%d", url.PathEscape(escrowAddress), chainID)
	if err := c.get(ctx, path, &out); err != nil {
		return "", err
	}
	return out.Status, nil
}

// GetStatusEvents returns one page of status transitions matching the filter.
func (c *HTTPClient) GetStatusEvents(ctx context.Context, filter EventFilter) ([]StatusEvent, error) {
	q := url.Values{}
	for _, chainID := range filter.ChainIDs {
		q.Add("chain_id", strconv.FormatInt(chainID, 10))
	}
	for _, status := range filter.Statuses {
		q.Add("status", string(status))
	}
	if !filter.From.IsZero() {
		q.Set("from", filter.From.UTC().Format(time.RFC3339))
	}
	q.Set("first", strconv.Itoa(filter.First))
	q.Set("skip", strconv.Itoa(filter.Skip))

	var out struct {
		Events []struct {
			ChainID       int64  `json:"chain_id"`
			EscrowAddress string `json:"escrow_address"`
			Status        Status `json:"status"`
			Timestamp     int64  `json:"timestamp"`
		} `json:"events"`
	}
	if err := c.get(ctx, "/events?"+q.Encode(), &out); err != nil {
		return nil, err
	}

	events := make([]StatusEvent, 0, len(out.Events))
	for _, e := range out.Events {
		events = append(events, StatusEvent{
			ChainID:       e.ChainID,
			EscrowAddress: e.EscrowAddress,
			Status:        e.Status,
			Timestamp:     time.Unix(e.Timestamp, 0).UTC(),
		})
	}
	return events, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, body map[string]any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding gateway request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("building gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *HTTPClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("building gateway request: %w", err)
	}
	return c.do(req, out)
}

func (c *HTTPClient) do(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling escrow gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("escrow gateway returned %s for %s", resp.Status, req.URL.Path)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding gateway response: %w", err)
	}
	return nil
}
