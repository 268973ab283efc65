// Package remote wraps the spreadsheet-backed data service. It carries
// no business logic: well-formed error replies become result values and
// only transport failure surfaces as an error.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/avlasov/farmmap/internal/farms"
)

// Actions understood by the data service.
const (
	ActionGetFarms   = "getFarms"
	ActionAddFarm    = "addFarm"
	ActionAddReview  = "addReview"
	ActionFlagReview = "flagReview"
	ActionCheckUser  = "checkUser"
)

// NetworkError marks a transport-level failure (connectivity, DNS,
// timeout). Writes that hit one are eligible for the offline queue.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("%s: network failure: %v", e.Op, e.Err) }
func (e *NetworkError) Unwrap() error { return e.Err }

// WriteResult is the service's verdict on a write. Accepted=false with
// a message is a server rejection, not a transport failure, and must
// not be retried.
type WriteResult struct {
	Accepted bool
	Message  string
}

// envelope is the service's uniform response shape. Extra fields are
// ignored; absent ones are tolerated.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
	Message string          `json:"message,omitempty"`
}

// Client talks to the Apps-Script-style endpoint: reads via
// ?action=<name> GET, writes via POST {action, ...payload}. Single-shot
// by design; retry policy belongs to the sync coordinator.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// FetchFarms loads the full farm collection.
func (c *Client) FetchFarms(ctx context.Context) ([]farms.Farm, error) {
	env, err := c.get(ctx, ActionGetFarms)
	if err != nil {
		return nil, err
	}
	if !env.Success {
		return nil, fmt.Errorf("getFarms: server error: %s", firstNonEmpty(env.Error, env.Message, "unknown"))
	}
	var out []farms.Farm
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &out); err != nil {
			return nil, fmt.Errorf("getFarms: decode data: %w", err)
		}
	}
	return out, nil
}

// SubmitWrite posts one write. kind must be one of the Action*
// write constants; payload is marshaled into the envelope alongside it.
func (c *Client) SubmitWrite(ctx context.Context, kind string, payload []byte) (WriteResult, error) {
	body := make(map[string]any)
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &body); err != nil {
			return WriteResult{}, fmt.Errorf("%s: bad payload: %w", kind, err)
		}
	}
	body["action"] = kind

	buf, err := json.Marshal(body)
	if err != nil {
		return WriteResult{}, fmt.Errorf("%s: marshal: %w", kind, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(buf))
	if err != nil {
		return WriteResult{}, fmt.Errorf("%s: build request: %w", kind, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return WriteResult{}, &NetworkError{Op: kind, Err: err}
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		// An HTTP error page instead of the envelope is still a server
		// verdict, not a connectivity problem.
		return WriteResult{Accepted: false, Message: fmt.Sprintf("unexpected response (status %d)", resp.StatusCode)}, nil
	}
	if !env.Success {
		return WriteResult{Accepted: false, Message: firstNonEmpty(env.Error, env.Message, "rejected")}, nil
	}
	return WriteResult{Accepted: true, Message: env.Message}, nil
}

// VerifyIdentity asks whether the identity is already registered.
func (c *Client) VerifyIdentity(ctx context.Context, identity string) (bool, error) {
	body := map[string]any{"action": ActionCheckUser, "email": identity}
	buf, err := json.Marshal(body)
	if err != nil {
		return false, fmt.Errorf("checkUser: marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(buf))
	if err != nil {
		return false, fmt.Errorf("checkUser: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, &NetworkError{Op: ActionCheckUser, Err: err}
	}
	defer resp.Body.Close()

	var env struct {
		envelope
		Registered bool `json:"registered"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		// A garbled body must not read as "not registered".
		return false, fmt.Errorf("checkUser: unexpected response (status %d)", resp.StatusCode)
	}
	return env.Success && env.Registered, nil
}

func (c *Client) get(ctx context.Context, action string) (envelope, error) {
	url := fmt.Sprintf("%s?action=%s", c.baseURL, action)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return envelope{}, fmt.Errorf("%s: build request: %w", action, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return envelope{}, &NetworkError{Op: action, Err: err}
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return envelope{}, fmt.Errorf("%s: decode: %w", action, err)
	}
	return env, nil
}

func firstNonEmpty(ss ...string) string {
	for _, s := range ss {
		if s != "" {
			return s
		}
	}
	return ""
}
