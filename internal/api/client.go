package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrBadQueue signals that the server no longer knows the event queue,
	// typically because it expired while the client was away. The caller must
	// register a fresh queue.
	ErrBadQueue = errors.New("event queue expired or unknown")
	// ErrUnauthorized signals rejected credentials or queue token.
	ErrUnauthorized = errors.New("unauthorized")
)

// Client talks to one chat server on behalf of one account. Each account
// store owns exactly one Client.
type Client struct {
	baseURL *url.URL
	email   string
	apiKey  string
	http    *http.Client
}

// NewClient validates the server URL and prepares an HTTP client. The HTTP
// client carries no global timeout; long-poll calls are bounded by their
// context instead.
func NewClient(serverURL, email, apiKey string) (*Client, error) {
	base, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("server url %q: unsupported scheme", serverURL)
	}
	return &Client{
		baseURL: base,
		email:   email,
		apiKey:  apiKey,
		http:    &http.Client{},
	}, nil
}

// RegisterQueue registers a new event queue and returns the initial snapshot.
func (c *Client) RegisterQueue(ctx context.Context) (RegisterResponse, error) {
	var resp RegisterResponse
	if err := c.call(ctx, http.MethodPost, "/api/v1/register", nil, "", &resp); err != nil {
		return RegisterResponse{}, fmt.Errorf("register queue: %w", err)
	}
	if resp.QueueID == "" {
		return RegisterResponse{}, errors.New("register queue: empty queue id")
	}
	return resp, nil
}

// PollEvents blocks until the server returns a batch of events newer than
// lastEventID, the connection fails, or ctx is done. The returned batch may
// be empty.
func (c *Client) PollEvents(ctx context.Context, queueID, queueToken string, lastEventID int64) ([]Event, error) {
	path := "/api/v1/events?" + url.Values{
		"queue_id":      {queueID},
		"last_event_id": {strconv.FormatInt(lastEventID, 10)},
	}.Encode()

	var body struct {
		Events []json.RawMessage `json:"events"`
	}
	if err := c.call(ctx, http.MethodGet, path, nil, queueToken, &body); err != nil {
		return nil, fmt.Errorf("poll events: %w", err)
	}

	events := make([]Event, 0, len(body.Events))
	for _, raw := range body.Events {
		ev, err := DecodeEvent(raw)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

// SendMessage posts a message to the given topic.
func (c *Client) SendMessage(ctx context.Context, topic, content string) error {
	req := SendMessageRequest{Topic: topic, Content: content}
	var resp SendMessageResponse
	if err := c.call(ctx, http.MethodPost, "/api/v1/messages", req, "", &resp); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// QueueTokenExpiry extracts the expiry claim from a queue token for
// diagnostics. The token itself is opaque to the client; only the server
// verifies its signature.
func QueueTokenExpiry(token string) (time.Time, error) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, fmt.Errorf("parse queue token: %w", err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, errors.New("queue token has no expiry")
	}
	return claims.ExpiresAt.Time, nil
}

type apiError struct {
	Result string `json:"result"`
	Code   string `json:"code"`
	Msg    string `json:"msg"`
}

func (c *Client) call(ctx context.Context, method, path string, reqBody any, queueToken string, out any) error {
	var body io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	ref, err := url.Parse(path)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.ResolveReference(ref).String(), body)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.email, c.apiKey)
	if queueToken != "" {
		req.Header.Set("Authorization", "Bearer "+queueToken)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		return classifyError(resp.StatusCode, data)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func classifyError(status int, data []byte) error {
	var apiErr apiError
	_ = json.Unmarshal(data, &apiErr)

	switch {
	case apiErr.Code == "BAD_EVENT_QUEUE_ID":
		return fmt.Errorf("%w: %s", ErrBadQueue, apiErr.Msg)
	case status == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", ErrUnauthorized, apiErr.Msg)
	case apiErr.Msg != "":
		return fmt.Errorf("server error (HTTP %d): %s", status, apiErr.Msg)
	default:
		return fmt.Errorf("server error (HTTP %d)", status)
	}
}
