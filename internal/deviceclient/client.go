// Package deviceclient issues the HTTP calls the sync engine needs and
// normalizes every transport-level failure into a *RequestError. It carries
// no retry logic; the poller's next tick is the retry.
package deviceclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/FASTSHIFT/FPBInject-sub001/internal/api"
)

const defaultUnaryTimeout = 10 * time.Second

type Client struct {
	baseURL      string
	client       *http.Client
	unaryTimeout time.Duration
}

func New(baseURL string) *Client {
	return NewWithClient(baseURL, &http.Client{})
}

func NewWithClient(baseURL string, client *http.Client) *Client {
	if client == nil {
		client = &http.Client{}
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		client:       client,
		unaryTimeout: defaultUnaryTimeout,
	}
}

func (c *Client) WithUnaryTimeout(timeout time.Duration) *Client {
	if c == nil {
		return nil
	}
	clone := *c
	clone.unaryTimeout = timeout
	return &clone
}

// RequestError covers every transport-level failure: network errors, non-2xx
// status, a non-JSON content type, or an empty/unparsable body. Callers
// treat any of these as one failed cycle.
type RequestError struct {
	StatusCode int
	Message    string
}

func (e *RequestError) Error() string {
	if e == nil {
		return ""
	}
	message := strings.TrimSpace(e.Message)
	if e.StatusCode > 0 && message != "" {
		return fmt.Sprintf("http %d: %s", e.StatusCode, message)
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("http %d", e.StatusCode)
	}
	if message != "" {
		return message
	}
	return "http error"
}

// Poll fetches everything the device appended since the two stream cursors.
func (c *Client) Poll(ctx context.Context, toolSince, rawSince int64) (api.PollResponse, error) {
	query := url.Values{}
	query.Set("tool_since", strconv.FormatInt(toolSince, 10))
	query.Set("raw_since", strconv.FormatInt(rawSince, 10))
	var resp api.PollResponse
	if err := c.getJSON(ctx, "/poll", query, &resp); err != nil {
		return api.PollResponse{}, err
	}
	return resp, nil
}

// ClearSlot asks the device to free a single patch slot.
func (c *Client) ClearSlot(ctx context.Context, id int) (api.MutateResponse, error) {
	return c.mutate(ctx, api.MutateRequest{SlotID: &id})
}

// ClearAllSlots asks the device to free every patch slot.
func (c *Client) ClearAllSlots(ctx context.Context) (api.MutateResponse, error) {
	return c.mutate(ctx, api.MutateRequest{All: true})
}

// SlotInfo fetches the full slot snapshot.
func (c *Client) SlotInfo(ctx context.Context) (api.SlotInfoResponse, error) {
	var resp api.SlotInfoResponse
	if err := c.getJSON(ctx, "/slot-info", nil, &resp); err != nil {
		return api.SlotInfoResponse{}, err
	}
	return resp, nil
}

// DeviceInfo performs the out-of-band protocol discovery.
func (c *Client) DeviceInfo(ctx context.Context) (api.DeviceInfoResponse, error) {
	var resp api.DeviceInfoResponse
	if err := c.getJSON(ctx, "/device-info", nil, &resp); err != nil {
		return api.DeviceInfoResponse{}, err
	}
	return resp, nil
}

func (c *Client) mutate(ctx context.Context, req api.MutateRequest) (api.MutateResponse, error) {
	body, err := c.request(ctx, http.MethodPost, "/mutate", nil, req)
	if err != nil {
		return api.MutateResponse{}, err
	}
	var resp api.MutateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return api.MutateResponse{}, &RequestError{Message: fmt.Sprintf("decode mutate response: %v", err)}
	}
	return resp, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	body, err := c.request(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &RequestError{Message: fmt.Sprintf("decode %s response: %v", path, err)}
	}
	return nil
}

func (c *Client) request(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	reqCtx := ctx
	if c.unaryTimeout > 0 {
		if deadline, ok := ctx.Deadline(); !ok || time.Until(deadline) > c.unaryTimeout {
			var cancel context.CancelFunc
			reqCtx, cancel = context.WithTimeout(ctx, c.unaryTimeout)
			defer cancel()
		}
	}
	var reqBody io.Reader
	if body != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(body); err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reqBody = buf
	}
	req, err := http.NewRequestWithContext(reqCtx, method, u, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &RequestError{Message: err.Error()}
	}
	defer resp.Body.Close() //nolint:errcheck

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RequestError{StatusCode: resp.StatusCode, Message: err.Error()}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var er api.ErrorResponse
		if err := json.Unmarshal(payload, &er); err == nil && er.Error.Message != "" {
			return nil, &RequestError{StatusCode: resp.StatusCode, Message: er.Error.Message}
		}
		return nil, &RequestError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(payload))}
	}
	if !jsonContentType(resp.Header.Get("Content-Type")) {
		return nil, &RequestError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("unexpected content type %q", resp.Header.Get("Content-Type"))}
	}
	if strings.TrimSpace(string(payload)) == "" {
		return nil, &RequestError{StatusCode: resp.StatusCode, Message: "empty response body"}
	}
	return payload, nil
}

func jsonContentType(value string) bool {
	if strings.TrimSpace(value) == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(value)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}
