// Package remoteapi implements the HTTP client for the remote streaming
// control API. The API itself is an external collaborator; this package only
// consumes the surface the bridge needs.
package remoteapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	ferrors "git.home.luguber.info/inful/connectbridge/internal/foundation/errors"
)

const defaultTimeout = 5 * time.Second

// Client talks to the remote control API over HTTP. All calls use short
// per-request timeouts; the bridge never blocks an event handler on a slow
// remote for long.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a client for the given base URL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// WithToken sets the bearer token sent on every request.
func (c *Client) WithToken(token string) *Client {
	c.token = token
	return c
}

// Player returns the current remote player state, or nil when the remote
// reports no active session. A nil state is not an error.
func (c *Client) Player(ctx context.Context) (*PlayerState, error) {
	resp, err := c.do(ctx, http.MethodGet, "/player", nil)
	if err != nil {
		return nil, err
	}
	defer drain(resp)

	switch resp.StatusCode {
	case http.StatusOK:
		var state PlayerState
		if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryRemote, "decoding player state").Build()
		}
		return &state, nil
	case http.StatusNoContent:
		return nil, nil
	default:
		return nil, c.statusError("player", resp)
	}
}

// PlayerNext asks the remote session to advance to the next track.
func (c *Client) PlayerNext(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodPost, "/player/next", nil)
	if err != nil {
		return err
	}
	defer drain(resp)

	if resp.StatusCode >= http.StatusBadRequest {
		return c.statusError("player/next", resp)
	}
	return nil
}

// PlayerPause pauses the remote session on the given remote device.
func (c *Client) PlayerPause(ctx context.Context, remoteDeviceID string) error {
	q := url.Values{"deviceId": {remoteDeviceID}}
	resp, err := c.do(ctx, http.MethodPut, "/player/pause?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	defer drain(resp)

	if resp.StatusCode >= http.StatusBadRequest {
		return c.statusError("player/pause", resp)
	}
	return nil
}

// PlayerVolume pushes a volume percentage for the given remote device.
func (c *Client) PlayerVolume(ctx context.Context, remoteDeviceID string, percent int) error {
	q := url.Values{
		"deviceId": {remoteDeviceID},
		"percent":  {strconv.Itoa(percent)},
	}
	resp, err := c.do(ctx, http.MethodPut, "/player/volume?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	defer drain(resp)

	if resp.StatusCode >= http.StatusBadRequest {
		return c.statusError("player/volume", resp)
	}
	return nil
}

// Devices lists the devices the remote API currently knows about.
func (c *Client) Devices(ctx context.Context) ([]Device, error) {
	resp, err := c.do(ctx, http.MethodGet, "/devices", nil)
	if err != nil {
		return nil, err
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError("devices", resp)
	}

	var payload struct {
		Devices []Device `json:"devices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryRemote, "decoding device list").Build()
	}
	return payload.Devices, nil
}

// IDFromMac resolves a local device id (MAC) to the remote device id. The
// second return value is false when the remote does not know the device yet;
// that is a normal state shortly after helper startup, not an error.
func (c *Client) IDFromMac(ctx context.Context, deviceID string) (string, bool, error) {
	q := url.Values{"mac": {deviceID}}
	resp, err := c.do(ctx, http.MethodGet, "/device-id?"+q.Encode(), nil)
	if err != nil {
		return "", false, err
	}
	defer drain(resp)

	switch resp.StatusCode {
	case http.StatusOK:
		var payload struct {
			ID string `json:"id"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return "", false, ferrors.WrapError(err, ferrors.CategoryRemote, "decoding device id").Build()
		}
		return payload.ID, payload.ID != "", nil
	case http.StatusNotFound, http.StatusNoContent:
		return "", false, nil
	default:
		return "", false, c.statusError("device-id", resp)
	}
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryInternal, "building remote API request").Build()
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryNetwork, "remote API unreachable").
			WithContext("path", path).
			Build()
	}
	return resp, nil
}

func (c *Client) statusError(op string, resp *http.Response) error {
	return ferrors.RemoteError(fmt.Sprintf("remote API %s returned %d", op, resp.StatusCode)).
		WithContext("status", resp.StatusCode).
		Build()
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
}
