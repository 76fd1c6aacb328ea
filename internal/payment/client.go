package payment

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// StatusError is a non-200 reply from the intent endpoint.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("intent endpoint returned %d: %s", e.Code, e.Message)
}

var _ IntentCreator = (*Client)(nil)

// Client calls a remote intent endpoint served by IntentHandler.
type Client struct {
	endpoint string
	http     *http.Client
}

// NewClient creates a Client posting to endpoint. A zero timeout keeps the
// http.Client default.
func NewClient(endpoint string, timeout time.Duration, transport http.RoundTripper) *Client {
	return &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: timeout, Transport: transport},
	}
}

// CreateIntent posts the cart and email and returns the client secret.
func (c *Client) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(EncodeIntentRequest(req)))
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "post intent")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxIntentBody))
	if err != nil {
		return nil, errors.Wrap(err, "read response")
	}

	var secret, msg string
	decodeErr := jx.DecodeBytes(body).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "clientSecret":
			s, err := d.Str()
			secret = s
			return err
		case "error":
			s, err := d.Str()
			msg = s
			return err
		default:
			return d.Skip()
		}
	})

	if resp.StatusCode != http.StatusOK {
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &StatusError{Code: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return nil, errors.Wrap(decodeErr, "decode response")
	}
	if secret == "" {
		return nil, ErrMissingSecret
	}
	id, err := IntentIDFromSecret(secret)
	if err != nil {
		return nil, err
	}
	return &Intent{ID: id, ClientSecret: secret}, nil
}
