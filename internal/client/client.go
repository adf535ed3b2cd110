// Package client is a REST client for the prediction API served by otpserve.
package client

import (
	"context"
	"fmt"
	"strings"
	"time"

	"otp-predictor/internal/ml"

	"github.com/go-resty/resty/v2"
)

// APIError is a non-2xx answer from the server. Kind carries the
// prediction error kind when the server reported one.
type APIError struct {
	Status    int
	Kind      ml.ErrorKind
	Message   string
	RequestID string
}

func (e *APIError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("api error %d (%s): %s", e.Status, e.Kind, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// Is lets errors.Is match a typed prediction failure against the ml
// sentinels, e.g. errors.Is(err, ml.ErrShapeMismatch).
func (e *APIError) Is(target error) bool {
	switch target {
	case ml.ErrShapeMismatch:
		return e.Kind == ml.KindShapeMismatch
	case ml.ErrEncoding:
		return e.Kind == ml.KindEncoding
	case ml.ErrUnknown:
		return e.Kind == ml.KindUnknown
	}
	return false
}

type Client struct {
	base string
	rest *resty.Client
}

func New(base string, timeout time.Duration) *Client {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(5 * time.Second) // default fallback
	}
	r.SetHeader("Accept", "application/json")
	return &Client{base: strings.TrimRight(base, "/"), rest: r}
}

// Predict asks the server for the on-time arrival percentage of req.
func (c *Client) Predict(ctx context.Context, req ml.PredictionRequest) (*ml.PredictionResponse, error) {
	out := &ml.PredictionResponse{}
	apiErr := &ml.ErrorResponse{}

	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(out).
		SetError(apiErr).
		Post(c.base + "/api/predict")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.IsError() {
		return nil, toAPIError(resp, apiErr)
	}
	return out, nil
}

// Health returns the server health.
func (c *Client) Health(ctx context.Context) (*ml.HealthStatus, error) {
	out := &ml.HealthStatus{}
	if err := c.get(ctx, "/api/health", out); err != nil {
		return nil, err
	}
	return out, nil
}

// ModelInfo returns the metadata of the served model.
func (c *Client) ModelInfo(ctx context.Context) (*ml.ModelMetadata, error) {
	out := &ml.ModelMetadata{}
	if err := c.get(ctx, "/api/model/info", out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	apiErr := &ml.ErrorResponse{}
	resp, err := c.rest.R().
		SetContext(ctx).
		SetResult(out).
		SetError(apiErr).
		Get(c.base + path)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if resp.IsError() {
		return toAPIError(resp, apiErr)
	}
	return nil
}

func toAPIError(resp *resty.Response, body *ml.ErrorResponse) *APIError {
	e := &APIError{
		Status:    resp.StatusCode(),
		Kind:      ml.ErrorKind(body.Kind),
		Message:   body.Error,
		RequestID: body.RequestID,
	}
	if e.Message == "" {
		e.Message = strings.TrimSpace(resp.String())
	}
	return e
}
