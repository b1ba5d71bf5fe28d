package check

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cyderes/check-export-service/internal/config"
	"github.com/cyderes/check-export-service/internal/flatten"
	"github.com/cyderes/check-export-service/internal/models"
)

// TokenHeader carries the API key on every request
const TokenHeader = "X-Check-Token"

// Params identifies one export request
type Params struct {
	Team string
	Key  string
	Host string
}

// ParamsFromConfig trims the configured credentials
func ParamsFromConfig(cfg config.CheckConfig) Params {
	return Params{Team: cfg.Team, Key: cfg.APIKey, Host: cfg.Host}.normalized()
}

func (p Params) normalized() Params {
	return Params{
		Team: strings.TrimSpace(p.Team),
		Key:  strings.TrimSpace(p.Key),
		Host: strings.TrimRight(strings.TrimSpace(p.Host), "/"),
	}
}

// Querier fetches a team document
type Querier interface {
	Query(ctx context.Context, params Params) (*models.Document, error)
}

// Client queries the Check GraphQL API
type Client struct {
	httpClient *http.Client
	retryCount int
	backoff    time.Duration
	logger     *logrus.Logger
}

// NewClient creates a new Check API client
func NewClient(cfg config.IngestionConfig, logger *logrus.Logger) *Client {
	retries := cfg.RetryCount
	if retries < 1 {
		retries = 1
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		retryCount: retries,
		backoff:    time.Second,
		logger:     logger,
	}
}

// Query fetches the team document, retrying network failures
func (c *Client) Query(ctx context.Context, params Params) (*models.Document, error) {
	params = params.normalized()
	var lastErr error

	for attempt := 0; attempt < c.retryCount; attempt++ {
		doc, err := c.queryOnce(ctx, params)
		if err == nil {
			return doc, nil
		}

		lastErr = err
		var fe *FetchError
		if !errors.As(err, &fe) || !fe.Retryable() {
			return nil, err
		}

		c.logger.WithFields(logrus.Fields{
			"team":    params.Team,
			"attempt": attempt + 1,
			"error":   err.Error(),
		}).Warn("Check query failed")

		if attempt < c.retryCount-1 {
			waitTime := time.Duration(attempt+1) * c.backoff
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(waitTime):
			}
		}
	}

	var fe *FetchError
	if errors.As(lastErr, &fe) {
		return nil, &FetchError{
			Kind:    fe.Kind,
			Message: fmt.Sprintf("failed after %d attempts: %s", c.retryCount, fe.Message),
			Err:     fe.Err,
		}
	}
	return nil, lastErr
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphQLError struct {
	Message string `json:"message"`
}

// envelope is the part of the response read before the document itself
type envelope struct {
	Data *struct {
		Team json.RawMessage `json:"team"`
	} `json:"data"`
	Error  json.RawMessage `json:"error"`
	Errors []graphQLError  `json:"errors"`
}

// queryOnce performs a single request
func (c *Client) queryOnce(ctx context.Context, params Params) (*models.Document, error) {
	payload, err := json.Marshal(graphQLRequest{
		Query:     teamQuery,
		Variables: map[string]any{"slug": params.Team},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, params.Host+"/api/graphql", bytes.NewReader(payload))
	if err != nil {
		return nil, &FetchError{Kind: KindNetwork, Message: "failed to create request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(TokenHeader, params.Key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &FetchError{Kind: KindNetwork, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{Kind: KindNetwork, Message: "failed to read response body", Err: err}
	}

	var env envelope
	decodeErr := json.Unmarshal(body, &env)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		msg := fmt.Sprintf("API returned status %d", resp.StatusCode)
		if decodeErr == nil {
			if m := env.message(); m != "" {
				msg = m
			}
		}
		return nil, &FetchError{Kind: KindAuth, Message: msg}
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, &FetchError{Kind: KindNetwork, Message: fmt.Sprintf("API returned status %d", resp.StatusCode)}
	}

	if decodeErr != nil {
		return nil, &FetchError{Kind: KindDecode, Message: "failed to unmarshal response", Err: decodeErr}
	}
	if m := env.message(); m != "" {
		return nil, &FetchError{Kind: KindQuery, Message: m}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{Kind: KindNetwork, Message: fmt.Sprintf("API returned status %d", resp.StatusCode)}
	}
	if env.Data == nil || len(env.Data.Team) == 0 || string(env.Data.Team) == "null" {
		return nil, &FetchError{Kind: KindQuery, Message: fmt.Sprintf("team %q not found", params.Team)}
	}

	var doc models.Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", flatten.ErrMalformedDocument, err)
	}

	return &doc, nil
}

// message returns the first error message the service reported, if any
func (e *envelope) message() string {
	if len(e.Error) > 0 && string(e.Error) != "null" {
		var s string
		if err := json.Unmarshal(e.Error, &s); err == nil {
			return s
		}
		var obj graphQLError
		if err := json.Unmarshal(e.Error, &obj); err == nil && obj.Message != "" {
			return obj.Message
		}
		return string(e.Error)
	}
	if len(e.Errors) > 0 {
		if e.Errors[0].Message != "" {
			return e.Errors[0].Message
		}
		return "unknown query error"
	}
	return ""
}
