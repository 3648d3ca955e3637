// Package gworkspace wraps the Drive, Docs and Gmail APIs used to materialize reflections.
package gworkspace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/time/rate"
	docs "google.golang.org/api/docs/v1"
	drive "google.golang.org/api/drive/v3"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	folderMimeType   = "application/vnd.google-apps.folder"
	documentMimeType = "application/vnd.google-apps.document"
)

// Scopes lists the OAuth scopes the client requires.
var Scopes = []string{drive.DriveScope, docs.DocumentsScope, gmail.GmailSendScope}

// Observer receives the latency and outcome of every upstream call.
type Observer interface {
	ObserveWorkspaceCall(operation string, duration time.Duration, err error)
}

// Options tunes pacing and timeouts.
type Options struct {
	RequestsPerSecond float64
	Burst             int
	CallTimeout       time.Duration
	Logger            *zap.Logger
	Observer          Observer
}

// Client performs Drive, Docs and Gmail operations under a shared rate limit.
// Every call is bounded by CallTimeout and is never retried here.
type Client struct {
	drive    *drive.Service
	docs     *docs.Service
	gmail    *gmail.Service
	limiter  *rate.Limiter
	timeout  time.Duration
	logger   *zap.Logger
	observer Observer
}

// New builds a client over an already-authorized HTTP client.
func New(ctx context.Context, httpClient *http.Client, opts Options, extra ...option.ClientOption) (*Client, error) {
	clientOpts := append([]option.ClientOption{option.WithHTTPClient(httpClient)}, extra...)

	driveSvc, err := drive.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("init drive service: %w", err)
	}
	docsSvc, err := docs.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("init docs service: %w", err)
	}
	gmailSvc, err := gmail.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("init gmail service: %w", err)
	}

	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 5
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 15 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Client{
		drive:    driveSvc,
		docs:     docsSvc,
		gmail:    gmailSvc,
		limiter:  rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.Burst),
		timeout:  opts.CallTimeout,
		logger:   opts.Logger,
		observer: opts.Observer,
	}, nil
}

// NewFromFiles authorizes with a stored user token. Token acquisition happens elsewhere;
// the token source refreshes the access token as needed.
func NewFromFiles(ctx context.Context, clientSecretsFile, tokenFile string, opts Options) (*Client, error) {
	secrets, err := os.ReadFile(clientSecretsFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth client secrets: %w", err)
	}
	oauthCfg, err := google.ConfigFromJSON(secrets, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("parse oauth client secrets: %w", err)
	}

	rawToken, err := os.ReadFile(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth token: %w", err)
	}
	var token oauth2.Token
	if err := json.Unmarshal(rawToken, &token); err != nil {
		return nil, fmt.Errorf("decode oauth token: %w", err)
	}
	if token.RefreshToken == "" && !token.Valid() {
		return nil, fmt.Errorf("oauth token expired and has no refresh token")
	}

	return New(ctx, oauthCfg.Client(ctx, &token), opts)
}

// IsNotFound reports whether err came from a 404 response.
func IsNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}

func (c *Client) call(ctx context.Context, op string, fn func(context.Context) error) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: wait for rate limit: %w", op, err)
	}
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	err := fn(callCtx)
	duration := time.Since(start)
	if c.observer != nil {
		c.observer.ObserveWorkspaceCall(op, duration, err)
	}
	if err != nil {
		c.logger.Warn("workspace call failed", zap.String("operation", op), zap.Duration("duration", duration), zap.Error(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	c.logger.Debug("workspace call", zap.String("operation", op), zap.Duration("duration", duration))
	return nil
}
