package captcha

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// RemoteConfig configures verification against an external service
// speaking the siteverify form protocol.
type RemoteConfig struct {
	// Endpoint is the verification URL.
	Endpoint string
	// Secret authenticates this server to the service.
	Secret string
	// Timeout bounds the whole round trip. A timeout surfaces as
	// ErrUnavailable, never as success.
	Timeout time.Duration
	// MinScore rejects verdicts below this confidence when the service
	// reports one. Zero accepts any successful verdict.
	MinScore float64
}

// RemoteVerifier forwards opaque response tokens to an external
// verification service and interprets its verdict.
type RemoteVerifier struct {
	config RemoteConfig
	client *http.Client
}

type remoteVerdict struct {
	Success bool     `json:"success"`
	Score   float64  `json:"score"`
	Errors  []string `json:"error-codes"`
}

// NewRemoteVerifier creates a RemoteVerifier for cfg.
func NewRemoteVerifier(cfg RemoteConfig) (*RemoteVerifier, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("remote captcha endpoint required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &RemoteVerifier{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Verify posts the response token to the verification service. A negative
// verdict returns ErrFailed; anything that prevents obtaining a verdict
// returns ErrUnavailable.
func (v *RemoteVerifier) Verify(ctx context.Context, _ string, response string) error {
	if response == "" {
		return ErrFailed
	}

	form := url.Values{}
	form.Set("secret", v.config.Secret)
	form.Set("response", response)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.config.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var verdict remoteVerdict
	if err := json.Unmarshal(body, &verdict); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if !verdict.Success {
		return ErrFailed
	}
	if v.config.MinScore > 0 && verdict.Score > 0 && verdict.Score < v.config.MinScore {
		return ErrFailed
	}
	return nil
}
