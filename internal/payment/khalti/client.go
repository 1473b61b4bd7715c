// Package khalti talks to the Khalti payment verification API.
package khalti

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/storefront/internal/config"
)

const DefaultVerifyURL = "https://khalti.com/api/v2/payment/verify/"

var ErrVerificationFailed = errors.New("payment verification failed")

// Verification is the subset of the gateway response the storefront keeps.
type Verification struct {
	IDX    string `json:"idx"`
	Amount int64  `json:"amount"`
}

type Client struct {
	secretKey   string
	verifyURL   string
	timeout     time.Duration
	maxAttempts int
	baseBackoff time.Duration
	httpClient  *http.Client
}

func NewClient(cfg config.KhaltiConfig) *Client {
	c := &Client{
		secretKey:   cfg.SecretKey,
		verifyURL:   cfg.VerifyURL,
		timeout:     cfg.Timeout,
		maxAttempts: cfg.MaxAttempts,
		baseBackoff: cfg.BaseBackoff,
		httpClient:  &http.Client{},
	}
	if c.verifyURL == "" {
		c.verifyURL = DefaultVerifyURL
	}
	if c.timeout <= 0 {
		c.timeout = 10 * time.Second
	}
	if c.maxAttempts < 1 {
		c.maxAttempts = 1
	}
	if c.baseBackoff <= 0 {
		c.baseBackoff = 200 * time.Millisecond
	}
	return c
}

type attemptError struct {
	attempt   int
	err       error
	retryable bool
}

func (e *attemptError) Error() string {
	return fmt.Sprintf("attempt %d: %v", e.attempt, e.err)
}

func (e *attemptError) Unwrap() error {
	return e.err
}

// Verify confirms the token/amount pair with the gateway. Any outcome other than an
// unambiguous success is returned as an error wrapping ErrVerificationFailed.
func (c *Client) Verify(ctx context.Context, token string, amount int64) (*Verification, error) {
	var attempts *multierror.Error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		v, aErr := c.verifyOnce(ctx, attempt, token, amount)
		if aErr == nil {
			log.Info().Int("attempt", attempt).Str("idx", v.IDX).Int64("amount", amount).Msg("khalti: payment verified")
			return v, nil
		}

		attempts = multierror.Append(attempts, aErr)
		log.Warn().Err(aErr.err).Int("attempt", attempt).Bool("retryable", aErr.retryable).Msg("khalti: verification attempt failed")

		if !aErr.retryable || attempt == c.maxAttempts {
			break
		}
		if err := sleep(ctx, c.backoff(attempt)); err != nil {
			attempts = multierror.Append(attempts, err)
			break
		}
	}

	return nil, fmt.Errorf("%w: %w", ErrVerificationFailed, attempts.ErrorOrNil())
}

func (c *Client) backoff(attempt int) time.Duration {
	return c.baseBackoff * time.Duration(1<<(attempt-1))
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) verifyOnce(ctx context.Context, attempt int, token string, amount int64) (*Verification, *attemptError) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	form := url.Values{}
	form.Set("token", token)
	form.Set("amount", strconv.FormatInt(amount, 10))

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &attemptError{attempt: attempt, err: fmt.Errorf("failed to build request: %w", err)}
	}
	req.Header.Set("Authorization", "Key "+c.secretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// A cancelled parent context is final; a timed-out attempt or transport error is not.
		return nil, &attemptError{attempt: attempt, err: err, retryable: ctx.Err() == nil}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &attemptError{attempt: attempt, err: fmt.Errorf("failed to read response: %w", err), retryable: ctx.Err() == nil}
	}

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, &attemptError{attempt: attempt, err: fmt.Errorf("gateway returned %d", resp.StatusCode), retryable: true}
	case resp.StatusCode != http.StatusOK:
		return nil, &attemptError{attempt: attempt, err: fmt.Errorf("gateway returned %d: %s", resp.StatusCode, truncate(body, 200))}
	}

	var v Verification
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, &attemptError{attempt: attempt, err: fmt.Errorf("unreadable gateway response: %w", err)}
	}
	if v.Amount != 0 && v.Amount != amount {
		return nil, &attemptError{attempt: attempt, err: fmt.Errorf("gateway confirmed amount %d, expected %d", v.Amount, amount)}
	}

	return &v, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
