package bankapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	apperrors "github.com/jrsteele09/go-bank-dashboard/internal/errors"
	"github.com/jrsteele09/go-bank-dashboard/internal/metrics"
	"github.com/jrsteele09/go-bank-dashboard/sessions"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

const (
	DefaultBaseURL  = "https://api.monzo.com"
	DefaultTimeout  = 10 * time.Second
	DefaultPageSize = 100

	maxErrorBody = 4 << 10
)

type Config struct {
	BaseURL  string
	Timeout  time.Duration // per attempt
	PageSize int
	Retry    RetryPolicy

	// The breaker opens after BreakerFailures consecutive transient failures and lets a probe
	// through after BreakerCooldown.
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

func DefaultConfig() Config {
	return Config{
		BaseURL:         DefaultBaseURL,
		Timeout:         DefaultTimeout,
		PageSize:        DefaultPageSize,
		Retry:           DefaultRetryPolicy(),
		BreakerFailures: 5,
		BreakerCooldown: 30 * time.Second,
	}
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func WithMetrics(m metrics.Collector) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithSleeper replaces the backoff wait, mainly so tests can record delays instead of sleeping
func WithSleeper(s Sleeper) Option {
	return func(c *Client) {
		c.sleep = s
	}
}

// Client is a read-only client for the banking API. It is safe for concurrent use; the access
// token is passed on every call.
type Client struct {
	config     Config
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	metrics    metrics.Collector
	sleep      Sleeper
}

func New(cfg Config, opts ...Option) *Client {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = def.PageSize
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = def.Retry.MaxAttempts
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = def.BreakerFailures
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = def.BreakerCooldown
	}

	c := &Client{
		config:     cfg,
		httpClient: http.DefaultClient,
		metrics:    metrics.NoOpCollector{},
		sleep:      sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "bankapi",
		Timeout: cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		// Only outages count against the breaker. The breaker is shared by every session, so a
		// 429 against one user's token, a 404 or a 401 says nothing about provider health.
		IsSuccessful: func(err error) bool {
			return err == nil ||
				!apperrors.IsTransient(err) ||
				errors.Is(err, apperrors.ErrRateLimited) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state changed")

			var state metrics.CircuitState
			switch to {
			case gobreaker.StateClosed:
				state = metrics.CircuitClosed
			case gobreaker.StateHalfOpen:
				state = metrics.CircuitHalfOpen
			case gobreaker.StateOpen:
				state = metrics.CircuitOpen
			}
			c.metrics.RecordCircuitState(name, state)
		},
	})
	return c
}

func (c *Client) WhoAmI(ctx context.Context, tok sessions.Token) (WhoAmI, error) {
	var who WhoAmI
	err := c.get(ctx, tok, "/ping/whoami", nil, &who)
	return who, err
}

func (c *Client) ListAccounts(ctx context.Context, tok sessions.Token) ([]Account, error) {
	var resp accountsResponse
	if err := c.get(ctx, tok, "/accounts", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Accounts, nil
}

func (c *Client) GetBalance(ctx context.Context, tok sessions.Token, accountID string) (Balance, error) {
	var balance Balance
	err := c.get(ctx, tok, "/balance", url.Values{"account_id": {accountID}}, &balance)
	return balance, err
}

// ListTransactions lazily walks the account's transaction pages in provider order. Transactions
// created exactly at since are skipped, so since can be the newest timestamp already held.
// The sequence can be ranged over once; it stops after yielding the first error.
func (c *Client) ListTransactions(ctx context.Context, tok sessions.Token, accountID string, since *time.Time) iter.Seq2[Transaction, error] {
	var consumed atomic.Bool

	return func(yield func(Transaction, error) bool) {
		if !consumed.CompareAndSwap(false, true) {
			yield(Transaction{}, ErrSequenceConsumed)
			return
		}

		cursor := ""
		for {
			query := url.Values{
				"account_id": {accountID},
				"expand[]":   {"merchant"},
				"limit":      {strconv.Itoa(c.config.PageSize)},
			}
			if since != nil {
				query.Set("since", since.UTC().Format(time.RFC3339))
			}
			if cursor != "" {
				query.Set("cursor", cursor)
			}

			var page transactionsPage
			if err := c.get(ctx, tok, "/transactions", query, &page); err != nil {
				yield(Transaction{}, err)
				return
			}

			for _, tx := range page.Transactions {
				if since != nil && tx.Created.Equal(*since) {
					continue
				}
				if !yield(tx, nil) {
					return
				}
			}

			if page.NextCursor == "" {
				return
			}
			if page.NextCursor == cursor {
				yield(Transaction{}, newError(apperrors.ErrMalformedResponse, http.StatusOK, fmt.Errorf("cursor %q repeated", cursor)))
				return
			}
			cursor = page.NextCursor
		}
	}
}

// CollectTransactions drains a transaction sequence
func CollectTransactions(seq iter.Seq2[Transaction, error]) ([]Transaction, error) {
	var txs []Transaction
	for tx, err := range seq {
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

// get performs a GET with retries, decoding a 200 body into out
func (c *Client) get(ctx context.Context, tok sessions.Token, endpoint string, query url.Values, out any) error {
	for attempt := 1; ; attempt++ {
		err := c.attempt(ctx, tok, endpoint, query, out)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return newError(apperrors.ErrNetwork, 0, errors.Join(ctx.Err(), err))
		}

		delay, retry := c.config.Retry.Next(attempt, err)
		if !retry {
			return err
		}

		c.metrics.RecordRetry(endpoint, reason(err))
		log.Debug().Err(err).Str("endpoint", endpoint).Int("attempt", attempt).Dur("delay", delay).Msg("Retrying API call")

		if err := c.sleep(ctx, delay); err != nil {
			return newError(apperrors.ErrNetwork, 0, err)
		}
	}
}

func (c *Client) attempt(ctx context.Context, tok sessions.Token, endpoint string, query url.Values, out any) error {
	start := time.Now()
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.do(ctx, tok, endpoint, query, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = newError(apperrors.ErrServerError, 0, fmt.Errorf("%w: %w", apperrors.ErrCircuitOpen, err))
	}

	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeFailure
	}
	c.metrics.RecordAPICall(endpoint, outcome, time.Since(start))
	return err
}

func (c *Client) do(ctx context.Context, tok sessions.Token, endpoint string, query url.Values, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	target := c.config.BaseURL + endpoint
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("[bankapi] failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Includes the per-attempt deadline firing
		return newError(apperrors.ErrNetwork, 0, err)
	}
	defer resp.Body.Close() // nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		var cause error
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if msg := strings.TrimSpace(string(body)); msg != "" {
			cause = errors.New(msg)
		}
		apiErr := newError(kindForStatus(resp.StatusCode), resp.StatusCode, cause)
		if resp.StatusCode == http.StatusTooManyRequests {
			apiErr.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), NowTimeFunc())
		}
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctx.Err() != nil {
			return newError(apperrors.ErrNetwork, resp.StatusCode, err)
		}
		return newError(apperrors.ErrMalformedResponse, resp.StatusCode, err)
	}
	return nil
}
