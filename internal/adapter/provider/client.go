package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/niksmo/pricesync/internal/core/domain"
	"github.com/niksmo/pricesync/internal/core/port"
	"github.com/niksmo/pricesync/pkg/retry"
	"github.com/niksmo/pricesync/pkg/signer"
)

var _ port.CatalogFetcher = (*CatalogClient)(nil)

const (
	DefaultCommand      = "prepaid"
	DefaultSignCommand  = "pricelist"
	DefaultSKUField     = "buyer_sku_code"
	DefaultTimeout      = 30 * time.Second
	DefaultMaxBodyBytes = 32 << 20
)

type ClientOpt func(*clientOpts) error

type clientOpts struct {
	url          string
	httpClient   *http.Client
	command      string
	signCommand  string
	skuField     string
	timeout      time.Duration
	maxBodyBytes int64
	retry        retry.RetryConfig
}

func URLOpt(url string) ClientOpt {
	return func(o *clientOpts) error {
		if url == "" {
			return errors.New("provider url is empty")
		}
		o.url = url
		return nil
	}
}

func HTTPClientOpt(cl *http.Client) ClientOpt {
	return func(o *clientOpts) error {
		if cl == nil {
			return errors.New("http client is nil")
		}
		o.httpClient = cl
		return nil
	}
}

// CommandOpt sets the "cmd" body value and the command suffix of the sign.
func CommandOpt(command, signCommand string) ClientOpt {
	return func(o *clientOpts) error {
		if command != "" {
			o.command = command
		}
		if signCommand != "" {
			o.signCommand = signCommand
		}
		return nil
	}
}

func SKUFieldOpt(field string) ClientOpt {
	return func(o *clientOpts) error {
		if field != "" {
			o.skuField = field
		}
		return nil
	}
}

// TimeoutOpt bounds every single attempt.
func TimeoutOpt(d time.Duration) ClientOpt {
	return func(o *clientOpts) error {
		if d > 0 {
			o.timeout = d
		}
		return nil
	}
}

func MaxBodyBytesOpt(n int64) ClientOpt {
	return func(o *clientOpts) error {
		if n > 0 {
			o.maxBodyBytes = n
		}
		return nil
	}
}

// RetryOpt retries network failures only.
func RetryOpt(maxAttempts int, delay time.Duration) ClientOpt {
	return func(o *clientOpts) error {
		o.retry = retry.RetryConfig{
			MaxAttempts: maxAttempts,
			Backoff:     retry.ExponentialBackoff(delay),
			ShouldRetry: isNetworkErr,
		}
		return nil
	}
}

// A CatalogClient fetches the full price list of the pricing provider.
type CatalogClient struct {
	opts clientOpts
}

func NewCatalogClient(opts ...ClientOpt) (CatalogClient, error) {
	const op = "NewCatalogClient"

	options := clientOpts{
		httpClient:   http.DefaultClient,
		command:      DefaultCommand,
		signCommand:  DefaultSignCommand,
		skuField:     DefaultSKUField,
		timeout:      DefaultTimeout,
		maxBodyBytes: DefaultMaxBodyBytes,
		retry:        retry.RetryConfig{MaxAttempts: 1, ShouldRetry: isNetworkErr},
	}
	for _, opt := range opts {
		if err := opt(&options); err != nil {
			return CatalogClient{}, fmt.Errorf("%s: %w", op, err)
		}
	}
	if options.url == "" {
		return CatalogClient{}, fmt.Errorf("%s: provider url is not set", op)
	}

	return CatalogClient{opts: options}, nil
}

type pricelistRequest struct {
	Cmd      string `json:"cmd"`
	Username string `json:"username"`
	Sign     string `json:"sign"`
}

func (c CatalogClient) FetchCatalog(
	ctx context.Context, creds domain.Credentials,
) ([]domain.ProductRecord, error) {
	const op = "CatalogClient.FetchCatalog"
	log := slog.With("op", op)

	if !creds.Complete() {
		return nil, fmt.Errorf(
			"%s: %w: provider username or api key is not set",
			op, domain.ErrConfiguration,
		)
	}

	body, err := json.Marshal(pricelistRequest{
		Cmd:      c.opts.command,
		Username: creds.Username,
		Sign: signer.RequestSign(
			creds.Username, creds.APIKey, c.opts.signCommand,
		),
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var attempt int
	raw, err := retry.DoWithResult(ctx, c.opts.retry, func() ([]byte, error) {
		attempt++
		b, err := c.post(ctx, body)
		if err != nil && isNetworkErr(err) {
			log.Warn("pricelist request failed", "attempt", attempt, "err", err)
		}
		return b, err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	records, err := decodeCatalog(raw, c.opts.skuField)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("catalog fetched", "nProducts", len(records), "attempts", attempt)
	return records, nil
}

func (c CatalogClient) post(ctx context.Context, body []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, c.opts.url, bytes.NewReader(body),
	)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.opts.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, &domain.FetchError{StatusCode: resp.StatusCode}
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, c.opts.maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", domain.ErrNetwork, err)
	}
	if int64(len(b)) > c.opts.maxBodyBytes {
		return nil, fmt.Errorf(
			"%w: body exceeds %d bytes", domain.ErrSchemaMismatch, c.opts.maxBodyBytes,
		)
	}
	return b, nil
}

func isNetworkErr(err error) bool {
	return errors.Is(err, domain.ErrNetwork)
}
