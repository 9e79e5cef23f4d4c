// Package dispatcher forwards download requests to an ordered list of
// upstream instances and returns the first authoritative answer.
package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/MrSnakeDoc/ytdown/internal/domain"
	"github.com/MrSnakeDoc/ytdown/internal/logger"
	"github.com/MrSnakeDoc/ytdown/internal/utils"
	"github.com/MrSnakeDoc/ytdown/internal/version"
)

const (
	// DefaultAttemptTimeout bounds a single instance attempt.
	DefaultAttemptTimeout = 15 * time.Second
	// DefaultMaxResponseBytes caps the upstream body read per attempt.
	DefaultMaxResponseBytes = 1 << 20
)

// Options tunes a Dispatcher. Zero values fall back to defaults.
type Options struct {
	AttemptTimeout   time.Duration
	MaxResponseBytes int64
	Client           *http.Client // nil => NewHTTPClient()
}

// Dispatcher walks the configured instances in order, one at a time.
//
// It keeps no state between calls besides the read-only instance list, so a
// single Dispatcher is safe for concurrent use.
type Dispatcher struct {
	instances        []domain.Instance
	client           *http.Client
	attemptTimeout   time.Duration
	maxResponseBytes int64
	userAgent        string
	logger           logger.Logger
	newID            func() string
}

// New builds a Dispatcher over a copy of instances.
func New(instances []domain.Instance, opts Options, log logger.Logger) (*Dispatcher, error) {
	if len(instances) == 0 {
		return nil, fmt.Errorf("dispatcher needs at least one instance")
	}
	if opts.AttemptTimeout < 0 {
		return nil, fmt.Errorf("AttemptTimeout must be >= 0, got %v", opts.AttemptTimeout)
	}
	if opts.AttemptTimeout == 0 {
		opts.AttemptTimeout = DefaultAttemptTimeout
	}
	if opts.MaxResponseBytes <= 0 {
		opts.MaxResponseBytes = DefaultMaxResponseBytes
	}
	if opts.Client == nil {
		opts.Client = NewHTTPClient()
	}

	list := make([]domain.Instance, len(instances))
	copy(list, instances)

	return &Dispatcher{
		instances:        list,
		client:           opts.Client,
		attemptTimeout:   opts.AttemptTimeout,
		maxResponseBytes: opts.MaxResponseBytes,
		userAgent:        version.UserAgent(),
		logger:           log,
		newID:            uuid.NewString,
	}, nil
}

// NewHTTPClient returns the client used for upstream calls. It has no global
// timeout: every attempt carries its own deadline.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			MaxIdleConns:          20,
			MaxIdleConnsPerHost:   5,
			IdleConnTimeout:       60 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: time.Second,
			ForceAttemptHTTP2:     true,
		},
	}
}

// Instances returns a copy of the configured list, in failover order.
func (d *Dispatcher) Instances() []domain.Instance {
	out := make([]domain.Instance, len(d.instances))
	copy(out, d.instances)
	return out
}

// AttemptTimeout returns the per-instance ceiling.
func (d *Dispatcher) AttemptTimeout() time.Duration {
	return d.attemptTimeout
}

// Dispatch resolves req against the instances and always returns a
// well-formed result:
//   - rejected: the request has no usable URL, no instance was contacted
//   - success / terminal: the first instance that gave an authoritative answer
//   - exhausted: every instance failed in a retryable way; LastFailure is the last one
func (d *Dispatcher) Dispatch(ctx context.Context, req domain.DownloadRequest) domain.Result {
	id := d.newID()
	log := d.logger.With(logger.String("dispatch_id", id))
	res := domain.Result{ID: id}

	if err := req.Validate(); err != nil {
		log.Info("download request rejected", logger.Error(err))
		res.Kind = domain.ResultRejected
		res.Reason = err
		return res
	}

	payload, err := json.Marshal(req)
	if err != nil {
		log.Info("download request rejected", logger.Error(err))
		res.Kind = domain.ResultRejected
		res.Reason = fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
		return res
	}

	log.Debug("dispatching download request",
		logger.String("url", req.URL),
		logger.String("download_mode", req.Option(domain.OptionDownloadMode)),
		logger.Int("instances", len(d.instances)))

	for i, inst := range d.instances {
		if err := ctx.Err(); err != nil {
			log.Warn("caller went away, stopping instance walk",
				logger.Int("tried", i),
				logger.Error(err))
			if res.LastFailure == nil {
				res.LastFailure = &domain.Failure{
					Status:  http.StatusInternalServerError,
					Message: err.Error(),
				}
			}
			break
		}

		start := time.Now()
		outcome := d.attempt(ctx, inst, payload)
		elapsed := time.Since(start)

		attempt := domain.Attempt{
			Instance:   inst.URL,
			Kind:       outcome.Kind,
			StatusCode: outcome.StatusCode,
			Duration:   elapsed,
		}
		if outcome.Err != nil {
			attempt.Err = outcome.Err.Error()
		}
		res.Attempts = append(res.Attempts, attempt)

		switch outcome.Kind {
		case domain.OutcomeSuccess:
			d.logSuccess(log, inst, i, outcome, elapsed)
			res.Kind = domain.ResultSuccess
			res.Instance = inst.URL
			res.Body = outcome.Body
			return res

		case domain.OutcomeTerminal:
			code := domain.ErrorCodeOf(outcome.Body)
			log.Info("instance reported a content error, not trying others",
				logger.String("instance", inst.URL),
				logger.Int("attempt", i+1),
				logger.Int("status", outcome.StatusCode),
				logger.String("code", code),
				logger.String("reason", domain.DescribeErrorCode(code)))
			res.Kind = domain.ResultTerminal
			res.Instance = inst.URL
			res.Body = outcome.Body
			return res

		default:
			res.LastFailure = outcome.Failure(inst.URL)
			log.Warn("instance attempt failed, trying next",
				logger.String("instance", inst.URL),
				logger.Int("attempt", i+1),
				logger.Int("status", res.LastFailure.Status),
				logger.Duration("elapsed", elapsed),
				logger.String("message", res.LastFailure.Message))
		}
	}

	res.Kind = domain.ResultExhausted
	fields := []logger.Field{logger.Int("tried", len(res.Attempts))}
	if res.LastFailure != nil {
		fields = append(fields, logger.String("last_instance", res.LastFailure.Instance))
	}
	log.Error("all instances failed", fields...)
	return res
}

// attempt performs one bounded exchange with inst and classifies it.
func (d *Dispatcher) attempt(ctx context.Context, inst domain.Instance, payload []byte) domain.Outcome {
	ctx, cancel := context.WithTimeout(ctx, d.attemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, inst.Endpoint(), bytes.NewReader(payload))
	if err != nil {
		return domain.Classify(0, nil, fmt.Errorf("failed to build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", d.userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return domain.Classify(0, nil, err)
	}
	defer utils.DrainAndClose(resp.Body)

	body, err := io.ReadAll(io.LimitReader(resp.Body, d.maxResponseBytes+1))
	if err != nil {
		return domain.Classify(resp.StatusCode, nil, fmt.Errorf("failed to read response body: %w", err))
	}
	if int64(len(body)) > d.maxResponseBytes {
		return domain.Classify(resp.StatusCode, nil, fmt.Errorf("response body exceeds %d bytes", d.maxResponseBytes))
	}

	return domain.Classify(resp.StatusCode, body, nil)
}

func (d *Dispatcher) logSuccess(log logger.Logger, inst domain.Instance, i int, outcome domain.Outcome, elapsed time.Duration) {
	fields := []logger.Field{
		logger.String("instance", inst.URL),
		logger.Int("attempt", i+1),
		logger.Duration("elapsed", elapsed),
	}
	if media, err := domain.ParseMedia(outcome.Body); err == nil {
		fields = append(fields,
			logger.String("media_status", media.Status),
			logger.String("filename", media.Filename),
			logger.Int("picker_items", len(media.Picker)))
	}
	log.Info("instance resolved download request", fields...)
}
