package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/stori-audio/maestro-agents/config"
	"github.com/stori-audio/maestro-agents/ferrors"
	"github.com/stori-audio/maestro-agents/logger"
	"github.com/stori-audio/maestro-agents/resilience"
)

// Client is the process-wide generator client: one HTTP connection pool,
// one semaphore, one circuit breaker, shared across every instrument agent
type Client struct {
	baseURL string
	http    *http.Client
	log     logger.Logger

	sem chan struct{}

	cb *resilience.CircuitBreaker

	submitRetryDelays []time.Duration
	pollMaxAttempts   int
	pollTimeout       time.Duration
}

// New builds a Client from cfg. httpClient may be nil, in which case a
// default client with generous keep-alive pooling is used.
func New(cfg *config.Config, log logger.Logger, httpClient *http.Client) *Client {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = logger.NoOpLogger{}
	}
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     30 * time.Second,
			},
		}
	}

	cb := resilience.New(resilience.Config{
		Name:            "generator",
		Threshold:       cfg.GeneratorCBThreshold,
		Cooldown:        cfg.GeneratorCBCooldown,
		ErrorClassifier: ferrors.DefaultErrorClassifier,
		Logger:          log,
	})

	retryDelays := config.RetryDelays()
	if n := cfg.GeneratorSubmitMaxRetries; n >= 0 && n < len(retryDelays) {
		retryDelays = retryDelays[:n]
	}

	return &Client{
		baseURL:           cfg.GeneratorBaseURL,
		http:              httpClient,
		log:               log,
		sem:               make(chan struct{}, cfg.GeneratorMaxConcurrent),
		cb:                cb,
		submitRetryDelays: retryDelays,
		pollMaxAttempts:   cfg.GeneratorPollMaxAttempts,
		pollTimeout:       cfg.GeneratorPollTimeout,
	}
}

// CircuitOpen reports whether the generator's circuit breaker is currently
// tripped.
func (c *Client) CircuitOpen() bool {
	return c.cb.State() == resilience.StateOpen
}

// Warmup issues one GET /health to open the keep-alive connection before the
// first real request arrives. Failure is logged but never fatal.
func (c *Client) Warmup(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		c.log.Warn("generator warmup request build failed", "error", err)
		return
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("generator warmup failed, service may not be running yet", "error", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		c.log.Info("generator connection warmed up")
	} else {
		c.log.Warn("generator warmup responded but health check failed", "status", resp.StatusCode)
	}
}

// Generate runs the submit+poll sequence against the generator service,
// gated by the concurrency semaphore and circuit breaker.
func (c *Client) Generate(ctx context.Context, req Request) (*Result, error) {
	tok, err := c.cb.Allow()
	if err != nil {
		return &Result{Success: false, Error: "orpheus_circuit_open"}, err
	}

	waitStart := time.Now()
	select {
	case c.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-c.sem }()

	if waited := time.Since(waitStart); waited > 100*time.Millisecond {
		c.log.Info("generator slot acquired after queue wait", "waited_ms", waited.Milliseconds(), "instruments", req.Instruments)
	}

	result, genErr := c.submitAndPoll(ctx, req)
	if genErr != nil {
		if ferrors.DefaultErrorClassifier(genErr) {
			c.cb.Failure(tok, genErr)
		} else {
			c.cb.Success(tok)
		}
		return result, genErr
	}

	if result.Success {
		c.cb.Success(tok)
	} else {
		c.cb.Failure(tok, ferrors.Wrap("generator.Generate", ferrors.KindGeneratorPersistent, ferrors.ErrGeneratorPersistent))
	}
	return result, nil
}

func (c *Client) submitAndPoll(ctx context.Context, req Request) (*Result, error) {
	body := buildPayload(req)

	var jobID string
	var lastErr error

	for attempt := 0; attempt < len(c.submitRetryDelays)+1; attempt++ {
		submitCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		resp, status, err := c.postJSON(submitCtx, "/generate", body)
		cancel()

		if err != nil {
			lastErr = ferrors.Wrap("generator.submit", ferrors.KindGeneratorTransient, ferrors.ErrGeneratorTransient)
			if attempt < len(c.submitRetryDelays) {
				c.log.Warn("generator submit error, retrying", "attempt", attempt+1, "error", err)
				sleep(ctx, c.submitRetryDelays[attempt])
				continue
			}
			return &Result{Success: false, Error: err.Error(), RetryCount: attempt + 1}, lastErr
		}

		if status == http.StatusServiceUnavailable {
			if attempt < len(c.submitRetryDelays) {
				c.log.Warn("generator queue full (503), retrying", "attempt", attempt+1)
				sleep(ctx, c.submitRetryDelays[attempt])
				continue
			}
			lastErr = ferrors.Wrap("generator.submit", ferrors.KindGeneratorTransient, ferrors.ErrGeneratorTransient)
			return &Result{Success: false, Error: "generator queue full", RetryCount: attempt + 1}, lastErr
		}

		if status >= 400 {
			lastErr = ferrors.Wrap("generator.submit", ferrors.KindGeneratorPersistent, ferrors.ErrGeneratorPersistent)
			return &Result{Success: false, Error: fmt.Sprintf("generator submit returned HTTP %d", status), RetryCount: attempt}, lastErr
		}

		var sub submitResponse
		if err := json.Unmarshal(resp, &sub); err != nil {
			lastErr = ferrors.Wrap("generator.submit", ferrors.KindGeneratorPersistent, ferrors.ErrGeneratorPersistent)
			return &Result{Success: false, Error: "invalid submit response"}, lastErr
		}

		if sub.Status == "complete" {
			return resultFromRaw(sub.Result, attempt)
		}

		if sub.JobID == "" {
			lastErr = ferrors.Wrap("generator.submit", ferrors.KindGeneratorPersistent, ferrors.ErrGeneratorPersistent)
			return &Result{Success: false, Error: "no jobId in submit response"}, lastErr
		}

		jobID = sub.JobID
		c.log.Info("generator job submitted", "job_id", jobID, "position", sub.Position)
		break
	}

	if jobID == "" {
		return &Result{Success: false, Error: "failed to submit job after retries"}, lastErr
	}

	return c.poll(ctx, jobID)
}

func (c *Client) poll(ctx context.Context, jobID string) (*Result, error) {
	for i := 0; i < c.pollMaxAttempts; i++ {
		pollCtx, cancel := context.WithTimeout(ctx, c.pollTimeout+5*time.Second)
		path := fmt.Sprintf("/jobs/%s/wait?timeout=%d", url.PathEscape(jobID), int(c.pollTimeout.Seconds()))
		resp, status, err := c.getJSON(pollCtx, path)
		cancel()

		if err != nil {
			// A poll-round timeout is not a failure; the job continues
			// server-side.
			c.log.Debug("generator poll timed out, job still running", "job_id", jobID, "attempt", i+1)
			continue
		}
		if status >= 500 {
			genErr := ferrors.Wrap("generator.poll", ferrors.KindGeneratorTransient, ferrors.ErrGeneratorTransient)
			return &Result{Success: false, Error: "generator connection lost during polling"}, genErr
		}

		var poll pollResponse
		if err := json.Unmarshal(resp, &poll); err != nil {
			continue
		}

		if poll.Status == "complete" || poll.Status == "failed" {
			result, decodeErr := resultFromRaw(poll.Result, 0)
			if decodeErr != nil {
				return result, decodeErr
			}
			if poll.Status == "failed" || !result.Success {
				errText := poll.Error
				if errText == "" {
					errText = result.Error
				}
				if errText == "" {
					errText = "generation failed"
				}
				genErr := ferrors.Wrap("generator.poll", ferrors.KindGeneratorPersistent, ferrors.ErrGeneratorPersistent)
				return &Result{Success: false, Error: errText}, genErr
			}
			return result, nil
		}
	}

	total := c.pollTimeout * time.Duration(c.pollMaxAttempts)
	genErr := ferrors.Wrap("generator.poll", ferrors.KindGeneratorTransient, ferrors.ErrGeneratorTransient)
	return &Result{Success: false, Error: fmt.Sprintf("generation did not complete within %s", total)}, genErr
}

func resultFromRaw(raw *rawResult, retryCount int) (*Result, error) {
	if raw == nil {
		return &Result{Success: false, Error: "empty generator result"}, nil
	}
	notes, cc, pb, at, err := normalizeToolCalls(raw.ToolCalls)
	if err != nil {
		return &Result{Success: false, Error: err.Error(), RetryCount: retryCount}, err
	}
	rawNotes, err := rawNotesToNotes(raw.Notes)
	if err != nil {
		return &Result{Success: false, Error: err.Error(), RetryCount: retryCount}, err
	}
	notes = append(notes, rawNotes...)

	meta := raw.Metadata
	if meta == nil {
		meta = map[string]interface{}{}
	}
	meta["retry_count"] = retryCount

	return &Result{
		Success:    raw.Success,
		Notes:      notes,
		CCEvents:   cc,
		PitchBends: pb,
		Aftertouch: at,
		Metadata:   meta,
		Error:      raw.Error,
		RetryCount: retryCount,
	}, nil
}

func buildPayload(req Request) map[string]interface{} {
	payload := map[string]interface{}{
		"genre":             req.Genre,
		"tempo":             req.Tempo,
		"instruments":       req.Instruments,
		"bars":              req.Bars,
		"tone_brightness":   req.ToneBrightness,
		"tone_warmth":       req.ToneWarmth,
		"energy_intensity":  req.EnergyIntensity,
		"energy_excitement": req.EnergyExcitement,
		"complexity":        req.Complexity,
		"quality_preset":    req.QualityPreset,
	}
	if req.Key != "" {
		payload["key"] = req.Key
	}
	if len(req.MusicalGoals) > 0 {
		payload["musical_goals"] = req.MusicalGoals
	}
	if req.CompositionID != "" {
		payload["composition_id"] = req.CompositionID
	}
	if len(req.PreviousNotes) > 0 {
		payload["previous_notes"] = req.PreviousNotes
	}
	return payload
}

func (c *Client) postJSON(ctx context.Context, path string, body interface{}) ([]byte, int, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return nil, 0, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return nil, 0, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return c.do(httpReq)
}

func (c *Client) getJSON(ctx context.Context, path string) ([]byte, int, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, 0, err
	}
	return c.do(httpReq)
}

func (c *Client) do(httpReq *http.Request) ([]byte, int, error) {
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return data, resp.StatusCode, nil
}

func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
