// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package webhook performs the single outbound call to an agent's webhook.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/noldarim/agentmarket/internal/logger"
	"github.com/noldarim/agentmarket/internal/marketplace/models"
	"github.com/noldarim/agentmarket/internal/marketplace/normalize"
	"github.com/noldarim/agentmarket/internal/marketplace/payload"
	"github.com/noldarim/agentmarket/internal/telemetry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultTimeout bounds calls for agents without a policy timeout.
const DefaultTimeout = 60 * time.Second

// Transport failure messages.
const (
	MsgUnavailable = "Agent service is not available. Please check if the service is running."
	MsgNotFound    = "Agent service URL not found. Please verify the endpoint configuration."
	MsgTimedOut    = "Agent execution timed out. The service may be overloaded."
	msgGeneric     = "Failed to execute agent: %s"
	detailsGeneric = "Network or configuration error"
)

var (
	log     *zerolog.Logger
	logOnce sync.Once
)

func getLog() *zerolog.Logger {
	logOnce.Do(func() {
		l := logger.GetWebhookLogger().With().Str("component", "caller").Logger()
		log = &l
	})
	return log
}

// Caller executes agents. Safe for concurrent use.
type Caller struct {
	client         *resty.Client
	merger         *payload.Merger
	normalizer     *normalize.Normalizer
	defaultTimeout time.Duration
}

// Option configures a Caller.
type Option func(*Caller)

// WithHTTPClient sends requests through hc.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Caller) { c.client = resty.NewWithClient(hc) }
}

// WithDefaultTimeout sets the timeout for agents whose policy has none.
func WithDefaultTimeout(d time.Duration) Option {
	return func(c *Caller) {
		if d > 0 {
			c.defaultTimeout = d
		}
	}
}

// NewCaller creates a Caller.
func NewCaller(merger *payload.Merger, normalizer *normalize.Normalizer, opts ...Option) *Caller {
	c := &Caller{
		client:         resty.New(),
		merger:         merger,
		normalizer:     normalizer,
		defaultTimeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	// One attempt per execution.
	c.client.SetRetryCount(0)
	return c
}

// Call builds the payload, performs exactly one request and normalizes the
// outcome. The returned error is non-nil only for invalid inputs, in which
// case nothing is sent.
func (c *Caller) Call(ctx context.Context, agent *models.Agent, inputs map[string]any, userID string) (normalize.Result, error) {
	p, err := c.merger.Build(agent, inputs, userID)
	if err != nil {
		return nil, err
	}

	timeout := agent.Policy.Timeout()
	if timeout <= 0 {
		timeout = c.defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ctx, span := telemetry.StartSpan(ctx, "webhook.call",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("agent.id", agent.ID),
			attribute.String("http.request.method", p.Method),
			attribute.String("server.address", agent.Host()),
			attribute.Int64("agent.timeout_ms", timeout.Milliseconds()),
		))
	defer span.End()

	req := c.client.R().SetContext(ctx).SetHeaders(p.Headers)
	switch p.Method {
	case http.MethodGet, http.MethodDelete, http.MethodHead:
		req.SetQueryParams(queryParams(p.Body))
	default:
		body, err := json.Marshal(p.Body)
		if err != nil {
			f := &normalize.Failure{Message: fmt.Sprintf(msgGeneric, err.Error()), Details: detailsGeneric}
			telemetry.RecordError(span, err)
			return f, nil
		}
		req.SetBody(body)
	}

	getLog().Info().
		Str("agent_id", agent.ID).
		Str("method", p.Method).
		Str("host", agent.Host()).
		Dur("timeout", timeout).
		Msg("Calling agent webhook")

	start := time.Now()
	resp, err := req.Execute(p.Method, p.URL)
	elapsed := time.Since(start)

	if err != nil {
		failure, timedOut := classify(err)
		getLog().Warn().Err(err).
			Str("agent_id", agent.ID).
			Dur("elapsed", elapsed).
			Str("message", failure.Message).
			Msg("Agent webhook call failed")
		telemetry.RecordError(span, err)
		span.SetAttributes(attribute.String("agent.outcome", "transport_error"))

		if timedOut {
			if fb, ok := c.normalizer.Fallback(agent.Policy.FallbackTemplate, inputs, failure.Message); ok {
				getLog().Info().Str("agent_id", agent.ID).Str("template", agent.Policy.FallbackTemplate).
					Msg("Agent timed out, using local fallback")
				span.SetAttributes(attribute.Bool("agent.fallback_used", true))
				return fb, nil
			}
		}
		return failure, nil
	}

	raw := &normalize.RawResponse{
		StatusCode: resp.StatusCode(),
		StatusText: reasonPhrase(resp.Status(), resp.StatusCode()),
		Body:       resp.Body(),
	}
	result := c.normalizer.Normalize(agent, inputs, raw)

	getLog().Info().
		Str("agent_id", agent.ID).
		Int("status", raw.StatusCode).
		Dur("elapsed", elapsed).
		Bool("failed", result.Failed()).
		Msg("Agent webhook responded")

	span.SetAttributes(attribute.Int("http.response.status_code", raw.StatusCode))
	if result.Failed() {
		span.SetAttributes(attribute.String("agent.outcome", "failed"))
		telemetry.SetError(span, "agent returned a failure")
	} else {
		span.SetAttributes(attribute.String("agent.outcome", "completed"))
		telemetry.SetOK(span)
	}
	return result, nil
}

// classify maps a transport error onto a Failure. The bool reports a timeout.
func classify(err error) (*normalize.Failure, bool) {
	var netErr net.Error
	var dnsErr *net.DNSError
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return &normalize.Failure{Message: MsgTimedOut, Details: "ETIMEDOUT"}, true
	case errors.Is(err, syscall.ECONNREFUSED):
		return &normalize.Failure{Message: MsgUnavailable, Details: "ECONNREFUSED"}, false
	case errors.As(err, &dnsErr):
		return &normalize.Failure{Message: MsgNotFound, Details: "ENOTFOUND"}, false
	default:
		return &normalize.Failure{Message: fmt.Sprintf(msgGeneric, err.Error()), Details: detailsGeneric}, false
	}
}

// reasonPhrase strips the code from a status line such as "404 Not Found".
func reasonPhrase(status string, code int) string {
	return strings.TrimSpace(strings.TrimPrefix(status, strconv.Itoa(code)))
}

// queryParams flattens a body for GET-style requests. Non-string values are
// JSON encoded.
func queryParams(body map[string]any) map[string]string {
	out := make(map[string]string, len(body))
	for k, v := range body {
		switch val := v.(type) {
		case nil:
			out[k] = ""
		case string:
			out[k] = val
		default:
			b, err := json.Marshal(val)
			if err != nil {
				out[k] = fmt.Sprint(val)
				continue
			}
			out[k] = string(b)
		}
	}
	return out
}
