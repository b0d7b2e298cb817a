// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package testutil provides fakes shared by the marketplace package tests.
package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// RecordedRequest is one request received by an AgentServer.
type RecordedRequest struct {
	Method string
	Header http.Header
	Query  map[string][]string
	Body   map[string]any
}

// AgentServer is a fake agent webhook that answers every request with a
// fixed status and body and records what it received.
type AgentServer struct {
	*httptest.Server

	mu       sync.Mutex
	requests []RecordedRequest
}

// NewAgentServer starts a fake agent answering with status and body. The
// server is closed when the test ends.
func NewAgentServer(t *testing.T, status int, body string) *AgentServer {
	t.Helper()
	s := &AgentServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := RecordedRequest{Method: r.Method, Header: r.Header.Clone(), Query: r.URL.Query()}
		if raw, err := io.ReadAll(r.Body); err == nil && len(raw) > 0 {
			_ = json.Unmarshal(raw, &rec.Body)
		}
		s.mu.Lock()
		s.requests = append(s.requests, rec)
		s.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(s.Close)
	return s
}

// Requests returns a copy of the requests received so far.
func (s *AgentServer) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RecordedRequest(nil), s.requests...)
}
