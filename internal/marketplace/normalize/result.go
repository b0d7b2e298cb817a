// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package normalize

import (
	"encoding/json"
	"fmt"
)

// Result is the normalized outcome of one agent call: either *Success or
// *Failure.
type Result interface {
	// Failed reports whether the result is a *Failure.
	Failed() bool
	isResult()
}

// Success is a completed call. Extra holds provider-specific keys and any
// unrecognized keys of a passed-through body; named fields win on collision.
type Success struct {
	Summary          string
	TextOutput       any
	MediaLinks       []MediaLink
	FallbackUsed     bool
	OriginalError    string
	OriginalResponse any
	Extra            map[string]any
}

func (*Success) Failed() bool { return false }
func (*Success) isResult()    {}

// MediaLink is one generated media item, e.g.
// {"type": "image", "url": "...", "description": "..."}. Keys beyond these
// are kept as sent.
type MediaLink map[string]any

func (l MediaLink) Type() string        { return l.str("type") }
func (l MediaLink) URL() string         { return l.str("url") }
func (l MediaLink) Description() string { return l.str("description") }

func (l MediaLink) str(key string) string {
	s, _ := l[key].(string)
	return s
}

// MarshalJSON flattens the result into the wire shape.
func (s *Success) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.Extra)+6)
	for k, v := range s.Extra {
		out[k] = v
	}
	if s.Summary != "" {
		out["summary"] = s.Summary
	}
	if s.TextOutput != nil {
		out["text_output"] = s.TextOutput
	}
	if len(s.MediaLinks) > 0 {
		out["media_links"] = s.MediaLinks
	}
	if s.FallbackUsed {
		out["fallback_used"] = true
	}
	if s.OriginalError != "" {
		out["original_error"] = s.OriginalError
	}
	if s.OriginalResponse != nil {
		out["original_response"] = s.OriginalResponse
	}
	return json.Marshal(out)
}

// Failure is a call that did not produce usable output.
type Failure struct {
	Message          string
	Details          any
	Status           int
	OriginalResponse any
}

func (*Failure) Failed() bool { return true }
func (*Failure) isResult()    {}

// Error lets a Failure travel as an error where convenient.
func (f *Failure) Error() string {
	if f.Status != 0 {
		return fmt.Sprintf("%s (status %d)", f.Message, f.Status)
	}
	return f.Message
}

func (f *Failure) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"error":   true,
		"message": f.Message,
	}
	if f.Details != nil {
		out["details"] = f.Details
	}
	if f.Status != 0 {
		out["status"] = f.Status
	}
	if f.OriginalResponse != nil {
		out["original_response"] = f.OriginalResponse
	}
	return json.Marshal(out)
}

// successFromBody keeps a body as-is, lifting the well-known keys into the
// typed fields.
func successFromBody(body map[string]any) *Success {
	s := &Success{Extra: make(map[string]any, len(body))}
	for k, v := range body {
		switch k {
		case "summary":
			if str, ok := v.(string); ok {
				s.Summary = str
				continue
			}
		case "text_output":
			if v != nil {
				s.TextOutput = v
				continue
			}
		case "media_links":
			if links, ok := mediaLinks(v); ok {
				s.MediaLinks = links
				continue
			}
		}
		s.Extra[k] = v
	}
	return s
}

// mediaLinks lifts a list of media objects. Any other shape stays in Extra
// untouched.
func mediaLinks(v any) ([]MediaLink, bool) {
	items, ok := v.([]any)
	if !ok || len(items) == 0 {
		return nil, false
	}
	out := make([]MediaLink, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, false
		}
		out = append(out, MediaLink(obj))
	}
	return out, true
}

// truthy follows loose JSON truthiness: null, false, 0 and "" are false.
func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case float64:
		return val != 0
	case int:
		return val != 0
	case json.Number:
		return val != "0" && val != ""
	default:
		return true
	}
}
