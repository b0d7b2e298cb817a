// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package schema validates user inputs against an agent's declared fields and
// checks field declarations at registration time.
package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/noldarim/agentmarket/internal/marketplace/models"
	"github.com/samber/lo"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Validation is the outcome of checking one input map.
type Validation struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// ValidationError carries every violation found in an input map.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return "Input validation failed: " + strings.Join(e.Errors, ", ")
}

// Validate checks input against fields and reports every violation. Fields not
// declared in the schema are ignored.
func Validate(fields models.Schema, input map[string]any) Validation {
	var errs []string

	for _, field := range fields {
		value, present := input[field.Name]
		if !present || isEmpty(value) {
			if field.Required {
				errs = append(errs, fmt.Sprintf("Missing required field: %s", field.DisplayName()))
			}
			continue
		}
		errs = append(errs, checkField(field, value)...)
	}

	return Validation{Valid: len(errs) == 0, Errors: errs}
}

// ValidateInput is Validate as an error: nil when input is valid, otherwise a
// *ValidationError.
func ValidateInput(fields models.Schema, input map[string]any) error {
	v := Validate(fields, input)
	if v.Valid {
		return nil
	}
	return &ValidationError{Errors: v.Errors}
}

func checkField(field models.FieldDefinition, value any) []string {
	var errs []string
	name := field.DisplayName()

	switch field.Type {
	case models.FieldTypeString, models.FieldTypeText, models.FieldTypePassword:
		s, ok := value.(string)
		if !ok {
			return []string{fmt.Sprintf("Field %q must be a string", name)}
		}
		n := utf8.RuneCountInString(s)
		if field.MinLength != nil && n < *field.MinLength {
			errs = append(errs, fmt.Sprintf("Field %q must be at least %d characters", name, *field.MinLength))
		}
		if field.MaxLength != nil && n > *field.MaxLength {
			errs = append(errs, fmt.Sprintf("Field %q must be at most %d characters", name, *field.MaxLength))
		}

	case models.FieldTypeNumber:
		if _, ok := toNumber(value); !ok {
			errs = append(errs, fmt.Sprintf("Field %q must be a number", name))
		}

	case models.FieldTypeURL:
		s, ok := value.(string)
		if !ok || !isAbsoluteURL(s) {
			errs = append(errs, fmt.Sprintf("Field %q must be a valid URL", name))
		}

	case models.FieldTypeEmail:
		s, ok := value.(string)
		if !ok || !emailPattern.MatchString(s) {
			errs = append(errs, fmt.Sprintf("Field %q must be a valid email address", name))
		}

	case models.FieldTypeDropdown:
		if !lo.Contains(field.Options, fmt.Sprint(value)) {
			errs = append(errs, fmt.Sprintf("Field %q must be one of: %s", name, strings.Join(field.Options, ", ")))
		}
	}

	if field.Pattern != "" {
		if s, ok := value.(string); ok {
			re, err := regexp.Compile(field.Pattern)
			switch {
			case err != nil:
				errs = append(errs, fmt.Sprintf("Field %q has an invalid pattern", name))
			case !re.MatchString(s):
				errs = append(errs, fmt.Sprintf("Field %q does not match the required format", name))
			}
		}
	}

	return errs
}

func isEmpty(value any) bool {
	if value == nil {
		return true
	}
	s, ok := value.(string)
	return ok && s == ""
}

func toNumber(value any) (float64, bool) {
	var f float64
	switch v := value.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case int32:
		f = float64(v)
	case json.Number:
		n, err := v.Float64()
		if err != nil {
			return 0, false
		}
		f = n
	case string:
		// ParseFloat accepts "NaN" and "Inf"; the finiteness check below
		// rejects them.
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		f = n
	default:
		return 0, false
	}
	return f, !math.IsNaN(f) && !math.IsInf(f, 0)
}

func isAbsoluteURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" {
		return false
	}
	return u.Host != "" || u.Opaque != ""
}
