// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package schema

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/noldarim/agentmarket/internal/marketplace/models"
	"github.com/samber/lo"
)

var (
	structValidator     *validator.Validate
	structValidatorOnce sync.Once
)

// Struct returns the shared struct validator. Agent registration payloads and
// field definitions carry `validate` tags checked through it. Errors name
// fields by their JSON key.
func Struct() *validator.Validate {
	structValidatorOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			if name == "" {
				return f.Name
			}
			return name
		})
		structValidator = v
	})
	return structValidator
}

// DefinitionError lists every problem found in a set of field declarations.
type DefinitionError struct {
	Problems []string
}

func (e *DefinitionError) Error() string {
	return "invalid input_schema: " + strings.Join(e.Problems, "; ")
}

// ValidateDefinitions checks field declarations before an agent is stored.
// Unknown types, duplicate names, dropdowns without options, patterns that do
// not compile and inverted length bounds are rejected.
func ValidateDefinitions(fields models.Schema) error {
	if len(fields) == 0 {
		return &DefinitionError{Problems: []string{"at least one field is required"}}
	}

	var problems []string
	seen := make(map[string]struct{}, len(fields))

	for i, field := range fields {
		if err := Struct().Struct(field); err != nil {
			problems = append(problems, describeStructErrors(i, err)...)
			continue
		}

		if _, dup := seen[field.Name]; dup {
			problems = append(problems, fmt.Sprintf("duplicate field name: %s", field.Name))
		}
		seen[field.Name] = struct{}{}

		if !lo.Contains(models.FieldTypes, field.Type) {
			problems = append(problems, fmt.Sprintf("Invalid field type: %s. Must be one of: %s",
				field.Type, strings.Join(lo.Map(models.FieldTypes, func(t models.FieldType, _ int) string { return string(t) }), ", ")))
			continue
		}

		if field.Type == models.FieldTypeDropdown && len(field.Options) == 0 {
			problems = append(problems, fmt.Sprintf("Dropdown field %q must have options", field.Name))
		}

		if field.Pattern != "" {
			if _, err := regexp.Compile(field.Pattern); err != nil {
				problems = append(problems, fmt.Sprintf("Field %q has an invalid pattern: %v", field.Name, err))
			}
		}

		if field.MinLength != nil && field.MaxLength != nil && *field.MinLength > *field.MaxLength {
			problems = append(problems, fmt.Sprintf("Field %q has min_length greater than max_length", field.Name))
		}
	}

	if len(problems) > 0 {
		return &DefinitionError{Problems: problems}
	}
	return nil
}

func describeStructErrors(index int, err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{fmt.Sprintf("field %d: %v", index, err)}
	}
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			out = append(out, fmt.Sprintf("field %d: %s is required", index, strings.ToLower(fe.Field())))
		default:
			out = append(out, fmt.Sprintf("field %d: %s failed %s", index, strings.ToLower(fe.Field()), fe.Tag()))
		}
	}
	return out
}
