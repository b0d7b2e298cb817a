// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// StringMap is a string-to-string JSON column.
type StringMap map[string]string

// Scan implements the sql.Scanner interface
func (m *StringMap) Scan(value any) error {
	*m = StringMap{}
	return scanJSON(value, m, "StringMap")
}

// Value implements the driver.Valuer interface
func (m StringMap) Value() (driver.Value, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	return string(b), err
}

// ValueMap is a JSON object column with arbitrary values.
type ValueMap map[string]any

// Scan implements the sql.Scanner interface
func (m *ValueMap) Scan(value any) error {
	*m = ValueMap{}
	return scanJSON(value, m, "ValueMap")
}

// Value implements the driver.Valuer interface
func (m ValueMap) Value() (driver.Value, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	return string(b), err
}

// Schema is the ordered list of field definitions of an agent.
type Schema []FieldDefinition

// Scan implements the sql.Scanner interface
func (s *Schema) Scan(value any) error {
	*s = Schema{}
	return scanJSON(value, s, "Schema")
}

// Value implements the driver.Valuer interface
func (s Schema) Value() (driver.Value, error) {
	if len(s) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(s)
	return string(b), err
}

// Field returns the definition named name.
func (s Schema) Field(name string) (FieldDefinition, bool) {
	for _, f := range s {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDefinition{}, false
}

func scanJSON(value any, dst any, typeName string) error {
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		if len(v) == 0 {
			return nil
		}
		return json.Unmarshal(v, dst)
	case string:
		if v == "" {
			return nil
		}
		return json.Unmarshal([]byte(v), dst)
	default:
		return errors.New("cannot scan " + typeName + " from non-string/[]byte value")
	}
}
