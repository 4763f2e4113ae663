// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/pdiddy/project-catalogue/pkg/types"
)

type storedField struct {
	Name  string          `json:"name"`
	Type  types.FieldType `json:"type"`
	Value json.RawMessage `json:"value"`
}

// decodeFields restores typed field values from their JSON form, using each
// field's declared type to pick the Go type of its value.
func decodeFields(data []byte) ([]types.FieldValue, error) {
	var stored []storedField
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, err
	}

	out := make([]types.FieldValue, len(stored))
	for i, f := range stored {
		out[i] = types.FieldValue{Name: f.Name, Type: f.Type}
		null := len(f.Value) == 0 || bytes.Equal(f.Value, []byte("null"))

		var err error
		switch f.Type {
		case types.FieldList, types.FieldEnumList:
			v := []string{}
			if !null {
				err = json.Unmarshal(f.Value, &v)
			}
			out[i].Value = v
		case types.FieldInt:
			if !null {
				var v int64
				err = json.Unmarshal(f.Value, &v)
				out[i].Value = v
			}
		case types.FieldFloat:
			if !null {
				var v float64
				err = json.Unmarshal(f.Value, &v)
				out[i].Value = v
			}
		case types.FieldBool:
			if !null {
				var v bool
				err = json.Unmarshal(f.Value, &v)
				out[i].Value = v
			}
		case types.FieldDate:
			var v types.Date
			if !null {
				err = json.Unmarshal(f.Value, &v)
			}
			out[i].Value = v
		default:
			var v string
			if !null {
				err = json.Unmarshal(f.Value, &v)
			}
			out[i].Value = v
		}
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
	}
	return out, nil
}
