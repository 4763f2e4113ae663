// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/project-catalogue/pkg/types"
)

// recordExtensions are tried in order when looking up a saved record.
var recordExtensions = []string{".yaml", ".yml", ".json", ".xml"}

// DirFetcher reads saved records named {id}.yaml, {id}.yml, {id}.json or
// {id}.xml from Dir.
type DirFetcher struct {
	Dir string
}

// Fetch loads the first matching file for id. A missing file yields a
// FetchError with NotFound set; an undecodable one a MalformedRecordError.
func (f DirFetcher) Fetch(ctx context.Context, id types.ProjectID, _ types.Programme) (types.RawRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name := filepath.Base(string(id))
	if name != string(id) || name == "." || name == ".." {
		return nil, &types.FetchError{ProjectID: id, NotFound: true}
	}

	for _, ext := range recordExtensions {
		path := filepath.Join(f.Dir, name+ext)
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, &types.FetchError{ProjectID: id, Cause: err}
		}
		rec, err := decodeRecord(ext, data)
		if err != nil {
			return nil, &types.MalformedRecordError{ProjectID: id, Reason: "decoding " + filepath.Base(path), Cause: err}
		}
		return rec, nil
	}
	return nil, &types.FetchError{ProjectID: id, NotFound: true}
}

func decodeRecord(ext string, data []byte) (types.RawRecord, error) {
	switch ext {
	case ".xml":
		return DecodeXML(bytes.NewReader(data))
	case ".json":
		var rec any
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, err
		}
		return rec, nil
	default:
		var rec any
		if err := yaml.Unmarshal(data, &rec); err != nil {
			return nil, err
		}
		return rec, nil
	}
}

// SaveRecord writes rec as YAML to {dir}/{id}.yaml so a later run can read
// it back with DirFetcher.
func SaveRecord(dir string, id types.ProjectID, rec types.RawRecord) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(rec)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, filepath.Base(string(id))+".yaml"), data, 0o644)
}
