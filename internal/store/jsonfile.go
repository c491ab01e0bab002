package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"pricefeed/internal/schema"
	"pricefeed/pkg/exception"

	"github.com/yanun0323/errors"
)

// JSONFile writes the records as one JSON array. The file is replaced
// atomically, so readers never see a partial document.
type JSONFile struct {
	path string
}

func NewJSONFile(path string) (*JSONFile, error) {
	if path == "" {
		return nil, exception.ErrEmptyOutputPath
	}
	return &JSONFile{path: path}, nil
}

func (f *JSONFile) Name() string {
	return "json"
}

func (f *JSONFile) Path() string {
	return f.path
}

func (f *JSONFile) Write(ctx context.Context, batch Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	records := batch.Records
	if records == nil {
		records = []schema.Record{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return errors.Wrap(err, "marshal records")
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "create output dir").With("dir", dir)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "write temp file")
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "sync temp file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close temp file")
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return errors.Wrap(err, "chmod temp file")
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return errors.Wrap(err, "rename output").With("path", f.path)
	}
	return nil
}

// ReadJSONFile loads a document written by JSONFile.
func ReadJSONFile(path string) ([]schema.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var records []schema.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, errors.Wrap(err, "unmarshal records").With("path", path)
	}
	return records, nil
}
