package store

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/jkaflik/tbcover2mqtt/internal/cover"
	"github.com/pkg/errors"
)

// JSONFile keeps all cover records in a single JSON document keyed by
// cover id.
type JSONFile struct {
	Path string
}

func NewJSONFile(path string) *JSONFile {
	return &JSONFile{Path: path}
}

func (f *JSONFile) Load() (map[string]cover.Record, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, errors.Wrapf(cover.ErrPersistence, "%s: read: %s", f.Path, err)
	}

	records := map[string]cover.Record{}
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, errors.Wrapf(cover.ErrPersistence, "%s: decode: %s", f.Path, err)
	}

	return records, nil
}

// Save writes to a temporary file first so a crash never leaves a
// truncated document behind.
func (f *JSONFile) Save(records map[string]cover.Record) error {
	data, err := json.MarshalIndent(records, "", "    ")
	if err != nil {
		return errors.Wrapf(cover.ErrPersistence, "%s: encode: %s", f.Path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.Path), filepath.Base(f.Path)+".*")
	if err != nil {
		return errors.Wrapf(cover.ErrPersistence, "%s: %s", f.Path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrapf(cover.ErrPersistence, "%s: write: %s", f.Path, err)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(cover.ErrPersistence, "%s: write: %s", f.Path, err)
	}

	if err := os.Rename(tmp.Name(), f.Path); err != nil {
		return errors.Wrapf(cover.ErrPersistence, "%s: %s", f.Path, err)
	}

	return nil
}

func (f *JSONFile) Close() error {
	return nil
}
