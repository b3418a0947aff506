package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

const (
	filePrefix = "banco_estado_"
	maxSuffix  = 100
)

// FileName is the timestamped result file name for at, qualified by the
// task id when there is one.
func FileName(at time.Time, taskID string) string {
	name := filePrefix + at.Format("20060102_150405")
	if id := fileSafe(taskID); id != "" {
		name += "_" + id
	}
	return name + ".json"
}

func fileSafe(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return -1
	}, s)
}

// SaveJSON writes v as indented JSON to dir/FileName(at, taskID) and returns
// the path. An existing file is never overwritten: a numeric suffix is added
// instead. An empty dir means the working directory.
func SaveJSON(dir string, v any, at time.Time, taskID string) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "backend: create %s", dir)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", eris.Wrap(err, "backend: encode result")
	}

	base := strings.TrimSuffix(FileName(at, taskID), ".json")
	for n := 0; n < maxSuffix; n++ {
		name := base + ".json"
		if n > 0 {
			name = fmt.Sprintf("%s_%d.json", base, n)
		}
		path := filepath.Join(dir, name)

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", eris.Wrapf(err, "backend: create %s", path)
		}
		if _, err := f.Write(data); err != nil {
			_ = f.Close()
			return "", eris.Wrapf(err, "backend: write %s", path)
		}
		if err := f.Close(); err != nil {
			return "", eris.Wrapf(err, "backend: write %s", path)
		}
		return path, nil
	}
	return "", eris.Errorf("backend: %d result files named %s already exist", maxSuffix, base)
}
