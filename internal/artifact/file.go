package artifact

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/sells-group/shopper-cli/internal/model"
)

// Save writes a to dir as <batch_id>.json. Artifacts are append-only: an
// existing file with the same name is never overwritten.
func Save(dir string, a model.BatchArtifact) (string, error) {
	data, err := Marshal(a)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "artifact: create dir %s", dir)
	}

	path := filepath.Join(dir, a.ID+".json")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return "", eris.Wrapf(model.ErrDuplicate, "artifact: %s already exists", path)
		}
		return "", eris.Wrapf(err, "artifact: create %s", path)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		f.Close() //nolint:errcheck
		return "", eris.Wrapf(err, "artifact: write %s", path)
	}
	if err := f.Close(); err != nil {
		return "", eris.Wrapf(err, "artifact: close %s", path)
	}
	return path, nil
}

// Read loads and validates the artifact at path.
func Read(path string) (model.BatchArtifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.BatchArtifact{}, eris.Wrapf(err, "artifact: read %s", path)
	}
	a, err := Unmarshal(data)
	if err != nil {
		return model.BatchArtifact{}, eris.Wrapf(err, "artifact: %s", path)
	}
	return a, nil
}
