// Package artifacts stores diagnostic screenshots taken during automation
// runs. Artifacts are write-only: nothing in the service reads them back.
package artifacts

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/xkilldash9x/crust/internal/config"
)

const (
	dirPerm  os.FileMode = 0o755
	filePerm os.FileMode = 0o644
)

// Recorder writes step and error screenshots into a single directory. File
// names are step-<n>-<unixMillis>.png and error-<unixMillis>.png.
type Recorder struct {
	fs      afero.Fs
	dir     string
	enabled bool
	logger  *zap.Logger

	// now is the clock used for file names.
	now func() time.Time

	mkdirOnce sync.Once
	mkdirErr  error
}

// NewRecorder resolves the configured directory (expanding a leading ~)
// and returns a recorder over fs. The directory is created on first write.
func NewRecorder(fs afero.Fs, cfg config.ArtifactsConfig, logger *zap.Logger) (*Recorder, error) {
	dir, err := homedir.Expand(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to expand artifact directory %q: %w", cfg.Dir, err)
	}
	if cfg.Enabled && dir == "" {
		return nil, fmt.Errorf("artifacts are enabled but no directory is configured")
	}
	return &Recorder{
		fs:      fs,
		dir:     filepath.Clean(dir),
		enabled: cfg.Enabled,
		logger:  logger.Named("artifacts"),
		now:     time.Now,
	}, nil
}

// Dir returns the resolved artifact directory.
func (r *Recorder) Dir() string { return r.dir }

// SaveStep stores the screenshot taken after step completed.
func (r *Recorder) SaveStep(step int, png []byte) (string, error) {
	return r.save(fmt.Sprintf("step-%d-%d.png", step, r.now().UnixMilli()), png)
}

// SaveError stores the screenshot taken when an action failed.
func (r *Recorder) SaveError(png []byte) (string, error) {
	return r.save(fmt.Sprintf("error-%d.png", r.now().UnixMilli()), png)
}

func (r *Recorder) save(name string, png []byte) (string, error) {
	if !r.enabled {
		return "", nil
	}
	r.mkdirOnce.Do(func() {
		r.mkdirErr = r.fs.MkdirAll(r.dir, dirPerm)
	})
	if r.mkdirErr != nil {
		return "", fmt.Errorf("failed to create artifact directory: %w", r.mkdirErr)
	}

	path := filepath.Join(r.dir, name)
	if err := afero.WriteFile(r.fs, path, png, filePerm); err != nil {
		return "", fmt.Errorf("failed to write artifact %s: %w", name, err)
	}
	r.logger.Debug("Artifact written.", zap.String("path", path), zap.Int("bytes", len(png)))
	return path, nil
}
