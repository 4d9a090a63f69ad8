package staging

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-orgchart/pkg/models"
)

const (
	fileSuffix = ".json"
	tempPrefix = ".staging-"
)

// DiskStore keeps each staged dataset in its own file under dir.
// File modification time is the staging time used by Sweep.
type DiskStore struct {
	dir    string
	codec  codec
	now    func() time.Time
	logger *zap.Logger
}

// NewDiskStore creates the directory if needed and returns a DiskStore rooted there.
func NewDiskStore(dir string, logger *zap.Logger, opts ...Option) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	return &DiskStore{
		dir:    dir,
		codec:  newCodec(opts),
		now:    time.Now,
		logger: logger.Named("staging-disk"),
	}, nil
}

var _ Store = (*DiskStore)(nil)

func (s *DiskStore) path(handle string) string {
	return filepath.Join(s.dir, handle+fileSuffix)
}

func (s *DiskStore) Put(ctx context.Context, sessionID string, kind models.DatasetKind, ds *models.ParsedDataset) (string, error) {
	if err := checkPut(sessionID, kind, ds); err != nil {
		return "", err
	}

	prior, err := filepath.Glob(filepath.Join(s.dir, keyPrefix(sessionID, kind)+"*"+fileSuffix))
	if err != nil {
		return "", fmt.Errorf("failed to list staged datasets: %w", err)
	}

	payload, err := s.codec.encode(&envelope{Kind: kind, StagedAt: s.now(), Dataset: ds})
	if err != nil {
		return "", err
	}

	handle := newHandle(sessionID, kind)
	tmp, err := os.CreateTemp(s.dir, tempPrefix+"*")
	if err != nil {
		return "", fmt.Errorf("failed to create staging file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to write staging file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to close staging file: %w", err)
	}
	if err := os.Rename(tmpName, s.path(handle)); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to store staging file: %w", err)
	}

	for _, old := range prior {
		if err := os.Remove(old); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("Failed to remove replaced staging file",
				zap.String("file", filepath.Base(old)),
				zap.Error(err))
		}
	}

	return handle, nil
}

func (s *DiskStore) Get(ctx context.Context, handle string) (*models.ParsedDataset, error) {
	if !validHandle(handle) {
		return nil, notFound(handle)
	}

	data, err := os.ReadFile(s.path(handle))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, notFound(handle)
		}
		return nil, fmt.Errorf("failed to read staging file: %w", err)
	}

	env, err := s.codec.decode(data)
	if err != nil {
		return nil, err
	}
	if env.Dataset == nil {
		return nil, notFound(handle)
	}
	return env.Dataset, nil
}

func (s *DiskStore) Delete(ctx context.Context, handle string) error {
	if !validHandle(handle) {
		return nil
	}
	if err := os.Remove(s.path(handle)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete staging file: %w", err)
	}
	return nil
}

func (s *DiskStore) Sweep(ctx context.Context, maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to list staging directory: %w", err)
	}

	cutoff := s.now().Add(-maxAge)
	removed := 0
	for _, e := range entries {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}
		if e.IsDir() || !(strings.HasSuffix(e.Name(), fileSuffix) || strings.HasPrefix(e.Name(), tempPrefix)) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue // removed concurrently
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				s.logger.Warn("Failed to sweep staging file",
					zap.String("file", e.Name()),
					zap.Error(err))
			}
			continue
		}
		removed++
	}

	if removed > 0 {
		s.logger.Debug("Swept staged datasets", zap.Int("removed", removed))
	}
	return removed, nil
}
