package source

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/recallguard/recallguard-api/internal/models"
)

// SnapshotCache persists the last successful fetch per source so a run can
// degrade to stale data when an upstream is completely unreachable.
type SnapshotCache struct {
	dir string
}

func NewSnapshotCache(dir string) *SnapshotCache {
	return &SnapshotCache{dir: dir}
}

func (c *SnapshotCache) path(source models.Source) string {
	name := strings.ReplaceAll(string(source), "/", "_")
	return filepath.Join(c.dir, name+"_snapshot.json")
}

func (c *SnapshotCache) Load(source models.Source) ([]RawRecall, error) {
	data, err := os.ReadFile(c.path(source))
	if err != nil {
		return nil, err
	}
	var raws []RawRecall
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("decode snapshot for %s: %w", source, err)
	}
	return raws, nil
}

func (c *SnapshotCache) Store(source models.Source, raws []RawRecall) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(raws)
	if err != nil {
		return fmt.Errorf("encode snapshot for %s: %w", source, err)
	}
	return os.WriteFile(c.path(source), data, 0o644)
}

// fallback implements the cache policy shared by all adapters: a failed
// live fetch returns whatever was accumulated plus the error; only a
// fetch that accumulated nothing degrades to the snapshot, and only when
// the run's policy allows it.
func fallback(cache *SnapshotCache, source models.Source, policy Policy, accumulated []RawRecall, fetchErr error) ([]RawRecall, error) {
	if fetchErr == nil {
		if cache != nil {
			// Best effort; a failed snapshot write must not fail the run.
			_ = cache.Store(source, accumulated)
		}
		return accumulated, nil
	}
	if len(accumulated) > 0 || cache == nil || !policy.UseCache {
		return accumulated, fetchErr
	}
	cached, err := cache.Load(source)
	if err != nil {
		return nil, fetchErr
	}
	return cached, fetchErr
}
