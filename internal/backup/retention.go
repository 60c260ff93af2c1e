package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
)

// List returns the artifacts in the backup directory, oldest first. A
// missing directory yields an empty list.
func (m *Manager) List() ([]Artifact, error) {
	entries, err := os.ReadDir(m.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("backup: list %s: %w", m.dir, err)
	}

	var out []Artifact
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		created, ok := m.parseName(e.Name())
		if !ok {
			continue
		}
		art := Artifact{Name: e.Name(), Path: filepath.Join(m.dir, e.Name()), CreatedAt: created}
		if info, err := e.Info(); err == nil {
			art.Size = info.Size()
		}
		out = append(out, art)
	}
	slices.SortFunc(out, func(a, b Artifact) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

// pruneLocked removes all but the newest retain artifacts. Failures are
// logged and counted; the backup that triggered the prune still succeeds.
func (m *Manager) pruneLocked() {
	arts, err := m.List()
	if err != nil {
		m.logger.Warn("backup: listing artifacts for pruning failed", "error", err)
		m.metrics.pruneFailed()
		return
	}
	defer func() {
		if remaining, err := m.List(); err == nil {
			m.metrics.setArtifacts(len(remaining))
		}
	}()

	if len(arts) <= m.retain {
		return
	}
	for _, art := range arts[:len(arts)-m.retain] {
		if err := os.Remove(art.Path); err != nil {
			m.logger.Warn("backup: prune failed, artifact remains", "path", art.Path, "error", err)
			m.metrics.pruneFailed()
			continue
		}
		m.logger.Info("backup: pruned", "name", art.Name)
	}
}
