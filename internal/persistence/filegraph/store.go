// Package filegraph persists execution graphs as JSON files with
// optimistic concurrency on the graph version. Scheduler dispatch and gate
// resolution compete for the same compare-and-swap, so a per-graph file
// lock guards the read-compare-write cycle across processes.
package filegraph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/gantry-org/gantry/internal/core"
)

const lockRetryInterval = 50 * time.Millisecond

var _ core.GraphStore = (*Store)(nil)

// Store manages graph files under {dataDir}/graphs/{taskID}/{graphID}.json.
type Store struct {
	dir string
}

// New creates a Store rooted at the given data directory.
func New(dataDir string) *Store {
	return &Store{dir: filepath.Join(dataDir, "graphs")}
}

// Create stores a validated new graph. The initial version is 1.
func (s *Store) Create(ctx context.Context, graph *core.Graph) error {
	if err := core.Validate(graph); err != nil {
		return fmt.Errorf("refusing to store invalid graph: %w", err)
	}
	if graph.Version == 0 {
		graph.Version = 1
	}

	path := s.graphPath(graph.TaskID, graph.ID)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create graph directory: %w", err)
	}

	unlock, err := s.lock(ctx, path)
	if err != nil {
		return err
	}
	defer unlock()

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %s/%s", core.ErrGraphExists, graph.TaskID, graph.ID)
	}
	return writeJSONAtomic(path, graph)
}

// Get returns the stored graph.
func (s *Store) Get(_ context.Context, taskID, graphID string) (*core.Graph, error) {
	return readGraph(s.graphPath(taskID, graphID))
}

// Save writes the graph if the stored version still equals expectedVersion
// and bumps the version. No two writers that observed the same version can
// both succeed: the compare runs under the per-graph file lock.
func (s *Store) Save(ctx context.Context, graph *core.Graph, expectedVersion int64) (int64, error) {
	path := s.graphPath(graph.TaskID, graph.ID)

	unlock, err := s.lock(ctx, path)
	if err != nil {
		return 0, err
	}
	defer unlock()

	stored, err := readGraph(path)
	if err != nil {
		return 0, err
	}
	if stored.Version != expectedVersion {
		return 0, fmt.Errorf("%w: expected %d, stored %d",
			core.ErrVersionConflict, expectedVersion, stored.Version)
	}

	next := graph.Clone()
	next.Version = expectedVersion + 1
	if err := writeJSONAtomic(path, next); err != nil {
		return 0, err
	}
	return next.Version, nil
}

// List returns all stored graphs, skipping unreadable files.
func (s *Store) List(ctx context.Context) ([]*core.Graph, error) {
	var graphs []*core.Graph
	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".json") {
			return nil
		}
		g, err := readGraph(path)
		if err != nil {
			return nil // corrupt or foreign file, skip
		}
		graphs = append(graphs, g)
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to list graphs: %w", err)
	}
	_ = ctx
	return graphs, nil
}

// Remove deletes the stored graph and its lock file.
func (s *Store) Remove(_ context.Context, taskID, graphID string) error {
	path := s.graphPath(taskID, graphID)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s/%s", core.ErrGraphNotFound, taskID, graphID)
		}
		return fmt.Errorf("failed to remove graph: %w", err)
	}
	_ = os.Remove(path + ".lock")
	return nil
}

func (s *Store) graphPath(taskID, graphID string) string {
	return filepath.Join(s.dir, safeName(taskID), safeName(graphID)+".json")
}

func (s *Store) lock(ctx context.Context, path string) (func(), error) {
	fl := flock.New(path + ".lock")
	ok, err := fl.TryLockContext(ctx, lockRetryInterval)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire graph lock: %w", err)
	}
	if !ok {
		return nil, errors.New("failed to acquire graph lock")
	}
	return func() { _ = fl.Unlock() }, nil
}

func readGraph(path string) (*core.Graph, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path derived from store root
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", core.ErrGraphNotFound, path)
		}
		return nil, fmt.Errorf("failed to read graph: %w", err)
	}
	var g core.Graph
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("failed to unmarshal graph: %w", err)
	}
	return &g, nil
}

// writeJSONAtomic writes to a temp file in the target directory and
// renames it into place, so a crash mid-write never leaves a torn graph.
func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal graph: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write graph: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to finalize graph file: %w", err)
	}
	return nil
}

func safeName(name string) string {
	r := strings.NewReplacer("/", "_", string(filepath.Separator), "_", "..", "_")
	return r.Replace(name)
}
