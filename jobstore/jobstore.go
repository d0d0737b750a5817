// Package jobstore generalizes golly's vfs abstraction into the per-stage
// job directory persistence described in spec §4.2 (C2): atomic admission,
// re-admission scan on restart, and idempotent deletion.
package jobstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"oss.mash.dev/mash/fsutils"
	"oss.mash.dev/mash/l3"
)

var logger = l3.Get()

// Store is the on-disk job directory for one stage service
// (<state>/<service>_jobs/).
type Store struct {
	dir string
}

// Open ensures dir exists and returns a Store rooted at it.
func Open(dir string) (*Store, error) {
	if !fsutils.DirExists(dir) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("jobstore: cannot create job directory %s: %w", dir, err)
		}
	}
	return &Store{dir: dir}, nil
}

func (s *Store) pathFor(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Admit writes raw atomically: write-temp-then-rename, so a reader never
// observes a partially written job document (spec §4.2). Grounded on
// golly's vfs local filesystem create semantics, made explicitly atomic
// here since the copied OsFs.Create does a direct os.Create rather than a
// temp-then-rename (see DESIGN.md).
func (s *Store) Admit(id string, raw []byte) error {
	final := s.pathFor(id)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("jobstore: admit %s: %w", id, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("jobstore: admit %s: rename failed: %w", id, err)
	}
	return nil
}

// Exists reports whether a job with id is currently admitted on disk.
func (s *Store) Exists(id string) bool {
	return fsutils.FileExists(s.pathFor(id))
}

// Get reads the raw document for an admitted job.
func (s *Store) Get(id string) ([]byte, error) {
	data, err := os.ReadFile(s.pathFor(id))
	if err != nil {
		return nil, fmt.Errorf("jobstore: get %s: %w", id, err)
	}
	return data, nil
}

// Delete removes the job's on-disk file. Deletion is idempotent: a missing
// file is not an error, matching spec §4.2 ("deletion is idempotent").
func (s *Store) Delete(id string) error {
	if err := os.Remove(s.pathFor(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("jobstore: delete %s: %w", id, err)
	}
	return nil
}

// ReAdmit scans the job directory and returns every currently admitted job
// id with its raw document, in deterministic (sorted) order. Called on
// service start, before the broker consumer starts, so the set of admitted
// jobs after restart equals the set present in the directory at restart
// time (spec §8, invariant 2).
func (s *Store) ReAdmit() (map[string][]byte, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("jobstore: scan %s: %w", s.dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	result := make(map[string][]byte, len(names))
	for _, name := range names {
		id := name[:len(name)-len(".json")]
		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			logger.WarnF("jobstore: failed to re-admit %s: %v", id, err)
			continue
		}
		result[id] = data
	}
	return result, nil
}

// Dir returns the directory this store is rooted at.
func (s *Store) Dir() string {
	return s.dir
}
