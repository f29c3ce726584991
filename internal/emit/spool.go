package emit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Spool keeps undelivered batches on disk until they can be replayed.
type Spool struct {
	dir      string
	maxFiles int
}

// NewSpool creates a Spool in dir holding at most maxFiles batches; the
// oldest are dropped beyond that.
func NewSpool(dir string, maxFiles int) *Spool {
	if maxFiles <= 0 {
		maxFiles = 50
	}
	return &Spool{
		dir:      dir,
		maxFiles: maxFiles,
	}
}

// SpoolFile is one spooled batch.
type SpoolFile struct {
	Name string
	At   time.Time
}

// Write saves a batch to a timestamped file and prunes the oldest files
// beyond maxFiles.
func (s *Spool) Write(b Batch, ts time.Time) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("creating spool dir: %w", err)
	}
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encoding batch: %w", err)
	}

	path := filepath.Join(s.dir, fmt.Sprintf("batch_%d.json", ts.UnixNano()))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing spool file: %w", err)
	}
	return s.prune()
}

// Pending lists spooled batches, oldest first.
func (s *Spool) Pending() ([]SpoolFile, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing spool dir: %w", err)
	}

	var files []SpoolFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, "batch_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		ns, err := strconv.ParseInt(strings.TrimSuffix(strings.TrimPrefix(name, "batch_"), ".json"), 10, 64)
		if err != nil {
			continue
		}
		files = append(files, SpoolFile{Name: name, At: time.Unix(0, ns)})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].At.Before(files[j].At)
	})
	return files, nil
}

// Load reads a spooled batch.
func (s *Spool) Load(f SpoolFile) (Batch, error) {
	var b Batch
	data, err := os.ReadFile(filepath.Join(s.dir, f.Name))
	if err != nil {
		return b, fmt.Errorf("reading spool file: %w", err)
	}
	if err := json.Unmarshal(data, &b); err != nil {
		return b, fmt.Errorf("decoding spool file %s: %w", f.Name, err)
	}
	return b, nil
}

// Remove deletes a delivered batch.
func (s *Spool) Remove(f SpoolFile) error {
	if err := os.Remove(filepath.Join(s.dir, f.Name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing spool file %s: %w", f.Name, err)
	}
	return nil
}

func (s *Spool) prune() error {
	files, err := s.Pending()
	if err != nil {
		return err
	}
	if len(files) <= s.maxFiles {
		return nil
	}

	for _, f := range files[:len(files)-s.maxFiles] {
		if err := s.Remove(f); err != nil {
			return fmt.Errorf("pruning spool: %w", err)
		}
	}
	return nil
}
