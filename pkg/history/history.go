// Package history manages per-run output directories. Each investigation
// run writes its CSV exports into a timestamped directory under a history
// root, alongside a YAML metadata file describing the run.
package history

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// dirLayout is the timestamp format used for run directory names.
const dirLayout = "20060102_150405"

// metadataFile is the per-run metadata file name.
const metadataFile = "metadata.yml"

// Metadata describes one stored run.
type Metadata struct {
	RunID       string    `yaml:"run_id"`
	Created     time.Time `yaml:"created"`
	Description string    `yaml:"description"`
	Files       []string  `yaml:"files"`
}

// Run is a single run directory.
type Run struct {
	// Path is the absolute or root-relative directory path.
	Path string

	// Meta is the run metadata, persisted by Finalize.
	Meta Metadata
}

// Store manages the history root directory.
type Store struct {
	root string
}

// NewStore creates a Store for the given root. The root is created on
// first use.
func NewStore(root string) *Store {
	return &Store{root: root}
}

// CreateRun creates a fresh timestamped run directory.
func (s *Store) CreateRun(description string) (*Run, error) {
	now := time.Now()
	path := filepath.Join(s.root, now.Format(dirLayout))
	if err := os.MkdirAll(path, 0o750); err != nil {
		return nil, fmt.Errorf("creating run directory: %w", err)
	}
	return &Run{
		Path: path,
		Meta: Metadata{
			RunID:       uuid.NewString(),
			Created:     now,
			Description: description,
		},
	}, nil
}

// Finalize records the files the run produced and writes the metadata
// file. A run with no files is removed instead, so empty runs leave no
// trace in the history.
func (r *Run) Finalize(files []string) error {
	if len(files) == 0 {
		if err := os.Remove(r.Path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing empty run directory: %w", err)
		}
		return nil
	}

	r.Meta.Files = files
	data, err := yaml.Marshal(r.Meta)
	if err != nil {
		return fmt.Errorf("marshaling run metadata: %w", err)
	}
	path := filepath.Join(r.Path, metadataFile)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing run metadata: %w", err)
	}
	return nil
}

// Dataset describes a stored run discovered in the history root.
type Dataset struct {
	// Path is the dataset directory.
	Path string

	// Created is parsed from the directory name.
	Created time.Time

	// Meta is the run metadata, zero-valued when the metadata file is
	// missing or unreadable.
	Meta Metadata

	// Files lists the CSV files present in the directory.
	Files []string
}

// Age returns how long ago the dataset was created.
func (d Dataset) Age() time.Duration {
	return time.Since(d.Created)
}

// Datasets lists stored runs, newest first. Directories that do not match
// the run naming scheme are skipped.
func (s *Store) Datasets() ([]Dataset, error) {
	entries, err := os.ReadDir(s.root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading history root: %w", err)
	}

	var datasets []Dataset
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		created, err := time.ParseInLocation(dirLayout, entry.Name(), time.Local)
		if err != nil {
			continue
		}

		ds := Dataset{
			Path:    filepath.Join(s.root, entry.Name()),
			Created: created,
		}
		ds.Files = listCSVFiles(ds.Path)
		if meta, err := readMetadata(filepath.Join(ds.Path, metadataFile)); err == nil {
			ds.Meta = meta
		}
		datasets = append(datasets, ds)
	}

	sort.Slice(datasets, func(i, j int) bool { return datasets[i].Created.After(datasets[j].Created) })
	return datasets, nil
}

func readMetadata(path string) (Metadata, error) {
	// #nosec G304 -- path is within the history root
	data, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, err
	}
	var meta Metadata
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return Metadata{}, fmt.Errorf("parsing run metadata: %w", err)
	}
	return meta, nil
}

func listCSVFiles(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == ".csv" {
			files = append(files, entry.Name())
		}
	}
	return files
}
