// Package dataset assembles annotation records from multiple imagesets into
// a YOLO dataset on disk: per-image label files, train/val list files, and
// the dataset.yaml manifest tying them together.
package dataset

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Well-known file names inside a dataset directory.
const (
	ManifestName  = "dataset.yaml"
	TrainListName = "train.txt"
	ValListName   = "val.txt"
	LabelDirName  = "labels"
	ImageDirName  = "images"
)

// Splits enumerates the dataset splits in their canonical order.
var Splits = []string{"train", "val"}

// Manifest describes an assembled dataset for a downstream training driver.
// It is authoritative: written wholesale once per run, never patched.
type Manifest struct {
	Path     string   `yaml:"path"` // absolute dataset root
	Train    string   `yaml:"train"`
	Val      string   `yaml:"val"`
	Test     string   `yaml:"test"`
	LabelDir string   `yaml:"label_dir"`
	NC       int      `yaml:"nc"`
	Names    []string `yaml:"names"`
}

// ListFile returns the list file name for a split.
func (m *Manifest) ListFile(split string) string {
	if split == "train" {
		return m.Train
	}
	return m.Val
}

// Write persists the manifest into its dataset directory.
func (m *Manifest) Write() error {
	raw, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	path := filepath.Join(m.Path, ManifestName)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	return nil
}

// ReadManifest loads the manifest from a dataset directory.
func ReadManifest(dir string) (*Manifest, error) {
	raw, err := os.ReadFile(filepath.Join(dir, ManifestName))
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decoding manifest: %w", err)
	}
	return &m, nil
}

// Entry is one line of a split list file: an image reference (remote URL or
// local path) and its label file, relative to the dataset root.
type Entry struct {
	Ref   string
	Label string
}

// IsRemote reports whether the entry still references a remote image.
func (e Entry) IsRemote() bool {
	return strings.HasPrefix(e.Ref, "http://") || strings.HasPrefix(e.Ref, "https://")
}

// WriteList writes a split list file, one tab-separated entry per line.
func WriteList(path string, entries []Entry) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating list file: %w", err)
	}

	w := bufio.NewWriter(f)
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\n", e.Ref, e.Label)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("writing list file %s: %w", path, err)
	}
	return f.Close()
}

// ReadList parses a split list file back into entries.
func ReadList(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening list file: %w", err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		ref, lbl, ok := strings.Cut(line, "\t")
		if !ok {
			return nil, fmt.Errorf("malformed list line %q in %s", line, path)
		}
		entries = append(entries, Entry{Ref: ref, Label: lbl})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading list file %s: %w", path, err)
	}
	return entries, nil
}
