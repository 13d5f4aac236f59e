// Package annotation parses raw imageset annotation files into per-object
// records. Each imageset is a YAML file of image entries; every entry carries
// a meta line ("image-0000601.jpg, 1920, 1080") and a list of comma-separated
// object lines ("1, 1004, 360, 1020, 374, 0").
//
// Class ids are remapped here, at the parse boundary, so that every Record
// leaving this package already carries its final class id. Downstream stages
// never remap.
package annotation

import (
	"fmt"
	"image"
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Record is a single annotated object in a single image. Records are
// immutable once parsed and preserve annotation-file order.
type Record struct {
	ImageSet string
	Key      string // stable image identity within the set, e.g. "image-0000601"
	URL      string
	Class    int // final class id, mapping already applied
	Box      image.Rectangle
	Width    int // source image dimensions in pixels
	Height   int
}

// Set is one parsed imageset: its identity, source file, and the ordered
// records that survived parsing.
type Set struct {
	ID      string
	Path    string
	Records []Record
	Skipped int // entries dropped for malformed meta, malformed lines, or unmapped classes
}

// Source parses annotation files into Sets.
type Source struct {
	// Mapping translates raw annotation class ids into final class ids.
	// A raw id with no mapping entry causes the object to be skipped.
	// A nil Mapping passes ids through unchanged.
	Mapping map[int]int

	// URLTemplate is the imageset base URL with an "{id}" placeholder,
	// e.g. "https://host/images/1_{id}/".
	URLTemplate string

	// NumClasses bounds the final class id; ids outside [0, NumClasses)
	// are skipped. Zero disables the check.
	NumClasses int
}

var metaPattern = regexp.MustCompile(`image-(\d+)\.jpg,\s*(\d+),\s*(\d+)`)

// fileRoot mirrors the raw YAML layout of an annotation file.
type fileRoot struct {
	Images []struct {
		Meta        string   `yaml:"meta"`
		Annotations []string `yaml:"annotations"`
	} `yaml:"images"`
}

// Load parses the annotation file at path for the given imageset. Individual
// malformed entries are skipped and counted on the returned Set; only an
// unreadable or structurally invalid file is an error.
func (s *Source) Load(path, imagesetID string) (*Set, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading annotation file %s: %w", path, err)
	}

	var root fileRoot
	if err := yaml.Unmarshal(raw, &root); err != nil {
		return nil, fmt.Errorf("decoding annotation file %s: %w", path, err)
	}

	set := &Set{ID: imagesetID, Path: path}
	baseURL := strings.TrimSuffix(strings.ReplaceAll(s.URLTemplate, "{id}", imagesetID), "/")

	for _, entry := range root.Images {
		meta := metaPattern.FindStringSubmatch(entry.Meta)
		if meta == nil {
			set.Skipped++
			continue
		}
		key := "image-" + meta[1]
		imgW, _ := strconv.Atoi(meta[2])
		imgH, _ := strconv.Atoi(meta[3])
		if imgW <= 0 || imgH <= 0 {
			set.Skipped++
			continue
		}
		url := fmt.Sprintf("%s/%s.jpg", baseURL, key)

		for _, line := range entry.Annotations {
			rec, ok := s.parseObject(line)
			if !ok {
				set.Skipped++
				continue
			}
			rec.ImageSet = imagesetID
			rec.Key = key
			rec.URL = url
			rec.Width = imgW
			rec.Height = imgH
			set.Records = append(set.Records, rec)
		}
	}

	return set, nil
}

// parseObject reads one "class, x1, y1, x2, y2[, ...]" line and applies the
// class mapping. Reports ok=false for anything malformed or unmapped.
func (s *Source) parseObject(line string) (Record, bool) {
	parts := strings.Split(line, ",")
	if len(parts) < 5 {
		return Record{}, false
	}

	values := make([]int, 5)
	for i := range values {
		v, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil {
			return Record{}, false
		}
		values[i] = v
	}

	class := values[0]
	if s.Mapping != nil {
		mapped, ok := s.Mapping[class]
		if !ok {
			return Record{}, false
		}
		class = mapped
	}
	if class < 0 || (s.NumClasses > 0 && class >= s.NumClasses) {
		return Record{}, false
	}

	return Record{
		Class: class,
		Box:   image.Rect(values[1], values[2], values[3], values[4]),
	}, true
}
