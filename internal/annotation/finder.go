package annotation

import (
	"fmt"
	"os"
	"regexp"

	"github.com/vk/yolosetgo/internal/fsutil"
)

// filePatterns are the base-name globs tried, in order, when locating the
// annotation file for an imageset id.
var filePatterns = []string{
	"*__blue_%s__*.yaml",
	"*__blue_%s.yaml",
	"*_blue_%s.yaml",
	"*_%s_*.yaml",
	"*_%s.yaml",
}

// FindFile locates the annotation file for one imageset inside dir. It first
// tries the known file-name patterns, then falls back to probing the content
// of every YAML file in the directory for references to the imageset.
func FindFile(dir, imagesetID string) (string, error) {
	for _, pattern := range filePatterns {
		if matches := fsutil.Glob(dir, fmt.Sprintf(pattern, imagesetID)); len(matches) > 0 {
			return matches[0], nil
		}
	}

	// Content probe. Slower, but tolerates renamed files.
	probe, err := regexp.Compile(fmt.Sprintf(`blue_%[1]s|_%[1]s_|_%[1]s/`, regexp.QuoteMeta(imagesetID)))
	if err != nil {
		return "", fmt.Errorf("building content probe for imageset %s: %w", imagesetID, err)
	}
	candidates, err := fsutil.FindFilesByExtension(dir, ".yaml")
	if err != nil {
		return "", fmt.Errorf("scanning %s: %w", dir, err)
	}
	for _, path := range candidates {
		raw, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if probe.Match(raw) {
			return path, nil
		}
	}

	return "", fmt.Errorf("no annotation file for imageset %s in %s", imagesetID, dir)
}
