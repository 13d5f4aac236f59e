// Package modelcfg derives a model architecture descriptor from a base
// template. The only thing it ever changes is the output-layer class count;
// every other byte of the template is preserved, which is why the rewrite is
// a single-line substitution rather than a YAML round-trip.
package modelcfg

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
)

//go:embed yolov5s.yaml
var defaultTemplate []byte

// OutputName is the conventional file name for the derived config.
const OutputName = "yolov5s_custom.yaml"

// ncLine matches the class-count parameter line of the template.
var ncLine = regexp.MustCompile(`(?m)^nc:[^\n]*`)

// Generator derives model configs from a template. An empty TemplatePath
// selects the embedded YOLOv5s template.
type Generator struct {
	TemplatePath string
}

// Derive returns the template with its class-count field rewritten to
// numClasses. The template must contain exactly one top-level "nc:" line.
func Derive(template []byte, numClasses int) ([]byte, error) {
	if numClasses <= 0 {
		return nil, fmt.Errorf("modelcfg: class count must be positive, got %d", numClasses)
	}
	matches := ncLine.FindAll(template, -1)
	if len(matches) == 0 {
		return nil, fmt.Errorf("modelcfg: template has no nc: line")
	}
	if len(matches) > 1 {
		return nil, fmt.Errorf("modelcfg: template has %d nc: lines, want exactly one", len(matches))
	}
	replacement := fmt.Sprintf("nc: %d  # number of classes", numClasses)
	return ncLine.ReplaceAll(template, []byte(replacement)), nil
}

// Generate writes the derived config for numClasses to outPath.
func (g *Generator) Generate(numClasses int, outPath string) error {
	template := defaultTemplate
	if g.TemplatePath != "" {
		raw, err := os.ReadFile(g.TemplatePath)
		if err != nil {
			return fmt.Errorf("reading template: %w", err)
		}
		template = raw
	}

	derived, err := Derive(template, numClasses)
	if err != nil {
		return err
	}
	if err := os.WriteFile(outPath, derived, 0o644); err != nil {
		return fmt.Errorf("writing model config: %w", err)
	}
	return nil
}
