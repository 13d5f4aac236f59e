package app

import "errors"

// Config holds everything an App instance needs to run. It is constructed
// once by the CLI layer and never mutated afterwards.
type Config struct {
	ImageSets      []string // imageset ids, processed in this order
	AnnotationsDir string
	OutputDir      string
	ConfigPath     string // dataset HCL config; missing file means defaults

	VerifyURLs bool
	Local      bool
	LocalDir   string
	MaxImages  int // per-split cap in local mode

	ModelConfig  bool
	TemplatePath string // empty selects the embedded template

	Reconcile bool

	// WorkerOverride replaces the config file's network worker count when
	// positive.
	WorkerOverride int

	LogFormat string
	LogLevel  string
}

// NewConfig validates a Config. Validation happens before any I/O.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.OutputDir == "" {
		return nil, errors.New("output directory cannot be empty")
	}
	if cfg.Reconcile {
		// Reconciliation only needs an existing dataset directory.
		return &cfg, nil
	}
	if len(cfg.ImageSets) == 0 {
		return nil, errors.New("at least one imageset id is required")
	}
	if cfg.AnnotationsDir == "" {
		return nil, errors.New("annotations directory is required")
	}
	if cfg.Local && cfg.MaxImages <= 0 {
		return nil, errors.New("local mode requires a positive max image count")
	}
	return &cfg, nil
}
