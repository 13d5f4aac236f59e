// Package cli turns command-line arguments into a validated app.Config.
package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/vk/yolosetgo/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Parse processes command-line arguments. It returns a populated app.Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("yolosetgo", flag.ContinueOnError)
	flagSet.SetOutput(output)

	// Custom usage/help text function
	flagSet.Usage = func() {
		fmt.Fprint(output, `
yolosetgo - Materialize a YOLO object-detection dataset from URL-referenced imagesets.

Usage:
  yolosetgo -imagesets 145,146 -annotations-dir DIR [options]
  yolosetgo -reconcile -output-dir DIR

Options:
`)
		flagSet.PrintDefaults()
	}

	imagesetsFlag := flagSet.String("imagesets", "", "Comma-separated imageset ids, e.g. '145,146'.")
	annotationsFlag := flagSet.String("annotations-dir", "", "Directory containing annotation YAML files.")
	outputFlag := flagSet.String("output-dir", "datasets/url_dataset", "Directory to write the dataset to.")
	configFlag := flagSet.String("config", "dataset.hcl", "Path to the dataset HCL config. Missing file means defaults.")
	verifyFlag := flagSet.Bool("verify-urls", false, "Verify each image URL before assembly (slower).")
	localFlag := flagSet.Bool("local", false, "Also materialize a local, network-independent dataset.")
	localDirFlag := flagSet.String("local-dir", "", "Local dataset directory. Defaults to '<output-dir>_local'.")
	maxImagesFlag := flagSet.Int("max-images", 10, "Maximum images to download per split in local mode.")
	modelConfigFlag := flagSet.Bool("model-config", false, "Also emit the derived model architecture config.")
	templateFlag := flagSet.String("template", "", "Model config template path. Empty uses the embedded template.")
	reconcileFlag := flagSet.Bool("reconcile", false, "Reconcile an existing dataset directory against disk and exit.")
	workersFlag := flagSet.Int("workers", 0, "Override the network worker count from the config file. 0 keeps it.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	var imagesets []string
	for _, id := range strings.Split(*imagesetsFlag, ",") {
		if id = strings.TrimSpace(id); id != "" {
			imagesets = append(imagesets, id)
		}
	}

	if len(imagesets) == 0 && !*reconcileFlag {
		slog.Debug("No imagesets provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	localDir := *localDirFlag
	if localDir == "" {
		localDir = *outputFlag + "_local"
	}
	slog.Debug("CLI parameter validation complete.")

	config, err := app.NewConfig(app.Config{
		ImageSets:      imagesets,
		AnnotationsDir: *annotationsFlag,
		OutputDir:      *outputFlag,
		ConfigPath:     *configFlag,
		VerifyURLs:     *verifyFlag,
		Local:          *localFlag,
		LocalDir:       localDir,
		MaxImages:      *maxImagesFlag,
		ModelConfig:    *modelConfigFlag,
		TemplatePath:   *templateFlag,
		Reconcile:      *reconcileFlag,
		WorkerOverride: *workersFlag,
		LogFormat:      logFormat,
		LogLevel:       logLevel,
	})

	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "config", config)
	return config, false, nil
}
