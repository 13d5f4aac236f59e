package app

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/vk/yolosetgo/internal/annotation"
	"github.com/vk/yolosetgo/internal/ctxlog"
	"github.com/vk/yolosetgo/internal/dataset"
	"github.com/vk/yolosetgo/internal/localize"
	"github.com/vk/yolosetgo/internal/modelcfg"
	"github.com/vk/yolosetgo/internal/verify"
)

// Summary aggregates the per-category counters surfaced at the end of a run.
// Record-level and URL-level failures accumulate here instead of aborting.
type Summary struct {
	ImageSets      int
	MissingSets    int
	Records        int
	SkippedRecords int
	VerifyPassed   int
	VerifyFailed   int

	Assembly *dataset.Stats
	Local    *localize.Stats
}

// Run executes the pipeline end to end based on the App's configuration.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	if a.config.Reconcile {
		_, _, err := dataset.Reconcile(ctx, a.config.OutputDir)
		return err
	}

	summary := &Summary{}

	sets, err := a.loadImagesets(ctx, summary)
	if err != nil {
		return err
	}

	var verified map[string]verify.Result
	if a.config.VerifyURLs {
		verified = a.verifyURLs(ctx, sets, summary)
	} else {
		a.logger.Debug("URL verification disabled, trusting all URLs.")
	}

	assembler := &dataset.Assembler{
		OutDir:     a.config.OutputDir,
		ClassNames: a.dataset.Classes.Names,
	}
	manifest, stats, err := assembler.Assemble(ctx, sets, verified)
	summary.Assembly = stats
	if err != nil {
		return fmt.Errorf("assembling dataset: %w", err)
	}

	if a.config.ModelConfig {
		gen := &modelcfg.Generator{TemplatePath: a.config.TemplatePath}
		outPath := filepath.Join(a.config.OutputDir, modelcfg.OutputName)
		if err := gen.Generate(manifest.NC, outPath); err != nil {
			return fmt.Errorf("generating model config: %w", err)
		}
		a.logger.Info("Model config generated.", "path", outPath, "classes", manifest.NC)
	}

	if a.config.Local {
		materializer := localize.New(a.networkOptions(), a.config.MaxImages)
		local, localStats, err := materializer.Materialize(ctx, manifest, a.config.LocalDir)
		summary.Local = localStats
		if err != nil {
			return fmt.Errorf("materializing local dataset: %w", err)
		}
		manifest = local
	}

	a.logSummary(summary, manifest.Path)
	return nil
}

// loadImagesets discovers and parses the annotation file of every requested
// imageset, in the caller-given order. A missing annotation file skips the
// imageset with a warning; an unreadable one is fatal.
func (a *App) loadImagesets(ctx context.Context, summary *Summary) ([]*annotation.Set, error) {
	source := &annotation.Source{
		Mapping:     a.dataset.Classes.Mapping,
		URLTemplate: a.dataset.URLs.Template,
		NumClasses:  len(a.dataset.Classes.Names),
	}

	var sets []*annotation.Set
	for _, id := range a.config.ImageSets {
		path, err := annotation.FindFile(a.config.AnnotationsDir, id)
		if err != nil {
			a.logger.Warn("Skipping imageset, no annotation file found.", "imageset", id)
			summary.MissingSets++
			continue
		}

		set, err := source.Load(path, id)
		if err != nil {
			return nil, fmt.Errorf("loading imageset %s: %w", id, err)
		}

		a.logger.Info("Imageset parsed.",
			"imageset", id,
			"file", path,
			"records", len(set.Records),
			"skipped", set.Skipped,
		)
		summary.ImageSets++
		summary.Records += len(set.Records)
		summary.SkippedRecords += set.Skipped
		sets = append(sets, set)
	}
	return sets, nil
}

// verifyURLs checks each distinct image URL once and indexes the results by
// URL for the assembler.
func (a *App) verifyURLs(ctx context.Context, sets []*annotation.Set, summary *Summary) map[string]verify.Result {
	var urls []string
	seen := map[string]bool{}
	for _, set := range sets {
		for _, rec := range set.Records {
			if !seen[rec.URL] {
				seen[rec.URL] = true
				urls = append(urls, rec.URL)
			}
		}
	}

	verifier := verify.New(a.networkOptions())
	results := verifier.Verify(ctx, urls)

	verified := make(map[string]verify.Result, len(results))
	for _, res := range results {
		verified[res.URL] = res
		if res.Reachable {
			summary.VerifyPassed++
		} else {
			summary.VerifyFailed++
			a.logger.Warn("URL failed verification.", "url", res.URL, "reason", res.Reason)
		}
	}
	return verified
}

func (a *App) logSummary(summary *Summary, datasetPath string) {
	attrs := []any{
		"imagesets", summary.ImageSets,
		"imagesets_missing", summary.MissingSets,
		"records", summary.Records,
		"records_skipped", summary.SkippedRecords,
		"dataset", datasetPath,
	}
	if a.config.VerifyURLs {
		attrs = append(attrs, "verify_passed", summary.VerifyPassed, "verify_failed", summary.VerifyFailed)
	}
	if summary.Assembly != nil {
		attrs = append(attrs,
			"train_images", summary.Assembly.TrainImages,
			"val_images", summary.Assembly.ValImages,
			"objects", summary.Assembly.Objects,
			"dropped_unverified", summary.Assembly.DroppedUnverified,
			"rejected_boxes", summary.Assembly.RejectedBoxes,
		)
	}
	if summary.Local != nil {
		attrs = append(attrs,
			"downloaded", summary.Local.Downloaded,
			"download_failed", summary.Local.Failed,
			"download_skipped", summary.Local.Skipped,
		)
	}
	a.logger.Info("🏁 Run finished.", attrs...)
}
