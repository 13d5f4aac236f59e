package dataset

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/vk/yolosetgo/internal/annotation"
	"github.com/vk/yolosetgo/internal/ctxlog"
	"github.com/vk/yolosetgo/internal/label"
	"github.com/vk/yolosetgo/internal/verify"
)

// ErrNoRecords is the fatal error for a run in which no record survived
// across all imagesets. No manifest is written in that case.
var ErrNoRecords = errors.New("dataset: no records survived assembly")

// DefaultSplitRatio is the train share of the train/val partition.
const DefaultSplitRatio = 0.8

// Assembler merges records across imagesets and writes the dataset to disk.
// Only the assembler (and later the materializer) writes the output
// directory; all writes are sequential.
type Assembler struct {
	OutDir     string
	ClassNames []string
	SplitRatio float64 // zero means DefaultSplitRatio
}

// Stats summarizes one assembly run.
type Stats struct {
	TrainImages       int
	ValImages         int
	Objects           int
	DroppedUnverified int // records excluded because their URL failed verification
	RejectedBoxes     int // boxes with no area after clipping
}

// imageGroup collects the converted labels of one image. Grouping happens on
// the stable (imageset, key) identity, so the same image number in two
// imagesets never collides.
type imageGroup struct {
	url    string
	name   string // label file base name
	labels []label.Label
}

// Assemble merges the given imagesets, drops records that failed
// verification (verified is nil when verification was skipped), partitions
// images deterministically into train/val, and writes label files, list
// files, and the manifest. Imagesets are processed in caller order and
// records in file order, so output is reproducible.
func (a *Assembler) Assemble(ctx context.Context, sets []*annotation.Set, verified map[string]verify.Result) (*Manifest, *Stats, error) {
	logger := ctxlog.FromContext(ctx)
	stats := &Stats{}

	ratio := a.SplitRatio
	if ratio == 0 {
		ratio = DefaultSplitRatio
	}

	var order []string
	groups := map[string]*imageGroup{}

	for _, set := range sets {
		for _, rec := range set.Records {
			if verified != nil {
				if res, ok := verified[rec.URL]; !ok || !res.Reachable {
					stats.DroppedUnverified++
					continue
				}
			}

			lbl, err := label.Convert(rec.Class, rec.Box, rec.Width, rec.Height)
			if err != nil {
				logger.Warn("Rejecting box.", "imageset", rec.ImageSet, "image", rec.Key, "error", err)
				stats.RejectedBoxes++
				continue
			}

			id := set.ID + "/" + rec.Key
			group, ok := groups[id]
			if !ok {
				group = &imageGroup{
					url:  rec.URL,
					name: fmt.Sprintf("%s_%s.txt", set.ID, rec.Key),
				}
				groups[id] = group
				order = append(order, id)
			}
			group.labels = append(group.labels, lbl)
			stats.Objects++
		}
	}

	if len(order) == 0 {
		return nil, stats, ErrNoRecords
	}

	if err := a.mkdirs(); err != nil {
		return nil, stats, err
	}

	entries := map[string][]Entry{}
	for _, id := range order {
		group := groups[id]
		split := assignSplit(group.url, ratio)

		relLabel := filepath.Join(LabelDirName, split, group.name)
		if err := writeLabelFile(filepath.Join(a.OutDir, relLabel), group.labels); err != nil {
			return nil, stats, err
		}
		entries[split] = append(entries[split], Entry{Ref: group.url, Label: relLabel})
	}
	stats.TrainImages = len(entries["train"])
	stats.ValImages = len(entries["val"])

	for _, split := range Splits {
		listName := TrainListName
		if split == "val" {
			listName = ValListName
		}
		if err := WriteList(filepath.Join(a.OutDir, listName), entries[split]); err != nil {
			return nil, stats, err
		}
	}

	absDir, err := filepath.Abs(a.OutDir)
	if err != nil {
		return nil, stats, fmt.Errorf("resolving output dir: %w", err)
	}
	manifest := &Manifest{
		Path:     absDir,
		Train:    TrainListName,
		Val:      ValListName,
		LabelDir: LabelDirName,
		NC:       len(a.ClassNames),
		Names:    a.ClassNames,
	}
	if err := manifest.Write(); err != nil {
		return nil, stats, err
	}

	logger.Info("Dataset assembled.",
		"dir", absDir,
		"train", stats.TrainImages,
		"val", stats.ValImages,
		"objects", stats.Objects,
		"dropped_unverified", stats.DroppedUnverified,
		"rejected_boxes", stats.RejectedBoxes,
	)
	return manifest, stats, nil
}

func (a *Assembler) mkdirs() error {
	for _, split := range Splits {
		if err := os.MkdirAll(filepath.Join(a.OutDir, LabelDirName, split), 0o755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
	}
	return nil
}

// assignSplit partitions an image by a stable hash of its URL, so the
// train/val assignment is identical across runs and independent of record
// arrival order.
func assignSplit(url string, trainRatio float64) string {
	h := fnv.New32a()
	h.Write([]byte(url))
	if float64(h.Sum32())/float64(math.MaxUint32) < trainRatio {
		return "train"
	}
	return "val"
}

func writeLabelFile(path string, labels []label.Label) error {
	lines := make([]string, len(labels))
	for i, l := range labels {
		lines[i] = l.String()
	}
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		return fmt.Errorf("writing label file: %w", err)
	}
	return nil
}
