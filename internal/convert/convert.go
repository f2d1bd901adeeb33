// Package convert drives one full COCO-to-record conversion: load the
// document, index it, build a record per image and fan the records out over
// the shard set.
package convert

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/model-collapse/coco-prep/internal/coco"
	"github.com/model-collapse/coco-prep/internal/record"
	"github.com/model-collapse/coco-prep/internal/tfrecord"
)

// progressEvery is how many images pass between progress log lines.
const progressEvery = 100

// Options configures a single conversion run.
type Options struct {
	AnnotationsFile string
	ImageDir        string
	OutputPath      string // shard name prefix
	NumShards       int
	IncludeMasks    bool
	PreviewDir      string // empty disables preview rendering
	Log             zerolog.Logger
}

// Run converts one annotation file. A failure on any single image aborts
// the run; only individual degenerate annotations are skipped, and their
// total is reported in the final summary.
func Run(opts Options) error {
	doc, err := coco.LoadDocument(opts.AnnotationsFile)
	if err != nil {
		return err
	}

	catIndex := coco.BuildCategoryIndex(doc.Categories)
	annIndex, missing := coco.BuildAnnotationIndex(doc)
	opts.Log.Info().
		Int("images", len(doc.Images)).
		Int("annotations", len(doc.Annotations)).
		Int("images_missing_annotations", missing).
		Msg("annotation index built")

	if opts.PreviewDir != "" {
		if err := os.MkdirAll(opts.PreviewDir, os.ModePerm); err != nil {
			return err
		}
	}

	shards, err := tfrecord.OpenShards(opts.OutputPath, opts.NumShards)
	if err != nil {
		return err
	}
	defer shards.Close()

	builder := &record.Builder{
		ImageDir:     opts.ImageDir,
		Categories:   catIndex,
		IncludeMasks: opts.IncludeMasks,
		Log:          opts.Log,
	}

	totalSkipped := 0
	for idx, img := range doc.Images {
		if idx%progressEvery == 0 {
			opts.Log.Info().Int("image", idx).Int("total", len(doc.Images)).Msg("converting")
		}

		_, rec, skipped, err := builder.Build(img, annIndex[img.ID])
		if err != nil {
			return fmt.Errorf("image %d (%s): %w", img.ID, img.FileName, err)
		}
		totalSkipped += skipped

		if err := shards.Write(rec, idx); err != nil {
			return err
		}

		if opts.PreviewDir != "" {
			dst := filepath.Join(opts.PreviewDir, img.FileName)
			if err := record.RenderPreview(rec, dst); err != nil {
				opts.Log.Warn().Err(err).Str("file", img.FileName).Msg("preview render failed")
			}
		}
	}

	opts.Log.Info().
		Int("images", len(doc.Images)).
		Int("skipped_annotations", totalSkipped).
		Int("images_missing_annotations", missing).
		Msg("finished writing")

	return shards.Close()
}
