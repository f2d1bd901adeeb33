// Command cocorecord converts COCO annotation files plus their image
// directories into sharded training-record files, one sharded output per
// dataset (train and validation).
package main

import (
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/model-collapse/coco-prep/internal/config"
	"github.com/model-collapse/coco-prep/internal/convert"
)

func main() {
	pflag.String("config", "", "Optional JSON config file; flags override it.")
	pflag.String("train_image_dir", "", "Training image directory.")
	pflag.String("val_image_dir", "", "Validation image directory.")
	pflag.String("train_annotations_file", "", "Training annotations JSON file.")
	pflag.String("val_annotations_file", "", "Validation annotations JSON file.")
	pflag.String("output_dir", "/tmp/", "Output data directory.")
	pflag.Bool("include_masks", true, "Whether to include instance segmentation masks (PNG encoded) in the result.")
	pflag.Int("num_shards", 10, "Number of output file shards per dataset.")
	pflag.String("preview_dir", "", "If set, write annotated preview images here.")
	pflag.Bool("verbose", false, "Log per-annotation skips.")
	pflag.Parse()

	log := zerolog.New(os.Stderr).With().Timestamp().Logger()
	if v, _ := pflag.CommandLine.GetBool("verbose"); !v {
		log = log.Level(zerolog.InfoLevel)
	}

	configPath, _ := pflag.CommandLine.GetString("config")
	cfg, err := config.Load(configPath, pflag.CommandLine)
	if err != nil {
		log.Fatal().Err(err).Msg("loading config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("bad config")
	}

	if err := os.MkdirAll(cfg.OutputDir, os.ModePerm); err != nil {
		log.Fatal().Err(err).Msg("creating output directory")
	}

	datasets := []struct {
		name        string
		annotations string
		imageDir    string
		prefix      string
	}{
		{"train", cfg.TrainAnnotationsFile, cfg.TrainImageDir, "coco_train.record"},
		{"val", cfg.ValAnnotationsFile, cfg.ValImageDir, "coco_val.record"},
	}

	for _, ds := range datasets {
		previewDir := ""
		if cfg.PreviewDir != "" {
			previewDir = filepath.Join(cfg.PreviewDir, ds.name)
		}

		dsLog := log.With().Str("dataset", ds.name).Logger()
		err := convert.Run(convert.Options{
			AnnotationsFile: ds.annotations,
			ImageDir:        ds.imageDir,
			OutputPath:      filepath.Join(cfg.OutputDir, ds.prefix),
			NumShards:       cfg.NumShards,
			IncludeMasks:    cfg.IncludeMasks,
			PreviewDir:      previewDir,
			Log:             dsLog,
		})
		if err != nil {
			dsLog.Fatal().Err(err).Msg("conversion failed")
		}
	}
}
