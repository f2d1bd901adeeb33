// Command partition splits a folder of labeled images into train and test
// subsets by random sampling.
package main

import (
	"math/rand"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/model-collapse/coco-prep/internal/partition"
)

func main() {
	cwd, _ := os.Getwd()
	imageDir := pflag.StringP("imageDir", "i", cwd, "Folder the image dataset is stored in. Defaults to the CWD.")
	outputDir := pflag.StringP("outputDir", "o", "", "Folder the train and test dirs are created in. Defaults to imageDir.")
	ratio := pflag.Float64P("ratio", "r", 0.1, "Ratio of test images over the total number of images.")
	copyXML := pflag.BoolP("xml", "x", false, "Also copy the .xml annotation file next to each image.")
	seed := pflag.Int64("seed", 0, "Random seed; 0 picks one.")
	pflag.Parse()

	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	if *outputDir == "" {
		*outputDir = *imageDir
	}

	var r *rand.Rand
	if *seed != 0 {
		r = rand.New(rand.NewSource(*seed))
	}

	err := partition.Run(partition.Options{
		SourceDir:   *imageDir,
		DestDir:     *outputDir,
		TestRatio:   *ratio,
		CopySidecar: *copyXML,
		Rand:        r,
		Log:         log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("partition failed")
	}
}
