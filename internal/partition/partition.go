// Package partition splits a directory of labeled images into train and
// test subsets by uniform sampling without replacement.
package partition

import (
	"fmt"
	"io"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// SidecarExt is the annotation file expected next to each image.
const SidecarExt = ".xml"

// Options configures one partitioning run.
type Options struct {
	SourceDir   string
	DestDir     string
	TestRatio   float64
	CopySidecar bool
	Rand        *rand.Rand // nil means a time-seeded source
	Log         zerolog.Logger
}

// Run copies ceil(TestRatio * n) randomly chosen images into DestDir/test
// and the rest into DestDir/train. Selection is a shuffle of the file list
// followed by a slice, which keeps the draw uniform without replacement.
func Run(opts Options) error {
	if opts.TestRatio < 0 || opts.TestRatio > 1 {
		return fmt.Errorf("test ratio %v outside [0, 1]", opts.TestRatio)
	}

	trainDir := filepath.Join(opts.DestDir, "train")
	testDir := filepath.Join(opts.DestDir, "test")
	for _, d := range []string{trainDir, testDir} {
		if err := os.MkdirAll(d, os.ModePerm); err != nil {
			return err
		}
	}

	images, err := ListImages(opts.SourceDir)
	if err != nil {
		return err
	}

	r := opts.Rand
	if r == nil {
		r = rand.New(rand.NewSource(rand.Int63()))
	}
	r.Shuffle(len(images), func(i, j int) {
		images[i], images[j] = images[j], images[i]
	})

	numTest := int(math.Ceil(opts.TestRatio * float64(len(images))))
	opts.Log.Info().
		Int("images", len(images)).
		Int("test", numTest).
		Int("train", len(images)-numTest).
		Msg("partitioning dataset")

	if err := copyAll(opts, images[:numTest], testDir); err != nil {
		return err
	}

	return copyAll(opts, images[numTest:], trainDir)
}

func copyAll(opts Options, names []string, dstDir string) error {
	for _, name := range names {
		if err := copyFile(filepath.Join(opts.SourceDir, name), filepath.Join(dstDir, name)); err != nil {
			return err
		}

		if !opts.CopySidecar {
			continue
		}
		sidecar := strings.TrimSuffix(name, filepath.Ext(name)) + SidecarExt
		if err := copyFile(filepath.Join(opts.SourceDir, sidecar), filepath.Join(dstDir, sidecar)); err != nil {
			return err
		}
	}

	return nil
}

// ListImages returns the image file names directly under dir, extension
// matched case-insensitively.
func ListImages(dir string) (ret []string, err error) {
	lst, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	ret = make([]string, 0, len(lst))
	for _, f := range lst {
		if f.IsDir() {
			continue
		}
		if imageExts[strings.ToLower(filepath.Ext(f.Name()))] {
			ret = append(ret, f.Name())
		}
	}

	return
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err = io.Copy(out, in); err != nil {
		return err
	}

	return out.Close()
}
