// Package record builds one training record per image: the encoded bytes,
// their SHA-256 content key, and index-aligned sequences describing every
// valid annotation.
package record

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"

	"github.com/model-collapse/coco-prep/internal/coco"
	"github.com/model-collapse/coco-prep/internal/mask"
)

// Record aggregates everything the training pipeline needs for one image.
// The per-object slices are parallel: entry i of each describes the same
// annotation, with skipped annotations absent from all of them.
type Record struct {
	Height    int    `json:"image/height"`
	Width     int    `json:"image/width"`
	Filename  string `json:"image/filename"`
	SourceID  string `json:"image/source_id"`
	KeySHA256 string `json:"image/key/sha256"`
	Encoded   []byte `json:"image/encoded"`
	Format    string `json:"image/format"`

	XMin          []float64 `json:"image/object/bbox/xmin"`
	XMax          []float64 `json:"image/object/bbox/xmax"`
	YMin          []float64 `json:"image/object/bbox/ymin"`
	YMax          []float64 `json:"image/object/bbox/ymax"`
	CategoryNames []string  `json:"image/object/class/text"`
	IsCrowd       []int     `json:"image/object/is_crowd"`
	Area          []float64 `json:"image/object/area"`
	Masks         [][]byte  `json:"image/object/mask,omitempty"`
}

// Builder turns (image, annotations) pairs into records.
type Builder struct {
	ImageDir     string
	Categories   map[int64]coco.Category
	IncludeMasks bool
	Log          zerolog.Logger
}

// Build reads the image file, hashes it and walks the annotation list in
// order. Boxes with non-positive extent or reaching past the image border
// are counted in skipped and left out of every sequence; any other problem
// aborts the whole image.
func (b *Builder) Build(img coco.ImageInfo, anns []*coco.Annotation) (key string, rec *Record, skipped int, err error) {
	path := filepath.Join(b.ImageDir, img.FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, 0, err
	}

	if err = b.checkDecodable(img, data); err != nil {
		return "", nil, 0, err
	}

	sum := sha256.Sum256(data)
	key = hex.EncodeToString(sum[:])

	rec = &Record{
		Height:    img.Height,
		Width:     img.Width,
		Filename:  img.FileName,
		SourceID:  strconv.FormatInt(img.ID, 10),
		KeySHA256: key,
		Encoded:   data,
		Format:    formatOf(img.FileName),
	}

	w := float64(img.Width)
	h := float64(img.Height)
	for _, ann := range anns {
		if len(ann.BBox) != 4 {
			return "", nil, 0, fmt.Errorf("annotation %d: bbox has %d elements", ann.ID, len(ann.BBox))
		}

		x, y, bw, bh := ann.BBox[0], ann.BBox[1], ann.BBox[2], ann.BBox[3]
		if bw <= 0 || bh <= 0 || x+bw > w || y+bh > h {
			skipped++
			b.Log.Debug().Int64("annotation", ann.ID).Floats64("bbox", ann.BBox).Msg("skipping degenerate bbox")
			continue
		}

		cat, ok := b.Categories[ann.CategoryID]
		if !ok {
			return "", nil, 0, fmt.Errorf("annotation %d: %w %d", ann.ID, coco.ErrUnknownCategory, ann.CategoryID)
		}

		rec.XMin = append(rec.XMin, x/w)
		rec.XMax = append(rec.XMax, (x+bw)/w)
		rec.YMin = append(rec.YMin, y/h)
		rec.YMax = append(rec.YMax, (y+bh)/h)
		rec.CategoryNames = append(rec.CategoryNames, cat.Name)
		rec.IsCrowd = append(rec.IsCrowd, ann.IsCrowd)
		rec.Area = append(rec.Area, ann.Area)

		if b.IncludeMasks {
			png, err := b.buildMask(img, ann)
			if err != nil {
				return "", nil, 0, fmt.Errorf("annotation %d: %w", ann.ID, err)
			}
			rec.Masks = append(rec.Masks, png)
		}
	}

	return
}

// buildMask decodes the segmentation into per-instance masks and, for
// non-crowd annotations, collapses the instances into a single mask by
// logical OR before PNG encoding.
func (b *Builder) buildMask(img coco.ImageInfo, ann *coco.Annotation) ([]byte, error) {
	instances, err := mask.Decode(ann.Segmentation, img.Height, img.Width)
	if err != nil {
		return nil, err
	}
	if len(instances) == 0 {
		return nil, fmt.Errorf("segmentation decoded to no instances")
	}

	m := instances[0]
	if ann.IsCrowd == 0 {
		m = mask.Merge(instances)
	}

	return mask.EncodePNG(m)
}

// checkDecodable rejects files that are not actually images and warns when
// the pixel dimensions disagree with the document.
func (b *Builder) checkDecodable(img coco.ImageInfo, data []byte) error {
	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return fmt.Errorf("decode %s: %w", img.FileName, err)
	}
	defer mat.Close()

	if mat.Empty() {
		return fmt.Errorf("decode %s: not a valid image", img.FileName)
	}

	if mat.Cols() != img.Width || mat.Rows() != img.Height {
		b.Log.Warn().Str("file", img.FileName).
			Int("doc_w", img.Width).Int("doc_h", img.Height).
			Int("px_w", mat.Cols()).Int("px_h", mat.Rows()).
			Msg("declared size differs from decoded pixels")
	}

	return nil
}

func formatOf(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png":
		return "png"
	default:
		return "jpeg"
	}
}
