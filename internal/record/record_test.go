package record

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/model-collapse/coco-prep/internal/coco"
)

func writeJPEG(t *testing.T, dir, name string, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(i)
	}

	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), buf.Bytes(), 0o644))
	return buf.Bytes()
}

func testBuilder(dir string, includeMasks bool) *Builder {
	return &Builder{
		ImageDir: dir,
		Categories: map[int64]coco.Category{
			1: {ID: 1, Name: "bottle"},
			2: {ID: 2, Name: "can"},
		},
		IncludeMasks: includeMasks,
		Log:          zerolog.Nop(),
	}
}

func TestBuildNormalizesBoxes(t *testing.T) {
	dir := t.TempDir()
	encoded := writeJPEG(t, dir, "img.jpg", 100, 100)

	img := coco.ImageInfo{ID: 42, FileName: "img.jpg", Width: 100, Height: 100}
	anns := []*coco.Annotation{
		{ID: 1, ImageID: 42, CategoryID: 1, BBox: []float64{10, 20, 30, 40}, Area: 1200},
	}

	key, rec, skipped, err := testBuilder(dir, false).Build(img, anns)
	require.NoError(t, err)
	assert.Zero(t, skipped)

	sum := sha256.Sum256(encoded)
	assert.Equal(t, hex.EncodeToString(sum[:]), key)
	assert.Equal(t, key, rec.KeySHA256)
	assert.Equal(t, encoded, rec.Encoded)
	assert.Equal(t, "42", rec.SourceID)
	assert.Equal(t, "jpeg", rec.Format)
	assert.Equal(t, 100, rec.Width)
	assert.Equal(t, 100, rec.Height)

	require.Len(t, rec.XMin, 1)
	assert.InDelta(t, 0.10, rec.XMin[0], 1e-9)
	assert.InDelta(t, 0.20, rec.YMin[0], 1e-9)
	assert.InDelta(t, 0.40, rec.XMax[0], 1e-9)
	assert.InDelta(t, 0.60, rec.YMax[0], 1e-9)
	assert.Equal(t, []string{"bottle"}, rec.CategoryNames)
	assert.Equal(t, []float64{1200}, rec.Area)
	assert.Equal(t, []int{0}, rec.IsCrowd)
	assert.Nil(t, rec.Masks)
}

func TestBuildSkipsDegenerateBoxes(t *testing.T) {
	dir := t.TempDir()
	writeJPEG(t, dir, "img.jpg", 100, 80)

	img := coco.ImageInfo{ID: 1, FileName: "img.jpg", Width: 100, Height: 80}
	anns := []*coco.Annotation{
		{ID: 1, CategoryID: 1, BBox: []float64{0, 0, 0, 10}},    // zero width
		{ID: 2, CategoryID: 1, BBox: []float64{0, 0, 10, -1}},   // negative height
		{ID: 3, CategoryID: 2, BBox: []float64{10, 10, 20, 20}}, // valid
		{ID: 4, CategoryID: 1, BBox: []float64{95, 0, 10, 10}},  // x+w past border
		{ID: 5, CategoryID: 1, BBox: []float64{0, 75, 10, 10}},  // y+h past border
		{ID: 6, CategoryID: 1, BBox: []float64{90, 70, 10, 10}}, // exactly at border, valid
	}

	_, rec, skipped, err := testBuilder(dir, false).Build(img, anns)
	require.NoError(t, err)
	assert.Equal(t, 4, skipped)

	// skips must not desync the parallel sequences
	require.Len(t, rec.XMin, 2)
	assert.Len(t, rec.XMax, 2)
	assert.Len(t, rec.YMin, 2)
	assert.Len(t, rec.YMax, 2)
	assert.Equal(t, []string{"can", "bottle"}, rec.CategoryNames)
	assert.Len(t, rec.IsCrowd, 2)
	assert.Len(t, rec.Area, 2)

	assert.InDelta(t, 1.0, rec.XMax[1], 1e-9)
	assert.InDelta(t, 1.0, rec.YMax[1], 1e-9)
}

func TestBuildUnknownCategory(t *testing.T) {
	dir := t.TempDir()
	writeJPEG(t, dir, "img.jpg", 50, 50)

	img := coco.ImageInfo{ID: 1, FileName: "img.jpg", Width: 50, Height: 50}
	anns := []*coco.Annotation{{ID: 1, CategoryID: 99, BBox: []float64{1, 1, 5, 5}}}

	_, _, _, err := testBuilder(dir, false).Build(img, anns)
	assert.ErrorIs(t, err, coco.ErrUnknownCategory)
}

func TestBuildMissingImage(t *testing.T) {
	img := coco.ImageInfo{ID: 1, FileName: "nope.jpg", Width: 50, Height: 50}
	_, _, _, err := testBuilder(t.TempDir(), false).Build(img, nil)
	assert.Error(t, err)
}

func TestBuildNotAnImage(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "img.jpg"), []byte("plain text"), 0o644))

	img := coco.ImageInfo{ID: 1, FileName: "img.jpg", Width: 50, Height: 50}
	_, _, _, err := testBuilder(dir, false).Build(img, nil)
	assert.Error(t, err)
}

func TestBuildMasksCollapseInstances(t *testing.T) {
	dir := t.TempDir()
	writeJPEG(t, dir, "img.jpg", 20, 20)

	img := coco.ImageInfo{ID: 1, FileName: "img.jpg", Width: 20, Height: 20}
	anns := []*coco.Annotation{{
		ID: 1, CategoryID: 1, BBox: []float64{0, 0, 20, 20}, IsCrowd: 0,
		Segmentation: &coco.Segmentation{Polygons: [][]float64{
			{1, 1, 6, 1, 6, 6, 1, 6},
			{12, 12, 18, 12, 18, 18, 12, 18},
		}},
	}}

	_, rec, _, err := testBuilder(dir, true).Build(img, anns)
	require.NoError(t, err)
	require.Len(t, rec.Masks, 1)

	decoded, err := png.Decode(bytes.NewReader(rec.Masks[0]))
	require.NoError(t, err)
	gray, ok := decoded.(*image.Gray)
	require.True(t, ok)

	// OR across both instances: a pixel from each region is set
	assert.EqualValues(t, 1, gray.Pix[3*gray.Stride+3])
	assert.EqualValues(t, 1, gray.Pix[15*gray.Stride+15])
	assert.EqualValues(t, 0, gray.Pix[10*gray.Stride+10])
}

func TestBuildMasksCrowdRLE(t *testing.T) {
	dir := t.TempDir()
	writeJPEG(t, dir, "img.jpg", 4, 4)

	img := coco.ImageInfo{ID: 1, FileName: "img.jpg", Width: 4, Height: 4}
	anns := []*coco.Annotation{{
		ID: 1, CategoryID: 1, BBox: []float64{0, 0, 4, 4}, IsCrowd: 1, Area: 8,
		Segmentation: &coco.Segmentation{RLE: &coco.RLE{Counts: []uint32{8, 8}, Size: [2]int{4, 4}}},
	}}

	_, rec, _, err := testBuilder(dir, true).Build(img, anns)
	require.NoError(t, err)
	require.Len(t, rec.Masks, 1)
	assert.Equal(t, []int{1}, rec.IsCrowd)
}

func TestBuildMissingSegmentation(t *testing.T) {
	dir := t.TempDir()
	writeJPEG(t, dir, "img.jpg", 10, 10)

	img := coco.ImageInfo{ID: 1, FileName: "img.jpg", Width: 10, Height: 10}
	anns := []*coco.Annotation{{ID: 1, CategoryID: 1, BBox: []float64{1, 1, 5, 5}}}

	_, _, _, err := testBuilder(dir, true).Build(img, anns)
	assert.Error(t, err)
}
