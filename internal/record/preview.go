package record

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// RenderPreview writes an annotated copy of the record's image with its
// valid boxes and category names drawn on. Debugging aid for eyeballing a
// conversion before training on it.
func RenderPreview(rec *Record, dst string) error {
	mat, err := gocv.IMDecode(rec.Encoded, gocv.IMReadColor)
	if err != nil {
		return err
	}
	defer mat.Close()

	w := float64(mat.Cols())
	h := float64(mat.Rows())
	for i := range rec.XMin {
		bbox := image.Rect(
			int(rec.XMin[i]*w), int(rec.YMin[i]*h),
			int(rec.XMax[i]*w), int(rec.YMax[i]*h))
		gocv.Rectangle(&mat, bbox, color.RGBA{255, 255, 0, 0}, 1)
		gocv.PutText(&mat, rec.CategoryNames[i], bbox.Max, gocv.FontHersheyComplex, 0.5, color.RGBA{255, 0, 0, 255}, 1)
	}

	if ok := gocv.IMWrite(dst, mat); !ok {
		return fmt.Errorf("write preview %s failed", dst)
	}

	return nil
}
