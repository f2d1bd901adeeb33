// Package mask turns COCO segmentation payloads (polygons or RLE) into
// dense binary masks and re-encodes them as lossless PNG.
package mask

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"github.com/llgcode/draw2d/draw2dimg"

	"github.com/model-collapse/coco-prep/internal/coco"
)

// Decode expands a segmentation into one binary mask per instance, each
// sized h x w with pixel values 0 or 1. Every polygon ring is its own
// instance; an RLE payload is a single instance.
func Decode(seg *coco.Segmentation, h, w int) (ret []*image.Gray, err error) {
	if seg == nil {
		return nil, fmt.Errorf("annotation has no segmentation")
	}

	if seg.RLE != nil {
		m, err := decodeRLE(seg.RLE, h, w)
		if err != nil {
			return nil, err
		}
		return []*image.Gray{m}, nil
	}

	ret = make([]*image.Gray, 0, len(seg.Polygons))
	for i, poly := range seg.Polygons {
		m, err := rasterizePolygon(poly, h, w)
		if err != nil {
			return nil, fmt.Errorf("polygon %d: %w", i, err)
		}
		ret = append(ret, m)
	}

	return
}

// Merge collapses per-instance masks into one by element-wise maximum,
// i.e. a logical OR over 0/1 pixels.
func Merge(masks []*image.Gray) *image.Gray {
	if len(masks) == 1 {
		return masks[0]
	}

	out := image.NewGray(masks[0].Bounds())
	for _, m := range masks {
		for i, v := range m.Pix {
			if v > out.Pix[i] {
				out.Pix[i] = v
			}
		}
	}

	return out
}

// EncodePNG serializes a mask losslessly.
func EncodePNG(m *image.Gray) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, m); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func rasterizePolygon(poly []float64, h, w int) (*image.Gray, error) {
	if len(poly) < 6 || len(poly)%2 != 0 {
		return nil, fmt.Errorf("ring has %d coordinates", len(poly))
	}

	canvas := image.NewRGBA(image.Rect(0, 0, w, h))
	gc := draw2dimg.NewGraphicContext(canvas)
	gc.SetFillColor(color.RGBA{255, 255, 255, 255})
	gc.SetStrokeColor(color.RGBA{255, 255, 255, 255})
	gc.SetLineWidth(1)

	gc.MoveTo(poly[len(poly)-2], poly[len(poly)-1])
	for i := 0; i < len(poly); i += 2 {
		gc.LineTo(poly[i], poly[i+1])
	}
	gc.Close()
	gc.FillStroke()

	m := image.NewGray(image.Rect(0, 0, w, h))
	for i := 0; i < len(m.Pix); i++ {
		if canvas.Pix[i*4+3] > 0 {
			m.Pix[i] = 1
		}
	}

	return m, nil
}

// decodeRLE expands COCO run-length counts. Runs are column-major and the
// first run is always zeros.
func decodeRLE(rle *coco.RLE, h, w int) (*image.Gray, error) {
	if rle.Size[0] != h || rle.Size[1] != w {
		return nil, fmt.Errorf("RLE size %dx%d does not match image %dx%d",
			rle.Size[0], rle.Size[1], h, w)
	}

	counts := rle.Counts
	if rle.CompressedCounts != "" {
		counts = expandCounts(rle.CompressedCounts)
	}

	m := image.NewGray(image.Rect(0, 0, w, h))
	pos := 0
	val := uint8(0)
	for _, run := range counts {
		for k := uint32(0); k < run; k++ {
			if pos >= h*w {
				return nil, fmt.Errorf("RLE runs exceed %d pixels", h*w)
			}
			// column-major pixel order
			y := pos % h
			x := pos / h
			m.Pix[y*m.Stride+x] = val
			pos++
		}
		val = 1 - val
	}
	if pos != h*w {
		return nil, fmt.Errorf("RLE runs cover %d of %d pixels", pos, h*w)
	}

	return m, nil
}

// expandCounts decodes the COCO string form of RLE counts: 5-bit groups in
// printable chars, LEB128-style continuation, with every count after the
// second stored as a delta against the count two places back.
func expandCounts(s string) (counts []uint32) {
	for p := 0; p < len(s); {
		x := int64(0)
		k := uint(0)
		more := true
		for more {
			c := int64(s[p]) - 48
			x |= (c & 0x1f) << (5 * k)
			more = c&0x20 != 0
			p++
			k++
			if !more && c&0x10 != 0 {
				x |= -1 << (5 * k)
			}
		}
		if len(counts) > 2 {
			x += int64(counts[len(counts)-2])
		}
		counts = append(counts, uint32(x))
	}

	return
}
