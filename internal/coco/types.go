package coco

import (
	"encoding/json"
	"fmt"
)

// ImageInfo describes one source image of the dataset.
type ImageInfo struct {
	ID       int64  `json:"id"`
	FileName string `json:"file_name"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

// Annotation is one labeled object on one image. BBox is
// [x, y, width, height] in pixels with a top-left origin.
type Annotation struct {
	ID           int64         `json:"id"`
	ImageID      int64         `json:"image_id"`
	CategoryID   int64         `json:"category_id"`
	BBox         []float64     `json:"bbox"`
	IsCrowd      int           `json:"iscrowd"`
	Area         float64       `json:"area"`
	Segmentation *Segmentation `json:"segmentation"`
}

type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Document is the top level of a COCO annotation file.
type Document struct {
	Images      []ImageInfo   `json:"images"`
	Annotations []*Annotation `json:"annotations"`
	Categories  []Category    `json:"categories"`
}

// RLE is a run-length-encoded binary mask. Counts holds uncompressed runs;
// CompressedCounts holds the COCO string encoding. Exactly one of the two is
// set. Runs are in column-major order and start with a run of zeros.
type RLE struct {
	Counts           []uint32
	CompressedCounts string
	Size             [2]int // rows, cols
}

// Segmentation is the polymorphic "segmentation" value: either a list of
// polygons (each a flat [x0,y0,x1,y1,...] ring) or an RLE object.
type Segmentation struct {
	Polygons [][]float64
	RLE      *RLE
}

func (s *Segmentation) UnmarshalJSON(data []byte) error {
	for _, c := range data {
		switch c {
		case ' ', '\t', '\n', '\r':
			continue
		case '[':
			return json.Unmarshal(data, &s.Polygons)
		case '{':
			return s.unmarshalRLE(data)
		default:
			return fmt.Errorf("segmentation is neither polygon list nor RLE object")
		}
	}
	return fmt.Errorf("segmentation value is empty")
}

func (s *Segmentation) unmarshalRLE(data []byte) error {
	var raw struct {
		Counts json.RawMessage `json:"counts"`
		Size   [2]int          `json:"size"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	rle := &RLE{Size: raw.Size}
	if len(raw.Counts) > 0 && raw.Counts[0] == '"' {
		if err := json.Unmarshal(raw.Counts, &rle.CompressedCounts); err != nil {
			return err
		}
	} else if err := json.Unmarshal(raw.Counts, &rle.Counts); err != nil {
		return err
	}

	s.RLE = rle
	return nil
}
