package coco

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

var (
	// ErrFormat marks a document that is missing required top-level keys or
	// cannot be parsed at all.
	ErrFormat = errors.New("annotation document malformed")

	// ErrUnknownCategory marks an annotation whose category id is absent
	// from the document's category list.
	ErrUnknownCategory = errors.New("unknown category id")
)

// LoadDocument reads and parses a COCO annotation file. All three top-level
// lists must be present, even if empty.
func LoadDocument(path string) (ret *Document, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}

	var raw map[string]json.RawMessage
	if err = json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}

	ret = &Document{}
	for _, part := range []struct {
		key string
		dst interface{}
	}{
		{"images", &ret.Images},
		{"annotations", &ret.Annotations},
		{"categories", &ret.Categories},
	} {
		msg, ok := raw[part.key]
		if !ok {
			return nil, fmt.Errorf("%w: missing %q", ErrFormat, part.key)
		}
		if err = json.Unmarshal(msg, part.dst); err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrFormat, part.key, err)
		}
	}

	return
}

// BuildCategoryIndex maps category id to its metadata. The index is built
// once per run and read-only afterwards.
func BuildCategoryIndex(cats []Category) (ret map[int64]Category) {
	ret = make(map[int64]Category, len(cats))
	for _, c := range cats {
		ret[c.ID] = c
	}

	return
}

// BuildAnnotationIndex groups the document's annotations by image id. Every
// image listed in the document gets an entry, empty when nothing references
// it; missing is how many images ended up with an empty list.
func BuildAnnotationIndex(doc *Document) (ret map[int64][]*Annotation, missing int) {
	ret = make(map[int64][]*Annotation, len(doc.Images))
	for _, ann := range doc.Annotations {
		ret[ann.ImageID] = append(ret[ann.ImageID], ann)
	}

	for _, img := range doc.Images {
		if _, ok := ret[img.ID]; !ok {
			missing++
			ret[img.ID] = nil
		}
	}

	return
}
