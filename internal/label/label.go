// Package label converts pixel-space bounding boxes into normalized YOLO
// label lines. All geometry leaving this package is in [0,1], scaled by the
// source image dimensions.
package label

import (
	"errors"
	"fmt"
	"image"
	"math"
)

// ErrEmptyBox is returned when a box has no area left after clipping to the
// image bounds. Such boxes carry no trainable signal and are not emitted.
var ErrEmptyBox = errors.New("label: box has no area inside image bounds")

// Label is a single normalized object annotation: one line of a YOLO label
// file. The class id is carried through unchanged; this package never remaps
// classes.
type Label struct {
	Class   int
	XCenter float64
	YCenter float64
	Width   float64
	Height  float64
}

// Convert normalizes a pixel-space box against the given image dimensions.
// Boxes extending outside the image are clipped to it first; a box with zero
// remaining area yields ErrEmptyBox.
func Convert(class int, box image.Rectangle, imgW, imgH int) (Label, error) {
	if imgW <= 0 || imgH <= 0 {
		return Label{}, fmt.Errorf("label: invalid image dimensions %dx%d", imgW, imgH)
	}

	clipped := box.Canon().Intersect(image.Rect(0, 0, imgW, imgH))
	if clipped.Empty() {
		return Label{}, ErrEmptyBox
	}

	w := float64(imgW)
	h := float64(imgH)
	return Label{
		Class:   class,
		XCenter: float64(clipped.Min.X+clipped.Max.X) / 2 / w,
		YCenter: float64(clipped.Min.Y+clipped.Max.Y) / 2 / h,
		Width:   float64(clipped.Dx()) / w,
		Height:  float64(clipped.Dy()) / h,
	}, nil
}

// String renders the label as a YOLO label-file line.
func (l Label) String() string {
	return fmt.Sprintf("%d %.6f %.6f %.6f %.6f", l.Class, l.XCenter, l.YCenter, l.Width, l.Height)
}

// Parse reads a single label-file line back into a Label.
func Parse(line string) (Label, error) {
	var l Label
	n, err := fmt.Sscanf(line, "%d %f %f %f %f", &l.Class, &l.XCenter, &l.YCenter, &l.Width, &l.Height)
	if err != nil {
		return Label{}, fmt.Errorf("label: malformed line %q: %w", line, err)
	}
	if n != 5 {
		return Label{}, fmt.Errorf("label: malformed line %q: got %d fields, want 5", line, n)
	}
	return l, nil
}

// Denormalize maps the label back into pixel space for the given image
// dimensions, rounding to the nearest pixel.
func (l Label) Denormalize(imgW, imgH int) image.Rectangle {
	w := float64(imgW)
	h := float64(imgH)
	x1 := math.Round((l.XCenter - l.Width/2) * w)
	y1 := math.Round((l.YCenter - l.Height/2) * h)
	x2 := math.Round((l.XCenter + l.Width/2) * w)
	y2 := math.Round((l.YCenter + l.Height/2) * h)
	return image.Rect(int(x1), int(y1), int(x2), int(y2))
}
