// File: internal/executor/scale.go
package executor

import (
	"bytes"
	"image"
	"image/png"

	"golang.org/x/image/draw"
)

// resamplePNG re-encodes a PNG at the given dimensions. Catmull-Rom keeps
// small text legible enough for the model after downscaling.
func resamplePNG(data []byte, width, height int) ([]byte, error) {
	src, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
