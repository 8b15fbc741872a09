package storage

import (
	"bytes"
	"fmt"

	"github.com/disintegration/imaging"
)

const thumbnailWidth = 320

// makeThumbnail renders a JPEG no wider than thumbnailWidth.
func makeThumbnail(data []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("storage: decode image: %w", err)
	}
	if img.Bounds().Dx() > thumbnailWidth {
		img = imaging.Resize(img, thumbnailWidth, 0, imaging.Lanczos)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(80)); err != nil {
		return nil, fmt.Errorf("storage: encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
