package imagecache

import (
	"bytes"
	"image"
	"image/draw"

	_ "image/jpeg"
	_ "image/png"

	xdraw "golang.org/x/image/draw"
)

// Image is a decoded, display-ready card image owned by the cache's
// memory tier. Pixels are immutable once published; consumers must not
// modify them.
//
// Generation tags the image with the platform graphics context generation
// that was current when it was decoded. A render backend that uploads
// Pixels to a GPU texture compares this against its own generation after
// a sleep/resume cycle and re-resolves instead of using a stale handle.
type Image struct {
	Key        Key
	Pixels     *image.NRGBA
	Generation uint64
}

// Width returns the pixel width of the decoded image.
func (img *Image) Width() int { return img.Pixels.Bounds().Dx() }

// Height returns the pixel height of the decoded image.
func (img *Image) Height() int { return img.Pixels.Bounds().Dy() }

// decodeImage turns raw fetched bytes into an NRGBA bitmap, downscaling
// to targetWidth when the source is wider. Upscaling is never done; a
// small source stays small.
func decodeImage(data []byte, targetWidth int) (*image.NRGBA, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	srcBounds := src.Bounds()
	if targetWidth <= 0 || srcBounds.Dx() <= targetWidth {
		dst := image.NewNRGBA(image.Rect(0, 0, srcBounds.Dx(), srcBounds.Dy()))
		draw.Draw(dst, dst.Bounds(), src, srcBounds.Min, draw.Src)
		return dst, nil
	}

	// Preserve aspect ratio while scaling down to the variant width.
	targetHeight := srcBounds.Dy() * targetWidth / srcBounds.Dx()
	if targetHeight < 1 {
		targetHeight = 1
	}
	dst := image.NewNRGBA(image.Rect(0, 0, targetWidth, targetHeight))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, srcBounds, xdraw.Src, nil)
	return dst, nil
}
