package assets

import (
	"image"
	"image/png"
	"io"
	"io/fs"

	"github.com/cockroachdb/errors"
	"github.com/lunarengine/lunar/internal/render"
	"golang.org/x/image/draw"
)

// MaxTextureSize bounds the larger side of a loaded texture. Larger images
// are scaled down preserving their aspect ratio.
const MaxTextureSize = 4096

// LoadTexture decodes a PNG into tightly packed RGBA8 pixels.
func LoadTexture(r io.Reader) (render.TextureCreateInfo, error) {
	decoded, err := png.Decode(r)
	if err != nil {
		return render.TextureCreateInfo{}, errors.Wrap(err, "decode png")
	}

	rgba := toRGBA(decoded, MaxTextureSize)
	size := rgba.Bounds().Size()
	return render.TextureCreateInfo{
		Width:    size.X,
		Height:   size.Y,
		Channels: 4,
		Pixels:   rgba.Pix,
	}, nil
}

func LoadTextureFile(fsys fs.FS, name string) (render.TextureCreateInfo, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return render.TextureCreateInfo{}, err
	}
	defer f.Close()

	info, err := LoadTexture(f)
	if err != nil {
		return render.TextureCreateInfo{}, errors.Wrap(err, name)
	}
	return info, nil
}

// toRGBA converts src to a zero-origin RGBA image no larger than maxSize on
// either side. The result has no row padding.
func toRGBA(src image.Image, maxSize int) *image.RGBA {
	bounds := src.Bounds()
	width, height := fit(bounds.Dx(), bounds.Dy(), maxSize)

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	if width == bounds.Dx() && height == bounds.Dy() {
		draw.Draw(dst, dst.Bounds(), src, bounds.Min, draw.Src)
		return dst
	}

	log.Debugf("scaling texture from %dx%d to %dx%d", bounds.Dx(), bounds.Dy(), width, height)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Src, nil)
	return dst
}

func fit(width, height, maxSize int) (int, int) {
	if width <= maxSize && height <= maxSize {
		return width, height
	}
	if width >= height {
		return maxSize, max(1, height*maxSize/width)
	}
	return max(1, width*maxSize/height), maxSize
}
