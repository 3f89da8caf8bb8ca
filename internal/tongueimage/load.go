// Package tongueimage turns a photo file into the PNG sent for tongue
// analysis. Large photos are downscaled so the analysis server receives a
// bounded payload.
package tongueimage

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/mrsinham/selfdiag/internal/diagnosis"
)

// Defaults used when Options leaves a field zero.
const (
	DefaultMaxDimension  = 1024
	DefaultMaxUploadSize = 10 * humanize.MiByte
)

var (
	ErrEmpty       = errors.New("image file is empty")
	ErrTooLarge    = errors.New("image file is too large")
	ErrUnsupported = errors.New("unsupported image format")
)

// Options bounds the accepted input and the produced image.
type Options struct {
	// MaxDimension caps the longest side of the output, in pixels.
	MaxDimension int
	// MaxUploadSize caps both the input file and the encoded output, in bytes.
	MaxUploadSize int64
}

func (o Options) withDefaults() Options {
	if o.MaxDimension <= 0 {
		o.MaxDimension = DefaultMaxDimension
	}
	if o.MaxUploadSize <= 0 {
		o.MaxUploadSize = DefaultMaxUploadSize
	}
	return o
}

// Result is a normalized image ready for upload.
type Result struct {
	Image        *diagnosis.PendingImage
	Format       string
	OriginalSize int64
	Original     image.Point
	Size         image.Point
}

// Summary describes the result for display, e.g. "tongue.png 640×480 (1.2 MB → 310 kB)".
func (r Result) Summary() string {
	return fmt.Sprintf("%s %d×%d (%s → %s)",
		r.Image.Filename, r.Size.X, r.Size.Y,
		humanize.Bytes(uint64(r.OriginalSize)), humanize.Bytes(uint64(len(r.Image.Data))))
}

// Load reads path and normalizes it.
func Load(path string, opts Options) (Result, error) {
	opts = opts.withDefaults()

	info, err := os.Stat(path)
	if err != nil {
		return Result{}, fmt.Errorf("stat image: %w", err)
	}
	if info.IsDir() {
		return Result{}, fmt.Errorf("%s is a directory", path)
	}
	if info.Size() > opts.MaxUploadSize {
		return Result{}, fmt.Errorf("%w: %s exceeds %s", ErrTooLarge,
			humanize.Bytes(uint64(info.Size())), humanize.Bytes(uint64(opts.MaxUploadSize)))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("read image: %w", err)
	}
	return FromBytes(filepath.Base(path), data, opts)
}

// FromBytes decodes data, downscales it and re-encodes it as PNG. DICOM
// input is recognised by its preamble.
func FromBytes(name string, data []byte, opts Options) (Result, error) {
	opts = opts.withDefaults()

	if len(data) == 0 {
		return Result{}, ErrEmpty
	}
	if int64(len(data)) > opts.MaxUploadSize {
		return Result{}, fmt.Errorf("%w: %s exceeds %s", ErrTooLarge,
			humanize.Bytes(uint64(len(data))), humanize.Bytes(uint64(opts.MaxUploadSize)))
	}

	var (
		img    image.Image
		format string
		err    error
	)
	if IsDICOM(data) {
		img, err = decodeDICOM(data)
		format = "dicom"
	} else {
		img, format, err = image.Decode(bytes.NewReader(data))
		if err != nil {
			err = fmt.Errorf("%w: %v", ErrUnsupported, err)
		}
	}
	if err != nil {
		return Result{}, err
	}

	original := img.Bounds().Size()
	img = Downscale(img, opts.MaxDimension)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return Result{}, fmt.Errorf("encode png: %w", err)
	}
	if int64(buf.Len()) > opts.MaxUploadSize {
		return Result{}, fmt.Errorf("%w: encoded image is %s", ErrTooLarge, humanize.Bytes(uint64(buf.Len())))
	}

	return Result{
		Image: &diagnosis.PendingImage{
			Data:        buf.Bytes(),
			Filename:    pngName(name),
			ContentType: "image/png",
			Type:        diagnosis.ImageTypeTongue,
		},
		Format:       format,
		OriginalSize: int64(len(data)),
		Original:     original,
		Size:         img.Bounds().Size(),
	}, nil
}

// Downscale shrinks img so its longest side is at most maxDim, keeping the
// aspect ratio. Smaller images are returned unchanged.
func Downscale(img image.Image, maxDim int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxDim <= 0 || (w <= maxDim && h <= maxDim) {
		return img
	}

	nw, nh := maxDim, maxDim
	if w >= h {
		nh = max(1, h*maxDim/w)
	} else {
		nw = max(1, w*maxDim/h)
	}

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

func pngName(name string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	if base == "" {
		base = "tongue"
	}
	return base + ".png"
}
