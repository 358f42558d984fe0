package frame

import (
	"fmt"
	"os"
	"strings"

	"github.com/astrogo/fitsio"
)

// Frame holds the pixel data of a single FITS image in row-major float64
// form, plus its header cards. All downstream math (registration, stats)
// works on float64 regardless of the on-disk BITPIX.
type Frame struct {
	Path   string
	Width  int
	Height int
	Data   []float64
	Header map[string]interface{}
}

// Load reads the primary HDU of a FITS file.
func Load(path string) (*Frame, error) {
	r, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer r.Close()

	f, err := fitsio.Open(r)
	if err != nil {
		return nil, fmt.Errorf("parse FITS %s: %w", path, err)
	}
	defer f.Close()

	hdu := f.HDU(0)
	img, ok := hdu.(fitsio.Image)
	if !ok {
		return nil, fmt.Errorf("%s: primary HDU is not an image", path)
	}

	hdr := img.Header()
	axes := hdr.Axes()
	if len(axes) < 2 {
		return nil, fmt.Errorf("%s: expected 2D image, got %d axes", path, len(axes))
	}
	width, height := axes[0], axes[1]

	data, err := readPixels(img, hdr.Bitpix(), width*height)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return &Frame{
		Path:   path,
		Width:  width,
		Height: height,
		Data:   data,
		Header: headerMap(hdr),
	}, nil
}

// LoadHeader reads only the primary header of a FITS file, with keys
// lowercased and HISTORY/COMMENT cards dropped.
func LoadHeader(path string) (map[string]interface{}, error) {
	r, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer r.Close()

	f, err := fitsio.Open(r)
	if err != nil {
		return nil, fmt.Errorf("parse FITS %s: %w", path, err)
	}
	defer f.Close()

	return headerMap(f.HDU(0).Header()), nil
}

// headerMap flattens a FITS header into a lowercase-keyed map. HISTORY and
// COMMENT cards carry solver chatter, not metadata, and are discarded.
func headerMap(hdr *fitsio.Header) map[string]interface{} {
	out := make(map[string]interface{}, len(hdr.Keys()))
	for _, key := range hdr.Keys() {
		lk := strings.ToLower(key)
		if lk == "history" || lk == "comment" || lk == "" {
			continue
		}
		if card := hdr.Get(key); card != nil {
			out[lk] = card.Value
		}
	}
	return out
}

func readPixels(img fitsio.Image, bitpix, n int) ([]float64, error) {
	out := make([]float64, n)
	switch bitpix {
	case 8:
		raw := make([]int8, n)
		if err := img.Read(&raw); err != nil {
			return nil, fmt.Errorf("read pixels: %w", err)
		}
		for i, v := range raw {
			out[i] = float64(v)
		}
	case 16:
		raw := make([]int16, n)
		if err := img.Read(&raw); err != nil {
			return nil, fmt.Errorf("read pixels: %w", err)
		}
		for i, v := range raw {
			out[i] = float64(v)
		}
	case 32:
		raw := make([]int32, n)
		if err := img.Read(&raw); err != nil {
			return nil, fmt.Errorf("read pixels: %w", err)
		}
		for i, v := range raw {
			out[i] = float64(v)
		}
	case 64:
		raw := make([]int64, n)
		if err := img.Read(&raw); err != nil {
			return nil, fmt.Errorf("read pixels: %w", err)
		}
		for i, v := range raw {
			out[i] = float64(v)
		}
	case -32:
		raw := make([]float32, n)
		if err := img.Read(&raw); err != nil {
			return nil, fmt.Errorf("read pixels: %w", err)
		}
		for i, v := range raw {
			out[i] = float64(v)
		}
	case -64:
		if err := img.Read(&out); err != nil {
			return nil, fmt.Errorf("read pixels: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported BITPIX %d", bitpix)
	}
	return out, nil
}

// At returns the pixel at column x, row y.
func (f *Frame) At(x, y int) float64 {
	return f.Data[y*f.Width+x]
}
