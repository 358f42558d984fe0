package offset

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/cblas128"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/mat"
)

// ErrShapeMismatch means the two frames being registered have different
// dimensions.
var ErrShapeMismatch = errors.New("frames must have identical dimensions")

// DefaultUpsample gives subpixel precision to 1/100th of a pixel.
const DefaultUpsample = 100

// Register measures the pixel translation between two equally sized images
// by FFT phase cross-correlation. It returns the (dy, dx) shift to apply to
// d1 to align it with d0. With upsample > 1 the correlation peak is refined
// by a matrix-multiply DFT in a small neighbourhood, giving 1/upsample pixel
// precision without upsampling the full array.
func Register(d0, d1 []float64, width, height, upsample int) (dy, dx float64, err error) {
	if len(d0) != len(d1) {
		return 0, 0, ErrShapeMismatch
	}
	if len(d0) != width*height {
		return 0, 0, fmt.Errorf("data length %d does not match %dx%d", len(d0), width, height)
	}

	f0 := fft2(toComplex(d0), width, height)
	f1 := fft2(toComplex(d1), width, height)

	// cross-power spectrum
	r := make([]complex128, width*height)
	for i := range r {
		r[i] = f0[i] * cmplx.Conj(f1[i])
	}

	cc := ifft2(append([]complex128(nil), r...), width, height)

	best, bestMag := 0, 0.0
	for i, v := range cc {
		if m := cmplx.Abs(v); m > bestMag {
			bestMag, best = m, i
		}
	}
	dy = float64(wrapShift(best/width, height))
	dx = float64(wrapShift(best%width, width))

	if upsample <= 1 {
		return dy, dx, nil
	}

	// Refine around the coarse peak. The upsampled region spans
	// ~1.5 original pixels, centred on the integer estimate.
	usfac := float64(upsample)
	region := int(math.Ceil(1.5 * usfac))
	half := float64(region) / 2.0 / usfac

	rowStart := dy - half
	colStart := dx - half

	rowK := upsampleKernel(height, region, usfac, rowStart, false) // region x height
	colK := upsampleKernel(width, region, usfac, colStart, true)   // width x region

	rm := mat.NewCDense(height, width, r)
	tmp := mat.NewCDense(region, width, nil)
	up := mat.NewCDense(region, region, nil)
	cmul(tmp, rowK, rm) // region x width
	cmul(up, tmp, colK) // region x region

	br, bc, bestMag := 0, 0, 0.0
	for i := 0; i < region; i++ {
		for j := 0; j < region; j++ {
			if m := cmplx.Abs(up.At(i, j)); m > bestMag {
				bestMag, br, bc = m, i, j
			}
		}
	}

	dy = rowStart + float64(br)/usfac
	dx = colStart + float64(bc)/usfac
	return dy, dx, nil
}

// cmul stores the complex matrix product a*b in c, which must already have
// the product's dimensions.
func cmul(c, a, b *mat.CDense) {
	cblas128.Gemm(blas.NoTrans, blas.NoTrans, 1, a.RawCMatrix(), b.RawCMatrix(), 0, c.RawCMatrix())
}

// upsampleKernel builds the DFT kernel evaluating the inverse transform at
// fractional shifts start + i/usfac. With transpose it is shaped n x region
// for right-multiplication, otherwise region x n.
func upsampleKernel(n, region int, usfac, start float64, transpose bool) *mat.CDense {
	var k *mat.CDense
	if transpose {
		k = mat.NewCDense(n, region, nil)
	} else {
		k = mat.NewCDense(region, n, nil)
	}
	for i := 0; i < region; i++ {
		shift := start + float64(i)/usfac
		for j := 0; j < n; j++ {
			freq := signedFreq(j, n)
			v := cmplx.Exp(complex(0, 2*math.Pi*float64(freq)*shift/float64(n)))
			if transpose {
				k.Set(j, i, v)
			} else {
				k.Set(i, j, v)
			}
		}
	}
	return k
}

// signedFreq maps an FFT bin index to its signed frequency index.
func signedFreq(i, n int) int {
	if i > n/2 {
		return i - n
	}
	return i
}

// wrapShift maps a correlation peak index to a signed shift.
func wrapShift(i, n int) int {
	if i > n/2 {
		return i - n
	}
	return i
}

func toComplex(d []float64) []complex128 {
	out := make([]complex128, len(d))
	for i, v := range d {
		out[i] = complex(v, 0)
	}
	return out
}

// fft2 computes an in-place 2D DFT row-by-row then column-by-column.
func fft2(data []complex128, width, height int) []complex128 {
	rowFFT := fourier.NewCmplxFFT(width)
	for y := 0; y < height; y++ {
		row := data[y*width : (y+1)*width]
		copy(row, rowFFT.Coefficients(nil, row))
	}

	colFFT := fourier.NewCmplxFFT(height)
	col := make([]complex128, height)
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			col[y] = data[y*width+x]
		}
		out := colFFT.Coefficients(nil, col)
		for y := 0; y < height; y++ {
			data[y*width+x] = out[y]
		}
	}
	return data
}

// ifft2 is the unnormalized inverse of fft2; scale is irrelevant for peak
// finding.
func ifft2(data []complex128, width, height int) []complex128 {
	rowFFT := fourier.NewCmplxFFT(width)
	for y := 0; y < height; y++ {
		row := data[y*width : (y+1)*width]
		copy(row, rowFFT.Sequence(nil, row))
	}

	colFFT := fourier.NewCmplxFFT(height)
	col := make([]complex128, height)
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			col[y] = data[y*width+x]
		}
		out := colFFT.Sequence(nil, col)
		for y := 0; y < height; y++ {
			data[y*width+x] = out[y]
		}
	}
	return data
}
