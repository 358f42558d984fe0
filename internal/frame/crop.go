package frame

// DefaultCropSize is the side length registration works on. Cropping to the
// frame centre keeps the FFTs cheap and avoids edge vignetting.
const DefaultCropSize = 500

// CenterCrop returns a new Frame containing the central size x size region.
// If the frame is already no larger than size in both dimensions it is
// returned unchanged.
func (f *Frame) CenterCrop(size int) *Frame {
	if size <= 0 {
		size = DefaultCropSize
	}
	if f.Width <= size && f.Height <= size {
		return f
	}

	w, h := size, size
	if w > f.Width {
		w = f.Width
	}
	if h > f.Height {
		h = f.Height
	}

	x0 := (f.Width - w) / 2
	y0 := (f.Height - h) / 2

	data := make([]float64, w*h)
	for y := 0; y < h; y++ {
		src := (y0+y)*f.Width + x0
		copy(data[y*w:(y+1)*w], f.Data[src:src+w])
	}

	return &Frame{
		Path:   f.Path,
		Width:  w,
		Height: h,
		Data:   data,
		Header: f.Header,
	}
}
