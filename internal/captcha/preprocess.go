package captcha

import (
	"image"
	"image/color"
	"sort"

	xdraw "golang.org/x/image/draw"
)

// ScaleFactor is the integer upscale applied before OCR. The portal renders
// the expression in roughly 12px glyphs, which Tesseract cannot read
// reliably without enlargement.
const ScaleFactor = 4

// Preprocess converts img to a binarized, upscaled grayscale variant. The
// source image is never modified.
//
// Pipeline: luminance conversion; optional median filter against the dot
// noise; ScaleFactor upscale with Catmull-Rom resampling; binarization at
// threshold; optional dilate-then-erode pass to drop residual speckles
// without breaking strokes.
func Preprocess(img image.Image, threshold uint8, aggressive bool) *image.Gray {
	gray := toGray(img)

	if aggressive {
		gray = medianFilter(gray, 1)
	}

	gray = upscale(gray, ScaleFactor)
	gray = binarize(gray, threshold)

	if aggressive {
		gray = dilate(gray, 1)
		gray = erode(gray, 1)
	}
	return gray
}

// DarkMask isolates likely glyph pixels from the colored dot background: a
// pixel is kept (black) only when all of its channels are dark. The colored
// noise dots are saturated, so at least one of their channels is bright.
func DarkMask(img image.Image, limit uint8) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			r8, g8, b8 := uint8(r>>8), uint8(g>>8), uint8(bl>>8)
			if r8 < limit && g8 < limit && b8 < limit {
				out.SetGray(x-b.Min.X, y-b.Min.Y, color.Gray{Y: 0})
			} else {
				out.SetGray(x-b.Min.X, y-b.Min.Y, color.Gray{Y: 255})
			}
		}
	}
	return out
}

// Invert returns the luminance-inverted copy of img.
func Invert(img image.Image) *image.Gray {
	gray := toGray(img)
	out := image.NewGray(gray.Bounds())
	for i, v := range gray.Pix {
		out.Pix[i] = 255 - v
	}
	return out
}

func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		out := image.NewGray(g.Bounds())
		copy(out.Pix, g.Pix)
		return out
	}
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.Set(x-b.Min.X, y-b.Min.Y, color.GrayModel.Convert(img.At(x, y)))
		}
	}
	return out
}

func upscale(src *image.Gray, factor int) *image.Gray {
	b := src.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx()*factor, b.Dy()*factor))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, b, xdraw.Src, nil)
	return dst
}

func binarize(src *image.Gray, threshold uint8) *image.Gray {
	out := image.NewGray(src.Bounds())
	for i, v := range src.Pix {
		if v > threshold {
			out.Pix[i] = 255
		} else {
			out.Pix[i] = 0
		}
	}
	return out
}

// medianFilter replaces each pixel with the median of its (2r+1)² window,
// suppressing isolated noise speckles before binarization.
func medianFilter(src *image.Gray, radius int) *image.Gray {
	b := src.Bounds()
	out := image.NewGray(b)
	side := 2*radius + 1
	window := make([]uint8, 0, side*side)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			window = window[:0]
			for dy := -radius; dy <= radius; dy++ {
				for dx := -radius; dx <= radius; dx++ {
					nx, ny := x+dx, y+dy
					if nx < b.Min.X || nx >= b.Max.X || ny < b.Min.Y || ny >= b.Max.Y {
						continue
					}
					window = append(window, src.GrayAt(nx, ny).Y)
				}
			}
			sort.Slice(window, func(i, j int) bool { return window[i] < window[j] })
			out.SetGray(x, y, color.Gray{Y: window[len(window)/2]})
		}
	}
	return out
}

// dilate is a max filter: each pixel becomes the brightest value in its
// neighborhood, eating away small black dots.
func dilate(src *image.Gray, radius int) *image.Gray {
	return rankFilter(src, radius, func(best, v uint8) bool { return v > best })
}

// erode is the matching min filter, restoring stroke thickness after dilate.
func erode(src *image.Gray, radius int) *image.Gray {
	return rankFilter(src, radius, func(best, v uint8) bool { return v < best })
}

func rankFilter(src *image.Gray, radius int, better func(best, v uint8) bool) *image.Gray {
	b := src.Bounds()
	out := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			best := src.GrayAt(x, y).Y
			for dy := -radius; dy <= radius; dy++ {
				for dx := -radius; dx <= radius; dx++ {
					nx, ny := x+dx, y+dy
					if nx < b.Min.X || nx >= b.Max.X || ny < b.Min.Y || ny >= b.Max.Y {
						continue
					}
					if v := src.GrayAt(nx, ny).Y; better(best, v) {
						best = v
					}
				}
			}
			out.SetGray(x, y, color.Gray{Y: best})
		}
	}
	return out
}
