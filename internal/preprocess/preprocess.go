// Package preprocess produces the ordered set of image variants the OCR
// best-of pass runs against (C4): a scaled original, a contrast-enhanced
// grayscale, a denoised+sharpened grayscale, and a deskewed binary.
package preprocess

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

// Variant is one preprocessed rendering of the source image plus the name
// of the technique that produced it, useful for diagnostics.
type Variant struct {
	Name  string
	Image image.Image
}

// Options mirrors config.PreprocessConfig plus the long-edge cap the
// server config carries separately.
type Options struct {
	Denoise     bool
	Binarize    bool
	Sharpen     bool
	Superres    bool
	MaxLongEdge int // default 1500 if zero
}

const superresMinLongEdge = 800

// Variants returns the ordered sequence required by spec §4.4. Variants
// 2-4 are always produced; variant toggles only gate the optional
// pre-scale super-resolution step.
func Variants(src image.Image, opts Options) []Variant {
	maxLongEdge := opts.MaxLongEdge
	if maxLongEdge <= 0 {
		maxLongEdge = 1500
	}

	work := src
	if opts.Superres && longEdge(work) < superresMinLongEdge {
		work = cubicUpscale(work, 2.0)
		work = sharpenGray(toGray(work), 1.0)
	}

	scaled := scaleToLongEdge(work, maxLongEdge)
	clahe := claheGray(toGray(scaled), 8, 2.0)
	denoised := sharpenGray(denoise(toGray(scaled)), 1.2)
	binary := deskew(adaptiveThreshold(toGray(scaled)))

	return []Variant{
		{Name: "scaled_original", Image: scaled},
		{Name: "clahe_gray", Image: clahe},
		{Name: "denoised_sharpened", Image: denoised},
		{Name: "binary_deskewed", Image: binary},
	}
}

func longEdge(img image.Image) int {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w > h {
		return w
	}
	return h
}

// scaleToLongEdge scales img so its longer side equals maxLongEdge,
// preserving aspect ratio; never upscales.
func scaleToLongEdge(img image.Image, maxLongEdge int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	edge := w
	if h > edge {
		edge = h
	}
	if edge <= maxLongEdge {
		return img
	}
	if w >= h {
		return imaging.Resize(img, maxLongEdge, 0, imaging.CatmullRom)
	}
	return imaging.Resize(img, 0, maxLongEdge, imaging.CatmullRom)
}

// cubicUpscale enlarges img by factor using a Catmull-Rom resampling
// filter, imaging's bicubic-equivalent kernel.
func cubicUpscale(img image.Image, factor float64) image.Image {
	b := img.Bounds()
	nw := int(float64(b.Dx()) * factor)
	nh := int(float64(b.Dy()) * factor)
	return imaging.Resize(img, nw, nh, imaging.CatmullRom)
}

// toGray converts img to grayscale via imaging.Grayscale, then copies the
// result into a plain *image.Gray so the pixel-level algorithms below (none
// of which imaging provides) can address GrayAt/SetGray directly.
func toGray(img image.Image) *image.Gray {
	return toGrayImage(imaging.Grayscale(img))
}

// toGrayImage copies any image.Image into a fresh *image.Gray, converting
// through image.Gray.Set's built-in color-model conversion.
func toGrayImage(img image.Image) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.Set(x, y, img.At(x, y))
		}
	}
	return out
}

// sharpenGray applies imaging's Gaussian-based unsharp-mask sharpening.
func sharpenGray(g *image.Gray, sigma float64) *image.Gray {
	return toGrayImage(imaging.Sharpen(g, sigma))
}

// claheGray approximates contrast-limited adaptive histogram equalization:
// the image is divided into a tileGrid x tileGrid grid, each tile's
// histogram is equalized independently with per-bin counts capped at
// clipLimit times the tile's average bin count, and tile results are
// written back without inter-tile blending (a simplification of true CLAHE,
// adequate for the quantized-text contrast this pipeline needs). imaging
// only exposes a single global AdjustContrast transform, with no notion of
// per-tile local histograms, so this stays hand-rolled.
func claheGray(g *image.Gray, tileGrid int, clipLimit float64) *image.Gray {
	b := g.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewGray(b)
	tw := (w + tileGrid - 1) / tileGrid
	th := (h + tileGrid - 1) / tileGrid

	for ty := 0; ty < tileGrid; ty++ {
		for tx := 0; tx < tileGrid; tx++ {
			x0 := b.Min.X + tx*tw
			y0 := b.Min.Y + ty*th
			x1 := min(x0+tw, b.Max.X)
			y1 := min(y0+th, b.Max.Y)
			if x0 >= x1 || y0 >= y1 {
				continue
			}
			equalizeTileClipped(g, out, x0, y0, x1, y1, clipLimit)
		}
	}
	return out
}

func equalizeTileClipped(src, dst *image.Gray, x0, y0, x1, y1 int, clipLimit float64) {
	var hist [256]int
	n := 0
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			hist[src.GrayAt(x, y).Y]++
			n++
		}
	}
	if n == 0 {
		return
	}
	avg := float64(n) / 256.0
	clip := int(avg * clipLimit)
	if clip < 1 {
		clip = 1
	}

	excess := 0
	for i := range hist {
		if hist[i] > clip {
			excess += hist[i] - clip
			hist[i] = clip
		}
	}
	redistribute := excess / 256
	for i := range hist {
		hist[i] += redistribute
	}

	var cdf [256]int
	running := 0
	for i, v := range hist {
		running += v
		cdf[i] = running
	}
	total := cdf[255]
	if total == 0 {
		total = 1
	}

	var lut [256]uint8
	for i := range lut {
		lut[i] = uint8(math.Round(float64(cdf[i]) * 255.0 / float64(total)))
	}

	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			dst.SetGray(x, y, color.Gray{Y: lut[src.GrayAt(x, y).Y]})
		}
	}
}

// denoise applies a 3x3 median filter, a fast and effective impulse-noise
// reducer for phone-camera text captures. imaging's only smoothing
// primitive is a linear Gaussian Blur, which would soften text edges rather
// than rejecting outlier pixels the way a median (order-statistic) filter
// does, so this stays hand-rolled.
func denoise(g *image.Gray) *image.Gray {
	b := g.Bounds()
	out := image.NewGray(b)
	var window [9]uint8
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			i := 0
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					window[i] = g.GrayAt(clampInt(x+dx, b.Min.X, b.Max.X-1), clampInt(y+dy, b.Min.Y, b.Max.Y-1)).Y
					i++
				}
			}
			out.SetGray(x, y, color.Gray{Y: medianOf9(window)})
		}
	}
	return out
}

func medianOf9(w [9]uint8) uint8 {
	sorted := w
	for i := 1; i < len(sorted); i++ {
		v := sorted[i]
		j := i - 1
		for j >= 0 && sorted[j] > v {
			sorted[j+1] = sorted[j]
			j--
		}
		sorted[j+1] = v
	}
	return sorted[4]
}

// adaptiveThreshold binarizes g using a local-mean threshold (each pixel
// compared against the mean of a surrounding window minus a bias), which
// tolerates uneven lighting better than a single global threshold. imaging
// has no binarization/thresholding call at all, so this stays hand-rolled.
func adaptiveThreshold(g *image.Gray) *image.Gray {
	const window = 15
	const bias = 10
	r := window / 2
	b := g.Bounds()
	out := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			sum, n := 0, 0
			for dy := -r; dy <= r; dy++ {
				for dx := -r; dx <= r; dx++ {
					xx := clampInt(x+dx, b.Min.X, b.Max.X-1)
					yy := clampInt(y+dy, b.Min.Y, b.Max.Y-1)
					sum += int(g.GrayAt(xx, yy).Y)
					n++
				}
			}
			mean := sum / n
			v := g.GrayAt(x, y).Y
			if int(v) < mean-bias {
				out.SetGray(x, y, color.Gray{Y: 0})
			} else {
				out.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return out
}

// deskew estimates the dominant text-line rotation via a coarse angle
// sweep maximizing row-projection variance and rotates the binary image
// to correct it. Returns g unchanged if no improving angle is found.
// imaging.Rotate performs the actual rotation; the angle-search heuristic
// itself has no library equivalent and stays hand-rolled.
func deskew(g *image.Gray) *image.Gray {
	bestAngle := 0.0
	bestScore := rowProjectionVariance(g)
	for _, angle := range []float64{-3, -2, -1, 1, 2, 3} {
		rotated := rotateGray(g, angle)
		if score := rowProjectionVariance(rotated); score > bestScore {
			bestScore = score
			bestAngle = angle
		}
	}
	if bestAngle == 0 {
		return g
	}
	return rotateGray(g, bestAngle)
}

func rowProjectionVariance(g *image.Gray) float64 {
	b := g.Bounds()
	rows := b.Dy()
	if rows == 0 {
		return 0
	}
	sums := make([]float64, rows)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		s := 0
		for x := b.Min.X; x < b.Max.X; x++ {
			if g.GrayAt(x, y).Y < 128 {
				s++
			}
		}
		sums[y-b.Min.Y] = float64(s)
	}
	mean := 0.0
	for _, s := range sums {
		mean += s
	}
	mean /= float64(rows)
	var variance float64
	for _, s := range sums {
		variance += (s - mean) * (s - mean)
	}
	return variance / float64(rows)
}

// rotateGray rotates g by degrees around its center, filling exposed
// corners with white, via imaging.Rotate.
func rotateGray(g *image.Gray, degrees float64) *image.Gray {
	return toGrayImage(imaging.Rotate(g, degrees, color.Gray{Y: 255}))
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
