package simhash

import (
	"hash/fnv"
	"image"
)

const (
	gridSize       = 16
	samplesPerCell = 6
)

// Image fingerprints a frame. The frame is divided into a 16x16 grid; each
// cell contributes a token of (position, quantized mean luminance).
// Identical frames always match; frames that differ only by compression
// noise usually do.
func Image(img image.Image) uint64 {
	b := img.Bounds()
	if b.Empty() {
		return 0
	}

	hashes := make([]uint64, 0, gridSize*gridSize)
	var buf [3]byte
	for gy := 0; gy < gridSize; gy++ {
		for gx := 0; gx < gridSize; gx++ {
			x0 := b.Min.X + gx*b.Dx()/gridSize
			x1 := b.Min.X + (gx+1)*b.Dx()/gridSize
			y0 := b.Min.Y + gy*b.Dy()/gridSize
			y1 := b.Min.Y + (gy+1)*b.Dy()/gridSize

			lum := cellLuminance(img, x0, y0, x1, y1)

			buf[0], buf[1], buf[2] = byte(gx), byte(gy), lum>>4
			h := fnv.New64a()
			h.Write(buf[:])
			hashes = append(hashes, h.Sum64())
		}
	}
	return fold(hashes)
}

// cellLuminance samples a cell on a small lattice and returns its mean
// luminance in 0-255.
func cellLuminance(img image.Image, x0, y0, x1, y1 int) uint8 {
	if x1 <= x0 {
		x1 = x0 + 1
	}
	if y1 <= y0 {
		y1 = y0 + 1
	}

	var sum, n uint64
	for sy := 0; sy < samplesPerCell; sy++ {
		y := y0 + sy*(y1-y0)/samplesPerCell
		for sx := 0; sx < samplesPerCell; sx++ {
			x := x0 + sx*(x1-x0)/samplesPerCell
			r, g, b, _ := img.At(x, y).RGBA()
			sum += (299*uint64(r) + 587*uint64(g) + 114*uint64(b)) / 1000
			n++
		}
	}
	return uint8((sum / n) >> 8)
}
