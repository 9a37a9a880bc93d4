// Package captcha renders CAPTCHA puzzles as Minecraft map-item images:
// a short alphanumeric code drawn into a 128x128 canvas, quantized down
// to the four greyscale values a vanilla map item can display.
package captcha

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg" // format registration for LoadBackground
	_ "image/png"
	"math"
	"math/rand"
	"os"
)

const (
	canvasSize  = 128
	glyphWidth  = 5
	glyphHeight = 7
	glyphScale  = 3
	noisePixels = 100
	noiseLines  = 5
)

// Artifact is one rendered puzzle, ready to be handed to a session.
type Artifact struct {
	Answer      string
	PaletteData []byte // canvasSize*canvasSize bytes of Minecraft map colors
}

// Generator synthesizes CAPTCHA codes and renders them to map images.
type Generator struct {
	Alphabet   string
	CodeLength int
	Background *image.Gray // optional, scaled to canvasSize; nil means solid fill

	rng *rand.Rand
}

// NewGenerator builds a Generator. An empty alphabet/zero length falls
// back to the defaults spec.md §4.12 describes (uppercase letters and
// digits, 5 characters), excluding visually ambiguous glyphs this font
// doesn't draw distinctly (I, O, 0 vs O collisions).
func NewGenerator(alphabet string, codeLength int, seed int64) *Generator {
	if alphabet == "" {
		alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ0123456789"
	}
	if codeLength <= 0 {
		codeLength = 5
	}
	return &Generator{
		Alphabet:   alphabet,
		CodeLength: codeLength,
		rng:        rand.New(rand.NewSource(seed)),
	}
}

// LoadBackground reads an image file and scales it to canvasSize x
// canvasSize greyscale, the optional provided background spec.md §4.12
// allows in place of a solid fill.
func LoadBackground(path string) (*image.Gray, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("captcha: open background: %w", err)
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("captcha: decode background: %w", err)
	}

	return scaleToCanvas(src), nil
}

// scaleToCanvas nearest-neighbor scales src into a canvasSize square
// greyscale image. Nearest-neighbor is enough here: the result is
// immediately quantized down to four colors, so a softer filter buys
// nothing.
func scaleToCanvas(src image.Image) *image.Gray {
	bounds := src.Bounds()
	sw, sh := bounds.Dx(), bounds.Dy()

	dst := image.NewGray(image.Rect(0, 0, canvasSize, canvasSize))
	for y := 0; y < canvasSize; y++ {
		sy := bounds.Min.Y + y*sh/canvasSize
		for x := 0; x < canvasSize; x++ {
			sx := bounds.Min.X + x*sw/canvasSize
			dst.Set(x, y, src.At(sx, sy))
		}
	}
	return dst
}

// Generate renders one artifact.
func (g *Generator) Generate() Artifact {
	code := g.randomCode()
	img := g.render(code)
	return Artifact{
		Answer:      code,
		PaletteData: quantizeImage(img),
	}
}

func (g *Generator) randomCode() string {
	buf := make([]byte, g.CodeLength)
	for i := range buf {
		buf[i] = g.Alphabet[g.rng.Intn(len(g.Alphabet))]
	}
	return string(buf)
}

func (g *Generator) render(code string) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, canvasSize, canvasSize))
	if g.Background != nil {
		copy(img.Pix, g.Background.Pix)
	} else {
		background := uint8(200 + g.rng.Intn(55))
		for y := 0; y < canvasSize; y++ {
			for x := 0; x < canvasSize; x++ {
				img.SetGray(x, y, color.Gray{Y: background})
			}
		}
	}

	spacing := canvasSize / (len(code) + 1)
	for i, ch := range code {
		cx := spacing * (i + 1)
		cy := canvasSize/2 + jitter(g.rng, 10)
		angle := (g.rng.Float64()*40 - 20) * math.Pi / 180
		drawGlyph(img, rune(ch), cx, cy, angle)
	}

	for i := 0; i < noisePixels; i++ {
		x := g.rng.Intn(canvasSize)
		y := g.rng.Intn(canvasSize)
		img.SetGray(x, y, color.Gray{Y: uint8(g.rng.Intn(256))})
	}

	for i := 0; i < noiseLines; i++ {
		drawLine(img,
			g.rng.Intn(canvasSize), g.rng.Intn(canvasSize),
			g.rng.Intn(canvasSize), g.rng.Intn(canvasSize),
			uint8(g.rng.Intn(120)))
	}

	return img
}

func jitter(rng *rand.Rand, span int) int {
	return rng.Intn(2*span+1) - span
}

// drawGlyph stamps a bitmap glyph at (cx, cy), rotated by angle radians
// around its own center, by inverse-mapping destination pixels back
// into glyph space rather than forward-rotating source pixels (avoids
// holes in the rotated result).
func drawGlyph(img *image.Gray, ch rune, cx, cy int, angle float64) {
	bitmap, ok := glyphs[ch]
	if !ok {
		return
	}

	w := float64(glyphWidth * glyphScale)
	h := float64(glyphHeight * glyphScale)
	radius := int(math.Hypot(w, h)/2) + 1
	cos, sin := math.Cos(-angle), math.Sin(-angle)

	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			px, py := cx+dx, cy+dy
			if px < 0 || px >= canvasSize || py < 0 || py >= canvasSize {
				continue
			}

			rx := float64(dx)*cos - float64(dy)*sin + w/2
			ry := float64(dx)*sin + float64(dy)*cos + h/2

			gx := int(rx) / glyphScale
			gy := int(ry) / glyphScale
			if gx < 0 || gx >= glyphWidth || gy < 0 || gy >= glyphHeight {
				continue
			}
			row := bitmap[gy]
			bit := row & (1 << uint(glyphWidth-1-gx))
			if bit != 0 {
				img.SetGray(px, py, color.Gray{Y: uint8(20)})
			}
		}
	}
}

func drawLine(img *image.Gray, x0, y0, x1, y1 int, shade uint8) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	err := dx + dy

	for {
		if x0 >= 0 && x0 < canvasSize && y0 >= 0 && y0 < canvasSize {
			img.SetGray(x0, y0, color.Gray{Y: shade})
		}
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// quantizeImage maps each greyscale pixel to one of the four colors a
// vanilla Minecraft map item can render, per spec.md §4.12.
func quantizeImage(img *image.Gray) []byte {
	out := make([]byte, canvasSize*canvasSize)
	for y := 0; y < canvasSize; y++ {
		for x := 0; x < canvasSize; x++ {
			out[y*canvasSize+x] = mapPaletteColor(img.GrayAt(x, y).Y)
		}
	}
	return out
}

func mapPaletteColor(gray uint8) byte {
	switch {
	case gray < 64:
		return 29
	case gray < 128:
		return 30
	case gray < 192:
		return 31
	default:
		return 34
	}
}

func (a Artifact) String() string {
	return fmt.Sprintf("captcha.Artifact{Answer: %q, %d bytes}", a.Answer, len(a.PaletteData))
}
