//go:build gui

package gui

import (
	"image/color"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/widget"
)

type Flame int

const (
	FlameLit Flame = iota
	FlameLow
	FlameOut
)

const (
	cakeHeight = 13
	cellSize   = 14
	digitRow   = 4 // first candle body row
	cakeRow    = 9 // first cake row
)

// Palette indices used by computePixels.
const (
	pxNone = iota
	pxFlame
	pxCore
	pxWick
	pxCandle
	pxSmoke
	pxFrosting
	pxCake
	pxSprinkle
)

var palette = []color.Color{
	color.RGBA{0, 0, 0, 0},
	color.RGBA{255, 135, 0, 255},
	color.RGBA{255, 235, 90, 255},
	color.RGBA{90, 90, 90, 255},
	color.RGBA{135, 205, 255, 255},
	color.RGBA{150, 150, 150, 255},
	color.RGBA{255, 175, 215, 255},
	color.RGBA{215, 175, 135, 255},
	color.RGBA{255, 215, 0, 255},
}

var digitGlyphs = [10][5]string{
	{"###", "# #", "# #", "# #", "###"},
	{" # ", "## ", " # ", " # ", "###"},
	{"###", "  #", "###", "#  ", "###"},
	{"###", "  #", "###", "  #", "###"},
	{"# #", "# #", "###", "  #", "  #"},
	{"###", "#  ", "###", "  #", "###"},
	{"###", "#  ", "###", "# #", "###"},
	{"###", "  #", "  #", "  #", "  #"},
	{"###", "# #", "###", "# #", "###"},
	{"###", "# #", "###", "  #", "###"},
}

// CakeWidget draws number candles on a cake as a grid of coloured cells.
type CakeWidget struct {
	widget.BaseWidget
	digits []int
	width  int

	mu     sync.Mutex
	frame  int
	flame  Flame
	stopCh chan struct{}
}

func NewCakeWidget(candles string) *CakeWidget {
	c := &CakeWidget{stopCh: make(chan struct{})}
	for _, r := range candles {
		if r >= '0' && r <= '9' {
			c.digits = append(c.digits, int(r-'0'))
		}
	}
	c.width = cakeWidth(len(c.digits))
	c.ExtendBaseWidget(c)
	go c.animate()
	return c
}

func cakeWidth(candles int) int {
	if candles == 0 {
		return 6
	}
	return candles*5 + 3
}

func (c *CakeWidget) SetFlame(f Flame) {
	c.mu.Lock()
	c.flame = f
	c.mu.Unlock()
}

func (c *CakeWidget) Stop() {
	select {
	case <-c.stopCh:
	default:
		close(c.stopCh)
	}
}

func (c *CakeWidget) animate() {
	ticker := time.NewTicker(60 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.mu.Lock()
			c.frame++
			c.mu.Unlock()
			fyne.Do(func() {
				c.Refresh()
			})
		}
	}
}

func (c *CakeWidget) MinSize() fyne.Size {
	return fyne.NewSize(float32(c.width*cellSize), float32(cakeHeight*cellSize))
}

func (c *CakeWidget) CreateRenderer() fyne.WidgetRenderer {
	r := &cakeRenderer{cake: c}
	r.rects = make([][]*canvas.Rectangle, cakeHeight)
	for y := range cakeHeight {
		r.rects[y] = make([]*canvas.Rectangle, c.width)
		for x := range c.width {
			r.rects[y][x] = canvas.NewRectangle(palette[pxNone])
		}
	}
	return r
}

type cakeRenderer struct {
	cake  *CakeWidget
	rects [][]*canvas.Rectangle
}

func (r *cakeRenderer) Layout(size fyne.Size) {
	cellW := size.Width / float32(r.cake.width)
	cellH := size.Height / float32(cakeHeight)
	for y := range r.rects {
		for x := range r.rects[y] {
			r.rects[y][x].Move(fyne.NewPos(float32(x)*cellW, float32(y)*cellH))
			r.rects[y][x].Resize(fyne.NewSize(cellW, cellH))
		}
	}
}

func (r *cakeRenderer) MinSize() fyne.Size {
	return r.cake.MinSize()
}

func (r *cakeRenderer) Refresh() {
	r.cake.mu.Lock()
	frame, flame := r.cake.frame, r.cake.flame
	r.cake.mu.Unlock()

	pixels := computePixels(r.cake.digits, r.cake.width, flame, frame)
	for y := range r.rects {
		for x := range r.rects[y] {
			r.rects[y][x].FillColor = palette[pixels[y][x]]
			r.rects[y][x].Refresh()
		}
	}
}

func (r *cakeRenderer) Objects() []fyne.CanvasObject {
	objs := make([]fyne.CanvasObject, 0, r.cake.width*cakeHeight)
	for y := range r.rects {
		for x := range r.rects[y] {
			objs = append(objs, r.rects[y][x])
		}
	}
	return objs
}

func (r *cakeRenderer) Destroy() {
	r.cake.Stop()
}

// computePixels lays out flames, wicks, candles and cake for one frame.
func computePixels(digits []int, width int, flame Flame, frame int) [][]int {
	pixels := make([][]int, cakeHeight)
	for i := range pixels {
		pixels[i] = make([]int, width)
	}

	sways := []int{0, 1, 0, -1}
	for i, d := range digits {
		left := 2 + i*5
		mid := left + 1
		sway := sways[(frame/4+i)%len(sways)]

		switch flame {
		case FlameLit:
			pixels[0][mid+sway] = pxFlame
			pixels[1][left] = pxFlame
			pixels[1][mid] = pxCore
			pixels[1][left+2] = pxFlame
			pixels[2][mid] = pxCore
		case FlameLow:
			if (frame/2+i)%2 == 0 {
				pixels[2][mid] = pxFlame
			} else {
				pixels[2][mid] = pxCore
			}
		case FlameOut:
			pixels[(frame/6+i)%2][mid+sway] = pxSmoke
		}
		pixels[3][mid] = pxWick

		for row, line := range digitGlyphs[d] {
			for col, ch := range line {
				if ch == '#' {
					pixels[digitRow+row][left+col] = pxCandle
				}
			}
		}
	}

	for x := range width {
		if (x+frame/8)%2 == 0 {
			pixels[cakeRow][x] = pxFrosting
		} else {
			pixels[cakeRow][x] = pxCake
		}
		for y := cakeRow + 1; y < cakeHeight; y++ {
			pixels[y][x] = pxCake
		}
		if x%3 == 1 {
			pixels[cakeRow+1][x] = pxSprinkle
		}
	}
	return pixels
}
