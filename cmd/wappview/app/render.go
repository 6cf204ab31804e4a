package app

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	dpi                = 120.0
	fontSize           = 10.0
	tickMarkSize       = 5
	pixelsPerFreqLabel = 150.0
	pixelsPerTimeLabel = 60.0
	colorBarWidth      = 12
	paddingMarkerWidth = 4
	defaultMinWidth    = 1024
	defaultMinHeight   = 256

	defaultTopBorder    = 40
	defaultLeftBorder   = 120
	defaultBottomBorder = 64
	defaultRightBorder  = 40

	defaultTimeFormat     = "15:04:05"
	subSecondTimeFormat   = "15:04:05.00"
	defaultDatetimeFormat = time.DateTime
)

// BorderConfig defines the sizes of white space around the waterfall
type BorderConfig struct {
	Top    int // Frequency scale
	Left   int // Time scale
	Bottom int // Information bar
	Right  int // Padding markers and color bar
}

// RenderConfig holds all configuration options for waterfall visualization
type RenderConfig struct {
	TimeFormat     string
	DatetimeFormat string
	Location       *time.Location

	FontSize     float64
	ColorTheme   ColorTheme
	ColorMapSize int

	// The waterfall is stretched by whole pixels per channel and per
	// spectrum until it is at least this large
	MinWidth  int
	MinHeight int

	Title         string
	NoAnnotations bool
	BorderConfig  BorderConfig
}

// SpectrumRenderer draws a waterfall with time running down
type SpectrumRenderer struct {
	config RenderConfig
	font   *truetype.Font
}

func NewSpectrumRenderer(config RenderConfig) (*SpectrumRenderer, error) {
	if config.TimeFormat == "" {
		config.TimeFormat = defaultTimeFormat
	}
	if config.DatetimeFormat == "" {
		config.DatetimeFormat = defaultDatetimeFormat
	}
	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.FontSize == 0 {
		config.FontSize = fontSize
	}
	if config.MinWidth == 0 {
		config.MinWidth = defaultMinWidth
	}
	if config.MinHeight == 0 {
		config.MinHeight = defaultMinHeight
	}

	if config.NoAnnotations {
		config.BorderConfig = BorderConfig{}
	} else {
		if config.BorderConfig.Top == 0 {
			config.BorderConfig.Top = defaultTopBorder
		}
		if config.BorderConfig.Left == 0 {
			config.BorderConfig.Left = defaultLeftBorder
		}
		if config.BorderConfig.Bottom == 0 {
			config.BorderConfig.Bottom = defaultBottomBorder
		}
		if config.BorderConfig.Right == 0 {
			config.BorderConfig.Right = defaultRightBorder
		}
	}

	parsedFont, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	return &SpectrumRenderer{config: config, font: parsedFont}, nil
}

// layout is the placement of the waterfall in the image
type layout struct {
	area       image.Rectangle
	cellWidth  int
	cellHeight int
}

func (r *SpectrumRenderer) layout(spec *SpectrumData) layout {
	l := layout{
		cellWidth:  max(1, ceilDiv(r.config.MinWidth, spec.Width)),
		cellHeight: max(1, ceilDiv(r.config.MinHeight, spec.Height)),
	}
	b := r.config.BorderConfig
	l.area = image.Rect(b.Left, b.Top, b.Left+spec.Width*l.cellWidth, b.Top+spec.Height*l.cellHeight)
	return l
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

// Render draws the waterfall, coloured over bounds
func (r *SpectrumRenderer) Render(spec *SpectrumData, bounds PowerBounds) (*image.RGBA, error) {
	if spec.Empty() {
		return nil, fmt.Errorf("no spectra to render")
	}

	l := r.layout(spec)
	b := r.config.BorderConfig
	img := image.NewRGBA(image.Rect(0, 0, l.area.Max.X+b.Right, l.area.Max.Y+b.Bottom))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	colorMap := NewColorMapperWithSize(r.config.ColorTheme, bounds, r.config.ColorMapSize)

	if !r.config.NoAnnotations {
		ann := newAnnotator(r.font, r.config, l)
		defer ann.Close()

		if err := ann.annotate(img, spec, colorMap, bounds); err != nil {
			return nil, fmt.Errorf("drawing annotations: %w", err)
		}
	}

	r.renderWaterfall(img, l, spec, colorMap)
	return img, nil
}

func (r *SpectrumRenderer) renderWaterfall(img *image.RGBA, l layout, spec *SpectrumData, colorMap *ColorMapper) {
	for y, row := range spec.Rows {
		top := l.area.Min.Y + y*l.cellHeight
		for x := 0; x < spec.Width; x++ {
			var power *float64
			if x < len(row.Powers) {
				power = row.Powers[x]
			}

			left := l.area.Min.X + x*l.cellWidth
			cell := image.Rect(left, top, left+l.cellWidth, top+l.cellHeight)
			draw.Draw(img, cell, &image.Uniform{C: colorMap.GetColor(power)}, image.Point{}, draw.Src)
		}
	}
}

type annotator struct {
	context  *freetype.Context
	config   RenderConfig
	layout   layout
	fontFace font.Face
}

func newAnnotator(f *truetype.Font, config RenderConfig, l layout) *annotator {
	ctx := freetype.NewContext()
	ctx.SetDPI(dpi)
	ctx.SetFont(f)
	ctx.SetFontSize(config.FontSize)
	ctx.SetHinting(font.HintingNone)
	ctx.SetSrc(image.Black)

	return &annotator{
		context: ctx,
		config:  config,
		layout:  l,
		fontFace: truetype.NewFace(f, &truetype.Options{
			Size:    config.FontSize,
			DPI:     dpi,
			Hinting: font.HintingNone,
		}),
	}
}

func (a *annotator) Close() error {
	return a.fontFace.Close()
}

func (a *annotator) fontHeight() int {
	metrics := a.fontFace.Metrics()
	return (metrics.Ascent + metrics.Descent).Round()
}

func (a *annotator) annotate(img *image.RGBA, spec *SpectrumData, colorMap *ColorMapper, bounds PowerBounds) error {
	a.context.SetClip(img.Bounds())
	a.context.SetDst(img)

	if err := a.drawFrequencyScale(img, spec); err != nil {
		return fmt.Errorf("drawing frequency scale: %w", err)
	}
	if err := a.drawTimeScale(img, spec); err != nil {
		return fmt.Errorf("drawing time scale: %w", err)
	}
	a.drawPaddingMarkers(img, spec)
	a.drawColorBar(img, colorMap)
	if err := a.drawInfoBar(img, spec, bounds); err != nil {
		return fmt.Errorf("drawing info bar: %w", err)
	}
	return nil
}

// channelX returns the x coordinate of the centre of the channel at freq
func (a *annotator) channelX(spec *SpectrumData, freq float64) int {
	var index float64
	if spec.ChannelWidth > 0 {
		index = (freq - spec.FrequencyMin) / spec.ChannelWidth
	}
	return a.layout.area.Min.X + int(index*float64(a.layout.cellWidth)) + a.layout.cellWidth/2
}

func (a *annotator) drawFrequencyScale(img *image.RGBA, spec *SpectrumData) error {
	area := a.layout.area
	textY := area.Min.Y - tickMarkSize - a.fontHeight()/2

	label := func(freq float64) error {
		x := a.channelX(spec, freq)
		for y := area.Min.Y - tickMarkSize; y < area.Min.Y; y++ {
			img.Set(x, y, color.Black)
		}

		text := formatFrequency(freq)
		width := font.MeasureString(a.fontFace, text)
		_, err := a.context.DrawString(text, freetype.Pt(x-width.Round()/2, textY))
		return err
	}

	span := spec.FrequencyMax - spec.FrequencyMin
	if span <= 0 {
		return label(spec.FrequencyMin)
	}

	step := calculateNiceFrequencyStep(span, area.Dx())
	for freq := math.Ceil(spec.FrequencyMin/step) * step; freq <= spec.FrequencyMax+step*1e-9; freq += step {
		if err := label(freq); err != nil {
			return fmt.Errorf("drawing frequency label: %w", err)
		}
	}
	return nil
}

func (a *annotator) drawTimeScale(img *image.RGBA, spec *SpectrumData) error {
	area := a.layout.area
	metrics := a.fontFace.Metrics()

	desired := max(1, float64(area.Dy())/pixelsPerTimeLabel)
	step := calculateNiceTimeStep(time.Duration((spec.OffsetEnd - spec.OffsetStart) / desired * float64(time.Second)))

	format := a.config.TimeFormat
	if step < time.Second && format == defaultTimeFormat {
		format = subSecondTimeFormat
	}

	next := spec.OffsetStart
	for y, row := range spec.Rows {
		if row.Offset < next {
			continue
		}
		for next <= row.Offset {
			next += step.Seconds()
		}

		imgY := area.Min.Y + y*a.layout.cellHeight + a.layout.cellHeight/2
		for x := area.Min.X - tickMarkSize; x < area.Min.X; x++ {
			img.Set(x, imgY, color.Black)
		}

		textY := imgY + a.fontHeight()/2 - metrics.Descent.Round()
		text := row.Timestamp.In(a.config.Location).Format(format)
		width := font.MeasureString(a.fontFace, text)
		pt := freetype.Pt(area.Min.X-tickMarkSize-4-width.Round(), textY)
		if _, err := a.context.DrawString(text, pt); err != nil {
			return fmt.Errorf("drawing time label: %w", err)
		}
	}
	return nil
}

// drawPaddingMarkers marks the spectra that averaged padding to the right of
// the waterfall
func (a *annotator) drawPaddingMarkers(img *image.RGBA, spec *SpectrumData) {
	area := a.layout.area
	marker := &image.Uniform{C: color.RGBA{R: 220, A: 255}}

	for y, row := range spec.Rows {
		if !row.Padding {
			continue
		}
		top := area.Min.Y + y*a.layout.cellHeight
		rect := image.Rect(area.Max.X+2, top, area.Max.X+2+paddingMarkerWidth, top+a.layout.cellHeight)
		draw.Draw(img, rect, marker, image.Point{}, draw.Src)
	}
}

// drawColorBar draws the gradient with the strongest power on top
func (a *annotator) drawColorBar(img *image.RGBA, colorMap *ColorMapper) {
	area := a.layout.area
	left := area.Max.X + paddingMarkerWidth + 8
	height := area.Dy()

	for y := 0; y < height; y++ {
		var f float64
		if height > 1 {
			f = 1 - float64(y)/float64(height-1)
		}
		c := colorMap.Gradient(f)
		for x := left; x < left+colorBarWidth; x++ {
			img.Set(x, area.Min.Y+y, c)
		}
	}
}

func (a *annotator) drawInfoBar(img *image.RGBA, spec *SpectrumData, bounds PowerBounds) error {
	loc := a.config.Location

	lines := []string{
		fmt.Sprintf("%sFreq: %s - %s; Time: %s - %s",
			a.title(),
			formatFrequency(spec.FrequencyMin), formatFrequency(spec.FrequencyMax),
			spec.TimestampStart.In(loc).Format(a.config.DatetimeFormat),
			spec.TimestampEnd.In(loc).Format(a.config.DatetimeFormat)),
		fmt.Sprintf("Channel: %s; Spectrum: %s; Power: %.3f - %.3f (mean %.3f); Padded spectra: %d of %d",
			formatFrequency(spec.ChannelWidth),
			time.Duration(spec.RowDuration()*float64(time.Second)).Round(time.Microsecond),
			bounds.Min, bounds.Max, bounds.Mean,
			spec.PaddedRows(), spec.Height),
	}

	metrics := a.fontFace.Metrics()
	lineHeight := a.fontHeight() + 4
	textY := a.layout.area.Max.Y + tickMarkSize + lineHeight - metrics.Descent.Round()

	for _, line := range lines {
		if _, err := a.context.DrawString(line, freetype.Pt(a.layout.area.Min.X, textY)); err != nil {
			return fmt.Errorf("drawing info text: %w", err)
		}
		textY += lineHeight
	}
	return nil
}

func (a *annotator) title() string {
	if a.config.Title == "" {
		return ""
	}
	return a.config.Title + "; "
}

// calculateNiceFrequencyStep returns a 1, 2 or 5 step in MHz giving about one
// label per pixelsPerFreqLabel of width
func calculateNiceFrequencyStep(span float64, width int) float64 {
	desired := max(1, float64(width)/pixelsPerFreqLabel)
	target := span / desired

	magnitude := math.Pow(10, math.Floor(math.Log10(target)))
	for _, m := range []float64{1, 2, 5, 10} {
		if step := m * magnitude; step >= target {
			return step
		}
	}
	return 10 * magnitude
}

// formatFrequency formats a frequency in MHz
func formatFrequency(mhz float64) string {
	value, prefix := humanize.ComputeSI(mhz * 1e6)
	return fmt.Sprintf("%.4g %sHz", value, prefix)
}

func calculateNiceTimeStep(rough time.Duration) time.Duration {
	intervals := []time.Duration{
		100 * time.Millisecond,
		250 * time.Millisecond,
		500 * time.Millisecond,
		time.Second,
		2 * time.Second,
		5 * time.Second,
		10 * time.Second,
		15 * time.Second,
		30 * time.Second,
		time.Minute,
		5 * time.Minute,
		10 * time.Minute,
		15 * time.Minute,
		30 * time.Minute,
		time.Hour,
	}

	for _, interval := range intervals {
		if rough <= interval {
			return interval
		}
	}
	return 2 * time.Hour
}
