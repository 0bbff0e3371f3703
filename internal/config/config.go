package config

import (
	"encoding/json"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	colorful "github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"
)

// Defaults match the reference camera framing (1280x720 dashboard video).
const (
	DefaultCannyLow           = 50
	DefaultCannyHigh          = 150
	DefaultBlurKernel         = 5
	DefaultHoughRho           = 2.0
	DefaultHoughThetaDeg      = 1.0
	DefaultHoughThreshold     = 100
	DefaultHoughMinLineLength = 40
	DefaultHoughMaxLineGap    = 5
	DefaultHoughMaxLines      = 50
	DefaultUpperExtent        = 0.6
	DefaultLineThickness      = 10
	DefaultLineColor          = "#FF0000"
	DefaultFrameWeight        = 0.8
	DefaultOverlayWeight      = 1.0
	DefaultBlendBias          = 1.0
	DefaultSidePolicy         = "all_or_nothing"
	DefaultMaxWidth           = 0
	DefaultWorkers            = 1
)

const maxFileSize = 1 * 1024 * 1024 // 1MB

// DefaultRegion is the lane region of interest: a triangle from the bottom
// corners of the road toward the vanishing point.
var DefaultRegion = []Vertex{
	{X: 200, FromBottom: true},
	{X: 1100, FromBottom: true},
	{X: 550, Y: 250},
}

// Config holds every tunable constant of the lane pipeline.
//
// Fields are pointers so a JSON file only needs to name what it overrides;
// the Get* accessors supply defaults for anything left nil.
type Config struct {
	// Edge extraction
	CannyLow   *int `json:"canny_low,omitempty"`
	CannyHigh  *int `json:"canny_high,omitempty"`
	BlurKernel *int `json:"blur_kernel,omitempty"`

	// Region of interest
	Region []Vertex `json:"region,omitempty"`

	// Segment detection
	HoughRho           *float64 `json:"hough_rho,omitempty"`
	HoughThetaDeg      *float64 `json:"hough_theta_deg,omitempty"`
	HoughThreshold     *int     `json:"hough_threshold,omitempty"`
	HoughMinLineLength *int     `json:"hough_min_line_length,omitempty"`
	HoughMaxLineGap    *int     `json:"hough_max_line_gap,omitempty"`
	HoughMaxLines      *int     `json:"hough_max_lines,omitempty"`

	// Aggregation
	UpperExtent *float64 `json:"upper_extent,omitempty"`
	SidePolicy  *string  `json:"side_policy,omitempty"` // "all_or_nothing" or "per_side"

	// Rendering and compositing
	LineThickness *int     `json:"line_thickness,omitempty"`
	LineColor     *string  `json:"line_color,omitempty"` // hex like "#FF0000"
	FrameWeight   *float64 `json:"frame_weight,omitempty"`
	OverlayWeight *float64 `json:"overlay_weight,omitempty"`
	BlendBias     *float64 `json:"blend_bias,omitempty"`

	// Frame loop
	MaxWidth *int `json:"max_width,omitempty"`
	Workers  *int `json:"workers,omitempty"`
}

// Default returns a Config with every field unset, so all accessors report
// their defaults.
func Default() *Config {
	return &Config{}
}

// Load reads a Config from a JSON file.
// The file must have a .json extension and be under 1MB. Fields omitted from
// the file keep their defaults, so partial configs are safe.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, errors.Errorf("config file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to stat config file")
	}
	if info.Size() > maxFileSize {
		return nil, errors.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config JSON")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

// Validate checks that every set field is usable.
func (c *Config) Validate() error {
	if c.GetCannyLow() < 0 || c.GetCannyHigh() > 255*8 {
		return errors.Errorf("canny thresholds out of range: %d/%d", c.GetCannyLow(), c.GetCannyHigh())
	}
	if c.GetCannyLow() >= c.GetCannyHigh() {
		return errors.Errorf("canny_low (%d) must be below canny_high (%d)", c.GetCannyLow(), c.GetCannyHigh())
	}
	if c.GetBlurKernel() != DefaultBlurKernel {
		return errors.Errorf("blur_kernel must be %d, got %d", DefaultBlurKernel, c.GetBlurKernel())
	}
	if c.Region != nil && len(c.Region) < 3 {
		return errors.Errorf("region needs at least 3 vertices, got %d", len(c.Region))
	}
	if c.GetHoughRho() <= 0 {
		return errors.Errorf("hough_rho must be positive, got %g", c.GetHoughRho())
	}
	if th := c.GetHoughThetaDeg(); th <= 0 || th > 180 {
		return errors.Errorf("hough_theta_deg must be in (0, 180], got %g", th)
	}
	if c.GetHoughThreshold() < 1 {
		return errors.Errorf("hough_threshold must be at least 1, got %d", c.GetHoughThreshold())
	}
	if c.GetHoughMinLineLength() < 0 || c.GetHoughMaxLineGap() < 0 || c.GetHoughMaxLines() < 0 {
		return errors.New("hough length, gap and line limits must not be negative")
	}
	if u := c.GetUpperExtent(); u <= 0 || u >= 1 {
		return errors.Errorf("upper_extent must be in (0, 1), got %g", u)
	}
	switch c.GetSidePolicy() {
	case "all_or_nothing", "per_side":
	default:
		return errors.Errorf("side_policy must be all_or_nothing or per_side, got %q", c.GetSidePolicy())
	}
	if c.GetLineThickness() < 1 {
		return errors.Errorf("line_thickness must be at least 1, got %d", c.GetLineThickness())
	}
	if _, err := c.LaneColor(); err != nil {
		return err
	}
	if c.GetMaxWidth() < 0 {
		return errors.Errorf("max_width must not be negative, got %d", c.GetMaxWidth())
	}
	if c.GetWorkers() < 1 {
		return errors.Errorf("workers must be at least 1, got %d", c.GetWorkers())
	}
	return nil
}

// Getter methods with defaults

func (c *Config) GetCannyLow() int {
	if c.CannyLow == nil {
		return DefaultCannyLow
	}
	return *c.CannyLow
}

func (c *Config) GetCannyHigh() int {
	if c.CannyHigh == nil {
		return DefaultCannyHigh
	}
	return *c.CannyHigh
}

func (c *Config) GetBlurKernel() int {
	if c.BlurKernel == nil {
		return DefaultBlurKernel
	}
	return *c.BlurKernel
}

func (c *Config) GetHoughRho() float64 {
	if c.HoughRho == nil {
		return DefaultHoughRho
	}
	return *c.HoughRho
}

func (c *Config) GetHoughThetaDeg() float64 {
	if c.HoughThetaDeg == nil {
		return DefaultHoughThetaDeg
	}
	return *c.HoughThetaDeg
}

// GetHoughThetaRad returns the angular resolution in radians.
func (c *Config) GetHoughThetaRad() float64 {
	return c.GetHoughThetaDeg() * math.Pi / 180
}

func (c *Config) GetHoughThreshold() int {
	if c.HoughThreshold == nil {
		return DefaultHoughThreshold
	}
	return *c.HoughThreshold
}

func (c *Config) GetHoughMinLineLength() int {
	if c.HoughMinLineLength == nil {
		return DefaultHoughMinLineLength
	}
	return *c.HoughMinLineLength
}

func (c *Config) GetHoughMaxLineGap() int {
	if c.HoughMaxLineGap == nil {
		return DefaultHoughMaxLineGap
	}
	return *c.HoughMaxLineGap
}

func (c *Config) GetHoughMaxLines() int {
	if c.HoughMaxLines == nil {
		return DefaultHoughMaxLines
	}
	return *c.HoughMaxLines
}

func (c *Config) GetUpperExtent() float64 {
	if c.UpperExtent == nil {
		return DefaultUpperExtent
	}
	return *c.UpperExtent
}

func (c *Config) GetSidePolicy() string {
	if c.SidePolicy == nil {
		return DefaultSidePolicy
	}
	return strings.ToLower(strings.TrimSpace(*c.SidePolicy))
}

func (c *Config) GetLineThickness() int {
	if c.LineThickness == nil {
		return DefaultLineThickness
	}
	return *c.LineThickness
}

func (c *Config) GetLineColor() string {
	if c.LineColor == nil {
		return DefaultLineColor
	}
	return *c.LineColor
}

func (c *Config) GetFrameWeight() float64 {
	if c.FrameWeight == nil {
		return DefaultFrameWeight
	}
	return *c.FrameWeight
}

func (c *Config) GetOverlayWeight() float64 {
	if c.OverlayWeight == nil {
		return DefaultOverlayWeight
	}
	return *c.OverlayWeight
}

func (c *Config) GetBlendBias() float64 {
	if c.BlendBias == nil {
		return DefaultBlendBias
	}
	return *c.BlendBias
}

func (c *Config) GetMaxWidth() int {
	if c.MaxWidth == nil {
		return DefaultMaxWidth
	}
	return *c.MaxWidth
}

func (c *Config) GetWorkers() int {
	if c.Workers == nil {
		return DefaultWorkers
	}
	return *c.Workers
}

// GetRegion returns the configured polygon vertices or DefaultRegion.
func (c *Config) GetRegion() []Vertex {
	if len(c.Region) == 0 {
		return DefaultRegion
	}
	return c.Region
}

// Polygon resolves the region vertices for a frame of the given height.
func (c *Config) Polygon(height int) []image.Point {
	region := c.GetRegion()
	points := make([]image.Point, len(region))
	for i, v := range region {
		points[i] = v.Resolve(height)
	}
	return points
}

// LaneColor parses the configured line colour.
func (c *Config) LaneColor() (color.RGBA, error) {
	hex := c.GetLineColor()
	parsed, err := colorful.Hex(hex)
	if err != nil {
		return color.RGBA{}, errors.Wrapf(err, "invalid line_color %q", hex)
	}
	r, g, b := parsed.RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}, nil
}

// Vertex is a region-of-interest polygon vertex.
//
// In JSON a vertex is a two-element array. The y element is either a number
// or a string anchored to the frame height: "H" is the bottom row and "H-40"
// is 40 rows above it.
type Vertex struct {
	X          int
	Y          int
	FromBottom bool
}

// Resolve returns the vertex position for a frame of the given height.
func (v Vertex) Resolve(height int) image.Point {
	if v.FromBottom {
		return image.Point{X: v.X, Y: height - v.Y}
	}
	return image.Point{X: v.X, Y: v.Y}
}

// MarshalJSON encodes the vertex as [x, y] or [x, "H-n"].
func (v Vertex) MarshalJSON() ([]byte, error) {
	if !v.FromBottom {
		return json.Marshal([2]int{v.X, v.Y})
	}
	y := "H"
	if v.Y != 0 {
		y = "H-" + strconv.Itoa(v.Y)
	}
	return json.Marshal([]interface{}{v.X, y})
}

// UnmarshalJSON decodes [x, y] where y may be a number or an "H" expression.
func (v *Vertex) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.Wrap(err, "vertex must be a [x, y] array")
	}
	if len(raw) != 2 {
		return errors.Errorf("vertex must have 2 elements, got %d", len(raw))
	}

	var out Vertex
	if err := json.Unmarshal(raw[0], &out.X); err != nil {
		return errors.Wrap(err, "vertex x must be an integer")
	}

	if err := json.Unmarshal(raw[1], &out.Y); err == nil {
		*v = out
		return nil
	}

	var expr string
	if err := json.Unmarshal(raw[1], &expr); err != nil {
		return errors.Errorf("vertex y must be an integer or \"H\" expression, got %s", raw[1])
	}
	expr = strings.ReplaceAll(strings.ToUpper(expr), " ", "")
	if !strings.HasPrefix(expr, "H") {
		return errors.Errorf("vertex y expression must start with H, got %q", expr)
	}
	out.FromBottom = true
	if rest := strings.TrimPrefix(expr, "H"); rest != "" {
		if !strings.HasPrefix(rest, "-") {
			return errors.Errorf("vertex y expression must be H or H-n, got %q", expr)
		}
		n, err := strconv.Atoi(strings.TrimPrefix(rest, "-"))
		if err != nil || n < 0 {
			return errors.Errorf("vertex y expression must be H or H-n, got %q", expr)
		}
		out.Y = n
	}
	*v = out
	return nil
}
