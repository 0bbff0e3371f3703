package pipeline

import (
	"image"
	"image/color"

	"github.com/pkg/errors"

	"github.com/ironsheep/lane-detect/internal/config"
	"github.com/ironsheep/lane-detect/internal/detection"
	"github.com/ironsheep/lane-detect/internal/imaging"
	"github.com/ironsheep/lane-detect/internal/lane"
)

// FrameResult holds every intermediate product of one processed frame.
type FrameResult struct {
	// Frame is the input after optional downscaling, anchored at (0, 0).
	Frame *image.RGBA

	Edges    *image.Gray
	Masked   *image.Gray
	Polygon  []image.Point
	Segments []detection.Segment
	Lanes    lane.Result

	// Overlay is the lane canvas, Composite the blended output frame.
	Overlay   *image.NRGBA
	Composite *image.RGBA
}

// Processor runs the per-frame lane pipeline:
// edges, region mask, segments, aggregation, overlay and composite.
//
// A Processor carries configuration only. Process keeps no state between
// calls, so one Processor may serve several goroutines.
type Processor struct {
	cfg        *config.Config
	hough      detection.HoughParams
	aggregator *lane.Aggregator
	color      color.RGBA
}

// NewProcessor validates cfg and prepares a Processor. A nil cfg uses the
// defaults.
func NewProcessor(cfg *config.Config) (*Processor, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	policy, err := lane.ParsePolicy(cfg.GetSidePolicy())
	if err != nil {
		return nil, err
	}
	c, err := cfg.LaneColor()
	if err != nil {
		return nil, err
	}

	return &Processor{
		cfg: cfg,
		hough: detection.HoughParams{
			Rho:           cfg.GetHoughRho(),
			Theta:         cfg.GetHoughThetaRad(),
			Threshold:     cfg.GetHoughThreshold(),
			MinLineLength: cfg.GetHoughMinLineLength(),
			MaxLineGap:    cfg.GetHoughMaxLineGap(),
			MaxLines:      cfg.GetHoughMaxLines(),
		},
		aggregator: lane.NewAggregator(policy, cfg.GetUpperExtent()),
		color:      c,
	}, nil
}

// Config returns the configuration the Processor was built from.
func (p *Processor) Config() *config.Config {
	return p.cfg
}

// Process runs every stage on frame. It never fails: missing or degenerate
// lanes are reported in Lanes and simply leave the overlay empty.
//
// The region and the segment length limits are given for the frame as
// decoded. When max_width shrinks the frame they are scaled with it.
func (p *Processor) Process(frame image.Image) *FrameResult {
	rgba, scale := p.prepare(frame)
	bounds := rgba.Bounds()

	res := &FrameResult{Frame: rgba}
	res.Edges = p.Edges(rgba)
	res.Polygon = imaging.ScalePolygon(p.cfg.Polygon(frame.Bounds().Dy()), scale)
	res.Masked = imaging.MaskRegion(res.Edges, res.Polygon)
	res.Segments = detection.DetectSegments(res.Masked, p.hough.Scale(scale))
	res.Lanes = p.aggregator.Aggregate(res.Segments, bounds.Dy())
	res.Overlay = imaging.RenderLines(bounds, res.Lanes.Lines(), p.color, p.cfg.GetLineThickness())
	res.Composite = imaging.Blend(rgba, res.Overlay,
		p.cfg.GetFrameWeight(), p.cfg.GetOverlayWeight(), p.cfg.GetBlendBias())
	return res
}

// Prepare applies max_width to frame and returns the working frame every
// stage sees.
func (p *Processor) Prepare(frame image.Image) *image.RGBA {
	rgba, _ := p.prepare(frame)
	return rgba
}

// prepare also returns the ratio of the working width to the source width.
func (p *Processor) prepare(frame image.Image) (*image.RGBA, float64) {
	rgba := imaging.ToRGBA(imaging.Downscale(frame, p.cfg.GetMaxWidth()))
	scale := 1.0
	if w := frame.Bounds().Dx(); w > 0 && rgba.Bounds().Dx() != w {
		scale = float64(rgba.Bounds().Dx()) / float64(w)
	}
	return rgba, scale
}

// Edges runs only the edge extraction stage.
func (p *Processor) Edges(frame image.Image) *image.Gray {
	return imaging.ExtractEdges(frame, p.cfg.GetCannyLow(), p.cfg.GetCannyHigh())
}
