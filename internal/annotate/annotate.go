// Package annotate burns detection results into video frames.
package annotate

import (
	"fmt"
	"image"
	"image/color"

	"github.com/golang/geo/r2"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"

	"github.com/banshee-data/tagview/internal/geometry"
	"github.com/banshee-data/tagview/internal/tag"
)

const (
	outlineWidth = 2
	centerRadius = 5
	lineSpacing  = 20
)

// Annotator draws tag outlines and labels. It holds no per-frame state and
// may be shared between goroutines.
type Annotator struct {
	tagColor  color.Color
	textColor color.Color
	face      font.Face
}

// New returns an Annotator drawing outlines in tagColor and pose text in
// textColor.
func New(tagColor, textColor color.Color) *Annotator {
	return &Annotator{
		tagColor:  tagColor,
		textColor: textColor,
		face:      basicfont.Face7x13,
	}
}

// Annotate returns a copy of frame with every observation outlined and
// labelled, plus a "Tags detected" count in the top-left corner.
//
// metrics is either nil (identifier labels only) or parallel to obs; an
// observation without a pose falls back to the identifier label. When frame
// is nil or obs is empty, frame is returned as is.
func (a *Annotator) Annotate(frame image.Image, obs []tag.Observation, metrics []geometry.PoseMetrics) image.Image {
	if frame == nil || len(obs) == 0 {
		return frame
	}

	out := cloneRGBA(frame)
	cv := newCanvas(out)

	for i, o := range obs {
		cv.polygon(o.Corners[:], outlineWidth, a.tagColor)

		cx, cy := int(o.Center.X), int(o.Center.Y)
		if metrics != nil && i < len(metrics) && o.Pose != nil {
			a.poseLabel(out, cv, o, metrics[i], cx, cy)
			continue
		}
		boxedText(out, a.face, cx-20, cy+30, fmt.Sprintf("ID: %d", o.ID), a.tagColor, color.Black, 5)
	}

	text(out, a.face, 10, 30, fmt.Sprintf("Tags detected: %d", len(obs)), a.textColor)
	return out
}

func (a *Annotator) poseLabel(out *image.RGBA, cv *canvas, o tag.Observation, m geometry.PoseMetrics, cx, cy int) {
	cv.disc(r2.Point{X: float64(cx), Y: float64(cy)}, centerRadius, a.tagColor)

	text(out, a.face, cx-20, cy-20, fmt.Sprintf("ID: %d - %.2fm", o.ID, m.Distance), a.tagColor)

	lines := []string{
		fmt.Sprintf("Roll: %.1f deg", m.Roll),
		fmt.Sprintf("Pitch: %.1f deg", m.Pitch),
		fmt.Sprintf("Yaw: %.1f deg", m.Yaw),
		fmt.Sprintf("Dir: %.2f, %.2f, %.2f", m.Direction.X, m.Direction.Y, m.Direction.Z),
	}
	for i, line := range lines {
		text(out, a.face, cx-20, cy+lineSpacing+i*lineSpacing, line, a.textColor)
	}
}

// OverlayFPS returns a copy of frame with "FPS: x.x" drawn below the tag count.
func (a *Annotator) OverlayFPS(frame image.Image, fps float64) *image.RGBA {
	if frame == nil {
		return nil
	}
	out := cloneRGBA(frame)
	text(out, a.face, 10, 60, fmt.Sprintf("FPS: %.1f", fps), a.textColor)
	return out
}
