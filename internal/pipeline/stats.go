package pipeline

import (
	"encoding/json"
	"time"

	"github.com/banshee-data/tagview/internal/geometry"
)

// TagPose is the pose of one tag in one frame.
type TagPose struct {
	TagID   int
	Metrics geometry.PoseMetrics
}

// Stats is the statistics snapshot for the most recently processed frame.
// A new value is built every cycle; published values are never modified.
type Stats struct {
	TagsDetected  int
	ProcessingFPS float64
	// LastDetection is the time of the last frame with at least one tag,
	// zero if there has been none.
	LastDetection time.Time
	// PoseMode reports whether poses are estimated. Poses is only meaningful
	// when it is set.
	PoseMode bool
	Poses    []TagPose
	// Frame is the number of frames processed since start.
	Frame     uint64
	UpdatedAt time.Time
}

// Report is the wire form of Stats served to clients.
type Report struct {
	TagsDetected      int           `json:"tags_detected" msgpack:"tags_detected"`
	ProcessingFPS     float64       `json:"processing_fps" msgpack:"processing_fps"`
	LastDetectionTime *string       `json:"last_detection_time" msgpack:"last_detection_time"`
	PoseData          *[]PoseReport `json:"pose_data,omitempty" msgpack:"pose_data,omitempty"`
}

// PoseReport is the wire form of TagPose.
type PoseReport struct {
	TagID     int        `json:"tag_id" msgpack:"tag_id"`
	Distance  float64    `json:"distance" msgpack:"distance"`
	Angles    Angles     `json:"angles" msgpack:"angles"`
	Direction [3]float64 `json:"direction" msgpack:"direction"`
	Position  Position   `json:"position" msgpack:"position"`
}

// Angles are Euler angles in degrees.
type Angles struct {
	Roll  float64 `json:"roll" msgpack:"roll"`
	Pitch float64 `json:"pitch" msgpack:"pitch"`
	Yaw   float64 `json:"yaw" msgpack:"yaw"`
}

// Position is a translation in tag-size units.
type Position struct {
	X float64 `json:"x" msgpack:"x"`
	Y float64 `json:"y" msgpack:"y"`
	Z float64 `json:"z" msgpack:"z"`
}

// Report converts s to its wire form. The detection time is formatted as
// local wall-clock "HH:MM:SS".
func (s Stats) Report() Report {
	r := Report{
		TagsDetected:  s.TagsDetected,
		ProcessingFPS: s.ProcessingFPS,
	}
	if !s.LastDetection.IsZero() {
		ts := s.LastDetection.Local().Format(time.TimeOnly)
		r.LastDetectionTime = &ts
	}
	if s.PoseMode {
		poses := make([]PoseReport, 0, len(s.Poses))
		for _, p := range s.Poses {
			m := p.Metrics
			poses = append(poses, PoseReport{
				TagID:     p.TagID,
				Distance:  m.Distance,
				Angles:    Angles{Roll: m.Roll, Pitch: m.Pitch, Yaw: m.Yaw},
				Direction: [3]float64{m.Direction.X, m.Direction.Y, m.Direction.Z},
				Position:  Position{X: m.Position.X, Y: m.Position.Y, Z: m.Position.Z},
			})
		}
		r.PoseData = &poses
	}
	return r
}

// MarshalJSON encodes the wire form.
func (s Stats) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Report())
}

// EncodedFrame is one annotated, encoded frame. Data is shared by every
// reader and must not be modified.
type EncodedFrame struct {
	Data     []byte
	Seq      uint64
	Captured time.Time
	Tags     int
}
