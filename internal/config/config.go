// Package config loads the startup configuration of the tag viewer. All values
// are read once at startup and are immutable afterwards.
package config

import (
	"encoding/json"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Camera backends selectable with the "camera" field.
const (
	CameraSynthetic = "synthetic"
	CameraGStreamer = "gst"
	CameraOpenCV    = "opencv"
)

// MQTT payload encodings selectable with the "mqtt_format" field.
const (
	FormatJSON    = "json"
	FormatMsgpack = "msgpack"
)

// Families lists the tag families the detector backends understand.
var Families = []string{"tag16h5", "tag25h9", "tag36h10", "tag36h11"}

// Config is the root configuration. Every field is optional; the Get* methods
// supply defaults for omitted values so partial files are safe.
type Config struct {
	// Capture
	Camera *string `json:"camera,omitempty" yaml:"camera,omitempty"`
	Device *string `json:"device,omitempty" yaml:"device,omitempty"` // v4l2 path, OpenCV index, or a gst-launch pipeline
	Width  *int    `json:"width,omitempty" yaml:"width,omitempty"`
	Height *int    `json:"height,omitempty" yaml:"height,omitempty"`
	Warmup *string `json:"warmup,omitempty" yaml:"warmup,omitempty"` // duration string like "2s"

	// Detection
	TagFamily   *string  `json:"tag_family,omitempty" yaml:"tag_family,omitempty"`
	TagSize     *float64 `json:"tag_size,omitempty" yaml:"tag_size,omitempty"` // metres
	PoseEnabled *bool    `json:"pose_enabled,omitempty" yaml:"pose_enabled,omitempty"`
	Profile     *string  `json:"profile,omitempty" yaml:"profile,omitempty"` // named intrinsics profile in the database

	// Intrinsics (uncalibrated defaults, replace after calibrating)
	Fx *float64 `json:"fx,omitempty" yaml:"fx,omitempty"`
	Fy *float64 `json:"fy,omitempty" yaml:"fy,omitempty"`
	Cx *float64 `json:"cx,omitempty" yaml:"cx,omitempty"`
	Cy *float64 `json:"cy,omitempty" yaml:"cy,omitempty"`

	// Overlay
	TagColor    *string `json:"tag_color,omitempty" yaml:"tag_color,omitempty"`
	TextColor   *string `json:"text_color,omitempty" yaml:"text_color,omitempty"`
	JPEGQuality *int    `json:"jpeg_quality,omitempty" yaml:"jpeg_quality,omitempty"`

	// Loop pacing
	IdleDelay      *string `json:"idle_delay,omitempty" yaml:"idle_delay,omitempty"`
	CycleDelay     *string `json:"cycle_delay,omitempty" yaml:"cycle_delay,omitempty"`
	StreamInterval *string `json:"stream_interval,omitempty" yaml:"stream_interval,omitempty"`
	StreamWait     *string `json:"stream_wait,omitempty" yaml:"stream_wait,omitempty"`

	// Side channels
	HistorySize *int    `json:"history_size,omitempty" yaml:"history_size,omitempty"`
	MQTTBroker  *string `json:"mqtt_broker,omitempty" yaml:"mqtt_broker,omitempty"`
	MQTTTopic   *string `json:"mqtt_topic,omitempty" yaml:"mqtt_topic,omitempty"`
	MQTTFormat  *string `json:"mqtt_format,omitempty" yaml:"mqtt_format,omitempty"`
}

// Empty returns a Config with all fields set to nil, i.e. all defaults.
func Empty() *Config {
	return &Config{}
}

// Load reads a Config from a .json, .yaml or .yml file and validates it.
// Fields omitted from the file keep their defaults.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	ext := filepath.Ext(cleanPath)
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Empty()
	if ext == ".json" {
		err = json.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// positiveDurations are the pauses that keep the processing loop and each
// stream client from spinning.
var positiveDurations = map[string]bool{
	"idle_delay":      true,
	"cycle_delay":     true,
	"stream_interval": true,
	"stream_wait":     true,
}

// Validate checks that the configuration values are valid.
func (c *Config) Validate() error {
	if c.Camera != nil {
		switch *c.Camera {
		case CameraSynthetic, CameraGStreamer, CameraOpenCV:
		default:
			return fmt.Errorf("camera must be one of %q, %q, %q, got %q",
				CameraSynthetic, CameraGStreamer, CameraOpenCV, *c.Camera)
		}
	}
	if c.Width != nil && *c.Width <= 0 {
		return fmt.Errorf("width must be positive, got %d", *c.Width)
	}
	if c.Height != nil && *c.Height <= 0 {
		return fmt.Errorf("height must be positive, got %d", *c.Height)
	}
	if c.TagFamily != nil && !validFamily(*c.TagFamily) {
		return fmt.Errorf("tag_family must be one of %v, got %q", Families, *c.TagFamily)
	}
	if c.TagSize != nil && *c.TagSize <= 0 {
		return fmt.Errorf("tag_size must be positive, got %f", *c.TagSize)
	}
	for name, v := range map[string]*float64{"fx": c.Fx, "fy": c.Fy} {
		if v != nil && *v <= 0 {
			return fmt.Errorf("%s must be positive, got %f", name, *v)
		}
	}
	for name, v := range map[string]*string{"tag_color": c.TagColor, "text_color": c.TextColor} {
		if v != nil {
			if _, err := ParseColor(*v); err != nil {
				return fmt.Errorf("invalid %s: %w", name, err)
			}
		}
	}
	if c.JPEGQuality != nil && (*c.JPEGQuality < 1 || *c.JPEGQuality > 100) {
		return fmt.Errorf("jpeg_quality must be between 1 and 100, got %d", *c.JPEGQuality)
	}
	durations := map[string]*string{
		"warmup":          c.Warmup,
		"idle_delay":      c.IdleDelay,
		"cycle_delay":     c.CycleDelay,
		"stream_interval": c.StreamInterval,
		"stream_wait":     c.StreamWait,
	}
	for name, v := range durations {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must not be negative, got %s", name, *v)
		}
		if d == 0 && positiveDurations[name] {
			return fmt.Errorf("%s must be positive, got %s", name, *v)
		}
	}
	if c.HistorySize != nil && *c.HistorySize < 1 {
		return fmt.Errorf("history_size must be at least 1, got %d", *c.HistorySize)
	}
	if c.MQTTFormat != nil && *c.MQTTFormat != FormatJSON && *c.MQTTFormat != FormatMsgpack {
		return fmt.Errorf("mqtt_format must be %q or %q, got %q", FormatJSON, FormatMsgpack, *c.MQTTFormat)
	}
	return nil
}

func validFamily(f string) bool {
	for _, known := range Families {
		if f == known {
			return true
		}
	}
	return false
}

// ParseColor parses "#rrggbb" or "rrggbb" into an opaque color.
func ParseColor(s string) (color.RGBA, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) != 6 {
		return color.RGBA{}, fmt.Errorf("color %q must have 6 hex digits", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("color %q: %w", s, err)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}

func durationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def // default on parse error
	}
	return d
}

// GetCamera returns the camera backend or the default (synthetic).
func (c *Config) GetCamera() string {
	if c.Camera == nil {
		return CameraSynthetic
	}
	return *c.Camera
}

// GetDevice returns the capture device or the default "/dev/video0".
func (c *Config) GetDevice() string {
	if c.Device == nil || *c.Device == "" {
		return "/dev/video0"
	}
	return *c.Device
}

// GetWidth returns the capture width or the default.
func (c *Config) GetWidth() int {
	if c.Width == nil {
		return 800
	}
	return *c.Width
}

// GetHeight returns the capture height or the default.
func (c *Config) GetHeight() int {
	if c.Height == nil {
		return 600
	}
	return *c.Height
}

// GetWarmup returns how long to let the sensor settle after start.
func (c *Config) GetWarmup() time.Duration {
	return durationOr(c.Warmup, 2*time.Second)
}

// GetTagFamily returns the tag family or the default tag36h11.
func (c *Config) GetTagFamily() string {
	if c.TagFamily == nil {
		return "tag36h11"
	}
	return *c.TagFamily
}

// GetTagSize returns the physical tag edge length in metres.
func (c *Config) GetTagSize() float64 {
	if c.TagSize == nil {
		return 0.02
	}
	return *c.TagSize
}

// GetPoseEnabled reports whether 6DOF pose estimation runs each frame.
func (c *Config) GetPoseEnabled() bool {
	if c.PoseEnabled == nil {
		return true
	}
	return *c.PoseEnabled
}

// GetProfile returns the named intrinsics profile, empty when unset.
func (c *Config) GetProfile() string {
	if c.Profile == nil {
		return ""
	}
	return *c.Profile
}

// GetIntrinsics returns fx, fy, cx, cy. The defaults approximate an OV5647
// sensor at 1296x972 and are not calibrated for any specific camera.
func (c *Config) GetIntrinsics() (fx, fy, cx, cy float64) {
	fx, fy, cx, cy = 2800.0, 2800.0, 1296.0/2, 972.0/2
	if c.Fx != nil {
		fx = *c.Fx
	}
	if c.Fy != nil {
		fy = *c.Fy
	}
	if c.Cx != nil {
		cx = *c.Cx
	}
	if c.Cy != nil {
		cy = *c.Cy
	}
	return fx, fy, cx, cy
}

// GetTagColor returns the outline color (orange by default).
func (c *Config) GetTagColor() color.RGBA {
	return colorOr(c.TagColor, color.RGBA{R: 255, G: 165, B: 0, A: 255})
}

// GetTextColor returns the overlay text color (yellow by default).
func (c *Config) GetTextColor() color.RGBA {
	return colorOr(c.TextColor, color.RGBA{R: 255, G: 255, B: 0, A: 255})
}

func colorOr(v *string, def color.RGBA) color.RGBA {
	if v == nil {
		return def
	}
	col, err := ParseColor(*v)
	if err != nil {
		return def
	}
	return col
}

// GetJPEGQuality returns the encoder quality.
func (c *Config) GetJPEGQuality() int {
	if c.JPEGQuality == nil {
		return 80
	}
	return *c.JPEGQuality
}

// GetIdleDelay returns the pause after the camera yields no frame.
func (c *Config) GetIdleDelay() time.Duration {
	return durationOr(c.IdleDelay, 100*time.Millisecond)
}

// GetCycleDelay returns the pause after each processed frame.
func (c *Config) GetCycleDelay() time.Duration {
	return durationOr(c.CycleDelay, 10*time.Millisecond)
}

// GetStreamInterval returns the minimum delay between frames sent to one client.
func (c *Config) GetStreamInterval() time.Duration {
	return durationOr(c.StreamInterval, 50*time.Millisecond)
}

// GetStreamWait returns the poll interval while a client waits for a first frame.
func (c *Config) GetStreamWait() time.Duration {
	return durationOr(c.StreamWait, 100*time.Millisecond)
}

// GetHistorySize returns how many per-second samples the chart ring keeps.
func (c *Config) GetHistorySize() int {
	if c.HistorySize == nil {
		return 300
	}
	return *c.HistorySize
}

// GetMQTTBroker returns the broker host:port, empty when MQTT is disabled.
func (c *Config) GetMQTTBroker() string {
	if c.MQTTBroker == nil {
		return ""
	}
	return *c.MQTTBroker
}

// GetMQTTTopic returns the statistics topic.
func (c *Config) GetMQTTTopic() string {
	if c.MQTTTopic == nil || *c.MQTTTopic == "" {
		return "tagview/stats"
	}
	return *c.MQTTTopic
}

// GetMQTTFormat returns the statistics payload encoding.
func (c *Config) GetMQTTFormat() string {
	if c.MQTTFormat == nil {
		return FormatJSON
	}
	return *c.MQTTFormat
}
