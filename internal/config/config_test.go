package config

import (
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmptyConfigDefaults(t *testing.T) {
	cfg := Empty()

	assert.Equal(t, CameraSynthetic, cfg.GetCamera())
	assert.Equal(t, "/dev/video0", cfg.GetDevice())
	assert.Equal(t, 800, cfg.GetWidth())
	assert.Equal(t, 600, cfg.GetHeight())
	assert.Equal(t, 2*time.Second, cfg.GetWarmup())
	assert.Equal(t, "tag36h11", cfg.GetTagFamily())
	assert.Equal(t, 0.02, cfg.GetTagSize())
	assert.True(t, cfg.GetPoseEnabled())
	assert.Equal(t, "", cfg.GetProfile())

	fx, fy, cx, cy := cfg.GetIntrinsics()
	assert.Equal(t, 2800.0, fx)
	assert.Equal(t, 2800.0, fy)
	assert.Equal(t, 648.0, cx)
	assert.Equal(t, 486.0, cy)

	assert.Equal(t, color.RGBA{R: 255, G: 165, B: 0, A: 255}, cfg.GetTagColor())
	assert.Equal(t, color.RGBA{R: 255, G: 255, B: 0, A: 255}, cfg.GetTextColor())
	assert.Equal(t, 80, cfg.GetJPEGQuality())
	assert.Equal(t, 100*time.Millisecond, cfg.GetIdleDelay())
	assert.Equal(t, 10*time.Millisecond, cfg.GetCycleDelay())
	assert.Equal(t, 50*time.Millisecond, cfg.GetStreamInterval())
	assert.Equal(t, 100*time.Millisecond, cfg.GetStreamWait())
	assert.Equal(t, 300, cfg.GetHistorySize())
	assert.Equal(t, "", cfg.GetMQTTBroker())
	assert.Equal(t, "tagview/stats", cfg.GetMQTTTopic())
	assert.Equal(t, FormatJSON, cfg.GetMQTTFormat())

	require.NoError(t, cfg.Validate())
}

func TestLoadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tagview.json")
	content := `{
  "camera": "gst",
  "width": 640,
  "height": 640,
  "tag_size": 0.05,
  "pose_enabled": false,
  "tag_color": "#00ff00",
  "cycle_delay": "25ms"
}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, CameraGStreamer, cfg.GetCamera())
	assert.Equal(t, 640, cfg.GetWidth())
	assert.Equal(t, 640, cfg.GetHeight())
	assert.Equal(t, 0.05, cfg.GetTagSize())
	assert.False(t, cfg.GetPoseEnabled())
	assert.Equal(t, color.RGBA{G: 255, A: 255}, cfg.GetTagColor())
	assert.Equal(t, 25*time.Millisecond, cfg.GetCycleDelay())
	// Omitted fields keep defaults.
	assert.Equal(t, "tag36h11", cfg.GetTagFamily())
	assert.Equal(t, 80, cfg.GetJPEGQuality())
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tagview.yaml")
	content := `
camera: opencv
device: "0"
tag_family: tag25h9
fx: 1000
fy: 1001
cx: 320
cy: 240
mqtt_broker: localhost:1883
mqtt_format: msgpack
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, CameraOpenCV, cfg.GetCamera())
	assert.Equal(t, "0", cfg.GetDevice())
	assert.Equal(t, "tag25h9", cfg.GetTagFamily())
	fx, fy, cx, cy := cfg.GetIntrinsics()
	assert.Equal(t, []float64{1000, 1001, 320, 240}, []float64{fx, fy, cx, cy})
	assert.Equal(t, "localhost:1883", cfg.GetMQTTBroker())
	assert.Equal(t, FormatMsgpack, cfg.GetMQTTFormat())
}

func TestLoadDefaultsFile(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config", "tagview.defaults.json"))
	require.NoError(t, err)

	empty := Empty()
	assert.Equal(t, empty.GetWidth(), cfg.GetWidth())
	assert.Equal(t, empty.GetTagSize(), cfg.GetTagSize())
	assert.Equal(t, empty.GetTagColor(), cfg.GetTagColor())
	assert.Equal(t, empty.GetStreamInterval(), cfg.GetStreamInterval())
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	t.Run("bad extension", func(t *testing.T) {
		path := filepath.Join(dir, "cfg.txt")
		require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))
		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "extension")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(dir, "nope.json"))
		require.Error(t, err)
	})

	t.Run("too large", func(t *testing.T) {
		path := filepath.Join(dir, "big.json")
		big := `{"device": "` + strings.Repeat("x", 1024*1024) + `"}`
		require.NoError(t, os.WriteFile(path, []byte(big), 0o644))
		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "too large")
	})

	t.Run("malformed", func(t *testing.T) {
		path := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))
		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parse")
	})

	t.Run("invalid value", func(t *testing.T) {
		path := filepath.Join(dir, "invalid.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"width": -1}`), 0o644))
		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid configuration")
	})
}

func TestValidate(t *testing.T) {
	str := func(s string) *string { return &s }
	num := func(n int) *int { return &n }
	flt := func(f float64) *float64 { return &f }

	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"unknown camera", Config{Camera: str("webcam")}, "camera must be"},
		{"zero height", Config{Height: num(0)}, "height"},
		{"unknown family", Config{TagFamily: str("tag99h1")}, "tag_family"},
		{"zero tag size", Config{TagSize: flt(0)}, "tag_size"},
		{"negative fx", Config{Fx: flt(-1)}, "fx"},
		{"bad tag color", Config{TagColor: str("orange")}, "tag_color"},
		{"bad text color", Config{TextColor: str("#12345g")}, "text_color"},
		{"jpeg quality high", Config{JPEGQuality: num(101)}, "jpeg_quality"},
		{"bad duration", Config{CycleDelay: str("soon")}, "cycle_delay"},
		{"negative duration", Config{IdleDelay: str("-1s")}, "idle_delay"},
		{"zero cycle delay", Config{CycleDelay: str("0s")}, "cycle_delay must be positive"},
		{"zero stream interval", Config{StreamInterval: str("0s")}, "stream_interval must be positive"},
		{"history size", Config{HistorySize: num(0)}, "history_size"},
		{"mqtt format", Config{MQTTFormat: str("xml")}, "mqtt_format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	// A zero warm-up only skips the pause.
	assert.NoError(t, (&Config{Warmup: str("0s")}).Validate())
}

func TestParseColor(t *testing.T) {
	c, err := ParseColor("#FFA500")
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{R: 255, G: 165, B: 0, A: 255}, c)

	c, err = ParseColor("0000ff")
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{B: 255, A: 255}, c)

	_, err = ParseColor("#fff")
	assert.Error(t, err)
}
