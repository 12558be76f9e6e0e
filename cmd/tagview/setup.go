package main

import (
	"fmt"
	"time"

	"github.com/banshee-data/tagview/internal/camera"
	"github.com/banshee-data/tagview/internal/camera/cvcam"
	"github.com/banshee-data/tagview/internal/camera/gstcam"
	"github.com/banshee-data/tagview/internal/config"
	"github.com/banshee-data/tagview/internal/db"
	"github.com/banshee-data/tagview/internal/detect"
	"github.com/banshee-data/tagview/internal/detect/cvdetect"
	"github.com/banshee-data/tagview/internal/tag"
)

// cameraKind picks the camera backend; dev mode always uses the synthetic
// scene.
func cameraKind(cfg *config.Config, dev bool) string {
	if dev {
		return config.CameraSynthetic
	}
	return cfg.GetCamera()
}

// resolveIntrinsics returns the configured intrinsics, or those of the named
// database profile scaled to the capture size. profile is the name used.
func resolveIntrinsics(cfg *config.Config, database *db.DB) (intr tag.Intrinsics, profile string, err error) {
	name := cfg.GetProfile()
	if name == "" {
		fx, fy, cx, cy := cfg.GetIntrinsics()
		return tag.Intrinsics{Fx: fx, Fy: fy, Cx: cx, Cy: cy}, "config", nil
	}
	if database == nil {
		return tag.Intrinsics{}, "", fmt.Errorf("profile %q requested but no database is open", name)
	}
	p, err := database.GetProfile(name)
	if err != nil {
		return tag.Intrinsics{}, "", err
	}
	return p.Intrinsics(cfg.GetWidth(), cfg.GetHeight()), name, nil
}

func newCamera(kind string, cfg *config.Config, intr tag.Intrinsics) (camera.Source, error) {
	switch kind {
	case config.CameraSynthetic:
		return camera.NewSynthetic(camera.SyntheticOptions{
			Width:         cfg.GetWidth(),
			Height:        cfg.GetHeight(),
			Intrinsics:    intr,
			TagSize:       cfg.GetTagSize(),
			FrameInterval: 33 * time.Millisecond,
		}), nil
	case config.CameraGStreamer:
		return gstcam.New(cfg.GetDevice(), cfg.GetWidth(), cfg.GetHeight()), nil
	case config.CameraOpenCV:
		return cvcam.New(cfg.GetDevice(), cfg.GetWidth(), cfg.GetHeight()), nil
	default:
		return nil, fmt.Errorf("unknown camera %q", kind)
	}
}

// newDetector pairs the synthetic camera with the synthetic detector and
// every real camera with the OpenCV backend.
func newDetector(kind string, cfg *config.Config) (*detect.Adapter, error) {
	if kind == config.CameraSynthetic {
		return detect.NewAdapter(detect.NewSynthetic()), nil
	}
	d, err := cvdetect.New(cfg.GetTagFamily())
	if err != nil {
		return nil, err
	}
	return detect.NewAdapter(d), nil
}
