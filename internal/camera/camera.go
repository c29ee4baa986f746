// Package camera captures still JPEG frames from a Raspberry Pi camera
// (via libcamera-still) or a V4L2 MJPEG source (via ffmpeg), mirroring
// scout-vision/src/camera.rs. Shelling out to the platform's existing
// camera tooling keeps this module free of cgo/V4L2 bindings, matching
// the original's own stated rationale for using subprocesses.
package camera

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"time"
)

// Config describes how to reach the onboard camera.
type Config struct {
	Mode    string // "libcamera-jpeg" | "v4l2-mjpeg"
	Device  string // /dev/video0, only used for v4l2-mjpeg
	Width   uint32
	Height  uint32
	FPS     uint32
	Timeout time.Duration
}

// CaptureJPEG captures a single JPEG frame per cfg.Mode.
func CaptureJPEG(ctx context.Context, cfg Config) ([]byte, error) {
	switch cfg.Mode {
	case "libcamera-jpeg":
		return captureLibcamera(ctx, cfg)
	case "v4l2-mjpeg":
		return captureV4L2FFmpeg(ctx, cfg)
	default:
		return nil, fmt.Errorf("camera: unknown camera.mode %q", cfg.Mode)
	}
}

func captureLibcamera(ctx context.Context, cfg Config) ([]byte, error) {
	args := []string{
		"-n",
		"-t", "1",
		"--width", strconv.Itoa(int(cfg.Width)),
		"--height", strconv.Itoa(int(cfg.Height)),
		"-o", "-",
	}
	return runCapture(ctx, cfg, "libcamera-still", args)
}

func captureV4L2FFmpeg(ctx context.Context, cfg Config) ([]byte, error) {
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "video4linux2",
		"-input_format", "mjpeg",
		"-video_size", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"-i", cfg.Device,
		"-vframes", "1",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-",
	}
	return runCapture(ctx, cfg, "ffmpeg", args)
}

func runCapture(ctx context.Context, cfg Config, name string, args []string) ([]byte, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("camera: %s failed: %w (stderr: %s)", name, err, stderr.String())
	}
	return stdout.Bytes(), nil
}
