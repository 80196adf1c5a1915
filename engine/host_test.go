package engine

import (
	"bytes"
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

// testWeights fabricates a complete weight cache layout under a temp dir.
func testWeights(t *testing.T) WeightsConfig {
	t.Helper()
	root := t.TempDir()

	cfg := WeightsConfig{
		BaseDir:       filepath.Join(root, "weights"),
		InpaintDir:    filepath.Join(root, "inpaint-cache"),
		ControlNetDir: filepath.Join(root, "controlnet-cache"),
		ESRGANx2:      filepath.Join(root, "weights", "RealESRGAN_x2.pth"),
		ESRGANx4:      filepath.Join(root, "weights", "RealESRGAN_x4.pth"),
	}

	for _, dir := range []string{cfg.BaseDir, cfg.InpaintDir, cfg.ControlNetDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}
	for _, file := range []string{cfg.ESRGANx2, cfg.ESRGANx4} {
		if err := os.WriteFile(file, []byte("weights"), 0644); err != nil {
			t.Fatalf("write %s: %v", file, err)
		}
	}

	return cfg
}

func testHost(t *testing.T) *Host {
	t.Helper()
	h, err := LoadHost(HostConfig{Weights: testWeights(t)})
	if err != nil {
		t.Fatalf("load host: %v", err)
	}
	t.Cleanup(func() { h.Close() })
	return h
}

func solidImage(w, h int, r, g, b uint8) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = r
		img.Pix[i+1] = g
		img.Pix[i+2] = b
		img.Pix[i+3] = 255
	}
	return img
}

// halfMask is white on the left half, black on the right.
func halfMask(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(0)
			if x < w/2 {
				v = 255
			}
			i := img.PixOffset(x, y)
			img.Pix[i] = v
			img.Pix[i+1] = v
			img.Pix[i+2] = v
			img.Pix[i+3] = 255
		}
	}
	return img
}

func refineArgs(img *image.RGBA, seed int64) RunArgs {
	return RunArgs{
		Mode:              ModeRefine,
		Prompt:            "a red bicycle",
		Image:             img,
		ControlImage:      img,
		Strength:          0.25,
		ConditioningScale: 0.75,
		GuidanceScale:     7.0,
		Steps:             20,
		Seed:              seed,
		Schedule:          Schedule{Algorithm: "DDIM", Config: DefaultScheduleConfig()},
	}
}

func TestLoadHost_Success(t *testing.T) {
	h := testHost(t)
	if h.ScheduleConfig() != DefaultScheduleConfig() {
		t.Error("expected default schedule config on a fresh host")
	}
}

func TestLoadHost_MissingWeights(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*WeightsConfig)
	}{
		{"base pipeline", func(c *WeightsConfig) { c.BaseDir = filepath.Join(c.BaseDir, "nope") }},
		{"inpaint pipeline", func(c *WeightsConfig) { c.InpaintDir = filepath.Join(c.InpaintDir, "nope") }},
		{"controlnet", func(c *WeightsConfig) { c.ControlNetDir = filepath.Join(c.ControlNetDir, "nope") }},
		{"esrgan x2", func(c *WeightsConfig) { c.ESRGANx2 += ".missing" }},
		{"esrgan x4", func(c *WeightsConfig) { c.ESRGANx4 += ".missing" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testWeights(t)
			tt.mutate(&cfg)

			_, err := LoadHost(HostConfig{Weights: cfg})
			if !errors.Is(err, ErrSetup) {
				t.Errorf("expected ErrSetup, got: %v", err)
			}
		})
	}
}

func TestHostRun_Deterministic(t *testing.T) {
	h := testHost(t)
	img := solidImage(64, 64, 120, 90, 200)

	a, err := h.Run(context.Background(), refineArgs(img, 1234))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	b, err := h.Run(context.Background(), refineArgs(img, 1234))
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(a) != NumOutputs || len(b) != NumOutputs {
		t.Fatalf("expected %d outputs, got %d and %d", NumOutputs, len(a), len(b))
	}
	if !bytes.Equal(a[0].Pix, b[0].Pix) {
		t.Error("identical seed must produce identical output")
	}

	c, err := h.Run(context.Background(), refineArgs(img, 5678))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if bytes.Equal(a[0].Pix, c[0].Pix) {
		t.Error("different seeds should produce different output")
	}
}

func TestHostRun_InpaintRespectsMask(t *testing.T) {
	h := testHost(t)
	img := solidImage(32, 32, 10, 20, 30)

	args := refineArgs(img, 99)
	args.Mode = ModeInpaint
	args.Mask = halfMask(32, 32)
	args.Strength = 1.0

	out, err := h.Run(context.Background(), args)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	// Right half is outside the mask and must be untouched.
	for y := 0; y < 32; y++ {
		for x := 16; x < 32; x++ {
			i := out[0].PixOffset(x, y)
			if out[0].Pix[i] != 10 || out[0].Pix[i+1] != 20 || out[0].Pix[i+2] != 30 {
				t.Fatalf("pixel (%d,%d) outside mask was modified", x, y)
			}
		}
	}
}

func TestHostRun_ArgValidation(t *testing.T) {
	h := testHost(t)
	img := solidImage(16, 16, 0, 0, 0)

	inpaintNoMask := refineArgs(img, 1)
	inpaintNoMask.Mode = ModeInpaint

	refineWithMask := refineArgs(img, 1)
	refineWithMask.Mask = halfMask(16, 16)

	noImage := refineArgs(img, 1)
	noImage.Image = nil

	for _, tt := range []struct {
		name string
		args RunArgs
	}{
		{"inpaint without mask", inpaintNoMask},
		{"refine with mask", refineWithMask},
		{"missing image", noImage},
	} {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.Run(context.Background(), tt.args)
			if !errors.Is(err, ErrInvalidArgs) {
				t.Errorf("expected ErrInvalidArgs, got: %v", err)
			}
		})
	}
}

func TestHostRun_AfterClose(t *testing.T) {
	h := testHost(t)
	if err := h.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}

	_, err := h.Run(context.Background(), refineArgs(solidImage(8, 8, 0, 0, 0), 1))
	if !errors.Is(err, ErrHostClosed) {
		t.Errorf("expected ErrHostClosed, got: %v", err)
	}
}

func TestHostRun_CancelledContext(t *testing.T) {
	h := testHost(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.Run(ctx, refineArgs(solidImage(8, 8, 0, 0, 0), 1))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got: %v", err)
	}
}

func TestHostRun_ConcurrentCallers(t *testing.T) {
	h := testHost(t)
	img := solidImage(32, 32, 50, 60, 70)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			_, err := h.Run(context.Background(), refineArgs(img, seed))
			errs <- err
		}(int64(i))
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("concurrent run failed: %v", err)
		}
	}
}

func TestHostUpscale(t *testing.T) {
	h := testHost(t)
	img := solidImage(16, 12, 1, 2, 3)

	out, err := h.Upscale(context.Background(), img, 2)
	if err != nil {
		t.Fatalf("upscale: %v", err)
	}
	if out.Bounds().Dx() != 32 || out.Bounds().Dy() != 24 {
		t.Errorf("expected 32x24, got %dx%d", out.Bounds().Dx(), out.Bounds().Dy())
	}

	out4, err := h.Upscale(context.Background(), img, 4)
	if err != nil {
		t.Fatalf("4x upscale: %v", err)
	}
	if out4.Bounds().Dx() != 64 || out4.Bounds().Dy() != 48 {
		t.Errorf("expected 64x48, got %dx%d", out4.Bounds().Dx(), out4.Bounds().Dy())
	}

	_, err = h.Upscale(context.Background(), img, 3)
	if !errors.Is(err, ErrInvalidArgs) {
		t.Errorf("expected ErrInvalidArgs for 3x, got: %v", err)
	}
}
