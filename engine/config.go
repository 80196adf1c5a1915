package engine

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Default weight cache locations. A separate offline provisioning step
// populates these before the service starts.
const (
	DefaultBaseDir       = "weights"
	DefaultInpaintDir    = "inpaint-cache"
	DefaultControlNetDir = "controlnet-cache"
	DefaultESRGANx2Path  = "weights/RealESRGAN_x2.pth"
	DefaultESRGANx4Path  = "weights/RealESRGAN_x4.pth"
)

// WeightsConfig names the on-disk cache locations of every model the host
// loads at startup.
type WeightsConfig struct {
	// BaseDir holds the image-to-image refinement pipeline.
	BaseDir string `yaml:"base_dir"`
	// InpaintDir holds the inpainting pipeline.
	InpaintDir string `yaml:"inpaint_dir"`
	// ControlNetDir holds the conditioning sub-model shared by both
	// pipelines.
	ControlNetDir string `yaml:"controlnet_dir"`
	// ESRGANx2 and ESRGANx4 are the super-resolution weight files.
	ESRGANx2 string `yaml:"esrgan_x2"`
	ESRGANx4 string `yaml:"esrgan_x4"`
}

// DefaultWeightsConfig returns the well-known cache locations.
func DefaultWeightsConfig() WeightsConfig {
	return WeightsConfig{
		BaseDir:       DefaultBaseDir,
		InpaintDir:    DefaultInpaintDir,
		ControlNetDir: DefaultControlNetDir,
		ESRGANx2:      DefaultESRGANx2Path,
		ESRGANx4:      DefaultESRGANx4Path,
	}
}

// LoadWeightsConfig reads a YAML weights manifest. Fields the manifest
// leaves empty fall back to the defaults. An empty path returns the
// defaults outright.
func LoadWeightsConfig(manifestPath string) (WeightsConfig, error) {
	cfg := DefaultWeightsConfig()
	if manifestPath == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return cfg, fmt.Errorf("%w: read manifest %s: %v", ErrSetup, manifestPath, err)
	}

	var manifest WeightsConfig
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return cfg, fmt.Errorf("%w: parse manifest %s: %v", ErrSetup, manifestPath, err)
	}

	if manifest.BaseDir != "" {
		cfg.BaseDir = manifest.BaseDir
	}
	if manifest.InpaintDir != "" {
		cfg.InpaintDir = manifest.InpaintDir
	}
	if manifest.ControlNetDir != "" {
		cfg.ControlNetDir = manifest.ControlNetDir
	}
	if manifest.ESRGANx2 != "" {
		cfg.ESRGANx2 = manifest.ESRGANx2
	}
	if manifest.ESRGANx4 != "" {
		cfg.ESRGANx4 = manifest.ESRGANx4
	}

	return cfg, nil
}

// Paths returns every configured cache location, for startup validation.
func (c WeightsConfig) Paths() []string {
	return []string{c.BaseDir, c.InpaintDir, c.ControlNetDir, c.ESRGANx2, c.ESRGANx4}
}
