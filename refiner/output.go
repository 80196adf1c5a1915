package refiner

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// newPredictionID assigns a unique ID to one request; output artifacts and
// history records share it.
func newPredictionID() string {
	return uuid.NewString()
}

// defaultOutputDir is where artifacts land when no output dir is configured.
func defaultOutputDir() string {
	return os.TempDir()
}

// writeOutputs persists each generated image as a PNG under dir and returns
// the paths in generation order. The prediction ID keeps paths distinct
// across requests; the index keeps them distinct within one.
func writeOutputs(dir, id string, images []*image.RGBA) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create output dir %s: %w", dir, err)
	}

	paths := make([]string, 0, len(images))
	for i, img := range images {
		path := filepath.Join(dir, fmt.Sprintf("out-%d-%s.png", i, id))

		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("create output %s: %w", path, err)
		}
		if err := png.Encode(f, img); err != nil {
			f.Close()
			return nil, fmt.Errorf("encode output %s: %w", path, err)
		}
		if err := f.Close(); err != nil {
			return nil, fmt.Errorf("close output %s: %w", path, err)
		}

		paths = append(paths, path)
	}

	return paths, nil
}
