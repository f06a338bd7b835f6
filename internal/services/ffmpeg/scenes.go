package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ExtractSceneFrames detects scene changes in input and writes the midpoint
// frame of every scene into outputDir as JPEGs named
// "<video>_scene_NNNN.jpg". Scene boundaries are the detected cut timestamps
// plus the container start and end; a cut-free video yields a single frame
// from its middle. Individual frame failures are skipped, but zero extracted
// frames is an error.
func (c *Client) ExtractSceneFrames(ctx context.Context, input, outputDir string) ([]string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create frame directory: %w", err)
	}

	duration, err := c.Duration(ctx, input)
	if err != nil {
		return nil, err
	}
	cuts, err := c.DetectScenes(ctx, input)
	if err != nil {
		return nil, err
	}

	midpoints := sceneMidpoints(cuts, duration)
	stem := sanitizeFrameName(strings.TrimSuffix(filepath.Base(input), filepath.Ext(input)))

	var frames []string
	for i, at := range midpoints {
		framePath := filepath.Join(outputDir, fmt.Sprintf("%s_scene_%04d.jpg", stem, i+1))
		if err := c.ExtractFrame(ctx, input, at, framePath); err != nil {
			if ctx.Err() != nil {
				return frames, err
			}
			continue
		}
		frames = append(frames, framePath)
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("no frames extracted from %s (%d scenes)", filepath.Base(input), len(midpoints))
	}
	return frames, nil
}

// sceneMidpoints converts cut timestamps into per-scene midpoint sample
// times over [0, duration].
func sceneMidpoints(cuts []float64, duration float64) []float64 {
	if duration <= 0 {
		return nil
	}
	bounds := make([]float64, 0, len(cuts)+2)
	bounds = append(bounds, 0)
	for _, cut := range cuts {
		if cut > 0 && cut < duration {
			bounds = append(bounds, cut)
		}
	}
	bounds = append(bounds, duration)

	midpoints := make([]float64, 0, len(bounds)-1)
	for i := 0; i < len(bounds)-1; i++ {
		start, end := bounds[i], bounds[i+1]
		if end <= start {
			continue
		}
		midpoints = append(midpoints, (start+end)/2)
	}
	return midpoints
}

func sanitizeFrameName(name string) string {
	replacer := strings.NewReplacer(
		"/", "_", "\\", "_", ":", "_", "*", "_", "?", "_",
		"\"", "_", "<", "_", ">", "_", "|", "_", " ", "_",
	)
	sanitized := strings.Trim(replacer.Replace(name), "_")
	if sanitized == "" {
		return "frame"
	}
	return sanitized
}
