package webp_test

import (
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"anipipe/internal/services"
	"anipipe/internal/services/webp"
)

type fakeExecutor struct {
	calls  [][]string
	handle func(args []string) (string, error)
}

func (f *fakeExecutor) Run(ctx context.Context, binary string, args []string) (string, error) {
	f.calls = append(f.calls, append([]string{binary}, args...))
	if f.handle != nil {
		return f.handle(args)
	}
	return "", nil
}

func writePNG(t *testing.T, path string, width, height int) {
	t.Helper()
	file, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer file.Close()
	if err := png.Encode(file, image.NewGray(image.Rect(0, 0, width, height))); err != nil {
		t.Fatal(err)
	}
}

func newConverter(t *testing.T, exec *fakeExecutor) *webp.Converter {
	t.Helper()
	converter, err := webp.New(webp.Config{Quality: 90, MaxEdge: 2048}, webp.WithExecutor(exec))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return converter
}

func succeedByWritingOutput(args []string) (string, error) {
	for i, arg := range args {
		if arg == "-o" && i+1 < len(args) {
			os.WriteFile(args[i+1], []byte("webp"), 0o644)
		}
	}
	return "", nil
}

func TestNewValidatesQuality(t *testing.T) {
	if _, err := webp.New(webp.Config{Quality: 0}); err == nil {
		t.Fatal("expected error for quality 0")
	}
	if _, err := webp.New(webp.Config{Quality: 101}); err == nil {
		t.Fatal("expected error for quality 101")
	}
}

func TestConvertSmallImageNoResize(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "frame.png")
	writePNG(t, input, 1280, 720)

	exec := &fakeExecutor{handle: succeedByWritingOutput}
	converter := newConverter(t, exec)

	output := filepath.Join(dir, "frame.webp")
	if err := converter.Convert(context.Background(), input, output); err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	joined := strings.Join(exec.calls[0], " ")
	if !strings.Contains(joined, "-q 90") {
		t.Fatalf("quality missing: %s", joined)
	}
	if strings.Contains(joined, "-resize") {
		t.Fatalf("small image should not be resized: %s", joined)
	}
}

func TestConvertLargeImageResizesToMaxEdge(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "frame.png")
	writePNG(t, input, 4096, 1024)

	exec := &fakeExecutor{handle: succeedByWritingOutput}
	converter := newConverter(t, exec)

	if err := converter.Convert(context.Background(), input, filepath.Join(dir, "frame.webp")); err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	joined := strings.Join(exec.calls[0], " ")
	if !strings.Contains(joined, "-resize 2048 512") {
		t.Fatalf("expected aspect-preserving resize: %s", joined)
	}
}

func TestConvertTallImageResizesHeight(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "frame.png")
	writePNG(t, input, 1024, 4096)

	exec := &fakeExecutor{handle: succeedByWritingOutput}
	converter := newConverter(t, exec)

	if err := converter.Convert(context.Background(), input, filepath.Join(dir, "frame.webp")); err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if !strings.Contains(strings.Join(exec.calls[0], " "), "-resize 512 2048") {
		t.Fatalf("expected height-bound resize: %v", exec.calls[0])
	}
}

func TestConvertEmptyOutputFails(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "frame.png")
	writePNG(t, input, 100, 100)

	exec := &fakeExecutor{handle: func(args []string) (string, error) {
		for i, arg := range args {
			if arg == "-o" {
				os.WriteFile(args[i+1], nil, 0o644)
			}
		}
		return "", nil
	}}
	converter := newConverter(t, exec)

	err := converter.Convert(context.Background(), input, filepath.Join(dir, "frame.webp"))
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}

func TestConvertAllSkipsFailuresButNotAll(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.png")
	bad := filepath.Join(dir, "bad.png")
	writePNG(t, good, 100, 100)
	writePNG(t, bad, 100, 100)

	exec := &fakeExecutor{handle: func(args []string) (string, error) {
		for _, arg := range args {
			if strings.HasSuffix(arg, "bad.png") {
				return "corrupt input", errors.New("exit status 1")
			}
		}
		return succeedByWritingOutput(args)
	}}
	converter := newConverter(t, exec)

	outDir := filepath.Join(dir, "webp")
	converted, err := converter.ConvertAll(context.Background(), []string{good, bad}, outDir)
	if err != nil {
		t.Fatalf("ConvertAll failed: %v", err)
	}
	if len(converted) != 1 || filepath.Base(converted[0]) != "good.webp" {
		t.Fatalf("unexpected conversions: %v", converted)
	}
}

func TestConvertAllTotalFailureIsError(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "frame.png")
	writePNG(t, input, 100, 100)

	exec := &fakeExecutor{handle: func(args []string) (string, error) {
		return "", errors.New("exit status 1")
	}}
	converter := newConverter(t, exec)

	if _, err := converter.ConvertAll(context.Background(), []string{input}, filepath.Join(dir, "webp")); err == nil {
		t.Fatal("expected error when nothing converts")
	}
}
