package extract

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

type OCRConfig struct {
	Tesseract string
	Pdftoppm  string
	Lang      string
	DPI       int
	MaxPages  int
}

func (c OCRConfig) withDefaults() OCRConfig {
	if c.Tesseract == "" {
		c.Tesseract = "tesseract"
	}
	if c.Pdftoppm == "" {
		c.Pdftoppm = "pdftoppm"
	}
	if c.Lang == "" {
		c.Lang = "eng"
	}
	if c.DPI <= 0 {
		c.DPI = 200
	}
	return c
}

// Image runs tesseract over an uploaded picture.
type Image struct {
	cfg    OCRConfig
	runner Runner
}

func NewImage(cfg OCRConfig, runner Runner) *Image {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Image{cfg: cfg.withDefaults(), runner: runner}
}

func (im *Image) Extract(ctx context.Context, src Source) Result {
	md := Metadata{"type": string(KindImage), "method": "tesseract_ocr", "confidence": 0.0}

	dir, err := os.MkdirTemp("", "intentflow-img-*")
	if err != nil {
		return failed(md, err)
	}
	defer os.RemoveAll(dir)

	ext := strings.ToLower(filepath.Ext(src.Filename))
	if ext == "" {
		ext = ".png"
	}
	path := filepath.Join(dir, "input"+ext)
	if err := os.WriteFile(path, src.Data, 0o600); err != nil {
		return failed(md, err)
	}

	text, err := tesseract(ctx, im.runner, im.cfg, path)
	if err != nil {
		return failed(md, err)
	}

	// Confidence is best effort: a TSV failure still leaves usable text.
	if tsv, _, err := im.runner.Run(ctx, im.cfg.Tesseract, path, "stdout", "-l", im.cfg.Lang, "tsv"); err == nil {
		md["confidence"] = meanConfidence(string(tsv))
	}
	return Result{Text: text, Success: true, Metadata: md}
}

func tesseract(ctx context.Context, runner Runner, cfg OCRConfig, path string) (string, error) {
	out, errb, err := runner.Run(ctx, cfg.Tesseract, path, "stdout", "-l", cfg.Lang)
	if err != nil {
		return "", fmt.Errorf("tesseract failed: %w: %s", err, strings.TrimSpace(string(errb)))
	}
	return strings.TrimSpace(string(out)), nil
}

// meanConfidence averages the word-level conf column of tesseract TSV
// output, skipping the -1 rows tesseract emits for layout blocks.
func meanConfidence(tsv string) float64 {
	lines := strings.Split(tsv, "\n")
	if len(lines) < 2 {
		return 0
	}
	confCol := -1
	for i, h := range strings.Split(strings.TrimSpace(lines[0]), "\t") {
		if h == "conf" {
			confCol = i
		}
	}
	if confCol < 0 {
		return 0
	}
	var sum float64
	var n int
	for _, line := range lines[1:] {
		cols := strings.Split(line, "\t")
		if len(cols) <= confCol {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(cols[confCol]), 64)
		if err != nil || v < 0 {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return 0
	}
	return math.Round(sum/float64(n)*100) / 100
}
