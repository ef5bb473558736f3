package extract

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"

	"intentflow/internal/logger"
)

// minTextLayer is how much text a PDF's own text layer must yield before
// OCR is skipped.
const minTextLayer = 50

type PDF struct {
	cfg    OCRConfig
	runner Runner
	log    logger.Logger
}

func NewPDF(cfg OCRConfig, runner Runner, log logger.Logger) *PDF {
	if runner == nil {
		runner = ExecRunner{Log: log}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &PDF{cfg: cfg.withDefaults(), runner: runner, log: log}
}

func (p *PDF) Extract(ctx context.Context, src Source) Result {
	text, pages, err := textLayer(src.Data)
	if err != nil {
		p.log.Warn("extract.pdf.text_layer_failed", "error", err)
	}
	if err == nil && len(strings.TrimSpace(text)) > minTextLayer {
		return Result{
			Text:     strings.TrimSpace(text),
			Success:  true,
			Metadata: Metadata{"type": string(KindPDF), "method": "text_extraction", "pages": pages},
		}
	}

	p.log.Info("extract.pdf.ocr_fallback", "text_layer_chars", len(strings.TrimSpace(text)))
	ocrText, ocrPages, ocrErr := p.ocr(ctx, src.Data)
	if ocrErr != nil {
		return failed(Metadata{"type": string(KindPDF), "method": "failed", "pages": 0}, ocrErr)
	}
	return Result{
		Text:     ocrText,
		Success:  true,
		Metadata: Metadata{"type": string(KindPDF), "method": "ocr_fallback", "pages": ocrPages},
	}
}

func textLayer(data []byte) (text string, pages int, err error) {
	defer func() {
		// the parser panics on some malformed xref tables
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf parse panic: %v", r)
		}
	}()
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", 0, fmt.Errorf("open pdf: %w", err)
	}
	pages = reader.NumPage()
	var b strings.Builder
	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			return "", pages, fmt.Errorf("page %d: %w", i, err)
		}
		b.WriteString(content)
		b.WriteString("\n")
	}
	return b.String(), pages, nil
}

func (p *PDF) ocr(ctx context.Context, data []byte) (string, int, error) {
	dir, err := os.MkdirTemp("", "intentflow-pdf-*")
	if err != nil {
		return "", 0, err
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "input.pdf")
	if err := os.WriteFile(in, data, 0o600); err != nil {
		return "", 0, err
	}
	prefix := filepath.Join(dir, "page")
	args := []string{"-r", strconv.Itoa(p.cfg.DPI), "-png"}
	if p.cfg.MaxPages > 0 {
		args = append(args, "-l", strconv.Itoa(p.cfg.MaxPages))
	}
	args = append(args, in, prefix)
	if _, errb, err := p.runner.Run(ctx, p.cfg.Pdftoppm, args...); err != nil {
		return "", 0, fmt.Errorf("pdftoppm failed: %w: %s", err, strings.TrimSpace(string(errb)))
	}

	images, err := filepath.Glob(prefix + "-*.png")
	if err != nil {
		return "", 0, err
	}
	sort.Strings(images)
	if len(images) == 0 {
		return "", 0, fmt.Errorf("pdftoppm produced no pages")
	}

	var b strings.Builder
	for i, img := range images {
		p.log.Debug("extract.pdf.ocr_page", "page", i+1, "total", len(images))
		text, err := tesseract(ctx, p.runner, p.cfg, img)
		if err != nil {
			return "", 0, err
		}
		b.WriteString(text)
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String()), len(images), nil
}
