// Package pdf extracts text from route PDFs and parses stop rows out of it.
package pdf

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/nearest-stops/stopsync/internal/config"
)

// Extractor extracts the concatenated plain text of all pages of a PDF.
type Extractor interface {
	ExtractText(ctx context.Context, data []byte) (string, error)
}

// NewExtractor creates an Extractor based on config.
func NewExtractor(cfg config.PDFConfig) (Extractor, error) {
	switch cfg.Provider {
	case "local", "":
		return &LocalExtractor{}, nil
	case "pdftotext":
		return NewPdfToText(cfg.PdfToTextPath), nil
	default:
		return nil, eris.Errorf("pdf: unknown provider %q", cfg.Provider)
	}
}

// LocalExtractor parses PDFs in-process. A page that fails to decode is
// skipped, consistent with the per-item error policy.
type LocalExtractor struct{}

// ExtractText returns the text of every page joined by newlines.
func (l *LocalExtractor) ExtractText(_ context.Context, data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", eris.Wrap(err, "pdf: open document")
	}

	var pages []string
	for i := 1; i <= reader.NumPage(); i++ {
		p := reader.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			zap.L().Debug("pdf: page text extraction failed",
				zap.Int("page", i),
				zap.Error(err),
			)
			continue
		}
		pages = append(pages, text)
	}
	return strings.Join(pages, "\n"), nil
}

// PdfToText extracts text using the pdftotext CLI tool.
type PdfToText struct {
	binPath string
}

// NewPdfToText creates a PdfToText extractor. An empty binPath means
// "pdftotext" from PATH.
func NewPdfToText(binPath string) *PdfToText {
	if binPath == "" {
		binPath = "pdftotext"
	}
	return &PdfToText{binPath: binPath}
}

// ExtractText runs pdftotext -layout over the document and returns stdout.
func (p *PdfToText) ExtractText(ctx context.Context, data []byte) (string, error) {
	tmp, err := os.CreateTemp("", "stopsync-*.pdf")
	if err != nil {
		return "", eris.Wrap(err, "pdf: create temp file")
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", eris.Wrap(err, "pdf: write temp file")
	}
	if err := tmp.Close(); err != nil {
		return "", eris.Wrap(err, "pdf: close temp file")
	}

	cmd := exec.CommandContext(ctx, p.binPath, "-layout", tmp.Name(), "-")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", eris.Wrapf(err, "pdf: pdftotext failed: %s", stderr.String())
	}
	return stdout.String(), nil
}
