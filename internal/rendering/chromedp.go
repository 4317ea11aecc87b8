package rendering

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/jonathan/cv-tailor/internal/types"
)

// Renderer produces PDF bytes for a CV.
type Renderer interface {
	RenderPDF(ctx context.Context, cv *types.CV, language string) ([]byte, error)
}

// ChromeRenderer renders CVs to A4 PDFs with headless Chrome.
type ChromeRenderer struct {
	execPath string
	logger   *slog.Logger
}

var _ Renderer = (*ChromeRenderer)(nil)

// NewChromeRenderer creates a renderer. An empty execPath lets chromedp find
// Chrome on PATH.
func NewChromeRenderer(execPath string, logger *slog.Logger) *ChromeRenderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChromeRenderer{execPath: execPath, logger: logger}
}

// RenderPDF renders the CV to PDF. The caller bounds the call with ctx.
func (r *ChromeRenderer) RenderPDF(ctx context.Context, cv *types.CV, language string) ([]byte, error) {
	html, err := RenderHTML(cv, language)
	if err != nil {
		return nil, err
	}
	return r.htmlToPDF(ctx, html)
}

func (r *ChromeRenderer) htmlToPDF(ctx context.Context, html string) ([]byte, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if r.execPath != "" {
		opts = append(opts, chromedp.ExecPath(r.execPath))
	}

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, opts...)
	defer cancel()

	cctx, cancelCtx := chromedp.NewContext(allocCtx)
	defer cancelCtx()

	tmpDir, err := os.MkdirTemp("", "cv-render-")
	if err != nil {
		return nil, &RenderError{Message: "failed to create temp dir", Cause: err}
	}
	defer os.RemoveAll(tmpDir)

	htmlPath := filepath.Join(tmpDir, "index.html")
	if err := os.WriteFile(htmlPath, []byte(html), 0o600); err != nil {
		return nil, &RenderError{Message: "failed to write html", Cause: err}
	}

	start := time.Now()
	var pdf []byte
	err = chromedp.Run(cctx,
		chromedp.Navigate("file://"+htmlPath),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			// A4: 210mm x 297mm -> 8.27in x 11.69in
			pdf, _, err = page.PrintToPDF().
				WithPrintBackground(true).
				WithPaperWidth(8.27).
				WithPaperHeight(11.69).
				WithPreferCSSPageSize(true).
				Do(ctx)
			return err
		}),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &RenderError{Message: "chrome failed to print", Cause: err}
	}
	r.logger.Debug("pdf rendered", "bytes", len(pdf), "duration", time.Since(start))
	return pdf, nil
}
