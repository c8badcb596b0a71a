package render

import (
	"bytes"
	"context"
	"embed"
	"encoding/base64"
	"fmt"
	"html/template"
	"os"
	"path/filepath"

	"github.com/chromedp/chromedp"

	"HSEWrapped/internal/apperr"
	"HSEWrapped/internal/config"
	"HSEWrapped/internal/infrastructure/browser"
	"HSEWrapped/internal/ports"
	"HSEWrapped/internal/slides"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// Bind executes the template named after the slide kind with the slide record.
func Bind(slide slides.Slide) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, string(slide.Kind()), slide); err != nil {
		return "", fmt.Errorf("execute %s template: %w", slide.Kind(), err)
	}
	return buf.String(), nil
}

// Renderer screenshots bound slides in a pooled browser tab.
type Renderer struct {
	pool   *browser.Pool
	width  int64
	height int64
	scale  float64
}

var _ ports.Renderer = (*Renderer)(nil)

// NewRenderer builds a renderer writing images with the configured geometry.
func NewRenderer(pool *browser.Pool, cfg config.RenderConfig) *Renderer {
	r := &Renderer{pool: pool, width: cfg.Width, height: cfg.Height, scale: cfg.Scale}
	if r.width <= 0 {
		r.width = 1080
	}
	if r.height <= 0 {
		r.height = 1920
	}
	if r.scale <= 0 {
		r.scale = 2
	}
	return r
}

// Render writes slide as a PNG to path.
func (r *Renderer) Render(ctx context.Context, slide slides.Slide, path string) error {
	const op = "render.Render"

	html, err := Bind(slide)
	if err != nil {
		return apperr.E(op, apperr.Render, err)
	}

	var image []byte
	err = r.pool.Run(ctx,
		chromedp.EmulateViewport(r.width, r.height, chromedp.EmulateScale(r.scale)),
		chromedp.Navigate(dataURL(html)),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.CaptureScreenshot(&image),
	)
	if err != nil {
		return apperr.E(op, apperr.Render, fmt.Errorf("capture %s slide: %w", slide.Kind(), err))
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return apperr.E(op, apperr.Render, fmt.Errorf("create output dir: %w", err))
	}
	if err := os.WriteFile(path, image, 0o644); err != nil {
		return apperr.E(op, apperr.Render, fmt.Errorf("write %s: %w", path, err))
	}
	return nil
}

func dataURL(html string) string {
	return "data:text/html;charset=utf-8;base64," + base64.StdEncoding.EncodeToString([]byte(html))
}
