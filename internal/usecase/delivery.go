package usecase

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"

	"HSEWrapped/internal/apperr"
	"HSEWrapped/internal/domain"
	"HSEWrapped/internal/logging"
	"HSEWrapped/internal/metrics"
	"HSEWrapped/internal/ports"
	"HSEWrapped/internal/slides"
)

// ArtifactPattern matches every file the delivery coordinator writes.
const ArtifactPattern = "stats-*.png"

// ArtifactName is the file name of one slide of one request.
func ArtifactName(kind slides.Kind, requestID string) string {
	return fmt.Sprintf("stats-%s-%s.png", kind, requestID)
}

// DeliveryDeps wires the rendering and messaging adapters.
type DeliveryDeps struct {
	Catalog   *slides.Catalog
	Renderer  ports.Renderer
	Messenger ports.Messenger
	OutputDir string
	Logger    *slog.Logger
}

// Delivery renders the slide plan for a report and sends it with a per-photo
// fallback. It owns every artifact it creates and removes them on return.
type Delivery struct {
	catalog   *slides.Catalog
	renderer  ports.Renderer
	messenger ports.Messenger
	outputDir string
	logger    *slog.Logger
}

// NewDelivery constructs the coordinator; a nil catalog means slides.Default.
func NewDelivery(deps DeliveryDeps) *Delivery {
	catalog := deps.Catalog
	if catalog == nil {
		catalog = slides.Default()
	}
	return &Delivery{
		catalog:   catalog,
		renderer:  deps.Renderer,
		messenger: deps.Messenger,
		outputDir: deps.OutputDir,
		logger:    deps.Logger,
	}
}

// Deliver returns the number of images the chat received. onStage, if set, is
// called when rendering and delivering start.
func (d *Delivery) Deliver(ctx context.Context, chatID int64, report domain.Report, requestID string, onStage func(State)) (int, error) {
	const op = "delivery.Deliver"
	log := logging.FromContext(ctx, d.logger)

	var artifacts []string
	defer func() {
		if err := removeArtifacts(artifacts); err != nil {
			log.Error("artifact cleanup failed", "err", err)
		}
	}()

	notify(onStage, StateRendering)
	for _, slide := range d.catalog.Plan(report) {
		path := filepath.Join(d.outputDir, ArtifactName(slide.Kind(), requestID))
		// tracked before rendering so a partially written file is removed too
		artifacts = append(artifacts, path)

		if err := d.renderer.Render(ctx, slide, path); err != nil {
			if apperr.KindOf(err) == apperr.Unknown {
				err = apperr.E(op, apperr.Render, err)
			}
			return 0, err
		}
		metrics.RecordSlide(string(slide.Kind()))
	}
	if len(artifacts) == 0 {
		return 0, apperr.E(op, apperr.Render, errors.New("empty slide plan"))
	}

	notify(onStage, StateDelivering)
	batchErr := d.messenger.SendMediaGroup(ctx, chatID, artifacts, MediaCaption)
	metrics.RecordDelivery("batch", batchErr == nil)
	if batchErr == nil {
		return len(artifacts), nil
	}
	log.Warn("media group failed, sending photos one by one", "err", batchErr)

	sent := 0
	for _, path := range artifacts {
		if ctx.Err() != nil {
			break
		}
		err := d.messenger.SendPhoto(ctx, chatID, path)
		metrics.RecordDelivery("single", err == nil)
		if err != nil {
			log.Warn("photo send failed", "file", filepath.Base(path), "err", err)
			continue
		}
		sent++
	}

	if sent == 0 {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, apperr.E(op, apperr.Delivery, ctxErr)
		}
		return 0, apperr.E(op, apperr.Delivery, fmt.Errorf("media group and all %d single sends failed: %w", len(artifacts), batchErr))
	}
	return sent, nil
}

func notify(onStage func(State), s State) {
	if onStage != nil {
		onStage(s)
	}
}

func removeArtifacts(paths []string) error {
	var result *multierror.Error
	for _, path := range paths {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
