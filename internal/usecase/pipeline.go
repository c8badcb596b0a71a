package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"HSEWrapped/internal/admission"
	"HSEWrapped/internal/apperr"
	"HSEWrapped/internal/domain"
	"HSEWrapped/internal/logging"
	"HSEWrapped/internal/metrics"
	"HSEWrapped/internal/ports"
)

// PipelineDeps wires all driven adapters into the request pipeline.
type PipelineDeps struct {
	Admission      *admission.Controller
	Source         ports.PortfolioSource
	Delivery       *Delivery
	Messenger      ports.Messenger
	Usage          ports.UsageRecorder
	Logger         *slog.Logger
	RequestTimeout time.Duration
	Clock          func() time.Time
}

// Pipeline implements the portfolio request workflow:
// admission, aggregation, statistics, rendering and delivery.
type Pipeline struct {
	admission *admission.Controller
	source    ports.PortfolioSource
	delivery  *Delivery
	messenger ports.Messenger
	usage     ports.UsageRecorder
	logger    *slog.Logger
	timeout   time.Duration
	clock     func() time.Time
}

// Result describes how one request ended.
type Result struct {
	RequestID string
	State     State
	Images    int
	Report    *domain.Report
	Err       error
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		admission: deps.Admission,
		source:    deps.Source,
		delivery:  deps.Delivery,
		messenger: deps.Messenger,
		usage:     deps.Usage,
		logger:    logger,
		timeout:   deps.RequestTimeout,
		clock:     clock,
	}
}

// Analyze aggregates the subject's portfolio and computes its report.
func (p *Pipeline) Analyze(ctx context.Context, subject domain.Subject) (domain.Report, error) {
	items, err := p.source.Aggregate(ctx, subject)
	if err != nil {
		return domain.Report{}, err
	}
	return BuildReport(subject, items, p.clock())
}

// Handle runs one admitted request end to end and tells the caller how it
// went. The admission slot is released on every return path, and earlier if
// the request deadline passes.
func (p *Pipeline) Handle(ctx context.Context, caller domain.Caller, subject domain.Subject) Result {
	requestID := uuid.NewString()
	ctx, log := logging.ForRequest(ctx, p.logger, "request_id", requestID, "caller_id", caller.ID, "chat_id", caller.ChatID)
	res := Result{RequestID: requestID, State: StateAdmitted}

	slot, err := p.admission.TryAdmit(caller.ID, p.clock())
	if err != nil {
		res.State, res.Err = StateRejected, err
		rej, ok := admission.AsRejected(err)
		if !ok {
			log.Error("admission failed", "err", err)
			return res
		}
		metrics.RecordAdmission(string(rej.Reason), p.admission.Active())
		log.Info("request rejected", "reason", rej.Reason, "detail", rej.Detail)
		p.send(ctx, caller.ChatID, rejectionMessage(rej))
		return res
	}
	metrics.RecordAdmission("admitted", p.admission.Active())

	started := p.clock()
	reqCtx, cancel := p.withDeadline(ctx)
	defer cancel()
	// The deadline frees capacity at once, even before in-flight calls return.
	stopForcedRelease := context.AfterFunc(reqCtx, slot.Release)
	defer stopForcedRelease()
	defer func() {
		slot.Release()
		metrics.SetActiveSlots(p.admission.Active())
		metrics.RecordRequest(string(res.State), p.clock().Sub(started))
	}()

	log.Info("request admitted", "student_id", subject.ID)
	if err := p.usage.RecordRequest(ctx, caller, subject.URL); err != nil {
		log.Warn("usage record failed", "err", err)
	}

	progressID, err := p.messenger.SendText(reqCtx, caller.ChatID, msgAnalysing)
	if err != nil {
		log.Warn("progress message failed", "err", err)
	}

	res = p.run(reqCtx, caller, subject, progressID, res)

	switch {
	case res.State == StateCompleted:
		log.Info("request completed", "images", res.Images)
		if err := p.usage.RecordSuccess(ctx, caller, res.Images, res.Report.Summarize()); err != nil {
			log.Warn("usage record failed", "err", err)
		}
	case errors.Is(reqCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		res.State = StateTimedOut
		cause := res.Err
		if cause == nil {
			cause = context.Cause(reqCtx)
		}
		res.Err = apperr.E("pipeline.Handle", apperr.Timeout, cause)
		log.Warn("request timed out", "timeout", p.timeout)
		p.fail(ctx, caller, progressID, apperr.Timeout.Label(), msgTimedOut)
	default:
		res.State = StateFailed
		kind := apperr.KindOf(res.Err)
		log.Error("request failed", "kind", kind, "op", apperr.OpOf(res.Err), "err", res.Err)
		p.fail(ctx, caller, progressID, kind.Label(), msgFailed)
	}
	return res
}

func (p *Pipeline) run(ctx context.Context, caller domain.Caller, subject domain.Subject, progressID int64, res Result) Result {
	log := logging.FromContext(ctx, p.logger)

	res.State = StateAggregating
	items, err := p.source.Aggregate(ctx, subject)
	if err != nil {
		res.Err = err
		return res
	}

	res.State = StateComputing
	report, err := BuildReport(subject, items, p.clock())
	if err != nil {
		res.Err = err
		return res
	}
	res.Report = &report
	log.Info("statistics computed", "student", report.StudentName, "projects", report.Statistics.TotalProjects)

	if progressID != 0 {
		if err := p.messenger.EditText(ctx, caller.ChatID, progressID, msgRendering); err != nil {
			log.Debug("progress edit failed", "err", err)
		}
	}

	images, err := p.delivery.Deliver(ctx, caller.ChatID, report, res.RequestID, func(s State) {
		res.State = s
		if s == StateDelivering && progressID != 0 {
			if err := p.messenger.DeleteMessage(ctx, caller.ChatID, progressID); err != nil {
				log.Debug("progress delete failed", "err", err)
			}
		}
	})
	if err != nil {
		res.Err = err
		return res
	}

	res.State = StateCompleted
	res.Images = images
	return res
}

// fail records the failure kind and shows the caller a generic message. It
// runs on the parent context because the request context may be done.
func (p *Pipeline) fail(ctx context.Context, caller domain.Caller, progressID int64, kind, text string) {
	log := logging.FromContext(ctx, p.logger)
	if err := p.usage.RecordFailure(ctx, caller, kind); err != nil {
		log.Warn("usage record failed", "err", err)
	}

	if progressID != 0 {
		if err := p.messenger.EditText(ctx, caller.ChatID, progressID, text); err == nil {
			return
		}
	}
	p.send(ctx, caller.ChatID, text)
}

func (p *Pipeline) send(ctx context.Context, chatID int64, text string) {
	if _, err := p.messenger.SendText(ctx, chatID, text); err != nil {
		logging.FromContext(ctx, p.logger).Warn("send message failed", "err", err)
	}
}

func (p *Pipeline) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeoutCause(ctx, p.timeout, fmt.Errorf("request exceeded %s", p.timeout))
}
