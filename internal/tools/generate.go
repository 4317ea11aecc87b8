package tools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonathan/cv-tailor/internal/hashing"
	"github.com/jonathan/cv-tailor/internal/session"
	"github.com/jonathan/cv-tailor/internal/stage"
	"github.com/jonathan/cv-tailor/internal/types"
	"github.com/jonathan/cv-tailor/internal/validation"
)

// GenerateResult is the payload of a successful generate_pdf.
type GenerateResult struct {
	PDF            session.PDFRef `json:"pdf"`
	EstimatedPages float64        `json:"estimated_pages"`
	// Findings lists the non-blocking findings of the validation that
	// admitted the render.
	Findings []validation.Finding `json:"findings,omitempty"`
}

// generatePDF runs the generation flow: single-flight guard, stage check,
// readiness gate and validation under the session lock, then the render
// outside it, then the result flush. A second generate for the same session
// while one is in flight is rejected, never queued.
func (d *Dispatcher) generatePDF(ctx context.Context, c call) (outcome, error) {
	if d.renderer == nil {
		return outcome{}, errors.New("tools: no pdf renderer configured")
	}
	if !d.tryAcquire(c.sessionID) {
		return outcome{}, &ConcurrentGenerationError{SessionID: c.sessionID}
	}
	defer d.release(c.sessionID)

	var (
		cv       *types.CV
		language string
		result   *validation.Result
		summary  *session.ValidationSummary
		invalid  error
	)
	sess, err := d.store.Transact(ctx, c.sessionID, func(cur *session.Session) (*session.Batch, error) {
		if err := stage.CheckAction(c.tool, cur.Meta.Stage); err != nil {
			return nil, err
		}
		gate, err := readinessGate(cur)
		if err != nil {
			return nil, err
		}
		if err := stage.CheckReadiness(gate); err != nil {
			return nil, err
		}

		res, sum, err := d.runValidator(cur)
		if err != nil {
			return nil, err
		}
		b := session.NewBatch().SetValidation(sum)
		from := cur.Meta.Stage
		if from != stage.GeneratePDF {
			next, err := stage.Transition(from, stage.GeneratePDF)
			if err != nil {
				return nil, err
			}
			if !res.IsValid {
				b.AppendEvent(d.event(c.tool, from, next, "validating"))
				from = next
			}
			b.SetStage(next)
		}
		if !res.IsValid {
			next, err := stage.Transition(from, stage.FixValidation)
			if err != nil {
				return nil, err
			}
			invalid = res.Err()
			return b.SetStage(next).AppendEvent(d.event(c.tool, from, next, "validation failed")), nil
		}
		cv, language, result, summary = cur.CV, cur.Meta.Language, res, sum
		return d.withEvent(b, c.tool, cur.Meta.Stage, "rendering"), nil
	})
	if err != nil {
		return outcome{}, err
	}
	if invalid != nil {
		return outcome{stage: sess.Meta.Stage}, invalid
	}

	// The render is not cancelled with the caller; only the timeout bounds it.
	detached := context.WithoutCancel(ctx)
	pdf, err := d.render(detached, c.sessionID, cv, language)
	if err != nil {
		return outcome{stage: sess.Meta.Stage}, err
	}

	sess, err = d.store.Transact(detached, c.sessionID, func(cur *session.Session) (*session.Batch, error) {
		if cur.Meta.Stage != stage.GeneratePDF {
			return nil, &stage.ViolationError{Action: c.tool, From: cur.Meta.Stage, Message: "stage changed while rendering"}
		}
		next, err := stage.Transition(cur.Meta.Stage, stage.Final)
		if err != nil {
			return nil, err
		}
		b := session.NewBatch().
			AddPDF(&session.PDFArtifact{Data: pdf, ContentHash: summary.ContentHash}).
			SetStage(next)
		return d.withEvent(b, c.tool, cur.Meta.Stage, fmt.Sprintf("%d bytes", len(pdf))), nil
	})
	if err != nil {
		return outcome{}, err
	}

	ref, _ := sess.LatestPDF()
	var advisory []validation.Finding
	for _, f := range result.Errors {
		if f.Severity != validation.SeverityHigh {
			advisory = append(advisory, f)
		}
	}
	return outcome{stage: sess.Meta.Stage, payload: GenerateResult{
		PDF:            ref,
		EstimatedPages: result.EstimatedPages,
		Findings:       advisory,
	}}, nil
}

// readinessGate reports the last validation only while it still describes the
// current content.
func readinessGate(cur *session.Session) (stage.Gate, error) {
	g := stage.Gate{ConfirmedFlags: cur.Meta.ConfirmedFlags}
	last := cur.Meta.LastValidation
	if last == nil {
		return g, nil
	}
	contentHash, err := hashing.HashValue(cur.CV)
	if err != nil {
		return g, err
	}
	if last.ContentHash == contentHash {
		passed := last.IsValid
		g.ValidationPassed = &passed
	}
	return g, nil
}

func (d *Dispatcher) render(ctx context.Context, sessionID string, cv *types.CV, language string) ([]byte, error) {
	rctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	pdf, err := d.renderer.RenderPDF(rctx, cv, language)
	if err != nil {
		if errors.Is(rctx.Err(), context.DeadlineExceeded) {
			return nil, &GenerationTimeoutError{SessionID: sessionID, Timeout: d.timeout}
		}
		return nil, fmt.Errorf("failed to render pdf: %w", err)
	}
	d.log.Info("pdf rendered",
		"session_id", sessionID,
		"bytes", len(pdf),
		"duration", time.Since(start),
	)
	return pdf, nil
}
