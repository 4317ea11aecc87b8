package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"

	"github.com/jonathan/cv-tailor/internal/contextpack"
	"github.com/jonathan/cv-tailor/internal/hashing"
	"github.com/jonathan/cv-tailor/internal/jobref"
	"github.com/jonathan/cv-tailor/internal/session"
	"github.com/jonathan/cv-tailor/internal/stage"
	"github.com/jonathan/cv-tailor/internal/types"
	"github.com/jonathan/cv-tailor/internal/validation"
)

const defaultLanguage = "en"

type ingestParams struct {
	CVData   json.RawMessage `json:"cv_data"`
	Language string          `json:"language"`
}

// IngestResult is the payload of ingest_cv.
type IngestResult struct {
	SessionID string   `json:"session_id"`
	Language  string   `json:"language"`
	Sections  []string `json:"sections"`
}

func (d *Dispatcher) ingestCV(ctx context.Context, c call) (outcome, error) {
	var p ingestParams
	if err := decodeParams(c, &p); err != nil {
		return outcome{}, err
	}
	cv, err := types.DecodeCV(p.CVData)
	if err != nil {
		return outcome{}, &ContractError{Tool: string(c.tool), Message: "cv_data does not match the CV record schema", Cause: err}
	}
	lang := strings.ToLower(p.Language)
	if lang == "" {
		lang = defaultLanguage
	}

	sess, err := d.store.CreateWith(ctx, c.sessionID, cv, lang, func(cur *session.Session) (*session.Batch, error) {
		if err := stage.CheckAction(c.tool, cur.Meta.Stage); err != nil {
			return nil, err
		}
		next, err := stage.Transition(cur.Meta.Stage, stage.Extract)
		if err != nil {
			return nil, err
		}
		b := session.NewBatch().SetStage(next)
		return d.withEvent(b, c.tool, cur.Meta.Stage, ""), nil
	})
	if err != nil {
		return outcome{}, err
	}

	var present []string
	for _, name := range types.SectionOrder {
		if _, ok := sess.CV.Section(name); ok {
			present = append(present, name)
		}
	}
	return outcome{
		sessionID: sess.ID,
		stage:     sess.Meta.Stage,
		payload:   IngestResult{SessionID: sess.ID, Language: lang, Sections: present},
	}, nil
}

// SessionView is the payload of get_session.
type SessionView struct {
	SessionID string           `json:"session_id"`
	Version   int64            `json:"version"`
	CVData    *types.CV        `json:"cv_data"`
	Metadata  session.Metadata `json:"metadata"`
	Auxiliary AuxiliaryView    `json:"auxiliary"`
}

// AuxiliaryView summarizes the resolved cold-tier blobs.
type AuxiliaryView struct {
	EventCount      int               `json:"event_count"`
	RecentEvents    []session.Event   `json:"recent_events,omitempty"`
	PDFHistory      []session.PDFRef  `json:"pdf_history,omitempty"`
	PackHistorySize int               `json:"pack_history_size"`
	Proposal        *session.Proposal `json:"pending_proposal,omitempty"`
}

const recentEvents = 10

func (d *Dispatcher) getSession(ctx context.Context, c call) (outcome, error) {
	sess, err := d.load(ctx, c)
	if err != nil {
		return outcome{}, err
	}
	events := sess.Aux.Events
	if len(events) > recentEvents {
		events = events[len(events)-recentEvents:]
	}
	return outcome{stage: sess.Meta.Stage, payload: SessionView{
		SessionID: sess.ID,
		Version:   sess.Version,
		CVData:    sess.CV,
		Metadata:  sess.Meta,
		Auxiliary: AuxiliaryView{
			EventCount:      len(sess.Aux.Events),
			RecentEvents:    events,
			PDFHistory:      sess.Aux.PDFHistory,
			PackHistorySize: len(sess.Aux.PackHistory),
			Proposal:        sess.Aux.Proposal,
		},
	}}, nil
}

// getContextPack builds the pack against the snapshot taken under the write
// lock and records the new hash snapshot in the same flush, so the next pack
// diffs against exactly what this one reported. Final sessions are read only.
func (d *Dispatcher) getContextPack(ctx context.Context, c call) (outcome, error) {
	var pack *contextpack.Pack
	sess, err := d.store.Transact(ctx, c.sessionID, func(cur *session.Session) (*session.Batch, error) {
		if err := stage.CheckAction(c.tool, cur.Meta.Stage); err != nil {
			return nil, err
		}
		hashes, err := hashing.SectionHashes(cur.CV)
		if err != nil {
			return nil, err
		}
		pack, err = d.packs.Build(contextpack.Input{
			Stage:          cur.Meta.Stage,
			CV:             cur.CV,
			Hashes:         hashes,
			Changes:        hashing.Diff(cur.Meta.SectionHashesPrev, hashes),
			ConfirmedFlags: cur.Meta.ConfirmedFlags,
			JobReference:   jobref.Quoted(cur.Meta.JobReference),
			Validation:     digest(cur.Meta.LastValidation),
		})
		if err != nil {
			return nil, err
		}
		if cur.Meta.Stage == stage.Final {
			return nil, nil
		}
		raw, err := json.Marshal(pack)
		if err != nil {
			return nil, fmt.Errorf("failed to encode context pack: %w", err)
		}
		return session.NewBatch().SetSectionHashes(deliveredHashes(hashes, cur.Meta.SectionHashesPrev, pack)).RecordPack(raw), nil
	})
	if err != nil {
		return outcome{}, err
	}
	packChars.Observe(float64(pack.Size))
	if len(pack.Demoted) > 0 || len(pack.Dropped) > 0 {
		d.log.Info("context pack reduced to fit budget",
			"session_id", c.sessionID,
			"demoted", pack.Demoted,
			"dropped", pack.Dropped,
			"size", pack.Size,
		)
	}
	return outcome{stage: sess.Meta.Stage, payload: pack}, nil
}

// deliveredHashes is the snapshot the next pack diffs against. Sections the
// budget demoted or dropped keep their previous fingerprint, so they are
// reported as changed until their full payload has been sent.
func deliveredHashes(current, prev map[string]string, pack *contextpack.Pack) map[string]string {
	out := maps.Clone(current)
	for _, name := range slices.Concat(pack.Demoted, pack.Dropped) {
		if h, ok := prev[name]; ok {
			out[name] = h
		} else {
			delete(out, name)
		}
	}
	return out
}

func digest(v *session.ValidationSummary) *contextpack.ValidationDigest {
	if v == nil {
		return nil
	}
	return &contextpack.ValidationDigest{
		IsValid:        v.IsValid,
		EstimatedPages: v.EstimatedPages,
		HighFields:     v.HighFields,
		FindingCount:   v.FindingCount,
	}
}

type updateParams struct {
	Edits        []session.Edit        `json:"edits"`
	SectionPatch *session.SectionPatch `json:"section_patch"`
}

// EditResult is the payload of update_cv and apply_proposal.
type EditResult struct {
	Version         int64    `json:"version"`
	Applied         int      `json:"applied"`
	ChangedSections []string `json:"changed_sections"`
}

func (d *Dispatcher) updateCV(ctx context.Context, c call) (outcome, error) {
	var p updateParams
	if err := decodeParams(c, &p); err != nil {
		return outcome{}, err
	}

	applied := len(p.Edits)
	if p.SectionPatch != nil {
		applied++
	}

	var before *types.CV
	sess, err := d.mutate(ctx, c, func(cur *session.Session, b *session.Batch) (string, error) {
		before = cur.CV
		b.Edits(p.Edits...)
		if p.SectionPatch != nil {
			b.ReplaceSection(p.SectionPatch.Section, p.SectionPatch.Data)
		}
		if cur.Meta.Stage == stage.ReviewSession {
			b.SetStage(stage.EditsOnly)
		}
		return fmt.Sprintf("%d edit(s)", applied), nil
	})
	if err != nil {
		return outcome{}, err
	}
	changed, err := changedSections(before, sess.CV)
	if err != nil {
		return outcome{}, err
	}
	return outcome{stage: sess.Meta.Stage, payload: EditResult{
		Version:         sess.Version,
		Applied:         applied,
		ChangedSections: changed,
	}}, nil
}

func changedSections(before, after *types.CV) ([]string, error) {
	prev, err := hashing.SectionHashes(before)
	if err != nil {
		return nil, err
	}
	cur, err := hashing.SectionHashes(after)
	if err != nil {
		return nil, err
	}
	changed := hashing.Changed(hashing.Diff(prev, cur))
	if changed == nil {
		changed = []string{}
	}
	return changed, nil
}

type confirmParams struct {
	Sections map[string]bool `json:"sections"`
}

// ConfirmResult is the payload of confirm_sections.
type ConfirmResult struct {
	ConfirmedFlags       map[string]bool `json:"confirmed_flags"`
	MissingConfirmations []string        `json:"missing_confirmations"`
}

func (d *Dispatcher) confirmSections(ctx context.Context, c call) (outcome, error) {
	var p confirmParams
	if err := decodeParams(c, &p); err != nil {
		return outcome{}, err
	}
	names := make([]string, 0, len(p.Sections))
	for name := range p.Sections {
		names = append(names, name)
	}
	sort.Strings(names)

	sess, err := d.mutate(ctx, c, func(_ *session.Session, b *session.Batch) (string, error) {
		parts := make([]string, 0, len(names))
		for _, name := range names {
			b.Confirm(name, p.Sections[name])
			parts = append(parts, fmt.Sprintf("%s=%t", name, p.Sections[name]))
		}
		return strings.Join(parts, ","), nil
	})
	if err != nil {
		return outcome{}, err
	}
	missing := stage.MissingConfirmations(sess.Meta.ConfirmedFlags)
	if missing == nil {
		missing = []string{}
	}
	return outcome{stage: sess.Meta.Stage, payload: ConfirmResult{
		ConfirmedFlags:       sess.Meta.ConfirmedFlags,
		MissingConfirmations: missing,
	}}, nil
}

type advanceParams struct {
	To string `json:"to"`
}

// AdvanceResult is the payload of advance_stage.
type AdvanceResult struct {
	From stage.Stage `json:"from"`
	To   stage.Stage `json:"to"`
}

func (d *Dispatcher) advanceStage(ctx context.Context, c call) (outcome, error) {
	var p advanceParams
	if err := decodeParams(c, &p); err != nil {
		return outcome{}, err
	}
	to, err := stage.Parse(p.To)
	if err != nil {
		return outcome{}, &ContractError{Tool: string(c.tool), Message: "unknown target stage", Cause: err}
	}

	var from stage.Stage
	sess, err := d.mutate(ctx, c, func(cur *session.Session, b *session.Batch) (string, error) {
		from = cur.Meta.Stage
		if !contains(stage.AdvanceTargets(from), to) {
			return "", &stage.ViolationError{From: from, To: to, Message: "not a forward move advance_stage may make"}
		}
		next, err := stage.Transition(from, to)
		if err != nil {
			return "", err
		}
		b.SetStage(next)
		return "", nil
	})
	if err != nil {
		return outcome{}, err
	}
	return outcome{stage: sess.Meta.Stage, payload: AdvanceResult{From: from, To: sess.Meta.Stage}}, nil
}

func contains(stages []stage.Stage, s stage.Stage) bool {
	for _, st := range stages {
		if st == s {
			return true
		}
	}
	return false
}

type proposeParams struct {
	Edits     []session.Edit `json:"edits"`
	Rationale string         `json:"rationale"`
}

func (d *Dispatcher) proposeEdits(ctx context.Context, c call) (outcome, error) {
	var p proposeParams
	if err := decodeParams(c, &p); err != nil {
		return outcome{}, err
	}

	var proposal *session.Proposal
	sess, err := d.mutate(ctx, c, func(cur *session.Session, b *session.Batch) (string, error) {
		// Reject a proposal that could not be applied later.
		if _, err := session.ApplyEdits(cur.CV, p.Edits); err != nil {
			return "", err
		}
		proposal = &session.Proposal{Edits: p.Edits, Rationale: p.Rationale, CreatedAt: d.now().UTC()}
		b.SetProposal(proposal)
		if cur.Meta.Stage == stage.ReviewSession {
			b.SetStage(stage.DraftProposal)
		}
		return fmt.Sprintf("%d edit(s) proposed", len(p.Edits)), nil
	})
	if err != nil {
		return outcome{}, err
	}
	return outcome{stage: sess.Meta.Stage, payload: proposal}, nil
}

func (d *Dispatcher) applyProposal(ctx context.Context, c call) (outcome, error) {
	var (
		before  *types.CV
		applied int
	)
	sess, err := d.mutate(ctx, c, func(cur *session.Session, b *session.Batch) (string, error) {
		if cur.Aux.Proposal == nil {
			return "", &ContractError{Tool: string(c.tool), Message: "no pending proposal"}
		}
		before = cur.CV
		applied = len(cur.Aux.Proposal.Edits)
		next, err := stage.Transition(cur.Meta.Stage, stage.ApplyEdits)
		if err != nil {
			return "", err
		}
		b.Edits(cur.Aux.Proposal.Edits...).ClearProposal().SetStage(next)
		return fmt.Sprintf("%d edit(s) applied", applied), nil
	})
	if err != nil {
		return outcome{}, err
	}
	changed, err := changedSections(before, sess.CV)
	if err != nil {
		return outcome{}, err
	}
	return outcome{stage: sess.Meta.Stage, payload: EditResult{
		Version:         sess.Version,
		Applied:         applied,
		ChangedSections: changed,
	}}, nil
}

func (d *Dispatcher) validateCV(ctx context.Context, c call) (outcome, error) {
	var result *validation.Result
	sess, err := d.mutate(ctx, c, func(cur *session.Session, b *session.Batch) (string, error) {
		res, summary, err := d.runValidator(cur)
		if err != nil {
			return "", err
		}
		result = res
		b.SetValidation(summary)
		return fmt.Sprintf("is_valid=%t", res.IsValid), nil
	})
	if err != nil {
		return outcome{}, err
	}
	return outcome{stage: sess.Meta.Stage, payload: result}, nil
}

// runValidator validates the snapshot and summarizes the result for the hot
// record.
func (d *Dispatcher) runValidator(cur *session.Session) (*validation.Result, *session.ValidationSummary, error) {
	res := d.validator.Validate(cur.CV, validation.Options{
		Language:    cur.Meta.Language,
		RecordBytes: cur.RecordBytes,
	})
	contentHash, err := hashing.HashValue(cur.CV)
	if err != nil {
		return nil, nil, err
	}
	high := res.BySeverity(validation.SeverityHigh)
	fields := make([]string, 0, len(high))
	for _, f := range high {
		fields = append(fields, f.Field)
	}
	return res, &session.ValidationSummary{
		IsValid:        res.IsValid,
		EstimatedPages: res.EstimatedPages,
		HighCount:      len(high),
		HighFields:     fields,
		FindingCount:   len(res.Errors),
		ContentHash:    contentHash,
		ValidatedAt:    d.now().UTC(),
	}, nil
}

// setJobReference resolves the posting before taking the session lock; URL
// inputs involve a network fetch.
func (d *Dispatcher) setJobReference(ctx context.Context, c call) (outcome, error) {
	var in jobref.Input
	if err := decodeParams(c, &in); err != nil {
		return outcome{}, err
	}
	if d.jobs == nil {
		return outcome{}, &jobref.Error{Message: "job reference resolution is not configured"}
	}
	// Fail fast on unknown sessions and illegal stages before any fetch.
	if _, err := d.load(ctx, c); err != nil {
		return outcome{}, err
	}
	ref, err := d.jobs.Resolve(ctx, in)
	if err != nil {
		return outcome{}, err
	}

	sess, err := d.mutate(ctx, c, func(_ *session.Session, b *session.Batch) (string, error) {
		b.SetJobReference(ref)
		return fmt.Sprintf("%d chars", len([]rune(ref.Text))), nil
	})
	if err != nil {
		return outcome{}, err
	}
	return outcome{stage: sess.Meta.Stage, payload: sess.Meta.JobReference}, nil
}

func (d *Dispatcher) getPDF(ctx context.Context, c call) (outcome, error) {
	sess, err := d.load(ctx, c)
	if err != nil {
		return outcome{}, err
	}
	ref, ok := sess.LatestPDF()
	if !ok {
		return outcome{}, &NoPDFError{SessionID: sess.ID}
	}
	return outcome{stage: sess.Meta.Stage, payload: ref}, nil
}

// PDF returns the bytes and reference of the latest rendered PDF.
func (d *Dispatcher) PDF(ctx context.Context, sessionID string) ([]byte, session.PDFRef, error) {
	sess, err := d.store.Get(ctx, sessionID)
	if err != nil {
		return nil, session.PDFRef{}, err
	}
	ref, ok := sess.LatestPDF()
	if !ok {
		return nil, session.PDFRef{}, &NoPDFError{SessionID: sessionID}
	}
	data, err := d.store.LoadBlob(ctx, ref.Key)
	if err != nil {
		return nil, session.PDFRef{}, err
	}
	return data, ref, nil
}
