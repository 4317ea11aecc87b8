package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/jonathan/cv-tailor/internal/types"
	"golang.org/x/sync/errgroup"
)

// Options tunes a Store.
type Options struct {
	// MaxAttempts bounds every storage operation, including the first try.
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Logger         *slog.Logger
	Now            func() time.Time
}

// DefaultOptions returns production retry settings.
func DefaultOptions() Options {
	return Options{
		MaxAttempts:    3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
	}
}

// TxFunc computes the changes of one turn from a consistent snapshot. Returning
// an error aborts the turn without writing anything.
type TxFunc func(cur *Session) (*Batch, error)

// Store is the single entry point for reading and mutating sessions. Writes to
// one session are serialized; different sessions proceed independently.
type Store struct {
	hot   HotStore
	cold  BlobStore
	locks *keyedMutex
	opts  Options
	log   *slog.Logger
}

// NewStore creates a Store over a hot and a cold tier.
func NewStore(hot HotStore, cold BlobStore, opts Options) *Store {
	def := DefaultOptions()
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = def.MaxAttempts
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = def.InitialBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = def.MaxBackoff
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		hot:   hot,
		cold:  cold,
		locks: newKeyedMutex(),
		opts:  opts,
		log:   logger.With("component", "session_store"),
	}
}

// Create persists a new session in the bootstrap stage. An empty id is
// replaced by a random UUID.
func (s *Store) Create(ctx context.Context, id string, cv *types.CV, language string) (*Session, error) {
	return s.CreateWith(ctx, id, cv, language, nil)
}

// CreateWith persists a new session together with the changes fn computes from
// its initial bootstrap snapshot, in a single flush. A nil fn writes the
// initial snapshot unchanged.
func (s *Store) CreateWith(ctx context.Context, id string, cv *types.CV, language string, fn TxFunc) (*Session, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if cv == nil {
		cv = &types.CV{}
	}

	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// Version 0 makes the flush an insert.
	initial := &Session{ID: id, CV: cv, Meta: newMetadata(s.opts.Now().UTC())}
	initial.Meta.Language = language

	var ch Changes
	if fn != nil {
		batch, err := fn(initial)
		if err != nil {
			return nil, err
		}
		if batch != nil {
			if ch, err = batch.Changes(); err != nil {
				return nil, err
			}
		}
	}

	sess, err := s.commit(ctx, initial, ch)
	if errors.Is(err, ErrVersionConflict) {
		return nil, &AlreadyExistsError{SessionID: id}
	}
	if err != nil {
		return nil, err
	}
	s.log.Info("session created", "session_id", id, "stage", sess.Meta.Stage)
	return sess, nil
}

// Get returns the current snapshot of a session with cold-tier pointers
// resolved.
func (s *Store) Get(ctx context.Context, id string) (*Session, error) {
	return s.load(ctx, id)
}

// Update applies changes to a session in one flush.
func (s *Store) Update(ctx context.Context, id string, ch Changes) (*Session, error) {
	return s.Transact(ctx, id, func(*Session) (*Batch, error) {
		return BatchOf(ch), nil
	})
}

// Transact runs fn against a snapshot taken under the session's write lock and
// flushes the batch it returns. The snapshot fn sees and the version written
// are consistent: no other writer can interleave.
func (s *Store) Transact(ctx context.Context, id string, fn TxFunc) (*Session, error) {
	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	cur, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	batch, err := fn(cur)
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return cur, nil
	}
	ch, err := batch.Changes()
	if err != nil {
		return nil, err
	}
	if ch.Empty() {
		return cur, nil
	}
	return s.commit(ctx, cur, ch)
}

// LoadBlob reads a cold-tier blob such as a rendered PDF.
func (s *Store) LoadBlob(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.retry(ctx, "load_blob", key, func() error {
		var err error
		data, err = s.cold.Get(ctx, key)
		return err
	})
	return data, err
}

func (s *Store) load(ctx context.Context, id string) (*Session, error) {
	var rec *Record
	err := s.retry(ctx, "load", id, func() error {
		var err error
		rec, err = s.hot.Load(ctx, id)
		return err
	})
	if errors.Is(err, ErrRecordNotFound) {
		return nil, &NotFoundError{SessionID: id}
	}
	if err != nil {
		return nil, err
	}

	sess, err := decodeRecord(rec)
	if err != nil {
		return nil, &StorageError{Op: "decode", SessionID: id, Attempts: 1, Cause: err}
	}
	if err := s.resolve(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// resolve loads every blob the hot record points to.
func (s *Store) resolve(ctx context.Context, sess *Session) error {
	g, gctx := errgroup.WithContext(ctx)
	for kind, ref := range sess.Meta.Blobs {
		var target any
		switch kind {
		case BlobEvents:
			target = &sess.Aux.Events
		case BlobPDFHistory:
			target = &sess.Aux.PDFHistory
		case BlobPackHistory:
			target = &sess.Aux.PackHistory
		case BlobProposal:
			target = &sess.Aux.Proposal
		default:
			continue
		}
		g.Go(func() error {
			var data []byte
			err := s.retry(gctx, "resolve_"+kind, sess.ID, func() error {
				var err error
				data, err = s.cold.Get(gctx, ref.Key)
				return err
			})
			if err != nil {
				return err
			}
			if err := json.Unmarshal(data, target); err != nil {
				return &StorageError{Op: "decode_" + kind, SessionID: sess.ID, Attempts: 1, Cause: err}
			}
			return nil
		})
	}
	return g.Wait()
}

func (s *Store) commit(ctx context.Context, cur *Session, ch Changes) (*Session, error) {
	now := s.opts.Now().UTC()
	next := &Session{
		ID:      cur.ID,
		CV:      cur.CV,
		Meta:    cur.Meta,
		Version: cur.Version + 1,
		Aux:     cur.Aux,
	}
	next.Meta.ConfirmedFlags = maps.Clone(cur.Meta.ConfirmedFlags)
	next.Meta.SectionHashesPrev = maps.Clone(cur.Meta.SectionHashesPrev)
	next.Meta.Blobs = maps.Clone(cur.Meta.Blobs)
	next.Meta.ensureMaps()

	if ch.touchesContent() {
		cv, err := applyEdits(cur.CV, ch.Edits, ch.Section)
		if err != nil {
			return nil, err
		}
		next.CV = cv
	}
	applyMeta(&next.Meta, ch.Meta)
	next.Meta.UpdatedAt = now

	blobs := map[string][]byte{}
	var staleKeys []string

	if len(ch.Events) > 0 {
		next.Aux.Events = trimTail(append(append([]Event(nil), cur.Aux.Events...), ch.Events...), maxEvents)
		if err := stageBlob(blobs, BlobEvents, next.Aux.Events); err != nil {
			return nil, err
		}
	}
	if ch.Pack != nil {
		next.Aux.PackHistory = trimTail(append(append([]json.RawMessage(nil), cur.Aux.PackHistory...), ch.Pack), maxPackHistory)
		if err := stageBlob(blobs, BlobPackHistory, next.Aux.PackHistory); err != nil {
			return nil, err
		}
	}
	var pdfKey string
	if ch.PDF != nil {
		pdfKey = fmt.Sprintf("sessions/%s/pdf/%s", cur.ID, uuid.NewString())
		ref := PDFRef{Key: pdfKey, Bytes: len(ch.PDF.Data), ContentHash: ch.PDF.ContentHash, CreatedAt: now}
		next.Aux.PDFHistory = append(append([]PDFRef(nil), cur.Aux.PDFHistory...), ref)
		if err := stageBlob(blobs, BlobPDFHistory, next.Aux.PDFHistory); err != nil {
			return nil, err
		}
	}
	if ch.Proposal != nil {
		next.Aux.Proposal = ch.Proposal
		if err := stageBlob(blobs, BlobProposal, ch.Proposal); err != nil {
			return nil, err
		}
	} else if ch.ClearProposal {
		next.Aux.Proposal = nil
		if ref, ok := next.Meta.Blobs[BlobProposal]; ok {
			staleKeys = append(staleKeys, ref.Key)
			delete(next.Meta.Blobs, BlobProposal)
		}
	}

	// Write new blobs under version-scoped keys before the hot record points
	// at them, so a reader never follows a dangling pointer.
	written := make([]string, 0, len(blobs)+1)
	puts := make(map[string][]byte, len(blobs)+1)
	for kind, data := range blobs {
		key := fmt.Sprintf("sessions/%s/%s/v%d", cur.ID, kind, next.Version)
		if old, ok := next.Meta.Blobs[kind]; ok {
			staleKeys = append(staleKeys, old.Key)
		}
		next.Meta.Blobs[kind] = BlobRef{Key: key, Bytes: len(data)}
		puts[key] = data
	}
	if ch.PDF != nil {
		puts[pdfKey] = ch.PDF.Data
	}

	g, gctx := errgroup.WithContext(ctx)
	for key, data := range puts {
		written = append(written, key)
		g.Go(func() error {
			return s.retry(gctx, "put_blob", cur.ID, func() error {
				return s.cold.Put(gctx, key, data)
			})
		})
	}
	if err := g.Wait(); err != nil {
		s.cleanup(written)
		return nil, err
	}

	rec, err := encodeRecord(next)
	if err != nil {
		s.cleanup(written)
		return nil, err
	}
	err = s.retry(ctx, "save", cur.ID, func() error {
		return s.hot.Save(ctx, rec, cur.Version)
	})
	if err != nil {
		s.cleanup(written)
		return nil, err
	}
	next.RecordBytes = rec.Size()

	s.cleanup(staleKeys)
	s.log.Debug("session flushed",
		"session_id", cur.ID,
		"version", next.Version,
		"edits", len(ch.Edits),
		"blobs", len(puts),
	)
	return next, nil
}

// cleanup deletes blobs best-effort; an orphaned blob only costs space.
func (s *Store) cleanup(keys []string) {
	if len(keys) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, key := range keys {
		if err := s.cold.Delete(ctx, key); err != nil && !errors.Is(err, ErrBlobNotFound) {
			s.log.Warn("failed to delete stale blob", "key", key, "error", err)
		}
	}
}

// retry runs op with exponential backoff up to MaxAttempts. Not-found and
// version conflicts are returned as-is without retrying; anything else that
// still fails is wrapped in a StorageError.
func (s *Store) retry(ctx context.Context, op, id string, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.opts.InitialBackoff
	b.MaxInterval = s.opts.MaxBackoff
	b.Reset()

	attempts := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		err := fn()
		if err == nil {
			return struct{}{}, nil
		}
		if isPermanent(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		s.log.Warn("storage operation failed", "op", op, "session_id", id, "attempt", attempts, "error", err)
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(s.opts.MaxAttempts)))
	if err == nil {
		return nil
	}

	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Unwrap()
	}
	if isPermanent(err) && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var se *StorageError
	if errors.As(err, &se) {
		return se
	}
	return &StorageError{Op: op, SessionID: id, Attempts: attempts, Cause: err}
}

func isPermanent(err error) bool {
	return errors.Is(err, ErrRecordNotFound) ||
		errors.Is(err, ErrVersionConflict) ||
		errors.Is(err, ErrBlobNotFound) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func applyMeta(m *Metadata, p MetaPatch) {
	if p.Stage != nil {
		m.Stage = *p.Stage
	}
	for section, confirmed := range p.Confirm {
		m.ConfirmedFlags[section] = confirmed
	}
	if p.SectionHashes != nil {
		m.SectionHashesPrev = maps.Clone(p.SectionHashes)
	}
	if p.Language != nil {
		m.Language = *p.Language
	}
	if p.JobReference != nil {
		m.JobReference = p.JobReference
	}
	if p.LastValidation != nil {
		m.LastValidation = p.LastValidation
	}
}

func stageBlob(blobs map[string][]byte, kind string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s blob: %w", kind, err)
	}
	blobs[kind] = data
	return nil
}

func trimTail[T any](items []T, limit int) []T {
	if len(items) <= limit {
		return items
	}
	return items[len(items)-limit:]
}

func encodeRecord(sess *Session) (*Record, error) {
	cvData, err := json.Marshal(sess.CV)
	if err != nil {
		return nil, fmt.Errorf("failed to encode cv_data: %w", err)
	}
	meta, err := json.Marshal(sess.Meta)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}
	return &Record{
		ID:        sess.ID,
		CVData:    cvData,
		Metadata:  meta,
		Version:   sess.Version,
		CreatedAt: sess.Meta.CreatedAt,
		UpdatedAt: sess.Meta.UpdatedAt,
	}, nil
}

func decodeRecord(rec *Record) (*Session, error) {
	cv, err := types.DecodeCV(rec.CVData)
	if err != nil {
		return nil, err
	}
	var meta Metadata
	if err := json.Unmarshal(rec.Metadata, &meta); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	meta.ensureMaps()
	return &Session{
		ID:          rec.ID,
		CV:          cv,
		Meta:        meta,
		Version:     rec.Version,
		RecordBytes: rec.Size(),
	}, nil
}
