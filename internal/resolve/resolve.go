// Package resolve recovers the numeric id of a record that was observed
// through an endpoint exposing an incomplete or different identifier.
//
// The chain is a heuristic. Duplicate titles created close together can
// produce a wrong match, so every success is logged with the step that
// produced it.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/nhle/malharro-cms/internal/cms"
	"github.com/nhle/malharro-cms/internal/normalize"
	"github.com/nhle/malharro-cms/internal/session"
)

// ErrIdentifierUnresolved is returned when no step found the record.
var ErrIdentifierUnresolved = errors.New("identifier unresolved")

// Step identifies which lookup produced a resolution.
type Step int

const (
	StepKnownID Step = iota + 1
	StepDocumentID
	StepTimeWindow
	StepSameDay
)

func (s Step) String() string {
	switch s {
	case StepKnownID:
		return "known-id"
	case StepDocumentID:
		return "document-id"
	case StepTimeWindow:
		return "time-window"
	case StepSameDay:
		return "same-day"
	}
	return fmt.Sprintf("Step(%d)", int(s))
}

// Lookup is what is known about the record.
type Lookup struct {
	ID          int64
	DocumentID  string
	RecipientID int64
	Title       string
	ApproxTime  time.Time
}

// Resolution is a recovered id.
type Resolution struct {
	ID   int64
	Step Step
}

const (
	defaultWindow    = 60 * time.Minute
	defaultScanLimit = 200
	windowPageSize   = 10
)

// Resolver runs the fallback chain against one collection.
type Resolver struct {
	client     *cms.Client
	collection string
	window     time.Duration
	scanLimit  int
	log        *slog.Logger
}

// NewResolver returns a Resolver for collection with a ±60 minute window
// and a 200 record same-day scan.
func NewResolver(client *cms.Client, collection string, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Resolver{
		client:     client,
		collection: collection,
		window:     defaultWindow,
		scanLimit:  defaultScanLimit,
		log:        log,
	}
}

// Resolve returns the first id found by, in order: the known id, an
// exact document id match, a same-recipient same-title match within the
// time window, and a same-title same-UTC-day match among the recipient's
// most recent records. Not-found and malformed responses move on to the
// next step, as do server errors; authorization and transport failures
// are returned as is.
func (r *Resolver) Resolve(ctx context.Context, sess *session.Session, l Lookup) (Resolution, error) {
	if l.ID != 0 {
		return r.found(l, l.ID, StepKnownID), nil
	}

	if l.DocumentID != "" {
		id, err := r.byDocumentID(ctx, sess, l.DocumentID)
		if err := r.check(ctx, StepDocumentID, err); err != nil {
			return Resolution{}, err
		}
		if id != 0 {
			return r.found(l, id, StepDocumentID), nil
		}
	}

	if l.RecipientID == 0 || l.Title == "" || l.ApproxTime.IsZero() {
		r.log.Debug("identifier unresolved, not enough to search", "collection", r.collection)
		return Resolution{}, ErrIdentifierUnresolved
	}

	id, err := r.byTimeWindow(ctx, sess, l)
	if err := r.check(ctx, StepTimeWindow, err); err != nil {
		return Resolution{}, err
	}
	if id != 0 {
		return r.found(l, id, StepTimeWindow), nil
	}

	id, err = r.bySameDay(ctx, sess, l)
	if err := r.check(ctx, StepSameDay, err); err != nil {
		return Resolution{}, err
	}
	if id != 0 {
		return r.found(l, id, StepSameDay), nil
	}

	r.log.Info("identifier unresolved",
		"collection", r.collection, "title", l.Title, "recipient", l.RecipientID)
	return Resolution{}, ErrIdentifierUnresolved
}

func (r *Resolver) found(l Lookup, id int64, step Step) Resolution {
	if step > StepDocumentID {
		r.log.Warn("identifier matched heuristically",
			"collection", r.collection, "step", step, "id", id, "title", l.Title)
	} else {
		r.log.Debug("identifier resolved", "collection", r.collection, "step", step, "id", id)
	}
	return Resolution{ID: id, Step: step}
}

// check swallows errors that only mean this step found nothing. Auth,
// transport and context failures stop the chain.
func (r *Resolver) check(ctx context.Context, step Step, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return fmt.Errorf("resolving identifier (%s): %w", step, ctx.Err())
	}
	switch cms.KindOf(err) {
	case cms.KindUnauthorized, cms.KindForbidden, cms.KindTransport:
		return fmt.Errorf("resolving identifier (%s): %w", step, err)
	}
	r.log.Debug("resolve step failed, continuing", "step", step, "err", err)
	return nil
}

func (r *Resolver) byDocumentID(ctx context.Context, sess *session.Session, doc string) (int64, error) {
	q := cms.NewQuery().
		Filter("documentId", cms.OpEq, doc).
		Fields("id").
		PageSize(1)
	recs, err := r.list(ctx, sess, q)
	if err != nil {
		return 0, err
	}
	return firstID(recs), nil
}

func (r *Resolver) byTimeWindow(ctx context.Context, sess *session.Session, l Lookup) (int64, error) {
	q := cms.NewQuery().
		AndFilter(0, "receptor.id", cms.OpEq, l.RecipientID).
		AndFilter(1, "titulo", cms.OpEq, l.Title).
		AndFilter(2, "createdAt", cms.OpGte, l.ApproxTime.Add(-r.window)).
		AndFilter(3, "createdAt", cms.OpLte, l.ApproxTime.Add(r.window)).
		Sort("createdAt", true).
		PageSize(windowPageSize).
		Fields("id")
	recs, err := r.list(ctx, sess, q)
	if err != nil {
		return 0, err
	}
	return firstID(recs), nil
}

func (r *Resolver) bySameDay(ctx context.Context, sess *session.Session, l Lookup) (int64, error) {
	q := cms.NewQuery().
		Filter("receptor.id", cms.OpEq, l.RecipientID).
		Sort("createdAt", true).
		PageSize(r.scanLimit).
		Fields("id", "titulo", "createdAt")
	recs, err := r.list(ctx, sess, q)
	if err != nil {
		return 0, err
	}

	day := l.ApproxTime.UTC().Format(time.DateOnly)
	for _, rec := range recs {
		if rec.ID() == 0 || rec.String("titulo") != l.Title {
			continue
		}
		created, ok := rec.Time("createdAt")
		if ok && created.UTC().Format(time.DateOnly) == day {
			return rec.ID(), nil
		}
	}
	return 0, nil
}

func (r *Resolver) list(ctx context.Context, sess *session.Session, q *cms.Query) ([]normalize.Record, error) {
	resp, err := r.client.List(ctx, sess.BearerToken(), cms.CollectionPath(r.collection), q)
	if err != nil {
		return nil, err
	}
	return normalize.NormalizeList(resp.Data, normalize.Schema{})
}

func firstID(recs []normalize.Record) int64 {
	for _, rec := range recs {
		if id := rec.ID(); id != 0 {
			return id
		}
	}
	return 0
}
