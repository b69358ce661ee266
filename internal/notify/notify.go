// Package notify creates notification records for the users affected by
// a work item or agenda change.
package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nhle/malharro-cms/internal/cms"
	"github.com/nhle/malharro-cms/internal/model"
	"github.com/nhle/malharro-cms/internal/mutation"
	"github.com/nhle/malharro-cms/internal/normalize"
	"github.com/nhle/malharro-cms/internal/notice"
	"github.com/nhle/malharro-cms/internal/session"
)

// Collection is the CMS collection holding notifications.
const Collection = "notificaciones"

// Event is what happened to the affected record.
type Event string

const (
	EventStatusChanged  Event = "status-changed"
	EventContentEdited  Event = "content-edited"
	EventCreatedPending Event = "created-pending"
)

// Relation fields that deep-link a notification to its subject.
const (
	fieldWorkItem = "usinaAfectada"
	fieldAgenda   = "agendaAfectada"
)

// Payload is the content shared by every notification of one event.
type Payload struct {
	Title   string
	Message string
	Type    model.NotificationType

	// WorkItemID and AgendaID link the affected record when non-zero.
	WorkItemID int64
	AgendaID   int64
}

// Recipients is the set of user ids to notify.
type Recipients []int64

// Owner returns the single content owner as recipients.
func Owner(id int64) Recipients {
	if id == 0 {
		return nil
	}
	return Recipients{id}
}

// Failure is one recipient that could not be notified.
type Failure struct {
	RecipientID int64
	Err         error
}

// Report summarizes a fan-out.
type Report struct {
	Event Event
	Sent  int

	// Unlinked counts notifications delivered without their relation
	// after the CMS rejected it.
	Unlinked int

	Failed []Failure
}

// OK reports whether every recipient was notified.
func (r Report) OK() bool { return len(r.Failed) == 0 }

// Warning returns the notice shown to the actor when some notifications
// failed, or nil.
func (r Report) Warning() *notice.Notice {
	if r.OK() {
		return nil
	}
	n := notice.Warning("Se actualizó, pero no se pudo notificar (%d de %d envíos fallaron).",
		len(r.Failed), len(r.Failed)+r.Sent)
	return &n
}

// Failed returns a report for a fan-out that could not start, e.g.
// because the recipients could not be listed.
func Failed(ev Event, err error) *Report {
	return &Report{Event: ev, Failed: []Failure{{Err: err}}}
}

// Outcome is the result of a write followed by its notifications.
type Outcome struct {
	Result mutation.Result

	// Report is nil when the write failed or nobody had to be notified.
	Report *Report
}

// Notices returns the notices to show for the outcome: the write's own
// result, then a warning if notifications failed.
func (o Outcome) Notices(success string) []notice.Notice {
	out := []notice.Notice{notice.FromResult(o.Result, success)}
	if o.Report != nil {
		if w := o.Report.Warning(); w != nil {
			out = append(out, *w)
		}
	}
	return out
}

// Notifier sends notifications.
type Notifier struct {
	client      *cms.Client
	staffRoles  []string
	concurrency int
	now         func() time.Time
	log         *slog.Logger
}

// NewNotifier returns a Notifier. staffRoles are the role names that
// receive review notifications.
func NewNotifier(client *cms.Client, staffRoles []string, log *slog.Logger) *Notifier {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Notifier{
		client:      client,
		staffRoles:  staffRoles,
		concurrency: 4,
		now:         time.Now,
		log:         log,
	}
}

// Staff returns every user whose role is a staff role. The user list is
// fetched with roles populated and filtered here because the CMS cannot
// filter users by role name for every caller.
func (n *Notifier) Staff(ctx context.Context, sess *session.Session) (Recipients, error) {
	return n.users(ctx, sess, func(u model.User) bool { return u.HasRole(n.staffRoles) })
}

// Everyone returns every user that is not blocked.
func (n *Notifier) Everyone(ctx context.Context, sess *session.Session) (Recipients, error) {
	return n.users(ctx, sess, func(u model.User) bool { return !u.Blocked })
}

func (n *Notifier) users(ctx context.Context, sess *session.Session, keep func(model.User) bool) (Recipients, error) {
	var raw []map[string]any
	q := cms.NewQuery().Set("populate", "role")
	if err := n.client.Get(ctx, sess.BearerToken(), "/users", q, &raw); err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}

	var out Recipients
	seen := map[int64]bool{}
	for _, r := range raw {
		rec, err := normalize.Normalize(r, normalize.Schema{})
		if err != nil {
			continue
		}
		var u model.User
		if err := normalize.Decode(rec, &u); err != nil {
			n.log.Debug("skipping undecodable user", "err", err)
			continue
		}
		if u.ID == 0 || seen[u.ID] || !keep(u) {
			continue
		}
		seen[u.ID] = true
		out = append(out, u.ID)
	}
	return out, nil
}

// Notify creates one notification per recipient. A create rejected
// because its relation does not exist is retried once without the
// relation. Failures are collected in the report and never returned as
// an error; calling Notify twice creates duplicates.
func (n *Notifier) Notify(
	ctx context.Context,
	sess *session.Session,
	ev Event,
	to Recipients,
	p Payload,
) Report {
	report := Report{Event: ev}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(n.concurrency)
	for _, id := range to {
		g.Go(func() error {
			unlinked, err := n.create(ctx, sess, id, p)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				n.log.Warn("notification failed", "event", ev, "recipient", id, "err", err)
				report.Failed = append(report.Failed, Failure{RecipientID: id, Err: err})
				return nil
			}
			report.Sent++
			if unlinked {
				report.Unlinked++
			}
			return nil
		})
	}
	_ = g.Wait()

	n.log.Info("notifications sent",
		"event", ev, "sent", report.Sent, "failed", len(report.Failed), "unlinked", report.Unlinked)
	return report
}

func (n *Notifier) create(ctx context.Context, sess *session.Session, recipient int64, p Payload) (bool, error) {
	body := map[string]any{
		"titulo":       p.Title,
		"mensaje":      p.Message,
		"tipo":         string(p.Type),
		"leida":        string(model.Unread),
		"receptor":     recipient,
		"fechaEmision": n.now().UTC().Format(cms.TimeLayout),
	}
	if id := sess.UserID(); id != 0 {
		body["emisor"] = id
	}
	linked := false
	if p.WorkItemID != 0 {
		body[fieldWorkItem] = p.WorkItemID
		linked = true
	}
	if p.AgendaID != 0 {
		body[fieldAgenda] = p.AgendaID
		linked = true
	}

	path := cms.CollectionPath(Collection)
	_, err := n.client.Write(ctx, http.MethodPost, sess.BearerToken(), path, body)
	if err == nil || !linked || !cms.IsRelationError(err) {
		return false, err
	}

	n.log.Debug("relation rejected, retrying without it", "recipient", recipient, "err", err)
	delete(body, fieldWorkItem)
	delete(body, fieldAgenda)
	if _, err := n.client.Write(ctx, http.MethodPost, sess.BearerToken(), path, body); err != nil {
		return false, err
	}
	return true, nil
}
