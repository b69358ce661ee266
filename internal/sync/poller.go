// Package sync polls the CMS inbox in the background and keeps the local
// read cache current.
package sync

import (
	"context"
	"errors"
	"io"
	"log/slog"
	gosync "sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/malharro-cms/internal/cms"
	"github.com/nhle/malharro-cms/internal/inbox"
	"github.com/nhle/malharro-cms/internal/model"
	"github.com/nhle/malharro-cms/internal/session"
	"github.com/nhle/malharro-cms/internal/store"
)

// SyncState represents the current state of the inbox poll.
type SyncState int

const (
	SyncIdle SyncState = iota
	SyncRunning
	SyncError
)

// SyncStatus holds the poll state.
type SyncStatus struct {
	State    SyncState
	LastSync time.Time
	Error    error
}

// SyncResultMsg is a tea.Msg sent when a poll completes.
type SyncResultMsg struct {
	Items   []model.Notification
	Variant inbox.Variant
	Dropped int
	Error   error

	AuthError *AuthErrorMsg

	// NewCount is how many notifications were not cached before.
	NewCount int

	// Pruned is how many cached notifications the CMS no longer returns.
	Pruned int
}

// AuthErrorMsg is a tea.Msg sent when the CMS rejects the session.
type AuthErrorMsg struct {
	Message string
}

// Lister loads one page of the inbox.
type Lister interface {
	List(ctx context.Context, sess *session.Session) (inbox.Page, error)
}

const expiredMessage = "La sesión expiró. Volvé a iniciar sesión."

// fetchTimeout is the maximum time allowed for a single poll.
const fetchTimeout = 30 * time.Second

// DefaultInterval is used when no poll interval is configured.
const DefaultInterval = 120 * time.Second

// Poller refreshes the inbox of one session on an interval.
type Poller struct {
	lister   Lister
	store    store.Store
	sess     *session.Session
	interval time.Duration
	log      *slog.Logger

	status    SyncStatus
	resultCh  chan SyncResultMsg
	triggerCh chan struct{}
	stopCh    chan struct{}
	mu        gosync.Mutex
	running   bool
}

// New creates a Poller for sess. A nil store disables caching.
func New(lister Lister, s store.Store, sess *session.Session, interval time.Duration, log *slog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Poller{
		lister:    lister,
		store:     s,
		sess:      sess,
		interval:  interval,
		log:       log,
		resultCh:  make(chan SyncResultMsg, 16),
		triggerCh: make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
	}
}

// Start returns a tea.Cmd that starts the polling goroutine and waits for
// its first result.
func (p *Poller) Start() tea.Cmd {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = true
	p.mu.Unlock()

	go p.loop()

	return p.waitForResult()
}

// Stop halts the polling goroutine.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}

	close(p.stopCh)
	p.running = false
}

// Refresh triggers an immediate poll.
func (p *Poller) Refresh() {
	select {
	case p.triggerCh <- struct{}{}:
	default:
		// A poll is already pending.
	}
}

// Status returns the current poll state.
func (p *Poller) Status() SyncStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *Poller) loop() {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.sendResult(p.Poll(context.Background()))

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.sendResult(p.Poll(context.Background()))
		case <-p.triggerCh:
			p.sendResult(p.Poll(context.Background()))
		}
	}
}

// Poll lists the inbox once, updates the cache and returns the outcome.
func (p *Poller) Poll(ctx context.Context) SyncResultMsg {
	p.setStatus(SyncRunning, nil)

	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	if err := session.CheckExpiry(p.sess.BearerToken(), time.Now()); err != nil {
		p.setStatus(SyncError, err)
		return SyncResultMsg{Error: err, AuthError: &AuthErrorMsg{
			Message: expiredMessage,
		}}
	}

	page, err := p.lister.List(ctx, p.sess)
	if err != nil {
		p.setStatus(SyncError, err)
		p.saveState(ctx, page, err)

		if cms.IsUnauthorized(err) || errors.Is(err, session.ErrExpired) {
			return SyncResultMsg{Error: err, AuthError: &AuthErrorMsg{
				Message: expiredMessage,
			}}
		}
		return SyncResultMsg{Error: err}
	}

	result := SyncResultMsg{
		Items:   page.Items,
		Variant: page.Variant,
		Dropped: page.Dropped,
	}

	if p.store != nil {
		created, err := p.store.UpsertNotifications(ctx, page.Items)
		if err != nil {
			p.setStatus(SyncError, err)
			result.Error = err
			return result
		}
		result.NewCount = created

		// Per-item listings may have dropped records that still exist.
		if page.Dropped == 0 {
			pruned, err := p.store.PruneNotifications(ctx, p.sess.UserID(), page.Items)
			if err != nil {
				p.log.Warn("pruning cached notifications failed", "err", err)
			}
			result.Pruned = pruned
		}
		p.saveState(ctx, page, nil)
	}

	if page.Dropped > 0 {
		p.log.Warn("inbox loaded with missing items", "variant", page.Variant, "dropped", page.Dropped)
	}
	p.log.Debug("inbox polled", "items", len(page.Items), "new", result.NewCount, "variant", page.Variant)

	p.setStatus(SyncIdle, nil)
	return result
}

func (p *Poller) saveState(ctx context.Context, page inbox.Page, err error) {
	if p.store == nil {
		return
	}
	st := store.SyncState{
		RecipientID: p.sess.UserID(),
		LastSync:    time.Now(),
		Variant:     page.Variant.String(),
		Dropped:     page.Dropped,
	}
	if err != nil {
		st.Variant = ""
		st.LastError = err.Error()
	}
	if serr := p.store.SaveSyncState(ctx, st); serr != nil {
		p.log.Warn("saving sync state failed", "err", serr)
	}
}

// setStatus updates the poll status.
func (p *Poller) setStatus(state SyncState, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status.State = state
	p.status.Error = err
	if state == SyncIdle && err == nil {
		p.status.LastSync = time.Now()
	}
}

// sendResult sends a SyncResultMsg on the result channel without blocking.
func (p *Poller) sendResult(msg SyncResultMsg) {
	select {
	case p.resultCh <- msg:
	default:
		// Drop if channel is full to avoid blocking the poller
	}
}

// waitForResult returns a tea.Cmd that waits for the next result from
// the result channel.
func (p *Poller) waitForResult() tea.Cmd {
	return func() tea.Msg {
		result, ok := <-p.resultCh
		if !ok {
			return nil
		}
		return result
	}
}

// WaitForNextResult returns a tea.Cmd that waits for the next poll result.
// Call it after handling a SyncResultMsg to keep listening.
func (p *Poller) WaitForNextResult() tea.Cmd {
	return p.waitForResult()
}
