package mutation

import (
	"errors"
	"fmt"
	"sync"

	"github.com/nhle/malharro-cms/internal/cms"
	"github.com/nhle/malharro-cms/internal/normalize"
)

// Op is the kind of change a successful write makes to a local list.
type Op int

const (
	OpInsert Op = iota
	OpReplace
	OpRemove
)

func (o Op) String() string {
	switch o {
	case OpInsert:
		return "insert"
	case OpReplace:
		return "replace"
	case OpRemove:
		return "remove"
	}
	return fmt.Sprintf("Op(%d)", int(o))
}

// LocalPatch is the change to apply to in-memory list state after a
// write, so the list does not need to be refetched.
type LocalPatch struct {
	Op     Op
	Key    Key
	Record normalize.Record
}

// Failure describes a write that did not happen.
type Failure struct {
	Kind    cms.ErrorKind
	Message string
	Err     error
}

// Result is returned by every write: exactly one of Applied and Failed
// is set.
type Result struct {
	Applied *LocalPatch
	Failed  *Failure
}

// OK reports whether the write succeeded.
func (r Result) OK() bool { return r.Failed == nil }

// Err returns the failure's error, or nil.
func (r Result) Err() error {
	if r.Failed == nil {
		return nil
	}
	return r.Failed.Err
}

func applied(p LocalPatch) Result { return Result{Applied: &p} }

// Failed returns the result of a write that was refused or failed.
func Failed(err error) Result {
	f := &Failure{Kind: cms.KindOf(err), Message: err.Error(), Err: err}
	var up *UploadFailedError
	if errors.As(err, &up) {
		f.Message = up.Message
	}
	return Result{Failed: f}
}

// ListState is an in-memory list of records kept in sync with writes by
// applying their patches. It may drift from the CMS until the next full
// load.
type ListState struct {
	mu    sync.Mutex
	items []normalize.Record
}

// NewListState returns a list holding items.
func NewListState(items []normalize.Record) *ListState {
	l := &ListState{}
	l.Replace(items)
	return l
}

// Replace swaps in a freshly loaded list.
func (l *ListState) Replace(items []normalize.Record) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = append([]normalize.Record(nil), items...)
}

// Apply applies a patch. Inserted records go first; a replace of an
// unknown record inserts it. A nil patch is ignored.
func (l *ListState) Apply(p *LocalPatch) {
	if p == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	idx := -1
	for i, rec := range l.items {
		if p.Key.Matches(rec) {
			idx = i
			break
		}
	}

	switch p.Op {
	case OpRemove:
		if idx >= 0 {
			l.items = append(l.items[:idx:idx], l.items[idx+1:]...)
		}
	case OpInsert, OpReplace:
		if idx >= 0 {
			l.items[idx] = p.Record
			return
		}
		l.items = append([]normalize.Record{p.Record}, l.items...)
	}
}

// Items returns a copy of the current list.
func (l *ListState) Items() []normalize.Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]normalize.Record(nil), l.items...)
}

// Len returns the number of records.
func (l *ListState) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}
