package mutation

import (
	"strconv"

	"github.com/nhle/malharro-cms/internal/normalize"
)

// Key names the record a write targets. Some endpoints address records
// by numeric id and others by document id, so callers state which one
// they hold.
type Key struct {
	ID         int64
	DocumentID string
}

// ByID returns a key for a numeric id.
func ByID(id int64) Key { return Key{ID: id} }

// ByDocumentID returns a key for a document id.
func ByDocumentID(documentID string) Key { return Key{DocumentID: documentID} }

// KeyOf returns every identifier the record exposes.
func KeyOf(rec normalize.Record) Key {
	return Key{ID: rec.ID(), DocumentID: rec.DocumentID()}
}

// IsZero reports whether the key holds no identifier.
func (k Key) IsZero() bool { return k.ID == 0 && k.DocumentID == "" }

// Segment returns the path segment used to address the record. The
// numeric id wins when both are known.
func (k Key) Segment() string {
	if k.ID != 0 {
		return strconv.FormatInt(k.ID, 10)
	}
	return k.DocumentID
}

// Matches reports whether rec is the record k names.
func (k Key) Matches(rec normalize.Record) bool {
	if k.ID != 0 && rec.ID() == k.ID {
		return true
	}
	return k.DocumentID != "" && rec.DocumentID() == k.DocumentID
}

func (k Key) String() string {
	switch {
	case k.ID != 0 && k.DocumentID != "":
		return strconv.FormatInt(k.ID, 10) + "/" + k.DocumentID
	case k.IsZero():
		return "<none>"
	default:
		return k.Segment()
	}
}
