package model

import "time"

// ApprovalStatus is the moderation state of a work item as stored by the CMS.
type ApprovalStatus string

const (
	StatusPending  ApprovalStatus = "pendiente"
	StatusApproved ApprovalStatus = "aprobada"
	StatusRejected ApprovalStatus = "rechazada"
)

// allowedTransitions lists the moderator-driven status changes.
var allowedTransitions = map[ApprovalStatus][]ApprovalStatus{
	StatusPending:  {StatusApproved, StatusRejected},
	StatusApproved: {StatusRejected},
	StatusRejected: {StatusApproved},
}

// Valid reports whether s is one of the known statuses.
func (s ApprovalStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Label returns the human-readable Spanish label used in notifications.
func (s ApprovalStatus) Label() string {
	switch s {
	case StatusApproved:
		return "aprobada"
	case StatusRejected:
		return "rechazada"
	default:
		return "pendiente"
	}
}

// CanTransition reports whether a moderator may move a work item from
// one status to another.
func CanTransition(from, to ApprovalStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// StatusAfterOwnerEdit returns the status an item takes once its owner
// edits the content. Any edit sends the item back to moderation.
func StatusAfterOwnerEdit(ApprovalStatus) ApprovalStatus {
	return StatusPending
}

// WorkItem is a student submission ("usina") shown in the gallery once
// approved.
type WorkItem struct {
	// ID is the numeric primary key used for writes.
	ID int64 `mapstructure:"id" json:"id"`

	// DocumentID is the alternate identifier stable across publishes.
	DocumentID string `mapstructure:"documentId" json:"documentId,omitempty"`

	Title   string         `mapstructure:"titulo" json:"titulo"`
	Program string         `mapstructure:"carrera" json:"carrera,omitempty"`
	Link    string         `mapstructure:"link" json:"link,omitempty"`
	Status  ApprovalStatus `mapstructure:"aprobado" json:"aprobado"`

	// RejectionReason is set when a moderator rejects the item.
	RejectionReason string `mapstructure:"motivoRechazo" json:"motivoRechazo,omitempty"`

	Media   *Media    `mapstructure:"media" json:"media,omitempty"`
	Creator *UserRef  `mapstructure:"creador" json:"creador,omitempty"`
	Created time.Time `mapstructure:"createdAt" json:"createdAt"`
}

// OwnedBy reports whether the item was created by the given user.
func (w WorkItem) OwnedBy(userID int64) bool {
	return w.Creator != nil && userID != 0 && w.Creator.ID == userID
}
