package model

import "time"

// NotificationType classifies what a notification is about.
type NotificationType string

const (
	NotificationWorkItem NotificationType = "usina"
	NotificationAgenda   NotificationType = "agenda"
	NotificationSystem   NotificationType = "sistema"
)

// ReadState is the read flag as stored by the CMS. It only moves from
// unread to read.
type ReadState string

const (
	Unread ReadState = "no-leida"
	Read   ReadState = "leida"
)

// Notification is an inbox entry addressed to exactly one recipient.
type Notification struct {
	// ID is the numeric key. Some list endpoints omit it; see resolve.
	ID int64 `mapstructure:"id" json:"id,omitempty"`

	// DocumentID is the alternate identifier.
	DocumentID string `mapstructure:"documentId" json:"documentId,omitempty"`

	Title   string           `mapstructure:"titulo" json:"titulo"`
	Message string           `mapstructure:"mensaje" json:"mensaje"`
	Type    NotificationType `mapstructure:"tipo" json:"tipo"`
	State   ReadState        `mapstructure:"leida" json:"leida"`

	CreatedAt time.Time  `mapstructure:"createdAt" json:"createdAt"`
	EmittedAt *time.Time `mapstructure:"fechaEmision" json:"fechaEmision,omitempty"`

	Sender    *UserRef     `mapstructure:"emisor" json:"emisor,omitempty"`
	Recipient *UserRef     `mapstructure:"receptor" json:"receptor,omitempty"`
	WorkItem  *WorkItemRef `mapstructure:"usinaAfectada" json:"usinaAfectada,omitempty"`
	Agenda    *AgendaRef   `mapstructure:"agendaAfectada" json:"agendaAfectada,omitempty"`
}

// IsRead reports whether the recipient has opened the notification.
func (n Notification) IsRead() bool { return n.State == Read }

// RecipientID returns the recipient's id or zero when the relation was
// not populated.
func (n Notification) RecipientID() int64 {
	if n.Recipient == nil {
		return 0
	}
	return n.Recipient.ID
}

// WorkItemRef is the reduced form of a work item linked from a notification.
type WorkItemRef struct {
	ID     int64          `mapstructure:"id" json:"id"`
	Title  string         `mapstructure:"titulo" json:"titulo,omitempty"`
	Status ApprovalStatus `mapstructure:"aprobado" json:"aprobado,omitempty"`
}

// AgendaRef is the reduced form of an agenda item linked from a notification.
type AgendaRef struct {
	ID    int64  `mapstructure:"id" json:"id"`
	Title string `mapstructure:"tituloActividad" json:"tituloActividad,omitempty"`
	Date  string `mapstructure:"fecha" json:"fecha,omitempty"`
}
