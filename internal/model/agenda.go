package model

import "time"

// AgendaItem is a calendar event. Agenda items are visible as soon as an
// authorized role creates them.
type AgendaItem struct {
	ID         int64  `mapstructure:"id" json:"id"`
	DocumentID string `mapstructure:"documentId" json:"documentId,omitempty"`

	Title string `mapstructure:"tituloActividad" json:"tituloActividad"`
	Body  string `mapstructure:"contenidoActividad" json:"contenidoActividad,omitempty"`

	// Date is the event day. Only the calendar date is meaningful.
	Date time.Time `mapstructure:"fecha" json:"fecha"`

	Image   *Media    `mapstructure:"imagen" json:"imagen,omitempty"`
	Creator *UserRef  `mapstructure:"creador" json:"creador,omitempty"`
	Created time.Time `mapstructure:"createdAt" json:"createdAt"`
}

// OwnedBy reports whether the event was created by the given user.
func (a AgendaItem) OwnedBy(userID int64) bool {
	return a.Creator != nil && userID != 0 && a.Creator.ID == userID
}
