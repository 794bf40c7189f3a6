package models

import "time"

// Delivery is a rendered notification waiting to be handed to a mail provider.
type Delivery struct {
	ID           string    `json:"id"`
	Kind         string    `json:"kind"`
	InvitationID int64     `json:"invitation_id"`
	To           string    `json:"to"`
	Subject      string    `json:"subject"`
	TextBody     string    `json:"text_body"`
	HTMLBody     string    `json:"html_body,omitempty"`
	Attempts     int       `json:"attempts"`
	CreatedAt    time.Time `json:"created_at"`
}
