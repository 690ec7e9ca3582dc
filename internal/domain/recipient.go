package domain

import "github.com/google/uuid"

// RecipientType distinguishes the two recipient tables the engine reads.
type RecipientType string

const (
	RecipientLead    RecipientType = "lead"
	RecipientStudent RecipientType = "student"
)

// Valid reports whether r is a known recipient type.
func (r RecipientType) Valid() bool {
	return r == RecipientLead || r == RecipientStudent
}

// Recipient is the view of a lead or student the engine needs for
// dispatch and variable substitution. The engine reads but never owns
// these records.
type Recipient struct {
	ID        uuid.UUID     `json:"id"`
	Type      RecipientType `json:"type"`
	FirstName string        `json:"first_name"`
	LastName  string        `json:"last_name"`
	Email     string        `json:"email"`
	Phone     string        `json:"phone"`
}

// BusinessSettings is the global settings snapshot used for variable
// substitution and deep-link generation.
type BusinessSettings struct {
	BusinessName string `json:"business_name"`
	AIName       string `json:"ai_name"`
	ContactEmail string `json:"contact_email"`
	ContactPhone string `json:"contact_phone"`
	BaseURL      string `json:"base_url"`
}
