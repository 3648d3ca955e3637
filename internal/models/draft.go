package models

import "time"

// Draft is the last autosaved form state of a session.
type Draft struct {
	SessionKey string       `json:"sessionKey"`
	Payload    DraftPayload `json:"payload"`
	UpdatedAt  time.Time    `json:"updatedAt"`
}

// SaveDraftRequest carries the complete current form state, never a diff. Values are not
// validated.
type SaveDraftRequest struct {
	SessionKey string       `json:"sessionKey" validate:"required"`
	Payload    DraftPayload `json:"payload"`
}

// DraftAck acknowledges an autosave.
type DraftAck struct {
	SessionKey string    `json:"sessionKey"`
	SavedAt    time.Time `json:"savedAt"`
}
