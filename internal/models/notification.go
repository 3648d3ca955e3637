package models

import "time"

// NotificationStatus is the outcome of a notify step.
type NotificationStatus string

const (
	NotificationSent    NotificationStatus = "sent"
	NotificationSkipped NotificationStatus = "skipped"
	NotificationFailed  NotificationStatus = "failed"
)

// Skip and failure reasons.
const (
	ReasonNoGuardian         = "no_guardian"
	ReasonMissingContact     = "missing_contact"
	ReasonDocumentIncomplete = "document_incomplete"
	ReasonDisabled           = "disabled"
	ReasonPermission         = "permission"
	ReasonSend               = "send"
	ReasonGuardianLookup     = "guardian_lookup"
)

// NotificationResult reports what happened to the primary guardian's notice.
type NotificationResult struct {
	Status     NotificationStatus `json:"status"`
	Reason     string             `json:"reason,omitempty"`
	GuardianID string             `json:"guardianId,omitempty"`
	Recipient  string             `json:"recipient,omitempty"`
	Granted    bool               `json:"granted"`
	Retryable  bool               `json:"retryable,omitempty"`
	Error      string             `json:"error,omitempty"`
}

// NotificationLog is the recorded outcome of one notify attempt.
type NotificationLog struct {
	ID           string             `db:"id" json:"id"`
	ReflectionID *string            `db:"reflection_id" json:"reflectionId,omitempty"`
	DocumentID   string             `db:"document_id" json:"documentId"`
	StudentID    string             `db:"student_id" json:"studentId"`
	GuardianID   *string            `db:"guardian_id" json:"guardianId,omitempty"`
	Recipient    string             `db:"recipient" json:"recipient"`
	Status       NotificationStatus `db:"status" json:"status"`
	Reason       string             `db:"reason" json:"reason"`
	CreatedAt    time.Time          `db:"created_at" json:"createdAt"`
}
