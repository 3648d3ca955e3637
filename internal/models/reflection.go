package models

import "time"

// Reflection is one submitted lesson reflection and the document it produced.
type Reflection struct {
	ID               string    `db:"id" json:"id"`
	SessionKey       string    `db:"session_key" json:"sessionKey"`
	StudentID        string    `db:"student_id" json:"studentId"`
	TeacherID        string    `db:"teacher_id" json:"teacherId"`
	TemplateName     string    `db:"template_name" json:"templateName"`
	DocumentID       string    `db:"document_id" json:"documentId"`
	DocumentURL      string    `db:"document_url" json:"documentUrl"`
	FolderID         string    `db:"folder_id" json:"folderId"`
	SourceDocumentID *string   `db:"source_document_id" json:"sourceDocumentId,omitempty"`
	Payload          Payload   `db:"payload" json:"payload"`
	Incomplete       bool      `db:"incomplete" json:"incomplete"`
	SubmittedAt      time.Time `db:"submitted_at" json:"submittedAt"`
}

// ReflectionDetail is a reflection with the recorded outcomes of its notifications.
type ReflectionDetail struct {
	Reflection
	Notifications []NotificationLog `json:"notifications"`
}
