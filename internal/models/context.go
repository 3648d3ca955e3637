package models

import "time"

// ContextMode selects how the student of a session is resolved.
type ContextMode string

const (
	ModeExisting ContextMode = "existing"
	ModeNew      ContextMode = "new"
)

// Value layers, lowest precedence first.
const (
	LayerTemplate = "template"
	LayerPrevious = "previous"
	LayerDraft    = "draft"
)

// ContextRequest is the query of a start-session call.
type ContextRequest struct {
	Mode         ContextMode `form:"mode" validate:"required,oneof=existing new"`
	TeacherID    string      `form:"teacherId"`
	StudentID    string      `form:"studentId"`
	StudentName  string      `form:"studentName"`
	CopyPrevious bool        `form:"copyPrevious"`
	Template     string      `form:"template"`
}

// FieldDefinition describes one editable template field.
type FieldDefinition struct {
	Name      string `json:"name"`
	Label     string `json:"label"`
	Required  bool   `json:"required"`
	Multiline bool   `json:"multiline,omitempty"`
	Default   string `json:"default,omitempty"`
}

// DocumentRef points at a generated document.
type DocumentRef struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// ContainerRef points at a student's folder.
type ContainerRef struct {
	ID      string `json:"id"`
	URL     string `json:"url"`
	Created bool   `json:"created"`
}

// SessionContext is the initial state handed to an editing session. It is built fresh on
// each request and never stored.
type SessionContext struct {
	SessionKey       string            `json:"sessionKey"`
	Mode             ContextMode       `json:"mode"`
	Student          StudentLabel      `json:"student"`
	StudentCreated   bool              `json:"studentCreated"`
	Teacher          TeacherInfo       `json:"teacher"`
	TemplateName     string            `json:"templateName"`
	Fields           []FieldDefinition `json:"fields"`
	Values           Payload           `json:"values"`
	Sources          map[string]string `json:"sources"`
	PreviousFound    bool              `json:"previousFound"`
	PreviousDocument *DocumentRef      `json:"previousDocument,omitempty"`
	DraftFound       bool              `json:"draftFound"`
	DraftUpdatedAt   *time.Time        `json:"draftUpdatedAt,omitempty"`
}

// StudentLabel is the resolved student shown to the editor.
type StudentLabel struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Grade string `json:"grade,omitempty"`
}
