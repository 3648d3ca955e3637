package models

// SubmitRequest finalizes a session into a document.
type SubmitRequest struct {
	SessionKey           string  `json:"sessionKey" validate:"required"`
	TeacherID            string  `json:"teacherId"`
	StudentID            string  `json:"studentId" validate:"required"`
	Payload              Payload `json:"payload"`
	CopyPreviousSourceID string  `json:"copyPreviousSourceId,omitempty"`
	DriveParentOverride  string  `json:"driveParentOverride,omitempty"`
	Template             string  `json:"template,omitempty"`
}

// MaterializeInput is everything the document step needs.
type MaterializeInput struct {
	Student              Student
	TeacherName          string
	TemplateName         string
	DriveParentOverride  string
	Payload              Payload
	CopyPreviousSourceID string
}

// MaterializeResult describes the produced document. Incomplete means the document exists
// but not every field was written into it.
type MaterializeResult struct {
	Document   DocumentRef  `json:"document"`
	Container  ContainerRef `json:"container"`
	Copied     bool         `json:"copied"`
	Incomplete bool         `json:"incomplete"`
	Issues     []string     `json:"issues,omitempty"`
}

// SubmissionResult is returned to the editor after a submit. The document section always
// reflects the true state of the document regardless of the notification outcome.
type SubmissionResult struct {
	ReflectionID string             `json:"reflectionId,omitempty"`
	Document     DocumentRef        `json:"document"`
	Container    ContainerRef       `json:"container"`
	Incomplete   bool               `json:"incomplete"`
	Issues       []string           `json:"issues,omitempty"`
	Notification NotificationResult `json:"notification"`
}
