package models

import (
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Student is a learner. FolderID stays nil until the first document is materialized.
type Student struct {
	ID            string    `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	Grade         string    `db:"grade" json:"grade,omitempty"`
	Memo          string    `db:"memo" json:"memo,omitempty"`
	FolderID      *string   `db:"drive_folder_id" json:"folderId,omitempty"`
	DriveParentID string    `db:"drive_parent_id" json:"driveParentId,omitempty"`
	NameKey       string    `db:"name_key" json:"-"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
}

// StudentNameKey folds a name for matching: NFKC, runs of whitespace collapsed to one
// space, lower case. "青山　太郎" and "青山 太郎" share a key.
func StudentNameKey(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(norm.NFKC.String(name)), " "))
}

// HasContainer reports whether the student's folder reference is populated.
func (s Student) HasContainer() bool {
	return s.FolderID != nil && *s.FolderID != ""
}

// StudentFilter captures the search parameters for listing students.
type StudentFilter struct {
	Search   string
	Page     int
	PageSize int
}

// StudentDetail is a student with its guardians in link order.
type StudentDetail struct {
	Student
	Guardians []Guardian `json:"guardians"`
}
