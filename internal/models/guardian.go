package models

import "time"

// Guardian is a parent or carer who may receive reflection notices.
type Guardian struct {
	ID           string    `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Relationship string    `db:"relationship" json:"relationship,omitempty"`
	Email        string    `db:"email" json:"email,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

// StudentGuardian is one entry of a student's ordered guardian list. Position 0 is primary.
type StudentGuardian struct {
	StudentID  string `db:"student_id" json:"studentId"`
	GuardianID string `db:"guardian_id" json:"guardianId"`
	Position   int    `db:"position" json:"position"`
}

// LinkGuardianRequest appends an existing guardian to a student's list.
type LinkGuardianRequest struct {
	GuardianID string `json:"guardianId" validate:"required"`
}
