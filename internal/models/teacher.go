package models

import "time"

// Teacher is a tutor who writes reflections. Read-only to the reflection pipeline.
type Teacher struct {
	ID           string    `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Subject      string    `db:"subject" json:"subject,omitempty"`
	Email        string    `db:"email" json:"email,omitempty"`
	EmployeeCode string    `db:"employee_code" json:"employeeCode,omitempty"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

// TeacherInfo is the public view of a teacher.
type TeacherInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Subject string `json:"subject,omitempty"`
}

// Info strips credentials.
func (t Teacher) Info() TeacherInfo {
	return TeacherInfo{ID: t.ID, Name: t.Name, Subject: t.Subject}
}
