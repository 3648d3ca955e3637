package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LoginRequest holds a teacher's credentials.
type LoginRequest struct {
	EmployeeCode string `json:"employeeCode" validate:"required,max=64"`
	Password     string `json:"password" validate:"required"`
}

// LoginResponse returns the issued access token and the teacher it belongs to.
type LoginResponse struct {
	AccessToken string      `json:"accessToken"`
	ExpiresIn   int64       `json:"expiresIn"`
	Teacher     TeacherInfo `json:"teacher"`
	IssuedAt    time.Time   `json:"issuedAt"`
}

// JWTClaims is the access token payload. The subject is the teacher id.
type JWTClaims struct {
	TeacherID string `json:"teacherId"`
	Name      string `json:"name"`
	jwt.RegisteredClaims
}
