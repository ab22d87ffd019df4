package models

import (
	"database/sql"
	"time"
)

const (
	RolePatient = "patient"
	RoleNurse   = "nurse"
	RoleDoctor  = "doctor"
	RoleAdmin   = "admin"
)

/*
|--------------------------------------------------------------------------
| DATABASE MODEL (INTERNAL)
|--------------------------------------------------------------------------
*/
type User struct {
	ID        string
	Name      string
	Email     string
	Password  string
	Role      string
	DoctorID  sql.NullString
	CreatedAt time.Time
	UpdatedAt time.Time
}

/*
|--------------------------------------------------------------------------
| REQUEST
|--------------------------------------------------------------------------
*/
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

/*
|--------------------------------------------------------------------------
| RESPONSE DTO
|--------------------------------------------------------------------------
*/
type UserResponse struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Email    string  `json:"email"`
	Role     string  `json:"role"`
	DoctorID *string `json:"doctor_id,omitempty"`
}

type LoginResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

func ToUserResponse(u User) UserResponse {
	var doctorID *string

	if u.DoctorID.Valid {
		doctorID = &u.DoctorID.String
	}

	return UserResponse{
		ID:       u.ID,
		Name:     u.Name,
		Email:    u.Email,
		Role:     u.Role,
		DoctorID: doctorID,
	}
}
