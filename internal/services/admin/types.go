package admin

import "errors"

var (
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidInput = errors.New("invalid input")
)

type CreateUserRequest struct {
	Email string `json:"email" validate:"required,email"`
	Name  string `json:"name" validate:"max=200"`
	Role  string `json:"role" validate:"omitempty,oneof=user admin super_admin"`
}

type UpdateUserRequest struct {
	Email string `json:"email" validate:"required,email"`
	Name  string `json:"name" validate:"max=200"`
}

type SetRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=user admin super_admin"`
}

type ReportTypeRequest struct {
	Name   string `json:"name" validate:"required,max=200"`
	Prompt string `json:"prompt"`
}

type AssignRequest struct {
	UserIDs []string `json:"user_ids" validate:"dive,required"`
}
