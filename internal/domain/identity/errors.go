package identity

import "github.com/telecare/telecare/internal/platform/apperr"

var (
	ErrAccountNotFound = apperr.NotFound("account")
	ErrDoctorNotFound  = apperr.NotFound("doctor")
	ErrPatientNotFound = apperr.NotFound("patient")
)
