package appointment

import "github.com/telecare/telecare/internal/platform/apperr"

var ErrAppointmentNotFound = apperr.NotFound("appointment")
