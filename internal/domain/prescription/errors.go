package prescription

import "github.com/telecare/telecare/internal/platform/apperr"

var ErrPrescriptionNotFound = apperr.NotFound("prescription")
