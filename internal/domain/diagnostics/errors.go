package diagnostics

import "github.com/telecare/telecare/internal/platform/apperr"

var ErrTestNotFound = apperr.NotFound("diagnostic test")
