package medication

import "github.com/telecare/telecare/internal/platform/apperr"

var (
	ErrReviewNotFound         = apperr.NotFound("medication review")
	ErrReconciliationNotFound = apperr.NotFound("reconciliation")
	ErrDiscrepancyNotFound    = apperr.NotFound("discrepancy")
)
