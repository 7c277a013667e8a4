package plan

import "errors"

var (
	ErrPlanNotFound         = errors.New("plan not found")
	ErrFailedToLoadPlans    = errors.New("failed to load plans")
	ErrInvalidConfiguration = errors.New("invalid plan configuration")
)
