package persistence

import "errors"

// ErrPlanNotFound is returned when the requested plan does not exist for the
// athlete. Cross-athlete reads surface as not-found rather than forbidden.
var ErrPlanNotFound = errors.New("training plan not found")
