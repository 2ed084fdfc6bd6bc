package auth

// Scopes granted to platform tokens. Coach and athlete tokens carry
// different subsets; sync:run is reserved for internal schedulers.
const (
	ScopePlansRead       = "plans:read"
	ScopePlansWrite      = "plans:write"
	ScopeActivitiesRead  = "activities:read"
	ScopeActivitiesWrite = "activities:write"
	ScopeSyncRun         = "sync:run"
)
