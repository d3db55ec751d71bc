package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// ErrConfiguration marks a campaign whose group/list mapping is unusable.
	// Fatal for that campaign only.
	ErrConfiguration = fmt.Errorf("campaign configuration error")

	// Roster errors
	ErrNotFound           = fmt.Errorf("not found")
	ErrRosterUnavailable  = fmt.Errorf("roster unavailable")
	ErrProfileResolution  = fmt.Errorf("profile resolution failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")

	// Audience errors
	ErrAPIRequest       = fmt.Errorf("API request failed")
	ErrAudienceService  = fmt.Errorf("audience service error")
	ErrNotAuthenticated = fmt.Errorf("not authenticated")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
