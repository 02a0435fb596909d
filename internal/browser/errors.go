package browser

import "errors"

var (
	// ErrNavigationFailed means every navigation attempt ended without a 200
	// document response.
	ErrNavigationFailed = errors.New("browser: navigation failed")

	// ErrFetchFailed means a buffered request finished without a 200 response.
	ErrFetchFailed = errors.New("browser: fetch failed")

	// ErrStaleRequest is handed to waiters still parked when the tab navigated away.
	ErrStaleRequest = errors.New("browser: request superseded by navigation")
)
