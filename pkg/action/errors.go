package action

import (
	"fmt"
	"net/http"
)

// DeviceNotFoundError reports that the platform has no reachable playback
// target. The user can fix it by opening the platform's app.
type DeviceNotFoundError struct {
	Platform string
}

func (e *DeviceNotFoundError) Error() string {
	return fmt.Sprintf("no active %s device", e.Platform)
}

// ExternalAPIError reports an upstream platform failure. Code is the HTTP
// status, or zero when the platform could not be reached at all.
type ExternalAPIError struct {
	Code     int
	Platform string
	Action   string
	Err      error
}

func (e *ExternalAPIError) Error() string {
	msg := fmt.Sprintf("%s %s failed", e.Platform, e.Action)
	if e.Code != 0 {
		msg += fmt.Sprintf(" with status %d", e.Code)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ExternalAPIError) Unwrap() error { return e.Err }

// UserMessage returns the apology shown to the user.
func (e *ExternalAPIError) UserMessage() string {
	if e.Code == 0 {
		return TranslateError(errorNetwork, e.Platform, e.Action)
	}
	return TranslateError(fmt.Sprint(e.Code), e.Platform, e.Action)
}

// Unauthorized reports whether the platform rejected the access token.
func (e *ExternalAPIError) Unauthorized() bool {
	return e.Code == http.StatusUnauthorized
}
