package models

import "time"

// Class names an action family with its own (window, max) pair.
type Class string

const (
	ClassLogin         Class = "login"
	ClassPasswordReset Class = "password_reset"
	ClassAPI           Class = "api"
)

func (c Class) IsValid() bool {
	switch c {
	case ClassLogin, ClassPasswordReset, ClassAPI:
		return true
	}
	return false
}

func (c Class) String() string {
	return string(c)
}

// Result is the outcome of a single check. RetryAfter is whole seconds and only
// set when the request is denied.
type Result struct {
	Allowed    bool      `json:"allowed"`
	Limit      int       `json:"limit"`
	Remaining  int       `json:"remaining"`
	ResetAt    time.Time `json:"reset_at"`
	RetryAfter int       `json:"retry_after,omitempty"`

	// FailedOpen marks a result produced without consulting the counter store.
	FailedOpen bool `json:"-"`
}

// Allowed builds a permitted result.
func Allowed(limit, remaining int, resetAt time.Time) *Result {
	if remaining < 0 {
		remaining = 0
	}
	return &Result{Allowed: true, Limit: limit, Remaining: remaining, ResetAt: resetAt}
}

// Denied builds a rejected result. retryAfter is rounded up to a whole second
// and is never below one.
func Denied(limit int, resetAt time.Time, retryAfter time.Duration) *Result {
	return &Result{
		Limit:      limit,
		ResetAt:    resetAt,
		RetryAfter: RetryAfterSeconds(retryAfter),
	}
}

// RetryAfterSeconds rounds d up to whole seconds, minimum one.
func RetryAfterSeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}
