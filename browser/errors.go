package browser

import "errors"

var (
	// ErrNotStarted is returned when a tab is requested before Start.
	ErrNotStarted = errors.New("browser: not started")

	// ErrTabNotFound is returned by AttachTab when no open tab matches.
	ErrTabNotFound = errors.New("browser: no matching tab")

	// ErrTargetNotFound is returned when a pulse target does not match any element.
	ErrTargetNotFound = errors.New("browser: pulse target not found")

	// ErrNotPulsing is returned by WaitSelected for a target that is not pulsing.
	ErrNotPulsing = errors.New("browser: target is not pulsing")

	// ErrPulseStopped is returned by WaitSelected when the pulse was stopped
	// before the user selected the target.
	ErrPulseStopped = errors.New("browser: pulse stopped")
)
