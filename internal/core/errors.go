package core

import "errors"

// Error kinds surfaced by the task manager and the store. The API layer
// maps these to HTTP status codes with errors.Is.
var (
	// ErrInvalidPhoneNumber rejects anything but exactly 10 numeric digits.
	ErrInvalidPhoneNumber = errors.New("phone number must be exactly 10 digits")
	// ErrInvalidInterval rejects intervals outside [1, 3600] seconds.
	ErrInvalidInterval = errors.New("interval must be between 1 and 3600 seconds")
	// ErrTaskNotFound means no live record exists for the id.
	ErrTaskNotFound = errors.New("task not found")
	// ErrTaskRunning rejects deleting a task that is still running.
	ErrTaskRunning = errors.New("task is running; stop it first")
	// ErrDuplicateTask rejects registering a second runner for the same id.
	ErrDuplicateTask = errors.New("task already has an active runner")
)
