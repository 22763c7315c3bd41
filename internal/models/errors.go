package models

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrTimeout           = errors.New("timeout")
	ErrBusy              = errors.New("a publication is already in progress")
	ErrNetwork           = errors.New("network error")
	ErrAutomation        = errors.New("automation error")
	ErrInvalidTransition = errors.New("invalid status transition")
)
