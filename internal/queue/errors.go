package queue

import "errors"

var (
	ErrNotFound          = errors.New("queue entry not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidState      = errors.New("priority can only change while waiting")
	ErrAlreadyAssigned   = errors.New("queue number already assigned")
	ErrQueueEmpty        = errors.New("no waiting patients")
	ErrDoctorBusy        = errors.New("doctor already has a called or in-progress patient")
)
