package domain

import "errors"

var (
	// ErrBankNotFound indicates the question bank could not be loaded.
	ErrBankNotFound = errors.New("question bank not found")
	// ErrEmptyTeamName is returned when a registration carries no usable name.
	ErrEmptyTeamName = errors.New("team name is empty")
)
