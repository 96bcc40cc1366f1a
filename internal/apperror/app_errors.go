package apperror

import "errors"

var (
	ErrInvalidCell     = errors.New("invalid cell index")
	ErrCorruptSession  = errors.New("session state is inconsistent")
	ErrEmptySessionID  = errors.New("session id is empty")
	ErrUnknownAction   = errors.New("unknown action")
	ErrMissingArgument = errors.New("missing argument")
)
