package features

import "errors"

var (
	// Fatal: the call is apologised to and hung up.
	ErrPromptMissing  = errors.New("prompt missing")
	ErrStorageFailure = errors.New("storage failure")

	// Recovered: the survey carries on.
	ErrSessionConflict      = errors.New("session conflict")
	ErrSessionLost          = errors.New("session lost")
	ErrRecordingUnavailable = errors.New("recording unavailable")
	ErrDuplicatePlacement   = errors.New("duplicate placement")
)
