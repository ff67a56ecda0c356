package comics

import "errors"

var (
	ErrMissingField      = errors.New("missing required field")
	ErrInvalidPanelData  = errors.New("invalid panels data")
	ErrInvalidSpeed      = errors.New("speed must be between 0.7 and 1.2")
	ErrPanelNotFound     = errors.New("panel not found")
	ErrComicNotFound     = errors.New("comic not found or unauthorized")
	ErrForbidden         = errors.New("you don't have permission to edit this panel")
	ErrPublishIncomplete = errors.New("cannot publish")
	ErrVoiceUnavailable  = errors.New("voice-over is not configured")
)
