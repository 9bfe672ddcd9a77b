package platform

import "errors"

// Common platform errors.
var (
	// ErrSessionInvalid is returned when the transport no longer recognizes
	// a voice session. The holder must discard the session and reconnect.
	ErrSessionInvalid = errors.New("voice session no longer valid")

	// ErrChannelGone is returned when a channel disappeared between the
	// decision and the action.
	ErrChannelGone = errors.New("channel no longer exists")

	// ErrNotConnected is returned for session operations on a session the
	// transport reports as disconnected.
	ErrNotConnected = errors.New("session not connected")

	// ErrAlreadyPlaying is returned when playback is requested while audio
	// is already playing.
	ErrAlreadyPlaying = errors.New("audio already playing")
)
