package session

import "errors"

var (
	// ErrNoDraft is returned by a DraftBackend when a channel has no draft.
	ErrNoDraft = errors.New("no draft")

	// ErrNoChannel is returned by Open when the route names no channel.
	ErrNoChannel = errors.New("no channel to open")

	// ErrEmptyMessage is returned by Send when the composer holds only
	// whitespace.
	ErrEmptyMessage = errors.New("empty message")

	// ErrNoActionSheet is returned by Run when no action sheet is open.
	ErrNoActionSheet = errors.New("action sheet is not open")

	// ErrIndexNotFound reports a scroll target outside the loaded messages.
	ErrIndexNotFound = errors.New("message not loaded")

	// ErrUnknownAction is returned by Run for actions without a handler.
	ErrUnknownAction = errors.New("unknown action")
)
