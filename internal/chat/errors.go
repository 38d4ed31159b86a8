package chat

import "errors"

// Sentinel errors for the conversation core. Handlers map these onto HTTP
// statuses with errors.Is; anything else is a storage failure.
var (
	ErrUnknownUser         = errors.New("unknown user")
	ErrUnknownConversation = errors.New("unknown conversation")
	ErrTooFewParticipants  = errors.New("at least two participants required")
	ErrTooManyParticipants = errors.New("too many participants")
	ErrCapacityExceeded    = errors.New("conversation is full")
	ErrNotAGroupChat       = errors.New("not a group chat")
	ErrAccessDenied        = errors.New("access denied")
	ErrEmptyMessage        = errors.New("empty message")
)
