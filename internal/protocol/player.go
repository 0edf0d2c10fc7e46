package protocol

import "skirmish/server/internal/action"

const (
	KindPlayerJoined action.Kind = "player.joined"
	KindPlayerLeft   action.Kind = "player.left"
)

// PlayerJoined announces a user entering the session.
type PlayerJoined struct {
	UserID UserID `json:"userId" jsonschema:"required"`
	Name   string `json:"name,omitempty"`
}

func (PlayerJoined) ActionKind() action.Kind { return KindPlayerJoined }

// PlayerLeft announces a user leaving the session.
type PlayerLeft struct {
	UserID UserID `json:"userId" jsonschema:"required"`
}

func (PlayerLeft) ActionKind() action.Kind { return KindPlayerLeft }
