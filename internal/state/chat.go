package state

import (
	"strings"
	"time"

	"skirmish/server/internal/action"
	"skirmish/server/internal/clock"
	"skirmish/server/internal/protocol"
)

// ChatKind classifies game messages.
type ChatKind string

const (
	ChatJoin    ChatKind = "join"
	ChatLeave   ChatKind = "leave"
	ChatKill    ChatKind = "kill"
	ChatDeath   ChatKind = "death"
	ChatRespawn ChatKind = "respawn"
	ChatPickup  ChatKind = "pickup"
)

// DefaultChatWindow is how long a message stays in the recent view.
const DefaultChatWindow = 5 * time.Second

// ChatMessage is one game message. Template uses ${userID} and
// ${targetUserID} placeholders.
type ChatMessage struct {
	Kind         ChatKind     `json:"kind"`
	Template     string       `json:"template"`
	Time         clock.Millis `json:"time"`
	UserID       UserID       `json:"userId"`
	TargetUserID UserID       `json:"targetUserId,omitempty"`
}

// ChatLog is the append-only game message log.
type ChatLog struct {
	messages []ChatMessage
}

func newChatLog() *ChatLog {
	return &ChatLog{}
}

func (l *ChatLog) append(msg ChatMessage) {
	l.messages = append(l.messages, msg)
}

// Messages copies the whole log.
func (l *ChatLog) Messages() []ChatMessage {
	return append([]ChatMessage(nil), l.messages...)
}

// Recent returns messages stamped within window of now, oldest first.
func (l *ChatLog) Recent(now clock.Millis, window time.Duration) []ChatMessage {
	cutoff := now - clock.FromDuration(window)
	var out []ChatMessage
	for _, msg := range l.messages {
		if msg.Time >= cutoff {
			out = append(out, msg)
		}
	}
	return out
}

// Render substitutes display names into the message template. Users
// without a name render as their id.
func Render(msg ChatMessage, names func(UserID) string) string {
	name := func(id UserID) string {
		if names != nil {
			if n := names(id); n != "" {
				return n
			}
		}
		return string(id)
	}
	return strings.NewReplacer(
		"${userID}", name(msg.UserID),
		"${targetUserID}", name(msg.TargetUserID),
	).Replace(msg.Template)
}

func (s *Store) bindChat() {
	say := func(kind ChatKind, template string, env action.Envelope, user UserID) {
		s.chat.append(ChatMessage{Kind: kind, Template: template, Time: env.Time, UserID: user})
	}
	listen(s, "chat.join", authoritativeGate[protocol.PlayerJoined](s), func(env action.Envelope, p protocol.PlayerJoined) {
		say(ChatJoin, "${userID} has joined the game", env, p.UserID)
	})
	listen(s, "chat.leave", authoritativeGate[protocol.PlayerLeft](s), func(env action.Envelope, p protocol.PlayerLeft) {
		say(ChatLeave, "${userID} has left the game", env, p.UserID)
	})
	listen(s, "chat.death", authoritativeGate[protocol.Die](s), func(env action.Envelope, p protocol.Die) {
		say(ChatDeath, "${userID} has died", env, p.UserID)
	})
	listen(s, "chat.respawn", ownerGate(s, func(p protocol.Respawn) UserID { return p.UserID }), func(env action.Envelope, p protocol.Respawn) {
		say(ChatRespawn, "${userID} has respawned", env, p.UserID)
	})
	listen(s, "chat.pickup", authoritativeGate[protocol.ItemPickup](s), func(env action.Envelope, p protocol.ItemPickup) {
		switch p.Kind {
		case protocol.PickupImmunity:
			say(ChatPickup, "${userID} is invincible! RUN!", env, p.UserID)
		case protocol.PickupHealth:
			say(ChatPickup, "${userID} is fully healed!", env, p.UserID)
		}
	})
	listen(s, "chat.immunity", ownerGate(s, func(p protocol.ImmunityTimedout) UserID { return p.UserID }), func(env action.Envelope, p protocol.ImmunityTimedout) {
		say(ChatPickup, "${userID} is no longer invincible! KILL THEM!", env, p.UserID)
	})
}
