package state

import (
	"skirmish/server/internal/action"
	"skirmish/server/internal/protocol"
)

// PlayerStats is one scoreboard entry. An empty LastDamagedBy means nobody
// has damaged the user yet.
type PlayerStats struct {
	Kills         int    `json:"kills"`
	Deaths        int    `json:"deaths"`
	LastDamagedBy UserID `json:"lastDamagedBy,omitempty"`
}

func statsOnJoin(PlayerStats, bool, action.Envelope) (PlayerStats, Outcome) {
	return PlayerStats{}, Put
}

func statsOnLeave(PlayerStats, bool, action.Envelope) (PlayerStats, Outcome) {
	return PlayerStats{}, Delete
}

// attacker resolves who caused an action: the payload's attacker when set,
// otherwise the user that sent it.
func attacker(explicit UserID, env action.Envelope) UserID {
	if explicit != "" {
		return explicit
	}
	return env.User
}

func statsOnTakeDamage(current PlayerStats, ok bool, env action.Envelope) (PlayerStats, Outcome) {
	p, _ := action.PayloadAs[protocol.TakeDamage](env)
	if !ok {
		return current, Skip
	}
	if p.Amount >= 0 {
		return current, Skip
	}
	source := attacker(p.AttackerID, env)
	if source == "" || source == p.UserID {
		return current, Skip
	}
	current.LastDamagedBy = source
	return current, Put
}

func statsOnDeath(current PlayerStats, ok bool, env action.Envelope) (PlayerStats, Outcome) {
	p, _ := action.PayloadAs[protocol.Die](env)
	if !ok {
		return current, Skip
	}
	current.Deaths++
	if p.AttackerID != "" && p.AttackerID != p.UserID {
		current.LastDamagedBy = p.AttackerID
	}
	return current, Put
}

func statsOnKill(current PlayerStats, ok bool, _ action.Envelope) (PlayerStats, Outcome) {
	if !ok {
		return current, Skip
	}
	current.Kills++
	return current, Put
}

func (s *Store) bindStats() {
	bind(s, s.stats, joinedUser, authoritativeGate[protocol.PlayerJoined](s), statsOnJoin)
	bind(s, s.stats, leftUser, authoritativeGate[protocol.PlayerLeft](s), statsOnLeave)
	bind(s, s.stats, func(p protocol.TakeDamage) UserID { return p.UserID },
		authoritativeGate[protocol.TakeDamage](s), statsOnTakeDamage)

	// A death touches two entries: the victim's deaths and the kills of
	// whoever damaged them last, when that user is still in the session.
	listen(s, "stats."+string(protocol.KindDie), authoritativeGate[protocol.Die](s), func(env action.Envelope, p protocol.Die) {
		victim, ok := s.stats.Get(p.UserID)
		if !ok {
			s.bus.Reject(env, action.ErrMissingRecord, "stats."+string(env.Kind))
			return
		}
		next, outcome := statsOnDeath(victim, ok, env)
		s.stats.apply(p.UserID, outcome, next)

		killer := next.LastDamagedBy
		if killer == "" || killer == p.UserID {
			return
		}
		current, exists := s.stats.Get(killer)
		credited, outcome := statsOnKill(current, exists, env)
		if outcome != Put {
			return
		}
		s.stats.apply(killer, outcome, credited)
		s.chat.append(ChatMessage{
			Kind:         ChatKill,
			Template:     "${userID} has killed ${targetUserID}",
			Time:         env.Time,
			UserID:       killer,
			TargetUserID: p.UserID,
		})
	})
}
