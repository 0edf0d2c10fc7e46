package combat

import (
	"time"

	"skirmish/server/internal/clock"
	"skirmish/server/internal/protocol"
)

// ReadyCooldown refuses to fire while weapon is still cooling down and
// records the shot time when it is ready. The map is allocated lazily. A
// weapon that has never fired is always ready.
func ReadyCooldown(cooldowns *map[protocol.WeaponKind]clock.Millis, weapon protocol.WeaponKind, cooldown time.Duration, now clock.Millis) bool {
	if cooldowns == nil {
		return false
	}
	if *cooldowns == nil {
		*cooldowns = make(map[protocol.WeaponKind]clock.Millis)
	}
	if cooldown > 0 {
		if last, ok := (*cooldowns)[weapon]; ok {
			if now-last < clock.FromDuration(cooldown) {
				return false
			}
		}
	}
	(*cooldowns)[weapon] = now
	return true
}
