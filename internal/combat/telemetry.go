package combat

import (
	"context"

	"skirmish/server/internal/action"
	"skirmish/server/internal/protocol"
	"skirmish/server/logging"
	loggingcombat "skirmish/server/logging/combat"
)

// recorder publishes combat damage and defeat events for the resolver.
type recorder struct {
	publisher logging.Publisher
	tick      func() uint64
}

func newRecorder(bus *action.Bus) *recorder {
	return &recorder{publisher: bus.Publisher(), tick: bus.Tick}
}

func (r *recorder) damage(shooter, target protocol.UserID, weapon protocol.WeaponKind, amount, remaining float64) {
	loggingcombat.Damage(
		context.Background(),
		r.publisher,
		r.tick(),
		logging.PlayerRef(string(shooter)),
		logging.PlayerRef(string(target)),
		loggingcombat.DamagePayload{
			Weapon:       string(weapon),
			Amount:       amount,
			TargetHealth: remaining,
		},
		nil,
	)
}

func (r *recorder) defeat(shooter, target protocol.UserID, weapon protocol.WeaponKind) {
	loggingcombat.Defeat(
		context.Background(),
		r.publisher,
		r.tick(),
		logging.PlayerRef(string(shooter)),
		logging.PlayerRef(string(target)),
		loggingcombat.DefeatPayload{Weapon: string(weapon)},
		nil,
	)
}
