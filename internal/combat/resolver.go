package combat

import (
	"errors"
	"fmt"

	"skirmish/server/internal/action"
	"skirmish/server/internal/authority"
	"skirmish/server/internal/protocol"
	"skirmish/server/internal/state"
)

// HealthView reads the authoritative health records.
type HealthView interface {
	Health(user protocol.UserID) (state.HealthRecord, bool)
}

// ResolverConfig wires a Resolver.
type ResolverConfig struct {
	Bus       *action.Bus
	Authority *authority.Validator
	Scope     action.ScopeID
	Entities  Entities
	Health    HealthView
}

// Resolver applies fire reports on the host. It drains its queue once per
// tick; on peers that do not host the scope the reports are discarded.
type Resolver struct {
	bus       *action.Bus
	authority *authority.Validator
	scope     action.ScopeID
	entities  Entities
	health    HealthView
	queue     *action.Queue
	recorder  *recorder
}

// NewResolver constructs a resolver and its fire queue.
func NewResolver(cfg ResolverConfig) (*Resolver, error) {
	if cfg.Bus == nil || cfg.Authority == nil {
		return nil, errors.New("combat: resolver requires a bus and an authority validator")
	}
	if cfg.Entities == nil || cfg.Health == nil {
		return nil, errors.New("combat: resolver requires entities and a health view")
	}
	return &Resolver{
		bus:       cfg.Bus,
		authority: cfg.Authority,
		scope:     cfg.Scope,
		entities:  cfg.Entities,
		health:    cfg.Health,
		queue:     cfg.Bus.DefineQueue(protocol.KindFireWeapon),
		recorder:  newRecorder(cfg.Bus),
	}, nil
}

// Run drains the fire queue.
func (r *Resolver) Run() {
	host := r.authority.IsLocalHost(r.scope)
	for env := range r.queue.Drain() {
		if !host {
			continue
		}
		r.apply(env)
	}
}

func (r *Resolver) apply(env action.Envelope) {
	report, ok := action.PayloadAs[protocol.FireWeapon](env)
	if !ok {
		return
	}
	shooter := env.User
	if _, ok := r.entities.AvatarOf(shooter); !ok {
		r.bus.Reject(env, fmt.Errorf("%w: shooter %q has no avatar", action.ErrStaleReference, shooter), "combat.resolver")
		return
	}
	for _, hit := range report.Hits {
		if hit.TargetID == "" {
			continue
		}
		if !r.entities.Exists(hit.TargetID) {
			r.bus.Reject(env, fmt.Errorf("%w: target %q", action.ErrStaleReference, hit.TargetID), "combat.resolver")
			continue
		}
		target, ok := r.entities.NetworkOwner(hit.TargetID)
		if !ok {
			continue
		}
		record, ok := r.health.Health(target)
		if !ok || !record.Alive() {
			continue
		}
		if record.Health-hit.Damage <= 0 {
			if _, err := r.bus.Dispatch(protocol.Die{UserID: target, AttackerID: shooter}); err == nil {
				r.recorder.defeat(shooter, target, report.Weapon)
			}
			continue
		}
		if _, err := r.bus.Dispatch(protocol.TakeDamage{UserID: target, Amount: -hit.Damage, AttackerID: shooter}); err == nil {
			r.recorder.damage(shooter, target, report.Weapon, hit.Damage, r.healthOf(target))
		}
	}
}

func (r *Resolver) healthOf(user protocol.UserID) float64 {
	record, _ := r.health.Health(user)
	return record.Health
}
