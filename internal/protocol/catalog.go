package protocol

import (
	"fmt"

	"skirmish/server/internal/action"
)

// Register defines every gameplay kind in catalog.
func Register(catalog *action.Catalog) error {
	byUser := func(id UserID) string { return string(id) }
	registrations := []func() error{
		define(catalog, action.Options[PlayerJoined]{
			Cached:     true,
			CacheKey:   func(p PlayerJoined) string { return byUser(p.UserID) },
			Validators: []func(PlayerJoined) error{func(p PlayerJoined) error { return action.Required("userId", string(p.UserID)) }},
		}),
		define(catalog, action.Options[PlayerLeft]{
			Cached:     true,
			CacheKey:   func(p PlayerLeft) string { return byUser(p.UserID) },
			Validators: []func(PlayerLeft) error{func(p PlayerLeft) error { return action.Required("userId", string(p.UserID)) }},
		}),
		define(catalog, action.Options[TakeDamage]{
			Validators: []func(TakeDamage) error{
				func(p TakeDamage) error { return action.Required("userId", string(p.UserID)) },
				func(p TakeDamage) error { return action.Finite("amount", p.Amount) },
			},
		}),
		define(catalog, action.Options[Die]{
			Validators: []func(Die) error{func(p Die) error { return action.Required("userId", string(p.UserID)) }},
		}),
		define(catalog, action.Options[Respawn]{
			Validators: []func(Respawn) error{func(p Respawn) error { return action.Required("userId", string(p.UserID)) }},
		}),
		define(catalog, action.Options[ImmunityTimedout]{
			Cached:     true,
			CacheKey:   func(p ImmunityTimedout) string { return byUser(p.UserID) },
			Validators: []func(ImmunityTimedout) error{func(p ImmunityTimedout) error { return action.Required("userId", string(p.UserID)) }},
		}),
		define(catalog, action.Options[ItemPickup]{
			Cached:   true,
			CacheKey: func(p ItemPickup) string { return string(p.ItemID) },
			Validators: []func(ItemPickup) error{
				func(p ItemPickup) error { return action.Required("userId", string(p.UserID)) },
				func(p ItemPickup) error { return action.Required("itemId", string(p.ItemID)) },
				func(p ItemPickup) error { return action.Finite("value", p.Value) },
				func(p ItemPickup) error { return action.NonNegative("value", p.Value) },
				func(p ItemPickup) error { return action.NonNegative("respawnDelayMs", int64(p.RespawnDelay)) },
			},
		}),
		define(catalog, action.Options[PickupSpawned]{
			Cached:   true,
			CacheKey: func(p PickupSpawned) string { return string(p.ItemID) },
			Validators: []func(PickupSpawned) error{
				func(p PickupSpawned) error { return action.Required("itemId", string(p.ItemID)) },
				func(p PickupSpawned) error { return action.OneOf("kind", p.Kind, PickupKinds...) },
				func(p PickupSpawned) error { return action.NonNegative("respawnDelayMs", int64(p.RespawnDelay)) },
			},
		}),
		define(catalog, action.Options[PickupRespawned]{
			Cached:     true,
			CacheKey:   func(p PickupRespawned) string { return string(p.ItemID) },
			Validators: []func(PickupRespawned) error{func(p PickupRespawned) error { return action.Required("itemId", string(p.ItemID)) }},
		}),
		define(catalog, action.Options[PickupRemoved]{
			Cached:     true,
			CacheKey:   func(p PickupRemoved) string { return string(p.ItemID) },
			Validators: []func(PickupRemoved) error{func(p PickupRemoved) error { return action.Required("itemId", string(p.ItemID)) }},
		}),
		define(catalog, action.Options[ChangeWeapon]{
			Cached:   true,
			CacheKey: func(p ChangeWeapon) string { return byUser(p.UserID) },
			Validators: []func(ChangeWeapon) error{
				func(p ChangeWeapon) error { return action.Required("userId", string(p.UserID)) },
				func(p ChangeWeapon) error { return action.OneOf("weapon", p.Weapon, WeaponKinds...) },
				func(p ChangeWeapon) error {
					if p.Handedness == "" {
						return nil
					}
					return action.OneOf("handedness", p.Handedness, RightHanded, LeftHanded)
				},
			},
		}),
		define(catalog, action.Options[FireWeapon]{
			Validators: []func(FireWeapon) error{
				func(p FireWeapon) error { return action.OneOf("weapon", p.Weapon, WeaponKinds...) },
				validateHits,
			},
		}),
	}
	for _, register := range registrations {
		if err := register(); err != nil {
			return err
		}
	}
	return nil
}

// NewCatalog returns a catalog with every gameplay kind registered.
func NewCatalog() (*action.Catalog, error) {
	catalog := action.NewCatalog()
	if err := Register(catalog); err != nil {
		return nil, fmt.Errorf("register protocol: %w", err)
	}
	return catalog, nil
}

func define[P action.Payload](catalog *action.Catalog, opts action.Options[P]) func() error {
	return func() error {
		_, err := action.Define(catalog, opts)
		return err
	}
}

func validateHits(p FireWeapon) error {
	for i, hit := range p.Hits {
		field := fmt.Sprintf("hits[%d]", i)
		if err := finiteVec(field+".position", hit.Position); err != nil {
			return err
		}
		if hit.Normal != nil {
			if err := finiteVec(field+".normal", *hit.Normal); err != nil {
				return err
			}
		}
		if err := action.Finite(field+".damage", hit.Damage); err != nil {
			return err
		}
		if err := action.NonNegative(field+".damage", hit.Damage); err != nil {
			return err
		}
		if hit.IsPlayer && hit.TargetID == "" {
			return &action.SchemaError{Field: field + ".targetId", Reason: "player hits need a target"}
		}
	}
	return nil
}
