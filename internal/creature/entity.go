package creature

import "time"

// Status is the capture state of a spawned creature.
type Status string

const (
	StatusWild   Status = "wild"
	StatusLocked Status = "locked"
	StatusCaught Status = "caught"
)

// Rarity is the weighted tier drawn for a creature at spawn time.
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityRare      Rarity = "rare"
	RarityLegendary Rarity = "legendary"
)

// ParseRarity normalises catalog and wire strings into a Rarity.
func ParseRarity(value string) (Rarity, bool) {
	switch Rarity(value) {
	case RarityCommon, RarityRare, RarityLegendary:
		return Rarity(value), true
	default:
		return "", false
	}
}

// Position is a geographic coordinate in degrees.
type Position struct {
	Lat float64 `json:"lat" msgpack:"lat"`
	Lng float64 `json:"lng" msgpack:"lng"`
}

// Holder identifies the session acting on an entity.
type Holder struct {
	SessionID string `json:"sessionId" msgpack:"sessionId"`
	Name      string `json:"name" msgpack:"name"`
}

// Entity is one spawned creature instance. Position, rarity and template
// are fixed at spawn; only the Registry mutates Status and the lock fields.
type Entity struct {
	ID         string    `json:"id"`
	TemplateID string    `json:"templateId"`
	Name       string    `json:"name"`
	IconURL    string    `json:"iconUrl"`
	Position   Position  `json:"position"`
	Rarity     Rarity    `json:"rarity"`
	SpawnedAt  time.Time `json:"spawnedAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
	Status     Status    `json:"status"`
	LockHolder *Holder   `json:"lockHolder,omitempty"`
	LockedAt   time.Time `json:"lockedAt,omitempty"`
	CaughtBy   *Holder   `json:"caughtBy,omitempty"`
}

// Expired reports whether the Reaper may remove the entity at now.
func (e Entity) Expired(now time.Time) bool {
	return e.Status == StatusWild && !now.Before(e.ExpiresAt)
}

// HeldBy reports whether sessionID currently holds the capture lock.
func (e Entity) HeldBy(sessionID string) bool {
	return e.Status == StatusLocked && e.LockHolder != nil && e.LockHolder.SessionID == sessionID
}

func (e *Entity) clone() Entity {
	cloned := *e
	if e.LockHolder != nil {
		holder := *e.LockHolder
		cloned.LockHolder = &holder
	}
	if e.CaughtBy != nil {
		catcher := *e.CaughtBy
		cloned.CaughtBy = &catcher
	}
	return cloned
}

// Transition records one committed status change. Commit increases with
// every transition the registry applies, in application order.
type Transition struct {
	Entity Entity    `json:"entity"`
	From   Status    `json:"from"`
	To     Status    `json:"to"`
	Actor  Holder    `json:"actor"`
	At     time.Time `json:"at"`
	Commit uint64    `json:"commit"`
}
