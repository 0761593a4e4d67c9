package spawn

import (
	"fmt"

	"github.com/dimaspandu/pokecat-hunt/internal/creature"
)

// RarityTable holds cumulative thresholds: u < Common is common,
// u < Rare is rare, everything else legendary.
type RarityTable struct {
	Common float64
	Rare   float64
}

func DefaultRarityTable() RarityTable {
	return RarityTable{Common: 0.7, Rare: 0.95}
}

func (t RarityTable) Validate() error {
	if t.Common < 0 || t.Rare > 1 || t.Common > t.Rare {
		return fmt.Errorf("rarity thresholds must satisfy 0 <= common <= rare <= 1, got %v/%v", t.Common, t.Rare)
	}
	return nil
}

// Draw maps a uniform sample in [0,1) to a rarity tier.
func (t RarityTable) Draw(u float64) creature.Rarity {
	switch {
	case u < t.Common:
		return creature.RarityCommon
	case u < t.Rare:
		return creature.RarityRare
	default:
		return creature.RarityLegendary
	}
}
