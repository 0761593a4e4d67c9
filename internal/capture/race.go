package capture

import (
	"context"
	"fmt"
	"sync"

	"github.com/dimaspandu/pokecat-hunt/internal/creature"
)

// DefaultContenders is the number of synthetic sessions used when a race
// request does not name one.
const DefaultContenders = 5

// RaceAttempt is one contender's lock outcome.
type RaceAttempt struct {
	Contender string `json:"contender"`
	Success   bool   `json:"success"`
	Reason    string `json:"reason,omitempty"`
}

// RaceReport summarises a simulated race on one creature.
type RaceReport struct {
	EntityID  string        `json:"entityId"`
	Name      string        `json:"name"`
	Winner    string        `json:"winner,omitempty"`
	Successes int           `json:"successes"`
	Attempts  []RaceAttempt `json:"attempts"`
}

// SimulateRace lets contenders synthetic sessions try to lock the same wild
// creature at once, then releases the winner so the creature is wild again.
// An empty id picks the oldest wild creature.
func (c *Coordinator) SimulateRace(ctx context.Context, id string, contenders int) (RaceReport, []Event, error) {
	if contenders <= 0 {
		contenders = DefaultContenders
	}
	if id == "" {
		wild := c.registry.ListWild()
		if len(wild) == 0 {
			return RaceReport{}, nil, fmt.Errorf("simulate race: %w", creature.ErrNotFound)
		}
		id = wild[0].ID
	}

	report := RaceReport{EntityID: id, Attempts: make([]RaceAttempt, contenders)}
	events := make([][]Event, contenders)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			actor := creature.Holder{SessionID: fmt.Sprintf("race-%02d", i+1), Name: fmt.Sprintf("Tester %d", i+1)}
			<-start
			result, evs := c.Lock(ctx, actor, id)
			report.Attempts[i] = RaceAttempt{Contender: actor.Name, Success: result.Success, Reason: result.Reason}
			if result.Success {
				report.Name = result.Entity.Name
			}
			events[i] = evs
		}(i)
	}
	close(start)
	wg.Wait()

	var all []Event
	for i, attempt := range report.Attempts {
		all = append(all, events[i]...)
		if !attempt.Success {
			continue
		}
		report.Successes++
		report.Winner = attempt.Contender
		actor := creature.Holder{SessionID: fmt.Sprintf("race-%02d", i+1), Name: attempt.Contender}
		_, released := c.Release(ctx, actor, id, CauseAbandoned)
		all = append(all, released...)
	}
	return report, all, nil
}
