package cycle

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrWorldNotAllowed = errors.New("cycle: lightcycles are not allowed in this world")
	ErrDebounced       = errors.New("cycle: interaction debounced")
	ErrNoSession       = errors.New("cycle: no active lightcycle")
	ErrNotOperator     = errors.New("cycle: operator only")
	ErrUnknownOwner    = errors.New("cycle: owner not online")
	ErrSpawnCooldown   = errors.New("cycle: spawn on cooldown")
)

// CooldownError carries the time left on a spawn cooldown. It matches
// ErrSpawnCooldown under errors.Is.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("cycle: spawn on cooldown for %.1fs", e.Remaining.Seconds())
}

func (e *CooldownError) Is(target error) bool { return target == ErrSpawnCooldown }
