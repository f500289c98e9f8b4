package ai

import (
	"time"

	"chessroom/internal/models"
)

// Profile is the search depth and simulated thinking time for a difficulty.
type Profile struct {
	Depth    int
	MinDelay time.Duration
	MaxDelay time.Duration
}

var profiles = map[models.Difficulty]Profile{
	models.DifficultyEasy:   {Depth: 4, MinDelay: 3 * time.Second, MaxDelay: 5 * time.Second},
	models.DifficultyMedium: {Depth: 8, MinDelay: 5 * time.Second, MaxDelay: 10 * time.Second},
	models.DifficultyHard:   {Depth: 12, MinDelay: 10 * time.Second, MaxDelay: 15 * time.Second},
}

// ProfileFor returns the profile of d. Unknown labels play at medium.
func ProfileFor(d models.Difficulty) Profile {
	if p, ok := profiles[d]; ok {
		return p
	}
	return profiles[models.DifficultyMedium]
}

// Delay picks a thinking time in [MinDelay, MaxDelay] from u in [0, 1),
// multiplied by scale.
func (p Profile) Delay(u, scale float64) time.Duration {
	if scale <= 0 {
		return 0
	}
	span := float64(p.MaxDelay - p.MinDelay)
	return time.Duration((float64(p.MinDelay) + u*span) * scale)
}
