package engine

import (
	"fmt"
	"strings"
)

const (
	slightEdgeCP      = 50
	significantEdgeCP = 200
)

// Explain returns result.Explanation when the backend supplied one and
// otherwise describes the evaluation in plain words.
func Explain(result MoveResult) string {
	if text := strings.TrimSpace(result.Explanation); text != "" {
		return text
	}
	if result.MateIn != nil {
		n := *result.MateIn
		if n > 0 {
			return fmt.Sprintf("This leads to checkmate in %d moves!", n)
		}
		if n < 0 {
			return fmt.Sprintf("Unfortunately, we're facing mate in %d.", -n)
		}
	}
	cp := result.Centipawns
	switch {
	case cp > -slightEdgeCP && cp < slightEdgeCP:
		return "The position is roughly equal."
	case cp > significantEdgeCP:
		return "White has a significant advantage."
	case cp > slightEdgeCP:
		return "White is slightly better."
	case cp < -significantEdgeCP:
		return "Black has a significant advantage."
	case cp < -slightEdgeCP:
		return "Black is slightly better."
	}
	if result.SAN != "" {
		return fmt.Sprintf("Playing %s.", result.SAN)
	}
	return ""
}
