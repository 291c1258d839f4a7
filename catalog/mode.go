package catalog

import (
	"fmt"
	"strings"

	"github.com/onnwee/bingo-ledger/db"
)

// GameType enumerates the supported scoring disciplines. The integer values
// are the persisted representation and must not be reordered.
type GameType int

const (
	GameBingo GameType = iota
	GameBlackout
	GameTwentyNoBingo
	GameDoubleBingo
	GameTripleBingo
	GameQuadrupleBingo
	GamePoints
)

var gameTypeNames = [...]string{
	GameBingo:          "bingo",
	GameBlackout:       "blackout",
	GameTwentyNoBingo:  "20_no_bingo",
	GameDoubleBingo:    "double_bingo",
	GameTripleBingo:    "triple_bingo",
	GameQuadrupleBingo: "quadruple_bingo",
	GamePoints:         "points",
}

func (g GameType) String() string {
	if g < 0 || int(g) >= len(gameTypeNames) {
		return fmt.Sprintf("game_type(%d)", int(g))
	}
	return gameTypeNames[g]
}

// Valid reports whether g is a known game type.
func (g GameType) Valid() bool { return g >= 0 && int(g) < len(gameTypeNames) }

// PointsBased reports whether seeds of this type are scored by points
// collected within a time box rather than by completion time.
func (g GameType) PointsBased() bool { return g == GamePoints }

// ParseGameType resolves a name like "bingo" or "points".
func ParseGameType(s string) (GameType, error) {
	for i, name := range gameTypeNames {
		if strings.EqualFold(s, name) {
			return GameType(i), nil
		}
	}
	return 0, &db.ValidationError{Field: "game_type", Reason: fmt.Sprintf("unknown game type %q", s)}
}

// Mode is the tagged description of how a seed is played: a game type,
// whether it is practiced instead of blind, and for points seeds the length
// of the time box. Construct through PlainMode/PointsMode/Practiced so
// invalid combinations cannot be represented by accident.
type Mode struct {
	Type      GameType
	Practiced bool
	// TimeBoxMinutes is only meaningful for points seeds.
	TimeBoxMinutes int
}

// PlainMode is a blind seed of a non-points type.
func PlainMode(t GameType) Mode { return Mode{Type: t} }

// PointsMode is a blind points seed collected within timeBoxMinutes.
func PointsMode(timeBoxMinutes int) Mode {
	return Mode{Type: GamePoints, TimeBoxMinutes: timeBoxMinutes}
}

// Practiced wraps any mode as its practiced variant.
func Practiced(m Mode) Mode {
	m.Practiced = true
	return m
}

// Validate rejects combinations the type cannot rule out, e.g. a time box on
// a non-points seed.
func (m Mode) Validate() error {
	if !m.Type.Valid() {
		return &db.ValidationError{Field: "game_type", Reason: fmt.Sprintf("unknown game type %d", int(m.Type))}
	}
	if m.Type.PointsBased() {
		if m.TimeBoxMinutes <= 0 {
			return &db.ValidationError{Field: "time_box_minutes", Reason: "points seeds need a positive time box"}
		}
		return nil
	}
	if m.TimeBoxMinutes != 0 {
		return &db.ValidationError{Field: "time_box_minutes", Reason: "only points seeds carry a time box"}
	}
	return nil
}

// label renders the mode the way announcements describe it, e.g.
// "blind points-in-20-mins" or "practice double-bingo".
func (m Mode) label() string {
	name := strings.ReplaceAll(m.Type.String(), "_", "-")
	if m.Type.PointsBased() {
		name = fmt.Sprintf("%s-in-%d-mins", name, m.TimeBoxMinutes)
	}
	if m.Practiced {
		return "practice " + name
	}
	return "blind " + name
}
