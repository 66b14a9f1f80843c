// internal/access/level.go
package access

import "fmt"

// Level is the per-(user, record) entitlement code tracking which
// contact fields a user has paid to view.
type Level int

const (
	LevelNone  Level = 0
	LevelEmail Level = 1
	LevelPhone Level = 2
	LevelBoth  Level = 3
	LevelFull  Level = 4
)

func (l Level) String() string {
	switch l {
	case LevelNone:
		return "NONE"
	case LevelEmail:
		return "EMAIL"
	case LevelPhone:
		return "PHONE"
	case LevelBoth:
		return "BOTH"
	case LevelFull:
		return "FULL"
	default:
		return fmt.Sprintf("Level(%d)", int(l))
	}
}

// HasEmail reports whether the level grants email visibility.
func (l Level) HasEmail() bool {
	return l == LevelEmail || l == LevelBoth || l == LevelFull
}

// HasPhone reports whether the level grants phone visibility.
func (l Level) HasPhone() bool {
	return l == LevelPhone || l == LevelBoth || l == LevelFull
}

// Requestable reports whether the level is a valid unlock request.
// FULL is granted out of band and can never be requested.
func (l Level) Requestable() bool {
	return l == LevelEmail || l == LevelPhone || l == LevelBoth
}

// ParseLevel maps a wire name to its Level. Only requestable names
// are accepted.
func ParseLevel(s string) (Level, error) {
	switch s {
	case "EMAIL":
		return LevelEmail, nil
	case "PHONE":
		return LevelPhone, nil
	case "BOTH":
		return LevelBoth, nil
	default:
		return LevelNone, fmt.Errorf("unknown access level %q", s)
	}
}

// Merge applies the upgrade rule for a stored level and a requested
// unlock. BOTH and FULL are absorbing; EMAIL and PHONE combine into
// BOTH. The result is never lower than existing.
func Merge(existing, requested Level) Level {
	switch {
	case existing == LevelFull:
		return LevelFull
	case existing == LevelBoth:
		return LevelBoth
	case existing == LevelEmail && requested == LevelPhone:
		return LevelBoth
	case existing == LevelPhone && requested == LevelEmail:
		return LevelBoth
	default:
		return requested
	}
}
