// internal/unlock/pricing.go
package unlock

import (
	"lead-access-service/internal/access"
	"lead-access-service/internal/common/config"
)

// CostTable prices the transition from a stored access level to its
// union with a requested unlock. Values are configuration, but phone
// stays priced above email.
type CostTable struct {
	Email int64 // grants email visibility where missing
	Phone int64 // grants phone visibility where missing
	Both  int64 // grants both at once from NONE
}

func DefaultCostTable() CostTable {
	return CostTable{Email: 1, Phone: 5, Both: 6}
}

func CostTableFromConfig(cfg config.UnlockConfig) CostTable {
	return CostTable{Email: cfg.EmailCost, Phone: cfg.PhoneCost, Both: cfg.BothCost}
}

// Cost returns the credits required to move current to its union with
// requested. Already-granted visibility costs nothing, so replays are
// free.
func (t CostTable) Cost(current, requested access.Level) int64 {
	switch requested {
	case access.LevelEmail:
		if current.HasEmail() {
			return 0
		}
		return t.Email
	case access.LevelPhone:
		if current.HasPhone() {
			return 0
		}
		return t.Phone
	case access.LevelBoth:
		switch {
		case current.HasEmail() && current.HasPhone():
			return 0
		case current.HasEmail():
			return t.Phone
		case current.HasPhone():
			return t.Email
		default:
			return t.Both
		}
	default:
		return 0
	}
}
