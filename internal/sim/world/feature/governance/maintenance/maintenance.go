package maintenance

import (
	"time"

	"github.com/shopspring/decimal"
)

// Stages of a clan's upkeep standing.
const (
	StageOK          = 0
	StageLate        = 1
	StageUnprotected = 2
)

// Cost returns base × scale^territories, rounded to cents.
func Cost(base, scale decimal.Decimal, territories int) decimal.Decimal {
	if territories <= 0 {
		return decimal.Zero
	}
	cost := base
	for i := 0; i < territories; i++ {
		cost = cost.Mul(scale)
	}
	return cost.Round(2)
}

// Due reports whether a clan last billed at last should be billed again at now.
func Due(last, now time.Time, interval time.Duration) bool {
	if interval <= 0 {
		return false
	}
	if last.IsZero() {
		return true
	}
	return !now.Before(last.Add(interval))
}

func NextStage(currentStage int, paid bool) int {
	if paid {
		return StageOK
	}
	if currentStage < StageUnprotected {
		return currentStage + 1
	}
	return currentStage
}
