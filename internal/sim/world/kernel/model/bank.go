package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type ClanBank struct {
	ClanID          string
	Balance         decimal.Decimal
	LastMaintenance time.Time
	UpdatedAt       time.Time
}
