// Package metrics holds the read-only daily finance rollups.
package metrics

import (
	"time"

	"github.com/shopspring/decimal"
)

// Daily is one day of finance figures, platform wide when TenantID is empty.
type Daily struct {
	ID                    string          `json:"id"`
	Day                   time.Time       `json:"day"`
	TenantID              string          `json:"tenantId,omitempty"`
	GrossGmv              decimal.Decimal `json:"grossGmv"`
	OrderCount            int64           `json:"orderCount"`
	ActiveBuyers          int64           `json:"activeBuyers"`
	ActiveSellers         int64           `json:"activeSellers"`
	CommissionRevenue     decimal.Decimal `json:"commissionRevenue"`
	BoostRevenue          decimal.Decimal `json:"boostRevenue"`
	TakeRate              decimal.Decimal `json:"takeRate"`
	EscrowFloat           decimal.Decimal `json:"escrowFloat"`
	PayoutVolume          decimal.Decimal `json:"payoutVolume"`
	PayoutCount           int64           `json:"payoutCount"`
	ChargebackAmount      decimal.Decimal `json:"chargebackAmount"`
	ChargebackCount       int64           `json:"chargebackCount"`
	ReceivableOutstanding decimal.Decimal `json:"receivableOutstanding"`
	CriticalAlerts        int64           `json:"criticalAlerts"`
	ComputedAt            time.Time       `json:"computedAt"`
}

// TakeRateOf returns revenue / gmv rounded to four places, zero for no GMV.
func TakeRateOf(revenue, gmv decimal.Decimal) decimal.Decimal {
	if !gmv.IsPositive() {
		return decimal.Zero
	}
	return revenue.DivRound(gmv, 4)
}

// DayBounds returns the UTC [start, end) of the day containing t.
func DayBounds(t time.Time) (time.Time, time.Time) {
	t = t.UTC()
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}
