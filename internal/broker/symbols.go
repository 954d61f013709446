package broker

import (
	"fmt"
	"strings"
	"time"
)

// NFOSymbols builds NFO option contract symbols in the broker's
// UNDERLYING + DDMMMYY + STRIKE + CE/PE format, e.g. NIFTY28AUG2519500CE.
type NFOSymbols struct {
	// ExpiryWeekday is the weekly expiry day for the primary underlying.
	// NIFTY expires on Thursday; BANKNIFTY moved to Wednesday and back, so
	// it is configurable rather than hardcoded.
	ExpiryWeekday time.Weekday
}

// NewNFOSymbols returns a symbol builder with the standard Thursday expiry.
func NewNFOSymbols() *NFOSymbols {
	return &NFOSymbols{ExpiryWeekday: time.Thursday}
}

// BuildOptionSymbol renders the tradable contract symbol for a leg.
func (s *NFOSymbols) BuildOptionSymbol(underlying string, expiry time.Time, strike float64, optionType OptionType) string {
	return fmt.Sprintf("%s%s%d%s",
		strings.ToUpper(underlying),
		strings.ToUpper(expiry.Format("02Jan06")),
		int(strike),
		optionType)
}

// NearestWeeklyExpiry returns the next weekly expiry date at or after now.
// If today is expiry day the current date is returned until market close
// (15:30 IST); afterwards the following week's expiry is used.
func (s *NFOSymbols) NearestWeeklyExpiry(now time.Time) time.Time {
	day := now
	for day.Weekday() != s.ExpiryWeekday {
		day = day.AddDate(0, 0, 1)
	}
	expiry := time.Date(day.Year(), day.Month(), day.Day(), 15, 30, 0, 0, now.Location())
	if now.After(expiry) {
		expiry = expiry.AddDate(0, 0, 7)
	}
	return expiry
}

// StrikeInterval returns the strike ladder spacing for an underlying.
func StrikeInterval(underlying string) float64 {
	switch strings.ToUpper(underlying) {
	case "BANKNIFTY":
		return 100
	default:
		return 50
	}
}

// ATMStrike rounds spot to the nearest strike on the ladder.
func ATMStrike(spot, interval float64) float64 {
	if interval <= 0 {
		interval = 50
	}
	n := int(spot/interval + 0.5)
	return float64(n) * interval
}
