// Package market holds the trading-venue profiles shared by every analysis stage.
package market

import (
	"fmt"
	"slices"
	"strings"
	"time"
	_ "time/tzdata"
)

// Code identifies a market profile
type Code string

const (
	US Code = "US"
	IN Code = "IN"
)

// Clock is a wall-clock time of day in the market's local timezone
type Clock struct {
	Hour   int
	Minute int
}

// Profile describes a trading venue. Fields are fixed at package init and only exposed
// through accessors, so the shared table cannot be changed by callers.
type Profile struct {
	code           Code
	timezone       string
	currencySymbol string
	open           Clock
	close          Clock
	weekend        []time.Weekday
	suffixes       []string
	displayName    string
	timeLabel      string
	location       *time.Location
}

var profiles = map[Code]*Profile{
	US: {
		code:           US,
		timezone:       "America/New_York",
		currencySymbol: "$",
		open:           Clock{Hour: 9, Minute: 30},
		close:          Clock{Hour: 16, Minute: 0},
		weekend:        []time.Weekday{time.Saturday, time.Sunday},
		suffixes:       []string{"", ".US"},
		displayName:    "US Market",
		timeLabel:      "ET",
	},
	IN: {
		code:           IN,
		timezone:       "Asia/Kolkata",
		currencySymbol: "₹",
		open:           Clock{Hour: 9, Minute: 15},
		close:          Clock{Hour: 15, Minute: 30},
		weekend:        []time.Weekday{time.Saturday, time.Sunday},
		suffixes:       []string{".NS", ".BO"},
		displayName:    "Indian Market",
		timeLabel:      "IST",
	},
}

func init() {
	for code, p := range profiles {
		loc, err := time.LoadLocation(p.timezone)
		if err != nil {
			panic(fmt.Sprintf("market %s: invalid timezone %q: %v", code, p.timezone, err))
		}
		p.location = loc
	}
}

// Detect maps a ticker to its market. Unknown suffixes fall back to US.
func Detect(symbol string) Code {
	symbol = strings.ToUpper(symbol)
	for _, suffix := range profiles[IN].suffixes {
		if strings.HasSuffix(symbol, suffix) {
			return IN
		}
	}
	return US
}

// Lookup returns the profile for a code, or nil if the code is unknown
func Lookup(code Code) *Profile {
	return profiles[code]
}

// ProfileFor returns the profile of the market the symbol trades on
func ProfileFor(symbol string) *Profile {
	return profiles[Detect(symbol)]
}

func (p *Profile) Code() Code { return p.code }

// Timezone is the IANA zone name, e.g. "Asia/Kolkata"
func (p *Profile) Timezone() string { return p.timezone }

func (p *Profile) CurrencySymbol() string { return p.currencySymbol }

func (p *Profile) DisplayName() string { return p.displayName }

// Session returns the local opening and closing bell
func (p *Profile) Session() (open, closeAt Clock) { return p.open, p.close }

// Weekend returns a copy of the non-trading weekdays
func (p *Profile) Weekend() []time.Weekday { return slices.Clone(p.weekend) }

// Suffixes returns a copy of the ticker suffixes that select this market
func (p *Profile) Suffixes() []string { return slices.Clone(p.suffixes) }

// Location returns the profile's timezone
func (p *Profile) Location() *time.Location {
	return p.location
}

// LocalTime converts t into the market's timezone
func (p *Profile) LocalTime(t time.Time) time.Time {
	return t.In(p.location)
}

// IsWeekend reports whether the local weekday of t is a non-trading day
func (p *Profile) IsWeekend(t time.Time) bool {
	day := p.LocalTime(t).Weekday()
	return slices.Contains(p.weekend, day)
}

// IsOpen reports whether the market is trading at instant t.
// Both session bounds are inclusive.
func (p *Profile) IsOpen(t time.Time) bool {
	if p.IsWeekend(t) {
		return false
	}

	local := p.LocalTime(t)
	open := time.Date(local.Year(), local.Month(), local.Day(), p.open.Hour, p.open.Minute, 0, 0, p.location)
	closeAt := time.Date(local.Year(), local.Month(), local.Day(), p.close.Hour, p.close.Minute, 0, 0, p.location)

	return !local.Before(open) && !local.After(closeAt)
}

// Status returns "Open" or "Closed" for instant t
func (p *Profile) Status(t time.Time) string {
	if p.IsOpen(t) {
		return "Open"
	}
	return "Closed"
}

// FormatCurrency renders a price with the market's currency symbol
func (p *Profile) FormatCurrency(value float64) string {
	return fmt.Sprintf("%s%.2f", p.currencySymbol, value)
}

// TimeLabel returns the short timezone label used in display strings (ET, IST)
func (p *Profile) TimeLabel() string {
	return p.timeLabel
}

// FormatClock renders t as HH:MM:SS followed by the market's time label
func (p *Profile) FormatClock(t time.Time) string {
	return p.LocalTime(t).Format("15:04:05") + " " + p.timeLabel
}
