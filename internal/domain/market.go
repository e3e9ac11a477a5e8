package domain

import (
	"fmt"
	"time"
)

// MarketStatus represents the lifecycle state of a market.
type MarketStatus string

const (
	MarketStatusActive MarketStatus = "active"
	MarketStatusClosed MarketStatus = "closed"
)

// Side is one tradable side of a binary market.
type Side string

const (
	SideYes Side = "YES"
	SideNo  Side = "NO"
)

// Sides lists both contract sides in canonical order.
var Sides = [2]Side{SideYes, SideNo}

// Opposite returns the counter side.
func (s Side) Opposite() Side {
	if s == SideYes {
		return SideNo
	}
	return SideYes
}

// Valid reports whether s is YES or NO.
func (s Side) Valid() bool {
	return s == SideYes || s == SideNo
}

// ParseSide accepts "yes"/"no" in any case.
func ParseSide(v string) (Side, error) {
	switch v {
	case "YES", "Yes", "yes":
		return SideYes, nil
	case "NO", "No", "no":
		return SideNo, nil
	}
	return "", fmt.Errorf("%w: unknown side %q", ErrMalformedInput, v)
}

// Outcome is the resolution state of a market.
type Outcome string

const (
	OutcomeUnresolved Outcome = "UNRESOLVED"
	OutcomeYes        Outcome = "YES"
	OutcomeNo         Outcome = "NO"
)

// Resolved reports whether the market has settled to YES or NO.
func (o Outcome) Resolved() bool {
	return o == OutcomeYes || o == OutcomeNo
}

// Winner reports whether side won under this outcome. Always false while
// unresolved.
func (o Outcome) Winner(side Side) bool {
	return o.Resolved() && string(o) == string(side)
}

// Market represents a Polymarket binary prediction market.
type Market struct {
	ID         string
	Question   string
	Category   string
	Slug       string
	YesTokenID string
	NoTokenID  string
	Outcome    Outcome
	ResolvedAt *time.Time
	EndDate    *time.Time
	Status     MarketStatus
	Volume     float64
	Liquidity  float64
	Tags       []string
	URL        string
	UpdatedAt  time.Time
}

// Contract is a read-only view of one side of a market.
type Contract struct {
	ContractID string
	MarketID   string
	Side       Side
}

// HasTokens reports whether both contract ids are known.
func (m Market) HasTokens() bool {
	return m.YesTokenID != "" && m.NoTokenID != ""
}

// Contracts returns the YES and NO contract views of the market.
func (m Market) Contracts() [2]Contract {
	return [2]Contract{
		{ContractID: m.YesTokenID, MarketID: m.ID, Side: SideYes},
		{ContractID: m.NoTokenID, MarketID: m.ID, Side: SideNo},
	}
}

// TokenID returns the contract id for side.
func (m Market) TokenID(side Side) string {
	if side == SideYes {
		return m.YesTokenID
	}
	return m.NoTokenID
}

// CurrentOutcome treats an empty outcome as unresolved.
func (m Market) CurrentOutcome() Outcome {
	if m.Outcome == "" {
		return OutcomeUnresolved
	}
	return m.Outcome
}

// Resolve settles the market. A market resolves exactly once; the outcome
// is terminal afterwards. A zero at records the outcome with an unknown
// resolution time.
func (m *Market) Resolve(outcome Outcome, at time.Time) error {
	if !outcome.Resolved() {
		return fmt.Errorf("%w: cannot resolve to %q", ErrMalformedInput, outcome)
	}
	if m.CurrentOutcome().Resolved() {
		return fmt.Errorf("market %s: %w", m.ID, ErrAlreadyResolved)
	}
	m.Outcome = outcome
	m.ResolvedAt = nil
	if !at.IsZero() {
		at = at.UTC()
		m.ResolvedAt = &at
	}
	m.Status = MarketStatusClosed
	return nil
}
