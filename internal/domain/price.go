package domain

import "time"

// PricePoint is an observation of a contract's price at a moment.
type PricePoint struct {
	ContractID string
	Timestamp  time.Time
	Price      float64
}

// ValidPrice reports whether p lies within [0,1]. NaN is rejected.
func ValidPrice(p float64) bool {
	return p >= 0 && p <= 1
}

// OptionalPrice is a price that may be absent, e.g. the best bid of an
// empty book side.
type OptionalPrice struct {
	Value float64
	Valid bool
}

// SomePrice wraps a present price.
func SomePrice(v float64) OptionalPrice {
	return OptionalPrice{Value: v, Valid: true}
}

// NoPrice is the absent price.
func NoPrice() OptionalPrice {
	return OptionalPrice{}
}

// Get returns the value and whether it is present.
func (o OptionalPrice) Get() (float64, bool) {
	return o.Value, o.Valid
}

// Quote is the live best-bid/best-ask snapshot of one contract.
type Quote struct {
	ContractID string
	BestBid    OptionalPrice
	BestAsk    OptionalPrice
	Timestamp  time.Time
}

// Midpoint derives the live price of the contract. With both sides present
// it is (bid+ask)/2; with one side present that side is used and oneSided is
// true; with neither side ok is false.
func (q Quote) Midpoint() (pt PricePoint, oneSided bool, ok bool) {
	bid, hasBid := q.BestBid.Get()
	ask, hasAsk := q.BestAsk.Get()
	pt = PricePoint{ContractID: q.ContractID, Timestamp: q.Timestamp}
	switch {
	case hasBid && hasAsk:
		pt.Price = (bid + ask) / 2
		return pt, false, true
	case hasBid:
		pt.Price = bid
		return pt, true, true
	case hasAsk:
		pt.Price = ask
		return pt, true, true
	}
	return PricePoint{}, false, false
}

// Spread returns ask-bid when both sides exist.
func (q Quote) Spread() OptionalPrice {
	bid, hasBid := q.BestBid.Get()
	ask, hasAsk := q.BestAsk.Get()
	if !hasBid || !hasAsk {
		return NoPrice()
	}
	return SomePrice(ask - bid)
}

// LiveSnapshot pairs the YES and NO quotes of one market captured together.
type LiveSnapshot struct {
	MarketID string
	Question string
	Yes      Quote
	No       Quote
	Time     time.Time
}

// Quote returns the quote for side.
func (s LiveSnapshot) Quote(side Side) Quote {
	if side == SideYes {
		return s.Yes
	}
	return s.No
}
