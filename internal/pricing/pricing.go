// Package pricing maps a planned guest count to the per-event billing tier.
// It is the only place tier boundaries and prices are defined.
package pricing

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Tier keys as stored in events.billing_tier.
const (
	TierFree     = "free"
	TierUpTo50   = "up_to_50"
	TierUpTo100  = "up_to_100"
	TierUpTo150  = "up_to_150"
	TierUpTo200  = "up_to_200"
	TierOver200  = "200_plus"
	FreeGuestCap = 25
)

// Tier is a guest-count pricing bracket. UnitAmount is in BRL cents; Limit is nil for the top tier.
type Tier struct {
	Key             string `json:"tier"`
	Label           string `json:"label"`
	UnitAmount      int64  `json:"unit_amount"`
	RequiresPayment bool   `json:"requires_payment"`
	Limit           *int   `json:"limit"`
}

// Within reports whether guests falls inside the tier's upper bound.
func (t Tier) Within(guests int) bool {
	return t.Limit == nil || guests <= *t.Limit
}

func bound(n int) *int { return &n }

// table is ordered by ascending upper bound; the last entry is unbounded.
var table = []Tier{
	{Key: TierFree, Label: "Gratuito até 25 convidados", UnitAmount: 0, RequiresPayment: false, Limit: bound(FreeGuestCap)},
	{Key: TierUpTo50, Label: "Mais de 25 até 50 convidados", UnitAmount: 790, RequiresPayment: true, Limit: bound(50)},
	{Key: TierUpTo100, Label: "Mais de 50 até 100 convidados", UnitAmount: 1790, RequiresPayment: true, Limit: bound(100)},
	{Key: TierUpTo150, Label: "Mais de 100 até 150 convidados", UnitAmount: 2790, RequiresPayment: true, Limit: bound(150)},
	{Key: TierUpTo200, Label: "Mais de 150 até 200 convidados", UnitAmount: 3790, RequiresPayment: true, Limit: bound(200)},
	{Key: TierOver200, Label: "Mais de 200 convidados", UnitAmount: 4790, RequiresPayment: true},
}

// PlanFor returns the first tier whose bound contains guests. Negative counts are treated as 0.
func PlanFor(guests int) Tier {
	if guests < 0 {
		guests = 0
	}
	for _, t := range table {
		if t.Within(guests) {
			return t
		}
	}
	return table[len(table)-1]
}

// ByKey resolves a stored tier key.
func ByKey(key string) (Tier, bool) {
	for _, t := range table {
		if t.Key == key {
			return t, true
		}
	}
	return Tier{}, false
}

// Tiers returns a copy of the pricing table in ascending order.
func Tiers() []Tier {
	out := make([]Tier, len(table))
	copy(out, table)
	return out
}

// GuestCount decodes a JSON number or numeric string. Anything unparsable, negative or
// non-finite becomes 0.
type GuestCount int

// UnmarshalJSON implements json.Unmarshaler.
func (g *GuestCount) UnmarshalJSON(b []byte) error {
	*g = GuestCount(Coerce(b))
	return nil
}

// Coerce converts a raw JSON value into a non-negative guest count.
func Coerce(raw json.RawMessage) int {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return 0
	}
	if unq, err := strconv.Unquote(s); err == nil {
		s = strings.TrimSpace(unq)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return 0
	}
	if f > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(f)
}
