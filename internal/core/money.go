// Package core provides the ledger domain model: projects, paygroups and
// payments, their validation rules and id allocation.
//
// Amounts are kept as integer microcents to avoid floating-point drift.
// One major currency unit is 100 000 000 microcents.
package core

import (
	"github.com/shopspring/decimal"
)

// MicrocentsPerUnit is the number of microcents in one major currency unit.
const MicrocentsPerUnit = 100_000_000

// Microcents is an amount in millionths of a cent.
type Microcents int64

// Decimal returns the amount in major currency units.
func (m Microcents) Decimal() decimal.Decimal {
	return decimal.New(int64(m), -8)
}

// String formats the amount with two fractional digits, e.g. "15.00".
func (m Microcents) String() string {
	return m.Decimal().StringFixed(2)
}
