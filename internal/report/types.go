package report

import (
	"fmt"
	"strings"
)

// Type selects the generator and the filter shape of a schedule.
type Type string

const (
	TypeOrders       Type = "orders"
	TypeInventory    Type = "inventory"
	TypeTime         Type = "time"
	TypeRevenue      Type = "revenue"
	TypeProductivity Type = "productivity"
)

func (t Type) Valid() bool {
	switch t {
	case TypeOrders, TypeInventory, TypeTime, TypeRevenue, TypeProductivity:
		return true
	}
	return false
}

// ParseType normalizes s and checks it names a known report type.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown report type %q", s)
	}
	return t, nil
}

// Frequency is the cadence of a schedule.
type Frequency string

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
)

func (f Frequency) Valid() bool {
	switch f {
	case Daily, Weekly, Monthly:
		return true
	}
	return false
}

// ParseFrequency normalizes s and checks it names a known frequency.
func ParseFrequency(s string) (Frequency, error) {
	f := Frequency(strings.ToLower(strings.TrimSpace(s)))
	if !f.Valid() {
		return "", fmt.Errorf("unknown frequency %q", s)
	}
	return f, nil
}
