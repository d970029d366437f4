package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"
)

// Filters narrows the data a generator reads. Each report type has exactly
// one filter shape; the concrete type is chosen by DecodeFilters.
type Filters interface {
	Type() Type
	isFilters()
}

type OrdersFilter struct {
	Status     string     `json:"status,omitempty"`
	From       *time.Time `json:"date_from,omitempty"`
	To         *time.Time `json:"date_to,omitempty"`
	CustomerID string     `json:"customer_id,omitempty"`
}

type InventoryFilter struct {
	Category string `json:"category,omitempty"`
}

// TimeFilter requires a date range; time reports over all history are
// rejected by the generator.
type TimeFilter struct {
	From       time.Time `json:"date_from"`
	To         time.Time `json:"date_to"`
	EmployeeID string    `json:"employee_id,omitempty"`
}

type RevenueFilter struct {
	From       *time.Time `json:"date_from,omitempty"`
	To         *time.Time `json:"date_to,omitempty"`
	CustomerID string     `json:"customer_id,omitempty"`
}

type ProductivityFilter struct {
	Department string `json:"department,omitempty"`
}

func (OrdersFilter) Type() Type       { return TypeOrders }
func (InventoryFilter) Type() Type    { return TypeInventory }
func (TimeFilter) Type() Type         { return TypeTime }
func (RevenueFilter) Type() Type      { return TypeRevenue }
func (ProductivityFilter) Type() Type { return TypeProductivity }

func (OrdersFilter) isFilters()       {}
func (InventoryFilter) isFilters()    {}
func (TimeFilter) isFilters()         {}
func (RevenueFilter) isFilters()      {}
func (ProductivityFilter) isFilters() {}

// ZeroFilters returns the empty filter for t, or nil for an unknown type.
func ZeroFilters(t Type) Filters {
	switch t {
	case TypeOrders:
		return OrdersFilter{}
	case TypeInventory:
		return InventoryFilter{}
	case TypeTime:
		return TimeFilter{}
	case TypeRevenue:
		return RevenueFilter{}
	case TypeProductivity:
		return ProductivityFilter{}
	}
	return nil
}

// DecodeFilters parses the persisted JSON filter payload for a report of
// type t. Unknown fields are rejected. An empty or null payload yields the
// zero filter.
func DecodeFilters(t Type, raw []byte) (Filters, error) {
	zero := ZeroFilters(t)
	if zero == nil {
		return nil, fmt.Errorf("decode filters: unknown report type %q", t)
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) || bytes.Equal(raw, []byte("{}")) {
		return zero, nil
	}

	var (
		f   Filters
		err error
	)
	switch t {
	case TypeOrders:
		var v OrdersFilter
		err = strictDecode(raw, &v)
		f = v
	case TypeInventory:
		var v InventoryFilter
		err = strictDecode(raw, &v)
		f = v
	case TypeTime:
		var v TimeFilter
		err = strictDecode(raw, &v)
		f = v
	case TypeRevenue:
		var v RevenueFilter
		err = strictDecode(raw, &v)
		f = v
	default:
		var v ProductivityFilter
		err = strictDecode(raw, &v)
		f = v
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s filters: %w", t, err)
	}
	return f, nil
}

// EncodeFilters renders f for storage. A nil filter encodes as "{}".
func EncodeFilters(f Filters) ([]byte, error) {
	if f == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode %s filters: %w", f.Type(), err)
	}
	return b, nil
}

func strictDecode(raw []byte, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("trailing data after filter object")
	}
	return nil
}
