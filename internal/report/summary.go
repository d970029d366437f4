package report

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// Summary is the reduced result of a generator.
type Summary interface {
	Type() Type
	// Text renders the summary as the body line of a notification.
	Text() string
}

type OrdersSummary struct {
	TotalOrders     int `json:"total_orders"`
	CompletedOrders int `json:"completed_orders"`
	PendingOrders   int `json:"pending_orders"`
}

type InventorySummary struct {
	TotalItems    int `json:"total_items"`
	LowStockItems int `json:"low_stock_items"`
}

type TimeSummary struct {
	TotalHours       float64 `json:"total_hours"`
	CompletedEntries int     `json:"completed_entries"`
	ActiveSessions   int     `json:"active_sessions"`
}

type RevenueSummary struct {
	TotalRevenue      float64 `json:"total_revenue"`
	OrderCount        int     `json:"order_count"`
	AverageOrderValue float64 `json:"average_order_value"`
}

// ProductivitySummary carries a nil AverageEfficiency until efficiency
// scoring exists.
type ProductivitySummary struct {
	EmployeeCount     int      `json:"employee_count"`
	AverageEfficiency *float64 `json:"average_efficiency"`
}

func (OrdersSummary) Type() Type       { return TypeOrders }
func (InventorySummary) Type() Type    { return TypeInventory }
func (TimeSummary) Type() Type         { return TypeTime }
func (RevenueSummary) Type() Type      { return TypeRevenue }
func (ProductivitySummary) Type() Type { return TypeProductivity }

// ZeroSummary is the summary of an empty data set for t.
func ZeroSummary(t Type) Summary {
	switch t {
	case TypeOrders:
		return OrdersSummary{}
	case TypeInventory:
		return InventorySummary{}
	case TypeTime:
		return TimeSummary{}
	case TypeRevenue:
		return RevenueSummary{}
	case TypeProductivity:
		return ProductivitySummary{}
	}
	return nil
}

func (s OrdersSummary) Text() string {
	return fmt.Sprintf("Orders: %d total, %d completed, %d in progress.",
		s.TotalOrders, s.CompletedOrders, s.PendingOrders)
}

func (s InventorySummary) Text() string {
	return fmt.Sprintf("Inventory: %d items tracked, %d below their low-stock threshold.",
		s.TotalItems, s.LowStockItems)
}

func (s TimeSummary) Text() string {
	return fmt.Sprintf("Time tracking: %.1f hours logged across %d completed entries, %d sessions currently active.",
		s.TotalHours, s.CompletedEntries, s.ActiveSessions)
}

func (s RevenueSummary) Text() string {
	return fmt.Sprintf("Revenue: %s from %d orders, average order value %s.",
		money(s.TotalRevenue), s.OrderCount, money(s.AverageOrderValue))
}

func (s ProductivitySummary) Text() string {
	eff := "n/a"
	if s.AverageEfficiency != nil {
		eff = fmt.Sprintf("%.1f%%", *s.AverageEfficiency)
	}
	return fmt.Sprintf("Productivity: %d employees, average efficiency %s.", s.EmployeeCount, eff)
}

// money formats v with two decimals and thousands separators.
func money(v float64) string {
	return humanize.FormatFloat("#,###.##", v)
}
