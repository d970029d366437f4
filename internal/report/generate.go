package report

import (
	"context"
	"fmt"
	"time"
)

// Order statuses the generators count.
const (
	StatusCompleted  = "completed"
	StatusInProgress = "in_progress"
)

// OrderRow is one tenant order as the generators see it.
type OrderRow struct {
	ID        string
	Status    string
	Total     *float64
	CreatedAt time.Time
}

// InventoryRow is one stocked item.
type InventoryRow struct {
	ID                string
	Category          string
	Quantity          int
	LowStockThreshold int
}

// TimeLogRow is one time-tracking entry. EndedAt is nil while the session
// is still running.
type TimeLogRow struct {
	ID              string
	EmployeeID      string
	StartedAt       time.Time
	EndedAt         *time.Time
	DurationMinutes *int
}

// DataSource is the read side of the store the generators depend on. Every
// method returns rows of the given tenant only, narrowed by the filter.
type DataSource interface {
	Orders(ctx context.Context, tenantID string, f OrdersFilter) ([]OrderRow, error)
	InventoryItems(ctx context.Context, tenantID string, f InventoryFilter) ([]InventoryRow, error)
	TimeLogs(ctx context.Context, tenantID string, f TimeFilter) ([]TimeLogRow, error)
	CountEmployees(ctx context.Context, tenantID string, f ProductivityFilter) (int, error)
}

// Generate runs the generator selected by the filter's type.
func Generate(ctx context.Context, src DataSource, tenantID string, f Filters) (Summary, error) {
	switch f := f.(type) {
	case OrdersFilter:
		return GenerateOrders(ctx, src, tenantID, f)
	case InventoryFilter:
		return GenerateInventory(ctx, src, tenantID, f)
	case TimeFilter:
		return GenerateTime(ctx, src, tenantID, f)
	case RevenueFilter:
		return GenerateRevenue(ctx, src, tenantID, f)
	case ProductivityFilter:
		return GenerateProductivity(ctx, src, tenantID, f)
	case nil:
		return nil, fmt.Errorf("%w: no filters", ErrInvalidFilter)
	default:
		return nil, fmt.Errorf("%w: unsupported filter %T", ErrInvalidFilter, f)
	}
}

func GenerateOrders(ctx context.Context, src DataSource, tenantID string, f OrdersFilter) (OrdersSummary, error) {
	rows, err := src.Orders(ctx, tenantID, f)
	if err != nil {
		return OrdersSummary{}, fmt.Errorf("orders report: %w", err)
	}
	var out OrdersSummary
	for _, r := range rows {
		out.TotalOrders++
		switch r.Status {
		case StatusCompleted:
			out.CompletedOrders++
		case StatusInProgress:
			out.PendingOrders++
		}
	}
	return out, nil
}

func GenerateInventory(ctx context.Context, src DataSource, tenantID string, f InventoryFilter) (InventorySummary, error) {
	rows, err := src.InventoryItems(ctx, tenantID, f)
	if err != nil {
		return InventorySummary{}, fmt.Errorf("inventory report: %w", err)
	}
	var out InventorySummary
	for _, r := range rows {
		out.TotalItems++
		if r.Quantity < r.LowStockThreshold {
			out.LowStockItems++
		}
	}
	return out, nil
}

func GenerateTime(ctx context.Context, src DataSource, tenantID string, f TimeFilter) (TimeSummary, error) {
	if f.From.IsZero() || f.To.IsZero() {
		return TimeSummary{}, fmt.Errorf("%w: time report requires date_from and date_to", ErrInvalidFilter)
	}
	if f.To.Before(f.From) {
		return TimeSummary{}, fmt.Errorf("%w: date_to before date_from", ErrInvalidFilter)
	}
	rows, err := src.TimeLogs(ctx, tenantID, f)
	if err != nil {
		return TimeSummary{}, fmt.Errorf("time report: %w", err)
	}
	var (
		out     TimeSummary
		minutes float64
	)
	for _, r := range rows {
		if r.EndedAt == nil {
			out.ActiveSessions++
			continue
		}
		out.CompletedEntries++
		if r.DurationMinutes != nil {
			minutes += float64(*r.DurationMinutes)
		} else if r.EndedAt.After(r.StartedAt) {
			minutes += r.EndedAt.Sub(r.StartedAt).Minutes()
		}
	}
	out.TotalHours = minutes / 60
	return out, nil
}

func GenerateRevenue(ctx context.Context, src DataSource, tenantID string, f RevenueFilter) (RevenueSummary, error) {
	rows, err := src.Orders(ctx, tenantID, OrdersFilter{From: f.From, To: f.To, CustomerID: f.CustomerID})
	if err != nil {
		return RevenueSummary{}, fmt.Errorf("revenue report: %w", err)
	}
	var out RevenueSummary
	for _, r := range rows {
		if r.Total == nil {
			continue
		}
		out.OrderCount++
		out.TotalRevenue += *r.Total
	}
	if out.OrderCount > 0 {
		out.AverageOrderValue = out.TotalRevenue / float64(out.OrderCount)
	}
	return out, nil
}

// GenerateProductivity counts employees. Efficiency scoring has no data
// source yet, so AverageEfficiency is always nil.
func GenerateProductivity(ctx context.Context, src DataSource, tenantID string, f ProductivityFilter) (ProductivitySummary, error) {
	n, err := src.CountEmployees(ctx, tenantID, f)
	if err != nil {
		return ProductivitySummary{}, fmt.Errorf("productivity report: %w", err)
	}
	return ProductivitySummary{EmployeeCount: n}, nil
}
