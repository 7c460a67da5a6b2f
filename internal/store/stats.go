package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// SalesStats is the owner-dashboard rollup: paid-order counts, revenue and
// profit over three windows, plus pending and attention-needed counts.
type SalesStats struct {
	TotalOrders  int             `json:"total_orders"`
	TotalRevenue decimal.Decimal `json:"total_revenue"`
	TotalProfit  decimal.Decimal `json:"total_profit"`

	TodayOrders  int             `json:"today_orders"`
	TodayRevenue decimal.Decimal `json:"today_revenue"`
	TodayProfit  decimal.Decimal `json:"today_profit"`

	WeekOrders  int             `json:"week_orders"`
	WeekRevenue decimal.Decimal `json:"week_revenue"`
	WeekProfit  decimal.Decimal `json:"week_profit"`

	PendingOrders int `json:"pending_orders"`
	// Orders whose dispatch ledger shows at least one supplier failure.
	FailedDispatches int `json:"failed_dispatches"`

	RecentOrders []RecentOrder `json:"recent_orders"`
}

type RecentOrder struct {
	OrderNumber   string          `json:"order_number"`
	CustomerEmail string          `json:"customer_email"`
	Total         decimal.Decimal `json:"total"`
	Profit        decimal.Decimal `json:"profit"`
	Status        string          `json:"status"`
	PaymentStatus string          `json:"payment_status"`
	FulfillStatus string          `json:"fulfillment_status"`
	DispatchState string          `json:"dispatch_state,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

func (s *Store) SalesStats(ctx context.Context) (*SalesStats, error) {
	stats := &SalesStats{}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(total_amount), 0), COALESCE(SUM(profit_amount), 0)
		FROM orders WHERE payment_status = 'paid'
	`).Scan(&stats.TotalOrders, &stats.TotalRevenue, &stats.TotalProfit)
	if err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(total_amount), 0), COALESCE(SUM(profit_amount), 0)
		FROM orders WHERE payment_status = 'paid' AND created_at >= DATE_TRUNC('day', NOW())
	`).Scan(&stats.TodayOrders, &stats.TodayRevenue, &stats.TodayProfit)
	if err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(total_amount), 0), COALESCE(SUM(profit_amount), 0)
		FROM orders WHERE payment_status = 'paid' AND created_at >= NOW() - INTERVAL '7 days'
	`).Scan(&stats.WeekOrders, &stats.WeekRevenue, &stats.WeekProfit)
	if err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM orders WHERE payment_status = 'unpaid'`,
	).Scan(&stats.PendingOrders)
	if err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM orders
		WHERE dispatch_state IN ('partial_failure', 'all_failed')
	`).Scan(&stats.FailedDispatches)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT order_number, customer_email, total_amount, profit_amount,
		       status, payment_status, fulfillment_status, COALESCE(dispatch_state, ''), created_at
		FROM orders ORDER BY created_at DESC LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var o RecentOrder
		if err := rows.Scan(&o.OrderNumber, &o.CustomerEmail, &o.Total, &o.Profit,
			&o.Status, &o.PaymentStatus, &o.FulfillStatus, &o.DispatchState, &o.CreatedAt); err != nil {
			return nil, err
		}
		stats.RecentOrders = append(stats.RecentOrders, o)
	}

	return stats, rows.Err()
}
