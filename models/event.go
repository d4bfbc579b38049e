// api/models/event.go
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Event represents a single product interaction row from an uploaded dataset.
// CategoryCode and Brand use the empty string for an absent value.
// MainCategory and YearMonth are derived once by the loader and never
// recomputed; EventTime is always a UTC instant.
type Event struct {
	EventTime    time.Time       `json:"eventTime"`
	ProductID    string          `json:"productId"`
	CategoryCode string          `json:"categoryCode,omitempty"`
	Brand        string          `json:"brand,omitempty"`
	Price        decimal.Decimal `json:"price"`
	UserID       string          `json:"userId"`
	View         int64           `json:"view"`
	Purchase     int64           `json:"purchase"`

	MainCategory string `json:"mainCategory,omitempty"`
	YearMonth    string `json:"yearMonth"`
}

// DeriveMainCategory returns the top-level segment of a dot-delimited
// category code ("electronics.smartphone" -> "electronics"). An absent
// code derives an absent main category.
func DeriveMainCategory(categoryCode string) string {
	if categoryCode == "" {
		return ""
	}
	if i := strings.IndexByte(categoryCode, '.'); i >= 0 {
		return categoryCode[:i]
	}
	return categoryCode
}

// DeriveYearMonth returns the calendar year-month bucket of t as a sortable
// "YYYY-MM" key. Lexical order on the key equals chronological order.
func DeriveYearMonth(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// Metric selects which count column an aggregation sums.
type Metric string

const (
	MetricView     Metric = "view"
	MetricPurchase Metric = "purchase"
)

// ParseMetric validates a metric selector coming from the API boundary.
func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case MetricView, MetricPurchase:
		return Metric(s), nil
	default:
		return "", fmt.Errorf("unknown metric %q (expected 'view' or 'purchase')", s)
	}
}

// Valid reports whether m is a known metric selector.
func (m Metric) Valid() bool {
	return m == MetricView || m == MetricPurchase
}

// SummaryStats holds the dashboard headline numbers for one dataset.
// Distinct counts exclude rows where the counted field is absent.
type SummaryStats struct {
	TotalProducts      int   `json:"totalProducts"`
	TotalViews         int64 `json:"totalViews"`
	TotalPurchases     int64 `json:"totalPurchases"`
	TotalBrands        int   `json:"totalBrands"`
	TotalCategories    int   `json:"totalCategories"`
	TotalSubcategories int   `json:"totalSubcategories"`
}

// MonthlyTotal is one "YYYY-MM" bucket of view and purchase sums.
type MonthlyTotal struct {
	YearMonth string `json:"yearMonth"`
	Views     int64  `json:"views"`
	Purchases int64  `json:"purchases"`
}

// CategoryTotal is one category leaderboard row.
type CategoryTotal struct {
	CategoryCode string `json:"categoryCode"`
	Total        int64  `json:"total"`
}

// ProductRisk is one at-risk product row. Ratio is
// totalViews / (totalPurchases + 1); the +1 is a smoothing constant that
// keeps the ratio finite for never-purchased products.
type ProductRisk struct {
	ProductID      string  `json:"productId"`
	TotalViews     int64   `json:"totalViews"`
	TotalPurchases int64   `json:"totalPurchases"`
	Ratio          float64 `json:"viewToPurchaseRatio"`
}

// DailyTotal is one calendar-day purchase bucket. Date is a sortable
// "YYYY-MM-DD" key on the UTC day.
type DailyTotal struct {
	Date      string `json:"date"`
	Purchases int64  `json:"purchases"`
}

// CrossTabRow is one row of the filtered overview table, keyed by
// (category code, brand, price) with the selected metric summed.
type CrossTabRow struct {
	CategoryCode string          `json:"categoryCode"`
	Brand        string          `json:"brand"`
	Price        decimal.Decimal `json:"price"`
	Total        int64           `json:"total"`
}

// CrossTabFilter describes a filtered overview query. Start and End are
// calendar days, both inclusive. An empty MainCategories slice means no
// category filter.
type CrossTabFilter struct {
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	MainCategories []string  `json:"mainCategories,omitempty"`
	Metric         Metric    `json:"metric"`
}
