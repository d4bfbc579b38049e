// api/engine/engine.go
package engine

import (
	"sort"
	"time"

	"shoplens/api/models"
)

// DefaultRiskThreshold is the view-to-purchase ratio above which a product
// counts as at risk of poor conversion.
const DefaultRiskThreshold = 10.0

// Dataset is an immutable snapshot of one loaded event table. Every
// aggregation is a pure read-only function over the snapshot, so a Dataset
// is safe for concurrent use by any number of callers.
type Dataset struct {
	events []models.Event
}

// NewDataset wraps loaded events into an immutable snapshot. The input slice
// is copied so later mutation by the caller cannot leak into the table.
func NewDataset(events []models.Event) *Dataset {
	copied := make([]models.Event, len(events))
	copy(copied, events)
	return &Dataset{events: copied}
}

// Len returns the number of event rows in the table.
func (d *Dataset) Len() int { return len(d.events) }

// TimeBounds returns the UTC calendar days of the earliest and latest events.
// ok is false for an empty table.
func (d *Dataset) TimeBounds() (first, last time.Time, ok bool) {
	if len(d.events) == 0 {
		return time.Time{}, time.Time{}, false
	}
	first = dayOf(d.events[0].EventTime)
	last = first
	for _, e := range d.events[1:] {
		day := dayOf(e.EventTime)
		if day.Before(first) {
			first = day
		}
		if day.After(last) {
			last = day
		}
	}
	return first, last, true
}

// Summary computes the dashboard headline numbers in a single pass.
// Rows with an absent category_code or brand still count toward the view,
// purchase and product totals; they are only excluded from the distinct
// counts of the absent field.
func (d *Dataset) Summary() models.SummaryStats {
	products := make(map[string]struct{})
	brands := make(map[string]struct{})
	mains := make(map[string]struct{})
	subs := make(map[string]struct{})

	var stats models.SummaryStats
	for _, e := range d.events {
		products[e.ProductID] = struct{}{}
		stats.TotalViews += e.View
		stats.TotalPurchases += e.Purchase
		if e.Brand != "" {
			brands[e.Brand] = struct{}{}
		}
		if e.CategoryCode != "" {
			mains[e.MainCategory] = struct{}{}
			subs[e.CategoryCode] = struct{}{}
		}
	}

	stats.TotalProducts = len(products)
	stats.TotalBrands = len(brands)
	stats.TotalCategories = len(mains)
	stats.TotalSubcategories = len(subs)
	return stats
}

// MonthlyTotals groups views and purchases per "YYYY-MM" bucket, ascending.
func (d *Dataset) MonthlyTotals() []models.MonthlyTotal {
	buckets := make(map[string]*models.MonthlyTotal)
	for _, e := range d.events {
		b, ok := buckets[e.YearMonth]
		if !ok {
			b = &models.MonthlyTotal{YearMonth: e.YearMonth}
			buckets[e.YearMonth] = b
		}
		b.Views += e.View
		b.Purchases += e.Purchase
	}

	totals := make([]models.MonthlyTotal, 0, len(buckets))
	for _, b := range buckets {
		totals = append(totals, *b)
	}
	sort.Slice(totals, func(i, j int) bool {
		return totals[i].YearMonth < totals[j].YearMonth
	})
	return totals
}

// TopCategories returns the k category codes with the largest summed metric,
// descending. Ties break on ascending category code so repeated calls are
// reproducible. Rows with an absent category code are excluded.
func (d *Dataset) TopCategories(metric models.Metric, k int) ([]models.CategoryTotal, error) {
	if !metric.Valid() {
		return nil, rangeErrorf("unknown metric %q", metric)
	}
	if k <= 0 {
		return nil, rangeErrorf("top-k limit must be positive, got %d", k)
	}

	sums := make(map[string]int64)
	for _, e := range d.events {
		if e.CategoryCode == "" {
			continue
		}
		sums[e.CategoryCode] += metricValue(e, metric)
	}

	totals := make([]models.CategoryTotal, 0, len(sums))
	for code, total := range sums {
		totals = append(totals, models.CategoryTotal{CategoryCode: code, Total: total})
	}
	sort.Slice(totals, func(i, j int) bool {
		if totals[i].Total != totals[j].Total {
			return totals[i].Total > totals[j].Total
		}
		return totals[i].CategoryCode < totals[j].CategoryCode
	})

	if k < len(totals) {
		totals = totals[:k]
	}
	return totals, nil
}

// AtRiskProducts returns every product whose view-to-purchase ratio,
// views / (purchases + 1), strictly exceeds threshold. The smoothed
// denominator keeps never-purchased products finite. Rows are sorted by
// ratio descending, then product id ascending.
func (d *Dataset) AtRiskProducts(threshold float64) []models.ProductRisk {
	type sums struct {
		views, purchases int64
	}
	perProduct := make(map[string]*sums)
	for _, e := range d.events {
		s, ok := perProduct[e.ProductID]
		if !ok {
			s = &sums{}
			perProduct[e.ProductID] = s
		}
		s.views += e.View
		s.purchases += e.Purchase
	}

	risks := make([]models.ProductRisk, 0)
	for id, s := range perProduct {
		ratio := float64(s.views) / float64(s.purchases+1)
		if ratio > threshold {
			risks = append(risks, models.ProductRisk{
				ProductID:      id,
				TotalViews:     s.views,
				TotalPurchases: s.purchases,
				Ratio:          ratio,
			})
		}
	}
	sort.Slice(risks, func(i, j int) bool {
		if risks[i].Ratio != risks[j].Ratio {
			return risks[i].Ratio > risks[j].Ratio
		}
		return risks[i].ProductID < risks[j].ProductID
	})
	return risks
}

// DailyPurchases sums purchases per UTC calendar day, ascending.
func (d *Dataset) DailyPurchases() []models.DailyTotal {
	sums := make(map[string]int64)
	for _, e := range d.events {
		sums[dayKey(e.EventTime)] += e.Purchase
	}

	totals := make([]models.DailyTotal, 0, len(sums))
	for date, purchases := range sums {
		totals = append(totals, models.DailyTotal{Date: date, Purchases: purchases})
	}
	sort.Slice(totals, func(i, j int) bool {
		return totals[i].Date < totals[j].Date
	})
	return totals
}

// UserDailyPurchases resamples one user's purchases per UTC calendar day.
// Every day between the user's first and last event is present, zero-filled
// when the user had no purchases that day. An unknown user yields an empty
// series.
func (d *Dataset) UserDailyPurchases(userID string) []models.DailyTotal {
	var first, last time.Time
	sums := make(map[string]int64)
	seen := false
	for _, e := range d.events {
		if e.UserID != userID {
			continue
		}
		day := dayOf(e.EventTime)
		if !seen {
			first, last = day, day
			seen = true
		} else {
			if day.Before(first) {
				first = day
			}
			if day.After(last) {
				last = day
			}
		}
		sums[dayKey(e.EventTime)] += e.Purchase
	}
	if !seen {
		return []models.DailyTotal{}
	}

	series := make([]models.DailyTotal, 0, int(last.Sub(first).Hours()/24)+1)
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		key := day.Format("2006-01-02")
		series = append(series, models.DailyTotal{Date: key, Purchases: sums[key]})
	}
	return series
}

// CrossTab builds the filtered overview table: rows inside the closed day
// interval [Start, End] and (when the filter set is non-empty) whose main
// category is selected, grouped by (category code, brand, price) with the
// chosen metric summed, sorted by that sum descending. Rows missing a
// category code or brand have no complete group key and are excluded, as are
// main-category-less rows under a non-empty category filter.
func (d *Dataset) CrossTab(filter models.CrossTabFilter) ([]models.CrossTabRow, error) {
	if !filter.Metric.Valid() {
		return nil, rangeErrorf("unknown metric %q", filter.Metric)
	}
	start := dayOf(filter.Start)
	end := dayOf(filter.End)
	if start.After(end) {
		return nil, rangeErrorf("invalid date range: start %s is after end %s",
			start.Format("2006-01-02"), end.Format("2006-01-02"))
	}

	selected := make(map[string]struct{}, len(filter.MainCategories))
	for _, c := range filter.MainCategories {
		if c != "" {
			selected[c] = struct{}{}
		}
	}

	groups := make(map[string]*models.CrossTabRow)
	for _, e := range d.events {
		day := dayOf(e.EventTime)
		if day.Before(start) || day.After(end) {
			continue
		}
		if len(selected) > 0 {
			if _, ok := selected[e.MainCategory]; !ok {
				continue
			}
		}
		if e.CategoryCode == "" || e.Brand == "" {
			continue
		}

		key := e.CategoryCode + "\x00" + e.Brand + "\x00" + e.Price.String()
		row, ok := groups[key]
		if !ok {
			row = &models.CrossTabRow{
				CategoryCode: e.CategoryCode,
				Brand:        e.Brand,
				Price:        e.Price,
			}
			groups[key] = row
		}
		row.Total += metricValue(e, filter.Metric)
	}

	rows := make([]models.CrossTabRow, 0, len(groups))
	for _, row := range groups {
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Total != rows[j].Total {
			return rows[i].Total > rows[j].Total
		}
		if rows[i].CategoryCode != rows[j].CategoryCode {
			return rows[i].CategoryCode < rows[j].CategoryCode
		}
		if rows[i].Brand != rows[j].Brand {
			return rows[i].Brand < rows[j].Brand
		}
		return rows[i].Price.LessThan(rows[j].Price)
	})
	return rows, nil
}

// MainCategories returns the distinct non-absent main categories, ascending.
// The presentation layer uses this to populate its category filter.
func (d *Dataset) MainCategories() []string {
	set := make(map[string]struct{})
	for _, e := range d.events {
		if e.MainCategory != "" {
			set[e.MainCategory] = struct{}{}
		}
	}
	cats := make([]string, 0, len(set))
	for c := range set {
		cats = append(cats, c)
	}
	sort.Strings(cats)
	return cats
}

func metricValue(e models.Event, m models.Metric) int64 {
	if m == models.MetricPurchase {
		return e.Purchase
	}
	return e.View
}

// dayOf truncates an instant to its UTC calendar day.
func dayOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func dayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
