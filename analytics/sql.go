package analytics

import (
	"strconv"
	"strings"
)

// BuildTopRegionsSQL renders the aggregation for q with positional
// parameters. The end date is made exclusive as end_date + 1 day so
// timestamp columns include the whole final day.
func BuildTopRegionsSQL(q Query) (string, []any) {
	var (
		where []string
		args  []any
	)
	param := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if !q.StartDate.IsZero() {
		where = append(where, "sale_date >= "+param(q.StartDate))
	}
	if !q.EndDate.IsZero() {
		where = append(where, "sale_date < "+param(q.EndDate.AddDate(0, 0, 1)))
	}
	if len(q.Categories) > 0 {
		where = append(where, "category = ANY("+param(q.Categories)+")")
	}

	var b strings.Builder
	b.WriteString("SELECT region, SUM(total_amount)::float8 AS total_sales, COUNT(*) AS orders_count FROM sales_data")
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" GROUP BY region ORDER BY total_sales DESC LIMIT ")
	b.WriteString(param(q.TopN))
	return b.String(), args
}
