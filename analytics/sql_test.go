package analytics

import (
	"strings"
	"testing"
	"time"
)

func TestBuildTopRegionsSQL(t *testing.T) {
	const head = "SELECT region, SUM(total_amount)::float8 AS total_sales, COUNT(*) AS orders_count FROM sales_data"

	tests := []struct {
		name      string
		q         Query
		wantWhere string
		wantLimit string
		wantArgs  int
	}{
		{name: "no filters", q: Query{TopN: 5}, wantLimit: "$1", wantArgs: 1},
		{
			name:      "start only",
			q:         Query{StartDate: date("2025-01-01"), TopN: 5},
			wantWhere: " WHERE sale_date >= $1",
			wantLimit: "$2",
			wantArgs:  2,
		},
		{
			name:      "categories only",
			q:         Query{Categories: []string{"books"}, TopN: 5},
			wantWhere: " WHERE category = ANY($1)",
			wantLimit: "$2",
			wantArgs:  2,
		},
		{
			name:      "all filters",
			q:         Query{StartDate: date("2025-01-01"), EndDate: date("2025-01-31"), Categories: []string{"a", "b"}, TopN: 10},
			wantWhere: " WHERE sale_date >= $1 AND sale_date < $2 AND category = ANY($3)",
			wantLimit: "$4",
			wantArgs:  4,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args := BuildTopRegionsSQL(tt.q)
			want := head + tt.wantWhere + " GROUP BY region ORDER BY total_sales DESC LIMIT " + tt.wantLimit
			if sql != want {
				t.Errorf("sql =\n%s\nwant\n%s", sql, want)
			}
			if len(args) != tt.wantArgs {
				t.Fatalf("len(args) = %d, want %d", len(args), tt.wantArgs)
			}
			if args[len(args)-1] != tt.q.TopN {
				t.Errorf("limit arg = %v, want %d", args[len(args)-1], tt.q.TopN)
			}
		})
	}
}

func TestBuildTopRegionsSQL_EndDateExclusive(t *testing.T) {
	_, args := BuildTopRegionsSQL(Query{EndDate: date("2025-01-31"), TopN: 5})
	end, ok := args[0].(time.Time)
	if !ok {
		t.Fatalf("args[0] = %T", args[0])
	}
	if got := end.Format(DateLayout); got != "2025-02-01" {
		t.Errorf("end bound = %s, want 2025-02-01", got)
	}
}

func TestBuildTopRegionsSQL_NoValuesInlined(t *testing.T) {
	sql, _ := BuildTopRegionsSQL(Query{Categories: []string{"x'; DROP TABLE sales_data; --"}, TopN: 5})
	if strings.Contains(sql, "DROP") {
		t.Errorf("category value leaked into SQL: %s", sql)
	}
}
