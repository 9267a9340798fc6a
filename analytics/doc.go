// Package analytics serves the top-regions sales aggregation.
//
//	GET /analytics/top-regions?start_date=2025-01-01&end_date=2025-01-31&category=books&top_n=5
//
// Both dates are inclusive. Results are cached for a short TTL keyed by the
// normalized query.
package analytics
