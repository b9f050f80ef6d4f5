package store

import (
	"database/sql"
	"math"
)

// nullFloat stores NaN and ±Inf as SQL NULL.
func nullFloat(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func floatOrNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
