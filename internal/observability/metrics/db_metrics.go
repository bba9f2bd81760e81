package metrics

import (
	"database/sql"
	"log"

	"github.com/prometheus/client_golang/prometheus"
)

// RegisterDBMetrics registers gauges backed by table counts.
func RegisterDBMetrics(reg prometheus.Registerer, db *sql.DB, logger *log.Logger) {
	if db == nil {
		return
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "outlets",
			Help: "Registered outlets",
		},
		func() float64 {
			return queryCount(db, logger, "SELECT COUNT(*) FROM outlets")
		},
	))

	reg.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "virtual_outlets",
			Help: "Stored virtual and compound outlets",
		},
		func() float64 {
			return queryCount(db, logger, "SELECT COUNT(*) FROM virtual_outlets")
		},
	))

	reg.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "protected_changes",
			Help: "Operational changes marked protected",
		},
		func() float64 {
			return queryCount(db, logger, "SELECT COUNT(*) FROM operational_changes WHERE protected")
		},
	))
}

func queryCount(db *sql.DB, logger *log.Logger, query string) float64 {
	if db == nil {
		return 0
	}
	var count int64
	if err := db.QueryRow(query).Scan(&count); err != nil {
		if logger != nil {
			logger.Printf("metrics query failed: %v", err)
		}
		return 0
	}
	if count < 0 {
		return 0
	}
	return float64(count)
}
