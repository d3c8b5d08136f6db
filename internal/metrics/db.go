package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// dbUp is 1 when the last ping to the database succeeded, else 0.
	dbUp = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "courier",
		Subsystem: "db",
		Name:      "up",
		Help:      "Database availability (1=up, 0=down).",
	})

	// redisUp is 1 when the last ping to Redis succeeded, else 0.
	redisUp = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "courier",
		Subsystem: "redis",
		Name:      "up",
		Help:      "Redis availability (1=up, 0=down).",
	})
)

// SetDBUp sets the db up gauge to 1/0.
func SetDBUp(up bool) {
	if up {
		dbUp.Set(1)
		return
	}
	dbUp.Set(0)
}

// SetRedisUp sets the redis up gauge to 1/0.
func SetRedisUp(up bool) {
	if up {
		redisUp.Set(1)
		return
	}
	redisUp.Set(0)
}
