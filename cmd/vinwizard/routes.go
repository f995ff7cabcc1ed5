package main

import (
	"net/http"

	"github.com/WessleyAI/vinwizard/pkg/mid"
	"github.com/WessleyAI/vinwizard/pkg/resilience"
)

// newHandler wires routes and middleware. Lookup-triggering routes are rate
// limited per session when cfg.LookupRate is positive.
func newHandler(a *app, cfg Config) http.Handler {
	limited := func(h http.HandlerFunc) http.Handler { return h }
	if cfg.LookupRate > 0 {
		burst := int(cfg.LookupRate * 2)
		if burst < 1 {
			burst = 1
		}
		rl := mid.RateLimit(resilience.NewKeyedLimiter(resilience.LimiterOpts{Rate: cfg.LookupRate, Burst: burst}))
		limited = func(h http.HandlerFunc) http.Handler { return rl(h) }
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", a.handleIndex)
	mux.Handle("POST /lookup", limited(a.handleLookup))
	mux.Handle("POST /history/select", limited(a.handleSelect))
	mux.HandleFunc("POST /drawer/toggle", a.handleDrawer)
	mux.HandleFunc("POST /drawer/close", a.handleDrawerClose)

	mux.Handle("GET /api/vehicles/{vin}", limited(a.handleVehicle))
	mux.HandleFunc("GET /api/history", a.handleHistory)
	mux.HandleFunc("POST /api/history", a.handleRecord)
	mux.HandleFunc("GET /api/state", a.handleState)
	mux.HandleFunc("GET /api/ws", a.handleWS)
	mux.HandleFunc("GET /api/health", a.handleHealth)
	mux.Handle("GET /metrics", a.metrics.Handler())

	return mid.Chain(mux,
		mid.Recover(a.logger),
		mid.Logger(a.logger),
		mid.CORS(cfg.CORSOrigin),
		mid.OTel(cfg.ServiceName),
		mid.Session(),
	)
}
