package metrics

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ScanDatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "scan_dates_total", Help: "Scan dates processed by status"},
		[]string{"status"},
	)
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "signals_total", Help: "Signals received from the provider"},
		[]string{"strategy"},
	)
	CandidatesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "candidates_dropped_total", Help: "Signals or candidates dropped before simulation"},
		[]string{"reason"},
	)
	AdmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "admissions_total", Help: "Candidates admitted for simulation"},
		[]string{"strategy"},
	)
	ExitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "exits_total", Help: "Resolved candidates by outcome reason"},
		[]string{"strategy", "reason"},
	)
	OpenPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "open_positions", Help: "Open positions on the latest scan date"},
	)
)

func init() {
	prometheus.MustRegister(ScanDatesTotal, SignalsTotal, CandidatesDropped, AdmissionsTotal, ExitsTotal, OpenPositions)
}

// Router exposes /metrics and a liveness probe.
func Router() *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	return r
}

func Serve(addr string) *http.Server {
	srv := &http.Server{Addr: addr, Handler: Router()}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
