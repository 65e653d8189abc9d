package api

import (
	"encoding/json"
	"net/http"

	"github.com/heysubinoy/etagkv/internal/store"
	"github.com/heysubinoy/etagkv/pkg/kv"
)

// MetricsHandler returns current store metrics as JSON, keyed by store name.
// Only stores wrapped in an InstrumentedStore are reported.
func MetricsHandler(stores *kv.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		response := map[string]interface{}{}
		for _, name := range stores.Names() {
			s, err := stores.Lookup(name)
			if err != nil {
				continue
			}
			instrumented, ok := s.(*store.InstrumentedStore)
			if !ok {
				continue
			}
			metrics := instrumented.GetMetrics()
			response[name] = map[string]interface{}{
				"operations": map[string]uint64{
					"get":      metrics.GetCount,
					"put":      metrics.PutCount,
					"delete":   metrics.DeleteCount,
					"conflict": metrics.ConflictCount,
					"error":    metrics.ErrorCount,
				},
				"avg_latency": map[string]string{
					"get":    metrics.GetAvgLatency.String(),
					"put":    metrics.PutAvgLatency.String(),
					"delete": metrics.DeleteAvgLatency.String(),
				},
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}
}
