package relay

import (
	"encoding/json"
	"net/http"
	"time"

	gmux "github.com/gorilla/mux"
	ilog "github.com/lorikeet-im/lorikeet/log"
)

type healthReport struct {
	NodeID        string `json:"node_id"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

func (r *Relay) serveHealth(writer http.ResponseWriter, req *http.Request) {
	writeJSON(writer, healthReport{
		NodeID:        r.NodeID.String(),
		UptimeSeconds: int64(time.Since(r.started) / time.Second),
	})
}

func (r *Relay) serveStats(writer http.ResponseWriter, req *http.Request) {
	writeJSON(writer, r.Stats())
}

func writeJSON(writer http.ResponseWriter, body interface{}) {
	raw, err := json.Marshal(body)
	if err != nil {
		writer.WriteHeader(http.StatusInternalServerError)
		return
	}
	writer.Header().Set("Content-Type", "application/json")
	writer.Write(raw)
}

// ManageHandler builds the management API router.
func (r *Relay) ManageHandler() http.Handler {
	router := gmux.NewRouter()
	router.HandleFunc("/v1/health", r.serveHealth).Methods("GET")
	router.HandleFunc("/v1/stats", r.serveStats).Methods("GET")
	return ilog.TagLogHandler(router, map[string]interface{}{
		"entity": "manage-api",
	})
}

// ServeManageAPI serves the management API at endpoint. Blocking; meant to
// run on its own goroutine beside the chat listener.
func (r *Relay) ServeManageAPI(endpoint string) error {
	server := http.Server{
		Addr:    endpoint,
		Handler: r.ManageHandler(),
	}
	return server.ListenAndServe()
}
