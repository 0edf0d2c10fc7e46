package observability

import (
	"net/http"
	"net/http/pprof"
)

// TracePath serves runtime execution traces when enabled.
const TracePath = "/debug/pprof/trace"

// Config captures opt-in observability toggles that wire into the server.
type Config struct {
	EnablePprofTrace bool
}

// Mount registers the enabled debug endpoints on mux.
func Mount(mux *http.ServeMux, cfg Config) {
	if cfg.EnablePprofTrace {
		mux.HandleFunc(TracePath, pprof.Trace)
	}
}
