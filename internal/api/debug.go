package api

import (
	"context"
	"net/http"

	"tailscale.com/tsweb"

	"github.com/banshee-data/tagview/internal/httputil"
	"github.com/banshee-data/tagview/internal/version"
)

// AttachDebugRoutes mounts pipeline control and viewer listings on the
// debug handler. ctx is the parent context for pipeline restarts.
func (s *Server) AttachDebugRoutes(ctx context.Context, debug *tsweb.DebugHandler) {
	debug.KV("Version", version.String())
	debug.KVFunc("Pipeline running", func() any { return s.p.Running() })
	debug.KVFunc("Viewers", func() any { return s.hub.Count() })

	debug.HandleFunc("pipeline", "Processing loop state; POST action=start|stop", func(w http.ResponseWriter, r *http.Request) {
		s.pipelineControl(ctx, w, r)
	})
	debug.HandleFunc("streams", "Connected stream viewers (JSON)", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSONOK(w, s.hub.Snapshot())
	})
}

func (s *Server) pipelineControl(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodPost:
		switch action := r.FormValue("action"); action {
		case "start":
			s.p.Start(ctx)
			logf("pipeline started from debug endpoint")
		case "stop":
			s.p.Stop()
			logf("pipeline stopped from debug endpoint")
		default:
			httputil.BadRequest(w, "action must be start or stop")
			return
		}
	default:
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, map[string]bool{"running": s.p.Running()})
}
