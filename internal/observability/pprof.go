package observability

import (
	"net/http/pprof"

	"github.com/gorilla/mux"
)

// Register mounts the pprof handlers on router when profiling is enabled.
func (c Config) Register(router *mux.Router) bool {
	if !c.EnablePprofTrace || router == nil {
		return false
	}
	router.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	router.HandleFunc("/debug/pprof/profile", pprof.Profile)
	router.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	router.HandleFunc("/debug/pprof/trace", pprof.Trace)
	router.PathPrefix("/debug/pprof/").HandlerFunc(pprof.Index)
	return true
}
