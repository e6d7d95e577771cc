package api

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

// The control API is consumed by local tools on the same host or LAN, so
// CORS stays permissive: any origin, the methods the API actually serves,
// and the headers its clients send.
const (
	corsOrigin  = "*"
	corsMethods = "GET, POST, OPTIONS"
	corsHeaders = "Content-Type, Authorization, Accept, Origin, X-Requested-With"
	corsMaxAge  = "86400"
)

func setCORSHeaders(set func(name, value string)) {
	set("Access-Control-Allow-Origin", corsOrigin)
	set("Access-Control-Allow-Methods", corsMethods)
	set("Access-Control-Allow-Headers", corsHeaders)
	set("Access-Control-Max-Age", corsMaxAge)
}

// corsMiddleware attaches CORS headers to every API response.
func corsMiddleware(ctx huma.Context, next func(huma.Context)) {
	setCORSHeaders(ctx.SetHeader)
	if ctx.Method() == http.MethodOptions {
		ctx.SetStatus(http.StatusNoContent)
		return
	}
	next(ctx)
}

// registerPreflight answers OPTIONS on the mux directly; huma middleware
// never sees preflight for method/path pairs it has no operation for.
func registerPreflight(mux *http.ServeMux) {
	mux.HandleFunc("OPTIONS /", func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w.Header().Set)
		w.WriteHeader(http.StatusNoContent)
	})
}
