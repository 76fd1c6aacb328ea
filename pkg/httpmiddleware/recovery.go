package httpmiddleware

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Problem is the JSON error body returned by the storefront API.
type Problem struct {
	Code    int    `json:"code"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	// Action tells the client how to recover, e.g. "reload" or "sign_in".
	Action string `json:"action,omitempty"`
}

// WriteProblem writes p as JSON with status p.Code.
func WriteProblem(w http.ResponseWriter, p Problem) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(p.Code)
	_ = json.NewEncoder(w).Encode(p)
}

// Recovery turns a panic into a 500 problem that asks the client to reload,
// logging the panic with a stack trace.
func Recovery() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				zctx.From(r.Context()).Error("Panic recovered",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Any("panic", rec),
					zap.Stack("stack"),
				)
				w.Header().Set("Connection", "close")
				WriteProblem(w, Problem{
					Code:    http.StatusInternalServerError,
					Kind:    "internal",
					Message: "Something went wrong. Please reload the page.",
					Action:  "reload",
				})
			}()
			next.ServeHTTP(w, r)
		})
	}
}
