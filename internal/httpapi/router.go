package httpapi

import (
	"net/http"
	"strings"
)

// RouterConfig wires handlers and middleware into the router.
type RouterConfig struct {
	Allocations *AllocationHandler
	Holds       *HoldHandler
	Middleware  []func(http.Handler) http.Handler
}

// NewRouter builds the API router. Nil handlers leave their routes
// unregistered.
func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	if cfg.Allocations != nil {
		mux.HandleFunc("/quotes", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				methodNotAllowed(w, http.MethodPost)
				return
			}
			cfg.Allocations.Quote(w, r)
		})
		mux.HandleFunc("/manual/validate", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				methodNotAllowed(w, http.MethodPost)
				return
			}
			cfg.Allocations.ValidateManual(w, r)
		})
		mux.HandleFunc("/manual/hold", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				methodNotAllowed(w, http.MethodPost)
				return
			}
			cfg.Allocations.HoldManual(w, r)
		})
		mux.HandleFunc("/bookings/", func(w http.ResponseWriter, r *http.Request) {
			rest := strings.TrimPrefix(r.URL.Path, "/bookings/")
			bookingID, tail, _ := strings.Cut(rest, "/")
			if bookingID == "" || tail != "manual-context" {
				http.NotFound(w, r)
				return
			}
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}
			ctx := ContextWithBookingID(r.Context(), bookingID)
			cfg.Allocations.ManualContext(w, r.WithContext(ctx))
		})
	}

	if cfg.Holds != nil {
		mux.HandleFunc("/holds/", func(w http.ResponseWriter, r *http.Request) {
			rest := strings.TrimPrefix(r.URL.Path, "/holds/")
			holdID, tail, _ := strings.Cut(rest, "/")
			if holdID == "" {
				http.NotFound(w, r)
				return
			}
			ctx := ContextWithHoldID(r.Context(), holdID)
			r = r.WithContext(ctx)
			switch {
			case tail == "confirm" && r.Method == http.MethodPost:
				cfg.Holds.Confirm(w, r)
			case tail == "confirm":
				methodNotAllowed(w, http.MethodPost)
			case tail == "" && r.Method == http.MethodDelete:
				cfg.Holds.Release(w, r)
			case tail == "":
				methodNotAllowed(w, http.MethodDelete)
			default:
				http.NotFound(w, r)
			}
		})
		mux.HandleFunc("/admin/sweep-holds", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				methodNotAllowed(w, http.MethodPost)
				return
			}
			cfg.Holds.SweepHolds(w, r)
		})
	}

	var handler http.Handler = mux
	for i := len(cfg.Middleware) - 1; i >= 0; i-- {
		if cfg.Middleware[i] != nil {
			handler = cfg.Middleware[i](handler)
		}
	}

	return handler
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
}
