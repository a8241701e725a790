package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"tenderbridge/internal/controller"
)

func NewRouter(c *controller.Controller) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors)

	r.Route("/api", func(r chi.Router) {
		r.Get("/ping", c.Ping)
		r.Get("/health", c.Health)
		r.Get("/events", c.Events)
		r.Post("/agent/changed", c.AgentChanged)
		r.Post("/estimate", c.EstimatePrice)

		r.Route("/tenders", func(r chi.Router) {
			r.Get("/", c.GetTenders)
			r.Post("/new", c.NewTender)
			r.Route("/{tenderId}", func(r chi.Router) {
				r.Get("/", c.GetTender)
				r.Post("/take", c.TakeTender)
				r.Post("/complete", c.CompleteTender)
				r.Post("/cancel", c.CancelTender)
				r.Post("/close", c.CloseTender)
			})
		})

		r.Route("/bids", func(r chi.Router) {
			r.Post("/new", c.NewBid)
			r.Get("/{tenderId}/list", c.GetTenderBids)
		})

		r.Route("/parties", func(r chi.Router) {
			r.Post("/new", c.NewParty)
			r.Get("/{username}", c.GetParty)
		})
	})

	return r
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
