package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rioprayoga/lensrent-backend/api/controllers"
	"github.com/rioprayoga/lensrent-backend/api/middleware"
	"github.com/rioprayoga/lensrent-backend/internal/allocation"
	"github.com/rioprayoga/lensrent-backend/internal/availability"
	"github.com/rioprayoga/lensrent-backend/internal/catalog"
	"github.com/rioprayoga/lensrent-backend/internal/reservations"
	"github.com/rioprayoga/lensrent-backend/pkg/config"
	"github.com/rioprayoga/lensrent-backend/pkg/db"
	"github.com/rioprayoga/lensrent-backend/pkg/logger"
	redisclient "github.com/rioprayoga/lensrent-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisP redisclient.Pinger,
	availabilityCache *availability.Cache,
	catalogService *catalog.Service,
	reservationService *reservations.Service,
	allocator *allocation.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisP))
	})

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/availability", controllers.GetAvailability(availabilityCache, logg))

		r.Route("/products", func(r chi.Router) {
			r.Post("/", controllers.CreateProduct(catalogService, logg))
			r.Get("/", controllers.ListProducts(catalogService, logg))
			r.Get("/{productID}", controllers.GetProduct(catalogService, logg))
			r.Post("/{productID}/units", controllers.RegisterUnit(catalogService, logg))
		})

		r.Route("/units", func(r chi.Router) {
			r.Patch("/{unitID}/availability", controllers.SetUnitAvailability(catalogService, logg))
			r.Delete("/{unitID}", controllers.RetireUnit(catalogService, logg))
		})

		r.Route("/bundlings", func(r chi.Router) {
			r.Post("/", controllers.CreateBundling(catalogService, logg))
			r.Get("/", controllers.ListBundlings(catalogService, logg))
			r.Get("/{bundlingID}", controllers.GetBundling(catalogService, logg))
		})

		r.Route("/reservations", func(r chi.Router) {
			r.Post("/", controllers.CreateReservation(reservationService, logg))
			r.Get("/", controllers.ListReservations(reservationService, logg))
			r.Get("/{reservationID}", controllers.GetReservation(reservationService, logg))
			r.Post("/{reservationID}/status", controllers.TransitionReservation(reservationService, logg))
			r.Put("/lines/{lineID}/serials", controllers.AssignSerials(allocator, logg))
		})
	})

	return r
}
