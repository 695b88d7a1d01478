package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/mandexhq/mandex-backend/api/controllers"
	"github.com/mandexhq/mandex-backend/api/middleware"
	"github.com/mandexhq/mandex-backend/internal/auction"
	"github.com/mandexhq/mandex-backend/internal/credit"
	"github.com/mandexhq/mandex-backend/internal/decision"
	"github.com/mandexhq/mandex-backend/internal/orders"
	"github.com/mandexhq/mandex-backend/internal/suppliers"
	"github.com/mandexhq/mandex-backend/pkg/config"
	"github.com/mandexhq/mandex-backend/pkg/logger"
)

// Deps carries everything the router wires into handlers.
type Deps struct {
	Config      *config.Config
	Logger      *logger.Logger
	DB          *gorm.DB
	OrdersRepo  *orders.Repository
	OrdersSvc   *orders.Service
	AuctionSvc  *auction.Service
	Coordinator *decision.Coordinator
	SupplierRep *suppliers.Repository
	CreditRepo  *credit.Repository
	ReadyDeps   map[string]controllers.Pinger
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.ReadyDeps))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole("buyer", logg))

			r.Route("/orders", func(r chi.Router) {
				r.Post("/", controllers.CreateOrder(deps.OrdersSvc, logg))
				r.Get("/", controllers.ListOrders(deps.OrdersRepo, logg))
				r.Get("/{orderId}", controllers.OrderDetail(deps.OrdersSvc, logg))
				r.Get("/{orderId}/offers", controllers.ListOffers(deps.AuctionSvc, logg))
				r.Post("/{orderId}/validate", controllers.ValidateOrder(deps.OrdersSvc, logg))
				r.Post("/{orderId}/broadcast", controllers.BroadcastOrder(deps.OrdersSvc, logg))
				r.Post("/{orderId}/deliver", controllers.DeliverOrder(deps.OrdersSvc, logg))
				r.Post("/{orderId}/return", controllers.ReturnOrder(deps.OrdersSvc, logg))
				r.Post("/{orderId}/cancel", controllers.CancelOrder(deps.OrdersSvc, logg))
			})
			r.Route("/credit/{supplierId}", func(r chi.Router) {
				r.Get("/available", controllers.CreditAvailable(deps.DB, logg))
				r.Get("/entries", controllers.CreditEntries(deps.DB, logg))
			})
		})

		r.Route("/supplier", func(r chi.Router) {
			r.Use(middleware.RequireRole("supplier", logg))

			r.Route("/orders/{orderId}", func(r chi.Router) {
				r.Post("/bids", controllers.SubmitBid(deps.AuctionSvc, logg))
				r.Post("/confirm", controllers.ConfirmOrder(deps.OrdersSvc, logg))
				r.Post("/dispatch", controllers.DispatchOrder(deps.OrdersSvc, logg))
			})
			r.Route("/stock", func(r chi.Router) {
				r.Get("/", controllers.ListStock(deps.DB, logg))
				r.Put("/", controllers.SetStock(deps.DB, logg))
			})
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole("admin", logg))

		r.Route("/suppliers", func(r chi.Router) {
			r.Post("/", controllers.CreateSupplier(deps.SupplierRep, logg))
			r.Get("/{supplierId}", controllers.SupplierDetail(deps.SupplierRep, logg))
		})
		r.Route("/orders/{orderId}", func(r chi.Router) {
			r.Get("/", controllers.OrderDetail(deps.OrdersSvc, logg))
			r.Get("/offers", controllers.ListOffers(deps.AuctionSvc, logg))
			r.Post("/decide", controllers.DecideOrder(deps.Coordinator, logg))
		})
		r.Route("/credit", func(r chi.Router) {
			r.Post("/accounts", controllers.CreateCreditAccount(deps.CreditRepo, logg))
			r.Patch("/accounts/{accountId}/limit", controllers.UpdateCreditLimit(deps.CreditRepo, logg))
			r.Post("/accounts/{accountId}/block", controllers.BlockCreditAccount(deps.CreditRepo, logg))
			r.Get("/{buyerId}/{supplierId}/verify", controllers.VerifyCreditChain(deps.DB, logg))
		})
		r.Get("/audit/{targetId}", controllers.AuditTrail(deps.DB, logg))
	})

	return r
}
