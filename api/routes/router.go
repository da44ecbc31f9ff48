package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/campus-loyalty/api/controllers"
	"github.com/angelmondragon/campus-loyalty/api/middleware"
	"github.com/angelmondragon/campus-loyalty/internal/auth"
	"github.com/angelmondragon/campus-loyalty/internal/events"
	"github.com/angelmondragon/campus-loyalty/internal/notifications"
	"github.com/angelmondragon/campus-loyalty/internal/promotions"
	"github.com/angelmondragon/campus-loyalty/internal/transactions"
	"github.com/angelmondragon/campus-loyalty/internal/users"
	"github.com/angelmondragon/campus-loyalty/pkg/auth/session"
	"github.com/angelmondragon/campus-loyalty/pkg/config"
	"github.com/angelmondragon/campus-loyalty/pkg/enums"
	"github.com/angelmondragon/campus-loyalty/pkg/logger"
	pkgredis "github.com/angelmondragon/campus-loyalty/pkg/redis"
)

// Params carries everything the HTTP surface needs. Nil services answer 500
// on their routes; a nil Redis disables rate limiting and idempotency.
type Params struct {
	Config        *config.Config
	Logger        *logger.Logger
	DB            controllers.Pinger
	Redis         *pkgredis.Client
	Sessions      session.AccessSessionChecker
	Gatherer      prometheus.Gatherer
	Auth          auth.Service
	Users         users.Service
	Transactions  transactions.Service
	Promotions    promotions.Service
	Events        events.Service
	Notifications notifications.Service
}

// NewRouter mounts every loyalty route behind the shared middleware chain.
func NewRouter(p Params) http.Handler {
	cfg, logg := p.Config, p.Logger
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS),
	)

	// Interface values must stay nil when the client is absent.
	var (
		rateStore  middleware.WindowCounter
		idemStore  middleware.IdempotencyStore
		redisProbe controllers.Pinger
	)
	if p.Redis != nil {
		rateStore, idemStore, redisProbe = p.Redis, p.Redis, p.Redis
	}

	loginLimit := middleware.AuthRateLimit(middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginUtoridLimit,
	), rateStore, logg)
	resetLimit := middleware.AuthRateLimit(middleware.NewAuthRateLimitPolicy(
		"reset",
		cfg.AuthRateLimit.ResetWindow,
		cfg.AuthRateLimit.ResetIPLimit,
		cfg.AuthRateLimit.ResetUtoridLimit,
	), rateStore, logg)
	authenticate := middleware.Auth(cfg.JWT, p.Sessions, logg)
	idempotent := middleware.Idempotency(idemStore, cfg.Eventing.RequestIdempotencyTTL, logg)
	cashier := middleware.RequireRole(enums.RoleCashier, logg)
	manager := middleware.RequireRole(enums.RoleManager, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"postgres": p.DB,
			"redis":    redisProbe,
		}))
	})
	if p.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(p.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/auth", func(r chi.Router) {
		r.With(loginLimit).Post("/tokens", controllers.AuthLogin(p.Auth, logg))
		r.With(authenticate).Delete("/tokens", controllers.AuthLogout(p.Auth, logg))
		r.With(resetLimit).Post("/resets", controllers.AuthRequestReset(p.Auth, logg))
		r.With(resetLimit).Post("/resets/{resetToken}", controllers.AuthPerformReset(p.Auth, logg))
	})

	r.Group(func(r chi.Router) {
		r.Use(authenticate)

		r.Route("/users", func(r chi.Router) {
			r.With(cashier).Post("/", controllers.UserRegister(p.Users, logg))
			r.With(manager).Get("/", controllers.UserList(p.Users, logg))

			r.Get("/me", controllers.UserMe(p.Users, logg))
			r.Patch("/me", controllers.UserUpdateMe(p.Users, logg))
			r.Patch("/me/password", controllers.UserChangePassword(p.Users, logg))
			r.Get("/me/transactions", controllers.TransactionListMine(p.Transactions, logg))
			r.With(idempotent).Post("/me/transactions", controllers.TransactionRedeem(p.Transactions, logg))

			r.With(cashier).Get("/{userId}", controllers.UserGet(p.Users, logg))
			r.With(manager).Patch("/{userId}", controllers.UserUpdate(p.Users, logg))
			r.With(idempotent).Post("/{userId}/transactions", controllers.TransactionTransfer(p.Transactions, logg))
		})

		r.Route("/transactions", func(r chi.Router) {
			r.With(cashier, idempotent).Post("/", controllers.TransactionCreate(p.Transactions, logg))
			r.With(manager).Get("/", controllers.TransactionList(p.Transactions, logg))
			r.With(manager).Get("/{transactionId}", controllers.TransactionGet(p.Transactions, logg))
			r.With(manager).Patch("/{transactionId}/suspicious", controllers.TransactionSuspicious(p.Transactions, logg))
			r.With(cashier).Patch("/{transactionId}/processed", controllers.TransactionProcess(p.Transactions, logg))
		})

		r.Route("/promotions", func(r chi.Router) {
			r.With(manager).Post("/", controllers.PromotionCreate(p.Promotions, logg))
			r.Get("/", controllers.PromotionList(p.Promotions, logg))
			r.Get("/{promotionId}", controllers.PromotionGet(p.Promotions, logg))
			r.With(manager).Patch("/{promotionId}", controllers.PromotionUpdate(p.Promotions, logg))
			r.With(manager).Delete("/{promotionId}", controllers.PromotionDelete(p.Promotions, logg))
		})

		// Organizer rights are per event, so those routes gate in the service.
		r.Route("/events", func(r chi.Router) {
			r.With(manager).Post("/", controllers.EventCreate(p.Events, logg))
			r.Get("/", controllers.EventList(p.Events, logg))
			r.Get("/{eventId}", controllers.EventGet(p.Events, logg))
			r.Patch("/{eventId}", controllers.EventUpdate(p.Events, logg))
			r.With(manager).Delete("/{eventId}", controllers.EventDelete(p.Events, logg))

			r.With(manager).Post("/{eventId}/organizers", controllers.EventAddOrganizer(p.Events, logg))
			r.With(manager).Delete("/{eventId}/organizers/{userId}", controllers.EventRemoveOrganizer(p.Events, logg))

			r.Post("/{eventId}/guests", controllers.EventAddGuest(p.Events, logg))
			r.Post("/{eventId}/guests/me", controllers.EventRSVP(p.Events, logg))
			r.Delete("/{eventId}/guests/me", controllers.EventCancelRSVP(p.Events, logg))
			r.With(manager).Delete("/{eventId}/guests/{userId}", controllers.EventRemoveGuest(p.Events, logg))

			r.With(idempotent).Post("/{eventId}/transactions", controllers.EventAward(p.Transactions, logg))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(p.Notifications, logg))
			r.Patch("/read-all", controllers.MarkAllNotificationsRead(p.Notifications, logg))
			r.Patch("/{notificationId}/read", controllers.MarkNotificationRead(p.Notifications, logg))
		})
	})

	return r
}
