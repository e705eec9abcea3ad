package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"truefantix/internal/cache"
	"truefantix/internal/config"
	apperrors "truefantix/internal/errors"
	"truefantix/internal/external"
	"truefantix/internal/handlers"
	"truefantix/internal/messaging"
	"truefantix/internal/middleware"
	"truefantix/internal/repository"
	"truefantix/internal/search"
	"truefantix/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// Server представляет HTTP сервер API
type Server struct {
	router   *gin.Engine
	config   *config.Config
	store    repository.Store
	nats     *messaging.NATSClient
	redis    *redis.Client
	services *service.Services
	limiter  cache.RateLimiter
}

// NewServer подключает инфраструктуру и собирает сервер.
// Redis и Elasticsearch необязательны: без них работают in-memory лимитер и поиск по базе.
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	gin.SetMode(cfg.GinMode)

	store, err := repository.Open(ctx, cfg.DBDriver, cfg.Database)
	if err != nil {
		return nil, err
	}

	natsClient, err := messaging.NewNATSClient(cfg.NATS)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	rdb, err := cache.NewRedisClient(cfg.Redis)
	if err != nil {
		natsClient.Close()
		store.Close()
		return nil, err
	}

	var (
		limiter  cache.RateLimiter  = cache.NewMemoryRateLimiter()
		sessions cache.SessionCache = cache.NopSessionCache{}
	)
	if rdb != nil {
		limiter = cache.NewRedisRateLimiter(rdb)
		sessions = cache.NewRedisSessionCache(rdb)
		slog.Info("Connected to Redis", "addr", cfg.Redis.Addr)
	} else {
		slog.Warn("REDIS_ADDR is not set, using in-process rate limiter")
	}

	deps := service.Deps{
		Store:     store,
		Publisher: natsClient,
		Payments:  external.NewStripeGateway(cfg.Stripe),
		Verifier:  external.NewTicketingClient(cfg.Ticketing),
		Sessions:  sessions,
		Auth:      cfg.Auth,
		Market:    cfg.Marketplace,
		Currency:  cfg.Stripe.Currency,
	}
	if cfg.Elasticsearch.Enabled() {
		index, err := search.NewTicketIndex(cfg.Elasticsearch)
		if err != nil {
			slog.Warn("Elasticsearch unavailable, falling back to database search", "error", err)
		} else {
			deps.Search = index
		}
	}

	s := New(cfg, service.NewServices(deps), limiter)
	s.store = store
	s.nats = natsClient
	s.redis = rdb
	return s, nil
}

// New собирает роутер поверх готовых сервисов
func New(cfg *config.Config, services *service.Services, limiter cache.RateLimiter) *Server {
	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.CORS())
	router.Use(middleware.Logger())
	router.Use(middleware.Metrics())

	s := &Server{
		router:   router,
		config:   cfg,
		services: services,
		limiter:  limiter,
	}
	s.setupRoutes()
	return s
}

// setupRoutes настраивает все API роуты
func (s *Server) setupRoutes() {
	h := handlers.NewHandlers(s.services, s.config.Auth)

	var (
		user     = middleware.RequireUser()
		verified = middleware.RequireVerified()
		seller   = middleware.RequireSellerApproved()
		admin    = middleware.RequireAdmin()
	)

	s.router.GET("/health", h.Health)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.router.Group("/api")

	// Stripe подписывает тело, сессия не нужна
	api.POST("/webhooks/stripe", h.StripeWebhook)

	cron := api.Group("/cron", middleware.CronSecret(s.config.Auth))
	{
		cron.POST("/escrow-timeout", h.EscrowTimeout)
		cron.POST("/reservations/expire", h.ExpireReservations)
	}

	api.Use(middleware.SessionAuth(s.services.Auth, s.config.Auth.CookieName))

	auth := api.Group("/auth")
	{
		auth.POST("/register", middleware.RateLimit(s.limiter, middleware.RegisterLimit), h.Register)
		auth.POST("/login", middleware.RateLimit(s.limiter, middleware.LoginLimit), h.Login)
		auth.POST("/logout", h.Logout)
		auth.GET("/me", user, h.Me)
		auth.POST("/verify/send", user, h.SendVerification)
		auth.POST("/verify/confirm", user, h.ConfirmVerification)
	}

	orders := api.Group("/orders")
	{
		orders.POST("/checkout", verified, middleware.RateLimit(s.limiter, middleware.CheckoutLimit), h.Checkout)
		orders.GET("", user, h.ListOrders)
		orders.GET("/:id", user, h.GetOrder)
		orders.POST("/:id/reverse", admin, h.ReverseOrder)
		orders.GET("/:id/escrow", user, h.OrderEscrow)
		orders.POST("/:id/escrow/release-ticket", admin, h.ReleaseEscrowToBuyer)
		orders.POST("/:id/escrow/release-back", admin, h.ReleaseEscrowBack)
	}

	api.POST("/payments/create-intent", verified, h.CreatePaymentIntent)

	tickets := api.Group("/tickets")
	{
		tickets.GET("", h.ListTickets)
		tickets.GET("/search", h.SearchTickets)
		tickets.GET("/:id", h.GetTicket)
		tickets.POST("", seller, h.CreateTicket)
		tickets.POST("/:id/verify", admin, h.VerifyTicket)
		tickets.POST("/:id/withdraw", user, h.WithdrawTicket)
		tickets.GET("/:id/escrow", user, h.TicketEscrow)
		tickets.POST("/:id/escrow/deposit", user, h.DepositEscrow)
	}

	api.GET("/events", h.ListEvents)

	sellers := api.Group("/sellers")
	{
		sellers.GET("", h.ListSellers)
		sellers.POST("/credits", admin, h.AdjustCredits)
		sellers.GET("/:id", h.GetSeller)
		sellers.GET("/:id/credits", user, h.SellerCredits)
	}

	api.GET("/account/access-tokens", user, h.AccessTokens)

	notifications := api.Group("/notifications", user)
	{
		notifications.GET("", h.ListNotifications)
		notifications.PATCH("", h.MarkNotifications)
		notifications.DELETE("", h.DeleteNotifications)
	}

	forum := api.Group("/forum/threads")
	{
		forum.GET("", h.ListThreads)
		forum.POST("", verified, h.CreateThread)
		forum.GET("/:id", h.GetThread)
		forum.POST("/:id/posts", verified, h.CreatePost)
	}

	waitlist := api.Group("/waitlist", user)
	{
		waitlist.GET("", h.ListWaitlist)
		waitlist.POST("", h.JoinWaitlist)
	}

	adm := api.Group("/admin", admin)
	{
		adm.POST("/reservations/expire", h.ExpireReservations)
		adm.POST("/orders/:id/capture", h.CaptureOrder)
		adm.POST("/orders/:id/deliver", h.DeliverOrder)
		adm.POST("/orders/:id/complete", h.CompleteOrder)
		adm.POST("/events", h.CreateEvent)
		adm.PATCH("/events/:id/sellout", h.UpdateSellout)
		adm.POST("/sellers/:id/approve", h.ApproveSeller)
		adm.GET("/sellers/:id/credits/audit", h.CreditAudit)
		adm.POST("/forum/threads/:id/lock", h.LockThread)
		adm.POST("/forum/threads/:id/visibility", h.SetThreadVisibility)
		adm.GET("/ops/metrics", h.OpsMetrics)
	}
}

const timeoutBody = `{"ok":false,"error":"` + apperrors.CodeUnavailable + `","message":"Request timed out."}`

// Handler возвращает http.Handler с таймаутом запроса
func (s *Server) Handler() http.Handler {
	if s.config.RequestTimeout <= 0 {
		return s.router
	}
	timeout := http.TimeoutHandler(s.router, s.config.RequestTimeout, timeoutBody)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// ответ по таймауту пишется мимо gin, заголовок ставим заранее
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		timeout.ServeHTTP(w, r)
	})
}

// GetRouter возвращает роутер для тестирования
func (s *Server) GetRouter() *gin.Engine {
	return s.router
}

// Cleanup закрывает соединения
func (s *Server) Cleanup() error {
	if s.nats != nil {
		if err := s.nats.Close(); err != nil {
			slog.Error("Error closing NATS connection", "error", err)
		}
	}

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			slog.Error("Error closing Redis connection", "error", err)
		}
	}

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			slog.Error("Error closing database connection", "error", err)
			return err
		}
	}

	return nil
}
