package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"truefantix/internal/config"
	"truefantix/internal/logger"
	"truefantix/internal/models"
	"truefantix/internal/repository"
	"truefantix/internal/service"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	sellerCount    = flag.Int("sellers", 3, "Number of approved demo sellers")
	ticketsPer     = flag.Int("tickets", 4, "Tickets listed per seller")
	grantCredits   = flag.Int64("credits", 0, "Admin credit grant per seller (0 = none)")
	adminEmail     = flag.String("admin-email", "admin@truefantix.local", "Email of the demo admin")
	password       = flag.String("password", "DemoPass123", "Password for every demo account")
	dryRun         = flag.Bool("dry-run", false, "Generate into an in-memory store and discard the result")
)

var demoEvents = []models.CreateEventRequest{
	{Title: "Northern Lights Tour", Venue: "Rogers Arena, Vancouver", Date: "2026-11-14 20:00"},
	{Title: "Maple Leafs vs Canadiens", Venue: "Scotiabank Arena, Toronto", Date: "2026-12-02 19:00"},
	{Title: "Jazz at the Hall", Venue: "Massey Hall, Toronto", Date: "2026-12-19 19:30"},
	{Title: "Winter Indie Fest", Venue: "MTELUS, Montreal", Date: "2027-01-23 18:00", SelloutStatus: models.SelloutSoldOut},
}

var sections = []string{"Floor", "Lower Bowl", "Upper Bowl", "Balcony", "Mezzanine"}

// Seeder наполняет витрину демо-данными через сервисный слой
type Seeder struct {
	store    repository.Store
	services *service.Services
	rnd      *rand.Rand
}

func main() {
	flag.Parse()

	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogFormat)

	slog.Info("Starting demo seed...")

	driver := cfg.DBDriver
	if *dryRun {
		driver = repository.DriverMemory
	}

	ctx := context.Background()
	store, err := repository.Open(ctx, driver, cfg.Database)
	if err != nil {
		logger.Fatal("Failed to open store", "error", err)
	}
	defer store.Close()

	seeder := &Seeder{
		store: store,
		services: service.NewServices(service.Deps{
			Store:    store,
			Auth:     cfg.Auth,
			Market:   cfg.Marketplace,
			Currency: cfg.Stripe.Currency,
		}),
		rnd: rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)),
	}

	if err := seeder.Run(ctx); err != nil {
		logger.Fatal("Seed failed", "error", err)
	}

	slog.Info("Demo seed completed successfully!", "dry_run", *dryRun)
}

func (s *Seeder) Run(ctx context.Context) error {
	if err := s.createAdmin(ctx); err != nil {
		return err
	}

	events := make([]*models.Event, 0, len(demoEvents))
	for i := range demoEvents {
		event, err := s.services.Events.Create(ctx, &demoEvents[i])
		if err != nil {
			return fmt.Errorf("failed to create event %q: %w", demoEvents[i].Title, err)
		}
		events = append(events, event)
	}
	slog.Info("Created events", "count", len(events))

	listed := 0
	for i := 1; i <= *sellerCount; i++ {
		seller, err := s.createSeller(ctx, i)
		if err != nil {
			return err
		}
		for j := 0; j < *ticketsPer; j++ {
			event := events[s.rnd.IntN(len(events))]
			if err := s.listTicket(ctx, seller, event); err != nil {
				slog.Error("Failed to list ticket", "seller_id", *seller.SellerID, "event_id", event.ID, "error", err)
				continue
			}
			listed++
		}
	}

	slog.Info("Listed tickets", "count", listed)
	return nil
}

// createAdmin заводит администратора напрямую: регистрация всегда выдает роль USER
func (s *Seeder) createAdmin(ctx context.Context) error {
	existing, err := s.store.Repos().Users.GetByEmail(ctx, *adminEmail)
	if err != nil {
		return fmt.Errorf("failed to check admin: %w", err)
	}
	if existing != nil {
		slog.Info("Admin already exists, skipping", "email", *adminEmail)
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(*password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	now := time.Now()
	admin := &models.User{
		ID:              uuid.New().String(),
		Email:           *adminEmail,
		Phone:           "+1 555 000 0000",
		PasswordHash:    string(hash),
		FirstName:       "Demo",
		LastName:        "Admin",
		Country:         "CA",
		Role:            models.RoleAdmin,
		CanBuy:          true,
		EmailVerifiedAt: &now,
		PhoneVerifiedAt: &now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.Repos().Users.Create(ctx, admin); err != nil {
		return fmt.Errorf("failed to create admin: %w", err)
	}
	slog.Info("Created admin", "email", admin.Email)
	return nil
}

func (s *Seeder) createSeller(ctx context.Context, n int) (*models.User, error) {
	email := fmt.Sprintf("seller%d@truefantix.local", n)
	existing, err := s.store.Repos().Users.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to check seller %d: %w", n, err)
	}
	if existing != nil && existing.SellerID != nil && existing.CanSell {
		slog.Info("Seller already exists, reusing", "email", email)
		return existing, nil
	}
	if existing != nil {
		return nil, fmt.Errorf("seller %d exists but cannot sell, remove %s first", n, email)
	}

	res, err := s.services.Auth.Register(ctx, &models.RegisterRequest{
		Email:          email,
		Phone:          fmt.Sprintf("+1 555 010 %04d", n),
		Password:       *password,
		FirstName:      "Seller",
		LastName:       fmt.Sprintf("No%d", n),
		StreetAddress1: fmt.Sprintf("%d King St W", 100+n),
		City:           "Toronto",
		Region:         "ON",
		PostalCode:     "M5H 1A1",
		Country:        "CA",
		AcceptTerms:    true,
		AcceptPrivacy:  true,
	}, models.SessionInfo{IP: "127.0.0.1", UserAgent: "truefantix-seed"})
	if err != nil {
		return nil, fmt.Errorf("failed to register seller %d: %w", n, err)
	}
	user := res.User

	now := time.Now()
	users := s.store.Repos().Users
	for _, channel := range []string{models.ChannelEmail, models.ChannelPhone} {
		if err := users.MarkVerified(ctx, user.ID, channel, now); err != nil {
			return nil, fmt.Errorf("failed to verify seller %d: %w", n, err)
		}
	}
	user.EmailVerifiedAt = &now
	user.PhoneVerifiedAt = &now

	if _, err := s.services.Sellers.Approve(ctx, *user.SellerID); err != nil {
		return nil, fmt.Errorf("failed to approve seller %d: %w", n, err)
	}
	user.CanSell = true

	if *grantCredits > 0 {
		_, err := s.services.Credits.Adjust(ctx, &models.CreditAdjustmentRequest{
			SellerID:      *user.SellerID,
			AmountCredits: *grantCredits,
			Note:          "Demo seed grant",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to grant credits to seller %d: %w", n, err)
		}
	}

	slog.Info("Created seller", "email", user.Email, "seller_id", *user.SellerID)
	return user, nil
}

func (s *Seeder) listTicket(ctx context.Context, seller *models.User, event *models.Event) error {
	face := int64(5000 + s.rnd.IntN(20)*500)
	// от номинала до +20%
	price := face + face*int64(s.rnd.IntN(21))/100
	section := sections[s.rnd.IntN(len(sections))]

	ticket, err := s.services.Tickets.Create(ctx, seller, &models.CreateTicketRequest{
		Title:          fmt.Sprintf("%s - %s, Row %d", event.Title, section, 1+s.rnd.IntN(30)),
		PriceCents:     &price,
		FaceValueCents: &face,
		Image:          "https://picsum.photos/seed/" + event.ID[:8] + "/640/360",
		Venue:          event.Venue,
		Date:           event.Date,
		EventID:        &event.ID,
		BarcodeData:    fmt.Sprintf("%016d", s.rnd.Int64N(1e16)),
		BarcodeType:    "QR",
	})
	if err != nil {
		return err
	}

	if ticket.VerificationStatus != models.VerificationVerified {
		score := 90
		_, err := s.services.Tickets.Verify(ctx, ticket.ID, &models.VerifyTicketRequest{
			VerificationStatus: models.VerificationVerified,
			VerificationScore:  &score,
			VerificationReason: "Seeded demo listing",
		})
		if err != nil {
			return fmt.Errorf("failed to verify ticket: %w", err)
		}
	}
	return nil
}
