package main

import (
	"context"
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/hackgods/booking-platform/internal/appointment"
	"github.com/hackgods/booking-platform/internal/business"
	"github.com/hackgods/booking-platform/internal/config"
	"github.com/hackgods/booking-platform/internal/db"
	"github.com/hackgods/booking-platform/internal/logging"
)

var serviceCatalog = []struct {
	name     string
	duration int
}{
	{"Haircut", 30},
	{"Beard Trim", 15},
	{"Consultation", 30},
	{"Deep Tissue Massage", 60},
	{"Dental Cleaning", 45},
	{"Manicure", 30},
	{"Color Treatment", 90},
	{"Follow-up Visit", 15},
}

type seeder struct {
	log        *logrus.Logger
	businesses *business.Manager
	alloc      *appointment.SlotAllocator
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("config load error: %v", err)
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	log.Info("seed starting")

	if err := db.Migrate(cfg.PostgresDSN, log); err != nil {
		log.WithError(err).Fatal("migrations failed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.WithError(err).Fatal("connect postgres")
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	appointments := appointment.NewPgRepository(pool)
	s := &seeder{
		log:        log,
		businesses: business.NewManager(business.NewPgRepository(pool), appointments, log),
		alloc:      appointment.NewSlotAllocator(appointments, appointment.OptionsFromConfig(cfg)),
	}

	count := envInt("SEED_BUSINESSES", 20)
	perBusiness := envInt("SEED_APPOINTMENTS_PER_BUSINESS", 25)
	if err := s.run(context.Background(), count, perBusiness); err != nil {
		log.WithError(err).Fatal("seed failed")
	}

	log.Info("seed complete")
}

func (s *seeder) run(ctx context.Context, count, perBusiness int) error {
	s.log.WithField("count", count).Info("seeding businesses")

	for i := 0; i < count; i++ {
		b, err := s.seedBusiness(ctx)
		if err != nil {
			return err
		}
		services, err := s.seedServices(ctx, b.ID)
		if err != nil {
			return err
		}
		booked := s.seedAppointments(ctx, b.ID, services, perBusiness)

		s.log.WithFields(logrus.Fields{
			"business":     b.Slug,
			"services":     len(services),
			"appointments": booked,
		}).Infof("business seeded: %d/%d", i+1, count)
	}
	return nil
}

func (s *seeder) seedBusiness(ctx context.Context) (*business.Business, error) {
	phone := gofakeit.Phone()
	email := gofakeit.Email()
	address := gofakeit.Address().Address

	for attempt := 0; ; attempt++ {
		name := gofakeit.Company()
		b, err := s.businesses.Initialize(ctx, uuid.New(), business.Profile{
			Name:    name,
			Slug:    business.Slugify(name) + "-" + strconv.Itoa(gofakeit.Number(100, 999)),
			Phone:   &phone,
			Email:   &email,
			Address: &address,
		})
		if errors.Is(err, business.ErrSlugTaken) && attempt < 5 {
			continue
		}
		return b, err
	}
}

func (s *seeder) seedServices(ctx context.Context, businessID uuid.UUID) ([]*business.Service, error) {
	n := gofakeit.Number(2, 4)
	order := make([]int, len(serviceCatalog))
	for i := range order {
		order[i] = i
	}
	gofakeit.ShuffleInts(order)

	out := make([]*business.Service, 0, n)
	for _, idx := range order[:n] {
		entry := serviceCatalog[idx]
		price := float64(gofakeit.Number(15, 150))
		svc, err := s.businesses.CreateService(ctx, businessID, business.Service{
			Name:            entry.name,
			DurationMinutes: entry.duration,
			Price:           &price,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, svc)
	}
	return out, nil
}

// seedAppointments books through the allocator so seeded data obeys the
// same slot rules as live traffic. Conflicts are skipped.
func (s *seeder) seedAppointments(ctx context.Context, businessID uuid.UUID, services []*business.Service, want int) int {
	today := appointment.DateOf(time.Now())
	booked := 0

	for attempt := 0; attempt < want*3 && booked < want; attempt++ {
		date := today.AddDate(0, 0, gofakeit.Number(0, 21))
		slots, err := s.alloc.GenerateSlots(ctx, businessID, date)
		if err != nil {
			s.log.WithError(err).Warn("generate slots")
			continue
		}
		if len(slots) == 0 {
			continue
		}

		svc := services[gofakeit.Number(0, len(services)-1)]
		email := gofakeit.Email()
		_, err = s.alloc.CommitBooking(ctx, appointment.BookingRequest{
			BusinessID:    businessID,
			ServiceID:     &svc.ID,
			Date:          date,
			Time:          slots[gofakeit.Number(0, len(slots)-1)],
			CustomerName:  gofakeit.Name(),
			CustomerPhone: gofakeit.Phone(),
			CustomerEmail: &email,
		})
		var conflict *appointment.ConflictError
		switch {
		case errors.As(err, &conflict):
			continue
		case err != nil:
			s.log.WithError(err).Warn("seed booking failed")
			continue
		}
		booked++
	}
	return booked
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return def
}
