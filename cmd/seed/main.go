package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/hackgods/clinic-reconciler/internal/appointment"
	"github.com/hackgods/clinic-reconciler/internal/calendar"
	"github.com/hackgods/clinic-reconciler/internal/config"
	"github.com/hackgods/clinic-reconciler/internal/db"
	redisclient "github.com/hackgods/clinic-reconciler/internal/redis"
	"github.com/hackgods/clinic-reconciler/internal/session"
)

// seed places fake appointments on the clinic's calendars through the same
// service the API uses, then settles a share of them so every bucket has data.
func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	count := flag.Int("count", 40, "appointments to create")
	days := flag.Int("days", 14, "spread appointments over this many days around today")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}
	sess := session.Session{AccessToken: cfg.CalendarAccessToken, UserID: cfg.ClinicUserID}
	if !sess.Valid() {
		log.Fatal("CLINIC_USER_ID and CALENDAR_ACCESS_TOKEN are required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, "clinic-seed")
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	rdb, err := redisclient.NewRedisClient(ctx, cfg)
	if err != nil {
		log.Fatalf("redis connection error: %v", err)
	}
	defer rdb.Close()

	repo := appointment.NewPgRepository(pool)
	svc := appointment.NewService(appointment.Dependencies{
		Source:    calendar.NewClient(cfg.CalendarAPIURL, cfg.CalendarTimeout, cfg.CalendarPageSize),
		Ledger:    repo,
		Payments:  repo,
		Snapshots: appointment.NewMemorySnapshots(),
		Locker:    redisclient.NewRedisLocker(rdb),
		Sessions:  session.Static(sess),
	}, cfg)

	cals, err := svc.Calendars(ctx)
	if err != nil {
		log.Fatalf("list clinical calendars: %v", err)
	}
	log.Printf("seeding %d appointments over %d clinical calendars", *count, len(cals))

	faker := gofakeit.New(0)

	var created []string
	for i := 0; i < *count; i++ {
		req := fakeRequest(faker, cals, cfg.Location, *days)
		id, err := svc.Create(ctx, req)
		if err != nil {
			log.Printf("create appointment %d failed: %v", i, err)
			continue
		}
		created = append(created, id)
	}
	log.Printf("created %d/%d appointments", len(created), *count)

	if err := svc.Refresh(ctx); err != nil {
		log.Fatalf("refresh after seeding: %v", err)
	}

	settle(ctx, faker, svc, created)

	b, snap, err := svc.Buckets(ctx)
	if err != nil {
		log.Fatalf("load buckets: %v", err)
	}
	log.Printf(
		"seed complete appointments=%d today=%d upcoming=%d past=%d completed=%d cancelled=%d",
		len(snap.Appointments), len(b.Today), len(b.Upcoming), len(b.Past), len(b.Completed), len(b.Cancelled),
	)
}

var sampleNotes = []string{
	"",
	"Trazer exames anteriores.",
	"Paciente prefere contato por WhatsApp.",
	"Jejum de 8 horas.",
	"Primeira consulta.",
}

var appointmentTypes = []appointment.AppointmentType{
	appointment.TypeConsultation,
	appointment.TypeConsultation,
	appointment.TypeFollowUp,
	appointment.TypeProcedure,
}

func fakeRequest(faker *gofakeit.Faker, cals []calendar.CalendarListEntry, loc *time.Location, days int) appointment.CreateRequest {
	now := time.Now().In(loc)
	day := now.AddDate(0, 0, faker.Number(-days/2, days/2))
	start := time.Date(day.Year(), day.Month(), day.Day(), faker.Number(8, 17), 30*faker.Number(0, 1), 0, 0, loc)

	return appointment.CreateRequest{
		CalendarID:   cals[faker.Number(0, len(cals)-1)].ID,
		PatientName:  faker.Name(),
		PatientEmail: faker.Email(),
		PatientPhone: faker.Phone(),
		Type:         appointmentTypes[faker.Number(0, len(appointmentTypes)-1)],
		Start:        start,
		End:          start.Add(time.Duration(faker.RandomInt([]int{30, 45, 60})) * time.Minute),
		Notes:        faker.RandomString(sampleNotes),
	}
}

// settle cancels, completes and pays a share of the created appointments.
func settle(ctx context.Context, faker *gofakeit.Faker, svc *appointment.Service, ids []string) {
	for _, id := range ids {
		var err error
		switch roll := faker.Number(1, 10); {
		case roll == 1:
			err = svc.Cancel(ctx, id)
		case roll == 2:
			err = svc.MarkCompleted(ctx, id)
		case roll <= 4:
			_, err = svc.RecordPayment(ctx, id, faker.Price(150, 600), faker.Bool())
		}
		if err != nil {
			log.Printf("settle appointment %s failed: %v", id, err)
		}
	}
}
