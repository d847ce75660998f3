package main

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/rs/zerolog"

	"github.com/Alexcyl0107/clinique/internal/appointment"
	"github.com/Alexcyl0107/clinique/internal/config"
	"github.com/Alexcyl0107/clinique/internal/logging"
	redisclient "github.com/Alexcyl0107/clinique/internal/redis"
	"github.com/Alexcyl0107/clinique/internal/store"
)

var (
	seedAdmin  = appointment.Actor{ID: "seed-admin", Role: appointment.RoleAdmin}
	seedNurse  = appointment.Actor{ID: "seed-pharmacist", Role: appointment.RolePharmacist}
	seedDoctor = []appointment.Actor{
		{ID: "doc-diop", Role: appointment.RoleDoctor},
		{ID: "doc-ba", Role: appointment.RoleDoctor},
		{ID: "doc-fall", Role: appointment.RoleDoctor},
	}
)

func main() {
	bootLogger := logging.New(os.Getenv("APP_ENV"), "seed")
	cfg, err := config.Load()
	if err != nil {
		bootLogger.Fatal().Err(err).Msg("config load error")
	}
	logger := logging.New(cfg.Env, "seed")

	count := 200
	if v := os.Getenv("SEED_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			count = n
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	repo, closeStore, err := store.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("store open error")
	}
	defer closeStore()

	// seeding is single-process, an in-process lock is enough
	svc := appointment.NewService(repo, redisclient.NewLocalAppointmentLocker(cfg.LockWait), appointment.DefaultCatalog(), zerolog.Nop())

	faker := gofakeit.New(0)
	logger.Info().Int("count", count).Str("store", cfg.StoreDriver).Msg("seeding appointments")

	created := 0
	for i := 0; i < count; i++ {
		if err := seedOne(ctx, svc, faker); err != nil {
			logger.Error().Err(err).Int("index", i).Msg("seed appointment failed")
			continue
		}
		created++
	}

	logger.Info().Int("created", created).Msg("seed complete")
}

// seedOne books one appointment and walks it a random distance down the lifecycle.
func seedOne(ctx context.Context, svc *appointment.Service, f *gofakeit.Faker) error {
	services := svc.Catalog().All()
	service := services[f.Number(0, len(services)-1)]

	patient := appointment.Actor{ID: "pat-" + f.DigitN(6), Role: appointment.RolePatient}
	booker := patient
	if f.Number(0, 3) == 0 {
		booker = appointment.Actor{}
	}

	visit := appointment.VisitInPerson
	if f.Number(0, 4) == 0 {
		visit = appointment.VisitVideo
	}

	appt, err := svc.CreateAppointment(ctx, booker, appointment.CreateRequest{
		PatientName:  f.Name(),
		PatientPhone: f.Phone(),
		PatientEmail: f.Email(),
		Symptoms:     f.Sentence(8),
		Service:      service.ID,
		Type:         visit,
	})
	if err != nil {
		return err
	}

	doctor := seedDoctor[f.Number(0, len(seedDoctor)-1)]
	if appt.IsEmergency && f.Bool() {
		if _, err := svc.AcknowledgeAppointment(ctx, doctor, appt.ID); err != nil {
			return err
		}
	}

	// 0: stays with the doctor, 1: planned, 2: scheduled, 3: completed, 4: cancelled
	switch stage := f.Number(0, 4); {
	case stage == 4:
		_, err = svc.CancelAppointment(ctx, seedAdmin, appt.ID)
		return err
	case stage >= 1:
		day := time.Now().AddDate(0, 0, f.Number(1, 30))
		slot := appointment.PlanRequest{
			Date: day.Format("2006-01-02"),
			Time: time.Date(0, 1, 1, f.Number(8, 17), 15*f.Number(0, 3), 0, 0, time.UTC).Format("15:04"),
		}
		if _, err := svc.PlanAppointment(ctx, doctor, appt.ID, slot); err != nil {
			return err
		}
		if stage >= 2 {
			if _, err := svc.ValidateAppointment(ctx, seedAdmin, appt.ID); err != nil {
				return err
			}
		}
		if stage >= 3 {
			if _, err := svc.CompleteAppointment(ctx, seedNurse, appt.ID); err != nil {
				return err
			}
		}
	}
	return nil
}
