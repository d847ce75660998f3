package main

import (
	"context"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/rs/zerolog"

	"github.com/Alexcyl0107/clinique/internal/appointment"
	redisclient "github.com/Alexcyl0107/clinique/internal/redis"
)

func TestSeedOneCoversLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := appointment.NewMemoryRepository()
	svc := appointment.NewService(repo, redisclient.NewLocalAppointmentLocker(time.Second), appointment.DefaultCatalog(), zerolog.Nop())
	faker := gofakeit.New(7)

	for i := 0; i < 200; i++ {
		if err := seedOne(ctx, svc, faker); err != nil {
			t.Fatalf("seed %d: %v", i, err)
		}
	}

	list, err := repo.ListAppointments(ctx, appointment.ListFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 200 {
		t.Fatalf("expected 200 appointments, got %d", len(list))
	}

	seen := make(map[appointment.AppointmentStatus]int)
	for _, a := range list {
		seen[a.Status]++
		if a.Status == appointment.StatusScheduled && !a.IsAcknowledged {
			t.Fatalf("scheduled appointment %s is not acknowledged", a.ID)
		}
	}
	for _, st := range appointment.AllStatuses {
		if seen[st] == 0 {
			t.Fatalf("no seeded appointment in %s: %v", st, seen)
		}
	}
}
