package appointment

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepository keeps appointments in process memory. Nothing survives a restart.
// Listing order matches the SQL stores: created_at DESC, then id DESC.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[string]Appointment
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		records: make(map[string]Appointment),
	}
}

func (r *MemoryRepository) CreateAppointment(_ context.Context, a *Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records[a.ID] = *a

	out := *a
	return &out, nil
}

func (r *MemoryRepository) GetAppointmentByID(_ context.Context, id string) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.records[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (r *MemoryRepository) ListAppointments(_ context.Context, filter ListFilter) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Appointment, 0, len(r.records))
	for _, a := range r.records {
		if filter.matches(a) {
			result = append(result, a)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	return result, nil
}

func (r *MemoryRepository) UpdateAppointment(_ context.Context, next *Appointment, expected AppointmentStatus) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.records[next.ID]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if cur.Status != expected {
		return nil, ErrStatusChanged
	}

	mergeMutable(&cur, next)
	r.records[cur.ID] = cur

	return &cur, nil
}

func (r *MemoryRepository) DeleteAppointment(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[id]; !ok {
		return ErrAppointmentNotFound
	}
	delete(r.records, id)
	return nil
}

func (r *MemoryRepository) Ping(context.Context) error {
	return nil
}
