package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/Alexcyl0107/clinique/internal/appointment"
)

// Lister is the read side of the lifecycle service.
type Lister interface {
	ListAppointments(ctx context.Context, actor appointment.Actor, filter appointment.ListFilter) ([]appointment.Appointment, error)
}

// Coordinator serves the stats snapshot. It holds no alarm state of its own.
type Coordinator struct {
	lister Lister
	now    func() time.Time
}

func NewCoordinator(lister Lister) *Coordinator {
	return &Coordinator{lister: lister, now: time.Now}
}

// Snapshot recomputes the stats from the current appointment set. Only staff
// may see the alarm.
func (c *Coordinator) Snapshot(ctx context.Context, actor appointment.Actor) (Stats, error) {
	if !actor.Has(appointment.CapabilityStaff) {
		return Stats{}, fmt.Errorf("%w: stats require staff capability", appointment.ErrForbidden)
	}

	list, err := c.lister.ListAppointments(ctx, actor, appointment.ListFilter{})
	if err != nil {
		return Stats{}, fmt.Errorf("load appointments for stats: %w", err)
	}

	return Summarize(list, c.now().UTC()), nil
}
