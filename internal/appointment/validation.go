package appointment

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

func (r CreateRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Symptoms, validation.Required.Error("symptoms are required"), validation.Length(1, 2000)),
		validation.Field(&r.PatientPhone, validation.Required.Error("a contact phone is required"), validation.Length(4, 32)),
		validation.Field(&r.PatientEmail, is.EmailFormat),
		validation.Field(&r.PatientName, validation.Length(0, 200)),
		validation.Field(&r.Service, validation.Required.Error("a service is required")),
		validation.Field(&r.Type, validation.In(VisitInPerson, VisitVideo)),
	)
}

// Validate requires both halves of the slot; a date without a time is rejected.
func (p PlanRequest) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Date, validation.Required.Error("date is required"), validation.Date(dateLayout).Error("date must be YYYY-MM-DD")),
		validation.Field(&p.Time, validation.Required.Error("time is required"), validation.Date(timeLayout).Error("time must be HH:MM")),
	)
}

func (f ListFilter) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.Status, validation.In(
			StatusPendingDoctor, StatusPendingAdmin, StatusScheduled, StatusCompleted, StatusCancelled,
		).Error("unknown status")),
	)
}
