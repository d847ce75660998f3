package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// appointmentRow is the gorm mapping of the appointments table.
type appointmentRow struct {
	ID             string            `gorm:"type:varchar(64);primaryKey"`
	PatientID      *string           `gorm:"type:varchar(64);index"`
	PatientName    string            `gorm:"type:text;not null;default:''"`
	PatientPhone   string            `gorm:"type:varchar(32);not null"`
	PatientEmail   *string           `gorm:"type:text"`
	Symptoms       string            `gorm:"type:text;not null"`
	DoctorID       *string           `gorm:"type:varchar(64);index"`
	ServiceID      string            `gorm:"type:varchar(32);not null"`
	ServiceName    string            `gorm:"type:text;not null;default:''"`
	VisitType      VisitType         `gorm:"type:varchar(16);not null;default:'IN_PERSON'"`
	VisitDate      *string           `gorm:"type:varchar(10)"`
	VisitTime      *string           `gorm:"type:varchar(5)"`
	Status         AppointmentStatus `gorm:"type:varchar(32);not null;index"`
	IsEmergency    bool              `gorm:"not null;default:false"`
	IsAcknowledged bool              `gorm:"not null;default:false"`
	CreatedAt      time.Time         `gorm:"not null;index"`
	UpdatedAt      time.Time         `gorm:"not null"`
}

func (appointmentRow) TableName() string {
	return "appointments"
}

func toRow(a *Appointment) appointmentRow {
	return appointmentRow{
		ID:             a.ID,
		PatientID:      nullable(a.PatientID),
		PatientName:    a.PatientName,
		PatientPhone:   a.PatientPhone,
		PatientEmail:   nullable(a.PatientEmail),
		Symptoms:       a.Symptoms,
		DoctorID:       nullable(a.DoctorID),
		ServiceID:      a.ServiceID,
		ServiceName:    a.ServiceName,
		VisitType:      a.Type,
		VisitDate:      nullable(a.Date),
		VisitTime:      nullable(a.Time),
		Status:         a.Status,
		IsEmergency:    a.IsEmergency,
		IsAcknowledged: a.IsAcknowledged,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}

func (r appointmentRow) toAppointment() Appointment {
	return Appointment{
		ID:             r.ID,
		PatientID:      deref(r.PatientID),
		PatientName:    r.PatientName,
		PatientPhone:   r.PatientPhone,
		PatientEmail:   deref(r.PatientEmail),
		Symptoms:       r.Symptoms,
		DoctorID:       deref(r.DoctorID),
		ServiceID:      r.ServiceID,
		ServiceName:    r.ServiceName,
		Type:           r.VisitType,
		Date:           deref(r.VisitDate),
		Time:           deref(r.VisitTime),
		Status:         r.Status,
		IsEmergency:    r.IsEmergency,
		IsAcknowledged: r.IsAcknowledged,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

// GormRepository stores appointments through gorm, used with the SQLite file store.
type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

// Migrate creates or updates the appointments table.
func (r *GormRepository) Migrate() error {
	if err := r.db.AutoMigrate(&appointmentRow{}); err != nil {
		return fmt.Errorf("auto migrate appointments: %w", err)
	}
	return nil
}

func (r *GormRepository) CreateAppointment(ctx context.Context, a *Appointment) (*Appointment, error) {
	row := toRow(a)
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, fmt.Errorf("insert appointment: %w", err)
	}
	out := row.toAppointment()
	return &out, nil
}

func (r *GormRepository) GetAppointmentByID(ctx context.Context, id string) (*Appointment, error) {
	var row appointmentRow
	err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	out := row.toAppointment()
	return &out, nil
}

func (r *GormRepository) ListAppointments(ctx context.Context, filter ListFilter) ([]Appointment, error) {
	q := r.db.WithContext(ctx).Model(&appointmentRow{})
	if filter.PatientID != "" {
		q = q.Where("patient_id = ?", filter.PatientID)
	}
	if filter.DoctorID != "" {
		q = q.Where("doctor_id = ?", filter.DoctorID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}

	var rows []appointmentRow
	if err := q.Order("created_at DESC").Order("id DESC").Find(&rows).Error; err != nil {
		return nil, err
	}

	result := make([]Appointment, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toAppointment())
	}
	return result, nil
}

func (r *GormRepository) UpdateAppointment(ctx context.Context, next *Appointment, expected AppointmentStatus) (*Appointment, error) {
	res := r.db.WithContext(ctx).
		Model(&appointmentRow{}).
		Where("id = ? AND status = ?", next.ID, expected).
		Updates(map[string]any{
			"status":          next.Status,
			"doctor_id":       nullable(next.DoctorID),
			"visit_date":      nullable(next.Date),
			"visit_time":      nullable(next.Time),
			"is_acknowledged": gorm.Expr("is_acknowledged OR ?", next.IsAcknowledged),
			"updated_at":      next.UpdatedAt,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("update appointment: %w", res.Error)
	}

	if res.RowsAffected == 0 {
		if _, err := r.GetAppointmentByID(ctx, next.ID); err != nil {
			return nil, err
		}
		return nil, ErrStatusChanged
	}

	return r.GetAppointmentByID(ctx, next.ID)
}

func (r *GormRepository) DeleteAppointment(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Delete(&appointmentRow{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("delete appointment: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *GormRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
