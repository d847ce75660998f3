package appointment

import "strings"

// UrgencyServiceID is the service whose bookings raise the staff alarm.
const UrgencyServiceID = "s6"

type MedicalService struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	IconName    string `json:"iconName"`
	Price       int    `json:"price"`
}

func (m MedicalService) IsUrgency() bool {
	return m.ID == UrgencyServiceID
}

type Catalog struct {
	services []MedicalService
}

func NewCatalog(services []MedicalService) *Catalog {
	return &Catalog{services: append([]MedicalService(nil), services...)}
}

func DefaultCatalog() *Catalog {
	return NewCatalog([]MedicalService{
		{ID: "s1", Title: "Consultation Générale", Description: "Suivi complet pour toute la famille.", IconName: "Stethoscope", Price: 5000},
		{ID: "s2", Title: "Pédiatrie", Description: "Soins adaptés aux nourrissons et enfants.", IconName: "Baby", Price: 7000},
		{ID: "s3", Title: "Cardiologie", Description: "Suivi cardiaque et tension.", IconName: "Heart", Price: 10000},
		{ID: "s4", Title: "Analyses Labo", Description: "Prises de sang et résultats rapides.", IconName: "Microscope", Price: 3000},
		{ID: UrgencyServiceID, Title: "Urgence", Description: "Prise en charge prioritaire 24/7.", IconName: "Ambulance", Price: 15000},
	})
}

// Resolve finds a service by id, or by title ignoring case.
func (c *Catalog) Resolve(ref string) (MedicalService, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return MedicalService{}, false
	}
	for _, s := range c.services {
		if s.ID == ref {
			return s, true
		}
	}
	for _, s := range c.services {
		if strings.EqualFold(s.Title, ref) {
			return s, true
		}
	}
	return MedicalService{}, false
}

func (c *Catalog) All() []MedicalService {
	return append([]MedicalService(nil), c.services...)
}
