package model

import "time"

type ResourceType string

const (
	ResourcePersonnel ResourceType = "PERSONNEL"
	ResourceEquipment ResourceType = "EQUIPMENT"
)

type ResourceStatus string

const (
	ResourceAvailable   ResourceStatus = "AVAILABLE"
	ResourceUnavailable ResourceStatus = "UNAVAILABLE"
	ResourceRetired     ResourceStatus = "RETIRED"
)

// Resource is a bookable entity with capacity for exactly one allocation at a
// time. A personnel resource carries PersonnelID; an equipment resource
// carries an equipment profile instead. Never both.
type Resource struct {
	ID          string
	Type        ResourceType
	Status      ResourceStatus
	IsActive    bool
	DisplayName string
	PersonnelID string
	Equipment   *EquipmentProfile
	CreatedAt   time.Time
}

type EquipmentProfile struct {
	Model        string
	SerialNumber string
}

type Service struct {
	ID           string
	Name         string
	CategoryID   string
	Description  string
	DurationMins int
	Price        string
	IsActive     bool
	CreatedAt    time.Time
}

// ResourceRequirement is one (type, quantity) demand of a service. Order is
// the declaration order on the service, significant only for deterministic
// allocation.
type ResourceRequirement struct {
	ResourceType ResourceType
	Quantity     int
}

type Appointment struct {
	ID           string
	ClientID     string
	ClientEmail  string
	ServiceID    string
	StartTime    time.Time
	EndTime      time.Time
	Status       AppointmentStatus
	Notes        string
	CancelReason string
	CancelledAt  *time.Time
	CreatedAt    time.Time
}

// Allocation is a committed exclusive claim binding one resource to one
// appointment for a half-open interval [StartTime, EndTime). The interval is
// copied from the appointment at creation and never re-derived.
type Allocation struct {
	ID            string
	AppointmentID string
	ResourceID    string
	StartTime     time.Time
	EndTime       time.Time
}
