package model

import "time"

// User is the canonical patient record as returned by the identity service.
// The client never mutates it; a fresh copy arrives on every session check.
type User struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Role      string `json:"role"`
}

type Doctor struct {
	ID         string `json:"id"`
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Department string `json:"department"`
}

// appointment statuses as the backend spells them
const (
	StatusPending   = "Pending"
	StatusConfirmed = "Confirmed"
	StatusCanceled  = "Canceled"
)

type Appointment struct {
	ID              string    `json:"id"`
	Department      string    `json:"department"`
	Doctor          Doctor    `json:"doctor"`
	AppointmentDate time.Time `json:"appointmentDate"`
	Status          string    `json:"status"`
	HasVisited      bool      `json:"hasVisited"`
	OwnerUserID     string    `json:"ownerUserId"`
}
