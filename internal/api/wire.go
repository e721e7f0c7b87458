package api

import (
	"time"

	"medicore-client/internal/model"
)

// The backend still speaks its Mongo-era dialect: `_id` for identifiers,
// `appointment_date` alongside `appointmentDate` depending on the handler
// that wrote the record, and doctor names flattened into the appointment.
// Everything is normalized here so nothing past this package sees it.

type wireUser struct {
	ID        string `json:"_id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Role      string `json:"role"`
}

func (w wireUser) toModel() model.User {
	return model.User{
		ID:        w.ID,
		FirstName: w.FirstName,
		LastName:  w.LastName,
		Email:     w.Email,
		Phone:     w.Phone,
		Role:      w.Role,
	}
}

type wireDoctor struct {
	ID         string `json:"_id"`
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Department string `json:"doctorDepartment"`
}

func (w wireDoctor) toModel() model.Doctor {
	return model.Doctor{
		ID:         w.ID,
		FirstName:  w.FirstName,
		LastName:   w.LastName,
		Department: w.Department,
	}
}

type wireAppointment struct {
	ID              string `json:"_id"`
	Department      string `json:"department"`
	DoctorFirstName string `json:"doctor_firstName"`
	DoctorLastName  string `json:"doctor_lastName"`
	Doctor          struct {
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
	} `json:"doctor"`
	DateSnake  string `json:"appointment_date"`
	DateCamel  string `json:"appointmentDate"`
	Status     string `json:"status"`
	HasVisited bool   `json:"hasVisited"`
	PatientID  string `json:"patientId"`
}

func (w wireAppointment) toModel() model.Appointment {
	a := model.Appointment{
		ID:          w.ID,
		Department:  w.Department,
		Status:      w.Status,
		HasVisited:  w.HasVisited,
		OwnerUserID: w.PatientID,
	}

	a.Doctor.FirstName = w.Doctor.FirstName
	a.Doctor.LastName = w.Doctor.LastName
	if a.Doctor.FirstName == "" {
		a.Doctor.FirstName = w.DoctorFirstName
		a.Doctor.LastName = w.DoctorLastName
	}

	// the backend omits status on older records
	if a.Status == "" {
		a.Status = model.StatusPending
	}

	raw := w.DateSnake
	if raw == "" {
		raw = w.DateCamel
	}
	a.AppointmentDate = parseWireDate(raw)
	return a
}

var wireDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05.000Z07:00",
	"2006-01-02",
}

func parseWireDate(raw string) time.Time {
	for _, layout := range wireDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}
