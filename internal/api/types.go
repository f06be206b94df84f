package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/viewinghub/booking/internal/booking"
)

type CreateBookingRequest struct {
	CustomerID string `json:"customer_id"`
	PropertyID string `json:"property_id"`
	Date       string `json:"date"` // YYYY-MM-DD
	Time       string `json:"time"` // HH:MM:SS
	Notes      string `json:"notes,omitempty"`
}

type StatusChangeRequest struct {
	Status string `json:"status"`
}

type BlockSlotRequest struct {
	Date   string `json:"date"`
	Time   string `json:"time"`
	Reason string `json:"reason,omitempty"`
}

type BookingResponse struct {
	ID            uuid.UUID  `json:"id"`
	PropertyID    uuid.UUID  `json:"property_id"`
	Date          string     `json:"date"`
	Time          string     `json:"time"`
	CustomerID    uuid.UUID  `json:"customer_id"`
	AgentID       *uuid.UUID `json:"agent_id,omitempty"`
	Status        string     `json:"status"`
	QueuePosition *int       `json:"queue_position,omitempty"`
	Notes         string     `json:"notes,omitempty"`
	BookedAt      time.Time  `json:"booked_at"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

func toBookingResponse(a *booking.Appointment) BookingResponse {
	return BookingResponse{
		ID:            a.ID,
		PropertyID:    a.Slot.PropertyID,
		Date:          a.Slot.Date,
		Time:          a.Slot.Time,
		CustomerID:    a.CustomerID,
		AgentID:       a.AgentID,
		Status:        string(a.Status),
		QueuePosition: a.QueuePosition,
		Notes:         a.Notes,
		BookedAt:      a.BookedAt,
		ExpiresAt:     a.ExpiresAt,
	}
}

type PropertySummary struct {
	ID      uuid.UUID `json:"id"`
	Title   string    `json:"title"`
	Address string    `json:"address"`
	Status  string    `json:"status"`
}

type PersonSummary struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// BookingDetailResponse is a booking hydrated with its related entities.
type BookingDetailResponse struct {
	BookingResponse
	Property *PropertySummary `json:"property,omitempty"`
	Customer *PersonSummary   `json:"customer,omitempty"`
	Agent    *PersonSummary   `json:"agent,omitempty"`
}

func toBookingDetailResponse(d *booking.AppointmentDetail) BookingDetailResponse {
	resp := BookingDetailResponse{BookingResponse: toBookingResponse(&d.Appointment)}
	if d.Property != nil {
		resp.Property = &PropertySummary{
			ID:      d.Property.ID,
			Title:   d.Property.Title,
			Address: d.Property.Address,
			Status:  string(d.Property.Status),
		}
	}
	if d.Customer != nil {
		resp.Customer = &PersonSummary{ID: d.Customer.ID, Name: d.Customer.Name}
	}
	if d.Agent != nil {
		resp.Agent = &PersonSummary{ID: d.Agent.ID, Name: d.Agent.Name}
	}
	return resp
}

type StatusChangeResponse struct {
	Booking  BookingResponse  `json:"booking"`
	Promoted *BookingResponse `json:"promoted,omitempty"`
}

type AvailableSlotsResponse struct {
	PropertyID uuid.UUID `json:"property_id"`
	Date       string    `json:"date"`
	Available  []string  `json:"available"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
