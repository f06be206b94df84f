package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/viewinghub/booking/internal/booking"
)

// Actor identity comes from headers set by the auth layer in front of this
// service; this core trusts them.
func actorFromRequest(r *http.Request) (uuid.UUID, booking.Role, bool) {
	id, err := uuid.Parse(r.Header.Get("X-Actor-ID"))
	if err != nil {
		return uuid.Nil, "", false
	}
	role := booking.Role(r.Header.Get("X-Actor-Role"))
	if !role.Valid() || role == booking.RoleSystem {
		return uuid.Nil, "", false
	}
	return id, role, true
}

func createBookingHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateBookingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		customerID, err := uuid.Parse(req.CustomerID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_customer_id", "customer_id must be a valid UUID")
			return
		}

		propertyID, err := uuid.Parse(req.PropertyID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_property_id", "property_id must be a valid UUID")
			return
		}

		appt, err := svc.CreateBooking(r.Context(), booking.CreateBookingParams{
			CustomerID: customerID,
			Slot: booking.SlotKey{
				PropertyID: propertyID,
				Date:       req.Date,
				Time:       req.Time,
			},
			Notes: req.Notes,
		})
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toBookingResponse(appt))
	}
}

func statusChangeHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_booking_id", "id must be a valid UUID")
			return
		}

		actorID, role, ok := actorFromRequest(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "invalid_actor", "X-Actor-ID and X-Actor-Role headers are required")
			return
		}

		var req StatusChangeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		result, err := svc.RequestStatusChange(r.Context(), booking.StatusChangeParams{
			AppointmentID: id,
			ActorID:       actorID,
			Role:          role,
			Target:        booking.Status(req.Status),
		})
		if err != nil {
			handleBookingError(w, err)
			return
		}

		resp := StatusChangeResponse{Booking: toBookingResponse(result.Updated)}
		if result.Promoted != nil {
			promoted := toBookingResponse(result.Promoted)
			resp.Promoted = &promoted
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func getBookingHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_booking_id", "id must be a valid UUID")
			return
		}

		detail, err := svc.GetBooking(r.Context(), id)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toBookingDetailResponse(detail))
	}
}

// slotBookingsHandler lists the bookings on one slot in booking order.
func slotBookingsHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		propertyID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_property_id", "id must be a valid UUID")
			return
		}

		key := booking.SlotKey{
			PropertyID: propertyID,
			Date:       r.URL.Query().Get("date"),
			Time:       r.URL.Query().Get("time"),
		}
		appts, err := svc.ListBookingsBySlot(r.Context(), key)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		resp := make([]BookingResponse, 0, len(appts))
		for i := range appts {
			resp = append(resp, toBookingResponse(&appts[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func listBookingsHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		customerID, err := uuid.Parse(r.URL.Query().Get("customer_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_customer_id", "customer_id query parameter must be a valid UUID")
			return
		}

		limit := queryInt(r, "limit", 20)
		offset := queryInt(r, "offset", 0)

		appts, err := svc.ListBookingsByCustomer(r.Context(), customerID, limit, offset)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		resp := make([]BookingResponse, 0, len(appts))
		for i := range appts {
			resp = append(resp, toBookingResponse(&appts[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func availableSlotsHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		propertyID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_property_id", "id must be a valid UUID")
			return
		}

		date := r.URL.Query().Get("date")
		slots, err := svc.AvailableSlots(r.Context(), propertyID, date)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, AvailableSlotsResponse{
			PropertyID: propertyID,
			Date:       date,
			Available:  slots,
		})
	}
}

func blockSlotHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		propertyID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_property_id", "id must be a valid UUID")
			return
		}

		actorID, role, ok := actorFromRequest(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "invalid_actor", "X-Actor-ID and X-Actor-Role headers are required")
			return
		}

		var req BlockSlotRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		key := booking.SlotKey{PropertyID: propertyID, Date: req.Date, Time: req.Time}
		block, err := svc.BlockSlot(r.Context(), key, actorID, role, req.Reason)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, map[string]any{
			"id":          block.ID,
			"property_id": block.Slot.PropertyID,
			"date":        block.Slot.Date,
			"time":        block.Slot.Time,
			"reason":      block.Reason,
		})
	}
}

func unblockSlotHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		propertyID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_property_id", "id must be a valid UUID")
			return
		}

		actorID, role, ok := actorFromRequest(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "invalid_actor", "X-Actor-ID and X-Actor-Role headers are required")
			return
		}

		var req BlockSlotRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		key := booking.SlotKey{PropertyID: propertyID, Date: req.Date, Time: req.Time}
		if err := svc.UnblockSlot(r.Context(), key, actorID, role); err != nil {
			handleBookingError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func queryInt(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func handleBookingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrCustomerNotFound):
		writeError(w, http.StatusNotFound, "customer_not_found", err.Error())
	case errors.Is(err, booking.ErrPropertyNotFound):
		writeError(w, http.StatusNotFound, "property_not_found", err.Error())
	case errors.Is(err, booking.ErrBookingNotFound):
		writeError(w, http.StatusNotFound, "booking_not_found", err.Error())
	case errors.Is(err, booking.ErrSlotNotBlocked):
		writeError(w, http.StatusNotFound, "slot_not_blocked", err.Error())
	case errors.Is(err, booking.ErrPropertyNotBookable):
		writeError(w, http.StatusConflict, "property_not_bookable", err.Error())
	case errors.Is(err, booking.ErrSlotBlocked):
		writeError(w, http.StatusConflict, "slot_blocked", err.Error())
	case errors.Is(err, booking.ErrSlotTaken):
		writeError(w, http.StatusConflict, "slot_taken", err.Error())
	case errors.Is(err, booking.ErrSlotBlockExists):
		writeError(w, http.StatusConflict, "slot_block_exists", err.Error())
	case errors.Is(err, booking.ErrDuplicateActiveBooking):
		writeError(w, http.StatusConflict, "duplicate_active_booking", err.Error())
	case errors.Is(err, booking.ErrInvalidTransition):
		writeError(w, http.StatusForbidden, "invalid_status_transition", err.Error())
	case errors.Is(err, booking.ErrConcurrencyConflict):
		writeError(w, http.StatusConflict, "conflict_retry", "slot is busy, please retry shortly")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
