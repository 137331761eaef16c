package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"localservices/internal/export"
	"localservices/internal/models"
	"localservices/internal/service"
)

type singleBookingRequest struct {
	ListingID       string    `json:"listing_id"`
	CustomerID      string    `json:"customer_id"`
	CustomerName    string    `json:"customer_name"`
	Start           time.Time `json:"start"`
	DurationMinutes int       `json:"duration_minutes"`
	PriceQuote      float64   `json:"price_quote"`
	Currency        string    `json:"currency"`
	Notes           string    `json:"notes"`
}

type broadcastBookingRequest struct {
	Category        string    `json:"category"`
	City            string    `json:"city"`
	ResourceName    string    `json:"resource_name"`
	CustomerID      string    `json:"customer_id"`
	CustomerName    string    `json:"customer_name"`
	Start           time.Time `json:"start"`
	DurationMinutes int       `json:"duration_minutes"`
	PriceQuote      float64   `json:"price_quote"`
	Currency        string    `json:"currency"`
	Notes           string    `json:"notes"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type availabilityRequest struct {
	Available *bool `json:"available"`
}

type availabilityResponse struct {
	ProviderID string `json:"provider_id"`
	Available  bool   `json:"available"`
}

type groupResponse struct {
	GroupID  string            `json:"group_id"`
	View     models.GroupView  `json:"view"`
	Bookings []*models.Booking `json:"bookings"`
}

type cancelGroupResponse struct {
	*service.CancelGroupResult
	Error string `json:"error,omitempty"`
}

func decodeJSON(r *http.Request, v any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// requestActor writes the error response itself and reports false on failure.
func requestActor(w http.ResponseWriter, r *http.Request) (models.Actor, bool) {
	actor, err := actorFromRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_identity", err.Error())
		return models.Actor{}, false
	}
	return actor, true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_id", "booking id must be a positive integer")
		return 0, false
	}
	return id, true
}

// allowSubject lets admins and the subject itself read a per-party list.
func allowSubject(actor models.Actor, role, id string) error {
	if actor.Role == models.RoleAdmin {
		return nil
	}
	if actor.Role == role && actor.ID != "" && actor.ID == id {
		return nil
	}
	return fmt.Errorf("%w: %s may not read bookings of %s", service.ErrForbidden, actor.ID, id)
}

func (s *HTTPServer) handleCreateSingle(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestActor(w, r)
	if !ok {
		return
	}

	var body singleBookingRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	if strings.TrimSpace(body.ListingID) == "" {
		writeError(w, http.StatusBadRequest, "invalid_body", "listing_id is required")
		return
	}

	booking, err := s.svc.CreateSingle(r.Context(), actor, service.SingleRequest{
		ListingID:    strings.TrimSpace(body.ListingID),
		CustomerID:   body.CustomerID,
		CustomerName: body.CustomerName,
		Start:        body.Start,
		Duration:     time.Duration(body.DurationMinutes) * time.Minute,
		PriceQuote:   body.PriceQuote,
		Currency:     body.Currency,
		Notes:        body.Notes,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

func (s *HTTPServer) handleCreateBroadcast(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestActor(w, r)
	if !ok {
		return
	}

	var body broadcastBookingRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	result, err := s.svc.CreateBroadcast(r.Context(), actor, service.BroadcastRequest{
		Category:     body.Category,
		City:         body.City,
		ResourceName: body.ResourceName,
		CustomerID:   body.CustomerID,
		CustomerName: body.CustomerName,
		Start:        body.Start,
		Duration:     time.Duration(body.DurationMinutes) * time.Minute,
		PriceQuote:   body.PriceQuote,
		Currency:     body.Currency,
		Notes:        body.Notes,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestActor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	booking, err := s.svc.GetBooking(r.Context(), actor, id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleChangeStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestActor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var body statusRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	booking, err := s.svc.ChangeStatus(r.Context(), actor, id, strings.ToLower(strings.TrimSpace(body.Status)))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestActor(w, r)
	if !ok {
		return
	}
	groupID := r.PathValue("groupId")

	bookings, err := s.svc.ListGroup(r.Context(), actor, groupID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, groupResponse{
		GroupID:  groupID,
		View:     service.ProjectGroups(bookings)[0],
		Bookings: bookings,
	})
}

// handleCancelGroup answers 207 when some siblings could not be cancelled.
func (s *HTTPServer) handleCancelGroup(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestActor(w, r)
	if !ok {
		return
	}

	result, err := s.svc.CancelGroup(r.Context(), actor, r.PathValue("groupId"))
	if err != nil && result == nil {
		s.writeServiceError(w, r, err)
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Str("group_id", result.GroupID).Msg("group cancellation incomplete")
		writeJSON(w, http.StatusMultiStatus, cancelGroupResponse{CancelGroupResult: result, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, cancelGroupResponse{CancelGroupResult: result})
}

func (s *HTTPServer) handleCustomerBookings(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestActor(w, r)
	if !ok {
		return
	}
	customerID := r.PathValue("id")
	if err := allowSubject(actor, models.RoleUser, customerID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	if r.URL.Query().Get("view") == "groups" {
		views, err := s.svc.CustomerGroups(r.Context(), customerID)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"groups": views})
		return
	}

	bookings, err := s.svc.ListForCustomer(r.Context(), customerID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": bookings})
}

func (s *HTTPServer) handleProviderBookings(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestActor(w, r)
	if !ok {
		return
	}
	providerID := r.PathValue("id")
	if err := allowSubject(actor, models.RoleProvider, providerID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	bookings, err := s.svc.ListForProvider(r.Context(), providerID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": bookings})
}

func (s *HTTPServer) handleGetAvailability(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestActor(w, r)
	if !ok {
		return
	}
	providerID := r.PathValue("id")

	available, err := s.svc.ProviderAvailability(r.Context(), actor, providerID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, availabilityResponse{ProviderID: providerID, Available: available})
}

func (s *HTTPServer) handleSetAvailability(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestActor(w, r)
	if !ok {
		return
	}
	providerID := r.PathValue("id")

	var body availabilityRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	if body.Available == nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "available is required")
		return
	}

	if err := s.svc.SetProviderAvailability(r.Context(), actor, providerID, *body.Available); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, availabilityResponse{ProviderID: providerID, Available: *body.Available})
}

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestActor(w, r)
	if !ok {
		return
	}

	from, err := parseTimeParam(r, "from")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_range", err.Error())
		return
	}
	to, err := parseTimeParam(r, "to")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_range", err.Error())
		return
	}
	if !to.After(from) {
		writeError(w, http.StatusBadRequest, "invalid_range", "to must be after from")
		return
	}

	bookings, err := s.svc.ListByStartRange(r.Context(), actor, from, to)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	report := export.Report{From: from, To: to, Bookings: bookings}
	f, err := report.Build()
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.FileName()))
	w.WriteHeader(http.StatusOK)
	if _, err := f.WriteTo(w); err != nil {
		s.logger.Error().Err(err).Msg("write export")
	}
}

// parseTimeParam accepts RFC 3339 timestamps or plain dates in UTC.
func parseTimeParam(r *http.Request, name string) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return time.Time{}, fmt.Errorf("%s is required", name)
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, errors.New("invalid " + name + "; expected RFC3339 or YYYY-MM-DD")
	}
	return t, nil
}
