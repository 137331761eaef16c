package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"localservices/internal/models"

	"github.com/redis/go-redis/v9"
)

// BookingClient calls the booking engine HTTP API on behalf of one actor.
type BookingClient struct {
	baseURL    string
	apiKey     string
	apiExtra   string
	actor      models.Actor
	httpClient *http.Client

	redis    *redis.Client
	cacheTTL time.Duration
}

// APIError is a non-2xx answer from the engine.
type APIError struct {
	StatusCode int
	Code       string `json:"error"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("http %d", e.StatusCode)
	}
	return fmt.Sprintf("http %d: %s: %s", e.StatusCode, e.Code, e.Message)
}

// NewBookingClient constructs a client with baseURL, API key and extra header.
func NewBookingClient(baseURL, apiKey, apiExtra string) *BookingClient {
	return &BookingClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		apiExtra:   apiExtra,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// As returns a copy of the client that sends requests as actor.
func (c *BookingClient) As(actor models.Actor) *BookingClient {
	clone := *c
	clone.actor = actor
	return &clone
}

// UseRedisCache caches list responses for ttl. Writes through this client
// drop the cached lists of the caller.
func (c *BookingClient) UseRedisCache(redisClient *redis.Client, ttl time.Duration) {
	c.redis = redisClient
	c.cacheTTL = ttl
}

type SingleBooking struct {
	ListingID       string    `json:"listing_id"`
	CustomerID      string    `json:"customer_id,omitempty"`
	CustomerName    string    `json:"customer_name,omitempty"`
	Start           time.Time `json:"start"`
	DurationMinutes int       `json:"duration_minutes"`
	PriceQuote      float64   `json:"price_quote,omitempty"`
	Currency        string    `json:"currency,omitempty"`
	Notes           string    `json:"notes,omitempty"`
}

type BroadcastBooking struct {
	Category        string    `json:"category"`
	City            string    `json:"city,omitempty"`
	ResourceName    string    `json:"resource_name,omitempty"`
	CustomerID      string    `json:"customer_id,omitempty"`
	CustomerName    string    `json:"customer_name,omitempty"`
	Start           time.Time `json:"start"`
	DurationMinutes int       `json:"duration_minutes"`
	PriceQuote      float64   `json:"price_quote,omitempty"`
	Currency        string    `json:"currency,omitempty"`
	Notes           string    `json:"notes,omitempty"`
}

type BroadcastResult struct {
	GroupID  string            `json:"group_id"`
	Tier     string            `json:"tier"`
	Bookings []*models.Booking `json:"bookings"`
}

type CancelGroupResult struct {
	GroupID   string  `json:"group_id"`
	Cancelled []int64 `json:"cancelled"`
	Skipped   []int64 `json:"skipped"`
	Failed    []int64 `json:"failed,omitempty"`
	Error     string  `json:"error,omitempty"`
}

func (c *BookingClient) CreateBooking(ctx context.Context, req SingleBooking) (*models.Booking, error) {
	var out models.Booking
	if err := c.doPost(ctx, "/api/v1/bookings", req, &out); err != nil {
		return nil, err
	}
	c.invalidate(ctx)
	return &out, nil
}

func (c *BookingClient) Broadcast(ctx context.Context, req BroadcastBooking) (*BroadcastResult, error) {
	var out BroadcastResult
	if err := c.doPost(ctx, "/api/v1/bookings/broadcast", req, &out); err != nil {
		return nil, err
	}
	c.invalidate(ctx)
	return &out, nil
}

func (c *BookingClient) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	var out models.Booking
	if err := c.doGet(ctx, "/api/v1/bookings/"+strconv.FormatInt(id, 10), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *BookingClient) ChangeStatus(ctx context.Context, id int64, status string) (*models.Booking, error) {
	var out models.Booking
	path := fmt.Sprintf("/api/v1/bookings/%d/status", id)
	if err := c.doPost(ctx, path, map[string]string{"status": status}, &out); err != nil {
		return nil, err
	}
	c.invalidate(ctx)
	return &out, nil
}

// CancelGroup returns the partial result together with an error when some
// siblings could not be cancelled.
func (c *BookingClient) CancelGroup(ctx context.Context, groupID string) (*CancelGroupResult, error) {
	var out CancelGroupResult
	path := "/api/v1/groups/" + url.PathEscape(groupID) + "/cancel"
	status, err := c.send(ctx, http.MethodPost, path, nil, &out)
	if err != nil {
		return nil, err
	}
	c.invalidate(ctx)
	if status == http.StatusMultiStatus {
		return &out, fmt.Errorf("group %s partially cancelled: %s", groupID, out.Error)
	}
	return &out, nil
}

type Group struct {
	GroupID  string            `json:"group_id"`
	View     models.GroupView  `json:"view"`
	Bookings []*models.Booking `json:"bookings"`
}

func (c *BookingClient) GetGroup(ctx context.Context, groupID string) (*Group, error) {
	var out Group
	if err := c.doGet(ctx, "/api/v1/groups/"+url.PathEscape(groupID), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type Availability struct {
	ProviderID string `json:"provider_id"`
	Available  bool   `json:"available"`
}

func (c *BookingClient) ProviderAvailability(ctx context.Context, providerID string) (bool, error) {
	var out Availability
	if err := c.doGet(ctx, availabilityPath(providerID), &out); err != nil {
		return false, err
	}
	return out.Available, nil
}

func (c *BookingClient) SetProviderAvailability(ctx context.Context, providerID string, available bool) error {
	_, err := c.send(ctx, http.MethodPut, availabilityPath(providerID), map[string]bool{"available": available}, nil)
	return err
}

func availabilityPath(providerID string) string {
	return "/api/v1/providers/" + url.PathEscape(providerID) + "/availability"
}

func (c *BookingClient) CustomerBookings(ctx context.Context, customerID string) ([]*models.Booking, error) {
	var wrap struct {
		Bookings []*models.Booking `json:"bookings"`
	}
	path := "/api/v1/customers/" + url.PathEscape(customerID) + "/bookings"
	if err := c.cachedGet(ctx, c.cacheKey("customer", customerID), path, &wrap); err != nil {
		return nil, err
	}
	return wrap.Bookings, nil
}

func (c *BookingClient) CustomerGroups(ctx context.Context, customerID string) ([]models.GroupView, error) {
	var wrap struct {
		Groups []models.GroupView `json:"groups"`
	}
	path := "/api/v1/customers/" + url.PathEscape(customerID) + "/bookings?view=groups"
	if err := c.cachedGet(ctx, c.cacheKey("groups", customerID), path, &wrap); err != nil {
		return nil, err
	}
	return wrap.Groups, nil
}

func (c *BookingClient) ProviderBookings(ctx context.Context, providerID string) ([]*models.Booking, error) {
	var wrap struct {
		Bookings []*models.Booking `json:"bookings"`
	}
	path := "/api/v1/providers/" + url.PathEscape(providerID) + "/bookings"
	if err := c.cachedGet(ctx, c.cacheKey("provider", providerID), path, &wrap); err != nil {
		return nil, err
	}
	return wrap.Bookings, nil
}

func (c *BookingClient) cacheKey(kind, id string) string {
	return fmt.Sprintf("bookings:%s:%s:%s", kind, id, c.actor.ID)
}

func (c *BookingClient) cachedGet(ctx context.Context, key, path string, out any) error {
	if c.readCache(ctx, key, out) {
		return nil
	}
	if err := c.doGet(ctx, path, out); err != nil {
		return err
	}
	c.writeCache(ctx, key, out)
	return nil
}

func (c *BookingClient) readCache(ctx context.Context, key string, out any) bool {
	if c.redis == nil || c.cacheTTL <= 0 {
		return false
	}
	val, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		return false
	}
	return json.Unmarshal([]byte(val), out) == nil
}

func (c *BookingClient) writeCache(ctx context.Context, key string, val any) {
	if c.redis == nil || c.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.cacheTTL).Err()
}

func (c *BookingClient) invalidate(ctx context.Context) {
	if c.redis == nil || c.actor.ID == "" {
		return
	}
	keys := []string{
		c.cacheKey("customer", c.actor.ID),
		c.cacheKey("groups", c.actor.ID),
		c.cacheKey("provider", c.actor.ID),
	}
	_ = c.redis.Del(ctx, keys...).Err()
}

func (c *BookingClient) doGet(ctx context.Context, path string, out any) error {
	_, err := c.send(ctx, http.MethodGet, path, nil, out)
	return err
}

func (c *BookingClient) doPost(ctx context.Context, path string, body, out any) error {
	_, err := c.send(ctx, http.MethodPost, path, body, out)
	return err
}

func (c *BookingClient) send(ctx context.Context, method, path string, body, out any) (int, error) {
	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.addHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusMultiStatus {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.NewDecoder(resp.Body).Decode(apiErr)
		return resp.StatusCode, apiErr
	}
	if out == nil {
		return resp.StatusCode, nil
	}
	return resp.StatusCode, json.NewDecoder(resp.Body).Decode(out)
}

func (c *BookingClient) addHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
	if c.apiExtra != "" {
		req.Header.Set("x-api-extra", c.apiExtra)
	}
	if c.actor.ID != "" {
		req.Header.Set("X-User-ID", c.actor.ID)
	}
	if c.actor.Role != "" {
		req.Header.Set("X-User-Role", c.actor.Role)
	}
}
