package ninsaude

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/saraivavision/booking-service/internal/availability"
	"github.com/saraivavision/booking-service/internal/schedule"
)

// Client is a read-only consumer of the practice-management API's booked
// slots. Token acquisition and refresh happen outside this service; the
// bearer token is a precondition supplied by configuration.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New creates a client with an explicit per-call timeout. Timeouts are
// treated by callers the same as "unreachable": fail closed.
func New(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

type bookedSlotsResponse struct {
	Result []struct {
		Date     string `json:"date"`
		SlotTime string `json:"slot_time"`
	} `json:"result"`
}

// BookedSlots fetches the (date, start time) pairs already taken for a
// service between two dates, inclusive.
func (c *Client) BookedSlots(ctx context.Context, serviceID string, from, to time.Time) ([]availability.BookedSlot, error) {
	endpoint := fmt.Sprintf("%s/v1/schedule/booked?%s", c.baseURL, url.Values{
		"service":    {serviceID},
		"start_date": {from.Format(schedule.DateLayout)},
		"end_date":   {to.Format(schedule.DateLayout)},
	}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build booked slots request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch booked slots: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch booked slots: unexpected status %d", resp.StatusCode)
	}

	var body bookedSlotsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode booked slots response: %w", err)
	}

	booked := make([]availability.BookedSlot, 0, len(body.Result))
	for _, r := range body.Result {
		booked = append(booked, availability.BookedSlot{Date: r.Date, StartTime: r.SlotTime})
	}
	return booked, nil
}
