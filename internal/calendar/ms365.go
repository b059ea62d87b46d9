package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cpuguy83/sleeptrack/internal/auth"
)

const (
	// MS Graph API base endpoint
	graphBaseURL = "https://graph.microsoft.com/v1.0"

	// Required scope for creating calendars and events
	calendarWriteScope = "Calendars.ReadWrite"

	// graphDateTimeLayout is the local date-time form Graph expects
	// alongside an explicit timeZone.
	graphDateTimeLayout = "2006-01-02T15:04:05"
)

// tokenProvider can acquire access tokens.
type tokenProvider interface {
	GetToken(ctx context.Context) (*auth.Token, error)
	Close() error
}

// MS365Calendar writes events to a Microsoft 365 calendar via Graph API.
type MS365Calendar struct {
	baseURL  string
	auth     tokenProvider
	client   *http.Client
	initOnce sync.Once
	initErr  error
}

// NewMS365Calendar creates a new MS365 collaborator.
func NewMS365Calendar() *MS365Calendar {
	return &MS365Calendar{
		baseURL: graphBaseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// initAuth initializes the authentication provider.
// Tries broker first, falls back to device code flow.
func (s *MS365Calendar) initAuth(ctx context.Context) error {
	s.initOnce.Do(func() {
		if s.auth != nil {
			return
		}

		scopes := []string{calendarWriteScope}

		// Try broker first
		broker := auth.NewBroker("", scopes)
		if broker.IsAvailable(ctx) {
			slog.Info("using Microsoft Identity Broker for authentication")
			s.auth = broker
			return
		}

		// Fall back to device code flow
		slog.Info("broker not available, using device code flow")
		deviceCode, err := auth.NewDeviceCodeAuth("", scopes)
		if err != nil {
			s.initErr = fmt.Errorf("initialize device code auth: %w", err)
			return
		}
		s.auth = deviceCode
	})
	return s.initErr
}

// Close cleans up resources.
func (s *MS365Calendar) Close() error {
	if s.auth != nil {
		return s.auth.Close()
	}
	return nil
}

// graphCalendar represents a calendar from MS Graph API.
type graphCalendar struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

// graphCalendarsResponse is the MS Graph API response for the calendar list.
type graphCalendarsResponse struct {
	Value    []graphCalendar `json:"value"`
	NextLink string          `json:"@odata.nextLink,omitempty"`
}

// graphEvent represents an event sent to or returned by MS Graph API.
type graphEvent struct {
	ID      string        `json:"id,omitempty"`
	Subject string        `json:"subject"`
	Body    *graphBody    `json:"body,omitempty"`
	Start   graphDateTime `json:"start"`
	End     graphDateTime `json:"end"`
	WebLink string        `json:"webLink,omitempty"`
}

type graphBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type graphDateTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

// EnsureCalendar returns the ID of the calendar named name, creating it if
// needed. Graph calendars have no time zone of their own, so loc is unused.
func (s *MS365Calendar) EnsureCalendar(ctx context.Context, name string, loc *time.Location) (string, error) {
	token, err := s.token(ctx)
	if err != nil {
		return "", err
	}

	params := url.Values{}
	params.Set("$select", "id,name")
	reqURL := s.baseURL + "/me/calendars?" + params.Encode()

	// Handle pagination
	for reqURL != "" {
		var page graphCalendarsResponse
		if err := s.do(ctx, token, http.MethodGet, reqURL, nil, &page); err != nil {
			return "", fmt.Errorf("list calendars: %w", err)
		}
		for _, c := range page.Value {
			if c.Name == name {
				slog.Info("calendar already exists", "name", name, "id", c.ID)
				return c.ID, nil
			}
		}
		reqURL = page.NextLink
	}

	var created graphCalendar
	if err := s.do(ctx, token, http.MethodPost, s.baseURL+"/me/calendars", graphCalendar{Name: name}, &created); err != nil {
		return "", fmt.Errorf("create calendar %q: %w", name, err)
	}

	slog.Info("created calendar", "name", name, "id", created.ID)
	return created.ID, nil
}

// InsertEvent creates ev in the calendar with the given ID.
func (s *MS365Calendar) InsertEvent(ctx context.Context, calendarID string, ev Event) (EventRef, error) {
	token, err := s.token(ctx)
	if err != nil {
		return EventRef{}, err
	}

	body := graphEvent{
		Subject: ev.Summary,
		Start:   toGraphDateTime(ev.Start, ev.TimeZone),
		End:     toGraphDateTime(ev.End, ev.TimeZone),
	}
	if ev.Description != "" {
		body.Body = &graphBody{ContentType: "text", Content: ev.Description}
	}

	reqURL := s.baseURL + "/me/calendars/" + url.PathEscape(calendarID) + "/events"

	var created graphEvent
	if err := s.do(ctx, token, http.MethodPost, reqURL, body, &created); err != nil {
		return EventRef{}, fmt.Errorf("insert event: %w", err)
	}

	return EventRef{ID: created.ID, URL: created.WebLink}, nil
}

// token initializes auth on first use and returns an access token.
func (s *MS365Calendar) token(ctx context.Context) (string, error) {
	if err := s.initAuth(ctx); err != nil {
		return "", err
	}

	token, err := s.auth.GetToken(ctx)
	if err != nil {
		return "", fmt.Errorf("get token: %w", err)
	}
	return token.AccessToken, nil
}

// do sends a Graph request with an optional JSON body and decodes the
// JSON response into out.
func (s *MS365Calendar) do(ctx context.Context, accessToken, method, reqURL string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("graph API error: status %d: %s", resp.StatusCode, string(data))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// toGraphDateTime formats t in the named zone. An empty or unknown zone
// falls back to UTC.
func toGraphDateTime(t time.Time, zone string) graphDateTime {
	if zone == "" || zone == "Local" {
		return graphDateTime{DateTime: t.UTC().Format(graphDateTimeLayout), TimeZone: "UTC"}
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return graphDateTime{DateTime: t.UTC().Format(graphDateTimeLayout), TimeZone: "UTC"}
	}
	return graphDateTime{DateTime: t.In(loc).Format(graphDateTimeLayout), TimeZone: zone}
}

// Ensure MS365Calendar implements Collaborator interface.
var _ Collaborator = (*MS365Calendar)(nil)
