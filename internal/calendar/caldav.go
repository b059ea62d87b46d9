package calendar

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/emersion/go-webdav/caldav"
)

// CalDAVCalendar writes events to a CalDAV server.
type CalDAVCalendar struct {
	url      string
	username string
	password string

	once    sync.Once
	http    *http.Client
	client  *caldav.Client
	homeSet string
	initErr error
}

// NewCalDAVCalendar creates a new CalDAV collaborator.
func NewCalDAVCalendar(url, username, password string) *CalDAVCalendar {
	return &CalDAVCalendar{
		url:      url,
		username: username,
		password: password,
	}
}

// iCloudCalDAVURL is the base URL for iCloud CalDAV.
const iCloudCalDAVURL = "https://caldav.icloud.com"

// NewICloudCalendar creates a collaborator for iCloud.
// iCloud uses CalDAV with a specific server URL.
func NewICloudCalendar(username, password string) *CalDAVCalendar {
	return NewCalDAVCalendar(iCloudCalDAVURL, username, password)
}

// connect creates the client and locates the calendar home set.
func (s *CalDAVCalendar) connect(ctx context.Context) error {
	s.once.Do(func() {
		httpClient := &http.Client{
			Timeout: 60 * time.Second,
			Transport: &basicAuthTransport{
				username: s.username,
				password: s.password,
				base:     http.DefaultTransport,
			},
		}

		client, err := caldav.NewClient(httpClient, s.url)
		if err != nil {
			s.initErr = fmt.Errorf("create caldav client: %w", err)
			return
		}

		principal, err := client.FindCurrentUserPrincipal(ctx)
		if err != nil {
			s.initErr = fmt.Errorf("find principal: %w", err)
			return
		}

		homeSet, err := client.FindCalendarHomeSet(ctx, principal)
		if err != nil {
			s.initErr = fmt.Errorf("find calendar home: %w", err)
			return
		}

		s.http = httpClient
		s.client = client
		s.homeSet = homeSet
	})
	return s.initErr
}

// EnsureCalendar returns the path of the calendar named name, creating it
// under the home set if needed. loc is not used; CalDAV events carry
// their own TZID.
func (s *CalDAVCalendar) EnsureCalendar(ctx context.Context, name string, loc *time.Location) (string, error) {
	if err := s.connect(ctx); err != nil {
		return "", err
	}

	cals, err := s.client.FindCalendars(ctx, s.homeSet)
	if err != nil {
		return "", fmt.Errorf("find calendars: %w", err)
	}

	collection := collectionName(name)
	for _, cal := range cals {
		// Servers that drop the display name still keep the collection we created.
		if cal.Name == name || (cal.Name == "" && path.Base(cal.Path) == collection) {
			slog.Info("calendar already exists", "name", name, "path", cal.Path)
			return cal.Path, nil
		}
	}

	calPath := path.Join(s.homeSet, collection) + "/"
	if err := s.createCalendar(ctx, calPath, name); err != nil {
		return "", fmt.Errorf("create calendar %q: %w", name, err)
	}

	slog.Info("created calendar", "name", name, "path", calPath, "timezone", loc.String())
	return calPath, nil
}

// createCalendar creates a calendar collection at calPath with the given
// display name. MKCALENDAR (RFC 4791) is tried first; servers that only
// accept extended MKCOL (RFC 5689) get that instead.
func (s *CalDAVCalendar) createCalendar(ctx context.Context, calPath, name string) error {
	props := calendarProps{DisplayName: name}

	status, err := s.send(ctx, "MKCALENDAR", calPath, mkcalendarRequest{Set: propSet{Prop: props}})
	if status != http.StatusMethodNotAllowed && status != http.StatusNotImplemented {
		return err
	}

	slog.Debug("MKCALENDAR not supported, using extended MKCOL", "path", calPath, "status", status)
	props.ResourceType = &calendarResourceType{}
	_, err = s.send(ctx, "MKCOL", calPath, mkcolRequest{Set: propSet{Prop: props}})
	return err
}

// send issues a WebDAV request with an XML body and returns the response
// status. Any non-2xx status is also returned as an error.
func (s *CalDAVCalendar) send(ctx context.Context, method, p string, body any) (int, error) {
	data, err := xml.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("encode %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.resolve(p), bytes.NewReader(append([]byte(xml.Header), data...)))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", `application/xml; charset="utf-8"`)

	resp, err := s.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if text := strings.TrimSpace(string(msg)); text != "" {
			return resp.StatusCode, fmt.Errorf("%s %s: %s: %s", method, p, resp.Status, text)
		}
		return resp.StatusCode, fmt.Errorf("%s %s: %s", method, p, resp.Status)
	}
	return resp.StatusCode, nil
}

type mkcalendarRequest struct {
	XMLName xml.Name `xml:"urn:ietf:params:xml:ns:caldav mkcalendar"`
	Set     propSet  `xml:"DAV: set"`
}

type mkcolRequest struct {
	XMLName xml.Name `xml:"DAV: mkcol"`
	Set     propSet  `xml:"DAV: set"`
}

type propSet struct {
	Prop calendarProps `xml:"DAV: prop"`
}

type calendarProps struct {
	ResourceType *calendarResourceType `xml:"DAV: resourcetype,omitempty"`
	DisplayName  string                `xml:"DAV: displayname"`
}

// calendarResourceType marks a new collection as a calendar.
type calendarResourceType struct {
	Collection struct{} `xml:"DAV: collection"`
	Calendar   struct{} `xml:"urn:ietf:params:xml:ns:caldav calendar"`
}

// InsertEvent stores ev as a new calendar object in the calendar at calendarID.
func (s *CalDAVCalendar) InsertEvent(ctx context.Context, calendarID string, ev Event) (EventRef, error) {
	if err := s.connect(ctx); err != nil {
		return EventRef{}, err
	}

	ev.ensureUID()
	cal := newVCalendar()
	addEvent(cal, ev)

	objPath := path.Join(calendarID, objectName(ev.UID))
	obj, err := s.client.PutCalendarObject(ctx, objPath, cal)
	if err != nil {
		return EventRef{}, fmt.Errorf("put calendar object: %w", err)
	}

	return EventRef{ID: ev.UID, URL: s.resolve(obj.Path)}, nil
}

// resolve returns p as an absolute URL on the server.
func (s *CalDAVCalendar) resolve(p string) string {
	base, err := url.Parse(s.url)
	if err != nil {
		return p
	}
	return base.ResolveReference(&url.URL{Path: p}).String()
}

// collectionName turns a display name into a path segment.
func collectionName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_':
			b.WriteRune('-')
		}
	}
	if b.Len() == 0 {
		return "sleeptrack"
	}
	return b.String()
}

// objectName returns the resource name for an event UID.
func objectName(uid string) string {
	return url.PathEscape(uid) + ".ics"
}

// basicAuthTransport adds basic auth to HTTP requests.
type basicAuthTransport struct {
	username string
	password string
	base     http.RoundTripper
}

func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.SetBasicAuth(t.username, t.password)
	return t.base.RoundTrip(req)
}

// Ensure CalDAVCalendar implements Collaborator interface.
var _ Collaborator = (*CalDAVCalendar)(nil)
