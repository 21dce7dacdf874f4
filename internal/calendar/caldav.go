package calendar

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/google/uuid"
	"google.golang.org/api/calendar/v3"
)

// sharedPropPrefix marks iCalendar properties that carry shared extended properties.
// "discord_id" is stored as X-SHARED-DISCORD-ID.
const sharedPropPrefix = "X-SHARED-"

const calendarQuery = `<?xml version="1.0" encoding="utf-8" ?>
<C:calendar-query xmlns:D="DAV:" xmlns:C="urn:ietf:params:xml:ns:caldav">
  <D:prop>
    <D:getetag/>
    <C:calendar-data/>
  </D:prop>
  <C:filter>
    <C:comp-filter name="VCALENDAR">
      <C:comp-filter name="VEVENT"/>
    </C:comp-filter>
  </C:filter>
</C:calendar-query>`

// CalDAVClient talks to a CalDAV calendar collection (iCloud, Nextcloud, Radicale...).
// The calendarID passed to each method is the collection path, e.g. "/alice/calendars/events/".
// Event IDs are resource names inside that collection.
type CalDAVClient struct {
	httpClient *http.Client
	serverURL  string
	username   string
	password   string
}

// NewCalDAVClient creates a CalDAV client using basic auth.
// A nil httpClient gets a client with a 30 second timeout.
func NewCalDAVClient(serverURL, username, password string, httpClient *http.Client) *CalDAVClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &CalDAVClient{
		httpClient: httpClient,
		serverURL:  strings.TrimSuffix(serverURL, "/"),
		username:   username,
		password:   password,
	}
}

// makeRequest makes an authenticated HTTP request to the CalDAV server.
func (c *CalDAVClient) makeRequest(ctx context.Context, method, resourcePath, contentType string, body io.Reader, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.serverURL+resourcePath, body)
	if err != nil {
		return nil, err
	}

	req.SetBasicAuth(c.username, c.password)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for key, values := range header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	return c.httpClient.Do(req)
}

// ListEvents returns every VEVENT in the collection.
func (c *CalDAVClient) ListEvents(ctx context.Context, calendarID string) ([]*calendar.Event, error) {
	resp, err := c.makeRequest(ctx, "REPORT", calendarID, "application/xml; charset=utf-8",
		strings.NewReader(calendarQuery), http.Header{"Depth": {"1"}})
	if err != nil {
		return nil, fmt.Errorf("failed to query calendar: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusMultiStatus {
		return nil, fmt.Errorf("failed to query calendar: HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	resources, err := parseMultistatus(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse CalDAV response: %w", err)
	}

	var events []*calendar.Event
	for _, res := range resources {
		cal, err := ical.NewDecoder(strings.NewReader(res.data)).Decode()
		if err != nil {
			return nil, fmt.Errorf("failed to parse iCalendar data for %s: %w", res.href, err)
		}

		event, err := eventFromICal(cal)
		if err != nil {
			return nil, fmt.Errorf("failed to convert %s: %w", res.href, err)
		}
		event.Id = path.Base(res.href)
		events = append(events, event)
	}

	return events, nil
}

// InsertEvent stores a new event. The UID is taken from ICalUID, or generated.
func (c *CalDAVClient) InsertEvent(ctx context.Context, calendarID string, event *calendar.Event) (*calendar.Event, error) {
	created := *event
	if created.ICalUID == "" {
		created.ICalUID = uuid.NewString()
	}
	created.Id = created.ICalUID + ".ics"

	// If-None-Match keeps an insert from silently overwriting an existing resource.
	if err := c.put(ctx, calendarID, created.Id, &created, http.Header{"If-None-Match": {"*"}}); err != nil {
		return nil, fmt.Errorf("failed to insert event: %w", err)
	}

	return &created, nil
}

// UpdateEvent overwrites the event stored at eventID.
func (c *CalDAVClient) UpdateEvent(ctx context.Context, calendarID, eventID string, event *calendar.Event) error {
	updated := *event
	if updated.ICalUID == "" {
		updated.ICalUID = strings.TrimSuffix(eventID, ".ics")
	}

	if err := c.put(ctx, calendarID, eventID, &updated, nil); err != nil {
		return fmt.Errorf("failed to update event: %w", err)
	}

	return nil
}

// DeleteEvent deletes the event stored at eventID.
func (c *CalDAVClient) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	resp, err := c.makeRequest(ctx, http.MethodDelete, resourcePath(calendarID, eventID), "", nil, nil)
	if err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to delete event: HTTP %d", resp.StatusCode)
	}

	return nil
}

func (c *CalDAVClient) put(ctx context.Context, calendarID, eventID string, event *calendar.Event, header http.Header) error {
	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(eventToICal(event, time.Now())); err != nil {
		return fmt.Errorf("failed to encode iCalendar: %w", err)
	}

	resp, err := c.makeRequest(ctx, http.MethodPut, resourcePath(calendarID, eventID), "text/calendar; charset=utf-8", &buf, header)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated, http.StatusNoContent, http.StatusOK:
		return nil
	default:
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
}

func resourcePath(calendarID, eventID string) string {
	if !strings.HasSuffix(calendarID, "/") {
		calendarID += "/"
	}
	return calendarID + eventID
}

type davResource struct {
	href string
	data string
}

// parseMultistatus extracts href and calendar-data pairs from a REPORT response.
func parseMultistatus(body []byte) ([]davResource, error) {
	type response struct {
		Href         string `xml:"href"`
		CalendarData string `xml:"propstat>prop>calendar-data"`
	}
	type multistatus struct {
		XMLName   xml.Name   `xml:"multistatus"`
		Responses []response `xml:"response"`
	}

	var ms multistatus
	if err := xml.Unmarshal(body, &ms); err != nil {
		return nil, fmt.Errorf("failed to parse XML: %w", err)
	}

	var resources []davResource
	for _, resp := range ms.Responses {
		if strings.TrimSpace(resp.CalendarData) == "" {
			continue
		}
		resources = append(resources, davResource{href: resp.Href, data: resp.CalendarData})
	}

	return resources, nil
}

// eventFromICal converts the first VEVENT of cal to a Google Calendar event.
func eventFromICal(cal *ical.Calendar) (*calendar.Event, error) {
	var vevent *ical.Component
	for _, comp := range cal.Children {
		if comp.Name == ical.CompEvent {
			vevent = comp
			break
		}
	}
	if vevent == nil {
		return nil, fmt.Errorf("no VEVENT found in calendar")
	}

	event := &calendar.Event{}
	event.ICalUID = propText(vevent, ical.PropUID)
	event.Summary = propText(vevent, ical.PropSummary)
	event.Description = propText(vevent, ical.PropDescription)
	event.Location = propText(vevent, ical.PropLocation)
	event.Start = propEventDateTime(vevent, ical.PropDateTimeStart)
	event.End = propEventDateTime(vevent, ical.PropDateTimeEnd)

	for name, props := range vevent.Props {
		if !strings.HasPrefix(name, sharedPropPrefix) || len(props) == 0 {
			continue
		}
		value, err := props[0].Text()
		if err != nil {
			continue
		}
		if event.ExtendedProperties == nil {
			event.ExtendedProperties = &calendar.EventExtendedProperties{Shared: map[string]string{}}
		}
		key := strings.ToLower(strings.ReplaceAll(strings.TrimPrefix(name, sharedPropPrefix), "-", "_"))
		event.ExtendedProperties.Shared[key] = value
	}

	return event, nil
}

// eventToICal converts a Google Calendar event to a single-VEVENT calendar.
func eventToICal(event *calendar.Event, now time.Time) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//Howl//EventSync//EN")

	vevent := ical.NewComponent(ical.CompEvent)
	cal.Children = append(cal.Children, vevent)

	vevent.Props.SetText(ical.PropUID, event.ICalUID)
	if event.Summary != "" {
		vevent.Props.SetText(ical.PropSummary, event.Summary)
	}
	if event.Description != "" {
		vevent.Props.SetText(ical.PropDescription, event.Description)
	}
	if event.Location != "" {
		vevent.Props.SetText(ical.PropLocation, event.Location)
	}
	setEventDateTime(vevent, ical.PropDateTimeStart, event.Start)
	setEventDateTime(vevent, ical.PropDateTimeEnd, event.End)

	if event.ExtendedProperties != nil {
		keys := make([]string, 0, len(event.ExtendedProperties.Shared))
		for key := range event.ExtendedProperties.Shared {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			name := sharedPropPrefix + strings.ToUpper(strings.ReplaceAll(key, "_", "-"))
			vevent.Props.SetText(name, event.ExtendedProperties.Shared[key])
		}
	}

	vevent.Props.SetDateTime(ical.PropDateTimeStamp, now.UTC())
	vevent.Props.SetDateTime(ical.PropLastModified, now.UTC())

	return cal
}

func propText(comp *ical.Component, name string) string {
	prop := comp.Props.Get(name)
	if prop == nil {
		return ""
	}
	text, err := prop.Text()
	if err != nil {
		return prop.Value
	}
	return text
}

func propEventDateTime(comp *ical.Component, name string) *calendar.EventDateTime {
	prop := comp.Props.Get(name)
	if prop == nil {
		return nil
	}
	t, err := prop.DateTime(time.UTC)
	if err != nil {
		return nil
	}
	if prop.ValueType() == ical.ValueDate {
		return &calendar.EventDateTime{Date: t.Format("2006-01-02")}
	}
	return &calendar.EventDateTime{DateTime: t.Format(time.RFC3339)}
}

func setEventDateTime(comp *ical.Component, name string, value *calendar.EventDateTime) {
	if value == nil {
		return
	}
	if value.Date != "" {
		if date, err := time.Parse("2006-01-02", value.Date); err == nil {
			prop := ical.NewProp(name)
			prop.SetDate(date)
			comp.Props.Set(prop)
		}
		return
	}
	if t, err := time.Parse(time.RFC3339, value.DateTime); err == nil {
		comp.Props.SetDateTime(name, t.UTC())
	}
}
