package calendar

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"google.golang.org/api/calendar/v3"
)

const reportResponse = `<?xml version="1.0" encoding="utf-8"?>
<d:multistatus xmlns:d="DAV:" xmlns:cal="urn:ietf:params:xml:ns:caldav">
  <d:response>
    <d:href>/alice/events/abc.ics</d:href>
    <d:propstat>
      <d:prop>
        <d:getetag>"1"</d:getetag>
        <cal:calendar-data>BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//Test//EN
BEGIN:VEVENT
UID:abc
DTSTAMP:20240101T000000Z
DTSTART:20240115T180000Z
DTEND:20240115T190000Z
SUMMARY:[EventSync] Town Hall
LOCATION:Main Hall
X-SHARED-DISCORD-ID:G1
END:VEVENT
END:VCALENDAR
</cal:calendar-data>
      </d:prop>
    </d:propstat>
  </d:response>
  <d:response>
    <d:href>/alice/events/</d:href>
    <d:propstat><d:prop><d:getetag>"0"</d:getetag></d:prop></d:propstat>
  </d:response>
</d:multistatus>`

func TestCalDAVClient_ListEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "REPORT" || r.URL.Path != "/alice/events/" {
			t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
		}
		if user, pass, ok := r.BasicAuth(); !ok || user != "alice" || pass != "secret" {
			t.Errorf("Expected basic auth alice/secret, got %s/%s", user, pass)
		}
		w.WriteHeader(http.StatusMultiStatus)
		io.WriteString(w, reportResponse)
	}))
	defer srv.Close()

	client := NewCalDAVClient(srv.URL, "alice", "secret", srv.Client())
	events, err := client.ListEvents(context.Background(), "/alice/events/")
	if err != nil {
		t.Fatalf("ListEvents() returned an error: %v", err)
	}

	if len(events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(events))
	}
	event := events[0]
	if event.Id != "abc.ics" {
		t.Errorf("Expected Id 'abc.ics', got '%s'", event.Id)
	}
	if event.ICalUID != "abc" {
		t.Errorf("Expected ICalUID 'abc', got '%s'", event.ICalUID)
	}
	if event.Summary != "[EventSync] Town Hall" {
		t.Errorf("Expected summary '[EventSync] Town Hall', got '%s'", event.Summary)
	}
	if event.Start.DateTime != "2024-01-15T18:00:00Z" {
		t.Errorf("Expected start '2024-01-15T18:00:00Z', got '%s'", event.Start.DateTime)
	}
	if event.ExtendedProperties == nil || event.ExtendedProperties.Shared["discord_id"] != "G1" {
		t.Errorf("Expected shared discord_id 'G1', got %+v", event.ExtendedProperties)
	}
}

func TestCalDAVClient_InsertEvent(t *testing.T) {
	var body string
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("Expected PUT, got %s", r.Method)
		}
		if r.Header.Get("If-None-Match") != "*" {
			t.Errorf("Expected If-None-Match: *, got '%s'", r.Header.Get("If-None-Match"))
		}
		data, _ := io.ReadAll(r.Body)
		body = string(data)
		path = r.URL.Path
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	client := NewCalDAVClient(srv.URL, "alice", "secret", srv.Client())
	event := &calendar.Event{
		Summary: "[EventSync] Town Hall",
		Start:   &calendar.EventDateTime{DateTime: "2024-01-15T18:00:00Z"},
		End:     &calendar.EventDateTime{DateTime: "2024-01-15T19:00:00Z"},
		ExtendedProperties: &calendar.EventExtendedProperties{
			Shared: map[string]string{"discord_id": "G1"},
		},
	}

	created, err := client.InsertEvent(context.Background(), "/alice/events", event)
	if err != nil {
		t.Fatalf("InsertEvent() returned an error: %v", err)
	}

	if created.ICalUID == "" {
		t.Fatal("Expected a generated ICalUID")
	}
	if created.Id != created.ICalUID+".ics" {
		t.Errorf("Expected Id '%s.ics', got '%s'", created.ICalUID, created.Id)
	}
	if path != "/alice/events/"+created.Id {
		t.Errorf("Expected PUT to /alice/events/%s, got %s", created.Id, path)
	}
	if !strings.Contains(body, "X-SHARED-DISCORD-ID:G1") {
		t.Errorf("Expected body to carry X-SHARED-DISCORD-ID, got:\n%s", body)
	}
	if !strings.Contains(body, "DTSTART:20240115T180000Z") {
		t.Errorf("Expected body to carry DTSTART, got:\n%s", body)
	}
}

func TestCalDAVClient_DeleteEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/alice/events/abc.ics" {
			t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := NewCalDAVClient(srv.URL, "alice", "secret", srv.Client())
	if err := client.DeleteEvent(context.Background(), "/alice/events/", "abc.ics"); err != nil {
		t.Fatalf("DeleteEvent() returned an error: %v", err)
	}
}

func TestCalDAVClient_DeleteEvent_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	client := NewCalDAVClient(srv.URL, "alice", "secret", srv.Client())
	if err := client.DeleteEvent(context.Background(), "/alice/events/", "abc.ics"); err == nil {
		t.Error("Expected an error for HTTP 403")
	}
}

func TestEventICalRoundTrip(t *testing.T) {
	event := &calendar.Event{
		ICalUID:     "uid-1",
		Summary:     "[EventSync] Game Night; bring snacks, friends",
		Description: "Line one\nLine two",
		Location:    "Room 4",
		Start:       &calendar.EventDateTime{DateTime: "2024-03-01T20:00:00Z"},
		End:         &calendar.EventDateTime{DateTime: "2024-03-01T22:00:00Z"},
		ExtendedProperties: &calendar.EventExtendedProperties{
			Shared: map[string]string{"discord_id": "G42"},
		},
	}

	got, err := eventFromICal(eventToICal(event, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	if err != nil {
		t.Fatalf("eventFromICal() returned an error: %v", err)
	}

	if got.Summary != event.Summary {
		t.Errorf("Expected summary '%s', got '%s'", event.Summary, got.Summary)
	}
	if got.Description != event.Description {
		t.Errorf("Expected description '%s', got '%s'", event.Description, got.Description)
	}
	if got.End.DateTime != event.End.DateTime {
		t.Errorf("Expected end '%s', got '%s'", event.End.DateTime, got.End.DateTime)
	}
	if got.ExtendedProperties.Shared["discord_id"] != "G42" {
		t.Errorf("Expected discord_id 'G42', got '%s'", got.ExtendedProperties.Shared["discord_id"])
	}
}
