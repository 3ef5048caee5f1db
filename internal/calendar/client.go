package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// maxPages bounds pagination so a misbehaving server cannot loop forever.
const maxPages = 40

// Client talks to a Google Calendar v3 compatible REST API through the
// generated calendar service. The bearer token is supplied per call.
type Client struct {
	endpoint string
	pageSize int
	timeout  time.Duration
	base     http.RoundTripper
}

func NewClient(baseURL string, timeout time.Duration, pageSize int) *Client {
	if pageSize <= 0 {
		pageSize = 250
	}
	return &Client{
		endpoint: strings.TrimRight(baseURL, "/") + "/",
		pageSize: pageSize,
		timeout:  timeout,
		base:     http.DefaultTransport,
	}
}

// service builds a calendar service authorized with token.
func (c *Client) service(ctx context.Context, token string) (*gcal.Service, error) {
	httpClient := &http.Client{
		Timeout: c.timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
			Base:   c.base,
		},
	}

	svc, err := gcal.NewService(ctx, option.WithHTTPClient(httpClient), option.WithEndpoint(c.endpoint))
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}
	return svc, nil
}

func (c *Client) ListCalendars(ctx context.Context, token string) ([]CalendarListEntry, error) {
	svc, err := c.service(ctx, token)
	if err != nil {
		return nil, err
	}

	var all []CalendarListEntry
	pageToken := ""

	for page := 0; page < maxPages; page++ {
		call := svc.CalendarList.List().Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("list calendars: %w", apiError(err))
		}

		for _, item := range resp.Items {
			all = append(all, CalendarListEntry{ID: item.Id, Summary: item.Summary, Primary: item.Primary})
		}
		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	return all, nil
}

// ListEvents returns single (expanded) events ordered by start time,
// including cancelled ones. A zero TimeMin defaults to now.
func (c *Client) ListEvents(ctx context.Context, token, calendarID string, opts ListOptions) ([]Event, error) {
	svc, err := c.service(ctx, token)
	if err != nil {
		return nil, err
	}

	timeMin := opts.TimeMin
	if timeMin.IsZero() {
		timeMin = time.Now()
	}

	var all []Event
	pageToken := ""

	for page := 0; page < maxPages; page++ {
		call := svc.Events.List(calendarID).
			Context(ctx).
			TimeMin(timeMin.UTC().Format(time.RFC3339)).
			SingleEvents(true).
			OrderBy("startTime").
			ShowDeleted(true).
			MaxResults(int64(c.pageSize))
		if !opts.TimeMax.IsZero() {
			call = call.TimeMax(opts.TimeMax.UTC().Format(time.RFC3339))
		}
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("list events for %s: %w", calendarID, apiError(err))
		}

		for _, item := range resp.Items {
			all = append(all, fromAPIEvent(item))
		}
		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	return all, nil
}

func (c *Client) GetEvent(ctx context.Context, token, calendarID, eventID string) (*Event, error) {
	svc, err := c.service(ctx, token)
	if err != nil {
		return nil, err
	}

	item, err := svc.Events.Get(calendarID, eventID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("get event %s: %w", eventID, apiError(err))
	}
	ev := fromAPIEvent(item)
	return &ev, nil
}

func (c *Client) CreateEvent(ctx context.Context, token, calendarID string, ev Event) (string, error) {
	svc, err := c.service(ctx, token)
	if err != nil {
		return "", err
	}

	created, err := svc.Events.Insert(calendarID, toAPIEvent(ev)).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("create event: %w", apiError(err))
	}
	return created.Id, nil
}

func (c *Client) PatchEvent(ctx context.Context, token, calendarID, eventID string, patch EventPatch) error {
	svc, err := c.service(ctx, token)
	if err != nil {
		return err
	}

	body := &gcal.Event{
		Start:  toAPIDateTime(patch.Start),
		End:    toAPIDateTime(patch.End),
		Status: patch.Status,
	}
	if _, err := svc.Events.Patch(calendarID, eventID, body).Context(ctx).Do(); err != nil {
		return fmt.Errorf("patch event %s: %w", eventID, apiError(err))
	}
	return nil
}

func (c *Client) DeleteEvent(ctx context.Context, token, calendarID, eventID string) error {
	svc, err := c.service(ctx, token)
	if err != nil {
		return err
	}

	if err := svc.Events.Delete(calendarID, eventID).Context(ctx).Do(); err != nil {
		return fmt.Errorf("delete event %s: %w", eventID, apiError(err))
	}
	return nil
}

// apiError converts a googleapi error into an APIError so callers can
// classify it without importing the SDK. Transport errors pass through.
func apiError(err error) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return err
	}

	msg := gerr.Message
	if msg == "" {
		msg = strings.TrimSpace(gerr.Body)
		if len(msg) > 200 {
			msg = msg[:200]
		}
	}
	if msg == "" {
		msg = http.StatusText(gerr.Code)
	}
	return &APIError{StatusCode: gerr.Code, Message: msg}
}

func fromAPIEvent(item *gcal.Event) Event {
	ev := Event{
		ID:          item.Id,
		Summary:     item.Summary,
		Description: item.Description,
		Start:       fromAPIDateTime(item.Start),
		End:         fromAPIDateTime(item.End),
		Status:      item.Status,
	}
	for _, a := range item.Attendees {
		if a == nil {
			continue
		}
		ev.Attendees = append(ev.Attendees, Attendee{
			Email:          a.Email,
			DisplayName:    a.DisplayName,
			ResponseStatus: a.ResponseStatus,
		})
	}
	return ev
}

func toAPIEvent(ev Event) *gcal.Event {
	item := &gcal.Event{
		Id:          ev.ID,
		Summary:     ev.Summary,
		Description: ev.Description,
		Start:       toAPIDateTime(ev.Start),
		End:         toAPIDateTime(ev.End),
		Status:      ev.Status,
	}
	for _, a := range ev.Attendees {
		item.Attendees = append(item.Attendees, &gcal.EventAttendee{
			Email:          a.Email,
			DisplayName:    a.DisplayName,
			ResponseStatus: a.ResponseStatus,
		})
	}
	return item
}

func fromAPIDateTime(dt *gcal.EventDateTime) *EventDateTime {
	if dt == nil {
		return nil
	}
	return &EventDateTime{DateTime: dt.DateTime, Date: dt.Date, TimeZone: dt.TimeZone}
}

func toAPIDateTime(dt *EventDateTime) *gcal.EventDateTime {
	if dt == nil {
		return nil
	}
	return &gcal.EventDateTime{DateTime: dt.DateTime, Date: dt.Date, TimeZone: dt.TimeZone}
}
