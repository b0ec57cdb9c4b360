package sources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/i474232898/trail-status/internal/fetch"
	"github.com/i474232898/trail-status/internal/trail"
)

// ErrParse marks a feed or image that could not be interpreted.
var ErrParse = errors.New("parse error")

const (
	descNoUpdates      = "No status updates found"
	descCalendarFailed = "Unable to fetch trail status"
	maxFeedBytes       = 4 << 20
)

var (
	summaryRe = regexp.MustCompile(`SUMMARY:(.+?)(?:\r?\n|\r)`)
	dtstartRe = regexp.MustCompile(`DTSTART[^:]*:(\d+T?\d*Z?)`)
	nonDateRe = regexp.MustCompile(`[^0-9T]`)
)

// CalendarEvent is one VEVENT with the fields status extraction needs.
type CalendarEvent struct {
	Summary     string
	Start       time.Time
	Description string
}

// Calendar reads trail status from a public iCalendar feed whose event titles
// say whether the trail is open or closed.
type Calendar struct {
	name    string
	url     string
	fetcher *fetch.Fetcher
	clock   clockwork.Clock
	loc     *time.Location
	logger  *slog.Logger
}

// NewCalendar creates a calendar source. Day boundaries are evaluated in loc.
func NewCalendar(name, url string, fetcher *fetch.Fetcher, clock clockwork.Clock, loc *time.Location, logger *slog.Logger) *Calendar {
	return &Calendar{
		name:    name,
		url:     url,
		fetcher: fetcher,
		clock:   clock,
		loc:     loc,
		logger:  logger,
	}
}

func (c *Calendar) Name() string {
	return c.name
}

// ExtractStatus fetches the feed and derives today's status. Failures become StatusError.
func (c *Calendar) ExtractStatus(ctx context.Context) trail.StatusResult {
	text, err := c.fetchFeed(ctx)
	if err != nil {
		c.logger.Error("calendar fetch failed", "trail", c.name, "url", c.url, "error", err)
		return trail.StatusResult{Status: trail.StatusError, Description: descCalendarFailed}
	}
	return StatusFromEvents(ParseEvents(text, c.loc), c.clock.Now(), c.loc)
}

func (c *Calendar) fetchFeed(ctx context.Context) (string, error) {
	resp, err := c.fetcher.Get(ctx, c.url, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := fetch.CheckStatus(resp); err != nil {
		return "", err
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return "", fmt.Errorf("read calendar feed: %w", err)
	}
	return string(body), nil
}

// ParseEvents extracts events carrying both a summary and a parseable start.
// Date-only starts are placed at midnight in loc.
func ParseEvents(text string, loc *time.Location) []CalendarEvent {
	blocks := strings.Split(text, "BEGIN:VEVENT")
	events := make([]CalendarEvent, 0, len(blocks))

	for _, block := range blocks[1:] {
		block, _, _ = strings.Cut(block, "END:VEVENT")

		var ev CalendarEvent
		if m := summaryRe.FindStringSubmatch(block); m != nil {
			ev.Summary = strings.TrimSpace(m[1])
		}
		if m := dtstartRe.FindStringSubmatch(block); m != nil {
			if start, err := parseDate(m[1], loc); err == nil {
				ev.Start = start
			}
		}
		ev.Description = parseDescription(block)

		if ev.Summary != "" && !ev.Start.IsZero() {
			events = append(events, ev)
		}
	}
	return events
}

// parseDate accepts YYYYMMDD (midnight in loc) and YYYYMMDDTHHMM[SS][Z], which is
// always read as UTC.
func parseDate(raw string, loc *time.Location) (time.Time, error) {
	cleaned := nonDateRe.ReplaceAllString(raw, "")
	if len(cleaned) < 8 {
		return time.Time{}, fmt.Errorf("%w: date %q", ErrParse, raw)
	}
	day, err := time.Parse("20060102", cleaned[:8])
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q", ErrParse, raw)
	}
	if len(cleaned) >= 15 {
		clock, err := time.Parse("1504", cleaned[9:13])
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: time %q", ErrParse, raw)
		}
		return time.Date(day.Year(), day.Month(), day.Day(), clock.Hour(), clock.Minute(), 0, 0, time.UTC), nil
	}
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc), nil
}

// parseDescription unfolds a DESCRIPTION property and unescapes \n and \, sequences.
func parseDescription(block string) string {
	idx := strings.Index(block, "DESCRIPTION:")
	if idx < 0 {
		return ""
	}
	lines := strings.Split(strings.ReplaceAll(block[idx+len("DESCRIPTION:"):], "\r\n", "\n"), "\n")

	var b strings.Builder
	b.WriteString(lines[0])
	for _, line := range lines[1:] {
		if !strings.HasPrefix(line, " ") && !strings.HasPrefix(line, "\t") {
			break
		}
		b.WriteString(line[1:])
	}

	desc := strings.NewReplacer(`\n`, " ", `\N`, " ", `\,`, ",", `\;`, ";").Replace(b.String())
	return strings.TrimSpace(desc)
}

// StatusFromEvents selects today's latest event, or the most recent past event when
// nothing is posted today, and classifies it.
func StatusFromEvents(events []CalendarEvent, now time.Time, loc *time.Location) trail.StatusResult {
	now = now.In(loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	tomorrow := today.AddDate(0, 0, 1)

	var todays, past []CalendarEvent
	for _, ev := range events {
		start := ev.Start.In(loc)
		day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)
		if !day.Before(today) && day.Before(tomorrow) {
			todays = append(todays, ev)
		}
		if !ev.Start.After(now) {
			past = append(past, ev)
		}
	}

	if len(todays) > 0 {
		latest := mostRecent(todays)
		desc := latest.Description
		if desc == "" {
			desc = latest.Summary
		}
		return trail.StatusResult{Status: classifyEvent(latest), Description: desc}
	}

	if len(past) > 0 {
		latest := mostRecent(past)
		desc := "Last update: " + latest.Summary
		if latest.Description != "" {
			desc += " - " + latest.Description
		}
		return trail.StatusResult{Status: classifyEvent(latest), Description: desc}
	}

	return trail.StatusResult{Status: trail.StatusUnknown, Description: descNoUpdates}
}

func mostRecent(events []CalendarEvent) CalendarEvent {
	sorted := append([]CalendarEvent(nil), events...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start.After(sorted[j].Start)
	})
	return sorted[0]
}

// classifyEvent classifies the event title. The description is display text only.
func classifyEvent(ev CalendarEvent) trail.Status {
	return ClassifyText(ev.Summary)
}

// ClassifyText maps free text to closed/open/unknown. "closed" wins over "open".
func ClassifyText(text string) trail.Status {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "closed"):
		return trail.StatusClosed
	case strings.Contains(lower, "open"):
		return trail.StatusOpen
	default:
		return trail.StatusUnknown
	}
}
