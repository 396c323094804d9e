// Package window derives contest windows from the configured close slots.
package window

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/okian/shillbot/internal/domain/model"
	"github.com/robfig/cron/v3"
)

// IDLayout formats a close instant in the calendar's zone as a window id.
const IDLayout = "20060102-1504"

// lookback bounds the search for the previous slot. Slots repeat daily, so
// two days always contain one.
const lookback = 49 * time.Hour

// Calendar maps instants to windows. A window runs from one close slot to the next.
type Calendar struct {
	loc   *time.Location
	specs []string
	slots []cron.Schedule
}

// NewCalendar builds a calendar for close times like "14:00" in zone tz.
func NewCalendar(tz string, closeTimes []string) (*Calendar, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTimezone, tz)
	}
	if len(closeTimes) == 0 {
		return nil, fmt.Errorf("%w: none configured", ErrInvalidCloseTime)
	}
	c := &Calendar{loc: loc}
	seen := make(map[string]bool, len(closeTimes))
	for _, ct := range closeTimes {
		h, m, err := parseClock(ct)
		if err != nil {
			return nil, err
		}
		spec := fmt.Sprintf("CRON_TZ=%s %d %d * * *", tz, m, h)
		if seen[spec] {
			continue
		}
		seen[spec] = true
		sched, err := cron.ParseStandard(spec)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidCloseTime, ct, err)
		}
		c.specs = append(c.specs, spec)
		c.slots = append(c.slots, sched)
	}
	return c, nil
}

func parseClock(s string) (int, int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidCloseTime, s)
	}
	h, err1 := strconv.Atoi(hh)
	m, err2 := strconv.Atoi(mm)
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidCloseTime, s)
	}
	return h, m, nil
}

// Location returns the calendar's time zone.
func (c *Calendar) Location() *time.Location { return c.loc }

// Specs returns the cron specs of the close slots, usable with cron.AddFunc.
func (c *Calendar) Specs() []string {
	out := make([]string, len(c.specs))
	copy(out, c.specs)
	return out
}

// Next returns the first close slot strictly after t.
func (c *Calendar) Next(t time.Time) time.Time {
	var best time.Time
	for _, s := range c.slots {
		n := s.Next(t)
		if best.IsZero() || n.Before(best) {
			best = n
		}
	}
	return best
}

// MostRecentClose returns the latest close slot at or before t.
func (c *Calendar) MostRecentClose(t time.Time) time.Time {
	var last time.Time
	for n := c.Next(t.Add(-lookback)); !n.After(t); n = c.Next(n) {
		last = n
	}
	return last
}

// ID formats the window id for a close instant.
func (c *Calendar) ID(closeAt time.Time) string {
	return closeAt.In(c.loc).Format(IDLayout)
}

// ForClose returns the window ending at closeAt, which must be a slot.
func (c *Calendar) ForClose(closeAt time.Time) (model.Window, error) {
	if !c.isSlot(closeAt) {
		return model.Window{}, fmt.Errorf("%w: %s", ErrNotASlot, closeAt.In(c.loc).Format(time.RFC3339))
	}
	opens := c.MostRecentClose(closeAt.Add(-time.Second))
	return model.Window{
		ID:       c.ID(closeAt),
		OpensAt:  opens,
		ClosesAt: closeAt,
		Status:   model.WindowOpen,
	}, nil
}

// Resolve parses a window id and returns its bounds.
func (c *Calendar) Resolve(id string) (model.Window, error) {
	t, err := time.ParseInLocation(IDLayout, strings.TrimSpace(id), c.loc)
	if err != nil {
		return model.Window{}, fmt.Errorf("%w: %q", ErrInvalidWindowID, id)
	}
	return c.ForClose(t)
}

// Current returns the most recently closed window as of now.
func (c *Calendar) Current(now time.Time) (model.Window, error) {
	return c.ForClose(c.MostRecentClose(now))
}

// Upcoming returns the window that is open at now.
func (c *Calendar) Upcoming(now time.Time) (model.Window, error) {
	return c.ForClose(c.Next(now))
}

// Previous returns the id of the window that closed when w opened.
func (c *Calendar) Previous(w model.Window) string {
	return c.ID(w.OpensAt)
}

func (c *Calendar) isSlot(t time.Time) bool {
	return c.Next(t.Add(-time.Second)).Equal(t)
}
