package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // club timezones must resolve on hosts without zoneinfo
)

// Origin identifies which club number and display name outbound messages are
// sent from. It is carried explicitly through every send.
type Origin struct {
	Address string
	Name    string
}

// Club holds per-club engine settings.
type Club struct {
	ID            string
	Name          string
	Timezone      string
	BatchSize     int
	InviteTimeout time.Duration
	// QuietStart and QuietEnd are local "HH:MM" clock values; the window may
	// wrap midnight. Equal values disable quiet hours.
	QuietStart       string
	QuietEnd         string
	OriginAddress    string
	FeedbackDelay    time.Duration
	ResultNudgeDelay time.Duration
}

// Group is a fixed subset of a club's players.
type Group struct {
	ID        string
	ClubID    string
	Name      string
	MemberIDs []string
}

// Origin returns the sender identity for this club.
func (c Club) Origin() Origin {
	return Origin{Address: c.OriginAddress, Name: c.Name}
}

// Location resolves the club timezone, falling back to UTC.
func (c Club) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// InQuietHours reports whether t falls inside the club's local quiet window.
func (c Club) InQuietHours(t time.Time) bool {
	start, err := ParseClock(c.QuietStart)
	if err != nil {
		return false
	}
	end, err := ParseClock(c.QuietEnd)
	if err != nil || start == end {
		return false
	}
	local := t.In(c.Location())
	now := local.Hour()*60 + local.Minute()
	if start < end {
		return now >= start && now < end
	}
	return now >= start || now < end
}

// ParseClock converts "HH:MM" into minutes after midnight.
func ParseClock(s string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("clock %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("clock %q: bad hour", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock %q: bad minute", s)
	}
	return h*60 + m, nil
}
