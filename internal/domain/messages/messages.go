// Package messages builds the outbound text message bodies. Times are always
// rendered in the club's local timezone.
package messages

import (
	"fmt"
	"strings"
	"time"

	"github.com/okian/rally/internal/domain/model"
)

const whenLayout = "Mon Jan 2 at 3:04 PM"

// When formats t in loc.
func When(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(whenLayout)
}

// Invite asks a player to join a match.
func Invite(p model.Player, c model.Club, m model.Match) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s! %s is putting together doubles on %s", firstName(p.Name), c.Name, When(m.ScheduledAt, c.Location()))
	if m.HasWindow() && !m.SkipFilters {
		fmt.Fprintf(&b, " (level %.1f-%.1f)", *m.LevelMin, *m.LevelMax)
	}
	fmt.Fprintf(&b, ". %d of %d spots open. Reply YES, NO or MAYBE.", m.OpenSeats(), model.MatchSeats)
	return b.String()
}

// Seated tells the accepter they are in.
func Seated(c model.Club, m model.Match, organizer bool) string {
	msg := fmt.Sprintf("You're in for %s! %d/%d players confirmed.", When(m.ScheduledAt, c.Location()), m.ParticipantCount(), model.MatchSeats)
	if organizer {
		msg += " You're the organizer for this one."
	}
	return msg
}

// Roster is the confirmation sent to every non-organizer participant.
func Roster(c model.Club, m model.Match, names map[string]string) string {
	return fmt.Sprintf("Match confirmed for %s at %s. %s", When(m.ScheduledAt, c.Location()), c.Name, teams(m, names))
}

// OrganizerBooking is the confirmation sent to the organizer.
func OrganizerBooking(c model.Club, m model.Match, names map[string]string) string {
	return fmt.Sprintf("Your match on %s is full! Please book a court at %s. %s Reply with the score when you're done.",
		When(m.ScheduledAt, c.Location()), c.Name, teams(m, names))
}

// MatchFull answers a late yes.
func MatchFull(c model.Club, m model.Match) string {
	return fmt.Sprintf("Sorry, the %s match is already full. We'll ask you next time!", When(m.ScheduledAt, c.Location()))
}

// NoLongerOpen answers a yes to an invitation that was closed.
func NoLongerOpen(c model.Club, m model.Match) string {
	return fmt.Sprintf("Sorry, the invitation for %s is no longer open.", When(m.ScheduledAt, c.Location()))
}

// NoInvite answers a reply that matches no invitation.
func NoInvite() string {
	return "We couldn't find an open invitation for you."
}

// DeclineAck acknowledges a no.
func DeclineAck() string {
	return "No problem, thanks for letting us know."
}

// MaybeAck acknowledges a maybe.
func MaybeAck(c model.Club, m model.Match) string {
	return fmt.Sprintf("Got it. We'll let you know if the %s match is still short.", When(m.ScheduledAt, c.Location()))
}

// MaybeNudge tells a maybe holder someone else just joined.
func MaybeNudge(c model.Club, m model.Match, joined string) string {
	return fmt.Sprintf("%s just joined the %s match (%d/%d). Reply YES to grab a spot.",
		firstName(joined), When(m.ScheduledAt, c.Location()), m.ParticipantCount(), model.MatchSeats)
}

// MaybeFilled tells a tentative player the match filled without them.
func MaybeFilled(c model.Club, m model.Match, joined string) string {
	return fmt.Sprintf("%s took the last spot for %s, so that match is full. We'll ask you next time!",
		firstName(joined), When(m.ScheduledAt, c.Location()))
}

// Deadpool offers the organizer a wider search.
func Deadpool(c model.Club, m model.Match, needed, available int, offer string) string {
	return fmt.Sprintf("We're running out of players for %s: %d more needed, %d left to ask. Reply YES to %s, or NO to keep waiting.",
		When(m.ScheduledAt, c.Location()), needed, available, offer)
}

// BroadenOffer describes what accepting a deadpool prompt will do.
func BroadenOffer(m model.Match, step float64) string {
	switch {
	case m.GroupID != "":
		return "invite the whole club"
	case m.HasWindow():
		return fmt.Sprintf("widen the level range to %.1f-%.1f", *m.LevelMin-step, *m.LevelMax+step)
	default:
		return "invite everyone regardless of level"
	}
}

// Broadened confirms a wider search.
func Broadened(c model.Club, m model.Match, sent int) string {
	return fmt.Sprintf("Done. Widened the search for %s and sent %d new invites.", When(m.ScheduledAt, c.Location()), sent)
}

// BroadenDeclined acknowledges keeping the current scope.
func BroadenDeclined() string {
	return "OK, we'll keep the current search."
}

// Removed tells a player they were taken off a match.
func Removed(c model.Club, m model.Match) string {
	return fmt.Sprintf("You've been removed from the %s match.", When(m.ScheduledAt, c.Location()))
}

// Cancelled tells a participant the match is off.
func Cancelled(c model.Club, m model.Match) string {
	return fmt.Sprintf("The %s match has been cancelled.", When(m.ScheduledAt, c.Location()))
}

// ResultRecorded confirms a reported score.
func ResultRecorded(m model.Match, w model.Winner, names map[string]string) string {
	switch w {
	case model.WinnerDraw:
		return "Result recorded: draw. Thanks for playing!"
	case model.WinnerTeam1:
		return fmt.Sprintf("Result recorded: %s won. Thanks for playing!", pair(m.Team1, names))
	default:
		return fmt.Sprintf("Result recorded: %s won. Thanks for playing!", pair(m.Team2, names))
	}
}

// SomethingWrong is the generic failure reply.
func SomethingWrong() string {
	return "Sorry, something went wrong. Please try again."
}

func teams(m model.Match, names map[string]string) string {
	return fmt.Sprintf("Team 1: %s vs Team 2: %s.", pair(m.Team1, names), pair(m.Team2, names))
}

func pair(ids []string, names map[string]string) string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if n, ok := names[id]; ok && n != "" {
			out = append(out, firstName(n))
			continue
		}
		out = append(out, id)
	}
	return strings.Join(out, " & ")
}

func firstName(name string) string {
	if f := strings.Fields(name); len(f) > 0 {
		return f[0]
	}
	return "there"
}
