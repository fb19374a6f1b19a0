package codec

import "regexp"

// GrammarVersion identifies the message grammar below. Every rendered
// message is read back with these exact patterns, so changing any of them
// is a breaking change for events already posted.
const GrammarVersion = 1

// Field names.
const (
	FieldLocation  = "Location"
	FieldChannel   = "Channel"
	FieldDuration  = "Duration"
	FieldFrequency = "Frequency"
	FieldEventLink = "Event Link"
	FieldEventID   = "Event ID"

	// Pseudo field names used in ParseError for the non-keyed parts.
	FieldTitle      = "Title"
	FieldAuthor     = "Author"
	FieldAttendance = "Attendees"
)

const (
	ChannelURLPrefix = "https://discord.com/channels/"
	EventURLPrefix   = "https://discord.com/events/"

	// HostedBy joins the event name and the author name in the title.
	HostedBy = " hosted by "

	AttendanceTitle = "Attendees"
	NoAttendees     = "No one yet."
)

var (
	titleRe      = regexp.MustCompile(`^(\d{2}/\d{2}/\d{2} \d{2}:\d{2} (?:AM|PM) \S+) - (.+)$`)
	authorRe     = regexp.MustCompile(`^(.*) \((\d+)\)$`)
	durationRe   = regexp.MustCompile(`^(\d+) hours?$`)
	frequencyRe  = regexp.MustCompile(`^Occurs every (\d+) (hour|day|week|month)s?\nFirst held (.+), and held (\d+) times? since then!$`)
	trailingIDRe = regexp.MustCompile(`/(\d+)/?$`)
	attendanceRe = regexp.MustCompile(`^Attendees \((\d+)(?:/(\d+))?\)$`)
	mentionRe    = regexp.MustCompile(`^<@!?(\d+)>$`)
)

func ChannelURL(guildID, channelID string) string {
	return ChannelURLPrefix + guildID + "/" + channelID
}

func EventURL(guildID, eventID string) string {
	return EventURLPrefix + guildID + "/" + eventID
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
