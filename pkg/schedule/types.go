// Package schedule provides the record types and XML parsing for the radio
// channel and program-schedule documents served by the schedule API.
package schedule

import "time"

// ExcludedChannelID is the channel whose schedule endpoint is known to be
// broken. It is dropped from parsed channel lists and never fetched.
const ExcludedChannelID = "4868"

const (
	// DateLayout is the layout of Episode.StartDate and Episode.EndDate.
	DateLayout = "2006-01-02"
	// TimeLayout is the layout of Episode.StartTime and Episode.EndTime.
	TimeLayout = "15:04:05"
	// Window is the half-width of the interval around the reference instant
	// in which an episode must start to be kept.
	Window = 12 * time.Hour
)

// Channel is a radio station and the endpoint listing its schedule.
type Channel struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ScheduleURL string `json:"scheduleUrl"`
	Image       string `json:"image,omitempty"`
	SiteURL     string `json:"siteUrl,omitempty"`
	ChannelType string `json:"channelType,omitempty"`
}

// HasSchedule reports whether the channel's schedule should be fetched.
func (c Channel) HasSchedule() bool {
	return c.ScheduleURL != "" && c.ID != ExcludedChannelID
}

// Episode is one scheduled broadcast. Dates and times are expressed in the
// parser's location.
type Episode struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	ImageURL    string    `json:"imageUrl,omitempty"`
	ChannelName string    `json:"channelName"`
	StartDate   string    `json:"startDate"`
	StartTime   string    `json:"startTime"`
	EndDate     string    `json:"endDate"`
	EndTime     string    `json:"endTime"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
}

// Equal reports whether every field of e and o match.
func (e Episode) Equal(o Episode) bool {
	return e.Title == o.Title &&
		e.Description == o.Description &&
		e.ImageURL == o.ImageURL &&
		e.ChannelName == o.ChannelName &&
		e.StartDate == o.StartDate &&
		e.StartTime == o.StartTime &&
		e.EndDate == o.EndDate &&
		e.EndTime == o.EndTime &&
		e.Start.Equal(o.Start) &&
		e.End.Equal(o.End)
}

// InWindow reports whether start lies strictly inside (ref-Window, ref+Window).
func InWindow(start, ref time.Time) bool {
	return start.After(ref.Add(-Window)) && start.Before(ref.Add(Window))
}
