package schedule

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	channelTag  = "channel"
	episodeTag  = "scheduledepisode"
	naiveLayout = "2006-01-02T15:04:05"
)

// channelNode is a <channel> element of the channel list document.
type channelNode struct {
	ID          string `xml:"id,attr"`
	Name        string `xml:"name,attr"`
	Image       string `xml:"image"`
	SiteURL     string `xml:"siteurl"`
	ChannelType string `xml:"channeltype"`
	ScheduleURL string `xml:"scheduleurl"`
}

// episodeNode is a <scheduledepisode> element of a schedule document.
type episodeNode struct {
	Channel struct {
		Name string `xml:"name,attr"`
	} `xml:"channel"`
	Title        string `xml:"title"`
	Description  string `xml:"description"`
	ImageURL     string `xml:"imageurl"`
	StartTimeUTC string `xml:"starttimeutc"`
	EndTimeUTC   string `xml:"endtimeutc"`
}

// Parser turns raw API documents into channels and episodes.
type Parser struct {
	location *time.Location
	logger   *logrus.Logger
}

// NewParser creates a parser converting timestamps to loc. A nil loc means
// the system local zone.
func NewParser(loc *time.Location, logger *logrus.Logger) *Parser {
	if loc == nil {
		loc = time.Local
	}
	return &Parser{
		location: loc,
		logger:   logger,
	}
}

// ParseChannels extracts every channel of a channel list (or single channel)
// document, skipping ExcludedChannelID and nodes without an id.
func (p *Parser) ParseChannels(raw []byte) ([]Channel, error) {
	var channels []Channel

	err := eachElement(raw, channelTag, func(d *xml.Decoder, start xml.StartElement) error {
		var node channelNode
		if err := d.DecodeElement(&node, &start); err != nil {
			return &MalformedResponseError{Err: err}
		}

		if node.ID == "" {
			p.logger.WithError(&PartialFieldError{Node: channelTag, Field: "id", Err: ErrMissingField}).
				WithField("name", node.Name).Debug("Skipping channel")
			return nil
		}
		if node.ID == ExcludedChannelID {
			return nil
		}

		channels = append(channels, Channel{
			ID:          node.ID,
			Name:        node.Name,
			ScheduleURL: strings.TrimSpace(node.ScheduleURL),
			Image:       strings.TrimSpace(node.Image),
			SiteURL:     strings.TrimSpace(node.SiteURL),
			ChannelType: strings.TrimSpace(node.ChannelType),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return channels, nil
}

// ParseEpisodes extracts the scheduled episodes of a schedule document whose
// start lies within Window of ref. Episodes with a missing or invalid
// timestamp are skipped without failing the document.
func (p *Parser) ParseEpisodes(raw []byte, ref time.Time) ([]Episode, error) {
	var (
		episodes []Episode
		skipped  int
		outside  int
	)

	err := eachElement(raw, episodeTag, func(d *xml.Decoder, start xml.StartElement) error {
		var node episodeNode
		if err := d.DecodeElement(&node, &start); err != nil {
			return &MalformedResponseError{Err: err}
		}

		episode, err := p.episode(node)
		if err != nil {
			skipped++
			p.logger.WithError(err).WithField("title", node.Title).Debug("Skipping scheduled episode")
			return nil
		}
		if !InWindow(episode.Start, ref) {
			outside++
			return nil
		}

		episodes = append(episodes, episode)
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.logger.WithFields(logrus.Fields{
		"kept":    len(episodes),
		"outside": outside,
		"skipped": skipped,
	}).Debug("Parsed schedule document")

	return episodes, nil
}

func (p *Parser) episode(node episodeNode) (Episode, error) {
	start, err := ParseTimestamp(node.StartTimeUTC)
	if err != nil {
		return Episode{}, &PartialFieldError{Node: episodeTag, Field: "starttimeutc", Err: err}
	}
	end, err := ParseTimestamp(node.EndTimeUTC)
	if err != nil {
		return Episode{}, &PartialFieldError{Node: episodeTag, Field: "endtimeutc", Err: err}
	}

	start, end = start.In(p.location), end.In(p.location)
	startDate, startTime := SplitTimestamp(start)
	endDate, endTime := SplitTimestamp(end)

	return Episode{
		Title:       strings.TrimSpace(node.Title),
		Description: strings.TrimSpace(node.Description),
		ImageURL:    strings.TrimSpace(node.ImageURL),
		ChannelName: node.Channel.Name,
		StartDate:   startDate,
		StartTime:   startTime,
		EndDate:     endDate,
		EndTime:     endTime,
		Start:       start,
		End:         end,
	}, nil
}

// ParseTimestamp parses an API timestamp. RFC 3339 is tried first; otherwise
// the trailing zone suffix is trimmed and the rest is read as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrMissingField
	}

	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation(naiveLayout, s[:len(s)-1], time.UTC); err == nil {
		return t, nil
	}

	t, err := time.ParseInLocation(naiveLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognised timestamp %q: %w", s, err)
	}
	return t, nil
}

// SplitTimestamp returns the date and time-of-day of t in t's location.
func SplitTimestamp(t time.Time) (date, clock string) {
	return t.Format(DateLayout), t.Format(TimeLayout)
}

// eachElement streams raw and calls fn for every start element named name.
// fn must consume the element.
func eachElement(raw []byte, name string, fn func(*xml.Decoder, xml.StartElement) error) error {
	decoder := xml.NewDecoder(bytes.NewReader(raw))
	sawElement := false

	for {
		tok, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			if !sawElement {
				return &MalformedResponseError{Err: ErrEmptyDocument}
			}
			return nil
		}
		if err != nil {
			return &MalformedResponseError{Err: err}
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		sawElement = true

		if start.Name.Local != name {
			continue
		}
		if err := fn(decoder, start); err != nil {
			return err
		}
	}
}
