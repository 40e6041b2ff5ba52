// Package hours parses and queries the market-hours database (spec §6): a
// JSON document of per-security trading segments and holidays, consulted by
// the subscription reader and time-slice assembler for tradeable-date
// iteration and local-time conversion.
package hours

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// SegmentKind classifies one trading segment within a day.
type SegmentKind string

const (
	SegmentPreMarket  SegmentKind = "pre-market"
	SegmentMarket     SegmentKind = "market"
	SegmentPostMarket SegmentKind = "post-market"
)

// Segment is a half-open local-time interval, e.g. [09:30, 16:00).
type Segment struct {
	Start time.Duration // offset from local midnight
	End   time.Duration
	Kind  SegmentKind
}

// rawSegment is the wire shape of one entry in a day's segment list.
type rawSegment struct {
	Start string      `json:"start"`
	End   string      `json:"end"`
	Kind  SegmentKind `json:"kind"`
}

// rawEntry is the wire shape of one "<securityType-market-symbol>" entry.
type rawEntry struct {
	DataTimeZone     string       `json:"dataTimeZone"`
	ExchangeTimeZone string       `json:"exchangeTimeZone"`
	Sunday           []rawSegment `json:"sunday"`
	Monday           []rawSegment `json:"monday"`
	Tuesday          []rawSegment `json:"tuesday"`
	Wednesday        []rawSegment `json:"wednesday"`
	Thursday         []rawSegment `json:"thursday"`
	Friday           []rawSegment `json:"friday"`
	Saturday         []rawSegment `json:"saturday"`
	Holidays         []string     `json:"holidays"`
}

type rawDocument struct {
	Entries map[string]rawEntry `json:"entries"`
}

// Entry is one security's trading calendar: a week of segment lists keyed by
// time.Weekday, plus a holiday set and the two time zones governing it.
type Entry struct {
	DataTimeZone     *time.Location
	ExchangeTimeZone *time.Location
	Week             map[time.Weekday][]Segment
	Holidays         map[string]bool // "M/d/yyyy", invariant culture
}

// Database is the parsed, query-ready market-hours document.
type Database struct {
	entries map[string]Entry
}

// Key builds the "<securityType>-<market>-<symbol>" lookup key the document
// uses, all lowercase per spec §6.
func Key(securityType, market, symbol string) string {
	return fmt.Sprintf("%s-%s-%s", strings.ToLower(securityType), strings.ToLower(market), strings.ToLower(symbol))
}

// Parse decodes a market-hours JSON document from r.
func Parse(r io.Reader) (*Database, error) {
	var doc rawDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, err
	}

	entries := make(map[string]Entry, len(doc.Entries))
	for key, raw := range doc.Entries {
		dataTZ, err := time.LoadLocation(raw.DataTimeZone)
		if err != nil {
			return nil, fmt.Errorf("hours: entry %q data time zone: %w", key, err)
		}
		exchangeTZ, err := time.LoadLocation(raw.ExchangeTimeZone)
		if err != nil {
			return nil, fmt.Errorf("hours: entry %q exchange time zone: %w", key, err)
		}

		week := map[time.Weekday][]Segment{
			time.Sunday:    mustSegments(raw.Sunday),
			time.Monday:    mustSegments(raw.Monday),
			time.Tuesday:   mustSegments(raw.Tuesday),
			time.Wednesday: mustSegments(raw.Wednesday),
			time.Thursday:  mustSegments(raw.Thursday),
			time.Friday:    mustSegments(raw.Friday),
			time.Saturday:  mustSegments(raw.Saturday),
		}

		holidays := make(map[string]bool, len(raw.Holidays))
		for _, h := range raw.Holidays {
			holidays[h] = true
		}

		entries[key] = Entry{
			DataTimeZone:     dataTZ,
			ExchangeTimeZone: exchangeTZ,
			Week:             week,
			Holidays:         holidays,
		}
	}

	return &Database{entries: entries}, nil
}

func mustSegments(raw []rawSegment) []Segment {
	out := make([]Segment, 0, len(raw))
	for _, r := range raw {
		start, err := time.Parse("15:04", r.Start)
		if err != nil {
			continue
		}
		end, err := time.Parse("15:04", r.End)
		if err != nil {
			continue
		}
		out = append(out, Segment{
			Start: durationSinceMidnight(start),
			End:   durationSinceMidnight(end),
			Kind:  r.Kind,
		})
	}
	return out
}

func durationSinceMidnight(t time.Time) time.Duration {
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute
}

// Entry looks up the trading calendar for key (built via Key).
func (d *Database) Entry(key string) (Entry, bool) {
	e, ok := d.entries[key]
	return e, ok
}

// IsHoliday reports whether date (in the entry's exchange time zone) is a
// holiday, comparing in the invariant "M/d/yyyy" format spec §6 specifies.
func (e Entry) IsHoliday(date time.Time) bool {
	key := fmt.Sprintf("%d/%d/%d", int(date.Month()), date.Day(), date.Year())
	return e.Holidays[key]
}

// IsTradeable reports whether date has at least one market-kind segment and
// is not a holiday.
func (e Entry) IsTradeable(date time.Time) bool {
	if e.IsHoliday(date) {
		return false
	}
	for _, seg := range e.Week[date.Weekday()] {
		if seg.Kind == SegmentMarket {
			return true
		}
	}
	return false
}

// SegmentAt returns the segment containing t (in exchange-local time), if
// any, including extended-hours segments.
func (e Entry) SegmentAt(t time.Time) (Segment, bool) {
	elapsed := durationSinceMidnight(t)
	for _, seg := range e.Week[t.Weekday()] {
		if elapsed >= seg.Start && elapsed < seg.End {
			return seg, true
		}
	}
	return Segment{}, false
}
