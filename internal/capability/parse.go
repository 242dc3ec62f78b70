// Pelagos - Ocean Raster Tile Proxy and Feature Analysis
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pelagos

package capability

import (
	"encoding/xml"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ExtractLayerTimes scans a WMTS or WMS GetCapabilities document and returns
// the raw time-dimension value string for the layer whose identifier matches
// layerID. Both document flavors carry a Dimension element whose identifier
// (WMTS <ows:Identifier>) or name attribute (WMS name="time") is "time".
func ExtractLayerTimes(doc []byte, layerID string) (string, error) {
	decoder := xml.NewDecoder(strings.NewReader(string(doc)))

	var (
		currentLayer string
		inLayer      bool
		inDimension  bool
		dimIsTime    bool
		dimInline    bool // WMS style: extent text in the Dimension body
		dimValue     strings.Builder
		pendingIdent bool
		identTarget  *string
	)

	for {
		tok, err := decoder.Token()
		if err != nil {
			break
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "Layer":
				inLayer = true
				currentLayer = ""
			case "Dimension":
				if !inLayer {
					continue
				}
				inDimension = true
				dimIsTime = false
				dimInline = false
				dimValue.Reset()
				for _, attr := range t.Attr {
					if attr.Name.Local == "name" && strings.EqualFold(attr.Value, "time") {
						dimIsTime = true
						dimInline = true
					}
				}
			case "Identifier", "Name":
				if inDimension {
					pendingIdent = true
					identTarget = nil // dimension identifier checked via chardata below
				} else if inLayer && currentLayer == "" {
					pendingIdent = true
					identTarget = &currentLayer
				}
			case "Value", "Extent":
				if inDimension && dimIsTime {
					var raw string
					if err := decoder.DecodeElement(&raw, &t); err == nil {
						if dimValue.Len() > 0 {
							dimValue.WriteString(",")
						}
						dimValue.WriteString(strings.TrimSpace(raw))
					}
				}
			}

		case xml.CharData:
			if pendingIdent {
				text := strings.TrimSpace(string(t))
				if text != "" {
					if identTarget != nil {
						*identTarget = text
					} else if inDimension && strings.EqualFold(text, "time") {
						dimIsTime = true
					}
					pendingIdent = false
				}
			} else if inDimension && dimInline {
				// WMS 1.3.0 puts the extent directly in the Dimension body.
				text := strings.TrimSpace(string(t))
				if text != "" {
					if dimValue.Len() > 0 {
						dimValue.WriteString(",")
					}
					dimValue.WriteString(text)
				}
			}

		case xml.EndElement:
			switch t.Name.Local {
			case "Identifier", "Name":
				pendingIdent = false
			case "Dimension":
				if inDimension && dimIsTime && matchesLayer(currentLayer, layerID) && dimValue.Len() > 0 {
					return dimValue.String(), nil
				}
				inDimension = false
			case "Layer":
				inLayer = false
				currentLayer = ""
			}
		}
	}

	return "", fmt.Errorf("no time dimension for layer %q", layerID)
}

// matchesLayer compares a capability layer identifier against the preset's
// upstream layer path. Providers sometimes advertise only the final product
// segment, so suffix matches are accepted.
func matchesLayer(found, wanted string) bool {
	if found == "" || wanted == "" {
		return false
	}
	if found == wanted {
		return true
	}
	return strings.HasSuffix(wanted, "/"+found) || strings.HasSuffix(found, "/"+wanted)
}

// ParseTimeValues parses a time-dimension value string into ascending UTC
// timestamps. Two forms are handled: comma-separated instants, and bounded
// intervals "start/end/period" with an ISO-8601 period. Interval expansion
// is clamped to maxWindow before the end bound so a sub-hourly period over a
// multi-year range cannot expand without bound.
func ParseTimeValues(raw string, maxWindow time.Duration) ([]time.Time, error) {
	var out []time.Time

	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if strings.Contains(part, "/") {
			times, err := expandInterval(part, maxWindow)
			if err != nil {
				return nil, err
			}
			out = append(out, times...)
			continue
		}

		ts, err := parseInstant(part)
		if err != nil {
			return nil, err
		}
		out = append(out, ts)
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("empty time dimension value")
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })

	// Deduplicate; comma lists and intervals may overlap.
	dedup := out[:1]
	for _, ts := range out[1:] {
		if !ts.Equal(dedup[len(dedup)-1]) {
			dedup = append(dedup, ts)
		}
	}
	return dedup, nil
}

// expandInterval expands "start/end/period" into instants.
func expandInterval(s string, maxWindow time.Duration) ([]time.Time, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return nil, fmt.Errorf("malformed time interval %q", s)
	}

	start, err := parseInstant(parts[0])
	if err != nil {
		return nil, fmt.Errorf("interval start: %w", err)
	}
	end, err := parseInstant(parts[1])
	if err != nil {
		return nil, fmt.Errorf("interval end: %w", err)
	}
	period, err := parsePeriod(parts[2])
	if err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, fmt.Errorf("interval end %s before start %s", parts[1], parts[0])
	}

	if maxWindow > 0 && end.Sub(start) > maxWindow {
		start = end.Add(-maxWindow)
	}

	var out []time.Time
	for ts := start; !ts.After(end); ts = ts.Add(period) {
		out = append(out, ts)
	}
	return out, nil
}

// parseInstant accepts RFC 3339 instants and bare dates.
func parseInstant(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts.UTC(), nil
	}
	if ts, err := time.Parse("2006-01-02", s); err == nil {
		return ts.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unparseable instant %q", s)
}

// parsePeriod parses an ISO-8601 duration of the form P[nD][T[nH][nM][nS]].
// Calendar periods (years, months) are not supported; upstream catalogs use
// day-or-finer steps.
func parsePeriod(s string) (time.Duration, error) {
	orig := s
	if !strings.HasPrefix(s, "P") {
		return 0, fmt.Errorf("malformed period %q", orig)
	}
	s = s[1:]

	datePart := s
	timePart := ""
	if i := strings.Index(s, "T"); i >= 0 {
		datePart, timePart = s[:i], s[i+1:]
	}

	var total time.Duration
	parseUnits := func(part string, units map[byte]time.Duration) error {
		num := ""
		for i := 0; i < len(part); i++ {
			c := part[i]
			if c >= '0' && c <= '9' || c == '.' {
				num += string(c)
				continue
			}
			unit, ok := units[c]
			if !ok || num == "" {
				return fmt.Errorf("malformed period %q", orig)
			}
			val, err := strconv.ParseFloat(num, 64)
			if err != nil {
				return fmt.Errorf("malformed period %q", orig)
			}
			total += time.Duration(val * float64(unit))
			num = ""
		}
		if num != "" {
			return fmt.Errorf("malformed period %q", orig)
		}
		return nil
	}

	if err := parseUnits(datePart, map[byte]time.Duration{'D': 24 * time.Hour, 'W': 7 * 24 * time.Hour}); err != nil {
		return 0, err
	}
	if err := parseUnits(timePart, map[byte]time.Duration{'H': time.Hour, 'M': time.Minute, 'S': time.Second}); err != nil {
		return 0, err
	}

	if total <= 0 {
		return 0, fmt.Errorf("non-positive period %q", orig)
	}
	return total, nil
}

// FallbackTimes synthesizes the last count UTC midnights (newest last) for
// use when the upstream catalog is unreachable or unparseable. Satellite
// composites usually lag, so "today" is excluded.
func FallbackTimes(now time.Time, count int) []time.Time {
	now = now.UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	out := make([]time.Time, 0, count)
	for i := count; i >= 1; i-- {
		out = append(out, midnight.AddDate(0, 0, -i))
	}
	return out
}
