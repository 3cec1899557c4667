// Package notify decides when overhead flights may be announced and
// delivers the announcements to the configured sinks.
package notify

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/unklstewy/overhead/pkg/detect"
	"github.com/unklstewy/overhead/pkg/imagery"
)

// maxListed is how many callsigns a multi-flight body names.
const maxListed = 5

// Notification is one announcement, covering one or more flights.
type Notification struct {
	ID        string            `json:"id"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	ImageURL  string            `json:"image_url,omitempty"`
	ImagePath string            `json:"image_path,omitempty"`
	Sightings []detect.Sighting `json:"sightings"`
	CreatedAt time.Time         `json:"created_at"`
}

// IDs returns the flight identifiers the notification covers.
func (n Notification) IDs() []string {
	ids := make([]string, 0, len(n.Sightings))
	for _, s := range n.Sightings {
		ids = append(ids, s.ID())
	}
	return ids
}

// Compose builds the announcement for sightings, which are expected in
// distance order. images is keyed by flight ID; the closest flight's
// image illustrates the notification.
func Compose(sightings []detect.Sighting, images map[string]imagery.Image, now time.Time) Notification {
	n := Notification{
		ID:        uuid.NewString(),
		Sightings: sightings,
		CreatedAt: now,
	}
	if len(sightings) == 0 {
		return n
	}

	closest := sightings[0]
	img := images[closest.ID()]
	n.ImageURL = img.URL
	n.ImagePath = img.Path

	if len(sightings) == 1 {
		n.Title = closest.Aircraft.DisplayName() + " overhead"
		n.Body = describe(closest, img)
		return n
	}

	n.Title = fmt.Sprintf("%d aircraft overhead", len(sightings))
	names := make([]string, 0, maxListed)
	for i, s := range sightings {
		if i == maxListed {
			break
		}
		names = append(names, s.Aircraft.DisplayName())
	}
	n.Body = strings.Join(names, ", ")
	if extra := len(sightings) - maxListed; extra > 0 {
		n.Body += fmt.Sprintf(" and %d more", extra)
	}
	return n
}

// describe renders "Boeing B738 · 11,000 ft · 4.2 km NE".
func describe(s detect.Sighting, img imagery.Image) string {
	var parts []string

	info := img.Type
	if info.Code == "" && info.Manufacturer == "" && info.Category == imagery.CategoryUnknown {
		info = imagery.LookupType(s.Aircraft.TypeCode)
		if info.Category == imagery.CategoryUnknown {
			info.Category = imagery.CategoryFromEmitter(s.Aircraft.Category)
		}
	}
	if label := info.Label(); label != "" {
		parts = append(parts, label)
	}

	if s.Aircraft.OnGround {
		parts = append(parts, "on ground")
	} else if s.Aircraft.Altitude > 0 {
		parts = append(parts, thousands(int(math.Round(s.Aircraft.Altitude)))+" ft")
	}

	parts = append(parts, fmt.Sprintf("%.1f km %s", s.DistanceKm, s.Direction))
	return strings.Join(parts, " · ")
}

// thousands formats n with comma separators.
func thousands(n int) string {
	s := strconv.Itoa(n)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
