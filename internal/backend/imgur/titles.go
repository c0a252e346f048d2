package imgur

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/biketag-game/biketag-go/internal/backend"
	"github.com/biketag-game/biketag-go/internal/stringutil"
)

// Title markers.
const (
	markerTag   = "tag"
	markerProof = "proof"
	byPrefix    = " by "
	foundAt     = "found at ("
)

// tagsFromImages groups album images into tags ordered by tag number.
// Images whose titles don't start with "#<n>" are ignored.
func tagsFromImages(game string, images []image) []*backend.Tag {
	byNumber := map[int]*backend.Tag{}
	for _, img := range images {
		n, kind, ok := parseTitle(img.Title)
		if !ok {
			continue
		}
		t, exists := byNumber[n]
		if !exists {
			t = &backend.Tag{Game: game, TagNumber: n, Slug: backend.TagSlug(game, n)}
			byNumber[n] = t
		}
		player := playerFrom(img.Title)
		switch kind {
		case markerTag:
			t.MysteryImageURL = img.Link
			t.MysteryPlayer = player
			t.MysteryTime = img.Datetime
			t.Hint = img.Description
		case markerProof:
			t.FoundImageURL = img.Link
			t.FoundPlayer = player
			t.FoundTime = img.Datetime
			t.FoundLocation = locationFrom(img.Title)
			t.GPS = parseGPS(img.Description)
		}
	}

	tags := make([]*backend.Tag, 0, len(byNumber))
	for _, t := range byNumber {
		tags = append(tags, t)
	}
	slices.SortFunc(tags, func(a, b *backend.Tag) int { return a.TagNumber - b.TagNumber })
	return tags
}

// parseTitle extracts the tag number and the marker word from "#<n> <marker> ...".
func parseTitle(title string) (int, string, bool) {
	title = strings.TrimSpace(title)
	if !strings.HasPrefix(title, "#") {
		return 0, "", false
	}
	n, ok := stringutil.LeadingNumber(title)
	if !ok {
		return 0, "", false
	}
	fields := strings.Fields(title)
	if len(fields) < 2 {
		return 0, "", false
	}
	switch kind := strings.ToLower(fields[1]); kind {
	case markerTag, markerProof:
		return n, kind, true
	default:
		return 0, "", false
	}
}

func playerFrom(title string) string {
	i := strings.LastIndex(title, byPrefix)
	if i < 0 {
		return ""
	}
	return strings.TrimSpace(title[i+len(byPrefix):])
}

func locationFrom(title string) string {
	i := strings.Index(title, foundAt)
	if i < 0 {
		return ""
	}
	rest := title[i+len(foundAt):]
	j := strings.LastIndex(rest, ")")
	if j < 0 {
		return ""
	}
	return strings.TrimSpace(rest[:j])
}

func mysteryTitle(t backend.Tag) string {
	title := fmt.Sprintf("#%d %s", t.TagNumber, markerTag)
	if t.MysteryPlayer != "" {
		title += byPrefix + t.MysteryPlayer
	}
	return title
}

func foundTitle(t backend.Tag) string {
	title := fmt.Sprintf("#%d %s", t.TagNumber, markerProof)
	if t.FoundLocation != "" {
		title += " " + foundAt + t.FoundLocation + ")"
	}
	if t.FoundPlayer != "" {
		title += byPrefix + t.FoundPlayer
	}
	return title
}

// gpsDescription renders "lat,lng[,alt]"; parseGPS is its inverse.
func gpsDescription(g *backend.GPS) string {
	if g == nil {
		return ""
	}
	parts := []string{
		strconv.FormatFloat(g.Lat, 'f', -1, 64),
		strconv.FormatFloat(g.Lng, 'f', -1, 64),
	}
	if g.Alt != 0 {
		parts = append(parts, strconv.FormatFloat(g.Alt, 'f', -1, 64))
	}
	return strings.Join(parts, ",")
}

func parseGPS(s string) *backend.GPS {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) < 2 || len(parts) > 3 {
		return nil
	}
	vals := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil
		}
		vals[i] = v
	}
	g := &backend.GPS{Lat: vals[0], Lng: vals[1]}
	if len(vals) == 3 {
		g.Alt = vals[2]
	}
	return g
}
