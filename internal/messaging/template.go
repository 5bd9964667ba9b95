package messaging

import (
	"regexp"
	"strings"
	"time"

	"github.com/smartinvite/backend/internal/models"
)

var placeholder = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// displayZone is used when formatting event times for guests.
var displayZone = time.FixedZone("UTC-3", -3*60*60)

const displayLayout = "02/01/2006 15:04"

// Render substitutes {{ name }} placeholders with vars. Placeholders without a value render
// as empty text.
func Render(tpl string, vars map[string]string) string {
	return placeholder.ReplaceAllStringFunc(tpl, func(m string) string {
		key := strings.TrimSpace(placeholder.FindStringSubmatch(m)[1])
		return vars[key]
	})
}

// Variables lists the distinct placeholder names of tpl in order of first appearance.
func Variables(tpl string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range placeholder.FindAllStringSubmatch(tpl, -1) {
		name := strings.TrimSpace(m[1])
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}

// EventVariables builds the substitution set for one event and, when given, one guest.
func EventVariables(e *models.Event, g *models.Guest, rsvpLink string) map[string]string {
	vars := map[string]string{
		"event_title":       e.Title,
		"event_description": e.Description,
		"location":          e.Location,
		"starts_at":         e.StartsAt.In(displayZone).Format(displayLayout),
		"ends_at":           "",
		"rsvp_link":         rsvpLink,
	}
	if e.EndsAt != nil {
		vars["ends_at"] = e.EndsAt.In(displayZone).Format(displayLayout)
	}
	if g != nil {
		vars["name"] = g.Name
		vars["email"] = deref(g.Email)
		vars["phone"] = deref(g.PhoneE164)
		vars["tag"] = deref(g.Tag)
	}
	return vars
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
