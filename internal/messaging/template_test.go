package messaging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/smartinvite/backend/internal/models"
)

func TestRender(t *testing.T) {
	vars := map[string]string{"name": "Ana", "event_title": "Casamento"}
	assert.Equal(t, "Olá Ana, venha ao Casamento!", Render("Olá {{name}}, venha ao {{ event_title }}!", vars))
	assert.Equal(t, "Link: ", Render("Link: {{rsvp_link}}", vars))
	assert.Equal(t, "sem placeholders", Render("sem placeholders", vars))
	assert.Equal(t, "Ana Ana", Render("{{name}} {{  name  }}", vars))
}

func TestVariables(t *testing.T) {
	got := Variables("{{ name }} {{event_title}} {{name}} {{ rsvp_link}}")
	assert.Equal(t, []string{"name", "event_title", "rsvp_link"}, got)
	assert.Empty(t, Variables("nada"))
}

func TestEventVariables(t *testing.T) {
	phone := "+5511999990000"
	e := &models.Event{
		Title:    "Aniversário",
		Location: "Salão",
		StartsAt: time.Date(2026, 11, 20, 22, 0, 0, 0, time.UTC),
	}
	g := &models.Guest{Name: "Ana", PhoneE164: &phone}

	vars := EventVariables(e, g, "https://app.test/r/tok")
	assert.Equal(t, "Aniversário", vars["event_title"])
	assert.Equal(t, "20/11/2026 19:00", vars["starts_at"])
	assert.Equal(t, "", vars["ends_at"])
	assert.Equal(t, "https://app.test/r/tok", vars["rsvp_link"])
	assert.Equal(t, "Ana", vars["name"])
	assert.Equal(t, phone, vars["phone"])
	assert.Equal(t, "", vars["email"])

	noGuest := EventVariables(e, nil, "")
	_, ok := noGuest["name"]
	assert.False(t, ok)
}
