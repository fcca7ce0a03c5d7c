// Package compose renders the post texts published for entities.
package compose

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"civicrelay/internal/models"

	"golang.org/x/text/unicode/norm"
)

const (
	ellipsis   = "[...]"
	dateLayout = "02.01.2006"
)

// Budget holds the rune limits of one channel kind. Response texts longer
// than ResponseMax are cut to ResponseCut runes and get an ellipsis.
type Budget struct {
	SubjectWithImage int
	Subject          int
	ResponseMax      int
	ResponseCut      int
}

var (
	ShortFormBudget = Budget{SubjectWithImage: 224, Subject: 234, ResponseMax: 265, ResponseCut: 260}
	LongFormBudget  = Budget{SubjectWithImage: 444, Subject: 463, ResponseMax: 485, ResponseCut: 480}
)

func BudgetFor(kind models.ChannelKind) Budget {
	if kind == models.ChannelKindMastodon {
		return LongFormBudget
	}
	return ShortFormBudget
}

var statusLabels = map[models.Status]string{
	models.StatusOpen:   "offen",
	models.StatusClosed: "erledigt",
	models.StatusHold:   "in Bearbeitung",
}

type Composer struct {
	budget        Budget
	location      *time.Location
	tenantBaseURL string
	imageCredit   string
}

func New(budget Budget, location *time.Location, tenantBaseURL, imageCredit string) *Composer {
	if location == nil {
		location = time.UTC
	}
	return &Composer{
		budget:        budget,
		location:      location,
		tenantBaseURL: tenantBaseURL,
		imageCredit:   imageCredit,
	}
}

// LoadLocation resolves a tenant timezone, falling back to UTC.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(name)
}

// NewEntity renders the first post of an entity's thread.
func (c *Composer) NewEntity(e *models.Entity, withImage bool) string {
	limit := c.budget.Subject
	if withImage {
		limit = c.budget.SubjectWithImage
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s:\n\n%s\n%s#meldungDetail?id=%s",
		c.date(e.CreatedDate),
		truncate(normalize(e.Subject), limit),
		c.tenantBaseURL,
		e.ID)
	if withImage && c.imageCredit != "" {
		fmt.Fprintf(&b, "\nBild: %s", c.imageCredit)
	}
	return b.String()
}

// ResponseUpdate renders a reply quoting the newest response. It reports
// false when the entity has no responses.
func (c *Composer) ResponseUpdate(e *models.Entity) (string, bool) {
	response, ok := e.LatestResponse()
	if !ok {
		return "", false
	}

	text := normalize(response.Message)
	if runeLen(text) > c.budget.ResponseMax {
		text = truncate(text, c.budget.ResponseCut) + ellipsis
	}
	return fmt.Sprintf("%s:\n\n\"%s\"", c.date(response.MessageDate), text), true
}

// StatusUpdate renders a reply announcing the entity's current status.
func (c *Composer) StatusUpdate(e *models.Entity) string {
	label, ok := statusLabels[e.Status]
	if !ok {
		label = string(e.Status)
	}
	return fmt.Sprintf("%s:\n\nNeuer Status: %s", c.date(e.LastUpdated), label)
}

func (c *Composer) date(m models.Millis) string {
	return m.Time().In(c.location).Format(dateLayout)
}

// Portal texts mix composed and decomposed umlauts; budgets count runes of
// the composed form.
func normalize(s string) string {
	return norm.NFC.String(s)
}

func truncate(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

func runeLen(s string) int {
	return len([]rune(s))
}
