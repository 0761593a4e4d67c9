package catalog

import (
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"time"

	"github.com/dimaspandu/pokecat-hunt/internal/creature"
)

// ErrCatalogEmpty reports a draw from a catalog with no templates.
var ErrCatalogEmpty = errors.New("catalog is empty")

// Template is one creature kind the spawner can draw. The struct doubles as
// the on-disk document so schema tooling can reflect over it.
type Template struct {
	ID      string `json:"id,omitempty" bson:"id,omitempty" jsonschema:"title=Template ID,description=Stable identifier; derived from the name when omitted.,pattern=^[a-z0-9-]+$"`
	Name    string `json:"name" bson:"name" jsonschema:"title=Name,description=Display name shown to players.,minLength=1,required"`
	IconURL string `json:"iconUrl" bson:"iconUrl" jsonschema:"title=Icon URL,description=Image rendered on the map and catch scene.,minLength=1,required"`
	Rarity  string `json:"rarity,omitempty" bson:"rarity,omitempty" jsonschema:"title=Catalog Rarity,description=Designer label; spawned rarity is drawn independently.,enum=common,enum=rare,enum=legendary"`
}

// Catalog is an immutable set of templates. It is safe for concurrent use.
type Catalog struct {
	templates []Template
	byID      map[string]int
	source    string
	loadedAt  time.Time
}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// Slug derives a template id from a display name.
func Slug(name string) string {
	slug := slugPattern.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
	return strings.Trim(slug, "-")
}

// New validates templates and builds a catalog.
func New(templates []Template, source string, loadedAt time.Time) (*Catalog, error) {
	c := &Catalog{
		templates: make([]Template, 0, len(templates)),
		byID:      make(map[string]int, len(templates)),
		source:    source,
		loadedAt:  loadedAt,
	}
	for i, tmpl := range templates {
		tmpl.Name = strings.TrimSpace(tmpl.Name)
		if tmpl.Name == "" {
			return nil, fmt.Errorf("%s: template %d: missing name", source, i)
		}
		if strings.TrimSpace(tmpl.IconURL) == "" {
			return nil, fmt.Errorf("%s: template %q: missing iconUrl", source, tmpl.Name)
		}
		if tmpl.Rarity != "" {
			if _, ok := creature.ParseRarity(tmpl.Rarity); !ok {
				return nil, fmt.Errorf("%s: template %q: unknown rarity %q", source, tmpl.Name, tmpl.Rarity)
			}
		}
		if tmpl.ID == "" {
			tmpl.ID = Slug(tmpl.Name)
		}
		if _, dup := c.byID[tmpl.ID]; dup {
			return nil, fmt.Errorf("%s: duplicate template id %q", source, tmpl.ID)
		}
		c.byID[tmpl.ID] = len(c.templates)
		c.templates = append(c.templates, tmpl)
	}
	return c, nil
}

// Empty returns a catalog with no templates.
func Empty() *Catalog {
	return &Catalog{byID: map[string]int{}, source: "empty"}
}

// Len reports the number of templates.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.templates)
}

// Source names where the catalog was loaded from.
func (c *Catalog) Source() string {
	if c == nil {
		return ""
	}
	return c.source
}

// LoadedAt reports when the catalog was built.
func (c *Catalog) LoadedAt() time.Time {
	if c == nil {
		return time.Time{}
	}
	return c.loadedAt
}

// Templates returns a copy of the templates in load order.
func (c *Catalog) Templates() []Template {
	if c == nil {
		return nil
	}
	return append([]Template(nil), c.templates...)
}

// Get looks up a template by id.
func (c *Catalog) Get(id string) (Template, bool) {
	if c == nil {
		return Template{}, false
	}
	idx, ok := c.byID[id]
	if !ok {
		return Template{}, false
	}
	return c.templates[idx], true
}

// Pick draws one template uniformly.
func (c *Catalog) Pick(rng *rand.Rand) (Template, error) {
	if c.Len() == 0 {
		return Template{}, ErrCatalogEmpty
	}
	return c.templates[rng.Intn(len(c.templates))], nil
}
