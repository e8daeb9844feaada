package trips

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed data/*.yaml
var dataFS embed.FS

// ErrUnknownTrip is returned when a trip id is not in the catalog.
var ErrUnknownTrip = errors.New("unknown trip")

// topicMarker separates the topic prefix from the rest of a trip id.
const topicMarker = "_zo_trip_"

// Catalog is an immutable, eagerly loaded set of trips keyed by id.
type Catalog struct {
	trips    map[string]*Trip
	ids      []string
	keywords map[string][]string
}

// Load reads every *.yaml document under dir in fsys.
func Load(fsys fs.FS, dir string) (*Catalog, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read trip dir: %w", err)
	}

	var all []*Trip
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".yaml" {
			continue
		}
		raw, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", entry.Name(), err)
		}
		var trip Trip
		if err := yaml.Unmarshal(raw, &trip); err != nil {
			return nil, fmt.Errorf("parse %s: %w", entry.Name(), err)
		}
		if trip.TripID == "" {
			return nil, fmt.Errorf("parse %s: missing trip_id", entry.Name())
		}
		all = append(all, &trip)
	}
	return NewCatalog(all...)
}

// NewCatalog builds a catalog from trips. Duplicate ids are rejected.
func NewCatalog(all ...*Trip) (*Catalog, error) {
	c := &Catalog{
		trips:    make(map[string]*Trip, len(all)),
		keywords: make(map[string][]string, len(all)),
	}
	for _, t := range all {
		if _, dup := c.trips[t.TripID]; dup {
			return nil, fmt.Errorf("duplicate trip id %q", t.TripID)
		}
		c.trips[t.TripID] = t
		c.ids = append(c.ids, t.TripID)
		c.keywords[t.TripID] = Keywords(t)
	}
	sort.Strings(c.ids)
	return c, nil
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
	defaultErr     error
)

// Default returns the catalog embedded in the binary.
func Default() (*Catalog, error) {
	defaultOnce.Do(func() {
		defaultCatalog, defaultErr = Load(dataFS, "data")
	})
	return defaultCatalog, defaultErr
}

// Get returns the trip with id.
func (c *Catalog) Get(id string) (*Trip, error) {
	if t, ok := c.trips[id]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownTrip, id)
}

// Lookup is Get without the error, for callers that treat a miss as "no data".
func (c *Catalog) Lookup(id string) *Trip {
	return c.trips[id]
}

// IDs returns every trip id in lexicographic order.
func (c *Catalog) IDs() []string {
	return append([]string(nil), c.ids...)
}

// All returns every trip ordered by id.
func (c *Catalog) All() []*Trip {
	out := make([]*Trip, len(c.ids))
	for i, id := range c.ids {
		out[i] = c.trips[id]
	}
	return out
}

// Len returns the number of trips.
func (c *Catalog) Len() int { return len(c.ids) }

// =============================================================================
// TOPICS
// =============================================================================

// TopicForTrip returns the topic prefix of a trip id, or "" when the id does
// not carry one.
func TopicForTrip(tripID string) string {
	topic, _, found := strings.Cut(tripID, topicMarker)
	if !found {
		return ""
	}
	return topic
}

// TripForTopic maps a topic back to a trip id, ignoring case.
func (c *Catalog) TripForTopic(topic string) (string, bool) {
	if topic == "" {
		return "", false
	}
	for _, id := range c.ids {
		if t := TopicForTrip(id); t != "" && strings.EqualFold(t, topic) {
			return id, true
		}
	}
	return "", false
}

// =============================================================================
// MATCHING
// =============================================================================

// Match is a scored trip candidate.
type Match struct {
	TripID string
	Score  int
}

// NameBonus is added when the full trip name appears in the text.
const NameBonus = 5

// Score rates one trip against lowercased text. A keyword hit scores 1, or 2
// for a multi-word keyword. The full trip name adds NameBonus.
func (c *Catalog) Score(tripID, lowered string) int {
	t := c.trips[tripID]
	if t == nil {
		return 0
	}
	score := 0
	for _, kw := range c.keywords[tripID] {
		if strings.Contains(lowered, kw) {
			if len(strings.Fields(kw)) > 1 {
				score += 2
			} else {
				score++
			}
		}
	}
	if name := strings.ToLower(t.Name); name != "" && strings.Contains(lowered, name) {
		score += NameBonus
	}
	return score
}

// BestMatch returns the highest scoring trip for text. Equal scores resolve
// to the lexicographically smallest trip id. ok is false when nothing scores.
func (c *Catalog) BestMatch(text string) (Match, bool) {
	lowered := strings.ToLower(text)
	var best Match
	for _, id := range c.ids {
		score := c.Score(id, lowered)
		if score > best.Score {
			best = Match{TripID: id, Score: score}
		}
	}
	return best, best.Score > 0
}
