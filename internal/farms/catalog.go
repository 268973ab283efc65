package farms

import (
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/agnivade/levenshtein"
)

const earthRadiusKm = 6371

// Catalog owns the authoritative in-memory farm collection. Load
// replaces it wholesale; every view method returns a fresh slice, so a
// reader holding a result cannot observe a half-applied reload.
type Catalog struct {
	mu    sync.RWMutex
	farms []Farm
}

func NewCatalog() *Catalog { return &Catalog{} }

// Load replaces the collection. A fresh load always supersedes prior
// state; there is no incremental merge.
func (c *Catalog) Load(farms []Farm) {
	snapshot := make([]Farm, len(farms))
	copy(snapshot, farms)
	c.mu.Lock()
	c.farms = snapshot
	c.mu.Unlock()
}

// All returns the full collection in original order.
func (c *Catalog) All() []Farm {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Farm, len(c.farms))
	copy(out, c.farms)
	return out
}

// Len returns the collection size.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.farms)
}

// Get returns the farm with the given id, or nil.
func (c *Catalog) Get(id string) *Farm {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for i := range c.farms {
		if c.farms[i].ID == id {
			f := c.farms[i]
			return &f
		}
	}
	return nil
}

// Search matches text case-insensitively against name, address,
// postcode, type display name and operators. An empty query returns the
// full collection. Order is the original collection order.
func (c *Catalog) Search(query string) []Farm {
	all := c.All()
	term := strings.ToLower(strings.TrimSpace(query))
	if term == "" {
		return all
	}
	out := make([]Farm, 0, len(all))
	for _, f := range all {
		if farmMatches(f, term) {
			out = append(out, f)
		}
	}
	return out
}

func farmMatches(f Farm, term string) bool {
	if strings.Contains(strings.ToLower(f.Name), term) ||
		strings.Contains(strings.ToLower(f.Address), term) ||
		strings.Contains(strings.ToLower(f.Postcode), term) ||
		strings.Contains(strings.ToLower(TypeName(f.Type)), term) {
		return true
	}
	for _, op := range f.Operators {
		if strings.Contains(strings.ToLower(op), term) {
			return true
		}
	}
	return false
}

// RadiusFilter constrains farms to a great-circle distance from center.
type RadiusFilter struct {
	Center Coords
	Km     float64
}

// FilterState is the derived view definition: filters compose as an
// intersection and apply on top of the search result.
type FilterState struct {
	Search   string
	Type     string
	Operator string
	Radius   *RadiusFilter
}

// Apply evaluates the filter state against the collection. Predicate
// order does not affect the result set.
func (c *Catalog) Apply(fs FilterState) []Farm {
	set := c.Search(fs.Search)
	if fs.Type != "" {
		set = keep(set, func(f Farm) bool { return f.Type == fs.Type })
	}
	if fs.Operator != "" {
		set = keep(set, func(f Farm) bool {
			for _, op := range f.Operators {
				if op == fs.Operator {
					return true
				}
			}
			return false
		})
	}
	if fs.Radius != nil {
		r := *fs.Radius
		set = keep(set, func(f Farm) bool {
			if !f.Mappable() {
				return false
			}
			return Distance(r.Center, Coords{Lat: *f.Lat, Lng: *f.Lng}) <= r.Km
		})
	}
	return set
}

func keep(in []Farm, pred func(Farm) bool) []Farm {
	out := make([]Farm, 0, len(in))
	for _, f := range in {
		if pred(f) {
			out = append(out, f)
		}
	}
	return out
}

// NearestFirst sorts a set by distance from center, ascending, keeping
// the incoming order for ties. Farms without coordinates are dropped.
func NearestFirst(center Coords, set []Farm) []Farm {
	out := make([]Farm, 0, len(set))
	for _, f := range set {
		if f.Mappable() {
			out = append(out, f)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		di := Distance(center, Coords{Lat: *out[i].Lat, Lng: *out[i].Lng})
		dj := Distance(center, Coords{Lat: *out[j].Lat, Lng: *out[j].Lng})
		return di < dj
	})
	return out
}

// Distance returns the great-circle distance in km (haversine).
func Distance(a, b Coords) float64 {
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(a.Lat*math.Pi/180)*math.Cos(b.Lat*math.Pi/180)*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Suggest returns the closest farm name or operator to a query that
// found nothing, or "" when nothing is close enough to be useful.
func (c *Catalog) Suggest(query string) string {
	term := strings.ToLower(strings.TrimSpace(query))
	if term == "" {
		return ""
	}
	best := ""
	bestDist := len(term)/2 + 1 // tolerate up to half the query length
	consider := func(candidate string) {
		d := levenshtein.ComputeDistance(term, strings.ToLower(candidate))
		if d < bestDist {
			bestDist = d
			best = candidate
		}
	}
	for _, f := range c.All() {
		consider(f.Name)
		for _, op := range f.Operators {
			consider(op)
		}
	}
	return best
}
