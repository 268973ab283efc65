package farms

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

//go:embed regions.toml
var regionsTOML []byte

var regionTable = mustLoadRegions()

func mustLoadRegions() map[string]string {
	var doc struct {
		Regions map[string]string `toml:"regions"`
	}
	if err := toml.Unmarshal(regionsTOML, &doc); err != nil {
		panic(fmt.Sprintf("farms: bad regions table: %v", err))
	}
	return doc.Regions
}

// RegionForPostcode buckets a postcode into a coarse region by its
// first two characters. Unknown prefixes get a generic bucket; an empty
// postcode maps to "Unknown".
func RegionForPostcode(postcode string) string {
	pc := NormalizePostcode(postcode)
	if pc == "" {
		return "Unknown"
	}
	prefix := pc
	if len(prefix) > 2 {
		prefix = prefix[:2]
	}
	prefix = strings.ToUpper(prefix)
	if name, ok := regionTable[prefix]; ok {
		return name
	}
	return prefix + " regional"
}
