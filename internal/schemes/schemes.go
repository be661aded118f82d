// Package schemes resolves a species name to the upstream scheme's
// HierCC-API and profile-download URLs, reading a bundled schemes.json
// (design doc section 2.3, grounded on
// original_source/src/hclink/build.py: get_species_scheme).
package schemes

import (
	"embed"
	"encoding/json"

	"github.com/grailbio/base/errors"
)

//go:embed schemes.json
var bundled embed.FS

// Info is the resolved pair of URLs for one species scheme.
type Info struct {
	Scheme    string // HierCC API base URL
	Downloads string // profile list download base URL
}

type schemesFile struct {
	Schemes   map[string]string `json:"schemes"`
	Downloads map[string]string `json:"downloads"`
}

// Resolve looks up species in the bundled schemes.json.
func Resolve(species string) (Info, error) {
	data, err := bundled.ReadFile("schemes.json")
	if err != nil {
		return Info{}, errors.E(err, "schemes: reading bundled schemes.json")
	}
	var f schemesFile
	if err := json.Unmarshal(data, &f); err != nil {
		return Info{}, errors.E(err, "schemes: parsing schemes.json")
	}
	scheme, ok := f.Schemes[species]
	if !ok {
		return Info{}, errors.E(errors.NotExist, "schemes: unknown species", species)
	}
	return Info{Scheme: scheme, Downloads: f.Downloads[species]}, nil
}
