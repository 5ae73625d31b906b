// Package census loads Census cartographic boundary shapefiles (ZCTA polygons
// and state boundaries) into in-memory feature tables, and downloads the state
// boundary archive when it is missing.
package census

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	geom "github.com/twpayne/go-geom"
)

// ZCTA is one ZIP Code Tabulation Area feature. ZIP3 is the first three
// characters of the GEOID.
type ZCTA struct {
	GEOID string
	ZIP3  string
	Geom  geom.T
}

// State is one state boundary feature.
type State struct {
	FIPS string // 2-digit state FIPS code
	Code string // 2-letter USPS abbreviation
	Geom geom.T
}

// requiredExts are the shapefile sidecars that must accompany the .shp.
var requiredExts = []string{".shp", ".dbf", ".shx", ".prj"}

// CheckShapefile verifies that a shapefile and its required sidecars exist.
// Returns an error listing every missing file.
func CheckShapefile(shpPath string) error {
	base := strings.TrimSuffix(shpPath, ".shp")
	var missing []string
	for _, ext := range requiredExts {
		path := base + ext
		if _, err := os.Stat(path); err != nil {
			missing = append(missing, path)
		}
	}
	if len(missing) > 0 {
		return eris.Errorf("census: missing required input files: %s", strings.Join(missing, ", "))
	}
	return nil
}

// ReadCRS reads the CRS definition (WKT) from a shapefile's .prj sidecar.
func ReadCRS(shpPath string) (string, error) {
	prjPath := strings.TrimSuffix(shpPath, ".shp") + ".prj"
	data, err := os.ReadFile(prjPath)
	if err != nil {
		return "", eris.Wrapf(err, "census: read CRS from %s", prjPath)
	}
	crs := strings.TrimSpace(string(data))
	if crs == "" {
		return "", eris.Errorf("census: empty CRS definition in %s", prjPath)
	}
	return crs, nil
}

// DeriveZIP3 truncates a ZCTA identifier to its three-digit prefix.
func DeriveZIP3(geoid string) string {
	if len(geoid) < 3 {
		return geoid
	}
	return geoid[:3]
}
