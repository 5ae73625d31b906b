package census

import (
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	geom "github.com/twpayne/go-geom"
	"go.uber.org/zap"
)

// zctaIDFields are the attribute names that may carry the ZCTA identifier,
// in preference order. Census renamed the field across vintages.
var zctaIDFields = []string{"GEOID10", "ZCTA5CE10", "GEOID20", "ZCTA5CE20", "GEOID"}

// ReadZCTAs reads ZCTA features from a shapefile. Records with missing or
// malformed geometry are skipped and counted, not fatal.
func ReadZCTAs(shpPath string) ([]ZCTA, error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "census: open ZCTA shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	fieldIdx := fieldIndex(reader)
	idIdx := -1
	for _, name := range zctaIDFields {
		if idx, ok := fieldIdx[strings.ToLower(name)]; ok {
			idIdx = idx
			break
		}
	}
	if idIdx < 0 {
		return nil, eris.Errorf("census: no ZCTA identifier field in %s", shpPath)
	}

	var zctas []ZCTA
	var skipped int
	for reader.Next() {
		_, shape := reader.Shape()

		geoid := cleanAttribute(reader.Attribute(idIdx))
		g := shapeToMultiPolygon(shape)
		if geoid == "" || g == nil {
			skipped++
			continue
		}

		zctas = append(zctas, ZCTA{
			GEOID: geoid,
			ZIP3:  DeriveZIP3(geoid),
			Geom:  g,
		})
	}

	if skipped > 0 {
		zap.L().Warn("census: skipped ZCTA records",
			zap.String("path", shpPath),
			zap.Int("skipped", skipped),
		)
	}
	if len(zctas) == 0 {
		return nil, eris.Errorf("census: no usable ZCTA features in %s", shpPath)
	}

	return zctas, nil
}

// ReadStates reads state boundary features from a shapefile.
func ReadStates(shpPath string) ([]State, error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "census: open state shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	fieldIdx := fieldIndex(reader)
	fipsIdx, ok := fieldIdx["statefp"]
	if !ok {
		return nil, eris.Errorf("census: no STATEFP field in %s", shpPath)
	}
	codeIdx, ok := fieldIdx["stusps"]
	if !ok {
		return nil, eris.Errorf("census: no STUSPS field in %s", shpPath)
	}

	var states []State
	var skipped int
	for reader.Next() {
		_, shape := reader.Shape()

		fips := cleanAttribute(reader.Attribute(fipsIdx))
		code := cleanAttribute(reader.Attribute(codeIdx))
		g := shapeToMultiPolygon(shape)
		if fips == "" || code == "" || g == nil {
			skipped++
			continue
		}

		states = append(states, State{FIPS: fips, Code: code, Geom: g})
	}

	if skipped > 0 {
		zap.L().Warn("census: skipped state records",
			zap.String("path", shpPath),
			zap.Int("skipped", skipped),
		)
	}
	if len(states) == 0 {
		return nil, eris.Errorf("census: no usable state features in %s", shpPath)
	}

	return states, nil
}

// fieldIndex builds a lowercase field name → index map for a shapefile reader.
func fieldIndex(reader *shp.Reader) map[string]int {
	fields := reader.Fields()
	idx := make(map[string]int, len(fields))
	for i, f := range fields {
		name := strings.TrimRight(f.String(), "\x00")
		idx[strings.ToLower(name)] = i
	}
	return idx
}

// cleanAttribute strips DBF padding from an attribute value.
func cleanAttribute(val string) string {
	return strings.TrimSpace(strings.TrimRight(val, "\x00"))
}

// shapeToMultiPolygon converts a shapefile Polygon to a geom.MultiPolygon.
// Returns nil for nil, empty, or non-polygon shapes.
func shapeToMultiPolygon(shape shp.Shape) geom.T {
	p, ok := shape.(*shp.Polygon)
	if !ok || p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	mp := geom.NewMultiPolygon(geom.XY)

	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		var end int32
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		} else {
			end = int32(len(p.Points))
		}

		flat := make([]float64, 0, (end-start)*2)
		for j := start; j < end; j++ {
			flat = append(flat, p.Points[j].X, p.Points[j].Y)
		}

		ring := geom.NewLinearRingFlat(geom.XY, flat)
		poly := geom.NewPolygon(geom.XY)
		if err := poly.Push(ring); err != nil {
			zap.L().Debug("census: skipping malformed polygon ring", zap.Int32("part", i), zap.Error(err))
			continue
		}
		if err := mp.Push(poly); err != nil {
			zap.L().Debug("census: skipping malformed polygon part", zap.Int32("part", i), zap.Error(err))
			continue
		}
	}

	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}
