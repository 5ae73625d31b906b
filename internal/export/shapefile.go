// Package export writes the dissolved ZIP3 layer to its delivery formats:
// ESRI shapefile, GeoPackage, coverage workbook, and PostGIS.
package export

import (
	"os"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	geom "github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/zip3-etl/internal/zip3"
)

// WriteShapefile writes the dissolved layer to path with STUSPS and ZIP3
// attribute columns. The writer manages the .dbf and .shx sidecars; when
// crsWKT is non-empty a .prj sidecar is written alongside so consumers know
// the layer's CRS.
func WriteShapefile(path string, dissolved []zip3.Dissolved, crsWKT string) error {
	w, err := shp.Create(path, shp.POLYGON)
	if err != nil {
		return eris.Wrapf(err, "export: create shapefile %s", path)
	}
	defer w.Close()

	fields := []shp.Field{
		shp.StringField("STUSPS", 2),
		shp.StringField("ZIP3", 3),
	}
	if err := w.SetFields(fields); err != nil {
		return eris.Wrapf(err, "export: set fields for %s", path)
	}

	for row, d := range dissolved {
		g, err := d.Geom.Geom()
		if err != nil {
			return eris.Wrapf(err, "export: decode %s/%s", d.State, d.ZIP3)
		}
		poly, err := toShpPolygon(g)
		if err != nil {
			return eris.Wrapf(err, "export: convert %s/%s", d.State, d.ZIP3)
		}

		w.Write(poly)
		if err := w.WriteAttribute(row, 0, d.State); err != nil {
			return eris.Wrapf(err, "export: write STUSPS for %s/%s", d.State, d.ZIP3)
		}
		if err := w.WriteAttribute(row, 1, d.ZIP3); err != nil {
			return eris.Wrapf(err, "export: write ZIP3 for %s/%s", d.State, d.ZIP3)
		}
	}

	if crsWKT != "" {
		prj := strings.TrimSuffix(path, ".shp") + ".prj"
		if err := os.WriteFile(prj, []byte(crsWKT), 0o644); err != nil {
			return eris.Wrapf(err, "export: write %s", prj)
		}
	}

	zap.L().Info("shapefile written",
		zap.String("component", "export.shapefile"),
		zap.String("path", path),
		zap.Int("features", len(dissolved)),
	)
	return nil
}

// toShpPolygon flattens a Polygon or MultiPolygon into the shapefile polygon
// record layout: one Parts offset per ring, outer rings wound clockwise and
// holes counter-clockwise per the ESRI spec.
func toShpPolygon(g geom.T) (*shp.Polygon, error) {
	var polys []*geom.Polygon
	switch t := g.(type) {
	case *geom.Polygon:
		polys = []*geom.Polygon{t}
	case *geom.MultiPolygon:
		for i := 0; i < t.NumPolygons(); i++ {
			polys = append(polys, t.Polygon(i))
		}
	default:
		return nil, eris.Errorf("export: unsupported geometry type %T", g)
	}

	var parts []int32
	var points []shp.Point
	for _, p := range polys {
		for r := 0; r < p.NumLinearRings(); r++ {
			ring := ringPoints(p.LinearRing(r))
			if len(ring) < 4 {
				continue
			}
			outer := r == 0
			if outer == counterClockwise(ring) {
				reversePoints(ring)
			}
			parts = append(parts, int32(len(points)))
			points = append(points, ring...)
		}
	}
	if len(points) == 0 {
		return nil, eris.New("export: geometry has no usable rings")
	}

	box := shp.Box{MinX: points[0].X, MinY: points[0].Y, MaxX: points[0].X, MaxY: points[0].Y}
	for _, pt := range points[1:] {
		if pt.X < box.MinX {
			box.MinX = pt.X
		}
		if pt.X > box.MaxX {
			box.MaxX = pt.X
		}
		if pt.Y < box.MinY {
			box.MinY = pt.Y
		}
		if pt.Y > box.MaxY {
			box.MaxY = pt.Y
		}
	}

	return &shp.Polygon{
		Box:       box,
		NumParts:  int32(len(parts)),
		NumPoints: int32(len(points)),
		Parts:     parts,
		Points:    points,
	}, nil
}

// ringPoints extracts a ring's vertices, closing the ring if the source left
// it open.
func ringPoints(ring *geom.LinearRing) []shp.Point {
	coords := ring.FlatCoords()
	stride := ring.Stride()

	pts := make([]shp.Point, 0, len(coords)/stride+1)
	for i := 0; i+1 < len(coords); i += stride {
		pts = append(pts, shp.Point{X: coords[i], Y: coords[i+1]})
	}
	if len(pts) > 0 && pts[0] != pts[len(pts)-1] {
		pts = append(pts, pts[0])
	}
	return pts
}

// counterClockwise reports ring orientation via the shoelace sum.
func counterClockwise(pts []shp.Point) bool {
	sum := 0.0
	for i := 0; i+1 < len(pts); i++ {
		sum += (pts[i+1].X - pts[i].X) * (pts[i+1].Y + pts[i].Y)
	}
	return sum < 0
}

func reversePoints(pts []shp.Point) {
	for i, j := 0, len(pts)-1; i < j; i, j = i+1, j-1 {
		pts[i], pts[j] = pts[j], pts[i]
	}
}
