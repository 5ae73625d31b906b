package export

import (
	"bytes"
	"database/sql"
	"encoding/binary"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	geom "github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/sells-group/zip3-etl/internal/engine"
	"github.com/sells-group/zip3-etl/internal/zip3"
)

// unknownSRSID is the srs_id written for layers whose CRS has no known EPSG
// code, following the GDAL convention of starting private ids at 100000.
const unknownSRSID = 100000

// SRS describes the spatial reference system recorded in a GeoPackage.
type SRS struct {
	ID           int    // srs_id, conventionally the EPSG code
	Name         string
	Organization string // e.g. "EPSG"
	Definition   string // WKT definition
}

// GuessSRID maps a CRS WKT definition to its EPSG code. An AUTHORITY node on
// the outermost object is taken verbatim. Without one, the datum-name
// heuristic applies only to geographic definitions, since Census cartographic
// boundary files ship NAD83 .prj sidecars with no AUTHORITY; a projected CRS
// on the NAD83 datum (Albers etc.) must not collapse to the datum's
// geographic code. 0 means the code is unknown and the WKT definition is the
// only authority.
func GuessSRID(wkt string) int {
	if code := authorityCode(wkt); code > 0 {
		return code
	}
	trimmed := strings.TrimSpace(wkt)
	if !strings.HasPrefix(trimmed, "GEOGCS") && !strings.HasPrefix(trimmed, "GEOGCRS") {
		return 0
	}
	switch {
	case strings.Contains(wkt, "NAD83"), strings.Contains(wkt, "North_American_1983"):
		return 4269
	case strings.Contains(wkt, "WGS 84"), strings.Contains(wkt, "WGS_1984"), strings.Contains(wkt, "WGS84"):
		return 4326
	default:
		return 0
	}
}

// authorityCode extracts the EPSG code of the outermost AUTHORITY node, which
// in WKT1 text is the last one, or 0 when absent.
func authorityCode(wkt string) int {
	idx := strings.LastIndex(wkt, `AUTHORITY["EPSG"`)
	if idx < 0 {
		return 0
	}
	rest := wkt[idx+len(`AUTHORITY["EPSG"`):]
	open := strings.Index(rest, `"`)
	if open < 0 {
		return 0
	}
	rest = rest[open+1:]
	end := strings.Index(rest, `"`)
	if end < 0 {
		return 0
	}
	code, err := strconv.Atoi(rest[:end])
	if err != nil || code < 0 {
		return 0
	}
	return code
}

// CRS returns the form accepted by PROJ: the EPSG code when known, otherwise
// the raw WKT definition.
func (s SRS) CRS() string {
	if s.Organization == "EPSG" && s.ID > 0 {
		return fmt.Sprintf("EPSG:%d", s.ID)
	}
	return s.Definition
}

const gpkgSchema = `
CREATE TABLE gpkg_spatial_ref_sys (
	srs_name                 TEXT NOT NULL,
	srs_id                   INTEGER PRIMARY KEY,
	organization             TEXT NOT NULL,
	organization_coordsys_id INTEGER NOT NULL,
	definition               TEXT NOT NULL,
	description              TEXT
);

CREATE TABLE gpkg_contents (
	table_name  TEXT PRIMARY KEY,
	data_type   TEXT NOT NULL,
	identifier  TEXT UNIQUE,
	description TEXT DEFAULT '',
	last_change DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
	min_x       DOUBLE,
	min_y       DOUBLE,
	max_x       DOUBLE,
	max_y       DOUBLE,
	srs_id      INTEGER,
	CONSTRAINT fk_gc_r_srs_id FOREIGN KEY (srs_id) REFERENCES gpkg_spatial_ref_sys(srs_id)
);

CREATE TABLE gpkg_geometry_columns (
	table_name         TEXT NOT NULL,
	column_name        TEXT NOT NULL,
	geometry_type_name TEXT NOT NULL,
	srs_id             INTEGER NOT NULL,
	z                  TINYINT NOT NULL,
	m                  TINYINT NOT NULL,
	CONSTRAINT pk_geom_cols PRIMARY KEY (table_name, column_name),
	CONSTRAINT fk_gc_tn FOREIGN KEY (table_name) REFERENCES gpkg_contents(table_name),
	CONSTRAINT fk_gc_srs FOREIGN KEY (srs_id) REFERENCES gpkg_spatial_ref_sys(srs_id)
);
`

// WriteGeoPackage writes the dissolved layer to a fresh GeoPackage at path.
// An existing file is replaced, matching overwrite-on-export semantics of the
// shapefile writer.
func WriteGeoPackage(path, layer string, dissolved []zip3.Dissolved, srs SRS) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return eris.Wrapf(err, "export: remove stale %s", path)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return eris.Wrapf(err, "export: open %s", path)
	}
	defer db.Close()

	// GeoPackage magic: application_id "GPKG", user_version 1.3.0.
	for _, pragma := range []string{
		"PRAGMA application_id = 0x47504B47",
		"PRAGMA user_version = 10300",
	} {
		if _, err := db.Exec(pragma); err != nil {
			return eris.Wrapf(err, "export: exec %s", pragma)
		}
	}

	if _, err := db.Exec(gpkgSchema); err != nil {
		return eris.Wrap(err, "export: create gpkg metadata tables")
	}

	tx, err := db.Begin()
	if err != nil {
		return eris.Wrap(err, "export: begin gpkg tx")
	}
	defer tx.Rollback()

	// srs_id 0 and -1 are reserved for the mandatory undefined rows, so a
	// layer whose EPSG code is unknown gets a private id and remains
	// identified by its WKT definition alone.
	srsID := srs.ID
	if srsID <= 0 {
		srsID = unknownSRSID
	}

	// Required default SRS rows, then the layer's.
	srsRows := [][]any{
		{"Undefined Cartesian SRS", -1, "NONE", -1, "undefined", "undefined cartesian coordinate reference system"},
		{"Undefined Geographic SRS", 0, "NONE", 0, "undefined", "undefined geographic coordinate reference system"},
		{srs.Name, srsID, srs.Organization, srsID, srs.Definition, nil},
	}
	for _, row := range srsRows {
		if _, err := tx.Exec(
			"INSERT INTO gpkg_spatial_ref_sys (srs_name, srs_id, organization, organization_coordsys_id, definition, description) VALUES (?, ?, ?, ?, ?, ?)",
			row...,
		); err != nil {
			return eris.Wrap(err, "export: insert gpkg_spatial_ref_sys")
		}
	}

	createLayer := fmt.Sprintf(
		`CREATE TABLE %q (fid INTEGER PRIMARY KEY AUTOINCREMENT, stusps TEXT NOT NULL, zip3 TEXT NOT NULL, geom BLOB)`,
		layer,
	)
	if _, err := tx.Exec(createLayer); err != nil {
		return eris.Wrapf(err, "export: create layer table %s", layer)
	}

	insert := fmt.Sprintf(`INSERT INTO %q (stusps, zip3, geom) VALUES (?, ?, ?)`, layer)
	var hasExtent bool
	var eMinX, eMinY, eMaxX, eMaxY float64
	for _, d := range dissolved {
		g, err := d.Geom.Geom()
		if err != nil {
			return eris.Wrapf(err, "export: decode %s/%s", d.State, d.ZIP3)
		}
		blob, err := gpkgBlob(g, srsID)
		if err != nil {
			return eris.Wrapf(err, "export: encode %s/%s", d.State, d.ZIP3)
		}
		if _, err := tx.Exec(insert, d.State, d.ZIP3, blob); err != nil {
			return eris.Wrapf(err, "export: insert %s/%s", d.State, d.ZIP3)
		}

		b := g.Bounds()
		if !hasExtent {
			eMinX, eMinY, eMaxX, eMaxY = b.Min(0), b.Min(1), b.Max(0), b.Max(1)
			hasExtent = true
			continue
		}
		eMinX = min(eMinX, b.Min(0))
		eMinY = min(eMinY, b.Min(1))
		eMaxX = max(eMaxX, b.Max(0))
		eMaxY = max(eMaxY, b.Max(1))
	}

	var minX, minY, maxX, maxY any
	if hasExtent {
		minX, minY, maxX, maxY = eMinX, eMinY, eMaxX, eMaxY
	}
	if _, err := tx.Exec(
		"INSERT INTO gpkg_contents (table_name, data_type, identifier, min_x, min_y, max_x, max_y, srs_id) VALUES (?, 'features', ?, ?, ?, ?, ?, ?)",
		layer, layer, minX, minY, maxX, maxY, srsID,
	); err != nil {
		return eris.Wrap(err, "export: insert gpkg_contents")
	}
	if _, err := tx.Exec(
		"INSERT INTO gpkg_geometry_columns (table_name, column_name, geometry_type_name, srs_id, z, m) VALUES (?, 'geom', 'MULTIPOLYGON', ?, 0, 0)",
		layer, srsID,
	); err != nil {
		return eris.Wrap(err, "export: insert gpkg_geometry_columns")
	}

	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "export: commit gpkg tx")
	}

	zap.L().Info("geopackage written",
		zap.String("component", "export.gpkg"),
		zap.String("path", path),
		zap.String("layer", layer),
		zap.Int("features", len(dissolved)),
	)
	return nil
}

// gpkgBlob wraps WKB in the GeoPackage binary header: "GP" magic, version 0,
// little-endian flag with an XY envelope, srs_id, envelope, then the WKB.
func gpkgBlob(g geom.T, srsID int) ([]byte, error) {
	data, err := wkb.Marshal(g, wkb.NDR)
	if err != nil {
		return nil, err
	}

	b := g.Bounds()
	buf := new(bytes.Buffer)
	buf.WriteString("GP")
	buf.WriteByte(0)
	buf.WriteByte(0x03) // bit 0: little-endian, bits 1-3: envelope type 1 (XY)
	if err := binary.Write(buf, binary.LittleEndian, int32(srsID)); err != nil {
		return nil, err
	}
	for _, v := range []float64{b.Min(0), b.Max(0), b.Min(1), b.Max(1)} {
		if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
			return nil, err
		}
	}
	buf.Write(data)
	return buf.Bytes(), nil
}

// parseGpkgBlob strips the GeoPackage binary header and returns the WKB
// payload.
func parseGpkgBlob(blob []byte) ([]byte, error) {
	if len(blob) < 8 || blob[0] != 'G' || blob[1] != 'P' {
		return nil, eris.New("export: not a GeoPackage geometry blob")
	}
	flags := blob[3]
	envelopeSize := 0
	switch (flags >> 1) & 0x07 {
	case 0:
		envelopeSize = 0
	case 1:
		envelopeSize = 32
	case 2, 3:
		envelopeSize = 48
	case 4:
		envelopeSize = 64
	default:
		return nil, eris.New("export: invalid gpkg envelope indicator")
	}
	offset := 8 + envelopeSize
	if len(blob) < offset {
		return nil, eris.New("export: truncated gpkg geometry blob")
	}
	return blob[offset:], nil
}

// Reference describes a previously exported GeoPackage layer: the trimmed
// pipeline reads one to adopt its CRS and state set.
type Reference struct {
	Layer  string
	SRS    SRS
	States []string
}

// ReadReference opens a GeoPackage and returns the first feature layer's SRS
// and the distinct set of state codes it carries.
func ReadReference(path string) (*Reference, error) {
	// The sqlite driver creates an empty database for a missing path, so a
	// bad reference must be caught before opening.
	if _, err := os.Stat(path); err != nil {
		return nil, eris.Wrapf(err, "export: reference geopackage %s", path)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrapf(err, "export: open %s", path)
	}
	defer db.Close()

	ref := &Reference{}
	var orgID int
	err = db.QueryRow(`
		SELECT c.table_name, s.srs_id, s.srs_name, s.organization, s.organization_coordsys_id, s.definition
		FROM gpkg_contents c
		JOIN gpkg_geometry_columns g ON g.table_name = c.table_name
		JOIN gpkg_spatial_ref_sys s ON s.srs_id = g.srs_id
		WHERE c.data_type = 'features'
		ORDER BY c.table_name
		LIMIT 1`,
	).Scan(&ref.Layer, &ref.SRS.ID, &ref.SRS.Name, &ref.SRS.Organization, &orgID, &ref.SRS.Definition)
	if err != nil {
		return nil, eris.Wrapf(err, "export: read feature layer metadata from %s", path)
	}

	rows, err := db.Query(fmt.Sprintf(`SELECT DISTINCT stusps FROM %q ORDER BY stusps`, ref.Layer))
	if err != nil {
		return nil, eris.Wrapf(err, "export: read state codes from %s", ref.Layer)
	}
	defer rows.Close()
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, eris.Wrap(err, "export: scan state code")
		}
		ref.States = append(ref.States, code)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "export: iterate state codes")
	}

	return ref, nil
}

// ReadLayer loads all features of a GeoPackage layer, most usefully for
// re-running coverage analysis against a prior export.
func ReadLayer(path, layer string) ([]zip3.Dissolved, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, eris.Wrapf(err, "export: geopackage %s", path)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrapf(err, "export: open %s", path)
	}
	defer db.Close()

	rows, err := db.Query(fmt.Sprintf(`SELECT stusps, zip3, geom FROM %q ORDER BY stusps, zip3`, layer))
	if err != nil {
		return nil, eris.Wrapf(err, "export: read layer %s", layer)
	}
	defer rows.Close()

	var out []zip3.Dissolved
	for rows.Next() {
		var d zip3.Dissolved
		var blob []byte
		if err := rows.Scan(&d.State, &d.ZIP3, &blob); err != nil {
			return nil, eris.Wrap(err, "export: scan feature")
		}
		payload, err := parseGpkgBlob(blob)
		if err != nil {
			return nil, eris.Wrapf(err, "export: parse blob for %s/%s", d.State, d.ZIP3)
		}
		d.Geom, err = engine.FromWKB(payload)
		if err != nil {
			return nil, eris.Wrapf(err, "export: decode WKB for %s/%s", d.State, d.ZIP3)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "export: iterate features")
	}

	return out, nil
}
