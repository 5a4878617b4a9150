// Copyright (c) 2025 listcompare contributors.
// Licensed under the GNU Affero General Public License v3.0.

package kml

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDoc = `<?xml version="1.0" encoding="UTF-8"?>
<kml xmlns="http://www.opengis.net/kml/2.2">
  <Document>
    <name>Root</name>
    <Folder>
      <name>Coffee Shops</name>
      <Placemark>
        <name>Blue Bottle</name>
        <description>  Great    coffee  </description>
        <ExtendedData>
          <Data name="PlaceID"><value>ChIJabc123</value></Data>
        </ExtendedData>
        <Point><coordinates>-122.419400,37.774900,10</coordinates></Point>
      </Placemark>
      <Placemark>
        <name>Unparsable</name>
        <Point><coordinates>not-a-number</coordinates></Point>
      </Placemark>
      <Placemark>
        <name>No Coordinates</name>
      </Placemark>
    </Folder>
  </Document>
</kml>`

func TestParseExtractsNormalizedRow(t *testing.T) {
	result, err := Parse([]byte(sampleDoc))
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)

	row := result.Rows[0].Row
	assert.Equal(t, "Blue Bottle", row.Title)
	assert.Equal(t, "Great coffee", row.Description)
	assert.Equal(t, -122.4194, row.Longitude)
	assert.Equal(t, 37.7749, row.Latitude)
	require.NotNil(t, row.Altitude)
	assert.Equal(t, 10.0, *row.Altitude)
	assert.Equal(t, "ChIJabc123", row.PlaceID)
	assert.Equal(t, "Root / Coffee Shops", row.LayerPath)
	assert.NotEmpty(t, result.Rows[0].SourceRowHash)
}

func TestParseRejectsUnparsableCoordinates(t *testing.T) {
	result, err := Parse([]byte(sampleDoc))
	require.NoError(t, err)
	require.Len(t, result.Rejected, 2)

	names := map[string]bool{}
	for _, r := range result.Rejected {
		names[r.Name] = true
	}
	assert.True(t, names["Unparsable"])
	assert.True(t, names["No Coordinates"])
}

func TestParseFindsPlacemarksOutsideAnyDocument(t *testing.T) {
	const doc = `<?xml version="1.0" encoding="UTF-8"?>
<kml xmlns="http://www.opengis.net/kml/2.2">
  <Placemark>
    <Point><coordinates>-73.985,40.748</coordinates></Point>
  </Placemark>
  <Folder>
    <name>Parks</name>
    <Placemark>
      <name>Central Park</name>
      <Point><coordinates>-73.965,40.782</coordinates></Point>
    </Placemark>
  </Folder>
</kml>`

	result, err := Parse([]byte(doc))
	require.NoError(t, err)
	require.Len(t, result.Rows, 2)

	byTitle := map[string]ParsedRow{}
	for _, r := range result.Rows {
		byTitle[r.Row.Title] = r
	}

	untitled, ok := byTitle["Untitled placemark"]
	require.True(t, ok)
	assert.Empty(t, untitled.Row.LayerPath)

	park, ok := byTitle["Central Park"]
	require.True(t, ok)
	assert.Equal(t, "Parks", park.Row.LayerPath)
}

func TestParseMalformedDocumentFails(t *testing.T) {
	_, err := Parse([]byte("<kml><Document>"))
	assert.Error(t, err)
}

func TestSourceHashIsDeterministic(t *testing.T) {
	row := NormalizedRow{Title: "A", Longitude: 1, Latitude: 2, RawCoordinates: "1,2"}
	h1, err := row.SourceHash()
	require.NoError(t, err)
	h2, err := row.SourceHash()
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestSourceHashChangesWithContent(t *testing.T) {
	a := NormalizedRow{Title: "A", Longitude: 1, Latitude: 2, RawCoordinates: "1,2"}
	b := NormalizedRow{Title: "B", Longitude: 1, Latitude: 2, RawCoordinates: "1,2"}
	ha, _ := a.SourceHash()
	hb, _ := b.SourceHash()
	assert.NotEqual(t, ha, hb)
}

func TestParseCoordinatesRoundsToSixDecimals(t *testing.T) {
	lon, lat, alt, ok := parseCoordinates("-122.4193999,37.77491234")
	require.True(t, ok)
	assert.Equal(t, -122.4194, lon)
	assert.Equal(t, 37.774912, lat)
	assert.Nil(t, alt)
}
