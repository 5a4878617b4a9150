// Copyright (c) 2025 listcompare contributors.
// Licensed under the GNU Affero General Public License v3.0.

// Package kml implements the KML Parser: decoding of a KML document's
// Placemark elements into normalized, hashable rows, with a rejection
// list for placemarks whose coordinates cannot be parsed. A bad
// placemark never aborts the rest of the document.
package kml

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/weixin07/listcompare/internal/apperr"
)

var placeIDDataNames = map[string]bool{
	"PlaceID":              true,
	"placeId":              true,
	"gx_id":                true,
	"google_maps_place_id": true,
}

// NormalizedRow is the canonicalized representation of a single
// placemark, used for hashing and cache keying.
type NormalizedRow struct {
	Title          string   `json:"title"`
	Description    string   `json:"description,omitempty"`
	Longitude      float64  `json:"longitude"`
	Latitude       float64  `json:"latitude"`
	Altitude       *float64 `json:"altitude,omitempty"`
	PlaceID        string   `json:"place_id,omitempty"`
	RawCoordinates string   `json:"raw_coordinates"`
	LayerPath      string   `json:"layer_path,omitempty"`
}

// SourceHash returns the SHA-256 of row's canonical JSON serialization,
// base64-nopad encoded. This is the RawItem.source_row_hash value.
func (row NormalizedRow) SourceHash() (string, error) {
	canonical, err := json.Marshal(row)
	if err != nil {
		return "", apperr.JSON(err)
	}
	sum := sha256.Sum256(canonical)
	return base64.RawStdEncoding.EncodeToString(sum[:]), nil
}

// ParsedRow carries a successfully normalized placemark, its raw
// serialized form, and the resulting source hash.
type ParsedRow struct {
	Row           NormalizedRow
	RawJSON       string
	SourceRowHash string
}

// RejectedPlacemark records a placemark that could not be normalized,
// together with the reason and whatever raw fields were extracted.
type RejectedPlacemark struct {
	Name           string
	RawCoordinates string
	LayerPath      string
	Reason         string
}

// ParseResult is the outcome of Parse.
type ParseResult struct {
	Rows     []ParsedRow
	Rejected []RejectedPlacemark
}

// kmlDocument mirrors the subset of the KML schema this parser cares
// about: nested Folders/Documents containing Placemarks, each
// Placemark possibly carrying ExtendedData. A document may have zero,
// one, or more top-level <Document> containers, and placemarks may sit
// directly under <kml> with no container at all.
type kmlDocument struct {
	XMLName    xml.Name       `xml:"kml"`
	Documents  []kmlFolder    `xml:"Document"`
	Folders    []kmlFolder    `xml:"Folder"`
	Placemarks []kmlPlacemark `xml:"Placemark"`
}

type kmlFolder struct {
	Name       string         `xml:"name"`
	Folders    []kmlFolder    `xml:"Folder"`
	Documents  []kmlFolder    `xml:"Document"`
	Placemarks []kmlPlacemark `xml:"Placemark"`
}

type kmlPlacemark struct {
	Name         string           `xml:"name"`
	Description  string           `xml:"description"`
	Coordinates  string           `xml:"Point>coordinates"`
	ExtendedData *kmlExtendedData `xml:"ExtendedData"`
}

type kmlExtendedData struct {
	Data       []kmlData `xml:"Data"`
	SimpleData []kmlData `xml:"SchemaData>SimpleData"`
}

type kmlData struct {
	Name     string `xml:"name,attr"`
	Value    string `xml:"value"`
	CharData string `xml:",chardata"`
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// Parse decodes a KML document, returning every <Placemark> descendant
// it could normalize plus a rejection list for the rest, regardless of
// how deeply the placemark is nested under <Folder>/<Document>
// containers or whether it sits directly under <kml>. XML structure
// errors that prevent any parsing at all are returned as a KindParse
// error; per-placemark problems never propagate past the rejection
// list.
func Parse(data []byte) (*ParseResult, error) {
	var doc kmlDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, apperr.Parse("malformed KML document", err)
	}

	result := &ParseResult{}
	walkPlacemarks(doc.Placemarks, "", result)
	for _, child := range doc.Folders {
		walkFolder(child, "", result)
	}
	for _, child := range doc.Documents {
		walkFolder(child, "", result)
	}
	return result, nil
}

// walkFolder recurses into a <Folder> or <Document> container. Both
// contribute their own name to layerPath, joined with " / ".
func walkFolder(folder kmlFolder, pathPrefix string, result *ParseResult) {
	path := pathPrefix
	if folder.Name != "" {
		if path != "" {
			path = path + " / " + folder.Name
		} else {
			path = folder.Name
		}
	}

	walkPlacemarks(folder.Placemarks, path, result)

	for _, child := range folder.Folders {
		walkFolder(child, path, result)
	}
	for _, child := range folder.Documents {
		walkFolder(child, path, result)
	}
}

func walkPlacemarks(placemarks []kmlPlacemark, path string, result *ParseResult) {
	for _, placemark := range placemarks {
		row, rejected := normalizePlacemark(placemark, path)
		if rejected != nil {
			result.Rejected = append(result.Rejected, *rejected)
			continue
		}
		raw, err := json.Marshal(row)
		if err != nil {
			result.Rejected = append(result.Rejected, RejectedPlacemark{
				Name:           placemark.Name,
				RawCoordinates: placemark.Coordinates,
				LayerPath:      path,
				Reason:         "failed to serialize normalized row: " + err.Error(),
			})
			continue
		}
		hash, err := row.SourceHash()
		if err != nil {
			result.Rejected = append(result.Rejected, RejectedPlacemark{
				Name:           placemark.Name,
				RawCoordinates: placemark.Coordinates,
				LayerPath:      path,
				Reason:         "failed to hash normalized row: " + err.Error(),
			})
			continue
		}
		result.Rows = append(result.Rows, ParsedRow{Row: *row, RawJSON: string(raw), SourceRowHash: hash})
	}
}

func normalizePlacemark(placemark kmlPlacemark, layerPath string) (*NormalizedRow, *RejectedPlacemark) {
	lon, lat, alt, ok := parseCoordinates(placemark.Coordinates)
	if !ok {
		return nil, &RejectedPlacemark{
			Name:           placemark.Name,
			RawCoordinates: placemark.Coordinates,
			LayerPath:      layerPath,
			Reason:         fmt.Sprintf("%v: %q", ErrNoCoordinates, placemark.Coordinates),
		}
	}

	title := placemark.Name
	if title == "" {
		title = "Untitled placemark"
	}

	row := &NormalizedRow{
		Title:          title,
		Description:    collapseWhitespace(placemark.Description),
		Longitude:      lon,
		Latitude:       lat,
		Altitude:       alt,
		PlaceID:        extractPlaceID(placemark.ExtendedData),
		RawCoordinates: placemark.Coordinates,
		LayerPath:      layerPath,
	}
	return row, nil
}

// parseCoordinates parses the first whitespace-separated lon,lat[,alt]
// triplet, rounding lon/lat to 6 decimal places.
func parseCoordinates(raw string) (lon, lat float64, alt *float64, ok bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, 0, nil, false
	}
	first := strings.Fields(trimmed)[0]
	parts := strings.Split(first, ",")
	if len(parts) < 2 {
		return 0, 0, nil, false
	}

	lonVal, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0, 0, nil, false
	}
	latVal, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return 0, 0, nil, false
	}

	var altPtr *float64
	if len(parts) >= 3 && parts[2] != "" {
		if altVal, err := strconv.ParseFloat(parts[2], 64); err == nil {
			altPtr = &altVal
		}
	}

	return round6(lonVal), round6(latVal), altPtr, true
}

func round6(v float64) float64 {
	const factor = 1e6
	if v >= 0 {
		return float64(int64(v*factor+0.5)) / factor
	}
	return float64(int64(v*factor-0.5)) / factor
}

func extractPlaceID(extended *kmlExtendedData) string {
	if extended == nil {
		return ""
	}
	for _, data := range append(append([]kmlData{}, extended.Data...), extended.SimpleData...) {
		if !placeIDDataNames[data.Name] {
			continue
		}
		if data.Value != "" {
			return data.Value
		}
		if text := strings.TrimSpace(data.CharData); text != "" {
			return text
		}
	}
	return ""
}

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}
