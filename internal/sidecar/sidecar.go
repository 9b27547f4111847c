// Package sidecar parses the supplemental metadata JSON that Google Takeout
// writes next to each exported media file.
//
// The format grows fields across Takeout revisions, so parsing is
// forward-readable: unknown fields are ignored and missing fields default to
// zero values. Only a document that fails to parse at all is an error.
package sidecar

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"

	"ferry/internal/services"
)

// Suffix is the sidecar filename suffix Takeout appends to the media name.
const Suffix = ".supplemental-metadata.json"

// Metadata is the parsed, normalized sidecar content.
type Metadata struct {
	Title       string
	Description string
	TakenAt     *time.Time
	Latitude    *float64
	Longitude   *float64
	Altitude    *float64
	People      []string
	// AlbumHints carries collection names the export recorded for the item,
	// fed to album resolution alongside the directory name.
	AlbumHints []string
}

type rawTimestamp struct {
	Timestamp string `json:"timestamp"`
	Formatted string `json:"formatted"`
}

type rawGeo struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  float64 `json:"altitude"`
}

type rawPerson struct {
	Name string `json:"name"`
}

type rawEnrichment struct {
	Name string `json:"name"`
}

type rawDocument struct {
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	PhotoTakenTime *rawTimestamp   `json:"photoTakenTime"`
	CreationTime   *rawTimestamp   `json:"creationTime"`
	GeoData        *rawGeo         `json:"geoData"`
	GeoDataExif    *rawGeo         `json:"geoDataExif"`
	People         []rawPerson     `json:"people"`
	Albums         []rawEnrichment `json:"albums"`
}

// Parse decodes a sidecar document from bytes.
func Parse(data []byte) (*Metadata, error) {
	var raw rawDocument
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, services.Wrap(services.ErrPermanent, "sidecar", "parse", "malformed metadata document", err)
	}

	meta := &Metadata{
		Title:       strings.TrimSpace(raw.Title),
		Description: strings.TrimSpace(raw.Description),
	}

	// photoTakenTime is authoritative; creationTime is the upload time and
	// only used when the taken time is absent.
	if ts := parseEpoch(raw.PhotoTakenTime); ts != nil {
		meta.TakenAt = ts
	} else if ts := parseEpoch(raw.CreationTime); ts != nil {
		meta.TakenAt = ts
	}

	// Takeout writes zeroed geoData when location is unknown; geoDataExif
	// wins when both are populated since it came from the camera.
	if geo := pickGeo(raw.GeoDataExif, raw.GeoData); geo != nil {
		lat, lon, alt := geo.Latitude, geo.Longitude, geo.Altitude
		meta.Latitude = &lat
		meta.Longitude = &lon
		meta.Altitude = &alt
	}

	for _, person := range raw.People {
		if name := strings.TrimSpace(person.Name); name != "" {
			meta.People = append(meta.People, name)
		}
	}
	for _, album := range raw.Albums {
		if name := strings.TrimSpace(album.Name); name != "" {
			meta.AlbumHints = append(meta.AlbumHints, name)
		}
	}

	return meta, nil
}

// Load reads and parses the sidecar at path.
func Load(path string) (*Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, services.Wrap(services.ErrPermanent, "sidecar", "load", "read metadata file", err)
	}
	return Parse(data)
}

// PathFor returns the expected sidecar path for a media file. Takeout
// truncates long names, so callers should treat a missing file at this path
// as "no sidecar" rather than an error.
func PathFor(mediaPath string) string {
	return mediaPath + Suffix
}

// IsSidecar reports whether a zip entry name is a supplemental metadata file.
func IsSidecar(name string) bool {
	return strings.HasSuffix(name, ".json") && strings.Contains(name, ".supplemental-metadata")
}

// MediaFor returns the media filename a sidecar annotates.
func MediaFor(sidecarName string) string {
	trimmed := strings.TrimSuffix(sidecarName, ".json")
	if idx := strings.Index(trimmed, ".supplemental-metadata"); idx >= 0 {
		return trimmed[:idx]
	}
	return trimmed
}

func parseEpoch(ts *rawTimestamp) *time.Time {
	if ts == nil || ts.Timestamp == "" {
		return nil
	}
	seconds, err := strconv.ParseInt(ts.Timestamp, 10, 64)
	if err != nil || seconds <= 0 {
		return nil
	}
	t := time.Unix(seconds, 0).UTC()
	return &t
}

func pickGeo(exif, plain *rawGeo) *rawGeo {
	if populated(exif) {
		return exif
	}
	if populated(plain) {
		return plain
	}
	return nil
}

func populated(geo *rawGeo) bool {
	return geo != nil && (geo.Latitude != 0 || geo.Longitude != 0)
}
