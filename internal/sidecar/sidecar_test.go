package sidecar_test

import (
	"testing"
	"time"

	"ferry/internal/sidecar"
)

const fullDocument = `{
  "title": "IMG_2031.jpg",
  "description": "Sunset over the bay",
  "imageViews": "12",
  "creationTime": {"timestamp": "1600000000", "formatted": "Sep 13, 2020"},
  "photoTakenTime": {"timestamp": "1565000000", "formatted": "Aug 5, 2019"},
  "geoData": {"latitude": 21.3069, "longitude": -157.8583, "altitude": 3.2, "latitudeSpan": 0, "longitudeSpan": 0},
  "geoDataExif": {"latitude": 0, "longitude": 0, "altitude": 0},
  "people": [{"name": "Ada"}, {"name": " "}],
  "albums": [{"name": "Hawaii"}],
  "url": "https://photos.google.com/photo/xyz",
  "googlePhotosOrigin": {"mobileUpload": {"deviceType": "IOS_PHONE"}}
}`

func TestParseFullDocument(t *testing.T) {
	meta, err := sidecar.Parse([]byte(fullDocument))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if meta.Title != "IMG_2031.jpg" || meta.Description != "Sunset over the bay" {
		t.Fatalf("unexpected title/description: %#v", meta)
	}
	want := time.Unix(1565000000, 0).UTC()
	if meta.TakenAt == nil || !meta.TakenAt.Equal(want) {
		t.Fatalf("expected taken time %v, got %v", want, meta.TakenAt)
	}
	if meta.Latitude == nil || *meta.Latitude != 21.3069 {
		t.Fatalf("expected zeroed exif geo to defer to geoData: %#v", meta)
	}
	if len(meta.People) != 1 || meta.People[0] != "Ada" {
		t.Fatalf("blank people entries should be dropped: %#v", meta.People)
	}
	if len(meta.AlbumHints) != 1 || meta.AlbumHints[0] != "Hawaii" {
		t.Fatalf("unexpected album hints: %#v", meta.AlbumHints)
	}
}

func TestParseMinimalDocument(t *testing.T) {
	meta, err := sidecar.Parse([]byte(`{"title": "clip.mp4"}`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if meta.TakenAt != nil || meta.Latitude != nil || len(meta.People) != 0 {
		t.Fatalf("missing fields should default to zero values: %#v", meta)
	}
}

func TestParseFallsBackToCreationTime(t *testing.T) {
	meta, err := sidecar.Parse([]byte(`{"creationTime": {"timestamp": "1600000000"}}`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	want := time.Unix(1600000000, 0).UTC()
	if meta.TakenAt == nil || !meta.TakenAt.Equal(want) {
		t.Fatalf("expected creation time fallback, got %v", meta.TakenAt)
	}
}

func TestParseIgnoresUnknownFields(t *testing.T) {
	doc := `{"title": "a.jpg", "someFutureField": {"nested": [1,2,3]}}`
	meta, err := sidecar.Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if meta.Title != "a.jpg" {
		t.Fatalf("unexpected title: %q", meta.Title)
	}
}

func TestParseRejectsMalformedJSON(t *testing.T) {
	if _, err := sidecar.Parse([]byte(`{"title": `)); err == nil {
		t.Fatal("expected error for malformed document")
	}
}

func TestSidecarNaming(t *testing.T) {
	if !sidecar.IsSidecar("Google Photos/Hawaii/IMG_1.jpg.supplemental-metadata.json") {
		t.Fatal("expected sidecar detection")
	}
	if sidecar.IsSidecar("Google Photos/Hawaii/IMG_1.jpg") {
		t.Fatal("media file misdetected as sidecar")
	}
	// Takeout truncates long sidecar names; the suffix may be shortened.
	if !sidecar.IsSidecar("x/VERY_LONG_NAME.jpg.supplemental-metadata(1).json") {
		t.Fatal("expected truncated variant detection")
	}

	got := sidecar.MediaFor("x/IMG_1.jpg.supplemental-metadata.json")
	if got != "x/IMG_1.jpg" {
		t.Fatalf("MediaFor = %q", got)
	}
}
