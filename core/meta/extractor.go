// Package meta reads per-file tag, duration and format data, and caches the
// results keyed by file fingerprint so unchanged files are never re-parsed.
package meta

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"go.senan.xyz/taglib"
)

// ErrUnreadableFile means the container could not be parsed. Recoverable:
// callers keep the file with filename-derived metadata instead of dropping it.
var ErrUnreadableFile = errors.New("meta: unreadable file")

var trackPrefixPattern = regexp.MustCompile(`^\s*(\d{1,2})[\s._-]+(.+)$`)

var yearPattern = regexp.MustCompile(`\b(19|20)\d{2}\b`)

// Metadata is the parsed tag and format data for one file.
type Metadata struct {
	Title       string `json:"title"`
	Artist      string `json:"artist"`
	Album       string `json:"album"`
	TrackNo     int    `json:"trackNo,omitempty"`
	Year        int    `json:"year,omitempty"`
	DurationMS  int    `json:"durationMs,omitempty"`
	BitrateKbps int    `json:"bitrateKbps,omitempty"`
	SampleRate  int    `json:"sampleRate,omitempty"`
	Format      string `json:"format,omitempty"`
	HasArtwork  bool   `json:"hasArtwork,omitempty"`
}

// Extract parses tags and audio properties from the file. A container taglib
// cannot read fails with ErrUnreadableFile.
func Extract(path string) (Metadata, error) {
	tags, err := taglib.ReadTags(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("%w: %s: %v", ErrUnreadableFile, path, err)
	}

	m := Metadata{
		Title:  firstTagValue(tags, taglib.Title, "TITLE"),
		Artist: firstTagValue(tags, taglib.Artist, "ARTIST"),
		Album:  firstTagValue(tags, taglib.Album, "ALBUM"),
		Format: formatFromPath(path),
	}
	m.TrackNo = parseNumericTag(firstTagValue(tags, taglib.TrackNumber, "TRACKNUMBER", "TRCK"))
	m.Year = parseYearTag(firstTagValue(tags, taglib.Date, "DATE", "YEAR", "ORIGINALDATE"))

	// Audio properties are best effort. A file with readable tags but
	// unreadable properties keeps whatever the tags gave us.
	if properties, err := taglib.ReadProperties(path); err == nil {
		if properties.Length > 0 {
			m.DurationMS = int(properties.Length.Milliseconds())
		}
		if properties.Bitrate > 0 {
			m.BitrateKbps = int(properties.Bitrate)
		}
		if properties.SampleRate > 0 {
			m.SampleRate = int(properties.SampleRate)
		}
		m.HasArtwork = len(properties.Images) > 0
	}

	if m.Title == "" {
		_, title := parseTrackPrefix(baseName(path))
		m.Title = title
	}

	return m, nil
}

// ExtractWithFallback never fails: if the container is unreadable the result
// is derived from the file's name and its position under root
// (root/Artist/Album/NN title.ext).
func ExtractWithFallback(root, path string) Metadata {
	m, err := Extract(path)
	if err == nil {
		fillFromPath(&m, root, path)
		return m
	}
	return fallbackMetadata(root, path)
}

// fallbackMetadata derives title, artist and album from the path alone.
func fallbackMetadata(root, path string) Metadata {
	m := Metadata{Format: formatFromPath(path)}
	trackNo, title := parseTrackPrefix(baseName(path))
	m.Title = title
	m.TrackNo = trackNo
	fillFromPath(&m, root, path)
	return m
}

// fillFromPath fills empty artist/album fields from path segments under root.
func fillFromPath(m *Metadata, root, path string) {
	rel := baseName(path)
	if r, err := filepath.Rel(root, path); err == nil {
		rel = filepath.ToSlash(r)
	}
	parts := strings.Split(rel, "/")

	if m.Artist == "" {
		if len(parts) >= 2 && strings.TrimSpace(parts[0]) != "" {
			m.Artist = strings.TrimSpace(parts[0])
		}
	}
	if m.Album == "" {
		if len(parts) >= 3 && strings.TrimSpace(parts[1]) != "" {
			m.Album = strings.TrimSpace(parts[1])
		}
	}
}

// EmbeddedImage returns the first embedded artwork image in the file, or an
// error when the file has none or cannot be read.
func EmbeddedImage(path string) ([]byte, error) {
	data, err := taglib.ReadImage(path)
	if err != nil {
		return nil, fmt.Errorf("read embedded image %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("no embedded image in %s", path)
	}
	return data, nil
}

func baseName(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// parseTrackPrefix splits a "07 - Title" style basename into number and title.
func parseTrackPrefix(base string) (int, string) {
	match := trackPrefixPattern.FindStringSubmatch(base)
	if len(match) != 3 {
		return 0, strings.TrimSpace(base)
	}
	number, err := strconv.Atoi(match[1])
	if err != nil || number <= 0 {
		return 0, strings.TrimSpace(base)
	}
	return number, strings.TrimSpace(match[2])
}

func firstTagValue(tags map[string][]string, keys ...string) string {
	for _, key := range keys {
		for _, value := range tags[key] {
			if trimmed := strings.TrimSpace(value); trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}

func parseNumericTag(value string) int {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0
	}
	// Track tags often look like "3/12".
	if idx := strings.IndexAny(trimmed, "/-"); idx > 0 {
		trimmed = trimmed[:idx]
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(trimmed))
	if err != nil || parsed <= 0 {
		return 0
	}
	return parsed
}

func parseYearTag(value string) int {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0
	}
	match := yearPattern.FindString(trimmed)
	if match == "" {
		return 0
	}
	parsed, err := strconv.Atoi(match)
	if err != nil {
		return 0
	}
	return parsed
}

func formatFromPath(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}
