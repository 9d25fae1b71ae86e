package scanner

import (
	"slices"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/sydlexius/camwatch/internal/camera"
)

// Merge enriches probe results with metadata and returns records sorted
// online first, then by name using locale-aware collation, then by code.
// Codes missing from results never appear in the output.
func Merge(results []camera.ProbeResult, metadata map[camera.Code]camera.Metadata) []camera.StatusRecord {
	records := make([]camera.StatusRecord, 0, len(results))
	for _, r := range results {
		records = append(records, mergeOne(r, metadata[r.Code], hasKey(metadata, r.Code)))
	}
	SortRecords(records)
	return records
}

func hasKey(m map[camera.Code]camera.Metadata, c camera.Code) bool {
	_, ok := m[c]
	return ok
}

func mergeOne(r camera.ProbeResult, m camera.Metadata, found bool) camera.StatusRecord {
	rec := camera.StatusRecord{
		Code:        r.Code,
		Status:      camera.StatusOffline,
		Name:        camera.DefaultName(r.Code),
		Category:    camera.DefaultCategory,
		AccessLevel: camera.AccessPublic,
	}
	if r.Reachable {
		rec.Status = camera.StatusOnline
	}
	if !found {
		return rec
	}
	if m.Name != "" {
		rec.Name = m.Name
	}
	if m.Category != "" {
		rec.Category = m.Category
	}
	rec.Description = m.Description
	if m.Coordinates != nil {
		c := *m.Coordinates
		rec.Coordinates = &c
	}
	if m.AccessLevel != 0 {
		rec.AccessLevel = m.AccessLevel
	}
	return rec
}

// SortRecords orders records in place. A collator is not safe for
// concurrent use, so one is built per call.
func SortRecords(records []camera.StatusRecord) {
	col := collate.New(language.Und)
	slices.SortStableFunc(records, func(a, b camera.StatusRecord) int {
		if a.Online() != b.Online() {
			if a.Online() {
				return -1
			}
			return 1
		}
		if c := col.CompareString(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(string(a.Code), string(b.Code))
	})
}

// Visible returns the records a caller may see. Administrators see
// everything; everyone else only sees public records. The input is never
// modified.
func Visible(records []camera.StatusRecord, admin bool) []camera.StatusRecord {
	out := make([]camera.StatusRecord, 0, len(records))
	for _, r := range records {
		if admin || r.Public() {
			out = append(out, r)
		}
	}
	return out
}
