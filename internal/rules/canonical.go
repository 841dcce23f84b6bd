package rules

import "github.com/solatis/cratedigger/internal/types"

// Canonicalize returns the canonical form of id under m. Pure and total:
// unmapped ids (and any id under a nil map) are returned unchanged.
func Canonicalize(id string, m types.CanonicalMap) string {
	return m.Resolve(id)
}

// CanonicalizeRecord returns a copy of rec with its id, artists and albumId
// rewritten through m. The input record is never modified; attributes that
// carry no identifier are shared with the original.
func CanonicalizeRecord(rec types.Record, m types.CanonicalMap) types.Record {
	out := rec
	out.ID = m.Resolve(rec.ID)
	if rec.Artists != nil {
		out.Artists = make([]string, len(rec.Artists))
		for i, a := range rec.Artists {
			out.Artists[i] = m.Resolve(a)
		}
	}
	if rec.AlbumID != nil {
		album := m.Resolve(*rec.AlbumID)
		out.AlbumID = &album
	}
	return out
}

// CanonicalizeRecords canonicalizes a whole collection, preserving order.
func CanonicalizeRecords(records []types.Record, m types.CanonicalMap) []types.Record {
	out := make([]types.Record, len(records))
	for i := range records {
		out[i] = CanonicalizeRecord(records[i], m)
	}
	return out
}
