package filelicense

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/milalabs/licsync/internal/license"
)

// Layouts a collection file can take on disk.
const (
	LayoutMap  = "map"
	LayoutList = "list"
)

// mapFile is the keyed shape: {"count": N, "licenses": {key: record}}.
type mapFile struct {
	Count    int                       `json:"count"`
	Licenses map[string]license.Record `json:"licenses"`
}

// Decode parses either layout. Empty input is an empty collection. A bare
// object without a "licenses" field is read as a flat key to record map.
func Decode(data []byte) (license.Collection, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return license.Collection{}, nil
	}

	switch data[0] {
	case '[':
		var coll license.Collection
		if err := json.Unmarshal(data, &coll); err != nil {
			return nil, fmt.Errorf("failed to unmarshal list layout: %w", err)
		}
		if coll == nil {
			coll = license.Collection{}
		}
		return coll, nil

	case '{':
		var shape map[string]json.RawMessage
		if err := json.Unmarshal(data, &shape); err != nil {
			return nil, fmt.Errorf("failed to unmarshal map layout: %w", err)
		}
		records := map[string]license.Record{}
		if raw, ok := shape["licenses"]; ok {
			if err := json.Unmarshal(raw, &records); err != nil {
				return nil, fmt.Errorf("failed to unmarshal map layout: %w", err)
			}
		} else if _, hasCount := shape["count"]; !hasCount {
			if err := json.Unmarshal(data, &records); err != nil {
				return nil, fmt.Errorf("failed to unmarshal flat map layout: %w", err)
			}
		}
		return fromMap(records), nil
	}

	return nil, fmt.Errorf("unrecognized collection content starting with %q", data[0])
}

// Encode renders coll in the given layout as indented JSON.
func Encode(coll license.Collection, layout string) ([]byte, error) {
	var v any
	switch layout {
	case LayoutList:
		if coll == nil {
			coll = license.Collection{}
		}
		v = coll
	case LayoutMap, "":
		records := make(map[string]license.Record, len(coll))
		for _, r := range coll {
			records[r.LicenseKey] = r
		}
		v = mapFile{Count: len(records), Licenses: records}
	default:
		return nil, fmt.Errorf("unknown layout %q", layout)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal collection: %w", err)
	}
	return append(data, '\n'), nil
}

// fromMap orders records by issue time, then key, since JSON objects carry
// no order.
func fromMap(records map[string]license.Record) license.Collection {
	coll := make(license.Collection, 0, len(records))
	for key, r := range records {
		if r.LicenseKey == "" {
			r.LicenseKey = key
		}
		coll = append(coll, r)
	}
	sort.SliceStable(coll, func(i, j int) bool {
		if !coll[i].IssuedAt.Equal(coll[j].IssuedAt) {
			return coll[i].IssuedAt.Before(coll[j].IssuedAt)
		}
		return coll[i].LicenseKey < coll[j].LicenseKey
	})
	return coll
}
