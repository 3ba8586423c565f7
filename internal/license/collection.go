package license

import (
	"slices"
	"time"

	"github.com/samber/lo"
)

// Collection is an ordered set of records with unique license keys.
type Collection []Record

// Find returns the record with the given key.
func (c Collection) Find(key string) (Record, bool) {
	return lo.Find(c, func(r Record) bool { return r.LicenseKey == key })
}

// Contains reports whether a record with key exists.
func (c Collection) Contains(key string) bool {
	return lo.ContainsBy(c, func(r Record) bool { return r.LicenseKey == key })
}

// Keys returns license keys in collection order.
func (c Collection) Keys() []string {
	return lo.Map(c, func(r Record, _ int) string { return r.LicenseKey })
}

// Append adds r unless its key is already present. The boolean reports
// whether r was added.
func (c Collection) Append(r Record) (Collection, bool) {
	if c.Contains(r.LicenseKey) {
		return c, false
	}
	return append(c, r), true
}

// IssuedAfter returns the records issued strictly after t. Records without
// an issue time are dropped.
func (c Collection) IssuedAfter(t time.Time) Collection {
	return lo.Filter(c, func(r Record, _ int) bool { return r.IssuedAt.After(t) })
}

// Merge returns the union of c and other by license key. Records only in
// other are appended in their order. For keys present in both, activation
// is kept if either side is activated and the earliest issue time wins.
func (c Collection) Merge(other Collection) Collection {
	out := slices.Clone(c)
	index := make(map[string]int, len(out))
	for i, r := range out {
		index[r.LicenseKey] = i
	}
	for _, theirs := range other {
		i, ok := index[theirs.LicenseKey]
		if !ok {
			index[theirs.LicenseKey] = len(out)
			out = append(out, theirs)
			continue
		}
		out[i] = mergeRecord(out[i], theirs)
	}
	return out
}

func mergeRecord(ours, theirs Record) Record {
	merged := ours
	if !theirs.IssuedAt.IsZero() && (merged.IssuedAt.IsZero() || theirs.IssuedAt.Before(merged.IssuedAt)) {
		merged.IssuedAt = theirs.IssuedAt
	}
	merged.BuyerEmail = orElse(merged.BuyerEmail, theirs.BuyerEmail)
	merged.ProductID = orElse(merged.ProductID, theirs.ProductID)
	merged.ProductName = orElse(merged.ProductName, theirs.ProductName)
	if theirs.Activated {
		merged.Activated = true
		merged.ActivatedAt = earliest(merged.ActivatedAt, theirs.ActivatedAt)
	}
	return merged
}

func earliest(a, b *time.Time) *time.Time {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case b.Before(*a):
		return b
	}
	return a
}

func orElse(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
