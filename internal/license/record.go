package license

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"
)

// Record is a single issued license.
type Record struct {
	LicenseKey  string     `json:"license_key"`
	BuyerEmail  string     `json:"buyer_email,omitempty"`
	ProductID   string     `json:"product_id,omitempty"`
	ProductName string     `json:"product_name,omitempty"`
	Activated   bool       `json:"activated"`
	IssuedAt    time.Time  `json:"issued_at"`
	ActivatedAt *time.Time `json:"activated_at,omitempty"`
}

// UnmarshalJSON also accepts the createdAt field written by older servers.
func (r *Record) UnmarshalJSON(data []byte) error {
	type plain Record
	var aux struct {
		plain
		CreatedAt *time.Time `json:"createdAt"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*r = Record(aux.plain)
	if r.IssuedAt.IsZero() && aux.CreatedAt != nil {
		r.IssuedAt = *aux.CreatedAt
	}
	return nil
}

var collectionIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ValidCollectionID reports whether id can name a collection file.
func ValidCollectionID(id string) bool {
	return collectionIDPattern.MatchString(id) && id != "." && id != ".." && !strings.HasPrefix(id, ".")
}

var collectionIDReplacer = regexp.MustCompile(`[^a-z0-9._-]+`)

// CollectionID turns a product id into a collection id.
func CollectionID(productID string) string {
	id := collectionIDReplacer.ReplaceAllString(strings.ToLower(strings.TrimSpace(productID)), "-")
	id = strings.Trim(id, "-.")
	if id == "" {
		return "unknown"
	}
	return id
}
