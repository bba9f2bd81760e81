package outlets

import (
	"fmt"
	"strings"
)

// locationSeparator joins the base and sub parts of a location name.
const locationSeparator = "-"

// LocationID identifies a location (project, outlet, turbine) within an office.
type LocationID struct {
	OfficeID string `json:"office-id"`
	Name     string `json:"name"`
}

// NewLocationID builds a location id.
func NewLocationID(officeID, name string) LocationID {
	return LocationID{OfficeID: officeID, Name: name}
}

// IsZero reports whether both parts are empty.
func (id LocationID) IsZero() bool {
	return id.OfficeID == "" && id.Name == ""
}

// String renders the id as office/name.
func (id LocationID) String() string {
	return id.OfficeID + "/" + id.Name
}

// Less orders ids by office then name, the storage key order.
func (id LocationID) Less(other LocationID) bool {
	if id.OfficeID != other.OfficeID {
		return id.OfficeID < other.OfficeID
	}
	return id.Name < other.Name
}

// Validate checks the id parts, including the base-sub name encoding.
func (id LocationID) Validate() error {
	if strings.TrimSpace(id.OfficeID) == "" {
		return NewValidationError("office_id", "required")
	}
	if _, _, err := SplitLocationName(id.Name); err != nil {
		return err
	}
	return nil
}

// SplitLocationName splits a location name into its base and sub parts.
//
// The split happens at the first separator, so "Dam-Gate-1" yields base "Dam"
// and sub "Gate-1". A name without a separator has an empty sub part. Names
// with an empty base or an empty sub ("-Gate", "Dam-") are rejected because
// they cannot be rebuilt from their stored parts.
func SplitLocationName(name string) (base, sub string, err error) {
	if strings.TrimSpace(name) == "" {
		return "", "", NewValidationError("name", "required")
	}
	idx := strings.Index(name, locationSeparator)
	if idx < 0 {
		return name, "", nil
	}
	base = name[:idx]
	sub = name[idx+len(locationSeparator):]
	if base == "" {
		return "", "", NewValidationError("name", fmt.Sprintf("%q has an empty base location", name))
	}
	if sub == "" {
		return "", "", NewValidationError("name", fmt.Sprintf("%q has an empty sub location", name))
	}
	return base, sub, nil
}

// JoinLocationName rebuilds a location name from its stored parts.
func JoinLocationName(base, sub string) string {
	if sub == "" {
		return base
	}
	return base + locationSeparator + sub
}
