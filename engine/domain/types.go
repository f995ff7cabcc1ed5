// Package domain defines the vehicle and history types shared by the decoder,
// the estimator, the history store and the view layer.
package domain

import "strings"

// Attribute names produced by the vPIC decoder that the service reads.
const (
	AttrMake          = "Make"
	AttrModel         = "Model"
	AttrModelYear     = "Model Year"
	AttrBodyClass     = "Body Class"
	AttrEngineModel   = "Engine Model"
	AttrFuelType      = "Fuel Type - Primary"
	AttrCylinders     = "Engine Number of Cylinders"
	AttrDisplacementL = "Displacement (L)"
	AttrEngineConfig  = "Engine Configuration"
)

// NotApplicable is the sentinel value vPIC uses for attributes that do not apply.
const NotApplicable = "Not Applicable"

// VehicleRecord maps decoded attribute names to their values. Absent and
// not-applicable attributes have no key.
type VehicleRecord map[string]string

// Get returns the value for key, or "" when absent.
func (r VehicleRecord) Get(key string) string {
	if r == nil {
		return ""
	}
	return r[key]
}

// Has reports whether key carries a non-empty value.
func (r VehicleRecord) Has(key string) bool {
	return r.Get(key) != ""
}

// HistoryEntry is a remembered lookup. Identity is VIN.
type HistoryEntry struct {
	VIN   string `json:"vin"`
	Make  string `json:"make"`
	Model string `json:"model"`
	Year  string `json:"year"`
}

// NewHistoryEntry builds the entry recorded for a successful lookup of vin.
func NewHistoryEntry(vin string, rec VehicleRecord) HistoryEntry {
	return HistoryEntry{
		VIN:   vin,
		Make:  rec.Get(AttrMake),
		Model: rec.Get(AttrModel),
		Year:  rec.Get(AttrModelYear),
	}
}

// Label renders the entry the way the history drawer lists it.
func (e HistoryEntry) Label() string {
	name := strings.TrimSpace(e.Make + " " + e.Model)
	if name == "" {
		return "(" + e.VIN + ")"
	}
	return name + " (" + e.VIN + ")"
}
