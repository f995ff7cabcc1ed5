package vpic

import "github.com/WessleyAI/vinwizard/engine/domain"

// Normalize flattens decoded results into a VehicleRecord, dropping null,
// empty and "Not Applicable" values. A later duplicate variable wins.
func Normalize(results []Result) domain.VehicleRecord {
	rec := make(domain.VehicleRecord, len(results))
	for _, r := range results {
		if r.Value == nil {
			continue
		}
		v := *r.Value
		if v == "" || v == domain.NotApplicable {
			continue
		}
		rec[r.Variable] = v
	}
	return rec
}
