package view

import (
	"strconv"
	"strings"

	"github.com/WessleyAI/vinwizard/engine/domain"
	"github.com/WessleyAI/vinwizard/engine/estimate"
)

// Placeholder replaces the estimate panel when year or displacement is missing.
const Placeholder = "Catalytic Converter info estimate cannot be calculated as the Model Year and Engine Size data is not available."

// Heading and disclaimer shown with a converter estimate.
const (
	EstimateTitle = "Estimated Catalytic Converter Information"
	EstimateNote  = "Note: These are rough estimates and may not reflect the exact contents of your vehicle's catalytic converter."
)

const missing = "N/A"

// attributeRows lists the table rows in display order.
var attributeRows = []struct{ label, key string }{
	{"Body Class", domain.AttrBodyClass},
	{"Engine Model", domain.AttrEngineModel},
	{"Fuel Type", domain.AttrFuelType},
	{"VIN", "VIN"},
	{"Engine Cylinders", domain.AttrCylinders},
	{"Displacement (L)", domain.AttrDisplacementL},
	{"Engine Configuration", domain.AttrEngineConfig},
}

type Row struct {
	Label string
	Value string
}

// EstimatePanel is a ConverterEstimate formatted for display.
type EstimatePanel struct {
	Title     string
	Note      string
	Platinum  string
	Palladium string
	Rhodium   string
	Value     string
}

type DrawerRow struct {
	VIN   string
	Label string
}

// Page is everything the page template needs.
type Page struct {
	Phase    string
	InputVIN string
	Loading  bool
	Error    string

	HasVehicle  bool
	Title       string
	Year        string
	Rows        []Row
	Estimate    *EstimatePanel
	Placeholder string

	DrawerOpen bool
	Drawer     []DrawerRow
}

// BuildPage derives the page model from a session snapshot and the history list.
func BuildPage(snap Snapshot, history []domain.HistoryEntry, opts estimate.Options) Page {
	p := Page{
		Phase:      snap.Phase.String(),
		InputVIN:   snap.InputVIN,
		Loading:    snap.Phase == Loading,
		DrawerOpen: snap.DrawerOpen,
	}
	if snap.Phase == Failed {
		p.Error = "Error: " + snap.Error
	}
	for _, e := range history {
		p.Drawer = append(p.Drawer, DrawerRow{VIN: e.VIN, Label: e.Label()})
	}
	if snap.Phase != Loaded || snap.Vehicle == nil {
		return p
	}

	rec := snap.Vehicle
	p.HasVehicle = true
	p.Title = strings.TrimSpace(rec.Get(domain.AttrMake) + " " + rec.Get(domain.AttrModel))
	p.Year = rec.Get(domain.AttrModelYear)
	for _, a := range attributeRows {
		v := rec.Get(a.key)
		if a.key == "VIN" {
			v = snap.SearchedVIN
		}
		if v == "" {
			v = missing
		}
		p.Rows = append(p.Rows, Row{Label: a.label, Value: v})
	}

	est, err := estimate.Estimate(estimate.InputFrom(rec), opts)
	if err != nil {
		p.Placeholder = Placeholder
		return p
	}
	p.Estimate = &EstimatePanel{
		Title:     EstimateTitle,
		Note:      EstimateNote,
		Platinum:  grams(est.Platinum),
		Palladium: grams(est.Palladium),
		Rhodium:   grams(est.Rhodium),
		Value:     "$" + strconv.FormatInt(est.Value, 10),
	}
	return p
}

// grams formats like a JavaScript number: 1 not 1.0.
func grams(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + " grams"
}
