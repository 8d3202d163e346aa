package compat

import (
	"strings"
)

const (
	partSeparator       = " "
	descriptorSeparator = "; "
)

// Format renders the descriptors of one product, e.g.
// "Fiat Panda (2010) 1200cc; VW Golf GTI (2001-2005)".
// An empty slice renders as the empty string.
func Format(descriptors []Descriptor) string {
	if len(descriptors) == 0 {
		return ""
	}

	rendered := make([]string, 0, len(descriptors))
	for _, d := range descriptors {
		if s := d.String(); s != "" {
			rendered = append(rendered, s)
		}
	}
	return strings.Join(rendered, descriptorSeparator)
}

// String renders a single descriptor: brand, model, version when it differs
// from the model, year annotation and displacement annotation.
func (d Descriptor) String() string {
	parts := make([]string, 0, 5)

	if d.Brand != "" {
		parts = append(parts, d.Brand)
	}
	if d.Model != "" {
		parts = append(parts, d.Model)
	}
	if d.Version != "" && d.Version != d.Model {
		parts = append(parts, d.Version)
	}
	if years := d.years(); years != "" {
		parts = append(parts, years)
	}
	if d.Displacement != "" && d.Displacement != "0" {
		parts = append(parts, d.Displacement+"cc")
	}

	return strings.Join(parts, partSeparator)
}

func (d Descriptor) years() string {
	switch {
	case d.YearFrom != "" && d.YearTo != "":
		if d.YearFrom == d.YearTo {
			return "(" + d.YearFrom + ")"
		}
		return "(" + d.YearFrom + "-" + d.YearTo + ")"
	case d.YearFrom != "":
		return "(from " + d.YearFrom + ")"
	case d.YearTo != "":
		return "(until " + d.YearTo + ")"
	default:
		return ""
	}
}
