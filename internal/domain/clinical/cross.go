package clinical

import (
	"strings"

	"github.com/medrec/medrec/internal/domain/clinicalcalc"
)

// crossSectionFrom extracts the liver function inputs renal MELD needs from
// an LFT value set. A nil set yields the processor defaults.
func crossSectionFrom(lft *clinicalcalc.ValueSet) clinicalcalc.CrossSection {
	var cross clinicalcalc.CrossSection
	if lft == nil {
		return cross
	}
	if v, ok := numberOf(lft, clinicalcalc.FieldBilirubinTotal); ok {
		cross.BilirubinTotal = &v
	}
	if v, ok := numberOf(lft, clinicalcalc.FieldINR); ok {
		cross.INR = &v
	}
	cross.OnDialysis = isYes(lft, clinicalcalc.FieldDialysis)
	return cross
}

// withOwnDialysis lets an RFT entry's own dialysis answer override the one
// carried over from liver function.
func withOwnDialysis(cross clinicalcalc.CrossSection, rft *clinicalcalc.ValueSet) clinicalcalc.CrossSection {
	if v, ok := rft.Get(clinicalcalc.FieldDialysis); ok && v.Present() {
		cross.OnDialysis = isYes(rft, clinicalcalc.FieldDialysis)
	}
	return cross
}

func numberOf(vs *clinicalcalc.ValueSet, field string) (float64, bool) {
	v, ok := vs.Get(field)
	if !ok || !v.Present() {
		return 0, false
	}
	f, err := v.Float()
	return f, err == nil
}

func isYes(vs *clinicalcalc.ValueSet, field string) bool {
	v, ok := vs.Get(field)
	if !ok {
		return false
	}
	if b, ok := v.Interface().(bool); ok {
		return b
	}
	s, ok := v.Text()
	if !ok {
		return false
	}
	switch strings.ToLower(s) {
	case "yes", "y", "true":
		return true
	}
	return false
}
