package clinicalcalc

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// Section classifies a clinical entry and selects the derivation rules
// applied to its values.
type Section string

const (
	SectionExamination   Section = "ON_EXAMINATION"
	SectionHematology    Section = "HEMATOLOGY"
	SectionLiverFunction Section = "LFT"
	SectionRenalFunction Section = "RFT"
)

// Sections lists every known section in display order.
var Sections = []Section{
	SectionExamination,
	SectionHematology,
	SectionLiverFunction,
	SectionRenalFunction,
}

// ParseSection accepts the stored section code or its long name, case
// insensitively.
func ParseSection(s string) (Section, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ON_EXAMINATION", "EXAMINATION":
		return SectionExamination, nil
	case "HEMATOLOGY":
		return SectionHematology, nil
	case "LFT", "LIVER_FUNCTION":
		return SectionLiverFunction, nil
	case "RFT", "RENAL_FUNCTION":
		return SectionRenalFunction, nil
	default:
		return "", fmt.Errorf("unknown clinical section %q", s)
	}
}

func (s Section) Valid() bool {
	switch s {
	case SectionExamination, SectionHematology, SectionLiverFunction, SectionRenalFunction:
		return true
	}
	return false
}

// CrossSection carries liver function values that renal processing needs for
// MELD. Nil pointers fall back to 1.0.
type CrossSection struct {
	BilirubinTotal *float64
	INR            *float64
	OnDialysis     bool
}

// Processor applies the derivation rules of a section to a value set. It is
// stateless apart from its logger and safe for concurrent use.
type Processor struct {
	logger zerolog.Logger
}

func NewProcessor(logger zerolog.Logger) *Processor {
	return &Processor{logger: logger.With().Str("component", "clinicalcalc").Logger()}
}

// Process derives secondary values for section. The input is never
// modified; the returned set holds the input keys plus derived keys.
func (p *Processor) Process(section Section, values *ValueSet) *ValueSet {
	return p.ProcessWith(section, values, CrossSection{})
}

// ProcessWith is Process with explicit cross-section inputs for the renal
// MELD derivation. Other sections ignore cross.
//
// Values that cannot be read as numbers, and results that are not finite,
// are logged and the affected derivation is skipped; the rest still run. A
// panic inside a rule set yields an unaugmented copy of the input.
func (p *Processor) ProcessWith(section Section, values *ValueSet, cross CrossSection) (out *ValueSet) {
	var rules func(*pass)
	switch section {
	case SectionExamination:
		rules = examinationRules
	case SectionHematology:
		rules = hematologyRules
	case SectionLiverFunction:
		rules = liverRules
	case SectionRenalFunction:
		rules = func(ps *pass) { renalRules(ps, cross) }
	default:
		return values.Clone()
	}

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().
				Str("section", string(section)).
				Interface("panic", r).
				Msg("clinical derivation panicked, values stored unaugmented")
			out = values.Clone()
		}
	}()

	ps := &pass{section: section, vals: values.Clone(), logger: p.logger}
	rules(ps)
	return ps.vals
}

// pass is the working state of one ProcessWith call.
type pass struct {
	section Section
	vals    *ValueSet
	logger  zerolog.Logger
}

func (ps *pass) has(field string) bool { return ps.vals.Has(field) }

// num reads a present field as a number. Absent fields report false
// silently; present fields that do not coerce are logged.
func (ps *pass) num(field string) (float64, bool) {
	v, ok := ps.vals.Get(field)
	if !ok || !v.Present() {
		return 0, false
	}
	f, err := v.Float()
	if err != nil {
		ps.logger.Warn().
			Err(err).
			Str("section", string(ps.section)).
			Str("field", field).
			Msg("clinical value is not numeric, dependent derivations skipped")
		return 0, false
	}
	return f, true
}

// nums reads every field as a number and reports whether all of them were
// present and numeric. Each failure is logged once.
func (ps *pass) nums(fields ...string) ([]float64, bool) {
	out := make([]float64, len(fields))
	ok := true
	for _, f := range fields {
		if !ps.has(f) {
			return nil, false
		}
	}
	for i, f := range fields {
		v, good := ps.num(f)
		if !good {
			ok = false
			continue
		}
		out[i] = v
	}
	return out, ok
}

// text reads a present categorical field. Non-string values are logged.
func (ps *pass) text(field string) (string, bool) {
	v, ok := ps.vals.Get(field)
	if !ok || !v.Present() {
		return "", false
	}
	s, ok := v.Text()
	if !ok {
		ps.logger.Warn().
			Str("section", string(ps.section)).
			Str("field", field).
			Str("kind", v.Kind().String()).
			Msg("clinical value is not a label, dependent derivations skipped")
	}
	return s, ok
}

// set stores a derived number rounded to the field's precision. Non-finite
// results are logged and dropped.
func (ps *pass) set(field string, v float64) bool {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		ps.logger.Warn().
			Str("section", string(ps.section)).
			Str("field", field).
			Msg("clinical derivation produced a non-finite result")
		return false
	}
	ps.vals.SetNumber(field, Round(v, PrecisionFor(field)))
	return true
}

func (ps *pass) number(field string) float64 {
	v, _ := ps.vals.Get(field)
	f, _ := v.Float()
	return f
}

type pairState uint8

const (
	pairEmpty pairState = iota
	pairOnlyA
	pairOnlyB
	pairBoth
)

// unitPair is a field stored in two units. Whichever side is missing is
// derived from the other; when both are present neither is touched.
type unitPair struct {
	a, b string
	aToB func(float64) float64
	bToA func(float64) float64
}

func (u unitPair) state(vs *ValueSet) pairState {
	hasA, hasB := vs.Has(u.a), vs.Has(u.b)
	switch {
	case hasA && hasB:
		return pairBoth
	case hasA:
		return pairOnlyA
	case hasB:
		return pairOnlyB
	default:
		return pairEmpty
	}
}

func (u unitPair) apply(ps *pass) {
	switch u.state(ps.vals) {
	case pairOnlyA:
		if x, ok := ps.num(u.a); ok {
			ps.set(u.b, u.aToB(x))
		}
	case pairOnlyB:
		if x, ok := ps.num(u.b); ok {
			ps.set(u.a, u.bToA(x))
		}
	}
}

var (
	weightPair = unitPair{
		a: FieldWeightLb, b: FieldWeightKg,
		aToB: PoundToKg, bToA: KgToPound,
	}
	ironPair = unitPair{
		a: FieldSerumIronUmol, b: FieldSerumIron,
		aToB: IronUmolToUg, bToA: IronUgToUmol,
	}
	bilirubinTotalPair = unitPair{
		a: FieldBilirubinTotalUmol, b: FieldBilirubinTotal,
		aToB: BilirubinUmolToMg, bToA: BilirubinMgToUmol,
	}
	bilirubinDirectPair = unitPair{
		a: FieldBilirubinDirectUmol, b: FieldBilirubinDirect,
		aToB: BilirubinUmolToMg, bToA: BilirubinMgToUmol,
	}
	hbvPair = unitPair{
		a: FieldHBVDNACopies, b: FieldHBVDNA,
		aToB: HBVCopiesToIU, bToA: HBVIUToCopies,
	}
	hcvPair = unitPair{
		a: FieldHCVRNACopies, b: FieldHCVRNA,
		aToB: HCVCopiesToIU, bToA: HCVIUToCopies,
	}
	creatininePair = unitPair{
		a: FieldCreatinine, b: FieldCreatinineUmol,
		aToB: CreatinineMgToUmol, bToA: CreatinineUmolToMg,
	}
)

func examinationRules(ps *pass) {
	switch {
	case ps.has(FieldHeightFeet) && ps.has(FieldHeightInch):
		if v, ok := ps.nums(FieldHeightFeet, FieldHeightInch); ok {
			ps.set(FieldHeightCm, FeetInchToCm(v[0], v[1]))
		}
	case ps.has(FieldHeightCm):
		if cm, ok := ps.num(FieldHeightCm); ok {
			feet, inch := CmToFeetInch(cm)
			ps.set(FieldHeightFeet, feet)
			ps.set(FieldHeightInch, inch)
		}
	}

	weightPair.apply(ps)

	if v, ok := ps.nums(FieldHeightCm, FieldWeightKg); ok {
		ps.set(FieldBMI, BMI(v[1], v[0]))
	}

	if cm, ok := ps.num(FieldHeightCm); ok {
		lo, hi := IdealBodyWeight(cm)
		if ps.set(FieldIdealBodyWeightMin, lo) && ps.set(FieldIdealBodyWeightMax, hi) {
			ps.vals.SetString(FieldIdealBodyWeightRange, fmt.Sprintf("%s-%s kg",
				formatNumber(ps.number(FieldIdealBodyWeightMin)),
				formatNumber(ps.number(FieldIdealBodyWeightMax))))
		}
	}

	if v, ok := ps.nums(FieldSystolic, FieldDiastolic); ok {
		ps.set(FieldMAP, MeanArterialPressure(v[0], v[1]))
	}
}

// hematologyRules computes TSAT before the iron pair, so a serumIron filled
// in from serumIronUmol during this pass does not produce a TSAT.
func hematologyRules(ps *pass) {
	if v, ok := ps.nums(FieldSerumIron, FieldTIBC); ok {
		ps.set(FieldTSAT, TSAT(v[0], v[1]))
	}

	ironPair.apply(ps)
}

func liverRules(ps *pass) {
	bilirubinTotalPair.apply(ps)
	bilirubinDirectPair.apply(ps)

	if v, ok := ps.nums(FieldBilirubinTotal, FieldBilirubinDirect); ok {
		ps.set(FieldBilirubinIndirect, v[0]-v[1])
	}

	if v, ok := ps.nums(FieldProthrombinTime, FieldControlPT); ok {
		isi, isiOK := 1.0, true
		if ps.has(FieldISI) {
			isi, isiOK = ps.num(FieldISI)
		}
		if isiOK {
			ps.set(FieldINR, INR(v[0], v[1], isi))
		}
	}

	// A/G ratio only uses a globulin supplied by the caller; the fill below
	// runs after it.
	if v, ok := ps.nums(FieldAlbumin, FieldGlobulin); ok {
		ps.set(FieldAGRatio, AGRatio(v[0], v[1]))
	}

	if !ps.has(FieldGlobulin) {
		if v, ok := ps.nums(FieldTotalProtein, FieldAlbumin); ok {
			ps.set(FieldGlobulin, Globulin(v[0], v[1]))
		}
	}

	hbvPair.apply(ps)
	hcvPair.apply(ps)

	if !ps.has(FieldAscites) || !ps.has(FieldHepaticEncephalopathy) {
		return
	}
	v, ok := ps.nums(FieldBilirubinTotal, FieldAlbumin, FieldINR)
	if !ok {
		return
	}
	ascites, okA := ps.text(FieldAscites)
	enceph, okE := ps.text(FieldHepaticEncephalopathy)
	if !okA || !okE {
		return
	}
	score, class := ChildPugh(ChildPughInput{
		Bilirubin:      v[0],
		Albumin:        v[1],
		INR:            v[2],
		Ascites:        ascites,
		Encephalopathy: enceph,
	})
	ps.set(FieldChildPughScore, float64(score))
	ps.vals.SetString(FieldChildPughClass, string(class))
}

func renalRules(ps *pass, cross CrossSection) {
	creatininePair.apply(ps)

	creat, ok := ps.num(FieldCreatinine)
	if !ok {
		return
	}
	bili, inr := 1.0, 1.0
	if cross.BilirubinTotal != nil {
		bili = *cross.BilirubinTotal
	}
	if cross.INR != nil {
		inr = *cross.INR
	}
	meld := MELD(creat, bili, inr, cross.OnDialysis)
	if !ps.set(FieldMELD, meld) {
		return
	}

	if na, ok := ps.num(FieldSodium); ok {
		ps.set(FieldMELDNa, MELDNa(meld, na))
	}
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
