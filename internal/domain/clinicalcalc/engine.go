// Package clinicalcalc derives secondary clinical values from raw examination
// and laboratory input: unit conversions and published scoring formulas
// (BMI, MAP, MELD, MELD-Na, Child-Pugh, TSAT, INR). Every function in this
// file is pure arithmetic; rounding to stored precision happens in the
// section processor.
package clinicalcalc

import (
	"math"
	"strings"
)

const (
	cmPerFoot                = 30.48
	cmPerInch                = 2.54
	kgPerPound               = 0.453592
	creatinineMgToUmolFactor = 88.42
	bilirubinMgToUmolFactor  = 17.1
	hbvCopiesPerIU           = 5.6
	hcvCopiesPerIU           = 4.4
	ironUmolToUgFactor       = 5.586

	idealBMIMin = 19.5
	idealBMIMax = 25.0

	meldMin = 6
	meldMax = 40
)

// -- Anthropometry --

// FeetInchToCm converts a height in feet and inches to centimetres.
func FeetInchToCm(feet, inch float64) float64 {
	return feet*cmPerFoot + inch*cmPerInch
}

// CmToFeetInch splits a height into whole feet and rounded inches. The inch
// part can round up to 12 near a foot boundary.
func CmToFeetInch(cm float64) (feet, inch float64) {
	totalInches := cm / cmPerInch
	feet = math.Floor(totalInches / 12)
	inch = roundHalfUp(math.Mod(totalInches, 12))
	return feet, inch
}

// PoundToKg converts pounds to kilograms (1 lb = 0.453592 kg).
func PoundToKg(lb float64) float64 { return lb * kgPerPound }

// KgToPound converts kilograms to pounds.
func KgToPound(kg float64) float64 { return kg / kgPerPound }

// BMI returns weight / height² with height given in centimetres.
func BMI(weightKg, heightCm float64) float64 {
	m := heightCm / 100
	return weightKg / (m * m)
}

// IdealBodyWeight returns the weight range that keeps BMI within 19.5–25.
func IdealBodyWeight(heightCm float64) (lo, hi float64) {
	m := heightCm / 100
	sq := m * m
	return idealBMIMin * sq, idealBMIMax * sq
}

// MeanArterialPressure is (SBP + 2·DBP) / 3.
func MeanArterialPressure(systolic, diastolic float64) float64 {
	return (systolic + 2*diastolic) / 3
}

// -- Renal --

// CreatinineMgToUmol converts creatinine from mg/dL to µmol/L (factor 88.42).
func CreatinineMgToUmol(mgdl float64) float64 { return mgdl * creatinineMgToUmolFactor }

// CreatinineUmolToMg converts creatinine from µmol/L to mg/dL.
func CreatinineUmolToMg(umol float64) float64 { return umol / creatinineMgToUmolFactor }

// MELD computes the Model for End-Stage Liver Disease score. Creatinine and
// bilirubin are bounded to [1, 4], INR has a floor of 1, and dialysis forces
// creatinine to 4. The result is rounded and bounded to [6, 40].
func MELD(creatinine, bilirubin, inr float64, onDialysis bool) float64 {
	creat := clamp(creatinine, 1.0, 4.0)
	if onDialysis {
		creat = 4.0
	}
	bili := clamp(bilirubin, 1.0, 4.0)
	inr = math.Max(inr, 1.0)

	score := 9.57*math.Log10(creat) + 3.78*math.Log10(bili) + 11.2*math.Log10(inr) + 6.43
	return clamp(roundHalfUp(score), meldMin, meldMax)
}

// MELDNa adjusts a MELD score for serum sodium, bounded to [125, 135] mmol/L.
func MELDNa(meld, sodium float64) float64 {
	na := clamp(sodium, 125, 135)
	score := meld + 1.59*(135-na)
	return clamp(roundHalfUp(score), meldMin, meldMax)
}

// -- Liver --

// BilirubinUmolToMg converts bilirubin from µmol/L to mg/dL (factor 17.1).
func BilirubinUmolToMg(umol float64) float64 { return umol / bilirubinMgToUmolFactor }

// BilirubinMgToUmol converts bilirubin from mg/dL to µmol/L.
func BilirubinMgToUmol(mgdl float64) float64 { return mgdl * bilirubinMgToUmolFactor }

// INR is (patient PT / control PT)^ISI. Pass isi = 1 when the reagent ISI is unknown.
func INR(patientPT, controlPT, isi float64) float64 {
	return math.Pow(patientPT/controlPT, isi)
}

// HBVCopiesToIU converts HBV DNA from copies/mL to IU/mL (5.6 copies per IU).
func HBVCopiesToIU(copies float64) float64 { return copies / hbvCopiesPerIU }

// HBVIUToCopies converts HBV DNA from IU/mL to copies/mL.
func HBVIUToCopies(iu float64) float64 { return iu * hbvCopiesPerIU }

// HCVCopiesToIU converts HCV RNA from copies/mL to IU/mL (4.4 copies per IU).
func HCVCopiesToIU(copies float64) float64 { return copies / hcvCopiesPerIU }

// HCVIUToCopies converts HCV RNA from IU/mL to copies/mL.
func HCVIUToCopies(iu float64) float64 { return iu * hcvCopiesPerIU }

// AGRatio is albumin / globulin, or 0 when globulin is 0.
func AGRatio(albumin, globulin float64) float64 {
	if globulin == 0 {
		return 0
	}
	return albumin / globulin
}

// Globulin is total protein minus albumin, both in g/dL.
func Globulin(totalProtein, albumin float64) float64 { return totalProtein - albumin }

// -- Hematology --

// TSAT is transferrin saturation in percent, or 0 when TIBC is 0.
func TSAT(serumIron, tibc float64) float64 {
	if tibc == 0 {
		return 0
	}
	return serumIron / tibc * 100
}

// IronUmolToUg converts serum iron from µmol/L to µg/dL (factor 5.586).
func IronUmolToUg(umol float64) float64 { return umol * ironUmolToUgFactor }

// IronUgToUmol converts serum iron from µg/dL to µmol/L.
func IronUgToUmol(ugdl float64) float64 { return ugdl / ironUmolToUgFactor }

// -- Child-Pugh --

type ChildPughClass string

const (
	ChildPughA ChildPughClass = "A"
	ChildPughB ChildPughClass = "B"
	ChildPughC ChildPughClass = "C"
)

// ChildPughInput holds the five Child-Pugh components. Ascites and
// Encephalopathy carry the categorical labels used on the entry forms.
type ChildPughInput struct {
	Bilirubin      float64 // mg/dL
	Albumin        float64 // g/dL
	INR            float64
	Ascites        string
	Encephalopathy string
}

// ChildPugh returns the 5–15 point score and its class.
func ChildPugh(in ChildPughInput) (int, ChildPughClass) {
	score := 0

	switch {
	case in.Bilirubin < 2:
		score++
	case in.Bilirubin <= 3:
		score += 2
	default:
		score += 3
	}

	switch {
	case in.Albumin > 3.5:
		score++
	case in.Albumin >= 2.8:
		score += 2
	default:
		score += 3
	}

	switch {
	case in.INR < 1.7:
		score++
	case in.INR <= 2.3:
		score += 2
	default:
		score += 3
	}

	score += ascitesPoints(in.Ascites)
	score += encephalopathyPoints(in.Encephalopathy)

	switch {
	case score <= 6:
		return score, ChildPughA
	case score <= 9:
		return score, ChildPughB
	default:
		return score, ChildPughC
	}
}

func ascitesPoints(label string) int {
	switch normalizeLabel(label) {
	case "absent":
		return 1
	case "mild":
		return 2
	default:
		return 3
	}
}

func encephalopathyPoints(label string) int {
	switch normalizeLabel(label) {
	case "no encephalopathy", "none":
		return 1
	case "grade i", "grade ii":
		return 2
	default:
		return 3
	}
}

func normalizeLabel(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}

// roundHalfUp rounds to the nearest integer, halves toward +Inf.
func roundHalfUp(v float64) float64 {
	return math.Floor(v + 0.5)
}
