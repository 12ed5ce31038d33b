package clinicalcalc

import (
	"math"

	"github.com/shopspring/decimal"
)

// Field names produced or consumed by the section processor. These are part
// of the stored data format and must not change.
const (
	FieldHeightCm             = "heightCm"
	FieldHeightFeet           = "heightFeet"
	FieldHeightInch           = "heightInch"
	FieldWeightKg             = "weightKg"
	FieldWeightLb             = "weightLb"
	FieldBMI                  = "bmi"
	FieldIdealBodyWeightMin   = "idealBodyWeightMin"
	FieldIdealBodyWeightMax   = "idealBodyWeightMax"
	FieldIdealBodyWeightRange = "idealBodyWeightRange"
	FieldSystolic             = "systolic"
	FieldDiastolic            = "diastolic"
	FieldMAP                  = "meanArterialPressure"

	FieldSerumIron     = "serumIron"
	FieldSerumIronUmol = "serumIronUmol"
	FieldTIBC          = "tibc"
	FieldTSAT          = "tsat"

	FieldBilirubinTotal        = "bilirubinTotal"
	FieldBilirubinTotalUmol    = "bilirubinTotalUmol"
	FieldBilirubinDirect       = "bilirubinDirect"
	FieldBilirubinDirectUmol   = "bilirubinDirectUmol"
	FieldBilirubinIndirect     = "bilirubinIndirect"
	FieldProthrombinTime       = "prothrombinTime"
	FieldControlPT             = "controlPT"
	FieldISI                   = "isi"
	FieldINR                   = "inr"
	FieldAlbumin               = "albumin"
	FieldGlobulin              = "globulin"
	FieldTotalProtein          = "totalProtein"
	FieldAGRatio               = "agRatio"
	FieldHBVDNA                = "hbvDna"
	FieldHBVDNACopies          = "hbvDnaCopies"
	FieldHCVRNA                = "hcvRna"
	FieldHCVRNACopies          = "hcvRnaCopies"
	FieldAscites               = "ascites"
	FieldHepaticEncephalopathy = "hepaticEncephalopathy"
	FieldChildPughScore        = "childPughScore"
	FieldChildPughClass        = "childPughClass"
	FieldDialysis              = "isPatientGettingDialysis"

	FieldCreatinine     = "creatinine"
	FieldCreatinineUmol = "creatinineUmol"
	FieldSodium         = "sodium"
	FieldMELD           = "meldScore"
	FieldMELDNa         = "meldNaScore"
)

// Precision is the number of decimal places each derived numeric field is
// stored with. Export and UI code read stored values verbatim.
var Precision = map[string]int32{
	FieldHeightCm:           2,
	FieldHeightFeet:         0,
	FieldHeightInch:         0,
	FieldWeightKg:           2,
	FieldWeightLb:           2,
	FieldBMI:                2,
	FieldIdealBodyWeightMin: 2,
	FieldIdealBodyWeightMax: 2,
	FieldMAP:                1,

	FieldSerumIron:     2,
	FieldSerumIronUmol: 2,
	FieldTSAT:          1,

	FieldBilirubinTotal:      2,
	FieldBilirubinTotalUmol:  2,
	FieldBilirubinDirect:     2,
	FieldBilirubinDirectUmol: 2,
	FieldBilirubinIndirect:   2,
	FieldINR:                 2,
	FieldGlobulin:            2,
	FieldAGRatio:             2,
	FieldHBVDNA:              0,
	FieldHBVDNACopies:        0,
	FieldHCVRNA:              0,
	FieldHCVRNACopies:        0,
	FieldChildPughScore:      0,

	FieldCreatinine:     2,
	FieldCreatinineUmol: 2,
	FieldMELD:           0,
	FieldMELDNa:         0,
}

// DefaultPrecision applies to derived fields missing from Precision.
const DefaultPrecision int32 = 2

// PrecisionFor returns the stored precision for field.
func PrecisionFor(field string) int32 {
	if p, ok := Precision[field]; ok {
		return p
	}
	return DefaultPrecision
}

// Round rounds v to the given number of decimal places with halves going
// toward positive infinity, so -0.125 becomes -0.12. It works on the shortest
// decimal representation of v so that values such as 2.675 round to 2.68.
// Non-finite input is returned unchanged.
func Round(v float64, decimals int32) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	f, _ := decimal.NewFromFloat(v).Shift(decimals).Add(half).Floor().Shift(-decimals).Float64()
	return f
}

var half = decimal.NewFromFloat(0.5)
