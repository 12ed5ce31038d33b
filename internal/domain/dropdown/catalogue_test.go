package dropdown

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestDefault_Lists(t *testing.T) {
	c := Default()

	if len(c.Sex) != 3 {
		t.Errorf("expected 3 sex options, got %d", len(c.Sex))
	}
	if len(c.Ethnicity) != 16 {
		t.Errorf("expected 16 ethnicities, got %d", len(c.Ethnicity))
	}
	if len(c.Districts) != 64 {
		t.Errorf("expected 64 districts, got %d", len(c.Districts))
	}
	if got := len(c.TestNames["HEMATOLOGY"]); got != 15 {
		t.Errorf("expected 15 hematology tests, got %d", got)
	}
	if got := len(c.TestNames["LFT"]); got != 14 {
		t.Errorf("expected 14 LFT tests, got %d", got)
	}
	if got := len(c.TestNames["RFT"]); got != 9 {
		t.Errorf("expected 9 RFT tests, got %d", got)
	}
	if c.DefaultReligion() != "Islam" {
		t.Errorf("expected Islam, got %s", c.DefaultReligion())
	}
}

func TestDefault_QuotedScalarsStayStrings(t *testing.T) {
	c := Default()
	got := c.ClinicalDropdowns["LFT"]["isPatientGettingDialysis"]
	if len(got) != 2 || got[0] != "Yes" || got[1] != "No" {
		t.Errorf("unexpected dialysis options: %v", got)
	}
	oedema := c.ClinicalDropdowns["ON_EXAMINATION"]["oedema"]
	if oedema[len(oedema)-1] != "+++" {
		t.Errorf("unexpected oedema options: %v", oedema)
	}
}

func TestCatalogue_Membership(t *testing.T) {
	c := Default()
	tests := []struct {
		name string
		fn   func(string) bool
		in   string
		want bool
	}{
		{"sex", c.IsSex, "Female", true},
		{"sex lowercase", c.IsSex, "female", false},
		{"ethnicity", c.IsEthnicity, "South Asian", true},
		{"ethnicity subgroup", c.IsEthnicity, "Bangladeshi", false},
		{"religion", c.IsReligion, "Buddhism", true},
		{"religion unknown", c.IsReligion, "Jainism", false},
		{"district apostrophe", c.IsDistrict, "Cox's Bazar", true},
		{"district unknown", c.IsDistrict, "Kolkata", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.fn(tt.in); got != tt.want {
				t.Errorf("%s(%q) = %v, want %v", tt.name, tt.in, got, tt.want)
			}
		})
	}
}

func TestCatalogue_FieldLabel(t *testing.T) {
	c := Default()
	if got := c.FieldLabel("ON_EXAMINATION", "weightKg"); got != "Weight (kg)" {
		t.Errorf("got %q", got)
	}
	if got := c.FieldLabel("LFT", "inr"); got != "INR" {
		t.Errorf("got %q", got)
	}
	if got := c.FieldLabel("RFT", "unknownKey"); got != "unknownKey" {
		t.Errorf("got %q", got)
	}
}

func TestParse_Errors(t *testing.T) {
	cases := map[string]string{
		"no sex":         "religion: {options: [Islam]}",
		"no religion":    "sex: [Male]",
		"bad default":    "sex: [Male]\nreligion: {default: Jedi, options: [Islam]}",
		"nameless group": "sex: [Male]\nreligion: {options: [Islam]}\nethnicity: [{subgroups: [x]}]",
		"malformed yaml": "sex: [Male",
	}
	for name, doc := range cases {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestParse_DefaultReligionFallsBackToFirst(t *testing.T) {
	c, err := Parse([]byte("sex: [Male]\nreligion: {options: [Hinduism, Islam]}"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.DefaultReligion() != "Hinduism" {
		t.Errorf("expected Hinduism, got %s", c.DefaultReligion())
	}
}

func TestHandler_GetOptions(t *testing.T) {
	h := NewHandler(Default())
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/dropdown/options", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.GetOptions(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, k := range []string{"sex", "ethnicity", "ethnicityWithSubgroups", "religion", "district",
		"hematologyTestNames", "lftTestNames", "rftTestNames", "testMethods"} {
		if _, ok := body[k]; !ok {
			t.Errorf("missing key %s", k)
		}
	}

	var groups map[string][]string
	json.Unmarshal(body["ethnicityWithSubgroups"], &groups)
	if other, ok := groups["Other"]; !ok || other == nil {
		t.Errorf("expected empty list for Other, got %v", other)
	}
}

func TestHandler_GetSectionOptions(t *testing.T) {
	h := NewHandler(Default())
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("section")
	c.SetParamValues("lft")

	if err := h.GetSectionOptions(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got SectionOptions
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Section != "LFT" {
		t.Errorf("expected LFT, got %s", got.Section)
	}
	if len(got.Fields) != 24 {
		t.Errorf("expected 24 LFT fields, got %d", len(got.Fields))
	}
	if len(got.Dropdowns["childPughClass"]) != 3 {
		t.Errorf("expected child-pugh classes, got %v", got.Dropdowns["childPughClass"])
	}
}

func TestHandler_GetSectionOptions_Unknown(t *testing.T) {
	h := NewHandler(Default())
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("section")
	c.SetParamValues("CARDIOLOGY")

	err := h.GetSectionOptions(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}
