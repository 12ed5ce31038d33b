package dropdown

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/medrec/medrec/internal/domain/clinicalcalc"
)

// Options is the payload of GET /dropdown/options.
type Options struct {
	Sex                    []string                       `json:"sex"`
	Ethnicity              []string                       `json:"ethnicity"`
	EthnicityWithSubgroups map[string][]string            `json:"ethnicityWithSubgroups"`
	Religion               []string                       `json:"religion"`
	ReligionDefault        string                         `json:"religionDefault"`
	District               []string                       `json:"district"`
	HematologyTestNames    []string                       `json:"hematologyTestNames"`
	LFTTestNames           []string                       `json:"lftTestNames"`
	RFTTestNames           []string                       `json:"rftTestNames"`
	TestMethods            []string                       `json:"testMethods"`
	ClinicalDropdowns      map[string]map[string][]string `json:"clinicalDropdowns"`
	FieldDefinitions       map[string][]Field             `json:"fieldDefinitions"`
}

// SectionOptions is the payload of GET /dropdown/clinical/:section.
type SectionOptions struct {
	Section   clinicalcalc.Section `json:"section"`
	Dropdowns map[string][]string  `json:"dropdowns"`
	Fields    []Field              `json:"fields"`
}

type Handler struct {
	cat *Catalogue
}

func NewHandler(cat *Catalogue) *Handler {
	return &Handler{cat: cat}
}

// RegisterRoutes mounts the catalogue endpoints. /dropdown/options is listed
// in the auth skipper so forms can load before login.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/dropdown/options", h.GetOptions)
	api.GET("/dropdown/clinical/:section", h.GetSectionOptions)
}

func (h *Handler) GetOptions(c echo.Context) error {
	return c.JSON(http.StatusOK, h.cat.Options())
}

func (h *Handler) GetSectionOptions(c echo.Context) error {
	section, err := clinicalcalc.ParseSection(c.Param("section"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	dropdowns := h.cat.ClinicalDropdowns[string(section)]
	if dropdowns == nil {
		dropdowns = map[string][]string{}
	}
	fields := h.cat.FieldsFor(string(section))
	if fields == nil {
		fields = []Field{}
	}
	return c.JSON(http.StatusOK, SectionOptions{Section: section, Dropdowns: dropdowns, Fields: fields})
}

// Options flattens the catalogue into the shape forms consume.
func (c *Catalogue) Options() Options {
	return Options{
		Sex:                    c.Sex,
		Ethnicity:              c.EthnicityNames(),
		EthnicityWithSubgroups: c.EthnicitySubgroups(),
		Religion:               c.Religion.Options,
		ReligionDefault:        c.Religion.Default,
		District:               c.Districts,
		HematologyTestNames:    c.TestNames[string(clinicalcalc.SectionHematology)],
		LFTTestNames:           c.TestNames[string(clinicalcalc.SectionLiverFunction)],
		RFTTestNames:           c.TestNames[string(clinicalcalc.SectionRenalFunction)],
		TestMethods:            c.TestMethods,
		ClinicalDropdowns:      c.ClinicalDropdowns,
		FieldDefinitions:       c.Fields,
	}
}
