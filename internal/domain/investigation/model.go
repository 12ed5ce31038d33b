package investigation

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Panel groups the result rows of an investigation session.
type Panel string

const (
	PanelHematology Panel = "HEMATOLOGY"
	PanelLFT        Panel = "LFT"
	PanelRFT        Panel = "RFT"
)

var Panels = []Panel{PanelHematology, PanelLFT, PanelRFT}

func ParsePanel(s string) (Panel, error) {
	switch Panel(strings.ToUpper(strings.TrimSpace(s))) {
	case PanelHematology:
		return PanelHematology, nil
	case PanelLFT:
		return PanelLFT, nil
	case PanelRFT:
		return PanelRFT, nil
	}
	return "", fmt.Errorf("unknown investigation panel %q", s)
}

// Result is one test reading. Values are kept as entered, e.g. "12.5" or
// "Positive".
type Result struct {
	ID              uuid.UUID `json:"id"`
	InvestigationID uuid.UUID `json:"sessionId"`
	Panel           Panel     `json:"-"`
	Position        int       `json:"-"`
	TestName        string    `json:"testName"`
	Value           string    `json:"value"`
	Unit            string    `json:"unit,omitempty"`
	TestMethod      string    `json:"testMethod,omitempty"`
	IsFavourite     bool      `json:"isFavourite"`
	Notes           string    `json:"notes,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Investigation is a dated lab session of one patient with its results
// grouped by panel.
type Investigation struct {
	ID                uuid.UUID `json:"id"`
	PatientID         uuid.UUID `json:"patientId"`
	InvestigationDate time.Time `json:"investigationDate"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`

	Hematology []*Result `json:"hematology"`
	LFT        []*Result `json:"lft"`
	RFT        []*Result `json:"rft"`
}

// Results returns the rows of one panel.
func (inv *Investigation) Results(p Panel) []*Result {
	switch p {
	case PanelHematology:
		return inv.Hematology
	case PanelLFT:
		return inv.LFT
	case PanelRFT:
		return inv.RFT
	}
	return nil
}

// All returns every result row in panel order.
func (inv *Investigation) All() []*Result {
	out := make([]*Result, 0, len(inv.Hematology)+len(inv.LFT)+len(inv.RFT))
	out = append(out, inv.Hematology...)
	out = append(out, inv.LFT...)
	return append(out, inv.RFT...)
}

// attach files a loaded row under its panel.
func (inv *Investigation) attach(r *Result) {
	switch r.Panel {
	case PanelHematology:
		inv.Hematology = append(inv.Hematology, r)
	case PanelLFT:
		inv.LFT = append(inv.LFT, r)
	case PanelRFT:
		inv.RFT = append(inv.RFT, r)
	}
}

type ResultInput struct {
	TestName    string `json:"testName"`
	Value       string `json:"value"`
	Unit        string `json:"unit"`
	TestMethod  string `json:"testMethod"`
	IsFavourite bool   `json:"isFavourite"`
	Notes       string `json:"notes"`
}

type CreateRequest struct {
	PatientID         string        `json:"patientId"`
	InvestigationDate string        `json:"investigationDate"`
	Hematology        []ResultInput `json:"hematology"`
	LFT               []ResultInput `json:"lft"`
	RFT               []ResultInput `json:"rft"`
}
