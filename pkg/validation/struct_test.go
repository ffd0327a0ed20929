package validation

import (
	"errors"
	"strings"
	"testing"
)

type testLizard struct {
	Observation int     `yaml:"observation" validate:"gte=1"`
	Barrier     float64 `yaml:"barrier" validate:"gt=0,lte=1"`
}

type testProduct struct {
	Name        string       `yaml:"name" validate:"required"`
	Underlyings []string     `yaml:"underlyings" validate:"required,min=1,unique,dive,required"`
	StartDate   string       `yaml:"startDate" validate:"required,datetime=2006-01-02"`
	Barriers    []float64    `yaml:"barriers" validate:"required,dive,gt=0,lte=1"`
	Variant     string       `yaml:"variant" validate:"variant"`
	Lizard      []testLizard `yaml:"lizard" validate:"dive"`
}

type testConfig struct {
	Products []testProduct `yaml:"products" validate:"dive"`
}

func validProduct() testProduct {
	return testProduct{
		Name:        "ELS",
		Underlyings: []string{"HSCEI", "KOSPI200"},
		StartDate:   "2018-01-02",
		Barriers:    []float64{0.95, 0.9},
		Variant:     "lizard",
		Lizard:      []testLizard{{Observation: 1, Barrier: 0.85}},
	}
}

func TestValidateStruct(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(p *testProduct)
		contains string
	}{
		{"Valid", func(*testProduct) {}, ""},
		{"Empty variant allowed", func(p *testProduct) { p.Variant = "" }, ""},
		{"Missing name", func(p *testProduct) { p.Name = "" }, "products[0].name is required"},
		{"Duplicate underlying", func(p *testProduct) { p.Underlyings = []string{"A", "A"} }, "products[0].underlyings must not contain duplicates"},
		{"Bad start date", func(p *testProduct) { p.StartDate = "2018/01/02" }, "products[0].startDate must be a 2006-01-02 date"},
		{"Barrier above one", func(p *testProduct) { p.Barriers = []float64{0.95, 1.5} }, "products[0].barriers[1] failed lte=1"},
		{"Unknown variant", func(p *testProduct) { p.Variant = "snowball" }, "products[0].variant must be one of"},
		{"Lizard observation zero", func(p *testProduct) { p.Lizard[0].Observation = 0 }, "products[0].lizard[0].observation failed gte=1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validProduct()
			tt.mutate(&p)
			err := ValidateStruct(testConfig{Products: []testProduct{p}})

			if tt.contains == "" {
				if err != nil {
					t.Errorf("ValidateStruct() unexpected error = %v", err)
				}
				return
			}
			if !errors.Is(err, ErrInvalidConfiguration) {
				t.Fatalf("ValidateStruct() error = %v, expected %v", err, ErrInvalidConfiguration)
			}
			if !strings.Contains(err.Error(), tt.contains) {
				t.Errorf("ValidateStruct() error = %q, expected to contain %q", err.Error(), tt.contains)
			}
		})
	}
}

func TestValidateStructCollectsAllViolations(t *testing.T) {
	p := validProduct()
	p.Name = ""
	p.StartDate = ""
	err := ValidateStruct(testConfig{Products: []testProduct{p}})
	if err == nil {
		t.Fatal("ValidateStruct() expected error but got none")
	}
	if strings.Count(err.Error(), "is required") != 2 {
		t.Errorf("ValidateStruct() error = %q, expected two required violations", err.Error())
	}
}
