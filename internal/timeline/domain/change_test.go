package timeline

import (
	"errors"
	"testing"
	"time"

	outlets "reservoir-ops/internal/outlets/domain"
)

func gateChange() Change {
	return Change{
		Kind:                     KindGate,
		ProjectID:                outlets.NewLocationID("SWT", "KEYS"),
		ChangeDate:               epoch,
		DischargeComputationType: LookupType{OfficeID: "SWT", DisplayValue: "A", Active: true},
		ReasonType:               LookupType{OfficeID: "SWT", DisplayValue: "O", Active: true},
		Settings: []Setting{
			{LocationID: outlets.NewLocationID("SWT", "KEYS-TG2"), Opening: Float(2), OpeningUnits: "ft", OpeningParameter: "Opening"},
			{LocationID: outlets.NewLocationID("SWT", "KEYS-TG1"), Opening: Float(1), OpeningUnits: "ft", OpeningParameter: "Opening"},
		},
	}
}

func TestChangeValidate(t *testing.T) {
	if err := gateChange().Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	cases := map[string]func(*Change){
		"missing date":    func(c *Change) { c.ChangeDate = time.Time{} },
		"missing reason":  func(c *Change) { c.ReasonType.DisplayValue = "" },
		"missing opening": func(c *Change) { c.Settings[0].Opening = nil },
		"duplicate":       func(c *Change) { c.Settings[1].LocationID = c.Settings[0].LocationID },
		"foreign office":  func(c *Change) { c.Settings[0].LocationID.OfficeID = "NWD" },
		"elevation units": func(c *Change) { c.PoolElevation = Float(700) },
		"unknown kind":    func(c *Change) { c.Kind = "weir" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := gateChange()
			mutate(&c)
			if err := c.Validate(); !errors.Is(err, ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestChangeValidate_TurbineFields(t *testing.T) {
	c := gateChange()
	c.Kind = KindTurbine
	if err := c.Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected turbine without discharge to fail, got %v", err)
	}
	for i := range c.Settings {
		c.Settings[i].NewDischarge = Float(20)
		c.Settings[i].OldDischarge = Float(10)
		c.Settings[i].DischargeUnits = "cfs"
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("validate turbine: %v", err)
	}
}

func TestChangeNormalizeSortsSettings(t *testing.T) {
	c := gateChange()
	c.Normalize()
	if c.Settings[0].LocationID.Name != "KEYS-TG1" {
		t.Fatalf("expected settings sorted by location, got %v", c.Locations())
	}
}

func TestChangeCloneIsDeep(t *testing.T) {
	c := gateChange()
	cp := c.Clone()
	*cp.Settings[0].Opening = 99
	if *c.Settings[0].Opening == 99 {
		t.Fatalf("clone shares setting values")
	}
}
