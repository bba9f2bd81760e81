package application

import (
	timeline "reservoir-ops/internal/timeline/domain"
	"reservoir-ops/internal/units"
)

// convertChange rewrites numeric fields of c into the units preferred by system.
func convertChange(conv units.Converter, system units.System, c *timeline.Change) error {
	discharge := system.Preferred(c.DischargeUnits)
	if err := convertAll(conv, c.DischargeUnits, discharge, c.NewTotalDischargeOverride, c.OldTotalDischargeOverride); err != nil {
		return err
	}
	elevation := system.Preferred(c.ElevationUnits)
	if err := convertAll(conv, c.ElevationUnits, elevation, c.PoolElevation, c.TailwaterElevation); err != nil {
		return err
	}

	for i := range c.Settings {
		s := &c.Settings[i]
		if err := convertAll(conv, c.ElevationUnits, elevation, s.InvertElevation); err != nil {
			return err
		}
		opening := system.Preferred(s.OpeningUnits)
		if err := convertAll(conv, s.OpeningUnits, opening, s.Opening); err != nil {
			return err
		}
		s.OpeningUnits = opening
		settingDischarge := system.Preferred(s.DischargeUnits)
		if err := convertAll(conv, s.DischargeUnits, settingDischarge, s.OldDischarge, s.NewDischarge); err != nil {
			return err
		}
		s.DischargeUnits = settingDischarge
	}
	c.DischargeUnits = discharge
	c.ElevationUnits = elevation
	return nil
}

func convertAll(conv units.Converter, from, to string, values ...*float64) error {
	if from == to {
		return nil
	}
	for _, v := range values {
		if v == nil {
			continue
		}
		converted, err := conv.Convert(*v, from, to)
		if err != nil {
			return err
		}
		*v = converted
	}
	return nil
}
