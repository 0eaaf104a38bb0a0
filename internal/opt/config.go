package opt

import "dronedispatch/internal/geo"

// Config holds the engine constants. Zero fields fall back to DefaultConfig values.
type Config struct {
	Depot            geo.Point  `mapstructure:"depot" json:"depot"`
	Bounds           geo.Bounds `mapstructure:"bounds" json:"bounds"`
	BatteryRate      float64    `mapstructure:"battery_rate" json:"batteryRate"` // percent per distance unit
	Speed            float64    `mapstructure:"speed" json:"speed"`              // distance units per hour of flight
	KMeansIterations int        `mapstructure:"kmeans_iterations" json:"kmeansIterations"`
	Seed             int64      `mapstructure:"seed" json:"seed"`
	DefaultStrategy  Strategy   `mapstructure:"default_strategy" json:"defaultStrategy"`
	Scoring          Scoring    `mapstructure:"scoring" json:"scoring"`
}

// Scoring carries the coefficients of the capacity and balanced order rankings
// and the distance offset shared by every score denominator.
type Scoring struct {
	WaitNormalizeMinutes float64 `mapstructure:"wait_normalize_minutes" json:"waitNormalizeMinutes"`
	WaitBonusCap         float64 `mapstructure:"wait_bonus_cap" json:"waitBonusCap"`
	DistanceOffset       float64 `mapstructure:"distance_offset" json:"distanceOffset"`
	PriorityFactor       float64 `mapstructure:"priority_factor" json:"priorityFactor"`
	WaitFactor           float64 `mapstructure:"wait_factor" json:"waitFactor"`
	WaitCap              float64 `mapstructure:"wait_cap" json:"waitCap"`
	DistancePenalty      float64 `mapstructure:"distance_penalty" json:"distancePenalty"`
}

func DefaultConfig() Config {
	return Config{
		Depot:            geo.Point{X: 10, Y: 10},
		Bounds:           geo.Bounds{MinX: 0, MinY: 0, MaxX: 20, MaxY: 20},
		BatteryRate:      5,
		Speed:            0.5,
		KMeansIterations: 3,
		Seed:             1,
		DefaultStrategy:  BalancedOptimization,
		Scoring:          DefaultScoring(),
	}
}

func DefaultScoring() Scoring {
	return Scoring{
		WaitNormalizeMinutes: 30,
		WaitBonusCap:         2,
		DistanceOffset:       0.1,
		PriorityFactor:       100,
		WaitFactor:           2,
		WaitCap:              50,
		DistancePenalty:      5,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Bounds == (geo.Bounds{}) {
		c.Bounds = d.Bounds
	}
	if c.Depot == (geo.Point{}) {
		c.Depot = d.Depot
	}
	if c.BatteryRate <= 0 {
		c.BatteryRate = d.BatteryRate
	}
	if c.Speed <= 0 {
		c.Speed = d.Speed
	}
	if c.KMeansIterations <= 0 {
		c.KMeansIterations = d.KMeansIterations
	}
	if c.Seed == 0 {
		c.Seed = d.Seed
	}
	if c.DefaultStrategy == "" {
		c.DefaultStrategy = d.DefaultStrategy
	}
	s, ds := &c.Scoring, d.Scoring
	if s.WaitNormalizeMinutes <= 0 {
		s.WaitNormalizeMinutes = ds.WaitNormalizeMinutes
	}
	if s.WaitBonusCap <= 0 {
		s.WaitBonusCap = ds.WaitBonusCap
	}
	if s.DistanceOffset <= 0 {
		s.DistanceOffset = ds.DistanceOffset
	}
	if s.PriorityFactor <= 0 {
		s.PriorityFactor = ds.PriorityFactor
	}
	if s.WaitFactor <= 0 {
		s.WaitFactor = ds.WaitFactor
	}
	if s.WaitCap <= 0 {
		s.WaitCap = ds.WaitCap
	}
	if s.DistancePenalty <= 0 {
		s.DistancePenalty = ds.DistancePenalty
	}
	return c
}
