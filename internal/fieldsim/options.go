package fieldsim

import "time"

// Option configures a Generator.
type Option func(*Generator)

// WithSites sets the number of monitoring sites.
func WithSites(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.sites = n
		}
	}
}

// WithAgents sets the number of honest field agents.
func WithAgents(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.agents = n
		}
	}
}

// WithReadings sets how many daily readings each honest agent files.
func WithReadings(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.readings = n
		}
	}
}

// WithTampered adds one agent per tamper scenario.
func WithTampered(on bool) Option {
	return func(g *Generator) {
		g.tampered = on
	}
}

// WithSeed makes level noise and GPS jitter reproducible.
func WithSeed(seed uint64) Option {
	return func(g *Generator) {
		g.seed = seed
	}
}

// WithClock sets the reference time. Readings are placed on the days before it.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		if now != nil {
			g.now = now
		}
	}
}

// WithGeofenceRadius sets the radius used to mark readings as location verified.
func WithGeofenceRadius(m float64) Option {
	return func(g *Generator) {
		if m > 0 {
			g.radius = m
		}
	}
}
