// Package fieldsim generates reproducible field data, honest readings and
// known tamper scenarios, for demos and end-to-end tests.
package fieldsim

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/okian/floodwatch/internal/domain/geo"
	"github.com/okian/floodwatch/internal/domain/model"
)

// Kind labels why a reading was generated.
type Kind string

const (
	Honest       Kind = "honest"
	FarFromSite  Kind = "far_from_site"
	Burst        Kind = "burst"
	NearDup      Kind = "near_duplicate"
	LevelJump    Kind = "level_jump"
	PoorMetadata Kind = "poor_metadata"
	NightShift   Kind = "night_shift"
)

// Scenarios lists the tamper kinds in the order their agents are created.
var Scenarios = []Kind{FarFromSite, Burst, NearDup, LevelJump, PoorMetadata, NightShift}

// Generation constants.
const (
	baseLat      = 9.0300
	baseLon      = 38.7400
	siteSpacing  = 0.05
	gpsJitterDeg = 0.00012 // about 13 m
	farOffsetDeg = 0.015   // about 1.7 km
	levelNoise   = 0.1
	jumpMeters   = 5.0
	baselineDays = 3
)

var siteNames = []string{"Awash Bridge", "Akaki Weir", "Kebena Ford", "Little Akaki", "Bulbula Gauge", "Gerbi Inlet"}

// Reading is one generated submission. Site and Agent index into Dataset.
type Reading struct {
	Kind       Kind
	Site       int
	Agent      int
	Submission model.Submission
}

// Dataset is a generated set of sites, agents and readings. IDs are unset
// until Seed stores them.
type Dataset struct {
	Sites    []model.Site
	Agents   []model.User
	Readings []Reading
}

// Tampered returns the readings produced by tamper scenarios.
func (d Dataset) Tampered() []Reading {
	var out []Reading
	for _, r := range d.Readings {
		if r.Kind != Honest {
			out = append(out, r)
		}
	}
	return out
}

// Generator builds datasets.
type Generator struct {
	sites    int
	agents   int
	readings int
	tampered bool
	seed     uint64
	radius   float64
	now      func() time.Time

	rng *rand.Rand
}

// New creates a generator. Defaults: 3 sites, 4 agents, 5 readings each,
// tamper scenarios on.
func New(opts ...Option) *Generator {
	g := &Generator{
		sites:    3,
		agents:   4,
		readings: 5,
		tampered: true,
		seed:     1,
		radius:   geo.DefaultGeofenceRadius,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate returns a dataset. The same options always give the same dataset.
func (g *Generator) Generate() Dataset {
	g.rng = rand.New(rand.NewPCG(g.seed, g.seed^0x9e3779b97f4a7c15))
	// readings land on whole hours of the days before the reference day
	anchor := g.now().UTC().Truncate(24 * time.Hour).Add(-24 * time.Hour)

	var ds Dataset
	for i := 0; i < g.sites; i++ {
		ds.Sites = append(ds.Sites, model.Site{
			Name:      siteNames[i%len(siteNames)] + suffix(i, len(siteNames)),
			Latitude:  baseLat + float64(i)*siteSpacing,
			Longitude: baseLon + float64(i)*siteSpacing,
			QRCode:    "QR-" + g.stableID("site", i)[:8],
		})
	}

	for a := 0; a < g.agents; a++ {
		ds.Agents = append(ds.Agents, g.agent(a))
		site := a % g.sites
		for k := 0; k < g.readings; k++ {
			at := anchor.Add(-time.Duration(k)*24*time.Hour + (9+time.Duration(a%6))*time.Hour)
			ds.Readings = append(ds.Readings, g.honest(ds.Sites, a, site, at, k))
		}
	}

	if g.tampered {
		for i, kind := range Scenarios {
			a := g.agents + i
			ds.Agents = append(ds.Agents, g.agent(a))
			site := i % g.sites
			for k := 1; k <= baselineDays; k++ {
				at := anchor.Add(-time.Duration(k)*24*time.Hour + 10*time.Hour)
				ds.Readings = append(ds.Readings, g.honest(ds.Sites, a, site, at, k))
			}
			ds.Readings = append(ds.Readings, g.scenario(kind, ds.Sites, a, site, anchor)...)
		}
	}
	return ds
}

func (g *Generator) agent(i int) model.User {
	return model.User{Username: "agent-" + g.stableID("agent", i)[:8], Role: model.RoleAgent}
}

// stableID derives a name-based UUID so reruns keep the same identifiers.
func (g *Generator) stableID(kind string, i int) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("floodwatch/%s/%d/%d", kind, g.seed, i))).String()
}

func (g *Generator) level(site int) float64 {
	return 1.0 + float64(site)*0.5
}

func (g *Generator) honest(sites []model.Site, agent, site int, at time.Time, k int) Reading {
	s := sites[site]
	lat := s.Latitude + (g.rng.Float64()*2-1)*gpsJitterDeg
	lon := s.Longitude + (g.rng.Float64()*2-1)*gpsJitterDeg
	rating := 4 + g.rng.IntN(2)
	return Reading{
		Kind:  Honest,
		Site:  site,
		Agent: agent,
		Submission: model.Submission{
			WaterLevel:         round2(g.level(site) + (g.rng.Float64()*2-1)*levelNoise),
			Timestamp:          at,
			GPSLatitude:        lat,
			GPSLongitude:       lon,
			PhotoFilename:      fmt.Sprintf("sim_%d_%d.jpg", agent, k),
			LocationVerified:   geo.WithinGeofence(lat, lon, s.Latitude, s.Longitude, g.radius),
			VerificationMethod: model.VerificationGPS,
			Notes:              "Gauge clearly visible, steady flow",
			QualityRating:      &rating,
		},
	}
}

func (g *Generator) scenario(kind Kind, sites []model.Site, agent, site int, anchor time.Time) []Reading {
	mk := func(hour time.Duration, k int) Reading {
		r := g.honest(sites, agent, site, anchor.Add(hour), 100+k)
		r.Kind = kind
		return r
	}
	s := sites[site]
	switch kind {
	case FarFromSite:
		r := mk(11*time.Hour, 0)
		sub := &r.Submission
		sub.GPSLatitude = s.Latitude + farOffsetDeg
		sub.GPSLongitude = s.Longitude
		sub.LocationVerified = geo.WithinGeofence(sub.GPSLatitude, sub.GPSLongitude, s.Latitude, s.Longitude, g.radius)
		return []Reading{r}
	case Burst:
		out := make([]Reading, 4)
		for i := range out {
			out[i] = mk(14*time.Hour+time.Duration(i)*10*time.Minute, i)
			out[i].Submission.WaterLevel = round2(g.level(site) + float64(i)*0.3)
		}
		return out
	case NearDup:
		first := mk(15*time.Hour, 0)
		second := mk(15*time.Hour+10*time.Minute, 1)
		second.Submission.WaterLevel = first.Submission.WaterLevel + 0.05
		return []Reading{first, second}
	case LevelJump:
		r := mk(16*time.Hour, 0)
		r.Submission.WaterLevel = round2(g.level(site) + jumpMeters)
		return []Reading{r}
	case PoorMetadata:
		r := mk(12*time.Hour, 0)
		rating := 1
		r.Submission.QualityRating = &rating
		r.Submission.Notes = ""
		r.Submission.PhotoFilename = ""
		return []Reading{r}
	case NightShift:
		return []Reading{mk(2*time.Hour, 0)}
	}
	return nil
}

func suffix(i, n int) string {
	if i < n {
		return ""
	}
	return fmt.Sprintf(" %d", i/n+1)
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}

// Store is what Seed writes to.
type Store interface {
	CreateSite(ctx context.Context, site *model.Site) error
	CreateUser(ctx context.Context, user *model.User) error
	CreateSubmission(ctx context.Context, sub *model.Submission) error
}

// Summary counts what Seed stored.
type Summary struct {
	Sites       int `json:"sites"`
	Agents      int `json:"agents"`
	Submissions int `json:"submissions"`
	Tampered    int `json:"tampered"`
}

// Seed stores ds, assigning IDs in place.
func Seed(ctx context.Context, st Store, ds *Dataset) (Summary, error) {
	var sum Summary
	for i := range ds.Sites {
		if err := st.CreateSite(ctx, &ds.Sites[i]); err != nil {
			return sum, fmt.Errorf("creating site %q: %w", ds.Sites[i].Name, err)
		}
		sum.Sites++
	}
	for i := range ds.Agents {
		if err := st.CreateUser(ctx, &ds.Agents[i]); err != nil {
			return sum, fmt.Errorf("creating agent %q: %w", ds.Agents[i].Username, err)
		}
		sum.Agents++
	}
	for i := range ds.Readings {
		r := &ds.Readings[i]
		r.Submission.SiteID = ds.Sites[r.Site].ID
		r.Submission.UserID = ds.Agents[r.Agent].ID
		if err := st.CreateSubmission(ctx, &r.Submission); err != nil {
			return sum, fmt.Errorf("creating submission %d: %w", i, err)
		}
		sum.Submissions++
		if r.Kind != Honest {
			sum.Tampered++
		}
	}
	return sum, nil
}
