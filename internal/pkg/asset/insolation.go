package asset

import (
	"math"
	"time"

	"github.com/ohowland/cgc_opt/internal/pkg/errs"
	"github.com/ohowland/cgc_opt/internal/pkg/period"
)

const (
	solarConstant = 1353 // W/m^2
	obliquity     = 0.40928
	degToRad      = math.Pi / 180
)

// Array describes a fixed, south facing photovoltaic array. Angles are in
// degrees, elevation in m and rating in W at 1000 W/m^2. Clock times of Start
// are taken as local solar time.
type Array struct {
	Rating    float64   `json:"rating" yaml:"rating"`
	Latitude  float64   `json:"latitude" yaml:"latitude"`
	Elevation float64   `json:"elevation,omitempty" yaml:"elevation,omitempty"`
	Tilt      float64   `json:"tilt,omitempty" yaml:"tilt,omitempty"`
	Start     time.Time `json:"start" yaml:"start"`
}

// ClearSky returns the clear-sky output of a for each period, sampled at the
// period midpoint.
func ClearSky(a Array, periods []float64) (period.Sequence, error) {
	if a.Rating < 0 {
		return nil, errs.Value("array rating %v is negative", a.Rating)
	}
	if a.Latitude < -90 || a.Latitude > 90 {
		return nil, errs.Value("latitude %v is out of range", a.Latitude)
	}
	forecast := make(period.Sequence, len(periods))
	t := a.Start
	for i, d := range periods {
		span := time.Duration(d * float64(time.Second))
		forecast[i] = a.Rating * irradiance(a, t.Add(span/2)) / 1000
		t = t.Add(span)
	}
	return forecast, nil
}

// irradiance on the array surface in W/m^2: attenuated direct beam plus a
// diffuse part of a tenth of it.
func irradiance(a Array, t time.Time) float64 {
	lat := a.Latitude * degToRad
	d := declination(t)
	w := hourAngle(t)

	sinElev := math.Sin(d)*math.Sin(lat) + math.Cos(d)*math.Cos(lat)*math.Cos(w)
	if sinElev <= 0 {
		return 0
	}
	h := a.Elevation / 1000
	airMass := 1 / sinElev
	direct := solarConstant * ((1-0.14*h)*math.Pow(0.7, math.Pow(airMass, 0.678)) + 0.14*h)

	tilted := lat - a.Tilt*degToRad
	cosIncidence := math.Cos(w)*math.Cos(d)*math.Cos(tilted) + math.Sin(d)*math.Sin(tilted)
	return direct*math.Max(cosIncidence, 0) + 0.1*direct
}

func hourAngle(t time.Time) float64 {
	hour := float64(t.Hour()*3600+t.Minute()*60+t.Second()) / 3600
	return (hour - 12) * 15 * degToRad
}

func declination(t time.Time) float64 {
	return math.Asin(math.Sin(obliquity) * math.Sin((float64(t.YearDay())-81)*2*math.Pi/365.25))
}

// Forecasted returns c with a photovoltaics forecast derived from its array
// when none is given.
func (c Config) Forecasted(periods []float64) (Config, error) {
	if c.Array == nil || len(c.Forecast) > 0 {
		return c, nil
	}
	if kind, err := ParseKind(c.Type); err != nil || kind != PV {
		return c, nil
	}
	forecast, err := ClearSky(*c.Array, periods)
	if err != nil {
		return c, err
	}
	c.Forecast = forecast
	return c, nil
}
