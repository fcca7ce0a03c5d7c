// Package geo turns the portal's coordinates into WGS84 longitude/latitude.
package geo

import (
	"encoding/json"
	"math"

	"civicrelay/internal/models"
)

const (
	CRSWGS84  = "EPSG:4326"
	CRSUTM32N = "EPSG:25832"
)

// GRS80 ellipsoid and the UTM zone 32 projection parameters.
const (
	semiMajorAxis   = 6378137.0
	flattening      = 1 / 298.257222101
	scaleFactor     = 0.9996
	falseEasting    = 500000.0
	centralMeridian = 9.0
)

var (
	e2  = flattening * (2 - flattening)
	ep2 = e2 / (1 - e2)
)

// Point is a WGS84 position. It encodes as [longitude, latitude].
type Point struct {
	Longitude float64
	Latitude  float64
}

func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{p.Longitude, p.Latitude})
}

func (p *Point) UnmarshalJSON(data []byte) error {
	var pair [2]float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	p.Longitude, p.Latitude = pair[0], pair[1]
	return nil
}

// Locate returns the WGS84 position of an entity. Coordinates in any system
// other than EPSG:25832 and EPSG:4326 are ignored.
func Locate(e *models.Entity) (Point, bool) {
	g := e.Geo()
	if g == nil {
		return Point{}, false
	}
	switch g.CoordinateSystem {
	case CRSUTM32N:
		return FromUTM32(g.Longitude, g.Latitude), true
	case CRSWGS84:
		return Point{Longitude: g.Longitude, Latitude: g.Latitude}, true
	}
	return Point{}, false
}

// FromUTM32 converts a northern hemisphere UTM zone 32 easting/northing
// (ETRS89) to WGS84.
func FromUTM32(easting, northing float64) Point {
	x := easting - falseEasting
	m := northing / scaleFactor

	e4 := e2 * e2
	e6 := e4 * e2
	mu := m / (semiMajorAxis * (1 - e2/4 - 3*e4/64 - 5*e6/256))

	e1 := (1 - math.Sqrt(1-e2)) / (1 + math.Sqrt(1-e2))
	phi1 := mu +
		(3*e1/2-27*math.Pow(e1, 3)/32)*math.Sin(2*mu) +
		(21*e1*e1/16-55*math.Pow(e1, 4)/32)*math.Sin(4*mu) +
		(151*math.Pow(e1, 3)/96)*math.Sin(6*mu) +
		(1097*math.Pow(e1, 4)/512)*math.Sin(8*mu)

	sinPhi, cosPhi, tanPhi := math.Sin(phi1), math.Cos(phi1), math.Tan(phi1)
	c1 := ep2 * cosPhi * cosPhi
	t1 := tanPhi * tanPhi
	n1 := semiMajorAxis / math.Sqrt(1-e2*sinPhi*sinPhi)
	r1 := semiMajorAxis * (1 - e2) / math.Pow(1-e2*sinPhi*sinPhi, 1.5)
	d := x / (n1 * scaleFactor)

	lat := phi1 - (n1*tanPhi/r1)*(d*d/2-
		(5+3*t1+10*c1-4*c1*c1-9*ep2)*math.Pow(d, 4)/24+
		(61+90*t1+298*c1+45*t1*t1-252*ep2-3*c1*c1)*math.Pow(d, 6)/720)

	lon := (d - (1+2*t1+c1)*math.Pow(d, 3)/6 +
		(5-2*c1+28*t1-3*c1*c1+8*ep2+24*t1*t1)*math.Pow(d, 5)/120) / cosPhi

	return Point{
		Longitude: centralMeridian + degrees(lon),
		Latitude:  degrees(lat),
	}
}

// ToUTM32 is the forward projection of FromUTM32.
func ToUTM32(p Point) (easting, northing float64) {
	lat := radians(p.Latitude)
	dLon := radians(p.Longitude - centralMeridian)

	sinLat, cosLat, tanLat := math.Sin(lat), math.Cos(lat), math.Tan(lat)
	n := semiMajorAxis / math.Sqrt(1-e2*sinLat*sinLat)
	t := tanLat * tanLat
	c := ep2 * cosLat * cosLat
	a := cosLat * dLon

	e4 := e2 * e2
	e6 := e4 * e2
	m := semiMajorAxis * ((1-e2/4-3*e4/64-5*e6/256)*lat -
		(3*e2/8+3*e4/32+45*e6/1024)*math.Sin(2*lat) +
		(15*e4/256+45*e6/1024)*math.Sin(4*lat) -
		(35*e6/3072)*math.Sin(6*lat))

	easting = falseEasting + scaleFactor*n*(a+
		(1-t+c)*math.Pow(a, 3)/6+
		(5-18*t+t*t+72*c-58*ep2)*math.Pow(a, 5)/120)

	northing = scaleFactor * (m + n*tanLat*(a*a/2+
		(5-t+9*c+4*c*c)*math.Pow(a, 4)/24+
		(61-58*t+t*t+600*c-330*ep2)*math.Pow(a, 6)/720))

	return easting, northing
}

func degrees(r float64) float64 { return r * 180 / math.Pi }
func radians(d float64) float64 { return d * math.Pi / 180 }
