package geodesy

import (
	"math"
	"testing"
)

func TestInverseCoincident(t *testing.T) {
	d, az, baz := Inverse(-120, 45, -120, 45)
	if d != 0 || az != 0 || baz != 0 {
		t.Errorf("coincident points: got d=%g az=%g baz=%g, want all zero", d, az, baz)
	}
}

func TestInverseKnownDistance(t *testing.T) {
	// One degree of longitude along the equator is about 111.32 km.
	d, az, _ := Inverse(0, 0, 1, 0)
	if math.Abs(d-111.32) > 0.1 {
		t.Errorf("equatorial degree: got %g km, want ~111.32 km", d)
	}
	if math.Abs(az-90) > 0.01 {
		t.Errorf("equatorial azimuth: got %g, want 90", az)
	}
}

func TestInverseMeridian(t *testing.T) {
	d, az, _ := Inverse(0, 0, 0, 1)
	// One degree of latitude at the equator on the WGS84 ellipsoid is about
	// 110.57 km.
	if math.Abs(d-110.57) > 0.2 {
		t.Errorf("meridian degree: got %g km, want ~110.57 km", d)
	}
	if math.Abs(az-0) > 0.01 {
		t.Errorf("meridian azimuth: got %g, want 0", az)
	}
}

func TestFoldTo180(t *testing.T) {
	cases := map[float64]float64{
		0:    0,
		180:  180,
		181:  -179,
		-180: 180,
		360:  0,
		-181: 179,
	}
	for in, want := range cases {
		got := FoldTo180(in)
		if math.Abs(got-want) > 1e-9 {
			t.Errorf("FoldTo180(%g) = %g, want %g", in, got, want)
		}
	}
}

func TestNormalizeSeismic(t *testing.T) {
	// az=0 (due north) -> 90 - 180 = -90
	got := NormalizeSeismic(0)
	if math.Abs(got-(-90)) > 1e-9 {
		t.Errorf("NormalizeSeismic(0) = %g, want -90", got)
	}
}
