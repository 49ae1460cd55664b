package editor

import "math"

// Point is a 2D point, either in screen pixels or canvas logical units
// depending on where it came from.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p Point) Add(q Point) Point { return Point{p.X + q.X, p.Y + q.Y} }
func (p Point) Sub(q Point) Point { return Point{p.X - q.X, p.Y - q.Y} }

// ToLogical converts a screen-space point into canvas logical coordinates:
// (screen - origin) / scale. A non-positive or non-finite scale is treated as 1.
func ToLogical(screen, origin Point, scale float64) Point {
	scale = sanitizeScale(scale)
	return Point{
		X: (screen.X - origin.X) / scale,
		Y: (screen.Y - origin.Y) / scale,
	}
}

// ToScreen is the inverse of ToLogical.
func ToScreen(logical, origin Point, scale float64) Point {
	scale = sanitizeScale(scale)
	return Point{
		X: logical.X*scale + origin.X,
		Y: logical.Y*scale + origin.Y,
	}
}

func sanitizeScale(scale float64) float64 {
	if scale <= 0 || math.IsNaN(scale) || math.IsInf(scale, 0) {
		return 1
	}
	return scale
}

// Viewport is where the canvas sits on screen: the screen position of the
// canvas' logical origin and the zoom factor. It is a value; callers pass the
// current one with every pointer sample.
type Viewport struct {
	Origin Point   `json:"origin"`
	Scale  float64 `json:"scale"`
}

// ToLogical maps a screen point through this viewport.
func (v Viewport) ToLogical(screen Point) Point {
	return ToLogical(screen, v.Origin, v.Scale)
}

// Delta converts a screen-space displacement into logical units.
func (v Viewport) Delta(from, to Point) Point {
	s := sanitizeScale(v.Scale)
	return Point{X: (to.X - from.X) / s, Y: (to.Y - from.Y) / s}
}

// Matrix returns the logical-to-screen transform.
func (v Viewport) Matrix() Matrix2D {
	s := sanitizeScale(v.Scale)
	return Translate(v.Origin.X, v.Origin.Y).Multiply(Scale(s, s))
}
