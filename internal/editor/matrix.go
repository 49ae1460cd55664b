package editor

// Matrix2D represents a 2D affine transformation matrix.
// Layout: [a, b, c, d, e, f] representing:
// | a  c  e |
// | b  d  f |
// | 0  0  1 |
type Matrix2D [6]float64

// Translate returns a translation matrix.
func Translate(tx, ty float64) Matrix2D {
	return Matrix2D{1, 0, 0, 1, tx, ty}
}

// Scale returns a uniform or non-uniform scale matrix.
func Scale(sx, sy float64) Matrix2D {
	return Matrix2D{sx, 0, 0, sy, 0, 0}
}

// Multiply returns m * other, which applies other first, then m.
func (m Matrix2D) Multiply(other Matrix2D) Matrix2D {
	return Matrix2D{
		m[0]*other[0] + m[2]*other[1],
		m[1]*other[0] + m[3]*other[1],
		m[0]*other[2] + m[2]*other[3],
		m[1]*other[2] + m[3]*other[3],
		m[0]*other[4] + m[2]*other[5] + m[4],
		m[1]*other[4] + m[3]*other[5] + m[5],
	}
}

// TransformPoint applies the matrix to a point.
func (m Matrix2D) TransformPoint(p Point) Point {
	return Point{
		X: m[0]*p.X + m[2]*p.Y + m[4],
		Y: m[1]*p.X + m[3]*p.Y + m[5],
	}
}

// TransformRect transforms a rectangle and returns its axis-aligned bounding box.
func (m Matrix2D) TransformRect(r Rect) Rect {
	p0 := m.TransformPoint(Point{r.X, r.Y})
	p1 := m.TransformPoint(Point{r.X + r.Width, r.Y})
	p2 := m.TransformPoint(Point{r.X + r.Width, r.Y + r.Height})
	p3 := m.TransformPoint(Point{r.X, r.Y + r.Height})

	minX := min(p0.X, p1.X, p2.X, p3.X)
	minY := min(p0.Y, p1.Y, p2.Y, p3.Y)
	maxX := max(p0.X, p1.X, p2.X, p3.X)
	maxY := max(p0.Y, p1.Y, p2.Y, p3.Y)

	return Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

// ToSlice returns the matrix as a float64 slice for JSON serialization.
func (m Matrix2D) ToSlice() []float64 {
	return []float64{m[0], m[1], m[2], m[3], m[4], m[5]}
}
