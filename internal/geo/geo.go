// Package geo holds the planar geometry shared by the optimizer, the store
// and the simulation stream. All distances are Euclidean in service-area units.
package geo

import "math"

// Point is an immutable planar coordinate.
type Point struct {
	X float64 `json:"x" yaml:"x" mapstructure:"x"`
	Y float64 `json:"y" yaml:"y" mapstructure:"y"`
}

// Distance returns the Euclidean distance between a and b.
func Distance(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// PathLength sums consecutive leg lengths.
func PathLength(path []Point) float64 {
	total := 0.0
	for i := 1; i < len(path); i++ {
		total += Distance(path[i-1], path[i])
	}
	return total
}

// Lerp returns the point a fraction t of the way from a to b.
func Lerp(a, b Point, t float64) Point {
	return Point{X: a.X + (b.X-a.X)*t, Y: a.Y + (b.Y-a.Y)*t}
}

// Valid reports whether both coordinates are finite.
func (p Point) Valid() bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0)
}

// Bounds is a closed axis-aligned rectangle.
type Bounds struct {
	MinX float64 `json:"minX" mapstructure:"min_x"`
	MinY float64 `json:"minY" mapstructure:"min_y"`
	MaxX float64 `json:"maxX" mapstructure:"max_x"`
	MaxY float64 `json:"maxY" mapstructure:"max_y"`
}

// Contains reports whether p lies inside b, edges included. Non-finite points are never contained.
func (b Bounds) Contains(p Point) bool {
	if !p.Valid() {
		return false
	}
	return p.X >= b.MinX && p.X <= b.MaxX && p.Y >= b.MinY && p.Y <= b.MaxY
}

// Centroid is the arithmetic mean of pts. The zero Point is returned for empty input.
func Centroid(pts []Point) Point {
	if len(pts) == 0 {
		return Point{}
	}
	var sx, sy float64
	for _, p := range pts {
		sx += p.X
		sy += p.Y
	}
	n := float64(len(pts))
	return Point{X: sx / n, Y: sy / n}
}
