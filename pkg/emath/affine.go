package emath

// Affine transformations, used in stack registration

import(
	"fmt"
	"math"
	"golang.org/x/image/math/f64"  // Will be "image/math/f64" at some point, hopefully make this file redundant
)

// Aff3 is the top two rows of a 3x3 homogeneous matrix; the bottom
// row is implicitly [0,0,1]. A point (x,y) maps to
// (a*x + b*y + c, d*x + e*y + f), where Aff3 = {a,b,c, d,e,f}.
type Aff3 f64.Aff3

// Cut-n-pasted from image@0.7.0/draw/scale:matMul. p.Mult(q) applies q first, then p.
func (p Aff3)Mult(q Aff3) Aff3 {
	return Aff3{
		p[3*0+0]*q[3*0+0] + p[3*0+1]*q[3*1+0],
		p[3*0+0]*q[3*0+1] + p[3*0+1]*q[3*1+1],
		p[3*0+0]*q[3*0+2] + p[3*0+1]*q[3*1+2] + p[3*0+2],
		p[3*1+0]*q[3*0+0] + p[3*1+1]*q[3*1+0],
		p[3*1+0]*q[3*0+1] + p[3*1+1]*q[3*1+1],
		p[3*1+0]*q[3*0+2] + p[3*1+1]*q[3*1+2] + p[3*1+2],
	}
}

func Identity() Aff3 {
	return Aff3{1, 0, 0,   0, 1, 0}
}

func Translation(tx, ty float64) Aff3 {
	return Aff3{1, 0, tx,   0, 1, ty}
}

func (m1 Aff3)Translate(tx, ty float64) Aff3 {
	return m1.Mult(Translation(tx, ty))
}

func (m1 Aff3)Rotate(thetaDeg float64) Aff3 {
	cosTheta := math.Cos(thetaDeg * math.Pi / 180.0)
	sinTheta := math.Sin(thetaDeg * math.Pi / 180.0)
	return m1.Mult(Aff3{cosTheta, -1*sinTheta, 0,    sinTheta, cosTheta, 0})
}

func RotateAbout(thetaDeg, x, y float64) Aff3 {
	// Remember they compose back to front - rightmost operations performed first
	return Identity().Translate(x, y).Rotate(thetaDeg).Translate(-1*x, -1*y)
}

func (m Aff3)Apply(x, y float64) (float64, float64) {
	return m[0]*x + m[1]*y + m[2], m[3]*x + m[4]*y + m[5]
}

func (m Aff3)ApplyPoint(p Point) Point {
	x, y := m.Apply(p.X, p.Y)
	return Point{x, y}
}

func (m Aff3)Det() float64 { return m[0]*m[4] - m[1]*m[3] }

// Inverse returns false if the linear part is singular.
func (m Aff3)Inverse() (Aff3, bool) {
	det := m.Det()
	if math.Abs(det) < 1e-12 || math.IsNaN(det) {
		return Identity(), false
	}
	inv := 1.0 / det
	return Aff3{
		m[4] * inv, -m[1] * inv, (m[1]*m[5] - m[4]*m[2]) * inv,
		-m[3] * inv, m[0] * inv, (m[3]*m[2] - m[0]*m[5]) * inv,
	}, true
}

func (m Aff3)Translation() (float64, float64) { return m[2], m[5] }

func (m Aff3)IsIdentity() bool { return m == Identity() }

func (m Aff3)ApproxEqual(o Aff3, tol float64) bool {
	for i:=0; i<6; i++ {
		if math.Abs(m[i]-o[i]) > tol { return false }
	}
	return true
}

func (m Aff3)IsFinite() bool {
	for i:=0; i<6; i++ {
		if math.IsNaN(m[i]) || math.IsInf(m[i], 0) { return false }
	}
	return true
}

// Homogeneous returns the full 3x3 matrix, bottom row [0,0,1]
func (m Aff3)Homogeneous() Mat3 {
	return Mat3{
		m[0], m[1], m[2],
		m[3], m[4], m[5],
		0,    0,    1,
	}
}

func (m Aff3)String() string {
	return fmt.Sprintf("[%8.5f %8.5f %9.3f | %8.5f %8.5f %9.3f]", m[0], m[1], m[2], m[3], m[4], m[5])
}

// Actual 3x3 matrixes, for the homogeneous form
type Mat3 f64.Mat3

func (a Mat3)Mult(b Mat3) Mat3 {
	return Mat3{
		a[3*0+0]*b[3*0+0] + a[3*0+1]*b[3*1+0] + a[3*0+2]*b[3*2+0],
		a[3*0+0]*b[3*0+1] + a[3*0+1]*b[3*1+1] + a[3*0+2]*b[3*2+1],
		a[3*0+0]*b[3*0+2] + a[3*0+1]*b[3*1+2] + a[3*0+2]*b[3*2+2],

		a[3*1+0]*b[3*0+0] + a[3*1+1]*b[3*1+0] + a[3*1+2]*b[3*2+0],
		a[3*1+0]*b[3*0+1] + a[3*1+1]*b[3*1+1] + a[3*1+2]*b[3*2+1],
		a[3*1+0]*b[3*0+2] + a[3*1+1]*b[3*1+2] + a[3*1+2]*b[3*2+2],

		a[3*2+0]*b[3*0+0] + a[3*2+1]*b[3*1+0] + a[3*2+2]*b[3*2+0],
		a[3*2+0]*b[3*0+1] + a[3*2+1]*b[3*1+1] + a[3*2+2]*b[3*2+1],
		a[3*2+0]*b[3*0+2] + a[3*2+1]*b[3*1+2] + a[3*2+2]*b[3*2+2],
	}
}

// Aff3 drops the bottom row
func (m Mat3)Aff3() Aff3 {
	return Aff3{m[0], m[1], m[2], m[3], m[4], m[5]}
}

func (m Mat3)String() string {
	str := fmt.Sprintf("[%10f, %10f, %10f]\n", m[3*0+0], m[3*0+1], m[3*0+2])
	str += fmt.Sprintf("[%10f, %10f, %10f]\n", m[3*1+0], m[3*1+1], m[3*1+2])
	str += fmt.Sprintf("[%10f, %10f, %10f]\n", m[3*2+0], m[3*2+1], m[3*2+2])
	return str
}
