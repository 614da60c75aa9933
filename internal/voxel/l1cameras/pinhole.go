package l1cameras

import (
	"fmt"
	"image"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Intrinsics holds the camera matrix terms in pixels.
type Intrinsics struct {
	Fx, Fy float64
	Cx, Cy float64
}

// Distortion holds radial (K1, K2, K3) and tangential (P1, P2) lens
// distortion coefficients in the usual five-term order.
type Distortion struct {
	K1, K2, P1, P2, K3 float64
}

// Pinhole projects world points through an extrinsic rigid transform,
// the distortion model and the intrinsic matrix. It is immutable after
// construction and safe for concurrent use.
type Pinhole struct {
	intr Intrinsics
	dist Distortion

	rotation    *mat.Dense    // world -> camera, 3x3
	translation *mat.VecDense // world -> camera, 3
	location    r3.Vec

	// Row-major copies of rotation/translation for the per-voxel hot path.
	r [9]float64
	t [3]float64
}

// NewPinhole builds a pinhole model. rotation is row-major 3x3.
func NewPinhole(intr Intrinsics, dist Distortion, rotation [9]float64, translation [3]float64) (*Pinhole, error) {
	if intr.Fx <= 0 || intr.Fy <= 0 {
		return nil, fmt.Errorf("focal lengths must be positive, got fx=%f fy=%f", intr.Fx, intr.Fy)
	}

	rot := mat.NewDense(3, 3, append([]float64(nil), rotation[:]...))
	if d := mat.Det(rot); math.Abs(d-1) > 1e-3 {
		return nil, fmt.Errorf("rotation is not orthonormal (det=%f)", d)
	}
	trans := mat.NewVecDense(3, append([]float64(nil), translation[:]...))

	// Camera centre C satisfies R*C + t = 0, so C = -R^T t.
	var c mat.VecDense
	c.MulVec(rot.T(), trans)
	c.ScaleVec(-1, &c)

	return &Pinhole{
		intr:        intr,
		dist:        dist,
		rotation:    rot,
		translation: trans,
		location:    r3.Vec{X: c.AtVec(0), Y: c.AtVec(1), Z: c.AtVec(2)},
		r:           rotation,
		t:           translation,
	}, nil
}

// Location returns the camera centre in world coordinates.
func (p *Pinhole) Location() r3.Vec { return p.location }

// Rotation returns a copy of the world-to-camera rotation.
func (p *Pinhole) Rotation() *mat.Dense { return mat.DenseCopyOf(p.rotation) }

// Project maps a world point to pixel coordinates, rounded to the
// nearest pixel. Points on or behind the image plane have no projection.
func (p *Pinhole) Project(w r3.Vec) (image.Point, bool) {
	r, t := &p.r, &p.t
	xc := r[0]*w.X + r[1]*w.Y + r[2]*w.Z + t[0]
	yc := r[3]*w.X + r[4]*w.Y + r[5]*w.Z + t[1]
	zc := r[6]*w.X + r[7]*w.Y + r[8]*w.Z + t[2]
	if zc <= 0 {
		return image.Point{}, false
	}

	x, y := xc/zc, yc/zc
	d := p.dist
	r2 := x*x + y*y
	radial := 1 + d.K1*r2 + d.K2*r2*r2 + d.K3*r2*r2*r2
	xd := x*radial + 2*d.P1*x*y + d.P2*(r2+2*x*x)
	yd := y*radial + d.P1*(r2+2*y*y) + 2*d.P2*x*y

	u := p.intr.Fx*xd + p.intr.Cx
	v := p.intr.Fy*yd + p.intr.Cy
	if math.IsNaN(u) || math.IsNaN(v) || math.Abs(u) > math.MaxInt32 || math.Abs(v) > math.MaxInt32 {
		return image.Point{}, false
	}
	return image.Pt(int(math.Round(u)), int(math.Round(v))), true
}

// RotationFromRodrigues converts an axis-angle rotation vector (as stored
// by most calibration tools) to a row-major 3x3 rotation matrix.
func RotationFromRodrigues(rvec [3]float64) [9]float64 {
	theta := math.Sqrt(rvec[0]*rvec[0] + rvec[1]*rvec[1] + rvec[2]*rvec[2])
	if theta < 1e-12 {
		return [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}
	}
	kx, ky, kz := rvec[0]/theta, rvec[1]/theta, rvec[2]/theta

	// R = I + sin(theta) K + (1 - cos(theta)) K^2, with K the cross-product matrix.
	k := mat.NewDense(3, 3, []float64{
		0, -kz, ky,
		kz, 0, -kx,
		-ky, kx, 0,
	})
	var k2 mat.Dense
	k2.Mul(k, k)

	var rot mat.Dense
	rot.Scale(math.Sin(theta), k)
	k2.Scale(1-math.Cos(theta), &k2)
	rot.Add(&rot, &k2)
	for i := 0; i < 3; i++ {
		rot.Set(i, i, rot.At(i, i)+1)
	}

	var out [9]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i*3+j] = rot.At(i, j)
		}
	}
	return out
}
