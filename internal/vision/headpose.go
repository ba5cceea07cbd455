package vision

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Landmark indices into the six-point head pose correspondence. The 2D
// image points passed to SolveHeadPose must follow this order.
const (
	LandmarkNoseTip = iota
	LandmarkChin
	LandmarkLeftEyeCorner
	LandmarkRightEyeCorner
	LandmarkLeftMouthCorner
	LandmarkRightMouthCorner
	NumPoseLandmarks
)

// headModelPoints is the fixed generic 3D face geometry, in a neutral
// head-centred coordinate frame. No per-subject calibration is applied.
var headModelPoints = [NumPoseLandmarks][3]float64{
	{0.0, 0.0, 0.0},     // nose tip
	{0.0, -3.3, -2.5},   // chin
	{-2.3, 1.65, -1.5},  // left eye outer corner
	{2.3, 1.65, -1.5},   // right eye outer corner
	{-1.5, -1.65, -1.5}, // left mouth corner
	{1.5, -1.65, -1.5},  // right mouth corner
}

// Solver convergence constants
const (
	// gimbalLockEpsilon is the sy floor below which the Euler extraction
	// switches to the singular (gimbal-lock) formula.
	gimbalLockEpsilon = 1e-6
	// pnpStepTolerance terminates the iteration once the parameter update is
	// this small.
	pnpStepTolerance = 1e-10
	// pnpCostTolerance terminates the iteration once the squared reprojection
	// error is this small.
	pnpCostTolerance = 1e-12
	// pnpMaxDamping aborts the solve when the damping factor grows past this
	// without finding a cost-reducing step.
	pnpMaxDamping = 1e8
	// pnpAcceptableCost is the squared reprojection error (pixels²) below
	// which a stalled solve still counts as converged: one pixel of mean
	// error per residual coordinate.
	pnpAcceptableCost = float64(2 * NumPoseLandmarks)
	// minLandmarkSpread rejects near-degenerate landmark sets whose eye
	// corners are closer than this many pixels.
	minLandmarkSpread = 1e-3
)

// ErrPoseNotConverged is returned when the iterative PnP solve fails to
// converge on the given landmark set.
var ErrPoseNotConverged = errors.New("head pose solve did not converge")

// ImagePoint is a 2D landmark position in pixel coordinates.
type ImagePoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// HeadPose holds recovered head rotation angles in degrees.
type HeadPose struct {
	Yaw   float64 `json:"yaw"`
	Pitch float64 `json:"pitch"`
	Roll  float64 `json:"roll"`
}

// SolveHeadPose recovers yaw/pitch/roll from six 2D landmark projections of
// the fixed head model. The camera is approximated as a pinhole with focal
// length equal to the frame width, principal point at the frame centre, and
// zero distortion. The Perspective-n-Point problem is solved by
// Levenberg-Marquardt minimisation of reprojection error over a Rodrigues
// rotation vector and translation; the normal equations are solved with
// gonum. Angles are rounded to 2 decimals.
//
// Non-convergence and degenerate inputs return an error: the caller must
// treat the frame's pose as absent, never as zero. The solver is stateless.
func SolveHeadPose(imagePoints [NumPoseLandmarks]ImagePoint, frameWidth, frameHeight float64) (HeadPose, error) {
	return SolveHeadPoseIter(imagePoints, frameWidth, frameHeight, 100)
}

// SolveHeadPoseIter is SolveHeadPose with an explicit iteration budget.
func SolveHeadPoseIter(imagePoints [NumPoseLandmarks]ImagePoint, frameWidth, frameHeight float64, maxIterations int) (HeadPose, error) {
	if frameWidth <= 0 || frameHeight <= 0 {
		return HeadPose{}, fmt.Errorf("invalid frame dimensions %gx%g", frameWidth, frameHeight)
	}
	for i, p := range imagePoints {
		if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
			return HeadPose{}, fmt.Errorf("landmark %d is not finite", i)
		}
	}

	focal := frameWidth
	cx := frameWidth / 2.0
	cy := frameHeight / 2.0

	theta, err := initialPoseGuess(imagePoints, focal, cx, cy)
	if err != nil {
		return HeadPose{}, err
	}

	theta, err = refinePose(theta, imagePoints, focal, cx, cy, maxIterations)
	if err != nil {
		return HeadPose{}, err
	}

	r := rodrigues(theta[0], theta[1], theta[2])
	yaw, pitch, roll := eulerFromRotation(r)
	return HeadPose{
		Yaw:   round2(yaw),
		Pitch: round2(pitch),
		Roll:  round2(roll),
	}, nil
}

// initialPoseGuess seeds the solve with zero rotation and a translation
// backed out of the landmark scale: depth from the eye-corner separation,
// lateral offsets from the landmark centroid.
func initialPoseGuess(imagePoints [NumPoseLandmarks]ImagePoint, focal, cx, cy float64) ([6]float64, error) {
	eyeDx := imagePoints[LandmarkRightEyeCorner].X - imagePoints[LandmarkLeftEyeCorner].X
	eyeDy := imagePoints[LandmarkRightEyeCorner].Y - imagePoints[LandmarkLeftEyeCorner].Y
	eyeSpanPx := math.Hypot(eyeDx, eyeDy)
	if eyeSpanPx < minLandmarkSpread {
		return [6]float64{}, fmt.Errorf("degenerate landmark set: eye corner separation %g px", eyeSpanPx)
	}

	modelEyeSpan := headModelPoints[LandmarkRightEyeCorner][0] - headModelPoints[LandmarkLeftEyeCorner][0]
	tz := focal * modelEyeSpan / eyeSpanPx

	var meanU, meanV float64
	for _, p := range imagePoints {
		meanU += p.X
		meanV += p.Y
	}
	meanU /= NumPoseLandmarks
	meanV /= NumPoseLandmarks

	return [6]float64{
		0, 0, 0,
		(meanU - cx) * tz / focal,
		(meanV - cy) * tz / focal,
		tz,
	}, nil
}

// refinePose runs damped Gauss-Newton (Levenberg-Marquardt) iterations on
// the 6-parameter pose until the reprojection error stops improving.
func refinePose(theta [6]float64, imagePoints [NumPoseLandmarks]ImagePoint, focal, cx, cy float64, maxIterations int) ([6]float64, error) {
	residuals, ok := reprojectionResiduals(theta, imagePoints, focal, cx, cy)
	if !ok {
		return theta, ErrPoseNotConverged
	}
	cost := sumSquares(residuals)

	lambda := 1e-3
	for iter := 0; iter < maxIterations; iter++ {
		if cost < pnpCostTolerance {
			return theta, nil
		}

		jac, ok := reprojectionJacobian(theta, imagePoints, focal, cx, cy)
		if !ok {
			return theta, ErrPoseNotConverged
		}

		// Normal equations: (J^T*J + lambda*I) * delta = J^T * r
		var jtj mat.Dense
		jtj.Mul(jac.T(), jac)
		grad := mat.NewVecDense(6, nil)
		grad.MulVec(jac.T(), mat.NewVecDense(len(residuals), residuals))

		stepAccepted := false
		for lambda <= pnpMaxDamping {
			var damped mat.Dense
			damped.CloneFrom(&jtj)
			for i := 0; i < 6; i++ {
				damped.Set(i, i, damped.At(i, i)+lambda)
			}

			var delta mat.VecDense
			if err := delta.SolveVec(&damped, grad); err != nil {
				lambda *= 10
				continue
			}

			var candidate [6]float64
			stepNorm := 0.0
			for i := 0; i < 6; i++ {
				candidate[i] = theta[i] - delta.AtVec(i)
				stepNorm += delta.AtVec(i) * delta.AtVec(i)
			}
			stepNorm = math.Sqrt(stepNorm)

			candResiduals, ok := reprojectionResiduals(candidate, imagePoints, focal, cx, cy)
			if ok {
				candCost := sumSquares(candResiduals)
				if candCost < cost {
					improvement := cost - candCost
					theta = candidate
					cost = candCost
					lambda = math.Max(lambda*0.5, 1e-7)
					stepAccepted = true

					if stepNorm < pnpStepTolerance || improvement < pnpCostTolerance {
						return theta, nil
					}
					break
				}
			}
			lambda *= 10
		}

		if !stepAccepted {
			// Damping exhausted without a cost-reducing step: a local minimum.
			// Accept it when the fit is tight, fail otherwise.
			if cost < pnpAcceptableCost {
				return theta, nil
			}
			return theta, ErrPoseNotConverged
		}
	}

	// Iteration budget exhausted.
	if cost < pnpAcceptableCost {
		return theta, nil
	}
	return theta, ErrPoseNotConverged
}

// reprojectionResiduals projects the model points through the pose and
// camera and returns the stacked (u, v) errors against the observed
// landmarks. Returns ok=false when a model point projects behind or onto
// the camera plane.
func reprojectionResiduals(theta [6]float64, imagePoints [NumPoseLandmarks]ImagePoint, focal, cx, cy float64) ([]float64, bool) {
	r := rodrigues(theta[0], theta[1], theta[2])
	residuals := make([]float64, 2*NumPoseLandmarks)

	for i, m := range headModelPoints {
		x := r[0]*m[0] + r[1]*m[1] + r[2]*m[2] + theta[3]
		y := r[3]*m[0] + r[4]*m[1] + r[5]*m[2] + theta[4]
		z := r[6]*m[0] + r[7]*m[1] + r[8]*m[2] + theta[5]
		if z <= 1e-9 {
			return nil, false
		}

		u := focal*x/z + cx
		v := focal*y/z + cy
		residuals[2*i] = u - imagePoints[i].X
		residuals[2*i+1] = v - imagePoints[i].Y
	}
	return residuals, true
}

// reprojectionJacobian builds the 12x6 Jacobian of the residual vector by
// central finite differences.
func reprojectionJacobian(theta [6]float64, imagePoints [NumPoseLandmarks]ImagePoint, focal, cx, cy float64) (*mat.Dense, bool) {
	jac := mat.NewDense(2*NumPoseLandmarks, 6, nil)

	for j := 0; j < 6; j++ {
		h := 1e-6 * (1 + math.Abs(theta[j]))

		plus := theta
		plus[j] += h
		rPlus, ok := reprojectionResiduals(plus, imagePoints, focal, cx, cy)
		if !ok {
			return nil, false
		}

		minus := theta
		minus[j] -= h
		rMinus, ok := reprojectionResiduals(minus, imagePoints, focal, cx, cy)
		if !ok {
			return nil, false
		}

		for i := 0; i < 2*NumPoseLandmarks; i++ {
			jac.Set(i, j, (rPlus[i]-rMinus[i])/(2*h))
		}
	}
	return jac, true
}

// rodrigues converts a rotation vector to a 3x3 rotation matrix (row-major).
func rodrigues(rx, ry, rz float64) [9]float64 {
	angle := math.Sqrt(rx*rx + ry*ry + rz*rz)
	if angle < 1e-12 {
		return [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}
	}

	kx, ky, kz := rx/angle, ry/angle, rz/angle
	c := math.Cos(angle)
	s := math.Sin(angle)
	t := 1 - c

	return [9]float64{
		c + kx*kx*t, kx*ky*t - kz*s, kx*kz*t + ky*s,
		ky*kx*t + kz*s, c + ky*ky*t, ky*kz*t - kx*s,
		kz*kx*t - ky*s, kz*ky*t + kx*s, c + kz*kz*t,
	}
}

// eulerFromRotation decomposes a rotation matrix into yaw/pitch/roll in
// degrees. Near the gimbal-lock singularity (sy below gimbalLockEpsilon) the
// alternate extraction is used and roll is fixed at zero.
func eulerFromRotation(r [9]float64) (yaw, pitch, roll float64) {
	sy := math.Sqrt(r[0]*r[0] + r[3]*r[3])

	if sy >= gimbalLockEpsilon {
		pitch = math.Atan2(r[7], r[8])
		yaw = math.Atan2(-r[6], sy)
		roll = math.Atan2(r[3], r[0])
	} else {
		pitch = math.Atan2(-r[5], r[4])
		yaw = math.Atan2(-r[6], sy)
		roll = 0
	}

	const radToDeg = 180.0 / math.Pi
	return yaw * radToDeg, pitch * radToDeg, roll * radToDeg
}

func sumSquares(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return sum
}
