package eregister

// Enhanced correlation coefficient maximisation (Evangelidis & Psarakis,
// 2008), over a full affine warp.

import(
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/abworrall/stackreg/pkg/emath"
)

// ECCResult reports how the optimizer ended; W is only meaningful if Err is nil.
type ECCResult struct {
	W           emath.Aff3
	Correlation float64
	Iterations  int
	Overlap     float64 // fraction of template pixels that were compared
	Err         error
}

func (r ECCResult)String() string {
	s := fmt.Sprintf("ecc[rho=%.4f, it=%d, overlap=%.2f, %s]", r.Correlation, r.Iterations, r.Overlap, r.W)
	if r.Err != nil {
		s += " " + r.Err.Error()
	}
	return s
}

// FindTransformECC searches for the W such that input(W.p) best matches
// template(p), starting from seed. W maps template pixel locations into
// the input frame. Only pixels where the mask is on, and whose warped
// location lies inside the input, take part.
func FindTransformECC(template, input emath.FloatGrid, seed emath.Aff3, mask emath.Mask, cfg ECCConfig) ECCResult {
	res := ECCResult{W: seed, Correlation: math.NaN()}

	if template.HasNaN() || input.HasNaN() {
		res.Err = ErrMissingValues
		return res
	}
	if !mask.IsZero() && (mask.Dx() != template.Dx() || mask.Dy() != template.Dy()) {
		res.Err = fmt.Errorf("mask is %dx%d, frame is %dx%d: %w", mask.Dx(), mask.Dy(), template.Dx(), template.Dy(), ErrShapeMismatch)
		return res
	}

	tmpl := template.Smooth(cfg.GaussianSize)
	img  := input.Smooth(cfg.GaussianSize)
	gx, gy := img.Gradients()

	w, h := tmpl.Dx(), tmpl.Dy()
	nCandidates := w*h
	if !mask.IsZero() { nCandidates = mask.Count() }
	if nCandidates == 0 {
		res.Err = fmt.Errorf("mask excludes every pixel: %w", ErrNotConverged)
		return res
	}

	// Scratch space, reused every iteration
	n := w*h
	valid := make([]bool, n)
	tZM := make([]float64, n)
	iZM := make([]float64, n)
	jac := make([][6]float64, n)

	W := seed
	rho, lastRho := -1.0, math.NaN()

	for it:=0; it<cfg.MaxIterations; it++ {
		res.Iterations = it+1

		// Warp the input and its gradients into the template's frame
		nValid := 0
		tSum, iSum := 0.0, 0.0
		for y:=0; y<h; y++ {
			for x:=0; x<w; x++ {
				k := y*w + x
				valid[k] = false
				if !mask.On(x, y) { continue }

				wx, wy := W.Apply(float64(x), float64(y))
				iv, ok := img.Bilinear(wx, wy)
				if !ok { continue }
				dx, _ := gx.Bilinear(wx, wy)
				dy, _ := gy.Bilinear(wx, wy)

				fx, fy := float64(x), float64(y)
				jac[k] = [6]float64{dx*fx, dx*fy, dx, dy*fx, dy*fy, dy}
				iZM[k] = iv
				tZM[k] = tmpl.Get(x, y)
				tSum += tZM[k]
				iSum += iv
				valid[k] = true
				nValid++
			}
		}

		res.Overlap = float64(nValid) / float64(nCandidates)
		if nValid == 0 || res.Overlap < cfg.MinOverlap {
			res.Err = fmt.Errorf("overlap %.2f below %.2f: %w", res.Overlap, cfg.MinOverlap, ErrNotConverged)
			return res
		}

		tMean, iMean := tSum/float64(nValid), iSum/float64(nValid)
		tNorm2, iNorm2, corr := 0.0, 0.0, 0.0
		for k:=0; k<n; k++ {
			if !valid[k] { continue }
			tZM[k] -= tMean
			iZM[k] -= iMean
			tNorm2 += tZM[k] * tZM[k]
			iNorm2 += iZM[k] * iZM[k]
			corr   += tZM[k] * iZM[k]
		}
		if tNorm2 == 0 || iNorm2 == 0 {
			res.Err = fmt.Errorf("no intensity variation in the overlap: %w", ErrNotConverged)
			return res
		}

		lastRho = rho
		rho = corr / (math.Sqrt(tNorm2) * math.Sqrt(iNorm2))
		res.Correlation = rho
		if math.IsNaN(rho) {
			res.Err = fmt.Errorf("correlation is NaN: %w", ErrNotConverged)
			return res
		}

		if it > 0 && math.Abs(rho - lastRho) < cfg.Epsilon {
			res.W = W
			if rho < cfg.MinCorrelation {
				res.Err = fmt.Errorf("converged to correlation %.3f, below %.3f: %w", rho, cfg.MinCorrelation, ErrNotConverged)
			}
			return res
		}

		// Gauss-Newton step, with the photometric scale lambda
		var hess [36]float64
		var iP, tP [6]float64
		for k:=0; k<n; k++ {
			if !valid[k] { continue }
			J := &jac[k]
			for a:=0; a<6; a++ {
				iP[a] += J[a] * iZM[k]
				tP[a] += J[a] * tZM[k]
				for b:=a; b<6; b++ {
					hess[a*6+b] += J[a]*J[b]
				}
			}
		}
		for a:=0; a<6; a++ {
			for b:=0; b<a; b++ {
				hess[a*6+b] = hess[b*6+a]
			}
		}
		H := mat.NewSymDense(6, hess[:])

		var Hinv mat.Dense
		if err := Hinv.Inverse(H); err != nil {
			res.Err = fmt.Errorf("hessian is singular (%v): %w", err, ErrNotConverged)
			return res
		}

		iPv := mat.NewVecDense(6, iP[:])
		tPv := mat.NewVecDense(6, tP[:])
		var iPH mat.VecDense
		iPH.MulVec(&Hinv, iPv)

		lambdaN := iNorm2 - mat.Dot(iPv, &iPH)
		lambdaD := corr - mat.Dot(tPv, &iPH)
		if lambdaD <= 0 {
			res.Err = fmt.Errorf("frames look uncorrelated (lambda_d=%g): %w", lambdaD, ErrNotConverged)
			return res
		}
		lambda := lambdaN / lambdaD

		var eP, dP mat.VecDense
		eP.ScaleVec(lambda, tPv)
		eP.SubVec(&eP, iPv)
		dP.MulVec(&Hinv, &eP)

		for a:=0; a<6; a++ {
			W[a] += dP.AtVec(a)
		}
		if !W.IsFinite() {
			res.Err = fmt.Errorf("warp diverged: %w", ErrNotConverged)
			return res
		}
	}

	res.W = W
	res.Err = fmt.Errorf("no convergence after %d iterations (rho=%.4f): %w", cfg.MaxIterations, rho, ErrNotConverged)
	return res
}
