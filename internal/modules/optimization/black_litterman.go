package optimization

import (
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
)

// DefaultTau is the prior uncertainty scale applied to Σ.
const DefaultTau = 0.05

// View is an absolute investor opinion on a single asset.
// Confidence is the view's variance (the Ω diagonal entry): smaller means more certain.
type View struct {
	Asset      string  `json:"asset"`
	Return     float64 `json:"return"`
	Confidence float64 `json:"confidence"`
}

// ViewMatrices holds the pick matrix P (K×N), the view returns Q and the
// diagonal view uncertainty Ω. All three are nil when there are no views.
type ViewMatrices struct {
	P     *mat.Dense
	Q     *mat.VecDense
	Omega *mat.DiagDense
}

// Len returns the number of views K.
func (vm ViewMatrices) Len() int {
	if vm.Q == nil {
		return 0
	}
	return vm.Q.Len()
}

// PosteriorEstimate is the Black-Litterman blended mean and covariance.
type PosteriorEstimate struct {
	Returns    *mat.VecDense
	Covariance *mat.SymDense
}

// ViewsFromMaps pairs view returns with their confidences. Both maps must have
// the same keys. Views come back in universe order.
func ViewsFromMaps(returns, confidences map[string]float64, universe AssetUniverse) ([]View, error) {
	for _, asset := range sortedKeys(returns) {
		if _, ok := confidences[asset]; !ok {
			return nil, configErr("confidence_levels", asset, "view has no confidence level")
		}
	}
	for _, asset := range sortedKeys(confidences) {
		if _, ok := returns[asset]; !ok {
			return nil, configErr("investor_views", asset, "confidence level has no matching view")
		}
		if _, ok := universe.Index(asset); !ok {
			return nil, configErr("investor_views", asset, "view references an asset outside the universe")
		}
	}

	views := make([]View, 0, len(returns))
	for _, asset := range universe.assets {
		q, ok := returns[asset]
		if !ok {
			continue
		}
		views = append(views, View{Asset: asset, Return: q, Confidence: confidences[asset]})
	}
	return views, nil
}

// BuildViewMatrices assembles P, Q and Ω. Each view contributes a one-hot row of P.
func BuildViewMatrices(universe AssetUniverse, views []View) (ViewMatrices, error) {
	if len(views) == 0 {
		return ViewMatrices{}, nil
	}

	k, n := len(views), universe.Len()
	p := mat.NewDense(k, n, nil)
	q := mat.NewVecDense(k, nil)
	omega := mat.NewDiagDense(k, nil)

	seen := make(map[string]bool, k)
	for i, v := range views {
		j, ok := universe.Index(v.Asset)
		if !ok {
			return ViewMatrices{}, configErr("investor_views", v.Asset, "view references an asset outside the universe")
		}
		if seen[v.Asset] {
			return ViewMatrices{}, configErr("investor_views", v.Asset, "more than one view on the same asset")
		}
		seen[v.Asset] = true

		if math.IsNaN(v.Return) || math.IsInf(v.Return, 0) {
			return ViewMatrices{}, configErr("investor_views", v.Asset, "view return is not a finite number")
		}
		if math.IsNaN(v.Confidence) || math.IsInf(v.Confidence, 0) || v.Confidence <= 0 {
			return ViewMatrices{}, configErr("confidence_levels", v.Asset, "view uncertainty must be a positive finite number")
		}

		p.Set(i, j, 1)
		q.SetVec(i, v.Return)
		omega.SetDiag(i, v.Confidence)
	}
	return ViewMatrices{P: p, Q: q, Omega: omega}, nil
}

// BlackLittermanModel derives equilibrium returns and blends them with views.
type BlackLittermanModel struct {
	log zerolog.Logger
}

// NewBlackLittermanModel creates a new Black-Litterman model.
func NewBlackLittermanModel(log zerolog.Logger) *BlackLittermanModel {
	return &BlackLittermanModel{
		log: log.With().Str("component", "black_litterman").Logger(),
	}
}

// ImpliedReturns computes the market-implied equilibrium returns π = δΣw.
func (bl *BlackLittermanModel) ImpliedReturns(
	cov mat.Symmetric,
	weights MarketWeights,
	universe AssetUniverse,
	delta float64,
) (*mat.VecDense, error) {
	if math.IsNaN(delta) || math.IsInf(delta, 0) || delta <= 0 {
		return nil, configErr("risk_aversion", "", "risk aversion must be positive")
	}
	if cov.SymmetricDim() != universe.Len() {
		return nil, configErr("covariance", "", "covariance dimension does not match the asset universe")
	}
	if err := weights.Validate(universe); err != nil {
		return nil, err
	}

	pi := mat.NewVecDense(universe.Len(), nil)
	pi.MulVec(cov, weights.Vector(universe))
	pi.ScaleVec(delta, pi)

	bl.log.Debug().
		Float64("risk_aversion", delta).
		Int("assets", universe.Len()).
		Msg("Computed implied equilibrium returns")
	return pi, nil
}

// Blend combines the prior (π, Σ) with the views:
//
//	M         = [(τΣ)⁻¹ + PᵀΩ⁻¹P]⁻¹
//	posterior = M[(τΣ)⁻¹π + PᵀΩ⁻¹Q]
//	cov       = Σ + M
//
// With no views the prior is returned unchanged (as copies), after checking Σ
// is invertible.
func (bl *BlackLittermanModel) Blend(
	cov mat.Symmetric,
	pi mat.Vector,
	views ViewMatrices,
	tau float64,
) (PosteriorEstimate, error) {
	if math.IsNaN(tau) || math.IsInf(tau, 0) || tau <= 0 {
		return PosteriorEstimate{}, configErr("tau", "", "tau must be positive")
	}
	n := cov.SymmetricDim()
	if pi.Len() != n {
		return PosteriorEstimate{}, configErr("implied_returns", "", "prior mean length does not match covariance dimension")
	}
	if views.Len() > 0 {
		if r, c := views.P.Dims(); c != n || r != views.Len() {
			return PosteriorEstimate{}, configErr("investor_views", "", "pick matrix shape does not match the prior")
		}
	}

	tauSigma := mat.NewSymDense(n, nil)
	tauSigma.ScaleSym(tau, cov)
	tauSigmaInv, err := invertSPD(tauSigma, "tau_sigma")
	if err != nil {
		return PosteriorEstimate{}, err
	}

	if views.Len() == 0 {
		bl.log.Debug().Msg("No investor views, posterior equals prior")
		return PosteriorEstimate{
			Returns:    mat.VecDenseCopyOf(pi),
			Covariance: copySym(cov),
		}, nil
	}

	// PᵀΩ⁻¹
	k := views.Len()
	omegaInv := mat.NewDiagDense(k, nil)
	for i := 0; i < k; i++ {
		omegaInv.SetDiag(i, 1/views.Omega.At(i, i))
	}
	var ptOmegaInv mat.Dense
	ptOmegaInv.Mul(views.P.T(), omegaInv)

	var ptOmegaInvP mat.Dense
	ptOmegaInvP.Mul(&ptOmegaInv, views.P)

	precision := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := tauSigmaInv.At(i, j) + 0.5*(ptOmegaInvP.At(i, j)+ptOmegaInvP.At(j, i))
			precision.SetSym(i, j, v)
		}
	}
	m, err := invertSPD(precision, "posterior_precision")
	if err != nil {
		return PosteriorEstimate{}, err
	}

	rhs := mat.NewVecDense(n, nil)
	rhs.MulVec(tauSigmaInv, pi)
	var viewTerm mat.VecDense
	viewTerm.MulVec(&ptOmegaInv, views.Q)
	rhs.AddVec(rhs, &viewTerm)

	mean := mat.NewVecDense(n, nil)
	mean.MulVec(m, rhs)

	postCov := mat.NewSymDense(n, nil)
	postCov.AddSym(cov, m)

	bl.log.Debug().
		Int("views", k).
		Float64("tau", tau).
		Msg("Blended views with equilibrium")
	return PosteriorEstimate{Returns: mean, Covariance: postCov}, nil
}

// invertSPD inverts a symmetric positive-definite matrix through its Cholesky
// factorization. Failure to factorize, or an ill-conditioned result, is a
// SingularMatrixError naming the matrix.
func invertSPD(a mat.Symmetric, name string) (*mat.SymDense, error) {
	var chol mat.Cholesky
	if ok := chol.Factorize(a); !ok {
		return nil, &SingularMatrixError{Matrix: name}
	}
	inv := mat.NewSymDense(a.SymmetricDim(), nil)
	if err := chol.InverseTo(inv); err != nil {
		return nil, &SingularMatrixError{Matrix: name, Err: err}
	}
	return inv, nil
}

func copySym(a mat.Symmetric) *mat.SymDense {
	out := mat.NewSymDense(a.SymmetricDim(), nil)
	out.CopySym(a)
	return out
}
