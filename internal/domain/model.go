package domain

import "fmt"

// ModelKind identifies the stochastic process used to generate an asset's
// price path. The set is closed; every consumer switches exhaustively on it.
type ModelKind string

// Model kind constants
const (
	ModelGBM              ModelKind = "GBM"
	ModelHeston           ModelKind = "HESTON"
	ModelGARCH            ModelKind = "GARCH"
	ModelRegimeSwitching  ModelKind = "REGIME_SWITCHING"
	ModelBlockedBootstrap ModelKind = "BLOCKED_BOOTSTRAP"
	ModelLeveraged        ModelKind = "LEVERAGED"
)

// AssetModel is a tagged variant: Kind selects which parameter struct is set.
// Exactly one payload pointer is non-nil for a valid model.
type AssetModel struct {
	Kind      ModelKind
	GBM       *GBMParams
	Heston    *HestonParams
	GARCH     *GARCHParams
	Regime    *RegimeSwitchingParams
	Bootstrap *BlockedBootstrapParams
	Leveraged *LeveragedParams
}

// GBMParams parameterizes geometric Brownian motion.
type GBMParams struct {
	Mu    float64 // annualized drift
	Sigma float64 // annualized volatility
}

// HestonParams parameterizes the Heston stochastic-volatility model.
type HestonParams struct {
	Kappa   float64 // mean-reversion speed of variance
	Theta   float64 // long-run variance
	Sigma   float64 // vol of vol
	Rho     float64 // price/variance shock correlation
	V0      float64 // initial variance
	Mu      float64 // annualized drift
	Epsilon float64 // variance floor (variance never drops below this)
}

// GARCHParams parameterizes a GARCH(1,1) volatility process.
type GARCHParams struct {
	Omega      float64 // constant variance term
	Alpha      float64 // weight on previous squared innovation
	Beta       float64 // weight on previous variance
	Mu         float64 // annualized drift
	InitialVol float64 // starting volatility; 0 means use long-run level
}

// RegimeParams describes one market regime.
type RegimeParams struct {
	Mu              float64   // annualized drift within the regime
	Sigma           float64   // annualized volatility within the regime
	TransitionProbs []float64 // row of transition probabilities, one per regime
}

// RegimeSwitchingParams parameterizes a Markov regime-switching model.
type RegimeSwitchingParams struct {
	InitialRegime int // index into Regimes
	Regimes       []RegimeParams
}

// BlockedBootstrapParams parameterizes blocked bootstrap resampling of
// historical returns.
type BlockedBootstrapParams struct {
	BlockSize int // consecutive historical steps resampled per block
}

// LeveragedParams parameterizes a derived asset that daily-compounds a
// multiple of another asset's return. Leveraged assets are generated only
// after every primary asset.
type LeveragedParams struct {
	BaseTicker string  // ticker of the already-generated base asset
	Multiplier float64 // e.g. 3.0 or -1.0
}

// IsDerived reports whether the model is computed from another asset's path
// rather than from its own shock stream.
func (m AssetModel) IsDerived() bool {
	return m.Kind == ModelLeveraged
}

// Validate checks that the payload matching Kind is present and well formed.
func (m AssetModel) Validate() error {
	switch m.Kind {
	case ModelGBM:
		if m.GBM == nil {
			return fmt.Errorf("%s model missing parameters", m.Kind)
		}
	case ModelHeston:
		if m.Heston == nil {
			return fmt.Errorf("%s model missing parameters", m.Kind)
		}
	case ModelGARCH:
		if m.GARCH == nil {
			return fmt.Errorf("%s model missing parameters", m.Kind)
		}
		if m.GARCH.Alpha+m.GARCH.Beta >= 1 {
			return fmt.Errorf("GARCH alpha+beta must be < 1, got %g", m.GARCH.Alpha+m.GARCH.Beta)
		}
	case ModelRegimeSwitching:
		if m.Regime == nil {
			return fmt.Errorf("%s model missing parameters", m.Kind)
		}
		n := len(m.Regime.Regimes)
		if n == 0 {
			return fmt.Errorf("regime-switching model has no regimes")
		}
		if m.Regime.InitialRegime < 0 || m.Regime.InitialRegime >= n {
			return fmt.Errorf("initial regime index %d out of range [0,%d)", m.Regime.InitialRegime, n)
		}
		for i, r := range m.Regime.Regimes {
			if len(r.TransitionProbs) != n {
				return fmt.Errorf("regime %d has %d transition probabilities, want %d", i, len(r.TransitionProbs), n)
			}
		}
	case ModelBlockedBootstrap:
		if m.Bootstrap == nil {
			return fmt.Errorf("%s model missing parameters", m.Kind)
		}
		if m.Bootstrap.BlockSize < 1 {
			return fmt.Errorf("bootstrap block size must be >= 1, got %d", m.Bootstrap.BlockSize)
		}
	case ModelLeveraged:
		if m.Leveraged == nil {
			return fmt.Errorf("%s model missing parameters", m.Kind)
		}
		if m.Leveraged.BaseTicker == "" {
			return fmt.Errorf("leveraged model missing base ticker")
		}
	default:
		return fmt.Errorf("unknown model kind %q", m.Kind)
	}
	return nil
}
