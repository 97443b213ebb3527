package regression

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"appraisal/internal/autocorr"
)

// Coefficient is one row of the coefficient table.
type Coefficient struct {
	Name   string  `json:"name"`
	Value  float64 `json:"value"`
	StdErr float64 `json:"std_err"`
	TStat  float64 `json:"t_stat"`
	PValue float64 `json:"p_value"`
}

// Diagnostics summarises a fit. RMSE and the likelihood measures are on the
// modelled (transformed) scale of the dependent variable; MAPE is on the
// original scale.
type Diagnostics struct {
	Type          ModelType          `json:"type"`
	N             int                `json:"n"`
	Parameters    int                `json:"parameters"`
	Dropped       int                `json:"dropped"`
	RSquared      float64            `json:"r_squared"`
	AdjRSquared   float64            `json:"adj_r_squared"`
	LogLikelihood float64            `json:"log_likelihood"`
	AIC           float64            `json:"aic"`
	BIC           float64            `json:"bic"`
	RMSE          float64            `json:"rmse"`
	MAPE          float64            `json:"mape"`
	Sigma2        float64            `json:"sigma2"`
	Rho           float64            `json:"rho"`
	ResidualMoran autocorr.Statistic `json:"residual_moran"`
	Coefficients  []Coefficient      `json:"coefficients"`
}

// Coefficient returns the named coefficient.
func (d Diagnostics) Coefficient(name string) (Coefficient, bool) {
	for _, c := range d.Coefficients {
		if c.Name == name {
			return c, true
		}
	}
	return Coefficient{}, false
}

// Intercept returns the intercept coefficient, if the model has one.
func (d Diagnostics) Intercept() (Coefficient, bool) { return d.Coefficient(interceptName) }

func (d Diagnostics) clone() Diagnostics {
	d.Coefficients = append([]Coefficient(nil), d.Coefficients...)
	return d
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func (f *fitted) diagnostics(s Spec, resid []float64, dropped int) Diagnostics {
	n, p := len(resid), len(f.beta)
	nf, pf := float64(n), float64(p)
	d := Diagnostics{Type: s.Type, N: n, Parameters: p, Dropped: dropped, Rho: f.rho}

	var mean float64
	for _, r := range f.rows {
		mean += r.y
	}
	mean /= nf

	var rss, tss, ape float64
	apeN := 0
	for i, e := range resid {
		y := f.rows[i].y
		rss += e * e
		tss += (y - mean) * (y - mean)
		actual, fit := s.untransform(y), s.untransform(y-e)
		if actual != 0 {
			ape += math.Abs((actual - fit) / actual)
			apeN++
		}
	}
	if tss > 0 {
		d.RSquared = finite(1 - rss/tss)
	}
	d.AdjRSquared = d.RSquared
	if n > p {
		d.AdjRSquared = finite(1 - (1-d.RSquared)*(nf-1)/(nf-pf))
	}
	d.RMSE = math.Sqrt(rss / nf)
	if apeN > 0 {
		d.MAPE = 100 * ape / float64(apeN)
	}

	// Gaussian log-likelihood at the ML variance RSS/n
	d.LogLikelihood = finite(-nf / 2 * (math.Log(2*math.Pi) + math.Log(rss/nf) + 1))
	d.AIC = 2*pf - 2*d.LogLikelihood
	d.BIC = pf*math.Log(nf) - 2*d.LogLikelihood

	d.Sigma2 = rss / float64(f.df)
	student := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(f.df)}
	d.Coefficients = make([]Coefficient, p)
	for k, b := range f.beta {
		c := Coefficient{Name: f.names[k], Value: b}
		c.StdErr = math.Sqrt(math.Max(d.Sigma2*f.xtxInv.At(k, k), 0))
		if c.StdErr > 0 {
			c.TStat = b / c.StdErr
			c.PValue = 2 * student.Survival(math.Abs(c.TStat))
		}
		d.Coefficients[k] = c
	}

	byID := make(map[string]float64, n)
	for i, r := range f.rows {
		byID[r.id] = resid[i]
	}
	d.ResidualMoran = autocorr.MoranByID(f.w, byID, autocorr.DefaultSignificance)
	return d
}
