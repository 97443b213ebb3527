package regression

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// pivotTolerance is the smallest pivot, relative to the largest entry of the
// matrix, that Gauss-Jordan accepts before calling the matrix singular.
const pivotTolerance = 1e-12

// gaussJordanInverse inverts a square matrix by Gauss-Jordan elimination with
// partial pivoting. a is not modified.
func gaussJordanInverse(a mat.Matrix) (*mat.Dense, error) {
	n, c := a.Dims()
	if n != c {
		return nil, fmt.Errorf("inverse of a %d×%d matrix", n, c)
	}
	work := mat.DenseCopyOf(a)
	inv := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		inv.Set(i, i, 1)
	}

	var scale float64
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			scale = math.Max(scale, math.Abs(work.At(i, j)))
		}
	}
	if scale == 0 {
		return nil, ErrSingularMatrix
	}

	for col := 0; col < n; col++ {
		pivot := col
		for r := col + 1; r < n; r++ {
			if math.Abs(work.At(r, col)) > math.Abs(work.At(pivot, col)) {
				pivot = r
			}
		}
		if math.Abs(work.At(pivot, col)) <= pivotTolerance*scale {
			return nil, fmt.Errorf("%w: no pivot in column %d", ErrSingularMatrix, col)
		}
		if pivot != col {
			swapRows(work, pivot, col)
			swapRows(inv, pivot, col)
		}

		p := work.At(col, col)
		for j := 0; j < n; j++ {
			work.Set(col, j, work.At(col, j)/p)
			inv.Set(col, j, inv.At(col, j)/p)
		}
		for r := 0; r < n; r++ {
			if r == col {
				continue
			}
			f := work.At(r, col)
			if f == 0 {
				continue
			}
			for j := 0; j < n; j++ {
				work.Set(r, j, work.At(r, j)-f*work.At(col, j))
				inv.Set(r, j, inv.At(r, j)-f*inv.At(col, j))
			}
		}
	}
	return inv, nil
}

func swapRows(m *mat.Dense, a, b int) {
	ra := mat.Row(nil, a, m)
	rb := mat.Row(nil, b, m)
	m.SetRow(a, rb)
	m.SetRow(b, ra)
}

// leastSquares returns β minimising |Xβ − y|² and (XᵀX)⁻¹, which the
// diagnostics need for standard errors.
func leastSquares(x *mat.Dense, y *mat.VecDense, solver Solver) (*mat.VecDense, *mat.Dense, error) {
	_, p := x.Dims()
	var xtx mat.Dense
	xtx.Mul(x.T(), x)

	switch solver {
	case SolverQR:
		var qr mat.QR
		qr.Factorize(x)
		beta := mat.NewVecDense(p, nil)
		if err := qr.SolveVecTo(beta, false, y); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrSingularMatrix, err)
		}
		var inv mat.Dense
		if err := inv.Inverse(&xtx); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrSingularMatrix, err)
		}
		return beta, &inv, nil
	default:
		inv, err := gaussJordanInverse(&xtx)
		if err != nil {
			return nil, nil, err
		}
		var xty mat.VecDense
		xty.MulVec(x.T(), y)
		beta := mat.NewVecDense(p, nil)
		beta.MulVec(inv, &xty)
		return beta, inv, nil
	}
}
