package training

import (
	"sort"

	"github.com/tipster-dev/jackpot-sim/internal/models"
)

// maxCurveKnots bounds the stored curve size; adjacent knots with
// equal fitted values collapse anyway.
const maxCurveKnots = 20

// FitIsotonic runs weighted pool-adjacent-violators regression over
// (x, y, w) samples and returns a monotone piecewise-constant curve.
func FitIsotonic(xs, ys, ws []float64) *models.CalibrationCurve {
	n := len(xs)
	if n == 0 || len(ys) != n {
		return nil
	}
	if ws == nil {
		ws = make([]float64, n)
		for i := range ws {
			ws[i] = 1
		}
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return xs[idx[a]] < xs[idx[b]] })

	// Pool adjacent violators over blocks.
	type block struct {
		sumWY, sumW, xStart float64
	}
	blocks := make([]block, 0, n)
	for _, i := range idx {
		blocks = append(blocks, block{sumWY: ws[i] * ys[i], sumW: ws[i], xStart: xs[i]})
		for len(blocks) > 1 {
			last := len(blocks) - 1
			if blocks[last-1].sumWY/blocks[last-1].sumW <= blocks[last].sumWY/blocks[last].sumW {
				break
			}
			blocks[last-1].sumWY += blocks[last].sumWY
			blocks[last-1].sumW += blocks[last].sumW
			blocks = blocks[:last]
		}
	}

	curve := &models.CalibrationCurve{
		X: make([]float64, 0, len(blocks)),
		Y: make([]float64, 0, len(blocks)),
	}
	for _, b := range blocks {
		curve.X = append(curve.X, b.xStart)
		curve.Y = append(curve.Y, b.sumWY/b.sumW)
	}
	return thinCurve(curve)
}

func thinCurve(c *models.CalibrationCurve) *models.CalibrationCurve {
	if len(c.X) <= maxCurveKnots {
		return c
	}
	step := float64(len(c.X)-1) / float64(maxCurveKnots-1)
	thinned := &models.CalibrationCurve{}
	for i := 0; i < maxCurveKnots; i++ {
		k := int(float64(i) * step)
		thinned.X = append(thinned.X, c.X[k])
		thinned.Y = append(thinned.Y, c.Y[k])
	}
	return thinned
}
