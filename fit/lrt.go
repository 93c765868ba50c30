package fit

import (
	"fmt"

	"gonum.org/v1/gonum/mathext"
)

// minLRT is the tolerated negative statistic value caused by
// imperfect optimization of the alternative.
const minLRT = -1e-6

// LRTResult is a likelihood-ratio test result.
type LRTResult struct {
	L0        float64 `json:"lnL0"`
	L1        float64 `json:"lnL1"`
	Statistic float64 `json:"statistic"`
	DF        int     `json:"df"`
	PValue    float64 `json:"pValue"`
}

// LRT tests the nested null model with the log likelihood l0 against
// the alternative l1 with df extra parameters. The p-value is the
// chi-square upper tail.
func LRT(l0, l1 float64, df int) (LRTResult, error) {
	if df < 1 {
		return LRTResult{}, fmt.Errorf("degrees of freedom should be positive, got %d", df)
	}
	stat := 2 * (l1 - l0)
	if stat < 0 {
		if stat < minLRT {
			log.Warningf("Null model has a higher likelihood (%v > %v), alternative is not optimized", l0, l1)
		}
		stat = 0
	}
	return LRTResult{
		L0:        l0,
		L1:        l1,
		Statistic: stat,
		DF:        df,
		PValue:    mathext.GammaIncRegComp(float64(df)/2, stat/2),
	}, nil
}
