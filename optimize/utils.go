package optimize

import (
	"fmt"
	"strconv"
	"strings"
)

// readFloats parses whitespace separated floats.
func readFloats(s string) ([]float64, error) {
	fields := strings.Fields(s)
	res := make([]float64, len(fields))
	for i, f := range fields {
		x, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return res[:i], fmt.Errorf("field %d: %w", i+1, err)
		}
		res[i] = x
	}
	return res, nil
}
