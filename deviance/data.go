package deviance

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// ReadData reads a whitespace separated matrix, one group per line.
// Empty lines and lines starting with # are skipped. All the rows
// should have the same width.
func ReadData(rd io.Reader) (*mat.Dense, error) {
	scanner := bufio.NewScanner(rd)
	var (
		data  []float64
		width int
		rows  int
	)
	for lineno := 1; scanner.Scan(); lineno++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if rows == 0 {
			width = len(fields)
		} else if len(fields) != width {
			return nil, fmt.Errorf("line %d: expected %d columns, got %d", lineno, width, len(fields))
		}
		for i, f := range fields {
			x, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d, column %d: %w", lineno, i+1, err)
			}
			data = append(data, x)
		}
		rows++
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, fmt.Errorf("no data")
	}
	log.Infof("Read %d groups of size %d", rows, width)
	return mat.NewDense(rows, width, data), nil
}
