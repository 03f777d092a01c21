package storage

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"
)

// writeText emits a dimension header followed by one matrix row per line.
// Values use the shortest representation that parses back to the same
// float64, so text round trips are exact.
func writeText(w io.Writer, m *mat.Dense) error {
	bw := bufio.NewWriter(w)
	r, c := m.Dims()
	if _, err := fmt.Fprintf(bw, "%d %d\n", r, c); err != nil {
		return err
	}
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if j > 0 {
				if err := bw.WriteByte(' '); err != nil {
					return err
				}
			}
			if _, err := bw.WriteString(strconv.FormatFloat(m.At(i, j), 'g', -1, 64)); err != nil {
				return err
			}
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func readText(r io.Reader) (*mat.Dense, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	fields := strings.Fields(string(raw))
	if len(fields) < 2 {
		return nil, fmt.Errorf("truncated text matrix")
	}
	rows, err := strconv.Atoi(fields[0])
	if err != nil {
		return nil, fmt.Errorf("bad row count %q", fields[0])
	}
	cols, err := strconv.Atoi(fields[1])
	if err != nil {
		return nil, fmt.Errorf("bad column count %q", fields[1])
	}
	if rows <= 0 || cols <= 0 || len(fields) != 2+rows*cols {
		return nil, fmt.Errorf("text matrix has %d values, want %d x %d", len(fields)-2, rows, cols)
	}
	data := make([]float64, rows*cols)
	for i, f := range fields[2:] {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("bad value %q at position %d", f, i)
		}
		data[i] = v
	}
	return mat.NewDense(rows, cols, data), nil
}

func writeNpy(w io.Writer, m *mat.Dense) error {
	return npyio.Write(w, m)
}

func readNpy(r io.Reader) (*mat.Dense, error) {
	var m mat.Dense
	if err := npyio.Read(r, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
