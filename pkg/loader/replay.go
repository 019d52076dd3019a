package loader

import (
	"fmt"
	"math"

	dataframe "github.com/rocketlaunchr/dataframe-go"

	"github.com/akhildatla/vsp/pkg/sil"
)

// ReplayOptions controls how a table column becomes replay bytes.
type ReplayOptions struct {
	// Column names the column to replay. Empty selects the first
	// numeric or boolean column.
	Column string

	// Raw treats integers as already-packed ByteSil bytes (0-255).
	// Otherwise numbers are real samples quantized to the nearest ByteSil.
	Raw bool
}

// Replay converts one column of df into replay bytes. Missing values
// replay as Null; booleans replay as One or Null.
func Replay(df *dataframe.DataFrame, opts ReplayOptions) ([]byte, error) {
	s, err := selectColumn(df, opts.Column)
	if err != nil {
		return nil, err
	}

	kind := seriesKind(s)
	if kind == kindString || kind == kindUnknown {
		return nil, fmt.Errorf("%w: %s holds %s values", ErrUnsupportedColumn, s.Name(), kind)
	}

	n := s.NRows()
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		b, err := sampleByte(s.Value(i), opts.Raw)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", s.Name(), i, err)
		}
		out[i] = b
	}
	return out, nil
}

func selectColumn(df *dataframe.DataFrame, name string) (dataframe.Series, error) {
	if df == nil || len(df.Series) == 0 {
		return nil, ErrEmptyTrace
	}
	if name != "" {
		idx, err := df.NameToColumn(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %s (have %v)", ErrNoColumn, name, columnNames(df))
		}
		return df.Series[idx], nil
	}
	for _, s := range df.Series {
		switch seriesKind(s) {
		case kindInt64, kindFloat64, kindBool:
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: no numeric column", ErrNoColumn)
}

// sampleByte encodes one cell.
func sampleByte(v any, raw bool) (byte, error) {
	switch val := v.(type) {
	case nil:
		return sil.Null.Byte(), nil
	case bool:
		if val {
			return sil.One.Byte(), nil
		}
		return sil.Null.Byte(), nil
	case int64:
		if raw {
			if val < 0 || val > math.MaxUint8 {
				return 0, fmt.Errorf("%w: %d", ErrValueRange, val)
			}
			return byte(val), nil
		}
		return quantize(float64(val)), nil
	case float64:
		if raw {
			if val != math.Trunc(val) || val < 0 || val > math.MaxUint8 {
				return 0, fmt.Errorf("%w: %g", ErrValueRange, val)
			}
			return byte(val), nil
		}
		return quantize(val), nil
	default:
		return 0, fmt.Errorf("%w: %T", ErrUnsupportedColumn, v)
	}
}

// quantize maps a real sample to the packed ByteSil closest to it in
// log-polar space. Negative samples get phase π.
func quantize(x float64) byte {
	return sil.FromComplex(complex(x, 0)).Byte()
}
