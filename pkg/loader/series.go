package loader

import (
	dataframe "github.com/rocketlaunchr/dataframe-go"
)

// columnKind is the element type of a Series.
type columnKind uint8

const (
	kindInt64 columnKind = iota
	kindFloat64
	kindString
	kindBool
	kindUnknown
)

func (k columnKind) String() string {
	switch k {
	case kindInt64:
		return "int64"
	case kindFloat64:
		return "float64"
	case kindString:
		return "string"
	case kindBool:
		return "bool"
	default:
		return "unknown"
	}
}

// seriesKind returns the element type of s. Booleans live in a
// SeriesGeneric, so the first non-nil value decides.
func seriesKind(s dataframe.Series) columnKind {
	switch s.(type) {
	case nil:
		return kindUnknown
	case *dataframe.SeriesInt64:
		return kindInt64
	case *dataframe.SeriesFloat64:
		return kindFloat64
	case *dataframe.SeriesString:
		return kindString
	case *dataframe.SeriesGeneric:
		for i := 0; i < s.NRows(); i++ {
			switch s.Value(i).(type) {
			case nil:
				continue
			case bool:
				return kindBool
			}
			return kindUnknown
		}
	}
	return kindUnknown
}

// columnNames returns the names of all Series in df.
func columnNames(df *dataframe.DataFrame) []string {
	if df == nil {
		return nil
	}
	names := make([]string, len(df.Series))
	for i, s := range df.Series {
		names[i] = s.Name()
	}
	return names
}
