package loader

import (
	"context"
	"fmt"
	"os"

	dataframe "github.com/rocketlaunchr/dataframe-go"
	"github.com/rocketlaunchr/dataframe-go/imports"
)

// LoadCSV reads a CSV trace into a DataFrame using dataframe-go.
// - First row is header (column names)
// - Auto-detects column types (int64, float64, string)
// - Empty values become nil
func LoadCSV(ctx context.Context, path string) (*dataframe.DataFrame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	df, err := imports.LoadFromCSV(ctx, file, imports.CSVLoadOptions{
		InferDataTypes: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	if df == nil || len(df.Series) == 0 {
		return nil, ErrEmptyTrace
	}
	return df, nil
}
