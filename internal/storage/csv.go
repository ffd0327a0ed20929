package storage

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/iwvelando/autocall-forecast/pkg/datetime"
	"github.com/iwvelando/autocall-forecast/pkg/mathutil"
)

// ErrInvalidCSV is returned for malformed price files.
var ErrInvalidCSV = errors.New("invalid price csv")

// ParseCSV reads a wide price file: a header of date followed by one column
// per asset, then one row per date. Empty cells are skipped.
func ParseCSV(r io.Reader) ([]Price, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read header: %v", ErrInvalidCSV, err)
	}
	if len(header) < 2 || !strings.EqualFold(strings.TrimSpace(header[0]), "date") {
		return nil, fmt.Errorf("%w: header must be date,<asset>...", ErrInvalidCSV)
	}
	assets := make([]string, len(header)-1)
	for i, h := range header[1:] {
		assets[i] = strings.TrimSpace(h)
		if assets[i] == "" {
			return nil, fmt.Errorf("%w: empty asset name in column %d", ErrInvalidCSV, i+2)
		}
	}

	var prices []Price
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrInvalidCSV, line, err)
		}
		d, err := datetime.ParseDate(strings.TrimSpace(record[0]))
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrInvalidCSV, line, err)
		}
		for i, cell := range record[1:] {
			cell = strings.TrimSpace(cell)
			if cell == "" {
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d, %s: %v", ErrInvalidCSV, line, assets[i], err)
			}
			if !mathutil.IsFinite(v) {
				return nil, fmt.Errorf("%w: line %d, %s: close %q is not finite", ErrInvalidCSV, line, assets[i], cell)
			}
			prices = append(prices, Price{Date: d, Asset: assets[i], Close: v})
		}
	}
	return prices, nil
}

// ImportCSV parses r with ParseCSV and stores the result, returning the number
// of closes saved.
func (s *Store) ImportCSV(ctx context.Context, r io.Reader) (int, error) {
	prices, err := ParseCSV(r)
	if err != nil {
		return 0, err
	}
	if err := s.SavePrices(ctx, prices); err != nil {
		return 0, err
	}
	return len(prices), nil
}
