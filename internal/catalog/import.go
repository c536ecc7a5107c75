package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"catalog-backend/internal/database"
	"catalog-backend/internal/history"
	"catalog-backend/internal/models"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

// ImportRow is one product line read from a spreadsheet. Row is the 1-based
// sheet row it came from.
type ImportRow struct {
	Row   int
	Input Input
}

type RowError struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

type ImportReport struct {
	Imported int        `json:"imported"`
	Rejected []RowError `json:"rejected"`
}

var ErrEmptySheet = errors.New("spreadsheet has no rows")

type columns struct{ name, brand, price int }

var positional = columns{name: 0, brand: 1, price: 2}

// headerColumns recognises a header row and returns where each column sits.
func headerColumns(row []string) (columns, bool) {
	cols := columns{-1, -1, -1}
	for i, cell := range row {
		switch strings.ToLower(strings.TrimSpace(cell)) {
		case "name", "product", "product name":
			cols.name = i
		case "brand":
			cols.brand = i
		case "price":
			cols.price = i
		}
	}
	if cols.name < 0 {
		return positional, false
	}
	if cols.brand < 0 || cols.price < 0 {
		return positional, true
	}
	return cols, true
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func parsePrice(s string) (float64, error) {
	if s == "" {
		return 0, errors.New("price is missing")
	}
	if !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("price %q is not a number", s)
	}
	return v, nil
}

// ParseSheet reads name, brand and price rows from the first sheet of an xlsx
// workbook. Blank lines are skipped; rows that cannot be read are reported.
func ParseSheet(r io.Reader) ([]ImportRow, []RowError, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("read xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, ErrEmptySheet
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, nil, ErrEmptySheet
	}

	cols, hasHeader := headerColumns(rows[0])
	start := 0
	if hasHeader {
		start = 1
	}

	var (
		out      []ImportRow
		rejected []RowError
	)
	for i := start; i < len(rows); i++ {
		row := rows[i]
		name, brand, price := cell(row, cols.name), cell(row, cols.brand), cell(row, cols.price)
		if name == "" && brand == "" && price == "" {
			continue
		}

		in := Input{Name: name, Brand: brand}
		in.Price, err = parsePrice(price)
		if err == nil {
			err = in.normalize()
		}
		if err != nil {
			rejected = append(rejected, RowError{Row: i + 1, Reason: err.Error()})
			continue
		}
		out = append(out, ImportRow{Row: i + 1, Input: in})
	}
	return out, rejected, nil
}

// Import creates every row in one transaction.
func (s *Service) Import(ctx context.Context, rows []ImportRow, userCode string) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	err := database.DB.Transaction(func(tx *gorm.DB) error {
		for _, r := range rows {
			p := models.Product{
				Code:  uuid.NewString(),
				Name:  r.Input.Name,
				Brand: r.Input.Brand,
				Price: r.Input.Price,
			}
			if err := tx.Create(&p).Error; err != nil {
				return fmt.Errorf("row %d: %w", r.Row, err)
			}
			if err := history.Append(tx, models.EntityProduct, p.Code, models.HistoryCreated, userCode); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("import products: %w", err)
	}

	s.invalidate(ctx)
	return len(rows), nil
}
