package catalog

import (
	"fmt"
	"io"
	"time"

	"catalog-backend/internal/models"

	"github.com/gocarina/gocsv"
	"github.com/xuri/excelize/v2"
)

const exportSheet = "Products"

type exportRow struct {
	Code         string  `csv:"code"`
	Name         string  `csv:"name"`
	Brand        string  `csv:"brand"`
	Price        float64 `csv:"price"`
	URL          string  `csv:"url"`
	SupplierCode string  `csv:"supplier_code"`
	UpdatedAt    string  `csv:"updated_at"`
}

var exportHeader = []any{"code", "name", "brand", "price", "url", "supplier_code", "updated_at"}

func toExportRows(products []models.Product) []exportRow {
	rows := make([]exportRow, 0, len(products))
	for _, p := range products {
		row := exportRow{
			Code:      p.Code,
			Name:      p.Name,
			Brand:     p.Brand,
			Price:     p.Price,
			URL:       p.URL,
			UpdatedAt: p.UpdatedAt.UTC().Format(time.RFC3339),
		}
		if p.SupplierCode != nil {
			row.SupplierCode = *p.SupplierCode
		}
		rows = append(rows, row)
	}
	return rows
}

func WriteCSV(w io.Writer, products []models.Product) error {
	if err := gocsv.Marshal(toExportRows(products), w); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

func WriteXLSX(w io.Writer, products []models.Product) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	if err := f.SetSheetRow(exportSheet, "A1", &exportHeader); err != nil {
		return fmt.Errorf("write xlsx header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	if err := f.SetRowStyle(exportSheet, 1, 1, bold); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}

	for i, r := range toExportRows(products) {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := []any{r.Code, r.Name, r.Brand, r.Price, r.URL, r.SupplierCode, r.UpdatedAt}
		if err := f.SetSheetRow(exportSheet, cell, &values); err != nil {
			return fmt.Errorf("write xlsx row %d: %w", i+2, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}
