package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"storefront-cart/internal/domain"
)

type LineAdder interface {
	AddLine(ctx context.Context, variantID string, quantity int) (domain.Cart, error)
}

// CSVImporter reads variantId,quantity rows and adds each one to a cart.
type CSVImporter struct {
	reader *csv.Reader
	cart   LineAdder
}

func NewCSVImporter(r io.Reader, cart LineAdder) *CSVImporter {
	csvr := csv.NewReader(r)
	csvr.FieldsPerRecord = -1 // rows may have trailing commas
	csvr.TrimLeadingSpace = true
	return &CSVImporter{
		reader: csvr,
		cart:   cart,
	}
}

type csvRow struct {
	Line      int
	VariantID string
	Quantity  int
}

// Run adds rows in file order, one AddLine per row. It stops at the first
// failure and reports how many rows were applied before it.
func (i *CSVImporter) Run(ctx context.Context) (int, error) {
	headers, err := i.reader.Read()
	if err != nil {
		return 0, fmt.Errorf("read headers: %w", err)
	}
	index := headerIndex(headers)
	if _, ok := index["variantid"]; !ok {
		return 0, fmt.Errorf("missing variantId column")
	}

	imported := 0
	for line := 2; ; line++ {
		record, err := i.reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return imported, fmt.Errorf("read row %d: %w", line, err)
		}

		row, err := parseRow(record, index, line)
		if err != nil {
			return imported, err
		}
		if row == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return imported, err
		}
		if _, err := i.cart.AddLine(ctx, row.VariantID, row.Quantity); err != nil {
			return imported, fmt.Errorf("row %d (%s): %w", row.Line, row.VariantID, err)
		}
		imported++
	}

	return imported, nil
}

func headerIndex(headers []string) map[string]int {
	idx := make(map[string]int, len(headers))
	for i, h := range headers {
		idx[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	return idx
}

func parseRow(record []string, index map[string]int, line int) (*csvRow, error) {
	variant := pick(record, index, "variantid")
	if variant == "" {
		return nil, nil
	}
	qty := 1
	if raw := pick(record, index, "quantity"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("row %d: invalid quantity %q", line, raw)
		}
		qty = n
	}
	return &csvRow{Line: line, VariantID: variant, Quantity: qty}, nil
}

func pick(record []string, index map[string]int, key string) string {
	pos, ok := index[key]
	if !ok || pos >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[pos])
}
