package export

import (
	"bytes"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/zombor/billbox/internal/receipt"
)

// Lister is the part of receipt.Service the export needs
type Lister interface {
	List(kind receipt.Kind, opts receipt.ListOptions) ([]receipt.Record, error)
}

// Options narrows what is exported. Zero From/To leave that side of the window open.
type Options struct {
	UserID         string
	From           time.Time
	To             time.Time
	IncludeRemoved bool
	DateLayout     string
}

var headers = []string{"Date", "Provider", "Amount", "Currency", "Description", "State", "Inbox Item", "ID"}

var sheets = []struct {
	name string
	kind receipt.Kind
}{
	{"Bills", receipt.KindBill},
	{"Receipts", receipt.KindReceipt},
}

// Workbook renders bills and receipts into an XLSX document, one sheet each
func Workbook(src Lister, opts Options) ([]byte, error) {
	start := time.Now()
	f := excelize.NewFile()
	defer f.Close()

	total := 0
	for i, sh := range sheets {
		records, err := src.List(sh.kind, receipt.ListOptions{UserID: opts.UserID, IncludeRemoved: opts.IncludeRemoved})
		if err != nil {
			return nil, fmt.Errorf("listing %s: %w", sh.name, err)
		}

		if i == 0 {
			if err := f.SetSheetName("Sheet1", sh.name); err != nil {
				return nil, fmt.Errorf("naming sheet: %w", err)
			}
		} else if _, err := f.NewSheet(sh.name); err != nil {
			return nil, fmt.Errorf("creating sheet: %w", err)
		}

		n, err := writeSheet(f, sh.name, records, opts)
		if err != nil {
			return nil, err
		}
		total += n
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	slog.Info("Export generated", "records", total, "bytes", buf.Len(), "duration", time.Since(start))
	return buf.Bytes(), nil
}

func writeSheet(f *excelize.File, sheet string, records []receipt.Record, opts Options) (int, error) {
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return 0, fmt.Errorf("writing header: %w", err)
		}
	}

	row := 2
	for _, r := range records {
		if !inWindow(r.Date, opts) {
			continue
		}
		values := []any{
			receipt.FormatDate(r.Date, opts.DateLayout),
			r.Provider,
			float64(r.AmountCents) / 100,
			r.Currency,
			r.Description,
			string(r.State),
			r.InboxItemID,
			r.ID,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return 0, fmt.Errorf("writing row %d: %w", row, err)
			}
		}
		row++
	}

	_ = f.SetColWidth(sheet, "A", "A", 12) // date
	_ = f.SetColWidth(sheet, "B", "B", 28) // provider
	_ = f.SetColWidth(sheet, "C", "D", 12)
	_ = f.SetColWidth(sheet, "E", "E", 48)
	_ = f.SetColWidth(sheet, "G", "H", 38) // ids

	return row - 2, nil
}

func inWindow(d time.Time, opts Options) bool {
	if !opts.From.IsZero() && d.Before(opts.From) {
		return false
	}
	if !opts.To.IsZero() && d.After(opts.To) {
		return false
	}
	return true
}
