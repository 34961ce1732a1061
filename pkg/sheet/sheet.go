// Package sheet renders a collection report as an xlsx workbook.
//
// Each host expands to max(GPUs, storage devices, 1) rows. Row i carries
// the i-th GPU and the i-th storage device where they exist; the server
// identifier and hostname repeat on every row, CPU and RAM appear on the
// host's first row only. Failed hosts are not rendered.
package sheet

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/x1thexxx-lgtm/hostinv/pkg/inventory"
)

// SheetName is the title of the single worksheet.
const SheetName = "Server Inventory"

// Headers is the header row, in column order.
var Headers = []string{
	"Server Identifier",
	"Hostname",
	"GPU Type",
	"GPU VRAM",
	"CPU Count",
	"CPU Type",
	"RAM",
	"Storage Device",
	"Mount Path",
	"UUID",
	"Total Storage",
	"Available Storage",
}

// HostRows expands one host into its spreadsheet rows.
func HostRows(host string, inv inventory.HostInventory) [][]string {
	n := max(len(inv.GPU), len(inv.Storage), 1)
	rows := make([][]string, n)
	for i := range rows {
		row := make([]string, len(Headers))
		row[0] = host
		row[1] = inv.Hostname
		if i < len(inv.GPU) {
			row[2] = inv.GPU[i].Type
			row[3] = inv.GPU[i].VRAM
		}
		if i == 0 {
			row[4] = inv.CPU.Count
			row[5] = inv.CPU.Type
			row[6] = string(inv.RAM)
		}
		if i < len(inv.Storage) {
			s := inv.Storage[i]
			row[7] = s.Device
			row[8] = s.Mount
			row[9] = s.UUID
			row[10] = s.Total
			row[11] = s.Available
		}
		rows[i] = row
	}
	return rows
}

// Rows renders every successful host of the report, sorted by identifier.
func Rows(report *inventory.Report) [][]string {
	inventories := report.Inventories()
	var rows [][]string
	for _, host := range report.Hosts() {
		rows = append(rows, HostRows(host, inventories[host])...)
	}
	return rows
}

// Write saves the report as an xlsx workbook at path.
func Write(path string, report *inventory.Report) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}

	if err := setRow(f, 1, Headers); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(Headers), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(SheetName, "A1", last, bold); err != nil {
		return fmt.Errorf("header style: %w", err)
	}

	for i, row := range Rows(report) {
		if err := setRow(f, i+2, row); err != nil {
			return err
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

func setRow(f *excelize.File, rowNum int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return err
	}
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	if err := f.SetSheetRow(SheetName, cell, &cells); err != nil {
		return fmt.Errorf("write row %d: %w", rowNum, err)
	}
	return nil
}
