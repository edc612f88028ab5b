package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/anasaran05/learnsync/core/progress"
)

const exportSheet = "Progress"

// export copies the progress table, header included, to a new workbook at path.
func (cli *commandLine) export(ctx context.Context, path string) error {
	rows, err := cli.store.ReadRange(ctx, cli.storeID, progress.TableRange(cli.sheet))
	if err != nil {
		return errors.Wrap(err, "reading progress table")
	}
	if len(rows) == 0 {
		rows = [][]string{progress.Header}
	}

	file := excelize.NewFile()
	defer func() { _ = file.Close() }()
	if err = file.SetSheetName("Sheet1", exportSheet); err != nil {
		return errors.Wrap(err, "naming sheet")
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		vals := make([]interface{}, len(row))
		for j, v := range row {
			vals[j] = v
		}
		if err = file.SetSheetRow(exportSheet, cell, &vals); err != nil {
			return errors.Wrapf(err, "writing row %d", i+1)
		}
	}
	if err = file.SaveAs(path); err != nil {
		return errors.Wrapf(err, "saving %s", path)
	}
	fmt.Fprintf(cli.out, "exported %d records to %s\n", len(rows)-1, path)
	return nil
}
