// Package export строит xlsx-отчеты для администраторов.
package export

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"signaldesk/internal/models"

	"github.com/xuri/excelize/v2"
)

const SignalsSheet = "Сигналы"

var signalHeaders = []string{
	"ID", "Создан", "Рынок", "Пара", "ТФ", "Направление",
	"Вход от", "Вход до", "Стоп", "Тейки", "Автор", "Комментарий",
}

// SignalsReport returns an xlsx workbook with one row per signal.
func SignalsReport(signals []*models.Signal, from, to time.Time) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if _, err := f.NewSheet(SignalsSheet); err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}

	// строка 1 период, строка 2 заголовки
	_ = f.SetCellValue(SignalsSheet, "A1", fmt.Sprintf("Период: %s - %s",
		from.Format("02.01.2006"), to.Format("02.01.2006")))
	lastCol, _ := excelize.ColumnNumberToName(len(signalHeaders))
	_ = f.MergeCell(SignalsSheet, "A1", lastCol+"1")

	titleStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("title style: %w", err)
	}
	_ = f.SetCellStyle(SignalsSheet, "A1", "A1", titleStyle)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}
	for i, h := range signalHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		_ = f.SetCellValue(SignalsSheet, cell, h)
	}
	_ = f.SetCellStyle(SignalsSheet, "A2", lastCol+"2", headerStyle)

	for i, sig := range signals {
		row := []interface{}{
			sig.ID,
			sig.CreatedAt.UTC().Format("02.01.2006 15:04:05"),
			sig.Market,
			sig.Symbol,
			sig.Timeframe,
			directionLabel(sig.Direction),
			sig.Entry.Min,
			sig.Entry.Max,
			sig.StopLoss,
			joinPrices(sig.TakeProfits),
			sig.CreatedBy,
			sig.Comment,
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+3)
		if err := f.SetSheetRow(SignalsSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+3, err)
		}
	}

	_ = f.SetColWidth(SignalsSheet, "A", "A", 8)
	_ = f.SetColWidth(SignalsSheet, "B", "B", 20)
	_ = f.SetColWidth(SignalsSheet, "C", "I", 12)
	_ = f.SetColWidth(SignalsSheet, "J", "J", 24)
	_ = f.SetColWidth(SignalsSheet, "K", "K", 8)
	_ = f.SetColWidth(SignalsSheet, "L", "L", 40)

	_ = f.DeleteSheet("Sheet1")
	if idx, err := f.GetSheetIndex(SignalsSheet); err == nil {
		f.SetActiveSheet(idx)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// FileName имя файла выгрузки за период.
func FileName(from, to time.Time) string {
	return fmt.Sprintf("signals_%s_to_%s.xlsx", from.Format("2006-01-02"), to.Format("2006-01-02"))
}

func directionLabel(d string) string {
	switch d {
	case models.DirectionLong:
		return "LONG"
	case models.DirectionShort:
		return "SHORT"
	default:
		return d
	}
}

func joinPrices(prices []float64) string {
	parts := make([]string, len(prices))
	for i, p := range prices {
		parts[i] = strconv.FormatFloat(p, 'f', -1, 64)
	}
	return strings.Join(parts, ", ")
}
