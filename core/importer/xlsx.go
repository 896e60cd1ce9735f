package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"oblik/core/metrics"
	"oblik/core/records"
	"oblik/core/store"
	"oblik/core/utils"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const (
	colNumber      = "Номер"
	colType        = "Тип"
	colDate        = "Дата"
	colDescription = "Опис"
	colApplicant   = "Заявник"
	colAssignee    = "Виконавець"
)

var ErrTooManyRows = errors.New("import: too many rows")

var typeAliases = map[string]string{
	"єо":                     records.TypeEO,
	"єдиний облік":           records.TypeEO,
	"звернення":              records.TypeZvern,
	"заява":                  records.TypeApplication,
	"протокол затримання":    records.TypeDetentionProtocol,
	"службове розслідування": records.TypeServiceInvestigation,
}

// RecordCreator is the part of records.Service the importer needs.
type RecordCreator interface {
	Create(ctx context.Context, actor records.Actor, in records.RecordInput) (*store.Record, error)
}

type UserLookup interface {
	FindUserByUsername(ctx context.Context, username string) (*store.User, error)
}

type RowError struct {
	Row    int    `json:"row"`
	Number string `json:"number,omitempty"`
	Error  string `json:"error"`
}

type Result struct {
	Total   int        `json:"total"`
	Created int        `json:"created"`
	Failed  int        `json:"failed"`
	Errors  []RowError `json:"errors"`
}

type Importer struct {
	creator RecordCreator
	users   UserLookup
	maxRows int
	metrics *metrics.Metrics
	logger  *utils.Logger
}

func New(creator RecordCreator, users UserLookup, maxRows int, m *metrics.Metrics, logger *utils.Logger) *Importer {
	if maxRows <= 0 {
		maxRows = 5000
	}
	return &Importer{creator: creator, users: users, maxRows: maxRows, metrics: m, logger: logger}
}

// ImportXLSX reads the first sheet of a register workbook. The first row is
// the header; every following non-empty row becomes one record. A failing
// row is reported and the rest of the batch continues.
func (im *Importer) ImportXLSX(ctx context.Context, actor records.Actor, r io.Reader) (*Result, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()
	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, errors.New("import: workbook has no sheets")
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	res := &Result{Errors: []RowError{}}
	if len(rows) < 2 {
		return res, nil
	}
	if len(rows)-1 > im.maxRows {
		return nil, ErrTooManyRows
	}
	header := map[string]int{}
	for i, h := range rows[0] {
		header[strings.TrimSpace(h)] = i
	}
	if _, ok := header[colDate]; !ok {
		return nil, fmt.Errorf("import: missing column %q", colDate)
	}
	cell := func(row []string, name string) string {
		idx, ok := header[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	for i := 1; i < len(rows); i++ {
		row := rows[i]
		if isBlank(row) {
			continue
		}
		res.Total++
		rowNo := i + 1
		number := cell(row, colNumber)
		in, err := im.rowInput(ctx, row, cell)
		if err == nil {
			_, err = im.creator.Create(ctx, actor, in)
		}
		if err != nil {
			res.Failed++
			res.Errors = append(res.Errors, RowError{Row: rowNo, Number: number, Error: err.Error()})
			im.metrics.IncImportRow("failed")
			if !isExpected(err) {
				im.logger.Error("import row failed", zap.Int("row", rowNo), zap.Error(err))
			}
			continue
		}
		res.Created++
		im.metrics.IncImportRow("created")
	}
	im.logger.Printf("register import finished: total=%d created=%d failed=%d", res.Total, res.Created, res.Failed)
	return res, nil
}

func (im *Importer) rowInput(ctx context.Context, row []string, cell func([]string, string) string) (records.RecordInput, error) {
	recordType, err := parseType(cell(row, colType))
	if err != nil {
		return records.RecordInput{}, err
	}
	eoDate, err := parseCellDate(cell(row, colDate))
	if err != nil {
		return records.RecordInput{}, &records.ValidationError{Field: "eoDate", Rule: "format"}
	}
	in := records.RecordInput{
		EONumber:    cell(row, colNumber),
		RecordType:  recordType,
		EODate:      eoDate,
		Description: cell(row, colDescription),
		Applicant:   cell(row, colApplicant),
	}
	if username := cell(row, colAssignee); username != "" && im.users != nil {
		u, err := im.users.FindUserByUsername(ctx, username)
		if err != nil {
			return records.RecordInput{}, err
		}
		if u == nil {
			return records.RecordInput{}, &records.NotFoundError{Entity: "user", IDs: []string{username}}
		}
		in.AssignedUserID = &u.ID
	}
	return in, nil
}

func parseType(raw string) (string, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return records.TypeEO, nil
	}
	if code := strings.ToUpper(v); records.IsRecordType(code) {
		return code, nil
	}
	if code, ok := typeAliases[strings.ToLower(v)]; ok {
		return code, nil
	}
	return "", &records.ValidationError{Field: "recordType", Rule: "unknown"}
}

// parseCellDate accepts text dates and raw Excel serial numbers.
func parseCellDate(raw string) (time.Time, error) {
	if t, err := utils.ParseDate(raw); err == nil {
		return t, nil
	}
	serial, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return time.Time{}, err
	}
	t, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func isExpected(err error) bool {
	return errors.Is(err, records.ErrValidation) || errors.Is(err, records.ErrConflict) || errors.Is(err, records.ErrNotFound)
}
