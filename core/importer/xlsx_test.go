package importer

import (
	"bytes"
	"context"
	"testing"
	"time"

	"oblik/core/metrics"
	"oblik/core/records"
	"oblik/core/store"
	"oblik/core/utils"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type fakeCreator struct {
	inputs []records.RecordInput
	taken  map[string]bool
}

func (c *fakeCreator) Create(_ context.Context, _ records.Actor, in records.RecordInput) (*store.Record, error) {
	if c.taken[in.EONumber] {
		return nil, &records.ConflictError{Field: "eoNumber", Value: in.EONumber}
	}
	c.inputs = append(c.inputs, in)
	return &store.Record{EONumber: in.EONumber, RecordType: in.RecordType}, nil
}

type fakeUsers map[string]*store.User

func (u fakeUsers) FindUserByUsername(_ context.Context, username string) (*store.User, error) {
	return u[username], nil
}

func workbook(t *testing.T, rows [][]any) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf
}

func TestImportXLSXReportsRowErrors(t *testing.T) {
	creator := &fakeCreator{taken: map[string]bool{"EO-9": true}}
	users := fakeUsers{"inspector": {ID: "u1", Username: "inspector"}}
	m := metrics.New(prometheus.NewRegistry())
	im := New(creator, users, 100, m, utils.NewNopLogger())

	buf := workbook(t, [][]any{
		{"Номер", "Тип", "Дата", "Опис", "Заявник", "Виконавець"},
		{"EO-1", "ЄО", "10.01.2026", "крадіжка", "Іваненко", "inspector"},
		{"", "заява", "2026-01-11", "", "", ""},
		{},
		{"EO-9", "EO", "12.01.2026", "", "", ""},
		{"EO-10", "невідомо", "12.01.2026", "", "", ""},
		{"EO-11", "", "вчора", "", "", ""},
		{"EO-12", "", "46034", "", "", "ghost"},
	})

	res, err := im.ImportXLSX(context.Background(), records.Actor{ID: "admin"}, buf)
	require.NoError(t, err)
	assert.Equal(t, 6, res.Total)
	assert.Equal(t, 2, res.Created)
	assert.Equal(t, 4, res.Failed)

	require.Len(t, creator.inputs, 2)
	first := creator.inputs[0]
	assert.Equal(t, records.TypeEO, first.RecordType)
	assert.Equal(t, time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC), first.EODate)
	require.NotNil(t, first.AssignedUserID)
	assert.Equal(t, "u1", *first.AssignedUserID)
	assert.Equal(t, records.TypeApplication, creator.inputs[1].RecordType)
	assert.Empty(t, creator.inputs[1].EONumber)

	rows := make([]int, 0, len(res.Errors))
	for _, e := range res.Errors {
		rows = append(rows, e.Row)
	}
	assert.Equal(t, []int{5, 6, 7, 8}, rows)
	assert.Equal(t, "EO-9", res.Errors[0].Number)
	assert.Equal(t, float64(4), testutil.ToFloat64(m.ImportRows.WithLabelValues("failed")))
}

func TestImportXLSXLimits(t *testing.T) {
	im := New(&fakeCreator{}, nil, 1, nil, utils.NewNopLogger())
	buf := workbook(t, [][]any{
		{"Номер", "Дата"},
		{"EO-1", "10.01.2026"},
		{"EO-2", "10.01.2026"},
	})
	_, err := im.ImportXLSX(context.Background(), records.Actor{}, buf)
	assert.ErrorIs(t, err, ErrTooManyRows)

	noDate := workbook(t, [][]any{{"Номер"}, {"EO-1"}})
	_, err = im.ImportXLSX(context.Background(), records.Actor{}, noDate)
	assert.Error(t, err)
}

func TestParseCellDateSerial(t *testing.T) {
	got, err := parseCellDate("46034")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 12, 0, 0, 0, 0, time.UTC), got)
}
