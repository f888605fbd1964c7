package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/meditrace/meditrace-api/internal/models"
	appErrors "github.com/meditrace/meditrace-api/pkg/errors"
	"github.com/meditrace/meditrace-api/pkg/export"
)

type mockHistoryLedger struct {
	total   int
	events  []models.TransferEvent
	filters []models.EventFilter
}

func (m *mockHistoryLedger) ListEvents(ctx context.Context, filter models.EventFilter) ([]models.EventDetail, int, error) {
	m.filters = append(m.filters, filter)
	start := (filter.Page - 1) * filter.PageSize
	if start >= m.total {
		return nil, m.total, nil
	}
	end := start + filter.PageSize
	if end > m.total {
		end = m.total
	}
	page := make([]models.EventDetail, 0, end-start)
	for i := start; i < end; i++ {
		page = append(page, models.EventDetail{
			TransferEvent: models.TransferEvent{Seq: int64(i + 1), Action: models.ActionShipped, EventTime: time.Now().UTC()},
			Code:          fmt.Sprintf("L-%05d", i+1),
		})
	}
	return page, m.total, nil
}

func (m *mockHistoryLedger) ListEventsByCodeID(ctx context.Context, codeID string) ([]models.TransferEvent, error) {
	return m.events, nil
}

type mockHistoryCodeReader struct {
	code *models.VirtualCode
}

func (m *mockHistoryCodeReader) FindByCode(ctx context.Context, code string) (*models.VirtualCode, error) {
	if m.code == nil {
		return nil, sql.ErrNoRows
	}
	return m.code, nil
}

type captureRenderer struct {
	dataset export.Dataset
}

func (c *captureRenderer) Render(data export.Dataset) ([]byte, error) {
	c.dataset = data
	return []byte("csv"), nil
}

func TestExportCSVPagesThroughFullSet(t *testing.T) {
	ledger := &mockHistoryLedger{total: 250}
	renderer := &captureRenderer{}
	svc := NewHistoryService(ledger, &mockHistoryCodeReader{}, renderer, zap.NewNop())

	payload, err := svc.ExportCSV(context.Background(), models.EventFilter{ProductID: "p1"})
	require.NoError(t, err)
	assert.Equal(t, []byte("csv"), payload)

	// Two chunks of 200 cover 250 rows; nothing is dropped past the first page.
	require.Len(t, ledger.filters, 2)
	assert.Equal(t, 1, ledger.filters[0].Page)
	assert.Equal(t, 2, ledger.filters[1].Page)
	assert.Equal(t, "p1", ledger.filters[1].ProductID)
	require.Len(t, renderer.dataset.Rows, 250)
	assert.Equal(t, "1", renderer.dataset.Rows[0]["Seq"])
	assert.Equal(t, "250", renderer.dataset.Rows[249]["Seq"])
}

func TestExportCSVSinglePage(t *testing.T) {
	ledger := &mockHistoryLedger{total: 3}
	renderer := &captureRenderer{}
	svc := NewHistoryService(ledger, &mockHistoryCodeReader{}, renderer, zap.NewNop())

	_, err := svc.ExportCSV(context.Background(), models.EventFilter{})
	require.NoError(t, err)
	require.Len(t, ledger.filters, 1)
	assert.Len(t, renderer.dataset.Rows, 3)
}

func TestCodeHistoryResolvesToken(t *testing.T) {
	ledger := &mockHistoryLedger{events: []models.TransferEvent{
		{Seq: 1, Action: models.ActionProduced},
		{Seq: 2, Action: models.ActionShipped},
	}}
	codes := &mockHistoryCodeReader{code: &models.VirtualCode{ID: "c1", Code: "ACME-20260501-001-00001"}}
	svc := NewHistoryService(ledger, codes, nil, zap.NewNop())

	history, err := svc.CodeHistory(context.Background(), "ACME-20260501-001-00001")
	require.NoError(t, err)
	assert.Equal(t, "c1", history.Code.ID)
	require.Len(t, history.Events, 2)
	assert.Equal(t, models.ActionProduced, history.Events[0].Action)
}

func TestCodeHistoryUnknownToken(t *testing.T) {
	svc := NewHistoryService(&mockHistoryLedger{}, &mockHistoryCodeReader{}, nil, zap.NewNop())

	_, err := svc.CodeHistory(context.Background(), "NOPE-000")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}
