package service

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"github.com/meditrace/meditrace-api/internal/models"
	appErrors "github.com/meditrace/meditrace-api/pkg/errors"
	"github.com/meditrace/meditrace-api/pkg/export"
)

type historyLedger interface {
	ListEvents(ctx context.Context, filter models.EventFilter) ([]models.EventDetail, int, error)
	ListEventsByCodeID(ctx context.Context, codeID string) ([]models.TransferEvent, error)
}

type historyCodeReader interface {
	FindByCode(ctx context.Context, code string) (*models.VirtualCode, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

// CodeHistory is one unit's full custody chain.
type CodeHistory struct {
	Code   models.VirtualCode     `json:"code"`
	Events []models.TransferEvent `json:"events"`
}

// HistoryService serves ledger history views: filtered event listings, the
// per-unit custody chain, and CSV export. The ledger sequence number, not
// event time, orders everything.
type HistoryService struct {
	ledger historyLedger
	codes  historyCodeReader
	csv    csvRenderer
	logger *zap.Logger
}

// NewHistoryService constructs HistoryService.
func NewHistoryService(ledger historyLedger, codes historyCodeReader, csv csvRenderer, logger *zap.Logger) *HistoryService {
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistoryService{ledger: ledger, codes: codes, csv: csv, logger: logger}
}

// ListEvents returns ledger entries matching the filter, newest first.
func (s *HistoryService) ListEvents(ctx context.Context, filter models.EventFilter) ([]models.EventDetail, int, error) {
	events, total, err := s.ledger.ListEvents(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list events")
	}
	return events, total, nil
}

// CodeHistory resolves a public code token and returns its chain in ledger
// order, PRODUCED first.
func (s *HistoryService) CodeHistory(ctx context.Context, code string) (*CodeHistory, error) {
	if code == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "code is required")
	}
	vc, err := s.codes.FindByCode(ctx, code)
	if err != nil {
		return nil, mapNotFound(err, "code not found", "failed to resolve code")
	}
	events, err := s.ledger.ListEventsByCodeID(ctx, vc.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load code events")
	}
	return &CodeHistory{Code: *vc, Events: events}, nil
}

// ExportCSV renders the complete filtered event listing as CSV, paging
// through the ledger in chunks so the export is never truncated.
func (s *HistoryService) ExportCSV(ctx context.Context, filter models.EventFilter) ([]byte, error) {
	const chunkSize = 200
	filter.Page = 1
	filter.PageSize = chunkSize

	var events []models.EventDetail
	for {
		page, total, err := s.ListEvents(ctx, filter)
		if err != nil {
			return nil, err
		}
		events = append(events, page...)
		if len(page) < chunkSize || len(events) >= total {
			break
		}
		filter.Page++
	}

	data := eventDataset(events)
	payload, err := s.csv.Render(data)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
	}
	s.logger.Sugar().Infow("history exported", "rows", len(events))
	return payload, nil
}

func eventDataset(events []models.EventDetail) export.Dataset {
	headers := []string{"Seq", "Time", "Action", "Code", "Lot", "Product", "From", "To", "Reason"}
	rows := make([]map[string]string, 0, len(events))
	for _, ev := range events {
		rows = append(rows, map[string]string{
			"Seq":     strconv.FormatInt(ev.Seq, 10),
			"Time":    ev.EventTime.UTC().Format("2006-01-02 15:04:05"),
			"Action":  string(ev.Action),
			"Code":    ev.Code,
			"Lot":     ev.LotNumber,
			"Product": ev.ProductModelName,
			"From":    deref(ev.FromOwnerID),
			"To":      deref(ev.ToOwnerID),
			"Reason":  deref(ev.Reason),
		})
	}
	return export.Dataset{Headers: headers, Rows: rows}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
