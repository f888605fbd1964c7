package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meditrace/meditrace-api/internal/models"
	"github.com/meditrace/meditrace-api/pkg/config"
	appErrors "github.com/meditrace/meditrace-api/pkg/errors"
	"github.com/meditrace/meditrace-api/pkg/export"
	"github.com/meditrace/meditrace-api/pkg/jobs"
)

// ReportStatus is the lifecycle of an asynchronous traceability report.
type ReportStatus string

// Report statuses.
const (
	ReportStatusPending   ReportStatus = "PENDING"
	ReportStatusCompleted ReportStatus = "COMPLETED"
	ReportStatusFailed    ReportStatus = "FAILED"
)

// Report tracks one traceability certificate request.
type Report struct {
	ID          string       `json:"id"`
	Code        string       `json:"code"`
	Status      ReportStatus `json:"status"`
	FilePath    string       `json:"-"`
	DownloadURL string       `json:"download_url,omitempty"`
	ExpiresAt   *time.Time   `json:"expires_at,omitempty"`
	Error       string       `json:"error,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
}

type pdfRenderer interface {
	RenderWithPreamble(data export.Dataset, title string, preamble [][2]string) ([]byte, error)
}

type reportStorage interface {
	Save(filename string, data []byte) (string, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
	Path(filename string) string
}

type urlSigner interface {
	Generate(reportID, relPath string) (string, time.Time, error)
	Parse(token string, allowExpired bool) (reportID, relPath string, expiresAt time.Time, err error)
}

type reportHistory interface {
	CodeHistory(ctx context.Context, code string) (*CodeHistory, error)
}

type reportLotReader interface {
	FindByID(ctx context.Context, id string) (*models.Lot, error)
}

type reportProductReader interface {
	FindByID(ctx context.Context, id string) (*models.Product, error)
}

// ReportService generates traceability certificates asynchronously: the
// request returns a pending report ID, a worker renders the PDF, and the
// finished file is fetched through a signed, expiring download token. The
// registry is in-memory; reports do not survive a restart, only their files
// do, and the cleanup pass reaps those.
type ReportService struct {
	history  reportHistory
	lots     reportLotReader
	products reportProductReader
	pdf      pdfRenderer
	storage  reportStorage
	signer   urlSigner
	queue    *jobs.Queue
	logger   *zap.Logger

	mu      sync.RWMutex
	reports map[string]*Report
}

// NewReportService constructs ReportService and its worker queue.
func NewReportService(
	history reportHistory,
	lots reportLotReader,
	products reportProductReader,
	pdf pdfRenderer,
	storage reportStorage,
	signer urlSigner,
	cfg config.ReportsConfig,
	logger *zap.Logger,
) *ReportService {
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ReportService{
		history:  history,
		lots:     lots,
		products: products,
		pdf:      pdf,
		storage:  storage,
		signer:   signer,
		logger:   logger,
		reports:  make(map[string]*Report),
	}
	s.queue = jobs.NewQueue("traceability-reports", s.handleJob, jobs.QueueConfig{
		Workers:    cfg.WorkerConcurrency,
		MaxRetries: cfg.WorkerRetries,
		Logger:     logger,
	})
	return s
}

// Start launches the report workers.
func (s *ReportService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the report workers.
func (s *ReportService) Stop() {
	s.queue.Stop()
}

// Request enqueues certificate generation for one code and returns the
// pending report.
func (s *ReportService) Request(ctx context.Context, code string) (*Report, error) {
	if code == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "code is required")
	}
	// Resolve up front so an unknown code fails the request, not the job.
	if _, err := s.history.CodeHistory(ctx, code); err != nil {
		return nil, err
	}

	report := &Report{
		ID:        uuid.NewString(),
		Code:      code,
		Status:    ReportStatusPending,
		CreatedAt: time.Now().UTC(),
	}
	s.mu.Lock()
	s.reports[report.ID] = report
	s.mu.Unlock()

	if err := s.queue.Enqueue(jobs.Job{ID: report.ID, Type: "traceability", Payload: code}); err != nil {
		s.mu.Lock()
		delete(s.reports, report.ID)
		s.mu.Unlock()
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue report")
	}

	s.logger.Sugar().Infow("report requested", "report_id", report.ID, "code", code)
	return s.snapshot(report.ID), nil
}

// Get returns the report state, with a fresh signed download URL when the
// file is ready.
func (s *ReportService) Get(ctx context.Context, reportID string) (*Report, error) {
	report := s.snapshot(reportID)
	if report == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "report not found")
	}
	if report.Status == ReportStatusCompleted && report.FilePath != "" {
		token, expiresAt, err := s.signer.Generate(report.ID, report.FilePath)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download url")
		}
		report.DownloadURL = fmt.Sprintf("/api/v1/reports/download?token=%s", token)
		report.ExpiresAt = &expiresAt
	}
	return report, nil
}

// ResolveDownload validates a signed token and returns the stored file path.
func (s *ReportService) ResolveDownload(token string) (string, error) {
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid download token")
	}
	return relPath, nil
}

// FilePath resolves a stored report path to its absolute location.
func (s *ReportService) FilePath(relPath string) string {
	return s.storage.Path(relPath)
}

// Cleanup reaps stored files older than the TTL and drops their registry
// entries.
func (s *ReportService) Cleanup(ttl time.Duration) {
	deleted, err := s.storage.CleanupOlderThan(ttl)
	if err != nil {
		s.logger.Sugar().Warnw("report cleanup failed", "error", err)
		return
	}
	if len(deleted) == 0 {
		return
	}
	removed := make(map[string]struct{}, len(deleted))
	for _, name := range deleted {
		removed[name] = struct{}{}
	}
	s.mu.Lock()
	for id, report := range s.reports {
		if _, gone := removed[report.FilePath]; gone {
			delete(s.reports, id)
		}
	}
	s.mu.Unlock()
	s.logger.Sugar().Infow("report files cleaned up", "count", len(deleted))
}

func (s *ReportService) handleJob(ctx context.Context, job jobs.Job) error {
	code, ok := job.Payload.(string)
	if !ok {
		s.fail(job.ID, "invalid job payload")
		return nil
	}

	history, err := s.history.CodeHistory(ctx, code)
	if err != nil {
		s.fail(job.ID, err.Error())
		return err
	}

	preamble, err := s.buildPreamble(ctx, history)
	if err != nil {
		s.fail(job.ID, err.Error())
		return err
	}

	payload, err := s.pdf.RenderWithPreamble(chainDataset(history.Events), "Traceability Certificate", preamble)
	if err != nil {
		s.fail(job.ID, err.Error())
		return err
	}

	filename := fmt.Sprintf("traceability/%s.pdf", job.ID)
	if _, err := s.storage.Save(filename, payload); err != nil {
		s.fail(job.ID, err.Error())
		return err
	}

	now := time.Now().UTC()
	s.mu.Lock()
	if report, ok := s.reports[job.ID]; ok {
		report.Status = ReportStatusCompleted
		report.FilePath = filename
		report.CompletedAt = &now
		report.Error = ""
	}
	s.mu.Unlock()
	s.logger.Sugar().Infow("report generated", "report_id", job.ID, "file", filename)
	return nil
}

func (s *ReportService) buildPreamble(ctx context.Context, history *CodeHistory) ([][2]string, error) {
	lot, err := s.lots.FindByID(ctx, history.Code.LotID)
	if err != nil {
		return nil, fmt.Errorf("resolve lot: %w", err)
	}
	product, err := s.products.FindByID(ctx, lot.ProductID)
	if err != nil {
		return nil, fmt.Errorf("resolve product: %w", err)
	}
	return [][2]string{
		{"Code", history.Code.Code},
		{"Product", product.ModelName},
		{"UDI-DI", product.UdiDi},
		{"Lot", lot.LotNumber},
		{"Manufactured", lot.ManufactureDate.Format("2006-01-02")},
		{"Expires", lot.ExpiryDate.Format("2006-01-02")},
		{"Current status", string(history.Code.CurrentStatus)},
	}, nil
}

func (s *ReportService) fail(reportID, message string) {
	s.mu.Lock()
	if report, ok := s.reports[reportID]; ok {
		report.Status = ReportStatusFailed
		report.Error = message
	}
	s.mu.Unlock()
}

func (s *ReportService) snapshot(reportID string) *Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	report, ok := s.reports[reportID]
	if !ok {
		return nil
	}
	clone := *report
	return &clone
}

func chainDataset(events []models.TransferEvent) export.Dataset {
	headers := []string{"Time", "Action", "From", "To", "Reason"}
	rows := make([]map[string]string, 0, len(events))
	for _, ev := range events {
		rows = append(rows, map[string]string{
			"Time":   ev.EventTime.UTC().Format("2006-01-02 15:04"),
			"Action": string(ev.Action),
			"From":   deref(ev.FromOwnerID),
			"To":     deref(ev.ToOwnerID),
			"Reason": deref(ev.Reason),
		})
	}
	return export.Dataset{Headers: headers, Rows: rows}
}
