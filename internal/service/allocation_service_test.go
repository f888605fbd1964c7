package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/meditrace/meditrace-api/internal/models"
	appErrors "github.com/meditrace/meditrace-api/pkg/errors"
)

type mockCodeSelector struct {
	byLot map[string][]models.CodeSelection
	calls []string
}

func (m *mockCodeSelector) SelectAvailable(ctx context.Context, lotID, orgID string, limit int) ([]models.CodeSelection, error) {
	m.calls = append(m.calls, lotID)
	available := m.byLot[lotID]
	if limit < len(available) {
		available = available[:limit]
	}
	return available, nil
}

type mockInventoryReader struct {
	lots []models.LotAvailability
}

func (m *mockInventoryReader) AvailableByLot(ctx context.Context, productID, orgID string) ([]models.LotAvailability, error) {
	return m.lots, nil
}

func selections(lotID string, n int) []models.CodeSelection {
	out := make([]models.CodeSelection, n)
	for i := range out {
		out[i] = models.CodeSelection{
			VirtualCodeID: fmt.Sprintf("%s-id-%d", lotID, i),
			Code:          fmt.Sprintf("%s-%05d", lotID, i+1),
			LotID:         lotID,
		}
	}
	return out
}

func TestAllocateWalksLotsOldestFirst(t *testing.T) {
	codes := &mockCodeSelector{byLot: map[string][]models.CodeSelection{
		"lot-old": selections("lot-old", 3),
		"lot-new": selections("lot-new", 5),
	}}
	inventory := &mockInventoryReader{lots: []models.LotAvailability{
		{LotID: "lot-old", ManufactureDate: "2026-01-01", Available: 3},
		{LotID: "lot-new", ManufactureDate: "2026-02-01", Available: 5},
	}}
	svc := NewAllocationService(codes, inventory, zap.NewNop())

	result, err := svc.Allocate(context.Background(), AllocationRequest{
		ProductID:      "p1",
		OrganizationID: "org1",
		Quantity:       5,
	})
	require.NoError(t, err)
	assert.Zero(t, result.Shortfall)
	require.Len(t, result.Selections, 5)
	assert.Equal(t, []string{"lot-old", "lot-new"}, codes.calls)
	// The older lot drains completely before the newer lot contributes.
	assert.Equal(t, "lot-old", result.Selections[0].LotID)
	assert.Equal(t, "lot-old", result.Selections[2].LotID)
	assert.Equal(t, "lot-new", result.Selections[3].LotID)
}

func TestAllocateReportsShortfall(t *testing.T) {
	codes := &mockCodeSelector{byLot: map[string][]models.CodeSelection{
		"lot-a": selections("lot-a", 2),
	}}
	inventory := &mockInventoryReader{lots: []models.LotAvailability{
		{LotID: "lot-a", Available: 2},
	}}
	svc := NewAllocationService(codes, inventory, zap.NewNop())

	result, err := svc.Allocate(context.Background(), AllocationRequest{
		ProductID:      "p1",
		OrganizationID: "org1",
		Quantity:       7,
	})
	require.NoError(t, err)
	assert.Equal(t, 5, result.Shortfall)
	assert.Len(t, result.Selections, 2)
}

func TestAllocatePinnedLot(t *testing.T) {
	codes := &mockCodeSelector{byLot: map[string][]models.CodeSelection{
		"lot-a": selections("lot-a", 4),
		"lot-b": selections("lot-b", 4),
	}}
	svc := NewAllocationService(codes, &mockInventoryReader{}, zap.NewNop())

	result, err := svc.Allocate(context.Background(), AllocationRequest{
		ProductID:      "p1",
		OrganizationID: "org1",
		LotID:          "lot-b",
		Quantity:       2,
	})
	require.NoError(t, err)
	assert.Zero(t, result.Shortfall)
	require.Len(t, result.Selections, 2)
	assert.Equal(t, []string{"lot-b"}, codes.calls)
}

func TestAllocateRejectsNonPositiveQuantity(t *testing.T) {
	svc := NewAllocationService(&mockCodeSelector{}, &mockInventoryReader{}, zap.NewNop())

	_, err := svc.Allocate(context.Background(), AllocationRequest{ProductID: "p1", OrganizationID: "org1", Quantity: 0})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidQuantity))
}
