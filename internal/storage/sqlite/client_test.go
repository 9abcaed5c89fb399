package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepscan/backend/internal/storage/models"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()

	client, err := NewClient(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	require.NoError(t, client.InitSchema())
	return client
}

func newTestUser(t *testing.T, client *Client, email string) *models.User {
	t.Helper()

	user := &models.User{
		ID:           uuid.NewString(),
		Name:         "Test User",
		Email:        email,
		PasswordHash: "hashed",
		Role:         "user",
		AuthProvider: "local",
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, client.CreateUser(context.Background(), user))
	return user
}

func insertScan(t *testing.T, client *Client, userID, mediaType, riskLevel string, probability float64, createdAt time.Time) {
	t.Helper()

	require.NoError(t, client.InsertScan(context.Background(), &models.ScanRecord{
		ID:          uuid.NewString(),
		UserID:      userID,
		MediaURL:    "https://example.com/media",
		MediaType:   mediaType,
		Probability: probability,
		RiskLevel:   riskLevel,
		AIVersion:   "v1.0-audio-image",
		CreatedAt:   createdAt,
	}))
}

func TestUserLifecycle(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	user := newTestUser(t, client, "ada@example.com")

	got, err := client.GetUserByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, err = client.GetUserByEmail(ctx, "missing@example.com")
	assert.ErrorIs(t, err, ErrNotFound)

	// Duplicate email violates the unique constraint.
	err = client.CreateUser(ctx, &models.User{
		ID:           uuid.NewString(),
		Name:         "Other",
		Email:        "ada@example.com",
		PasswordHash: "x",
		Role:         "user",
		AuthProvider: "local",
		CreatedAt:    time.Now(),
	})
	assert.Error(t, err)
}

func TestResetTokenExpiry(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	user := newTestUser(t, client, "ada@example.com")

	require.NoError(t, client.SetResetToken(ctx, user.ID, "hash-valid", time.Now().Add(time.Hour)))
	got, err := client.GetUserByResetToken(ctx, "hash-valid")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	// Expired tokens look like missing tokens.
	require.NoError(t, client.SetResetToken(ctx, user.ID, "hash-expired", time.Now().Add(-time.Hour)))
	_, err = client.GetUserByResetToken(ctx, "hash-expired")
	assert.ErrorIs(t, err, ErrNotFound)

	// UpdatePassword clears the token.
	require.NoError(t, client.SetResetToken(ctx, user.ID, "hash-again", time.Now().Add(time.Hour)))
	require.NoError(t, client.UpdatePassword(ctx, user.ID, "new-hash"))
	_, err = client.GetUserByResetToken(ctx, "hash-again")
	assert.ErrorIs(t, err, ErrNotFound)

	got, err = client.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "new-hash", got.PasswordHash)
}

func TestScanHistoryPaging(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	user := newTestUser(t, client, "ada@example.com")
	other := newTestUser(t, client, "eve@example.com")

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		insertScan(t, client, user.ID, "image", "Low", 0.1, base.Add(time.Duration(i)*time.Minute))
	}
	insertScan(t, client, other.ID, "audio", "High", 0.9, base)

	records, total, err := client.GetScanHistory(ctx, user.ID, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, records, 3)

	// Newest first.
	assert.True(t, records[0].CreatedAt.After(records[1].CreatedAt))

	records, _, err = client.GetScanHistory(ctx, user.ID, 2, 3)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestScanSummary(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	user := newTestUser(t, client, "ada@example.com")

	now := time.Now().UTC()
	insertScan(t, client, user.ID, "image", "High", 0.9, now.Add(-3*time.Minute))
	insertScan(t, client, user.ID, "image", "Medium", 0.5, now.Add(-2*time.Minute))
	insertScan(t, client, user.ID, "audio", "Low", 0.1, now.Add(-time.Minute))

	summary, err := client.ScanSummary(ctx, user.ID)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.TotalScans)
	assert.Equal(t, 1, summary.HighRisk)
	assert.Equal(t, 1, summary.MediumRisk)
	assert.Equal(t, 1, summary.LowRisk)
	assert.InDelta(t, 0.5, summary.AvgProbability, 1e-9)
	assert.Equal(t, "image", summary.TopMediaType)
	require.NotNil(t, summary.Latest)
	assert.Equal(t, "audio", summary.Latest.MediaType)
}

func TestScanSummary_EmptyHistory(t *testing.T) {
	client := newTestClient(t)
	user := newTestUser(t, client, "ada@example.com")

	summary, err := client.ScanSummary(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.TotalScans)
	assert.Nil(t, summary.Latest)
}

func TestTrendRows_GroupsByUTCDay(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	user := newTestUser(t, client, "ada@example.com")

	day1 := time.Date(2024, 3, 8, 10, 0, 0, 0, time.UTC)
	day2 := time.Date(2024, 3, 9, 23, 59, 0, 0, time.UTC)
	old := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	insertScan(t, client, user.ID, "image", "High", 0.9, day1)
	insertScan(t, client, user.ID, "image", "High", 0.8, day1.Add(time.Hour))
	insertScan(t, client, user.ID, "audio", "Low", 0.1, day2)
	insertScan(t, client, user.ID, "image", "High", 0.9, old)

	rows, err := client.TrendRows(ctx, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	counts := map[string]int{}
	for _, row := range rows {
		counts[row.Day+"/"+row.RiskLevel] = row.Count
	}
	assert.Equal(t, 2, counts["2024-03-08/High"])
	assert.Equal(t, 1, counts["2024-03-09/Low"])
}

func TestDistributionRows(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	user := newTestUser(t, client, "ada@example.com")
	now := time.Now().UTC()

	insertScan(t, client, user.ID, "image", "High", 0.9, now)
	insertScan(t, client, user.ID, "image", "High", 0.8, now)
	insertScan(t, client, user.ID, "video", "Low", 0.1, now)
	// Rows outside the known matrix are excluded.
	insertScan(t, client, user.ID, "text", "High", 0.9, now)
	insertScan(t, client, user.ID, "image", "Unknown", 0.5, now)

	rows, err := client.DistributionRows(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	counts := map[string]int{}
	for _, row := range rows {
		counts[row.MediaType+"/"+row.RiskLevel] = row.Count
	}
	assert.Equal(t, 2, counts["image/High"])
	assert.Equal(t, 1, counts["video/Low"])
}

func TestListScansWithFilters(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	user := newTestUser(t, client, "ada@example.com")
	now := time.Now().UTC()

	insertScan(t, client, user.ID, "image", "High", 0.9, now)
	insertScan(t, client, user.ID, "audio", "Low", 0.1, now)

	scans, total, err := client.ListScans(ctx, ScanFilter{RiskLevel: "High", Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, scans, 1)
	assert.Equal(t, "image", scans[0].MediaType)
	assert.Equal(t, "ada@example.com", scans[0].UserEmail)

	_, total, err = client.ListScans(ctx, ScanFilter{Search: "ada", Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}

func TestListUsersWithFilters(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	newTestUser(t, client, "ada@example.com")
	newTestUser(t, client, "grace@example.com")

	users, total, err := client.ListUsers(ctx, UserFilter{Search: "grace", Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, users, 1)
	assert.Equal(t, "grace@example.com", users[0].Email)

	_, total, err = client.ListUsers(ctx, UserFilter{Role: "admin", Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 0, total)
}

func TestProofLifecycle(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	user := newTestUser(t, client, "ada@example.com")

	proof := &models.ReportProof{
		ID:          uuid.NewString(),
		UserID:      user.ID,
		ReportType:  "bulk",
		ContentHash: "abc123",
		Summary:     []byte(`{"overall":"High"}`),
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, client.InsertProof(ctx, proof))

	proofs, total, err := client.ListProofs(ctx, user.ID, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, proofs, 1)
	assert.Equal(t, "abc123", proofs[0].ContentHash)
	assert.JSONEq(t, `{"overall":"High"}`, string(proofs[0].Summary))
	assert.Empty(t, proofs[0].ScanID)
}
