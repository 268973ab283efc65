package syncer

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/avlasov/farmmap/internal/access"
	"github.com/avlasov/farmmap/internal/database"
	"github.com/avlasov/farmmap/internal/database/repository"
	"github.com/avlasov/farmmap/internal/farms"
	"github.com/avlasov/farmmap/internal/remote"
)

type recordedWrite struct {
	kind    string
	payload []byte
}

// fakeClient scripts the data service: a nil submitErr accepts every
// write unless its kind is listed in reject.
type fakeClient struct {
	mu         sync.Mutex
	farms      []farms.Farm
	fetchErr   error
	fetchCalls int
	submitErr  error
	reject     map[string]string
	writes     []recordedWrite
	registered bool
}

func (f *fakeClient) FetchFarms(ctx context.Context) ([]farms.Farm, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.farms, nil
}

func (f *fakeClient) SubmitWrite(ctx context.Context, kind string, payload []byte) (remote.WriteResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return remote.WriteResult{}, f.submitErr
	}
	if msg, ok := f.reject[kind]; ok {
		return remote.WriteResult{Accepted: false, Message: msg}, nil
	}
	f.writes = append(f.writes, recordedWrite{kind: kind, payload: payload})
	return remote.WriteResult{Accepted: true, Message: "ok"}, nil
}

func (f *fakeClient) VerifyIdentity(ctx context.Context, identity string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.registered, nil
}

func (f *fakeClient) recorded() []recordedWrite {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]recordedWrite, len(f.writes))
	copy(out, f.writes)
	return out
}

func (f *fakeClient) set(mut func(*fakeClient)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	mut(f)
}

func netErr() error {
	return &remote.NetworkError{Op: "test", Err: errors.New("connection refused")}
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	migrations, err := filepath.Abs("../database/migrations")
	require.NoError(t, err)
	require.NoError(t, database.RunMigrations(dbPath, migrations))

	db, err := database.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestCoordinator(t *testing.T, client *fakeClient) *Coordinator {
	t.Helper()
	ctx := context.Background()
	db := openTestDB(t)

	gate, err := access.Load(ctx, repository.NewSessionRepo(db))
	require.NoError(t, err)

	return &Coordinator{
		Client:      client,
		Catalog:     farms.NewCatalog(),
		Gate:        gate,
		Queue:       repository.NewQueueRepo(db),
		Snapshots:   repository.NewSnapshotRepo(db),
		Maintenance: repository.NewMaintenanceRepo(db),
		MaxReviews:  50,
		Opts: Options{
			Retention:   7 * 24 * time.Hour,
			MaxRetries:  5,
			CacheMaxAge: 5 * time.Minute,
		},
	}
}

func review(farmID, comment string) farms.ReviewDraft {
	return farms.ReviewDraft{
		FarmID:    farmID,
		Rating:    4,
		Comment:   comment,
		UserEmail: "picker@example.com",
	}
}

func TestValidationFailureNeverLeavesTheProcess(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client := &fakeClient{}
	c := newTestCoordinator(t, client)

	bad := review("farm-1", "")
	bad.Rating = 6
	_, err := c.SubmitReview(ctx, bad)
	var verr *farms.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "rating", verr.Field)

	require.Empty(t, client.recorded())
	n, err := c.Queue.Count(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
	require.False(t, c.Gate.CanViewDetails())
}

func TestAcceptedWriteGrantsAccessAndRefreshes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client := &fakeClient{farms: []farms.Farm{{ID: "farm-1"}}}
	c := newTestCoordinator(t, client)

	out, err := c.SubmitReview(ctx, review("farm-1", "good season"))
	require.NoError(t, err)
	require.Equal(t, StatusAccepted, out.Status)

	writes := client.recorded()
	require.Len(t, writes, 1)
	require.Equal(t, repository.KindAddReview, writes[0].kind)

	var p map[string]any
	require.NoError(t, json.Unmarshal(writes[0].payload, &p))
	require.Equal(t, "farm-1", p["farmId"])
	require.Equal(t, "picker@example.com", p["userEmail"])

	require.True(t, c.Gate.CanViewDetails())
	require.Equal(t, 1, c.Gate.Contributions())
	require.Equal(t, 1, c.Catalog.Len())
}

func TestServerRejectionIsFinal(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client := &fakeClient{reject: map[string]string{repository.KindAddReview: "duplicate review"}}
	c := newTestCoordinator(t, client)

	out, err := c.SubmitReview(ctx, review("farm-1", "again"))
	require.NoError(t, err)
	require.Equal(t, StatusRejected, out.Status)
	require.Equal(t, "duplicate review", out.Message)

	n, err := c.Queue.Count(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
	require.False(t, c.Gate.CanViewDetails())
}

func TestNetworkFailureQueuesAndGrantsOptimistically(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client := &fakeClient{submitErr: netErr()}
	c := newTestCoordinator(t, client)

	out, err := c.SubmitReview(ctx, review("farm-1", "queued while offline"))
	require.NoError(t, err)
	require.Equal(t, StatusQueued, out.Status)
	require.False(t, c.Online())

	n, err := c.Queue.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	require.True(t, c.Gate.CanViewDetails())
	require.Equal(t, 1, c.Gate.Contributions())
}

func TestReconnectDrainsInOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client := &fakeClient{submitErr: netErr()}
	c := newTestCoordinator(t, client)

	for _, comment := range []string{"first", "second", "third"} {
		out, err := c.SubmitReview(ctx, review("farm-1", comment))
		require.NoError(t, err)
		require.Equal(t, StatusQueued, out.Status)
	}

	client.set(func(f *fakeClient) { f.submitErr = nil })
	res, err := c.SetOnline(ctx, true)
	require.NoError(t, err)
	require.Equal(t, 3, res.Replayed)
	require.Zero(t, res.Remaining)
	require.Empty(t, res.Rejected)

	writes := client.recorded()
	require.Len(t, writes, 3)
	for i, want := range []string{"first", "second", "third"} {
		var p map[string]any
		require.NoError(t, json.Unmarshal(writes[i].payload, &p))
		require.Equal(t, want, p["comment"])
	}

	// Replaying again is a no-op; nothing is sent twice.
	res, err = c.Drain(ctx)
	require.NoError(t, err)
	require.Zero(t, res.Replayed)
	require.Len(t, client.recorded(), 3)
}

func TestDrainDropsRejectedWritesPermanently(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client := &fakeClient{submitErr: netErr()}
	c := newTestCoordinator(t, client)

	_, err := c.SubmitReview(ctx, review("farm-1", "stale"))
	require.NoError(t, err)

	client.set(func(f *fakeClient) {
		f.submitErr = nil
		f.reject = map[string]string{repository.KindAddReview: "farm no longer exists"}
	})
	res, err := c.SetOnline(ctx, true)
	require.NoError(t, err)
	require.Zero(t, res.Replayed)
	require.Len(t, res.Rejected, 1)
	require.Contains(t, res.Rejected[0], "farm no longer exists")
	require.Zero(t, res.Remaining)
}

func TestDrainStopsOnTransportFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client := &fakeClient{submitErr: netErr()}
	c := newTestCoordinator(t, client)

	_, err := c.SubmitReview(ctx, review("farm-1", "one"))
	require.NoError(t, err)
	_, err = c.SubmitReview(ctx, review("farm-1", "two"))
	require.NoError(t, err)

	// Still offline: the pass stops at the first transport failure and
	// only the head entry pays a retry.
	res, err := c.Drain(ctx)
	require.NoError(t, err)
	require.Zero(t, res.Replayed)
	require.Equal(t, 2, res.Remaining)
	require.False(t, c.Online())

	pending, err := c.Queue.ListPending(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, pending[0].RetryCount)
	require.Zero(t, pending[1].RetryCount)
}

func TestDrainPurgesExpiredWrites(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client := &fakeClient{submitErr: netErr()}
	c := newTestCoordinator(t, client)

	_, err := c.Queue.Enqueue(ctx, repository.KindAddReview, []byte(`{}`), database.Now().Add(-8*24*time.Hour))
	require.NoError(t, err)

	res, err := c.Drain(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, res.Purged)
	require.Zero(t, res.Remaining)
}

func TestStartFallsBackToSnapshot(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client := &fakeClient{fetchErr: netErr()}
	c := newTestCoordinator(t, client)

	cached := []farms.Farm{{ID: "a", Name: "Cached Farm"}, {ID: "b"}}
	buf, err := json.Marshal(cached)
	require.NoError(t, err)
	require.NoError(t, c.Snapshots.Put(ctx, "farms", buf, database.Now().Add(-10*time.Minute)))

	res, err := c.Start(ctx)
	require.NoError(t, err)
	require.True(t, res.FromCache)
	require.True(t, res.Stale)
	require.True(t, res.Degraded)
	require.Equal(t, 2, res.Farms)
	require.Equal(t, 2, c.Catalog.Len())
	require.False(t, c.Online())
}

func TestStartFreshSnapshotIsNotStale(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client := &fakeClient{fetchErr: netErr()}
	c := newTestCoordinator(t, client)

	buf, err := json.Marshal([]farms.Farm{{ID: "a"}})
	require.NoError(t, err)
	require.NoError(t, c.Snapshots.Put(ctx, "farms", buf, database.Now()))

	res, err := c.Start(ctx)
	require.NoError(t, err)
	require.True(t, res.FromCache)
	require.False(t, res.Stale)
}

func TestStartDegradedWithoutCache(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client := &fakeClient{fetchErr: netErr()}
	c := newTestCoordinator(t, client)

	res, err := c.Start(ctx)
	require.NoError(t, err)
	require.True(t, res.Degraded)
	require.False(t, res.FromCache)
	require.Zero(t, res.Farms)
	require.Zero(t, c.Catalog.Len())
}

func TestStartOnlineSnapshotsTheFetch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client := &fakeClient{farms: []farms.Farm{{ID: "a"}, {ID: "b"}, {ID: "c"}}}
	c := newTestCoordinator(t, client)

	res, err := c.Start(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, res.Farms)
	require.False(t, res.FromCache)
	require.True(t, c.Online())

	snap, err := c.Snapshots.Get(ctx, "farms")
	require.NoError(t, err)
	require.NotNil(t, snap)
	var cached []farms.Farm
	require.NoError(t, json.Unmarshal(snap.Payload, &cached))
	require.Len(t, cached, 3)
}

func TestSubmitReviewHonorsPerFarmCap(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client := &fakeClient{}
	c := newTestCoordinator(t, client)
	c.MaxReviews = 2

	full := farms.Farm{ID: "farm-1", Reviews: []farms.Review{{ID: "r1"}, {ID: "r2"}}}
	c.Catalog.Load([]farms.Farm{full})

	_, err := c.SubmitReview(ctx, review("farm-1", "one too many"))
	var verr *farms.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Empty(t, client.recorded())
}

func TestLogin(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client := &fakeClient{registered: true}
	c := newTestCoordinator(t, client)

	_, err := c.Login(ctx, "nope")
	var verr *farms.ValidationError
	require.ErrorAs(t, err, &verr)

	out, err := c.Login(ctx, "veteran@example.com")
	require.NoError(t, err)
	require.Equal(t, StatusAccepted, out.Status)
	require.True(t, c.Gate.CanViewDetails())
	require.Zero(t, c.Gate.Contributions())
}

func TestLoginUnknownIdentity(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client := &fakeClient{}
	c := newTestCoordinator(t, client)

	out, err := c.Login(ctx, "stranger@example.com")
	require.NoError(t, err)
	require.Equal(t, StatusRejected, out.Status)
	require.False(t, c.Gate.CanViewDetails())
}

func TestFlagReviewNeedsIdentityAndDoesNotContribute(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client := &fakeClient{}
	c := newTestCoordinator(t, client)

	out, err := c.FlagReview(ctx, "rev-1")
	require.NoError(t, err)
	require.Equal(t, StatusRejected, out.Status)

	require.NoError(t, c.Gate.GrantAfterVerification(ctx, "veteran@example.com"))
	out, err = c.FlagReview(ctx, "rev-1")
	require.NoError(t, err)
	require.Equal(t, StatusAccepted, out.Status)
	require.Zero(t, c.Gate.Contributions())

	writes := client.recorded()
	require.Len(t, writes, 1)
	require.Equal(t, repository.KindFlagReview, writes[0].kind)
	var p map[string]any
	require.NoError(t, json.Unmarshal(writes[0].payload, &p))
	require.Equal(t, "rev-1", p["reviewId"])
	require.Equal(t, "veteran@example.com", p["userEmail"])
}

func TestDeleteAccountWipesLocalState(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client := &fakeClient{submitErr: netErr()}
	c := newTestCoordinator(t, client)

	// Queued contribution: grants access and leaves a pending write.
	out, err := c.SubmitReview(ctx, review("farm-1", "offline"))
	require.NoError(t, err)
	require.Equal(t, StatusQueued, out.Status)
	require.True(t, c.Gate.CanViewDetails())
	require.NoError(t, c.Snapshots.Put(ctx, "farms", []byte(`[]`), database.Now()))
	require.Equal(t, 1, c.Pending(ctx))

	require.NoError(t, c.DeleteAccount(ctx))

	require.False(t, c.Gate.CanViewDetails())
	require.Zero(t, c.Pending(ctx))
	snap, err := c.Snapshots.Get(ctx, "farms")
	require.NoError(t, err)
	require.Nil(t, snap)
}

func TestSubmitFarmCarriesCoordinates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client := &fakeClient{}
	c := newTestCoordinator(t, client)

	draft := farms.FarmDraft{
		Type:      "berries",
		Name:      "Greenfields",
		Address:   "1 Farm Lane",
		Postcode:  "cb4 0gf",
		Operators: []string{"Concordia"},
		UserEmail: "picker@example.com",
	}
	out, err := c.SubmitFarm(ctx, draft, &farms.Coords{Lat: 52.2, Lng: 0.1})
	require.NoError(t, err)
	require.Equal(t, StatusAccepted, out.Status)

	writes := client.recorded()
	require.Len(t, writes, 1)
	require.Equal(t, repository.KindAddFarm, writes[0].kind)
	var p map[string]any
	require.NoError(t, json.Unmarshal(writes[0].payload, &p))
	require.Equal(t, "CB4 0GF", p["postcode"])
	require.InDelta(t, 52.2, p["lat"], 0.0001)
	require.InDelta(t, 0.1, p["lng"], 0.0001)
}
