// Package syncer orchestrates the remote client, the offline queue and
// the catalog: load with cached fallback on start, write-then-reconcile
// for submissions, FIFO replay on reconnect.
package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/avlasov/farmmap/internal/access"
	"github.com/avlasov/farmmap/internal/database"
	"github.com/avlasov/farmmap/internal/database/repository"
	"github.com/avlasov/farmmap/internal/farms"
	"github.com/avlasov/farmmap/internal/remote"
)

const farmsSnapshot = "farms"

// RemoteClient is the narrow surface the coordinator needs from the
// data service; *remote.Client satisfies it.
type RemoteClient interface {
	FetchFarms(ctx context.Context) ([]farms.Farm, error)
	SubmitWrite(ctx context.Context, kind string, payload []byte) (remote.WriteResult, error)
	VerifyIdentity(ctx context.Context, identity string) (bool, error)
}

// Status classifies the user-visible result of a write. There is no
// silent-failure value on purpose.
type Status int

const (
	StatusAccepted Status = iota
	StatusQueued
	StatusRejected
	StatusNotGuaranteed
)

// Outcome is what the UI shows for a user-initiated action.
type Outcome struct {
	Status  Status
	Message string
}

// LoadResult describes how the catalog came to be populated.
type LoadResult struct {
	Farms     int
	FromCache bool
	Stale     bool
	Degraded  bool
}

// DrainResult summarizes one replay pass over the queue.
type DrainResult struct {
	Replayed  int
	Rejected  []string
	Remaining int
	Purged    int64
}

// Options bound the queue per config.
type Options struct {
	Retention   time.Duration
	MaxRetries  int
	CacheMaxAge time.Duration
}

// Coordinator composes the leaves. It exclusively owns the pending
// write lifecycle; the queue repo only stores it.
type Coordinator struct {
	Client      RemoteClient
	Catalog     *farms.Catalog
	Gate        *access.Gate
	Queue       *repository.QueueRepo
	Snapshots   *repository.SnapshotRepo
	Maintenance *repository.MaintenanceRepo
	MaxReviews  int
	Opts        Options

	mu     sync.Mutex
	online bool
}

// Start attempts a fresh load, falling back to the newest snapshot
// regardless of age (staleness only marks the result degraded) and then
// to an empty catalog.
func (c *Coordinator) Start(ctx context.Context) (LoadResult, error) {
	c.setOnlineFlag(true)
	list, err := c.Client.FetchFarms(ctx)
	if err == nil {
		c.Catalog.Load(list)
		c.saveSnapshot(ctx, list)
		return LoadResult{Farms: len(list)}, nil
	}
	c.setOnlineFlag(false)

	snap, snapErr := c.Snapshots.Get(ctx, farmsSnapshot)
	if snapErr != nil {
		log.Printf("syncer: snapshot store unavailable: %v", snapErr)
	}
	if snap == nil {
		c.Catalog.Load(nil)
		return LoadResult{Degraded: true}, nil
	}
	var cached []farms.Farm
	if err := json.Unmarshal(snap.Payload, &cached); err != nil {
		log.Printf("syncer: corrupt farms snapshot: %v", err)
		c.Catalog.Load(nil)
		return LoadResult{Degraded: true}, nil
	}
	c.Catalog.Load(cached)
	stale := time.Since(snap.FetchedAt) > c.Opts.CacheMaxAge
	return LoadResult{Farms: len(cached), FromCache: true, Stale: stale, Degraded: true}, nil
}

// Online reports the last observed connectivity state.
func (c *Coordinator) Online() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.online
}

func (c *Coordinator) setOnlineFlag(v bool) {
	c.mu.Lock()
	c.online = v
	c.mu.Unlock()
}

// SetOnline records a connectivity change. The offline-to-online edge
// drains the queue.
func (c *Coordinator) SetOnline(ctx context.Context, online bool) (DrainResult, error) {
	c.mu.Lock()
	was := c.online
	c.online = online
	c.mu.Unlock()
	if online && !was {
		return c.Drain(ctx)
	}
	return DrainResult{}, nil
}

type addFarmPayload struct {
	Name      string   `json:"name"`
	Type      string   `json:"type"`
	Address   string   `json:"address"`
	Postcode  string   `json:"postcode"`
	Operators []string `json:"operators"`
	Lat       *float64 `json:"lat,omitempty"`
	Lng       *float64 `json:"lng,omitempty"`
	UserEmail string   `json:"userEmail"`
	Rating    int      `json:"rating,omitempty"`
	Comment   string   `json:"comment,omitempty"`
	Earnings  string   `json:"earnings,omitempty"`
	Duration  string   `json:"duration,omitempty"`
}

type addReviewPayload struct {
	FarmID    string `json:"farmId"`
	Rating    int    `json:"rating"`
	Comment   string `json:"comment"`
	Operator  string `json:"operator,omitempty"`
	Earnings  string `json:"earnings,omitempty"`
	Duration  string `json:"duration,omitempty"`
	UserEmail string `json:"userEmail"`
}

type flagReviewPayload struct {
	ReviewID  string `json:"reviewId"`
	UserEmail string `json:"userEmail"`
}

// SubmitFarm validates and submits an add-farm write. coords may be nil
// when geocoding was unavailable; the farm stays unmappable until the
// service fills it in.
func (c *Coordinator) SubmitFarm(ctx context.Context, d farms.FarmDraft, coords *farms.Coords) (Outcome, error) {
	if err := d.Validate(); err != nil {
		return Outcome{}, err
	}
	p := addFarmPayload{
		Name:      d.Name,
		Type:      d.Type,
		Address:   d.Address,
		Postcode:  farms.NormalizePostcode(d.Postcode),
		Operators: d.Operators,
		UserEmail: d.UserEmail,
		Rating:    d.Rating,
		Comment:   d.Comment,
		Earnings:  d.Earnings,
		Duration:  d.Duration,
	}
	if coords != nil {
		p.Lat, p.Lng = &coords.Lat, &coords.Lng
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return Outcome{}, fmt.Errorf("submit farm: marshal: %w", err)
	}
	return c.submitOrQueue(ctx, repository.KindAddFarm, payload, d.UserEmail, true)
}

// SubmitReview validates and submits an add-review write.
func (c *Coordinator) SubmitReview(ctx context.Context, d farms.ReviewDraft) (Outcome, error) {
	if err := d.Validate(); err != nil {
		return Outcome{}, err
	}
	if f := c.Catalog.Get(d.FarmID); f != nil && c.MaxReviews > 0 && len(f.Reviews) >= c.MaxReviews {
		return Outcome{}, &farms.ValidationError{Field: "farmId", Reason: "review limit reached for this farm"}
	}
	payload, err := json.Marshal(addReviewPayload{
		FarmID:    d.FarmID,
		Rating:    d.Rating,
		Comment:   d.Comment,
		Operator:  d.Operator,
		Earnings:  d.Earnings,
		Duration:  d.Duration,
		UserEmail: d.UserEmail,
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("submit review: marshal: %w", err)
	}
	return c.submitOrQueue(ctx, repository.KindAddReview, payload, d.UserEmail, true)
}

// FlagReview submits a moderation report. Flagging needs an identity
// but does not count as a contribution.
func (c *Coordinator) FlagReview(ctx context.Context, reviewID string) (Outcome, error) {
	identity, ok := c.Gate.Identity()
	if !ok {
		return Outcome{Status: StatusRejected, Message: "sign in before reporting a review"}, nil
	}
	payload, err := json.Marshal(flagReviewPayload{ReviewID: reviewID, UserEmail: identity})
	if err != nil {
		return Outcome{}, fmt.Errorf("flag review: marshal: %w", err)
	}
	return c.submitOrQueue(ctx, repository.KindFlagReview, payload, identity, false)
}

// Login verifies an identity against the remote service. Reads are not
// queued; a network failure here is just a failure.
func (c *Coordinator) Login(ctx context.Context, email string) (Outcome, error) {
	if !farms.ValidEmail(email) {
		return Outcome{}, &farms.ValidationError{Field: "email", Reason: "invalid email address"}
	}
	registered, err := c.Client.VerifyIdentity(ctx, email)
	if err != nil {
		return Outcome{}, err
	}
	if !registered {
		return Outcome{Status: StatusRejected, Message: "no account for this email; contribute a farm or review to join"}, nil
	}
	if err := c.Gate.GrantAfterVerification(ctx, email); err != nil {
		return Outcome{}, err
	}
	return Outcome{Status: StatusAccepted, Message: "signed in"}, nil
}

func (c *Coordinator) submitOrQueue(ctx context.Context, kind string, payload []byte, identity string, contributes bool) (Outcome, error) {
	res, err := c.Client.SubmitWrite(ctx, kind, payload)
	if err == nil {
		if !res.Accepted {
			return Outcome{Status: StatusRejected, Message: res.Message}, nil
		}
		c.setOnlineFlag(true)
		if contributes {
			if gerr := c.Gate.GrantAfterContribution(ctx, identity); gerr != nil {
				log.Printf("syncer: session store unavailable: %v", gerr)
			}
		}
		// Best-effort reload so the view reflects the write.
		if _, rerr := c.Refresh(ctx); rerr != nil {
			log.Printf("syncer: reload after write: %v", rerr)
		}
		return Outcome{Status: StatusAccepted, Message: res.Message}, nil
	}

	var netErr *remote.NetworkError
	if !errors.As(err, &netErr) {
		return Outcome{}, err
	}
	c.setOnlineFlag(false)

	if _, qerr := c.Queue.Enqueue(ctx, kind, payload, database.Now()); qerr != nil {
		// Degraded mode: durability is gone, say so loudly, and give the
		// network one more immediate chance before reporting the write
		// as not guaranteed.
		log.Printf("syncer: offline queue unavailable, write not durable: %v", qerr)
		if retry, rerr := c.Client.SubmitWrite(ctx, kind, payload); rerr == nil && retry.Accepted {
			if contributes {
				_ = c.Gate.GrantAfterContribution(ctx, identity)
			}
			return Outcome{Status: StatusAccepted, Message: retry.Message}, nil
		}
		return Outcome{Status: StatusNotGuaranteed, Message: "could not be saved for retry; please resubmit later"}, nil
	}

	if contributes {
		// Optimistic: the queued write is guaranteed eventually delivered.
		if gerr := c.Gate.GrantAfterContribution(ctx, identity); gerr != nil {
			log.Printf("syncer: session store unavailable: %v", gerr)
		}
	}
	return Outcome{Status: StatusQueued, Message: "saved offline; it will be sent once the connection returns"}, nil
}

// Drain replays pending writes strictly in enqueue order, one at a
// time. A server rejection removes the entry permanently; a transport
// failure increments its retry count and stops the pass. Finishes with
// the retention sweep.
func (c *Coordinator) Drain(ctx context.Context) (DrainResult, error) {
	var res DrainResult
	pending, err := c.Queue.ListPending(ctx)
	if err != nil {
		return res, fmt.Errorf("drain: list pending: %w", err)
	}

	for _, w := range pending {
		wres, err := c.Client.SubmitWrite(ctx, w.Kind, w.Payload)
		if err != nil {
			var netErr *remote.NetworkError
			if errors.As(err, &netErr) {
				c.setOnlineFlag(false)
				if ierr := c.Queue.IncrementRetry(ctx, w.ID); ierr != nil {
					log.Printf("syncer: retry bump failed for %s: %v", w.ID, ierr)
				}
				break
			}
			return res, fmt.Errorf("drain %s: %w", w.Kind, err)
		}
		if !wres.Accepted {
			// Validation rejection: never retried.
			if rerr := c.Queue.Remove(ctx, w.ID); rerr != nil {
				log.Printf("syncer: remove rejected %s: %v", w.ID, rerr)
			}
			res.Rejected = append(res.Rejected, fmt.Sprintf("%s: %s", w.Kind, wres.Message))
			continue
		}
		if rerr := c.Queue.Remove(ctx, w.ID); rerr != nil {
			log.Printf("syncer: remove replayed %s: %v", w.ID, rerr)
		}
		res.Replayed++
	}

	if n, err := c.Queue.PurgeOlderThan(ctx, database.Now().Add(-c.Opts.Retention)); err == nil {
		res.Purged += n
	}
	if n, err := c.Queue.PurgeRetriesAbove(ctx, c.Opts.MaxRetries); err == nil {
		res.Purged += n
	}
	res.Remaining, _ = c.Queue.Count(ctx)

	if res.Replayed > 0 {
		if _, err := c.Refresh(ctx); err != nil {
			log.Printf("syncer: reload after drain: %v", err)
		}
	}
	return res, nil
}

// DeleteAccount removes every local trace of the user: the session,
// queued writes (they carry the deleted identity) and cached snapshots
// go in one transaction. The in-memory catalog survives until the next
// reload.
func (c *Coordinator) DeleteAccount(ctx context.Context) error {
	if err := c.Maintenance.Reset(ctx); err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	return c.Gate.DeleteAccount(ctx)
}

// Pending returns the offline queue depth.
func (c *Coordinator) Pending(ctx context.Context) int {
	n, err := c.Queue.Count(ctx)
	if err != nil {
		log.Printf("syncer: queue count: %v", err)
		return 0
	}
	return n
}

// Refresh refetches the catalog and snapshots it.
func (c *Coordinator) Refresh(ctx context.Context) (int, error) {
	list, err := c.Client.FetchFarms(ctx)
	if err != nil {
		return 0, err
	}
	c.Catalog.Load(list)
	c.saveSnapshot(ctx, list)
	return len(list), nil
}

func (c *Coordinator) saveSnapshot(ctx context.Context, list []farms.Farm) {
	buf, err := json.Marshal(list)
	if err != nil {
		log.Printf("syncer: marshal snapshot: %v", err)
		return
	}
	if err := c.Snapshots.Put(ctx, farmsSnapshot, buf, database.Now()); err != nil {
		log.Printf("syncer: snapshot store unavailable: %v", err)
	}
}
