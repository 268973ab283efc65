// Package access decides whether the current session may see farm
// detail content. The trust model is deliberately client-asserted:
// isolating it here lets a real backend replace it later without
// touching the catalog or statistics.
package access

import (
	"context"
	"sync"

	"github.com/avlasov/farmmap/internal/database"
	"github.com/avlasov/farmmap/internal/database/repository"
	"github.com/avlasov/farmmap/internal/host"
)

// Gate is a two-state machine: unauthenticated, or an authenticated
// contributor. Once granted, access holds for the life of the persisted
// session; only explicit account deletion revokes it.
type Gate struct {
	mu       sync.Mutex
	sessions *repository.SessionRepo
	current  *repository.Session
}

// Load reconstructs gate state from the persisted session, if any.
func Load(ctx context.Context, sessions *repository.SessionRepo) (*Gate, error) {
	s, err := sessions.Load(ctx)
	if err != nil {
		return nil, err
	}
	return &Gate{sessions: sessions, current: s}, nil
}

// CanViewDetails is a pure function of current state. While false,
// callers may expose only a farm's name, type and coarse location.
func (g *Gate) CanViewDetails() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current != nil
}

// Identity returns the session identity when one exists.
func (g *Gate) Identity() (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.current == nil {
		return "", false
	}
	return g.current.Identity, true
}

// Contributions returns the running contribution count.
func (g *Gate) Contributions() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.current == nil {
		return 0
	}
	return g.current.Contributions
}

// GrantAfterVerification admits an identity the remote service
// confirmed as registered.
func (g *Gate) GrantAfterVerification(ctx context.Context, identity string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.current != nil && g.current.Identity == identity {
		return nil
	}
	s := repository.Session{
		Identity: identity,
		Source:   repository.SourceLogin,
		JoinedAt: database.Now(),
	}
	if err := g.sessions.Save(ctx, s); err != nil {
		return err
	}
	g.current = &s
	return nil
}

// GrantAfterContribution admits an identity that completed an add-farm
// or add-review submission and bumps the contribution counter. A write
// queued offline counts too: delivery is guaranteed eventually, so the
// grant is optimistic.
func (g *Gate) GrantAfterContribution(ctx context.Context, identity string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.current != nil {
		g.current.Contributions++
		return g.sessions.AddContribution(ctx)
	}
	s := repository.Session{
		Identity:      identity,
		Source:        repository.SourceLogin,
		Contributions: 1,
		JoinedAt:      database.Now(),
	}
	if err := g.sessions.Save(ctx, s); err != nil {
		return err
	}
	g.current = &s
	return nil
}

// AdoptHostIdentity admits a container-asserted user unconditionally;
// the host already authenticated them.
func (g *Gate) AdoptHostIdentity(ctx context.Context, id host.Identity) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.current != nil && g.current.Identity == id.Email() {
		return nil
	}
	s := repository.Session{
		Identity: id.Email(),
		Source:   repository.SourceTelegram,
		JoinedAt: database.Now(),
	}
	if err := g.sessions.Save(ctx, s); err != nil {
		return err
	}
	g.current = &s
	return nil
}

// DeleteAccount clears the persisted session and returns the gate to
// its unauthenticated state. This is the only transition back.
func (g *Gate) DeleteAccount(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.sessions.Clear(ctx); err != nil {
		return err
	}
	g.current = nil
	return nil
}
