package accountpool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ignite/engagement-engine/internal/domain"
	"github.com/ignite/engagement-engine/internal/notify"
	"github.com/ignite/engagement-engine/internal/transport"
	"github.com/ignite/engagement-engine/internal/transport/transporttest"
)

// mockRepo is an in-memory repository for testing.
type mockRepo struct {
	mu    sync.Mutex
	store map[string]*domain.Account
	saves int
}

func newMockRepo(accounts ...domain.Account) *mockRepo {
	m := &mockRepo{store: make(map[string]*domain.Account)}
	for i := range accounts {
		m.store[accounts[i].ID] = accounts[i].Clone()
	}
	return m
}

func (m *mockRepo) ListAccounts(_ context.Context, tenantID string) ([]domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Account
	for _, a := range m.store {
		if a.TenantID == tenantID {
			out = append(out, *a.Clone())
		}
	}
	return out, nil
}

func (m *mockRepo) SaveAccount(_ context.Context, a *domain.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store[a.ID] = a.Clone()
	m.saves++
	return nil
}

func (m *mockRepo) get(id string) *domain.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store[id].Clone()
}

type sentEvents struct {
	mu     sync.Mutex
	events []notify.Event
}

func (s *sentEvents) Send(e notify.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

var t0 = time.Date(2026, 5, 10, 10, 0, 0, 0, time.UTC)

func acct(id string, status domain.AccountStatus) domain.Account {
	return domain.Account{
		ID:        id,
		TenantID:  "t1",
		Status:    status,
		CreatedAt: t0.Add(-30 * 24 * time.Hour),
	}
}

func newTestPool(t *testing.T, accounts ...domain.Account) (*Pool, *mockRepo, *transporttest.Platform, *time.Time) {
	t.Helper()
	repo := newMockRepo(accounts...)
	platform := transporttest.NewPlatform()
	now := t0
	p := New("t1", DefaultConfig(), repo, platform, &sentEvents{})
	p.now = func() time.Time { return now }
	if err := p.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := p.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return p, repo, platform, &now
}

func TestAcquire_LeastRecentlyUsed(t *testing.T) {
	a, b := acct("a", domain.AccountActive), acct("b", domain.AccountActive)
	a.LastUsedAt = t0.Add(-time.Hour)
	b.LastUsedAt = t0.Add(-2 * time.Hour)
	p, _, _, now := newTestPool(t, a, b)

	h, ok := p.Acquire(domain.ActionComment)
	if !ok || h.ID() != "b" {
		t.Fatalf("expected b (oldest use), got %v %v", h, ok)
	}
	p.Release("b")

	*now = now.Add(time.Minute)
	h, ok = p.Acquire(domain.ActionComment)
	if !ok || h.ID() != "a" {
		t.Fatalf("expected a after b was used, got %v", h)
	}
}

func TestAcquire_ConcurrentSingleEligible(t *testing.T) {
	p, _, _, _ := newTestPool(t, acct("only", domain.AccountActive))

	var wg sync.WaitGroup
	results := make(chan bool, 2)
	start := make(chan struct{})
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, ok := p.Acquire(domain.ActionComment)
			results <- ok
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	got := 0
	for ok := range results {
		if ok {
			got++
		}
	}
	if got != 1 {
		t.Fatalf("exactly one caller must receive the identity, got %d", got)
	}
}

func TestSetCooldown_OnlyExtends(t *testing.T) {
	p, repo, _, now := newTestPool(t, acct("a", domain.AccountActive))
	ctx := context.Background()

	if err := p.SetCooldown(ctx, "a", 120*time.Second); err != nil {
		t.Fatal(err)
	}
	got := repo.get("a")
	if got.Status != domain.AccountCooldown || !got.CooldownUntil.Equal(t0.Add(120*time.Second)) {
		t.Fatalf("unexpected cooldown state %s %v", got.Status, got.CooldownUntil)
	}

	if err := p.SetCooldown(ctx, "a", 10*time.Second); err != nil {
		t.Fatal(err)
	}
	if got := repo.get("a"); !got.CooldownUntil.Equal(t0.Add(120 * time.Second)) {
		t.Errorf("shorter cooldown must not shorten the window, got %v", got.CooldownUntil)
	}

	if _, ok := p.Acquire(domain.ActionComment); ok {
		t.Fatal("identity in cooldown must not be returned")
	}

	*now = t0.Add(121 * time.Second)
	h, ok := p.Acquire(domain.ActionComment)
	if !ok || h.ID() != "a" {
		t.Fatal("identity must be eligible once cooldown passes")
	}
	if h.Account.Status != domain.AccountActive {
		t.Errorf("expired cooldown should restore active, got %s", h.Account.Status)
	}
}

func TestAcquire_NeverReturnsTerminal(t *testing.T) {
	p, _, _, _ := newTestPool(t,
		acct("banned", domain.AccountBanned),
		acct("disabled", domain.AccountDisabled),
	)
	if _, ok := p.Acquire(domain.ActionFetch); ok {
		t.Fatal("terminal identities must never be handed out")
	}
	if !p.AllBanned() {
		t.Error("AllBanned should be true")
	}
}

func TestMarkFailed(t *testing.T) {
	p, repo, platform, _ := newTestPool(t, acct("a", domain.AccountActive), acct("b", domain.AccountActive))
	ctx := context.Background()

	if err := p.MarkFailed(ctx, "a", "account deactivated"); err != nil {
		t.Fatal(err)
	}
	if got := repo.get("a"); got.Status != domain.AccountBanned || got.FailureReason != "account deactivated" {
		t.Errorf("unexpected state %+v", got)
	}
	if platform.Closed("a") != 1 {
		t.Error("banned session should be closed")
	}
	for i := 0; i < 3; i++ {
		h, ok := p.Acquire(domain.ActionFetch)
		if !ok || h.ID() != "b" {
			t.Fatalf("only b should be offered, got %v", h)
		}
		p.Release(h.ID())
	}
	if p.AllBanned() {
		t.Error("b is still usable")
	}
	if err := p.MarkFailed(ctx, "missing", "x"); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestDailyCaps_AndDayRollover(t *testing.T) {
	p, _, _, now := newTestPool(t, acct("a", domain.AccountActive))
	p.cfg.DailyCaps = map[domain.ActionType]int{domain.ActionComment: 2}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		h, ok := p.Acquire(domain.ActionComment)
		if !ok {
			t.Fatalf("acquire %d failed", i)
		}
		if err := p.RecordUsage(ctx, h.ID(), domain.ActionComment); err != nil {
			t.Fatal(err)
		}
		p.Release(h.ID())
	}
	if _, ok := p.Acquire(domain.ActionComment); ok {
		t.Fatal("cap reached, acquire must fail")
	}
	h, ok := p.Acquire(domain.ActionFetch)
	if !ok {
		t.Fatal("uncounted actions ignore caps")
	}
	p.Release(h.ID())

	*now = time.Date(2026, 5, 11, 0, 0, 1, 0, time.UTC)
	if _, ok := p.Acquire(domain.ActionComment); !ok {
		t.Fatal("counters must reset on a new UTC day")
	}
}

func TestWarmingCapsAndPromotion(t *testing.T) {
	young := acct("young", domain.AccountWarming)
	young.CreatedAt = t0.Add(-time.Hour)
	p, _, _, now := newTestPool(t, young)

	if _, ok := p.Acquire(domain.ActionInvite); ok {
		t.Fatal("warming cap for invites is zero")
	}

	*now = t0.Add(72 * time.Hour)
	h, ok := p.Acquire(domain.ActionInvite)
	if !ok {
		t.Fatal("identity should be promoted after warmup")
	}
	if h.Account.Status != domain.AccountActive {
		t.Errorf("status = %s, want active", h.Account.Status)
	}
}

func TestAcquireFor_SourceExclusions(t *testing.T) {
	lurker := acct("lurker", domain.AccountActive)
	lurker.JoinedAt = map[string]time.Time{"src": t0.Add(-2 * time.Hour)}
	veteran := acct("veteran", domain.AccountActive)
	veteran.JoinedAt = map[string]time.Time{"src": t0.Add(-48 * time.Hour)}
	veteran.LastUsedAt = t0

	p, _, _, _ := newTestPool(t, lurker, veteran)
	ctx := context.Background()

	h, ok := p.AcquireFor(domain.ActionComment, "src")
	if !ok || h.ID() != "veteran" {
		t.Fatalf("lurking identity must be skipped, got %v", h)
	}
	p.Release(h.ID())

	if err := p.DisableSource(ctx, "veteran", "src"); err != nil {
		t.Fatal(err)
	}
	if _, ok := p.AcquireFor(domain.ActionComment, "src"); ok {
		t.Fatal("no identity may act in src now")
	}
	if h, ok := p.AcquireFor(domain.ActionComment, "other"); !ok {
		t.Fatal("forbidden pairing must not affect other sources")
	} else {
		p.Release(h.ID())
	}
	if h, ok := p.AcquireFor(domain.ActionFetch, "src"); !ok || h.ID() != "lurker" {
		t.Fatal("lurk window does not apply to reads")
	}
}

func TestConnect_BannedVerdict(t *testing.T) {
	repo := newMockRepo(acct("a", domain.AccountActive), acct("b", domain.AccountActive))
	platform := transporttest.NewPlatform()
	platform.FailConnect("a", transport.Banned(errors.New("user deactivated")))
	platform.FailConnect("b", transport.Network(errors.New("dial tcp: timeout")))

	p := New("t1", DefaultConfig(), repo, platform, nil)
	ctx := context.Background()
	if err := p.Load(ctx); err != nil {
		t.Fatal(err)
	}
	n, err := p.Connect(ctx)
	if err != nil || n != 0 {
		t.Fatalf("Connect = %d, %v", n, err)
	}
	if repo.get("a").Status != domain.AccountBanned {
		t.Error("banned verdict must mark the account failed")
	}
	if repo.get("b").Status != domain.AccountActive {
		t.Error("network failure must not change status")
	}

	platform.FailConnect("b", nil)
	n, err = p.Reconnect(ctx)
	if err != nil || n != 1 {
		t.Fatalf("Reconnect = %d, %v", n, err)
	}
}

func TestLoad_NoAccounts(t *testing.T) {
	p := New("t1", DefaultConfig(), newMockRepo(), transporttest.NewPlatform(), nil)
	if err := p.Load(context.Background()); !errors.Is(err, ErrNoAccounts) {
		t.Fatalf("expected ErrNoAccounts, got %v", err)
	}
}

func TestStatsAndClose(t *testing.T) {
	p, _, platform, _ := newTestPool(t, acct("a", domain.AccountActive), acct("b", domain.AccountBanned))
	if _, ok := p.Acquire(domain.ActionComment); !ok {
		t.Fatal("acquire")
	}
	st := p.Stats()
	if st.Total != 2 || st.Connected != 1 || st.Leased != 1 || st.ByStatus["banned"] != 1 {
		t.Errorf("unexpected stats %+v", st)
	}
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	if platform.Closed("a") != 1 {
		t.Error("Close must close sessions")
	}
	if p.Stats().Connected != 0 {
		t.Error("no sessions after Close")
	}
}
