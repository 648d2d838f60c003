// Package transporttest provides an in-memory platform implementing
// transport.Connector for tests.
package transporttest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/ignite/engagement-engine/internal/domain"
	"github.com/ignite/engagement-engine/internal/transport"
)

// Post is one message recorded by the fake platform.
type Post struct {
	AccountID string
	SourceID  string
	ItemID    int64
	PostedID  string
	Text      string
}

// Platform is a scripted, thread-safe fake of the remote platform.
type Platform struct {
	mu sync.Mutex

	items       map[string][]domain.Item
	replies     map[string][]string
	reactions   map[string]int
	replyErrs   map[string]error
	postErrs    map[string][]error
	fetchErrs   []error
	connectErrs map[string]error
	posts       []Post
	connects    map[string]int
	closed      map[string]int
	nextPosted  int
}

// NewPlatform creates an empty fake platform.
func NewPlatform() *Platform {
	return &Platform{
		items:       make(map[string][]domain.Item),
		replies:     make(map[string][]string),
		reactions:   make(map[string]int),
		replyErrs:   make(map[string]error),
		postErrs:    make(map[string][]error),
		connectErrs: make(map[string]error),
		connects:    make(map[string]int),
		closed:      make(map[string]int),
		nextPosted:  1000,
	}
}

// AddItems publishes items into a source.
func (p *Platform) AddItems(sourceID string, items ...domain.Item) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items[sourceID] = append(p.items[sourceID], items...)
}

// SetReplies sets the replies returned for an item or posted id.
func (p *Platform) SetReplies(sourceID, id string, replies ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replies[sourceID+"/"+id] = replies
}

// SetReactions sets the reaction count of a posted id.
func (p *Platform) SetReactions(sourceID, postedID string, n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reactions[sourceID+"/"+postedID] = n
}

// FailReplies makes FetchReplies for id fail with err until cleared with nil.
func (p *Platform) FailReplies(sourceID, id string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		delete(p.replyErrs, sourceID+"/"+id)
		return
	}
	p.replyErrs[sourceID+"/"+id] = err
}

// FailNextPost queues an error for the next Post by accountID.
func (p *Platform) FailNextPost(accountID string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.postErrs[accountID] = append(p.postErrs[accountID], err)
}

// FailNextFetch queues an error for the next FetchRecentItems by any account.
func (p *Platform) FailNextFetch(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fetchErrs = append(p.fetchErrs, err)
}

// FailConnect makes Connect fail for accountID until cleared with nil.
func (p *Platform) FailConnect(accountID string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		delete(p.connectErrs, accountID)
		return
	}
	p.connectErrs[accountID] = err
}

// Posts returns a copy of every successful post.
func (p *Platform) Posts() []Post {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Post, len(p.posts))
	copy(out, p.posts)
	return out
}

// Connects returns how many times accountID connected.
func (p *Platform) Connects(accountID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connects[accountID]
}

// Closed returns how many sessions of accountID were closed.
func (p *Platform) Closed(accountID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed[accountID]
}

// Connect implements transport.Connector.
func (p *Platform) Connect(ctx context.Context, account domain.Account) (transport.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err, ok := p.connectErrs[account.ID]; ok {
		return nil, err
	}
	p.connects[account.ID]++
	return &session{p: p, accountID: account.ID}, nil
}

type session struct {
	p         *Platform
	accountID string
	closed    bool
}

func (s *session) AccountID() string { return s.accountID }

func (s *session) IsAuthorized(ctx context.Context) (bool, error) {
	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	return !s.closed, nil
}

func (s *session) FetchRecentItems(ctx context.Context, source domain.Source, afterID int64, limit int) ([]domain.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	if s.closed {
		return nil, transport.Network(errors.New("session closed"))
	}
	if len(s.p.fetchErrs) > 0 {
		err := s.p.fetchErrs[0]
		s.p.fetchErrs = s.p.fetchErrs[1:]
		return nil, err
	}

	var out []domain.Item
	for _, it := range s.p.items[source.ID] {
		if it.ID > afterID {
			out = append(out, it)
		}
	}
	// newest first, like the real platform history API
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *session) FetchReplies(ctx context.Context, source domain.Source, id string, limit int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	key := source.ID + "/" + id
	if err, ok := s.p.replyErrs[key]; ok {
		return nil, err
	}
	r := s.p.replies[key]
	if limit > 0 && len(r) > limit {
		r = r[:limit]
	}
	out := make([]string, len(r))
	copy(out, r)
	return out, nil
}

func (s *session) CountReactions(ctx context.Context, source domain.Source, postedID string) (int, error) {
	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	return s.p.reactions[source.ID+"/"+postedID], nil
}

func (s *session) Post(ctx context.Context, source domain.Source, itemID int64, text string) (transport.PostResult, error) {
	if err := ctx.Err(); err != nil {
		return transport.PostResult{}, err
	}
	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	if q := s.p.postErrs[s.accountID]; len(q) > 0 {
		err := q[0]
		s.p.postErrs[s.accountID] = q[1:]
		return transport.PostResult{}, err
	}
	s.p.nextPosted++
	posted := strconv.Itoa(s.p.nextPosted)
	s.p.posts = append(s.p.posts, Post{
		AccountID: s.accountID,
		SourceID:  source.ID,
		ItemID:    itemID,
		PostedID:  posted,
		Text:      text,
	})
	return transport.PostResult{PostedID: posted}, nil
}

func (s *session) Close() error {
	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	if s.closed {
		return fmt.Errorf("session %s already closed", s.accountID)
	}
	s.closed = true
	s.p.closed[s.accountID]++
	return nil
}
