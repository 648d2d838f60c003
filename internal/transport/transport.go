// Package transport defines the session/identity collaborator the engine
// drives: connecting an identity, fetching items and replies, and posting.
//
// Implementations live outside this module and register themselves by name
// (see Register), the same way database/sql drivers do. Failures are reported
// as *Error values carrying one of a closed set of Kinds so callers branch on
// the kind instead of on concrete error types.
package transport

import (
	"context"
	"sort"
	"sync"

	"github.com/ignite/engagement-engine/internal/domain"
)

// Session is a live, authorized connection for one identity.
type Session interface {
	AccountID() string
	IsAuthorized(ctx context.Context) (bool, error)

	// FetchRecentItems returns up to limit items newer than afterID, any order.
	FetchRecentItems(ctx context.Context, source domain.Source, afterID int64, limit int) ([]domain.Item, error)

	// FetchReplies returns reply texts under an item, or under one of our own
	// posted messages when id is a posted id.
	FetchReplies(ctx context.Context, source domain.Source, id string, limit int) ([]string, error)

	// CountReactions returns the number of reactions on a posted message.
	CountReactions(ctx context.Context, source domain.Source, postedID string) (int, error)

	Post(ctx context.Context, source domain.Source, itemID int64, text string) (PostResult, error)

	Close() error
}

// PostResult is returned by a successful Post.
type PostResult struct {
	PostedID string
}

// Connector opens sessions for accounts.
type Connector interface {
	Connect(ctx context.Context, account domain.Account) (Session, error)
}

// Factory builds a Connector from driver options.
type Factory func(options map[string]string) (Connector, error)

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Factory)
)

// Register makes a transport driver available by name. It panics if called
// twice with the same name or with a nil factory.
func Register(name string, f Factory) {
	driversMu.Lock()
	defer driversMu.Unlock()
	if f == nil {
		panic("transport: Register factory is nil")
	}
	if _, dup := drivers[name]; dup {
		panic("transport: Register called twice for driver " + name)
	}
	drivers[name] = f
}

// Open builds the named driver's Connector.
func Open(name string, options map[string]string) (Connector, error) {
	driversMu.RLock()
	f, ok := drivers[name]
	driversMu.RUnlock()
	if !ok {
		return nil, &UnknownDriverError{Name: name, Known: Drivers()}
	}
	return f(options)
}

// Drivers returns the sorted names of registered drivers.
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	names := make([]string, 0, len(drivers))
	for n := range drivers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// UnknownDriverError is returned by Open for an unregistered name.
type UnknownDriverError struct {
	Name  string
	Known []string
}

func (e *UnknownDriverError) Error() string {
	return "transport: unknown driver " + `"` + e.Name + `"` + " (registered: " + joinNames(e.Known) + ")"
}

func joinNames(names []string) string {
	if len(names) == 0 {
		return "none"
	}
	out := names[0]
	for _, n := range names[1:] {
		out += ", " + n
	}
	return out
}
