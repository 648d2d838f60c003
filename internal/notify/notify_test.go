package notify

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
	err    error
	block  chan struct{}
}

func (r *recorder) Notify(ctx context.Context, e Event) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.err
}

func (r *recorder) kinds() []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Kind
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}

func TestAsync_DeliversInOrder(t *testing.T) {
	rec := &recorder{}
	a := NewAsync(rec, 10, time.Second)

	a.Send(Event{Kind: KindSystemStart, Counts: map[string]int{"accounts": 3}})
	a.Send(Event{Kind: KindActionSucceeded, TenantID: "t1", Preview: Preview("hello")})
	a.Send(Event{Kind: KindActionFailed, TenantID: "t1", ErrorKind: "generation", Message: "empty reply"})
	a.Send(Event{Kind: KindSystemStop})
	a.Close()

	assert.Equal(t, []Kind{KindSystemStart, KindActionSucceeded, KindActionFailed, KindSystemStop}, rec.kinds())
}

func TestAsync_SendNeverBlocks(t *testing.T) {
	rec := &recorder{block: make(chan struct{})}
	a := NewAsync(rec, 1, time.Second)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			a.Send(Event{Kind: KindInfo, TenantID: "t1", AccountID: "acc", Message: "cooldown"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Send blocked on a stalled notifier")
	}
	assert.Greater(t, a.Dropped(), int64(0))

	close(rec.block)
	a.Close()
}

func TestAsync_FailureIsSwallowed(t *testing.T) {
	rec := &recorder{err: errors.New("webhook down")}
	a := NewAsync(rec, 4, time.Second)
	a.Send(Event{Kind: KindFatal, TenantID: "t1", Message: "max reconnects"})
	a.Close()

	assert.Equal(t, int64(1), a.Failed())
	assert.Len(t, rec.kinds(), 1, "failed deliveries are not retried")
}

func TestAsync_SendAfterCloseIsIgnored(t *testing.T) {
	rec := &recorder{}
	a := NewAsync(rec, 4, time.Second)
	a.Close()
	a.Send(Event{Kind: KindInfo, TenantID: "t1", Message: "late"})
	a.Close()
	assert.Empty(t, rec.kinds())
}

func TestPreview(t *testing.T) {
	short := "short reply"
	assert.Equal(t, short, Preview(short))

	long := strings.Repeat("x", 300)
	p := Preview(long)
	assert.True(t, strings.HasSuffix(p, "…"))
	assert.Len(t, []rune(p), previewLen+1)
}

func TestSMTPNotifier_FiltersKinds(t *testing.T) {
	var sent []string
	n := NewSMTPNotifier(SMTPConfig{Host: "mail.local", Port: 25, From: "bot@local", To: []string{"ops@local"}})
	n.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		sent = append(sent, string(msg))
		return nil
	}

	ctx := context.Background()
	require.NoError(t, n.Notify(ctx, Event{Kind: KindActionSucceeded, TenantID: "t1"}))
	require.NoError(t, n.Notify(ctx, Event{Kind: KindFatal, TenantID: "t1", Message: "all accounts banned", At: time.Now()}))

	require.Len(t, sent, 1)
	assert.Contains(t, sent[0], "Subject: [engagement] fatal")
	assert.Contains(t, sent[0], "all accounts banned")
}

func TestSMTPNotifier_Unconfigured(t *testing.T) {
	n := NewSMTPNotifier(SMTPConfig{})
	err := n.Notify(context.Background(), Event{Kind: KindFatal})
	assert.Error(t, err)
}
