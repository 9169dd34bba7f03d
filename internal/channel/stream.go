package channel

import (
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"starcall/pkg/types"
)

const defaultFlushInterval = 100 * time.Millisecond

// TokenStream coalesces streamed AI reply tokens into the visible
// message buffer. Tokens identical to the immediately previous token are
// suppressed; this is a deliberately lossy heuristic that also drops
// legitimately repeated tokens, kept because the backend offers no
// sequence numbers to dedup against.
type TokenStream struct {
	mu        sync.Mutex
	last      string
	buf       strings.Builder
	sessionID string
	running   bool
	stopCh    chan struct{}

	interval time.Duration
	onFlush  func(chunk string)
	onFinal  func(evt types.AISessionEndEvent)
	logger   zerolog.Logger
}

// NewTokenStream creates a stream that appends coalesced chunks via
// onFlush on a fixed cadence and finalizes via onFinal.
func NewTokenStream(interval time.Duration, onFlush func(chunk string), onFinal func(evt types.AISessionEndEvent)) *TokenStream {
	if interval <= 0 {
		interval = defaultFlushInterval
	}
	return &TokenStream{
		interval: interval,
		onFlush:  onFlush,
		onFinal:  onFinal,
		logger:   log.With().Str("component", "token_stream").Logger(),
	}
}

// Start begins the periodic flusher. Starting twice is a no-op.
func (t *TokenStream) Start() {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return
	}
	t.running = true
	stop := make(chan struct{})
	t.stopCh = stop
	t.mu.Unlock()

	go t.flushLoop(stop)
}

// Stop halts the flusher and discards any buffered tokens.
func (t *TokenStream) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return
	}
	t.running = false
	close(t.stopCh)
	t.stopCh = nil
	t.buf.Reset()
	t.last = ""
}

// Push accepts one streamed token, suppressing an exact duplicate of the
// previous token.
func (t *TokenStream) Push(token string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if token == t.last {
		t.logger.Debug().Str("token", token).Msg("duplicate token skipped")
		return
	}
	t.last = token
	t.buf.WriteString(token)
}

// End finalizes the stream: flush whatever is buffered, hand the
// canonical message to onFinal, and reset for the next reply.
func (t *TokenStream) End(evt types.AISessionEndEvent) {
	t.mu.Lock()
	remainder := t.buf.String()
	t.buf.Reset()
	t.last = ""
	t.sessionID = evt.SessionID
	t.mu.Unlock()

	if remainder != "" && t.onFlush != nil {
		t.onFlush(remainder)
	}
	if t.onFinal != nil {
		t.onFinal(evt)
	}
}

// SessionID returns the id recorded from the last end-of-stream event.
func (t *TokenStream) SessionID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessionID
}

func (t *TokenStream) flushLoop(stop chan struct{}) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			t.flush()
		}
	}
}

func (t *TokenStream) flush() {
	t.mu.Lock()
	if t.buf.Len() == 0 {
		t.mu.Unlock()
		return
	}
	chunk := t.buf.String()
	t.buf.Reset()
	t.mu.Unlock()

	if t.onFlush != nil {
		t.onFlush(chunk)
	}
}
