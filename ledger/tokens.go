package ledger

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is the tiktoken encoding used when none is specified.
// cl100k_base covers the GPT-4 family the voice backends run on.
const DefaultEncoding = "cl100k_base"

// Counter counts tokens in text. Implemented by TiktokenCounter for
// production use; tests may substitute cheaper counters.
type Counter interface {
	Count(text string) (int, error)
}

// TiktokenCounter counts tokens with tiktoken. The encoding is
// initialized lazily because tiktoken may download encoding data on
// first use.
type TiktokenCounter struct {
	encoding string
	enc      *tiktoken.Tiktoken
	once     sync.Once
	initErr  error
}

// NewTiktokenCounter creates a counter for the given encoding. An empty
// encoding selects DefaultEncoding.
func NewTiktokenCounter(encoding string) *TiktokenCounter {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	return &TiktokenCounter{encoding: encoding}
}

func (t *TiktokenCounter) init() error {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.initErr = fmt.Errorf("init tiktoken encoding %s: %w", t.encoding, err)
			return
		}
		t.enc = enc
	})
	return t.initErr
}

// Count returns the number of tokens in text.
func (t *TiktokenCounter) Count(text string) (int, error) {
	if err := t.init(); err != nil {
		return 0, err
	}
	return len(t.enc.Encode(text, nil, nil)), nil
}

// RenderDigestBounded renders a digest whose token count does not
// exceed maxTokens, dropping the oldest utterances first. The most
// recent utterances always win; when even the newest line alone exceeds
// the budget, the sentinel is returned so the caller still gets a
// well-formed section. A nil counter or non-positive budget falls back
// to the unbounded digest.
func (l *Ledger) RenderDigestBounded(c Counter, maxTokens int) (string, error) {
	if c == nil || maxTokens <= 0 {
		return l.RenderDigest(), nil
	}

	utterances := l.Snapshot()
	for start := 0; start < len(utterances); start++ {
		digest := renderLines(utterances[start:])
		n, err := c.Count(digest)
		if err != nil {
			return "", err
		}
		if n <= maxTokens {
			return digest, nil
		}
	}
	return EmptyDigest, nil
}
