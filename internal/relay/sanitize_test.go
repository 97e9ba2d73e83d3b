package relay

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mailsift/mailsift/internal/core"
)

type countingCounter struct {
	cap      int64
	acquired int64
}

func (c *countingCounter) TryAcquire() bool {
	if c.acquired >= c.cap {
		return false
	}
	c.acquired++
	return true
}
func (c *countingCounter) Reset()       { c.acquired = 0 }
func (c *countingCounter) Count() int64 { return c.acquired }

type nopStats struct{}

func (nopStats) Record(core.Checkpoint) {}

func newTestGatekeeper(cfg Config, counter core.RelayCounter) *Gatekeeper {
	if counter == nil {
		counter = &countingCounter{cap: 100}
	}
	return New(cfg, counter, nopStats{}, rand.New(rand.NewSource(42)), zap.NewNop())
}

func allEnabled() Config {
	return Config{Enabled: true, DestroyAttachment: true, DestroyLink: true, DestroyReplyTo: true}
}

func TestDecideDropsBelowThreshold(t *testing.T) {
	g := newTestGatekeeper(allEnabled(), nil)
	action, out := g.Decide(&core.MailRecord{}, 69, []byte("raw"))
	assert.Equal(t, Drop, action)
	assert.Nil(t, out)
}

func TestDecideDropsWhenDisabled(t *testing.T) {
	g := newTestGatekeeper(Config{Enabled: false}, nil)
	action, _ := g.Decide(&core.MailRecord{}, 100, []byte("raw"))
	assert.Equal(t, Drop, action)
}

func TestDecideDropsAtRateCap(t *testing.T) {
	counter := &countingCounter{cap: 1}
	g := newTestGatekeeper(allEnabled(), counter)
	rec := &core.MailRecord{}

	action, _ := g.Decide(rec, 80, []byte("raw"))
	assert.Equal(t, Forward, action)
	action, _ = g.Decide(rec, 80, []byte("raw"))
	assert.Equal(t, Drop, action)
	assert.Equal(t, int64(1), counter.Count())
}

func TestDestroyAttachmentPreservesFraming(t *testing.T) {
	body := []byte("AAAAAAAAAAAAAAAAAAAAmiddle-bytes-that-should-get-shuffled-around-quite-a-lotZZZZZZZZZZZZZZZZZZZZ")
	raw := append([]byte("headers\r\n\r\n"), body...)
	rec := &core.MailRecord{
		Attachments: []core.Attachment{{Filename: "a.bin", Undecoded: body}},
	}

	g := newTestGatekeeper(allEnabled(), nil)
	action, out := g.Decide(rec, 80, raw)
	require.Equal(t, Forward, action)

	assert.Equal(t, len(raw), len(out))
	idx := bytes.Index(raw, body)
	sanitized := out[idx : idx+len(body)]
	assert.Equal(t, body[:20], sanitized[:20])
	assert.Equal(t, body[len(body)-20:], sanitized[len(body)-20:])
	assert.NotEqual(t, body, sanitized)

	// same multiset of middle bytes, just reordered
	middleWant := append([]byte(nil), body[20:len(body)-20]...)
	middleGot := append([]byte(nil), sanitized[20:len(sanitized)-20]...)
	sortBytes(middleWant)
	sortBytes(middleGot)
	assert.Equal(t, middleWant, middleGot)
}

func TestDestroyAttachmentSkipsShortAndMissing(t *testing.T) {
	short := []byte("tiny")
	raw := []byte("headers\r\n\r\ntiny")
	rec := &core.MailRecord{
		Attachments: []core.Attachment{
			{Filename: "short.bin", Undecoded: short},
			{Filename: "lost.bin", Undecoded: nil},
		},
	}
	g := newTestGatekeeper(allEnabled(), nil)
	_, out := g.Decide(rec, 80, raw)
	assert.Equal(t, raw, out)
}

func TestDestroyLinkSubstitutesOneCharacter(t *testing.T) {
	link := "http://billing.example.net/pay"
	raw := []byte("visit " + link + " twice: " + link)
	rec := &core.MailRecord{Links: []string{link}}

	g := newTestGatekeeper(allEnabled(), nil)
	_, out := g.Decide(rec, 80, raw)

	assert.NotContains(t, string(out), link)
	assert.Equal(t, len(raw), len(out))

	// only the character before the last dot changed
	destroyed := string(out[len("visit ") : len("visit ")+len(link)])
	assert.Equal(t, "http://billing.exampl", destroyed[:21])
	assert.Equal(t, ".net/pay", destroyed[22:])
	changed := destroyed[21]
	assert.GreaterOrEqual(t, changed, byte('a'))
	assert.LessOrEqual(t, changed, byte('z'))

	// both occurrences rewritten identically
	assert.Equal(t, 2, bytes.Count(out, []byte(destroyed)))
}

func TestDestroyLinkSkipsDotlessLink(t *testing.T) {
	raw := []byte("see http://localhost/x please")
	rec := &core.MailRecord{Links: []string{"http://localhost/x"}}

	g := newTestGatekeeper(allEnabled(), nil)
	_, out := g.Decide(rec, 80, raw)
	assert.Equal(t, raw, out)
}

func TestDestroyReplyToSubstitutesSimilarLetter(t *testing.T) {
	replyTo := "collector@drop.example.net"
	raw := []byte("Reply-To: " + replyTo + "\r\n\r\nbody")
	rec := &core.MailRecord{ReplyTo: replyTo}

	g := newTestGatekeeper(allEnabled(), nil)
	_, out := g.Decide(rec, 80, raw)

	assert.NotContains(t, string(out), replyTo)
	// domain's first substitutable letter is 'p' in "drop", swapped for 'b'
	assert.Contains(t, string(out), "collector@drob.example.net")
}

func TestDestroyReplyToFallbackShiftsFirstLetter(t *testing.T) {
	// no character of "xx.example" before the last dot has a table entry
	replyTo := "a@xx.net"
	raw := []byte("Reply-To: " + replyTo + "\r\n\r\nbody")
	rec := &core.MailRecord{ReplyTo: replyTo}

	g := newTestGatekeeper(allEnabled(), nil)
	_, out := g.Decide(rec, 80, raw)
	assert.Contains(t, string(out), "a@}x.net")
}

func TestDestroyReplyToAbsentIsNoop(t *testing.T) {
	raw := []byte("no reply-to here")
	g := newTestGatekeeper(allEnabled(), nil)
	_, out := g.Decide(&core.MailRecord{}, 80, raw)
	assert.Equal(t, raw, out)
}

func sortBytes(b []byte) {
	for i := 1; i < len(b); i++ {
		for j := i; j > 0 && b[j-1] > b[j]; j-- {
			b[j-1], b[j] = b[j], b[j-1]
		}
	}
}
