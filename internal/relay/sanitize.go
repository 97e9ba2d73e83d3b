package relay

import (
	"bytes"
	"strings"

	"go.uber.org/zap"

	"github.com/mailsift/mailsift/internal/core"
)

// sanitizerHeadTail is how many bytes at each end of an attachment survive
// the shuffle, so the container framing stays parseable.
const sanitizerHeadTail = 20

const lowercaseLetters = "abcdefghijklmnopqrstuvwxyz"

// similarLetters maps a domain character to a visually or phonetically close
// replacement for the reply-to destroyer.
var similarLetters = map[byte]byte{
	'f': 't', 'g': 'b', 'h': 'k', 'i': 'j', 'j': 'i', 'J': 'I',
	'p': 'b', 'b': 'g', 'q': 'g', 'Q': 'G', 'm': 'n', 'n': 'm',
	'M': 'N', 'I': 'J', 's': 'z', 'z': 's', 'T': 'I', 'G': 'Q',
	't': 'f', 'k': 'h', 'P': 'B', 'N': 'M',
}

// destroyAttachments shuffles the middle of each attachment's undecoded
// bytes and splices the result back into the outgoing message. Size and the
// first and last 20 bytes are unchanged. Attachments too short to have a
// middle, or with no recovered undecoded form, are left alone.
func (g *Gatekeeper) destroyAttachments(rec *core.MailRecord, raw []byte) []byte {
	for _, att := range rec.Attachments {
		body := att.Undecoded
		if len(body) <= 2*sanitizerHeadTail {
			continue
		}
		middle := make([]byte, len(body)-2*sanitizerHeadTail)
		copy(middle, body[sanitizerHeadTail:len(body)-sanitizerHeadTail])
		g.rng.Shuffle(len(middle), func(i, j int) {
			middle[i], middle[j] = middle[j], middle[i]
		})

		destroyed := make([]byte, 0, len(body))
		destroyed = append(destroyed, body[:sanitizerHeadTail]...)
		destroyed = append(destroyed, middle...)
		destroyed = append(destroyed, body[len(body)-sanitizerHeadTail:]...)

		if !bytes.Contains(raw, body) {
			g.logger.Debug("attachment bytes not found in message, skipping",
				zap.String("filename", att.Filename))
			continue
		}
		g.logger.Debug("destroying attachment", zap.String("filename", att.Filename))
		raw = bytes.Replace(raw, body, destroyed, 1)
	}
	return raw
}

// destroyLinks replaces the character just before each link's last dot with
// a random lowercase letter, everywhere that exact link occurs in the
// outgoing message. Links whose last dot is at position 0, or with no dot,
// are skipped.
func (g *Gatekeeper) destroyLinks(rec *core.MailRecord, raw []byte) []byte {
	for _, link := range rec.Links {
		last := strings.LastIndexByte(link, '.')
		if last < 1 {
			continue
		}
		destroyed := link[:last-1] + string(lowercaseLetters[g.rng.Intn(len(lowercaseLetters))]) + link[last:]
		g.logger.Debug("destroying link", zap.String("from", link), zap.String("to", destroyed))
		raw = bytes.ReplaceAll(raw, []byte(link), []byte(destroyed))
	}
	return raw
}

// destroyReplyTo swaps one character of the reply-to domain for a
// similar-looking one, or shifts the domain's first character by 5 when the
// table has no entry for any of them.
func (g *Gatekeeper) destroyReplyTo(rec *core.MailRecord, raw []byte) []byte {
	replyTo := rec.ReplyTo
	if replyTo == "" {
		return raw
	}
	last := strings.LastIndexByte(replyTo, '.')
	at := strings.IndexByte(replyTo, '@')
	if last < 1 || at < 0 || at+1 >= last {
		return raw
	}
	destroyed := replyTo[:at+1] + changeLetter(replyTo[at+1:last]) + replyTo[last:]
	g.logger.Debug("destroying reply-to", zap.String("from", replyTo), zap.String("to", destroyed))
	return bytes.ReplaceAll(raw, []byte(replyTo), []byte(destroyed))
}

func changeLetter(domain string) string {
	out := []byte(domain)
	for i := 0; i < len(out); i++ {
		if repl, ok := similarLetters[out[i]]; ok {
			out[i] = repl
			return string(out)
		}
	}
	out[0] += 5
	return string(out)
}
