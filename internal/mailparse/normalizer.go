// Package mailparse turns raw message bytes into the canonical MailRecord the
// scoring pipeline consumes. Parsing is deliberately tolerant: malformed
// parts degrade to raw bytes, and only a missing sender, missing recipients,
// an unreadable MIME structure or a failed fingerprint make a message
// undeliverable.
package mailparse

import (
	"bytes"
	"fmt"
	"net/mail"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/jhillyerd/enmime"
	"go.uber.org/zap"

	"github.com/mailsift/mailsift/internal/core"
)

// ParseError marks a message that must be routed to the undeliverable store.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("mailparse: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("mailparse: %s", e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }

// replyToPattern is the address shape a Reply-To header must have to be kept.
var replyToPattern = regexp.MustCompile(`^\w+([.-]?\w+)*@\w+([.-]?\w+)*(\.\w{2,3})+$`)

// Normalizer parses raw mail into MailRecords.
type Normalizer struct {
	logger *zap.Logger
}

// New creates a normalizer.
func New(logger *zap.Logger) *Normalizer {
	return &Normalizer{logger: logger}
}

// Normalize parses one raw message. Any returned error is a *ParseError and
// means the caller must route the raw bytes to the undeliverable store and
// stop.
func (n *Normalizer) Normalize(raw []byte, arrival time.Time) (*core.MailRecord, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, &ParseError{Reason: "unreadable MIME structure", Err: err}
	}

	rec := &core.MailRecord{ArrivalTime: arrival}
	if err := n.recipients(env, rec); err != nil {
		return nil, err
	}
	if err := n.sender(env, rec); err != nil {
		return nil, err
	}

	rec.Subject = env.GetHeader("Subject")
	rec.BodyPlain = plainBody(env)
	rec.BodyHTML = env.HTML
	rec.ReplyTo = n.replyTo(env)
	n.attachments(env, raw, rec)
	rec.Links = ExtractLinks(rec.BodyHTML, rec.BodyPlain)

	fp, err := Fingerprint(rec.Subject, rec.BodyPlain, rec.BodyHTML, rec.From.Email)
	if err != nil {
		return nil, &ParseError{Reason: "fingerprint computation failed", Err: err}
	}
	rec.Fingerprint = fp
	rec.Length = len(rec.BodyHTML) + len(rec.Subject) + len(rec.BodyPlain)

	n.logger.Debug("message normalized",
		zap.String("from", rec.From.Email),
		zap.Int("recipients", len(rec.Recipients)),
		zap.Int("attachments", len(rec.Attachments)),
		zap.Int("links", len(rec.Links)),
		zap.Int("length", rec.Length))
	return rec, nil
}

func (n *Normalizer) recipients(env *enmime.Envelope, rec *core.MailRecord) error {
	to := env.GetHeader("To")
	if to == "" {
		return &ParseError{Reason: "missing To header"}
	}
	rec.Recipients = parseAddressList(to)
	if bcc := env.GetHeader("Bcc"); bcc != "" {
		rec.Recipients = append(rec.Recipients, parseAddressList(bcc)...)
	}
	if len(rec.Recipients) == 0 {
		return &ParseError{Reason: "no parseable recipients"}
	}
	return nil
}

func (n *Normalizer) sender(env *enmime.Envelope, rec *core.MailRecord) error {
	from := env.GetHeader("From")
	if from == "" {
		return &ParseError{Reason: "missing From header"}
	}
	addrs := parseAddressList(from)
	if len(addrs) == 0 {
		return &ParseError{Reason: "unparseable From header"}
	}
	rec.From = addrs[0]
	return nil
}

func (n *Normalizer) replyTo(env *enmime.Envelope) string {
	header := env.GetHeader("Reply-To")
	if header == "" {
		return ""
	}
	addrs := parseAddressList(header)
	if len(addrs) == 0 {
		return ""
	}
	if !replyToPattern.MatchString(addrs[0].Email) {
		n.logger.Debug("reply-to is not address-shaped, dropped", zap.String("reply_to", addrs[0].Email))
		return ""
	}
	return addrs[0].Email
}

// plainBody returns the decoded text/plain body. Envelope.Text is
// down-converted from the HTML part when the message carries no text/plain
// part; that synthesized text must not leak into the plain-body surface.
func plainBody(env *enmime.Envelope) string {
	if env.Root == nil {
		return env.Text
	}
	part := env.Root.DepthMatchFirst(func(p *enmime.Part) bool {
		return p.ContentType == "text/plain" && p.Disposition != "attachment"
	})
	if part == nil {
		return ""
	}
	return env.Text
}

// attachments collects decoded attachment parts in tree order and pairs each
// with the undecoded bytes found by the raw multipart walk. Both walks apply
// isAttachmentPart, so matching counts mean matching indexes; when the two
// views disagree the undecoded form is left nil and the sanitizer skips that
// part.
func (n *Normalizer) attachments(env *enmime.Envelope, raw []byte, rec *core.MailRecord) {
	if env.Root == nil {
		return
	}
	parts := env.Root.DepthMatchAll(func(p *enmime.Part) bool {
		return isAttachmentPart(p.Disposition, p.ContentType, p.FileName)
	})
	if len(parts) == 0 {
		return
	}

	undecoded := rawAttachmentBodies(raw)
	for i, p := range parts {
		att := core.Attachment{Filename: p.FileName, Content: p.Content}
		if len(undecoded) == len(parts) {
			att.Undecoded = undecoded[i]
		}
		rec.Attachments = append(rec.Attachments, att)
	}
	if len(undecoded) != len(parts) {
		n.logger.Debug("raw attachment walk disagrees with decoded parts, sanitizer will skip them",
			zap.Int("decoded", len(parts)), zap.Int("raw", len(undecoded)))
	}
}

// parseAddressList splits a decoded address header on commas and parses each
// entry, falling back to the trimmed raw text when an entry does not parse.
func parseAddressList(header string) []core.Address {
	var out []core.Address
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(strings.ReplaceAll(part, "'", ""))
		if part == "" {
			continue
		}
		addr, err := mail.ParseAddress(part)
		if err != nil {
			out = append(out, core.Address{Email: part})
			continue
		}
		out = append(out, core.Address{Email: addr.Address, Name: addr.Name})
	}
	return out
}

// ExtractLinks collects the deduplicated set of links found in the html and
// plain bodies. Order is not significant; the result is sorted so callers
// get a stable slice.
func ExtractLinks(bodyHTML, bodyPlain string) []string {
	seen := make(map[string]struct{})
	for _, body := range []string{bodyHTML, bodyPlain} {
		for _, match := range core.URLPattern.FindAllStringSubmatch(body, -1) {
			seen[match[1]] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return nil
	}
	links := make([]string, 0, len(seen))
	for link := range seen {
		links = append(links, link)
	}
	sort.Strings(links)
	return links
}
