package core

import (
	"time"
)

// ClassificationState tracks how confident the corpus is that a message is an
// operator-originated probe. Transitions move forward only
// (Unknown -> MaybeTest -> Test); MaybeTest records may additionally be
// deleted when a near-duplicate supersedes them.
type ClassificationState int

const (
	StateUnknown ClassificationState = iota
	StateMaybeTest
	StateTest
)

func (s ClassificationState) String() string {
	switch s {
	case StateMaybeTest:
		return "maybe_test"
	case StateTest:
		return "test"
	default:
		return "unknown"
	}
}

// Address is a parsed mailbox with an optional display name.
type Address struct {
	Email string
	Name  string
}

// Attachment keeps both the transfer-decoded content and the bytes exactly as
// they appear in the raw message. The undecoded form is what the sanitizers
// splice when mangling an outgoing message; it may be nil when the raw part
// could not be located.
type Attachment struct {
	Filename  string
	Content   []byte
	Undecoded []byte
}

// MailRecord is the canonical form of one inbound message. It is produced
// once by the normalizer and treated as immutable by the rest of the
// pipeline.
type MailRecord struct {
	Subject     string
	BodyPlain   string
	BodyHTML    string
	From        Address
	ReplyTo     string // empty when absent or not address-shaped
	Recipients  []Address
	Attachments []Attachment
	Links       []string
	Fingerprint string
	Length      int
	ArrivalTime time.Time
}

// HasReplyTo reports whether the message carried a usable Reply-To address.
func (m *MailRecord) HasReplyTo() bool {
	return m.ReplyTo != ""
}

// HasAttachment reports whether the message carried at least one attachment.
func (m *MailRecord) HasAttachment() bool {
	return len(m.Attachments) > 0
}

// CorpusRecord is a persisted mail record together with its classification.
type CorpusRecord struct {
	ID            int64
	Subject       string
	BodyPlain     string
	BodyHTML      string
	FromAddress   string
	FromName      string
	Fingerprint   string
	Length        int
	HasAttachment bool
	Recipients    []Address
	State         ClassificationState
	Rating        int
	InsertedAt    time.Time
}

// NewCorpusRecord flattens a mail record for persistence.
func NewCorpusRecord(rec *MailRecord, state ClassificationState, rating int) *CorpusRecord {
	recipients := make([]Address, len(rec.Recipients))
	copy(recipients, rec.Recipients)
	return &CorpusRecord{
		Subject:       rec.Subject,
		BodyPlain:     rec.BodyPlain,
		BodyHTML:      rec.BodyHTML,
		FromAddress:   rec.From.Email,
		FromName:      rec.From.Name,
		Fingerprint:   rec.Fingerprint,
		Length:        rec.Length,
		HasAttachment: rec.HasAttachment(),
		Recipients:    recipients,
		State:         state,
		Rating:        clampRating(rating),
		InsertedAt:    time.Now(),
	}
}

// LinkStat is the reputation row for one link seen in corpus mail.
type LinkStat struct {
	Link    string
	Counter int
	Rating  int
}

// Credential is one leaked username/password pair the honeypot exposed.
type Credential struct {
	Username string
	Password string
}

// Checkpoint identifies a countable scoring event. The ids are stable and
// persisted; they match statistics rows 1 through 23.
type Checkpoint int

const (
	CheckpointAttachmentPenalty Checkpoint = iota + 1
	CheckpointRecipientInTest
	CheckpointSimilarInMaybeTest
	CheckpointSimilarInTest
	CheckpointRelayed
	CheckpointPasswordInBodyPlain
	CheckpointPasswordInSubject
	CheckpointPasswordInBodyHTML
	CheckpointTestWordInBodyPlain
	CheckpointTestWordInSubject
	CheckpointTestWordInBodyHTML
	CheckpointLinkPenalty
	CheckpointUsernameInBodyHTML
	CheckpointUsernameInSubject
	CheckpointUsernameInBodyPlain
	CheckpointUsernameNoSubject
	CheckpointArrivalTimeWindow
	CheckpointHoneypotAddrInBodyPlain
	CheckpointHoneypotAddrInSubject
	CheckpointHoneypotAddrInBodyHTML
	CheckpointManyRealWords
	CheckpointFewRealWords
	CheckpointTopicRepetition
)

var checkpointNames = map[Checkpoint]string{
	CheckpointAttachmentPenalty:       "attachment_penalty",
	CheckpointRecipientInTest:         "recipient_in_test",
	CheckpointSimilarInMaybeTest:      "similar_in_maybe_test",
	CheckpointSimilarInTest:           "similar_in_test",
	CheckpointRelayed:                 "relayed",
	CheckpointPasswordInBodyPlain:     "password_in_body_plain",
	CheckpointPasswordInSubject:       "password_in_subject",
	CheckpointPasswordInBodyHTML:      "password_in_body_html",
	CheckpointTestWordInBodyPlain:     "test_word_in_body_plain",
	CheckpointTestWordInSubject:       "test_word_in_subject",
	CheckpointTestWordInBodyHTML:      "test_word_in_body_html",
	CheckpointLinkPenalty:             "link_penalty",
	CheckpointUsernameInBodyHTML:      "username_in_body_html",
	CheckpointUsernameInSubject:       "username_in_subject",
	CheckpointUsernameInBodyPlain:     "username_in_body_plain",
	CheckpointUsernameNoSubject:       "username_no_subject",
	CheckpointArrivalTimeWindow:       "arrival_time_window",
	CheckpointHoneypotAddrInBodyPlain: "honeypot_addr_in_body_plain",
	CheckpointHoneypotAddrInSubject:   "honeypot_addr_in_subject",
	CheckpointHoneypotAddrInBodyHTML:  "honeypot_addr_in_body_html",
	CheckpointManyRealWords:           "many_real_words",
	CheckpointFewRealWords:            "few_real_words",
	CheckpointTopicRepetition:         "topic_repetition",
}

func (c Checkpoint) String() string {
	if name, ok := checkpointNames[c]; ok {
		return name
	}
	return "unknown_checkpoint"
}

// clampRating bounds a rating to [0,100]. Applied at every exit point of the
// scoring engine and resolver; intermediate values may run past the bounds.
func clampRating(rating int) int {
	if rating > 100 {
		return 100
	}
	if rating < 0 {
		return 0
	}
	return rating
}

// ClampRating is the exported form for callers outside this package.
func ClampRating(rating int) int {
	return clampRating(rating)
}
