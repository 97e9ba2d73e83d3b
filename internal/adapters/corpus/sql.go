package corpus

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mailsift/mailsift/internal/core"
)

// SQLStore implements the corpus contract on top of database/sql. It is
// shared by the SQLite and MySQL backends; both speak ?-placeholder SQL.
// Fingerprint comparison happens in Go because no portable SQL function can
// score fuzzy hashes.
type SQLStore struct {
	db      *sql.DB
	compare core.CompareFunc
	logger  *zap.Logger

	// writeMu serializes multi-statement mutations so two concurrent
	// near-duplicates cannot both observe an empty corpus.
	writeMu sync.Mutex
}

func newSQLStore(db *sql.DB, compare core.CompareFunc, logger *zap.Logger) *SQLStore {
	return &SQLStore{db: db, compare: compare, logger: logger}
}

// Close releases the underlying connection pool.
func (s *SQLStore) Close() error { return s.db.Close() }

func (s *SQLStore) FindSimilar(ctx context.Context, fingerprint string, minScore int) ([]*core.CorpusRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, subject, body_plain, body_html, from_address, from_name,
		       fingerprint, length, has_attachment, state, rating, inserted_at
		FROM mails`)
	if err != nil {
		return nil, fmt.Errorf("corpus: querying mails: %w", err)
	}
	defer rows.Close()

	var out []*core.CorpusRecord
	for rows.Next() {
		rec, err := scanMail(rows)
		if err != nil {
			return nil, err
		}
		if s.compare(fingerprint, rec.Fingerprint) < minScore {
			continue
		}
		if rec.Recipients, err = s.recipients(ctx, rec.ID); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLStore) Passwords(ctx context.Context) ([]string, error) {
	return s.stringColumn(ctx, `SELECT password FROM credentials`)
}

func (s *SQLStore) Usernames(ctx context.Context) ([]string, error) {
	return s.stringColumn(ctx, `SELECT username FROM credentials`)
}

func (s *SQLStore) Link(ctx context.Context, link string) (*core.LinkStat, error) {
	stat := &core.LinkStat{Link: link}
	err := s.db.QueryRowContext(ctx,
		`SELECT counter, rating FROM links WHERE link = ?`, link).
		Scan(&stat.Counter, &stat.Rating)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("corpus: querying link: %w", err)
	}
	return stat, nil
}

func (s *SQLStore) RecipientSeenInTest(ctx context.Context, email string) (bool, error) {
	var seen bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM recipients r
			JOIN mails m ON m.id = r.mail_id
			WHERE r.email = ? AND m.state = ?)`,
		email, int(core.StateTest)).Scan(&seen)
	if err != nil {
		return false, fmt.Errorf("corpus: querying recipients: %w", err)
	}
	return seen, nil
}

func (s *SQLStore) InsertMail(ctx context.Context, rec *core.CorpusRecord) (int64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("corpus: beginning insert: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO mails (subject, body_plain, body_html, from_address, from_name,
		                   fingerprint, length, has_attachment, state, rating, inserted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Subject, rec.BodyPlain, rec.BodyHTML, rec.FromAddress, rec.FromName,
		rec.Fingerprint, rec.Length, rec.HasAttachment,
		int(rec.State), rec.Rating, rec.InsertedAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("corpus: inserting mail: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("corpus: fetching mail id: %w", err)
	}
	for _, to := range rec.Recipients {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO recipients (mail_id, email, name) VALUES (?, ?, ?)`,
			id, to.Email, to.Name); err != nil {
			return 0, fmt.Errorf("corpus: inserting recipient: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("corpus: committing insert: %w", err)
	}
	s.logger.Debug("mail inserted",
		zap.Int64("id", id),
		zap.String("state", rec.State.String()),
		zap.Int("rating", rec.Rating))
	return id, nil
}

func (s *SQLStore) PromoteToTest(ctx context.Context, id int64) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`UPDATE mails SET state = ? WHERE id = ? AND state = ?`,
		int(core.StateTest), id, int(core.StateMaybeTest))
	if err != nil {
		return fmt.Errorf("corpus: promoting mail %d: %w", id, err)
	}
	return nil
}

func (s *SQLStore) DeleteMaybeTest(ctx context.Context, id int64) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("corpus: beginning delete: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM recipients WHERE mail_id IN (SELECT id FROM mails WHERE id = ? AND state = ?)`,
		id, int(core.StateMaybeTest)); err != nil {
		return fmt.Errorf("corpus: deleting recipients of mail %d: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM mails WHERE id = ? AND state = ?`,
		id, int(core.StateMaybeTest)); err != nil {
		return fmt.Errorf("corpus: deleting mail %d: %w", id, err)
	}
	return tx.Commit()
}

func (s *SQLStore) IncrementLink(ctx context.Context, link string) (*core.LinkStat, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE links SET counter = counter + 1 WHERE link = ?`, link)
	if err != nil {
		return nil, fmt.Errorf("corpus: incrementing link: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("corpus: incrementing link: %w", err)
	}
	if affected == 0 {
		return nil, nil
	}
	return s.Link(ctx, link)
}

func (s *SQLStore) UpdateLinkRating(ctx context.Context, link string, rating int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE links SET rating = ? WHERE link = ?`, core.ClampRating(rating), link)
	if err != nil {
		return fmt.Errorf("corpus: updating link rating: %w", err)
	}
	return nil
}

func (s *SQLStore) InsertLink(ctx context.Context, stat *core.LinkStat) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM links WHERE link = ?)`, stat.Link).Scan(&exists); err != nil {
		return fmt.Errorf("corpus: checking link: %w", err)
	}
	if exists {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO links (link, counter, rating) VALUES (?, ?, ?)`,
		stat.Link, stat.Counter, core.ClampRating(stat.Rating))
	if err != nil {
		return fmt.Errorf("corpus: inserting link: %w", err)
	}
	return nil
}

func (s *SQLStore) SeedCredentials(ctx context.Context, creds []core.Credential) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	for _, cred := range creds {
		var exists bool
		if err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM credentials WHERE username = ? AND password = ?)`,
			cred.Username, cred.Password).Scan(&exists); err != nil {
			return fmt.Errorf("corpus: checking credential: %w", err)
		}
		if exists {
			continue
		}
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO credentials (username, password) VALUES (?, ?)`,
			cred.Username, cred.Password); err != nil {
			return fmt.Errorf("corpus: seeding credential: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) recipients(ctx context.Context, mailID int64) ([]core.Address, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT email, name FROM recipients WHERE mail_id = ?`, mailID)
	if err != nil {
		return nil, fmt.Errorf("corpus: querying recipients: %w", err)
	}
	defer rows.Close()

	var out []core.Address
	for rows.Next() {
		var addr core.Address
		if err := rows.Scan(&addr.Email, &addr.Name); err != nil {
			return nil, fmt.Errorf("corpus: scanning recipient: %w", err)
		}
		out = append(out, addr)
	}
	return out, rows.Err()
}

func (s *SQLStore) stringColumn(ctx context.Context, query string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("corpus: querying credentials: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return nil, fmt.Errorf("corpus: scanning credential: %w", err)
		}
		out = append(out, value)
	}
	return out, rows.Err()
}

func scanMail(rows *sql.Rows) (*core.CorpusRecord, error) {
	rec := &core.CorpusRecord{}
	var state int
	var insertedAt time.Time
	if err := rows.Scan(&rec.ID, &rec.Subject, &rec.BodyPlain, &rec.BodyHTML,
		&rec.FromAddress, &rec.FromName, &rec.Fingerprint, &rec.Length,
		&rec.HasAttachment, &state, &rec.Rating, &insertedAt); err != nil {
		return nil, fmt.Errorf("corpus: scanning mail: %w", err)
	}
	rec.State = core.ClassificationState(state)
	rec.InsertedAt = insertedAt
	return rec, nil
}
