package patient

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	intakeotel "github.com/clinicalintel/intake/internal/otel"
	"github.com/clinicalintel/intake/internal/pii"
)

var tracer = intakeotel.Tracer("github.com/clinicalintel/intake/internal/patient")

var (
	// ErrPatientNotFound is returned when no stored identity matches.
	ErrPatientNotFound = errors.New("patient not found")
	// ErrRecordNotFound is returned when a medical record id does not exist.
	ErrRecordNotFound = errors.New("medical record not found")
)

const schema = `
CREATE TABLE IF NOT EXISTS patients (
    patient_id TEXT PRIMARY KEY,
    name_hash TEXT NOT NULL,
    ssn_hash TEXT NOT NULL,
    dob_hash TEXT NOT NULL,
    name_phonetic_hash TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_patients_name ON patients(name_hash);
CREATE INDEX IF NOT EXISTS idx_patients_phonetic ON patients(name_phonetic_hash);

CREATE TABLE IF NOT EXISTS medical_records (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    patient_id TEXT NOT NULL,
    record_type TEXT NOT NULL,
    content TEXT NOT NULL,
    date_recorded TIMESTAMP NOT NULL,
    metadata TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_records_patient ON medical_records(patient_id, date_recorded);

CREATE TABLE IF NOT EXISTS conversations (
    id TEXT PRIMARY KEY,
    patient_id TEXT NOT NULL DEFAULT '',
    session_id TEXT NOT NULL DEFAULT '',
    transcript TEXT NOT NULL,
    categories TEXT NOT NULL DEFAULT '[]',
    summary TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_conversations_patient ON conversations(patient_id, created_at);
CREATE INDEX IF NOT EXISTS idx_conversations_created ON conversations(created_at);
`

// Store persists patients, medical records and redacted conversations.
type Store struct {
	db *sql.DB
}

// NewStore opens (creating if needed) the SQLite database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening patient database: %w", err)
	}
	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating patient schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// AddPatient stores the hashed identity and returns its patient id. Adding
// the same identity twice is idempotent.
func (s *Store) AddPatient(ctx context.Context, id Identity) (string, error) {
	ctx, span := tracer.Start(ctx, "patient.add")
	defer span.End()

	id = id.Normalized()
	if id.Name == "" || id.SSN == "" || id.DOB == "" {
		return "", fmt.Errorf("adding patient: name, ssn and dob are required")
	}
	h := hashIdentity(id)
	patientID := ID(id)

	err := withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO patients (patient_id, name_hash, ssn_hash, dob_hash, name_phonetic_hash, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT(patient_id) DO UPDATE SET
			     name_hash = excluded.name_hash,
			     ssn_hash = excluded.ssn_hash,
			     dob_hash = excluded.dob_hash,
			     name_phonetic_hash = excluded.name_phonetic_hash`,
			patientID, h.name, h.ssn, h.dob, h.phonetic, time.Now().UTC())
		return err
	})
	if err != nil {
		return "", fmt.Errorf("adding patient: %w", err)
	}
	span.SetAttributes(attribute.String("patient.id", patientID))
	return patientID, nil
}

// Match describes which identity values a FindPatient hit agreed on.
type Match string

// Match levels, strongest first.
const (
	MatchNameSSNDOB Match = "name_ssn_dob"
	MatchNameSSN    Match = "name_ssn"
	MatchNameDOB    Match = "name_dob"
	MatchName       Match = "name"
	MatchPhonetic   Match = "phonetic_name"
)

type lookup struct {
	match Match
	query string
	args  []interface{}
}

// FindPatient resolves an identity to a stored patient id, trying the most
// specific combination first: name+ssn+dob, name+ssn, name+dob, name, then
// a phonetic match on the name. A name is required for any match.
func (s *Store) FindPatient(ctx context.Context, id Identity) (string, Match, error) {
	ctx, span := tracer.Start(ctx, "patient.find")
	defer span.End()

	id = id.Normalized()
	h := hashIdentity(id)

	var lookups []lookup
	if h.name != "" && h.ssn != "" && h.dob != "" {
		lookups = append(lookups, lookup{MatchNameSSNDOB,
			`name_hash = ? AND ssn_hash = ? AND dob_hash = ?`, []interface{}{h.name, h.ssn, h.dob}})
	}
	if h.name != "" && h.ssn != "" {
		lookups = append(lookups, lookup{MatchNameSSN,
			`name_hash = ? AND ssn_hash = ?`, []interface{}{h.name, h.ssn}})
	}
	if h.name != "" && h.dob != "" {
		lookups = append(lookups, lookup{MatchNameDOB,
			`name_hash = ? AND dob_hash = ?`, []interface{}{h.name, h.dob}})
	}
	if h.name != "" {
		lookups = append(lookups, lookup{MatchName, `name_hash = ?`, []interface{}{h.name}})
	}
	if h.phonetic != "" {
		lookups = append(lookups, lookup{MatchPhonetic, `name_phonetic_hash = ?`, []interface{}{h.phonetic}})
	}

	for _, l := range lookups {
		var patientID string
		err := s.db.QueryRowContext(ctx,
			`SELECT patient_id FROM patients WHERE `+l.query+` ORDER BY created_at LIMIT 1`,
			l.args...).Scan(&patientID)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return "", "", fmt.Errorf("finding patient: %w", err)
		}
		lookupsTotal.Add(ctx, 1, metricAttrs(attribute.String("match", string(l.match))))
		span.SetAttributes(
			attribute.String("patient.id", patientID),
			attribute.String("patient.match", string(l.match)),
		)
		return patientID, l.match, nil
	}
	lookupsTotal.Add(ctx, 1, metricAttrs(attribute.String("match", "none")))
	return "", "", ErrPatientNotFound
}

// Exists reports whether patientID is stored.
func (s *Store) Exists(ctx context.Context, patientID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM patients WHERE patient_id = ?`, patientID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking patient: %w", err)
	}
	return n > 0, nil
}

// CountPatients returns the number of stored patients.
func (s *Store) CountPatients(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM patients`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting patients: %w", err)
	}
	return n, nil
}

// Record is one medical record of a patient.
type Record struct {
	ID        int64             `json:"id"`
	PatientID string            `json:"patient_id"`
	Type      string            `json:"type"`
	Category  string            `json:"category"`
	Content   string            `json:"content"`
	Date      time.Time         `json:"date"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// AddRecord stores a medical record unless the patient already has one with
// the same type and content. created is false when the existing record is
// returned instead.
func (s *Store) AddRecord(ctx context.Context, patientID, recordType, content string, metadata map[string]string) (rec *Record, created bool, err error) {
	ctx, span := tracer.Start(ctx, "patient.add_record",
		trace.WithAttributes(
			attribute.String("patient.id", patientID),
			attribute.String("record.type", recordType),
		))
	defer span.End()

	recordType = strings.TrimSpace(recordType)
	content = strings.TrimSpace(content)
	if patientID == "" || recordType == "" || content == "" {
		return nil, false, fmt.Errorf("adding record: patient id, type and content are required")
	}

	existing, err := s.findRecord(ctx, patientID, recordType, content)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		span.SetAttributes(attribute.Bool("record.duplicate", true))
		return existing, false, nil
	}

	metaJSON := []byte("{}")
	if len(metadata) > 0 {
		metaJSON, _ = json.Marshal(metadata)
	}
	rec = &Record{
		PatientID: patientID,
		Type:      recordType,
		Category:  CategorizeRecord(recordType),
		Content:   content,
		Date:      time.Now().UTC(),
		Metadata:  metadata,
	}
	err = withRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO medical_records (patient_id, record_type, content, date_recorded, metadata)
			 VALUES (?, ?, ?, ?, ?)`,
			rec.PatientID, rec.Type, rec.Content, rec.Date, string(metaJSON))
		if err != nil {
			return err
		}
		rec.ID, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return nil, false, fmt.Errorf("adding record: %w", err)
	}
	span.SetAttributes(attribute.Int64("record.id", rec.ID))
	return rec, true, nil
}

func (s *Store) findRecord(ctx context.Context, patientID, recordType, content string) (*Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, patient_id, record_type, content, date_recorded, metadata
		 FROM medical_records WHERE patient_id = ? AND record_type = ? AND content = ?
		 ORDER BY id LIMIT 1`, patientID, recordType, content)
	if err != nil {
		return nil, fmt.Errorf("checking duplicate record: %w", err)
	}
	recs, err := scanRecords(rows)
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return &recs[0], nil
}

// ListRecords returns the patient's records, newest first.
func (s *Store) ListRecords(ctx context.Context, patientID string) ([]Record, error) {
	ctx, span := tracer.Start(ctx, "patient.list_records",
		trace.WithAttributes(attribute.String("patient.id", patientID)))
	defer span.End()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, patient_id, record_type, content, date_recorded, metadata
		 FROM medical_records WHERE patient_id = ?
		 ORDER BY date_recorded DESC, id DESC`, patientID)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	recs, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("record.count", len(recs)))
	return recs, nil
}

// DeleteRecord removes a record by id.
func (s *Store) DeleteRecord(ctx context.Context, id int64) error {
	ctx, span := tracer.Start(ctx, "patient.delete_record",
		trace.WithAttributes(attribute.Int64("record.id", id)))
	defer span.End()

	res, err := s.db.ExecContext(ctx, `DELETE FROM medical_records WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting record %d: %w", id, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// DedupRecords deletes records that repeat an earlier record's patient, type
// and content, keeping the one with the lowest id.
func (s *Store) DedupRecords(ctx context.Context) (int64, error) {
	ctx, span := tracer.Start(ctx, "patient.dedup_records")
	defer span.End()

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM medical_records WHERE id NOT IN (
		     SELECT MIN(id) FROM medical_records GROUP BY patient_id, record_type, content
		 )`)
	if err != nil {
		return 0, fmt.Errorf("deduplicating records: %w", err)
	}
	n, _ := res.RowsAffected()
	span.SetAttributes(attribute.Int64("record.removed", n))
	return n, nil
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	defer rows.Close()
	var out []Record
	for rows.Next() {
		var r Record
		var meta string
		if err := rows.Scan(&r.ID, &r.PatientID, &r.Type, &r.Content, &r.Date, &meta); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		r.Category = CategorizeRecord(r.Type)
		if meta != "" && meta != "{}" {
			_ = json.Unmarshal([]byte(meta), &r.Metadata)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Conversation is a stored, already-redacted transcript.
type Conversation struct {
	ID         string          `json:"id"`
	PatientID  string          `json:"patient_id,omitempty"`
	SessionID  string          `json:"session_id,omitempty"`
	Transcript string          `json:"transcript"`
	Categories pii.CategorySet `json:"categories_found"`
	Summary    string          `json:"summary,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// AddConversation stores the redacted text of out. patientID may be empty
// when the speaker could not be identified.
func (s *Store) AddConversation(ctx context.Context, patientID, sessionID string, out pii.Outcome) (*Conversation, error) {
	ctx, span := tracer.Start(ctx, "patient.add_conversation",
		trace.WithAttributes(attribute.String("patient.id", patientID)))
	defer span.End()

	cats := out.Found
	if cats == nil {
		cats = pii.NewCategorySet()
	}
	catJSON, err := json.Marshal(cats)
	if err != nil {
		return nil, fmt.Errorf("encoding categories: %w", err)
	}
	c := &Conversation{
		ID:         "conv_" + uuid.New().String()[:12],
		PatientID:  patientID,
		SessionID:  sessionID,
		Transcript: out.Text,
		Categories: cats,
		CreatedAt:  time.Now().UTC(),
	}
	err = withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO conversations (id, patient_id, session_id, transcript, categories, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			c.ID, c.PatientID, c.SessionID, c.Transcript, string(catJSON), c.CreatedAt)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("adding conversation: %w", err)
	}
	span.SetAttributes(attribute.String("conversation.id", c.ID))
	return c, nil
}

// ListConversations returns the patient's conversations, newest first. A
// limit of zero or less returns all of them.
func (s *Store) ListConversations(ctx context.Context, patientID string, limit int) ([]Conversation, error) {
	ctx, span := tracer.Start(ctx, "patient.list_conversations",
		trace.WithAttributes(attribute.String("patient.id", patientID)))
	defer span.End()

	query := `SELECT id, patient_id, session_id, transcript, categories, summary, created_at
	          FROM conversations WHERE patient_id = ? ORDER BY created_at DESC, rowid DESC`
	args := []interface{}{patientID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		var c Conversation
		var cats string
		if err := rows.Scan(&c.ID, &c.PatientID, &c.SessionID, &c.Transcript, &cats, &c.Summary, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		if err := json.Unmarshal([]byte(cats), &c.Categories); err != nil {
			c.Categories = pii.NewCategorySet()
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// PurgeConversations deletes conversations created before cutoff.
func (s *Store) PurgeConversations(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, span := tracer.Start(ctx, "patient.purge_conversations",
		trace.WithAttributes(attribute.String("cutoff", cutoff.Format(time.RFC3339))))
	defer span.End()

	res, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("purging conversations: %w", err)
	}
	n, _ := res.RowsAffected()
	span.SetAttributes(attribute.Int64("conversation.purged", n))
	return n, nil
}

// withRetry runs fn, retrying while SQLite reports the database busy.
func withRetry(ctx context.Context, fn func() error) error {
	const maxRetries = 10
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepRetry(ctx, attempt); err != nil {
				return err
			}
		}
		lastErr = fn()
		if lastErr == nil || !isSQLiteLocked(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

func sleepRetry(ctx context.Context, attempt int) error {
	backoff := time.Duration(attempt*attempt) * 20 * time.Millisecond
	if backoff > 250*time.Millisecond {
		backoff = 250 * time.Millisecond
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("context cancelled: %w", ctx.Err())
	case <-time.After(backoff):
		return nil
	}
}

func isSQLiteLocked(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}
