package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/banshee-data/voxel.report/internal/voxel/l5identity"
	"github.com/banshee-data/voxel.report/internal/voxel/pipeline"
)

// ErrNoSession is returned when frames are recorded before StartSession.
var ErrNoSession = errors.New("no active session")

// Session is one reconstruction run over a camera sequence.
type Session struct {
	SessionID       string          `json:"session_id"`
	StartedAtNs     int64           `json:"started_at_ns"`
	ConfigJSON      json.RawMessage `json:"config_json,omitempty"`
	CameraCount     int             `json:"camera_count"`
	IdentityCount   int             `json:"identity_count"`
	FramesProcessed int             `json:"frames_processed"`
	UpdatedAtNs     *int64          `json:"updated_at_ns,omitempty"`
}

// TrailPoint is one identity's floor position on one frame.
type TrailPoint struct {
	Identity   int
	FrameIndex int
	Timestamp  time.Time
	Position   r2.Vec
	Distance   float64
}

// TrailStore persists sessions, reference histograms and trails. It
// implements pipeline.FrameSink for the session started last.
type TrailStore struct {
	db        *sql.DB
	sessionID string
}

var _ pipeline.FrameSink = (*TrailStore)(nil)

// NewTrailStore creates a new TrailStore.
func NewTrailStore(db *sql.DB) *TrailStore {
	return &TrailStore{db: db}
}

// SessionID returns the active session, or "" before StartSession.
func (s *TrailStore) SessionID() string { return s.sessionID }

// StartSession inserts a new session and makes it the target of
// RecordFrame. cfg is stored as JSON.
func (s *TrailStore) StartSession(ctx context.Context, cfg any, cameraCount, identityCount int, startedAt time.Time) (string, error) {
	var cfgJSON sql.NullString
	if cfg != nil {
		data, err := json.Marshal(cfg)
		if err != nil {
			return "", fmt.Errorf("marshal session config: %w", err)
		}
		cfgJSON = sql.NullString{String: string(data), Valid: true}
	}

	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO voxel_sessions (
			session_id, started_at_ns, config_json, camera_count, identity_count
		) VALUES (?, ?, ?, ?, ?)
	`, id, startedAt.UnixNano(), cfgJSON, cameraCount, identityCount)
	if err != nil {
		return "", fmt.Errorf("insert session: %w", err)
	}
	s.sessionID = id
	return id, nil
}

// SaveReferences stores one reference histogram per identity.
func (s *TrailStore) SaveReferences(ctx context.Context, sessionID string, refs []l5identity.Histogram) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO voxel_reference_histograms (
			session_id, identity,
			bin_black, bin_grey, bin_grey_red, bin_grey_green, bin_grey_blue, bin_white,
			bin_red, bin_yellow, bin_green, bin_cyan, bin_blue, bin_magenta
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare reference insert: %w", err)
	}
	defer stmt.Close()

	for id, h := range refs {
		args := make([]any, 0, 2+l5identity.NumBins)
		args = append(args, sessionID, id)
		for _, n := range h {
			args = append(args, n)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert reference %d: %w", id, err)
		}
	}
	return tx.Commit()
}

// LoadReferences returns a session's reference histograms indexed by
// identity.
func (s *TrailStore) LoadReferences(ctx context.Context, sessionID string) ([]l5identity.Histogram, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT identity,
		       bin_black, bin_grey, bin_grey_red, bin_grey_green, bin_grey_blue, bin_white,
		       bin_red, bin_yellow, bin_green, bin_cyan, bin_blue, bin_magenta
		FROM voxel_reference_histograms
		WHERE session_id = ?
		ORDER BY identity
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query references: %w", err)
	}
	defer rows.Close()

	var refs []l5identity.Histogram
	for rows.Next() {
		var id int
		var h l5identity.Histogram
		dest := []any{&id}
		for i := range h {
			dest = append(dest, &h[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan reference: %w", err)
		}
		if id != len(refs) {
			return nil, fmt.Errorf("reference identities not contiguous at %d", id)
		}
		refs = append(refs, h)
	}
	return refs, rows.Err()
}

// RecordFrame implements pipeline.FrameSink. It stores references on the
// frame that captured them and one trail point per identity on every
// tracked frame.
func (s *TrailStore) RecordFrame(ctx context.Context, res *pipeline.FrameResult) error {
	if s.sessionID == "" {
		return ErrNoSession
	}
	if res.References != nil {
		if err := s.SaveReferences(ctx, s.sessionID, res.References); err != nil {
			return err
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if res.Assignment != nil && !res.Degenerate {
		for _, p := range TrailPoints(res) {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO voxel_trail_points (
					session_id, identity, frame_index, ts_unix_ns, x, y, distance
				) VALUES (?, ?, ?, ?, ?, ?, ?)
			`, s.sessionID, p.Identity, p.FrameIndex, p.Timestamp.UnixNano(), p.Position.X, p.Position.Y, p.Distance)
			if err != nil {
				return fmt.Errorf("insert trail point: %w", err)
			}
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE voxel_sessions
		SET frames_processed = frames_processed + 1, updated_at_ns = ?
		WHERE session_id = ?
	`, res.Timestamp.UnixNano(), s.sessionID)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return tx.Commit()
}

// TrailPoints flattens a tracked frame into one point per identity. The
// distance is the chi-squared distance between the identity's cluster
// and its reference.
func TrailPoints(res *pipeline.FrameResult) []TrailPoint {
	if res.Assignment == nil {
		return nil
	}
	points := make([]TrailPoint, len(res.Centers))
	for c, id := range res.Assignment.Identity {
		points[id] = TrailPoint{
			Identity:   id,
			FrameIndex: res.Index,
			Timestamp:  res.Timestamp,
			Position:   res.Centers[id],
			Distance:   res.Assignment.Distances[c][id],
		}
	}
	return points
}

// LoadTrails returns every identity's trail in frame order, indexed by
// identity.
func (s *TrailStore) LoadTrails(ctx context.Context, sessionID string) ([][]TrailPoint, error) {
	var k int
	err := s.db.QueryRowContext(ctx,
		`SELECT identity_count FROM voxel_sessions WHERE session_id = ?`, sessionID).Scan(&k)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session not found: %s", sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT identity, frame_index, ts_unix_ns, x, y, distance
		FROM voxel_trail_points
		WHERE session_id = ?
		ORDER BY identity, frame_index
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query trail points: %w", err)
	}
	defer rows.Close()

	trails := make([][]TrailPoint, k)
	for rows.Next() {
		var p TrailPoint
		var ts int64
		if err := rows.Scan(&p.Identity, &p.FrameIndex, &ts, &p.Position.X, &p.Position.Y, &p.Distance); err != nil {
			return nil, fmt.Errorf("scan trail point: %w", err)
		}
		if p.Identity < 0 || p.Identity >= k {
			return nil, fmt.Errorf("trail point identity %d out of range [0, %d)", p.Identity, k)
		}
		p.Timestamp = time.Unix(0, ts)
		trails[p.Identity] = append(trails[p.Identity], p)
	}
	return trails, rows.Err()
}

// ListSessions returns every session, most recent first.
func (s *TrailStore) ListSessions(ctx context.Context) ([]*Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, started_at_ns, config_json, camera_count, identity_count,
		       frames_processed, updated_at_ns
		FROM voxel_sessions
		ORDER BY started_at_ns DESC, session_id
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		var sess Session
		var cfgJSON sql.NullString
		var updatedAtNs sql.NullInt64
		if err := rows.Scan(&sess.SessionID, &sess.StartedAtNs, &cfgJSON, &sess.CameraCount,
			&sess.IdentityCount, &sess.FramesProcessed, &updatedAtNs); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if cfgJSON.Valid && cfgJSON.String != "" {
			sess.ConfigJSON = json.RawMessage(cfgJSON.String)
		}
		if updatedAtNs.Valid {
			v := updatedAtNs.Int64
			sess.UpdatedAtNs = &v
		}
		sessions = append(sessions, &sess)
	}
	return sessions, rows.Err()
}
