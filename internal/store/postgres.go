package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bizmatters/mission-dispatch/internal/models"
)

// PostgresStore is the production Store backed by a pgx connection pool
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore wraps an open pool
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const missionColumns = `id, company_id, agent_id, title, description, location_label,
	latitude, longitude, last_latitude, last_longitude, status,
	start_time, end_time, created_at, updated_at`

func scanMission(row pgx.Row) (*models.Mission, error) {
	var m models.Mission
	var status string
	err := row.Scan(
		&m.ID, &m.CompanyID, &m.AgentID, &m.Title, &m.Description, &m.LocationLabel,
		&m.Latitude, &m.Longitude, &m.LastLatitude, &m.LastLongitude, &status,
		&m.StartTime, &m.EndTime, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.Status = models.MissionStatus(status)
	return &m, nil
}

func (s *PostgresStore) CreateMission(ctx context.Context, in models.CreateMissionInput, now time.Time) (*models.Mission, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO missions (id, company_id, title, description, location_label,
			latitude, longitude, status, start_time, end_time, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'PENDING', $8, $9, $10, $10)
		RETURNING `+missionColumns,
		uuid.New().String(), in.CompanyID, in.Title, in.Description, in.LocationLabel,
		in.Latitude, in.Longitude, in.StartTime, in.EndTime, now)

	m, err := scanMission(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create mission: %w", err)
	}
	return m, nil
}

func (s *PostgresStore) GetMission(ctx context.Context, missionID string) (*models.Mission, error) {
	m, err := scanMission(s.pool.QueryRow(ctx,
		`SELECT `+missionColumns+` FROM missions WHERE id = $1`, missionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("mission %s: %w", missionID, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get mission: %w", err)
	}
	return m, nil
}

// ClaimMission serializes claims per agent with a transaction-scoped
// advisory lock, so two claims by the same agent on different missions
// cannot both pass the overlap check. Claims by different agents on the
// same mission are arbitrated by the conditional UPDATE.
func (s *PostgresStore) ClaimMission(ctx context.Context, req ClaimRequest) (*TransitionResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, req.AgentID); err != nil {
		return nil, fmt.Errorf("failed to lock agent schedule: %w", err)
	}

	previous, err := scanMission(tx.QueryRow(ctx,
		`SELECT `+missionColumns+` FROM missions WHERE id = $1`, req.MissionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("mission %s: %w", req.MissionID, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get mission: %w", err)
	}
	if previous.Status != models.MissionStatusPending {
		return nil, fmt.Errorf("mission %s is %s: %w", req.MissionID, previous.Status, models.ErrAlreadyClaimed)
	}

	if conflict, err := findOverlap(ctx, tx, req.AgentID, req.MissionID, previous.StartTime, previous.EndTime); err != nil {
		return nil, err
	} else if conflict != nil {
		return nil, conflict
	}

	updated, err := scanMission(tx.QueryRow(ctx, `
		UPDATE missions
		SET status = 'ACCEPTED', agent_id = $2, updated_at = $3
		WHERE id = $1 AND status = 'PENDING'
		RETURNING `+missionColumns,
		req.MissionID, req.AgentID, req.Now))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("mission %s: %w", req.MissionID, models.ErrAlreadyClaimed)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim mission: %w", err)
	}

	entry, err := insertAudit(ctx, tx, models.AuditEntry{
		MissionID:      req.MissionID,
		ActorUserID:    req.ActorUserID,
		PreviousStatus: previous.Status,
		NewStatus:      updated.Status,
		Note:           req.Note,
		CreatedAt:      req.Now,
	})
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &TransitionResult{Previous: previous, Mission: updated, Audit: entry}, nil
}

func findOverlap(ctx context.Context, tx pgx.Tx, agentID, excludeID string, start, end time.Time) (*models.ScheduleConflictError, error) {
	var conflict models.ScheduleConflictError
	err := tx.QueryRow(ctx, `
		SELECT id, title, start_time, end_time
		FROM missions
		WHERE agent_id = $1
		  AND id <> $2
		  AND status = ANY($3)
		  AND start_time < $5
		  AND end_time > $4
		ORDER BY start_time
		LIMIT 1
	`, agentID, excludeID, statusStrings(models.BookingActiveStatuses), start, end).Scan(
		&conflict.MissionID, &conflict.Title, &conflict.Window.Start, &conflict.Window.End)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check schedule overlap: %w", err)
	}
	return &conflict, nil
}

func (s *PostgresStore) ChangeStatus(ctx context.Context, req StatusChange) (*TransitionResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Use SELECT FOR UPDATE to lock the row
	previous, err := scanMission(tx.QueryRow(ctx,
		`SELECT `+missionColumns+` FROM missions WHERE id = $1 FOR UPDATE`, req.MissionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("mission %s: %w", req.MissionID, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock mission: %w", err)
	}

	if req.Check != nil {
		if err := req.Check(previous.Clone()); err != nil {
			return nil, err
		}
	}

	var lat, lon *float64
	if req.Latitude != nil && req.Longitude != nil {
		lat, lon = req.Latitude, req.Longitude
	}

	updated, err := scanMission(tx.QueryRow(ctx, `
		UPDATE missions
		SET status = $2,
		    agent_id = CASE WHEN $3::boolean THEN NULL ELSE agent_id END,
		    last_latitude = COALESCE($4::double precision, last_latitude),
		    last_longitude = COALESCE($5::double precision, last_longitude),
		    updated_at = $6
		WHERE id = $1
		RETURNING `+missionColumns,
		req.MissionID, string(req.NewStatus), req.ReleaseAgent, lat, lon, req.Now))
	if err != nil {
		return nil, fmt.Errorf("failed to update mission status: %w", err)
	}

	entry, err := insertAudit(ctx, tx, models.AuditEntry{
		MissionID:      req.MissionID,
		ActorUserID:    req.ActorUserID,
		PreviousStatus: previous.Status,
		NewStatus:      updated.Status,
		Latitude:       lat,
		Longitude:      lon,
		Note:           req.Note,
		CreatedAt:      req.Now,
	})
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &TransitionResult{Previous: previous, Mission: updated, Audit: entry}, nil
}

func insertAudit(ctx context.Context, tx pgx.Tx, entry models.AuditEntry) (models.AuditEntry, error) {
	entry.ID = uuid.New().String()
	err := tx.QueryRow(ctx, `
		INSERT INTO mission_audit_log (id, mission_id, actor_user_id, previous_status,
			new_status, latitude, longitude, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING seq
	`, entry.ID, entry.MissionID, entry.ActorUserID, string(entry.PreviousStatus),
		string(entry.NewStatus), entry.Latitude, entry.Longitude, entry.Note, entry.CreatedAt).Scan(&entry.Seq)
	if err != nil {
		return entry, fmt.Errorf("failed to create audit entry: %w", err)
	}
	return entry, nil
}

func (s *PostgresStore) ListAuditEntries(ctx context.Context, missionID string) ([]models.AuditEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, seq, mission_id, actor_user_id, previous_status, new_status,
		       latitude, longitude, note, created_at
		FROM mission_audit_log
		WHERE mission_id = $1
		ORDER BY seq
	`, missionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		var prev, next string
		if err := rows.Scan(&e.ID, &e.Seq, &e.MissionID, &e.ActorUserID, &prev, &next,
			&e.Latitude, &e.Longitude, &e.Note, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.PreviousStatus = models.MissionStatus(prev)
		e.NewStatus = models.MissionStatus(next)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

const notificationColumns = `id, mission_id, agent_id, status, created_at, updated_at`

func scanNotification(row pgx.Row, extra ...any) (*models.Notification, error) {
	var n models.Notification
	var status string
	dest := append([]any{&n.ID, &n.MissionID, &n.AgentID, &status, &n.CreatedAt, &n.UpdatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	n.Status = models.NotificationStatus(status)
	return &n, nil
}

// UpsertNotification relies on the (mission_id, agent_id) unique key. The
// no-op DO UPDATE lets RETURNING yield the existing row; xmax = 0 only
// for a freshly inserted tuple.
func (s *PostgresStore) UpsertNotification(ctx context.Context, missionID, agentID string, now time.Time) (*models.Notification, bool, error) {
	var created bool
	n, err := scanNotification(s.pool.QueryRow(ctx, `
		INSERT INTO mission_notifications (id, mission_id, agent_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, 'SENT', $4, $4)
		ON CONFLICT (mission_id, agent_id)
		DO UPDATE SET updated_at = mission_notifications.updated_at
		RETURNING `+notificationColumns+`, (xmax = 0)`,
		uuid.New().String(), missionID, agentID, now), &created)
	if err != nil {
		return nil, false, fmt.Errorf("failed to upsert notification: %w", err)
	}
	return n, created, nil
}

func (s *PostgresStore) SetNotificationStatus(ctx context.Context, missionID, agentID string, status models.NotificationStatus, now time.Time) (*models.Notification, error) {
	n, err := scanNotification(s.pool.QueryRow(ctx, `
		INSERT INTO mission_notifications (id, mission_id, agent_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (mission_id, agent_id)
		DO UPDATE SET status = EXCLUDED.status, updated_at = EXCLUDED.updated_at
		RETURNING `+notificationColumns,
		uuid.New().String(), missionID, agentID, string(status), now))
	if err != nil {
		return nil, fmt.Errorf("failed to set notification status: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) ListNotificationAgents(ctx context.Context, missionID string, status models.NotificationStatus) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT agent_id FROM mission_notifications
		WHERE mission_id = $1 AND status = $2
		ORDER BY agent_id
	`, missionID, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var agents []string
	for rows.Next() {
		var agentID string
		if err := rows.Scan(&agentID); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		agents = append(agents, agentID)
	}
	return agents, rows.Err()
}

func (s *PostgresStore) ListAgentProposals(ctx context.Context, agentID string) ([]models.AgentProposal, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT n.id, n.mission_id, n.agent_id, n.status, n.created_at, n.updated_at,
		       m.id, m.company_id, m.agent_id, m.title, m.description, m.location_label,
		       m.latitude, m.longitude, m.last_latitude, m.last_longitude, m.status,
		       m.start_time, m.end_time, m.created_at, m.updated_at
		FROM mission_notifications n
		JOIN missions m ON m.id = n.mission_id
		WHERE n.agent_id = $1 AND n.status = 'SENT' AND m.status = 'PENDING'
		ORDER BY n.created_at DESC
	`, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query proposals: %w", err)
	}
	defer rows.Close()

	var proposals []models.AgentProposal
	for rows.Next() {
		var p models.AgentProposal
		var nStatus, mStatus string
		m := &p.Mission
		if err := rows.Scan(
			&p.Notification.ID, &p.Notification.MissionID, &p.Notification.AgentID, &nStatus,
			&p.Notification.CreatedAt, &p.Notification.UpdatedAt,
			&m.ID, &m.CompanyID, &m.AgentID, &m.Title, &m.Description, &m.LocationLabel,
			&m.Latitude, &m.Longitude, &m.LastLatitude, &m.LastLongitude, &mStatus,
			&m.StartTime, &m.EndTime, &m.CreatedAt, &m.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan proposal: %w", err)
		}
		p.Notification.Status = models.NotificationStatus(nStatus)
		m.Status = models.MissionStatus(mStatus)
		proposals = append(proposals, p)
	}
	return proposals, rows.Err()
}

func (s *PostgresStore) ListTargets(ctx context.Context, userID string) ([]models.PushTarget, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT kind, endpoint, p256dh, auth, token, platform
		FROM push_subscriptions
		WHERE user_id = $1
		ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query push targets: %w", err)
	}
	defer rows.Close()

	var targets []models.PushTarget
	for rows.Next() {
		var kind string
		var endpoint, p256dh, authKey, token, platform *string
		if err := rows.Scan(&kind, &endpoint, &p256dh, &authKey, &token, &platform); err != nil {
			return nil, fmt.Errorf("failed to scan push target: %w", err)
		}
		switch kind {
		case "web":
			targets = append(targets, models.WebTarget{
				UserID:   userID,
				Endpoint: deref(endpoint),
				P256dh:   deref(p256dh),
				Auth:     deref(authKey),
			})
		case "mobile":
			targets = append(targets, models.MobileTarget{
				UserID:   userID,
				Token:    deref(token),
				Platform: deref(platform),
			})
		}
	}
	return targets, rows.Err()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (s *PostgresStore) SaveTarget(ctx context.Context, target models.PushTarget) error {
	var err error
	switch t := target.(type) {
	case models.WebTarget:
		_, err = s.pool.Exec(ctx, `
			INSERT INTO push_subscriptions (id, user_id, kind, endpoint, p256dh, auth, created_at)
			VALUES ($1, $2, 'web', $3, $4, $5, NOW())
			ON CONFLICT (endpoint)
			DO UPDATE SET user_id = EXCLUDED.user_id, p256dh = EXCLUDED.p256dh, auth = EXCLUDED.auth
		`, uuid.New().String(), t.UserID, t.Endpoint, t.P256dh, t.Auth)
	case models.MobileTarget:
		_, err = s.pool.Exec(ctx, `
			INSERT INTO push_subscriptions (id, user_id, kind, token, platform, created_at)
			VALUES ($1, $2, 'mobile', $3, $4, NOW())
			ON CONFLICT (token)
			DO UPDATE SET user_id = EXCLUDED.user_id, platform = EXCLUDED.platform
		`, uuid.New().String(), t.UserID, t.Token, t.Platform)
	default:
		return fmt.Errorf("unsupported push target %T", target)
	}
	if err != nil {
		return fmt.Errorf("failed to save push target: %w", err)
	}
	return nil
}

func (s *PostgresStore) RemoveTarget(ctx context.Context, target models.PushTarget) error {
	var err error
	switch t := target.(type) {
	case models.WebTarget:
		_, err = s.pool.Exec(ctx, `DELETE FROM push_subscriptions WHERE endpoint = $1 AND user_id = $2`, t.Endpoint, t.UserID)
	case models.MobileTarget:
		_, err = s.pool.Exec(ctx, `DELETE FROM push_subscriptions WHERE token = $1 AND user_id = $2`, t.Token, t.UserID)
	default:
		return fmt.Errorf("unsupported push target %T", target)
	}
	if err != nil {
		return fmt.Errorf("failed to remove push target: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, user *models.User) (string, error) {
	var userID string
	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (name, email, role, hashed_password, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING id
	`, user.Name, strings.ToLower(user.Email), user.Role, user.HashedPassword).Scan(&userID)
	if err != nil {
		return "", fmt.Errorf("failed to create user: %w", err)
	}
	return userID, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, userID string) (*models.User, error) {
	return s.findUser(ctx, `WHERE id = $1`, userID)
}

func (s *PostgresStore) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findUser(ctx, `WHERE email = $1`, strings.ToLower(email))
}

func (s *PostgresStore) findUser(ctx context.Context, where string, arg string) (*models.User, error) {
	var u models.User
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, email, role, hashed_password, created_at, updated_at
		FROM users `+where, arg).Scan(
		&u.ID, &u.Name, &u.Email, &u.Role, &u.HashedPassword, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", arg, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}
