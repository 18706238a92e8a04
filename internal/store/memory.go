package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bizmatters/mission-dispatch/internal/models"
)

// MemoryStore is a process-local Store. A single mutex stands in for the
// database's row locks, so claims and status changes are serialized.
type MemoryStore struct {
	mu            sync.Mutex
	missions      map[string]*models.Mission
	audit         map[string][]models.AuditEntry
	seq           int64
	notifications map[string]*models.Notification
	targets       map[string]map[string]models.PushTarget
	users         map[string]*models.User
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		missions:      make(map[string]*models.Mission),
		audit:         make(map[string][]models.AuditEntry),
		notifications: make(map[string]*models.Notification),
		targets:       make(map[string]map[string]models.PushTarget),
		users:         make(map[string]*models.User),
	}
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// PutMission inserts or replaces a mission verbatim; used to seed fixtures
func (s *MemoryStore) PutMission(m *models.Mission) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.missions[m.ID] = m.Clone()
}

func (s *MemoryStore) CreateMission(ctx context.Context, in models.CreateMissionInput, now time.Time) (*models.Mission, error) {
	m := &models.Mission{
		ID:            uuid.New().String(),
		CompanyID:     in.CompanyID,
		Title:         in.Title,
		Description:   in.Description,
		LocationLabel: in.LocationLabel,
		Latitude:      in.Latitude,
		Longitude:     in.Longitude,
		Status:        models.MissionStatusPending,
		StartTime:     in.StartTime,
		EndTime:       in.EndTime,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.missions[m.ID] = m
	return m.Clone(), nil
}

func (s *MemoryStore) GetMission(ctx context.Context, missionID string) (*models.Mission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.missions[missionID]
	if !ok {
		return nil, fmt.Errorf("mission %s: %w", missionID, models.ErrNotFound)
	}
	return m.Clone(), nil
}

func (s *MemoryStore) ClaimMission(ctx context.Context, req ClaimRequest) (*TransitionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.missions[req.MissionID]
	if !ok {
		return nil, fmt.Errorf("mission %s: %w", req.MissionID, models.ErrNotFound)
	}

	if m.Status != models.MissionStatusPending {
		return nil, fmt.Errorf("mission %s is %s: %w", req.MissionID, m.Status, models.ErrAlreadyClaimed)
	}

	if conflict := s.findOverlapLocked(req.AgentID, req.MissionID, m.StartTime, m.EndTime); conflict != nil {
		return nil, conflict
	}

	previous := m.Clone()
	agentID := req.AgentID
	m.AgentID = &agentID
	m.Status = models.MissionStatusAccepted
	m.UpdatedAt = req.Now

	entry := s.appendAuditLocked(models.AuditEntry{
		MissionID:      m.ID,
		ActorUserID:    req.ActorUserID,
		PreviousStatus: previous.Status,
		NewStatus:      m.Status,
		Note:           req.Note,
		CreatedAt:      req.Now,
	})

	return &TransitionResult{Previous: previous, Mission: m.Clone(), Audit: entry}, nil
}

func (s *MemoryStore) findOverlapLocked(agentID, excludeID string, start, end time.Time) *models.ScheduleConflictError {
	var found *models.Mission
	for _, other := range s.missions {
		if other.ID == excludeID || !other.AssignedTo(agentID) || !other.Status.IsBookingActive() {
			continue
		}
		if !other.Overlaps(start, end) {
			continue
		}
		if found == nil || other.StartTime.Before(found.StartTime) {
			found = other
		}
	}
	if found == nil {
		return nil
	}
	return &models.ScheduleConflictError{
		MissionID: found.ID,
		Title:     found.Title,
		Window:    models.Window{Start: found.StartTime, End: found.EndTime},
	}
}

func (s *MemoryStore) ChangeStatus(ctx context.Context, req StatusChange) (*TransitionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.missions[req.MissionID]
	if !ok {
		return nil, fmt.Errorf("mission %s: %w", req.MissionID, models.ErrNotFound)
	}

	previous := m.Clone()
	if req.Check != nil {
		if err := req.Check(previous); err != nil {
			return nil, err
		}
	}

	m.Status = req.NewStatus
	if req.ReleaseAgent {
		m.AgentID = nil
	}
	if req.Latitude != nil && req.Longitude != nil {
		lat, lon := *req.Latitude, *req.Longitude
		m.LastLatitude = &lat
		m.LastLongitude = &lon
	}
	m.UpdatedAt = req.Now

	entry := s.appendAuditLocked(models.AuditEntry{
		MissionID:      m.ID,
		ActorUserID:    req.ActorUserID,
		PreviousStatus: previous.Status,
		NewStatus:      m.Status,
		Latitude:       req.Latitude,
		Longitude:      req.Longitude,
		Note:           req.Note,
		CreatedAt:      req.Now,
	})

	return &TransitionResult{Previous: previous, Mission: m.Clone(), Audit: entry}, nil
}

func (s *MemoryStore) appendAuditLocked(entry models.AuditEntry) models.AuditEntry {
	s.seq++
	entry.ID = uuid.New().String()
	entry.Seq = s.seq
	s.audit[entry.MissionID] = append(s.audit[entry.MissionID], entry)
	return entry
}

func (s *MemoryStore) ListAuditEntries(ctx context.Context, missionID string) ([]models.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := make([]models.AuditEntry, len(s.audit[missionID]))
	copy(entries, s.audit[missionID])
	return entries, nil
}

func notificationKey(missionID, agentID string) string {
	return missionID + "/" + agentID
}

func (s *MemoryStore) UpsertNotification(ctx context.Context, missionID, agentID string, now time.Time) (*models.Notification, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := notificationKey(missionID, agentID)
	if n, ok := s.notifications[key]; ok {
		c := *n
		return &c, false, nil
	}
	n := &models.Notification{
		ID:        uuid.New().String(),
		MissionID: missionID,
		AgentID:   agentID,
		Status:    models.NotificationStatusSent,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.notifications[key] = n
	c := *n
	return &c, true, nil
}

func (s *MemoryStore) SetNotificationStatus(ctx context.Context, missionID, agentID string, status models.NotificationStatus, now time.Time) (*models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := notificationKey(missionID, agentID)
	n, ok := s.notifications[key]
	if !ok {
		n = &models.Notification{
			ID:        uuid.New().String(),
			MissionID: missionID,
			AgentID:   agentID,
			CreatedAt: now,
		}
		s.notifications[key] = n
	}
	n.Status = status
	n.UpdatedAt = now
	c := *n
	return &c, nil
}

func (s *MemoryStore) ListNotificationAgents(ctx context.Context, missionID string, status models.NotificationStatus) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var agents []string
	for _, n := range s.notifications {
		if n.MissionID == missionID && n.Status == status {
			agents = append(agents, n.AgentID)
		}
	}
	sort.Strings(agents)
	return agents, nil
}

// CountNotifications returns how many notification rows exist for a mission
func (s *MemoryStore) CountNotifications(missionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for key := range s.notifications {
		if strings.HasPrefix(key, missionID+"/") {
			count++
		}
	}
	return count
}

func (s *MemoryStore) ListAgentProposals(ctx context.Context, agentID string) ([]models.AgentProposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var proposals []models.AgentProposal
	for _, n := range s.notifications {
		if n.AgentID != agentID || n.Status != models.NotificationStatusSent {
			continue
		}
		m, ok := s.missions[n.MissionID]
		if !ok || m.Status != models.MissionStatusPending {
			continue
		}
		proposals = append(proposals, models.AgentProposal{Notification: *n, Mission: *m.Clone()})
	}
	sort.Slice(proposals, func(i, j int) bool {
		return proposals[i].Notification.CreatedAt.After(proposals[j].Notification.CreatedAt)
	})
	return proposals, nil
}

func (s *MemoryStore) ListTargets(ctx context.Context, userID string) ([]models.PushTarget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := s.targets[userID]
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	targets := make([]models.PushTarget, 0, len(keys))
	for _, k := range keys {
		targets = append(targets, set[k])
	}
	return targets, nil
}

func (s *MemoryStore) SaveTarget(ctx context.Context, target models.PushTarget) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// an endpoint or token belongs to at most one user
	for _, set := range s.targets {
		delete(set, target.Key())
	}
	set, ok := s.targets[target.Owner()]
	if !ok {
		set = make(map[string]models.PushTarget)
		s.targets[target.Owner()] = set
	}
	set[target.Key()] = target
	return nil
}

func (s *MemoryStore) RemoveTarget(ctx context.Context, target models.PushTarget) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.targets[target.Owner()], target.Key())
	return nil
}

func (s *MemoryStore) CreateUser(ctx context.Context, user *models.User) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(user.Email)
	for _, u := range s.users {
		if u.Email == email {
			return "", fmt.Errorf("user with email %s already exists", email)
		}
	}
	c := *user
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	c.Email = email
	s.users[c.ID] = &c
	return c.ID, nil
}

func (s *MemoryStore) GetUser(ctx context.Context, userID string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", userID, models.ErrNotFound)
	}
	c := *u
	return &c, nil
}

func (s *MemoryStore) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email = strings.ToLower(email)
	for _, u := range s.users {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, fmt.Errorf("user %s: %w", email, models.ErrNotFound)
}
