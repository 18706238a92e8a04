package realtime

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/bizmatters/mission-dispatch/internal/models"
)

// MissionReader is the store lookup used to authorize mission topics
type MissionReader interface {
	GetMission(ctx context.Context, missionID string) (*models.Mission, error)
}

// TopicAuthorizer decides who may subscribe to a topic. Mission topics are
// checked against the store on every call; nothing is cached.
type TopicAuthorizer struct {
	missions MissionReader
}

func NewTopicAuthorizer(missions MissionReader) *TopicAuthorizer {
	return &TopicAuthorizer{missions: missions}
}

// Authorize returns nil when userID may subscribe to topic. Unknown
// topics and missions are reported as ErrForbidden so that probing does
// not reveal which missions exist.
func (a *TopicAuthorizer) Authorize(ctx context.Context, userID, topic string) error {
	switch {
	case topic == models.TopicPublicMissions:
		return nil

	case strings.HasPrefix(topic, models.TopicUserPrefix):
		if strings.TrimPrefix(topic, models.TopicUserPrefix) == userID {
			return nil
		}
		return fmt.Errorf("topic %s: %w", topic, models.ErrForbidden)

	case strings.HasPrefix(topic, models.TopicMissionPrefix):
		missionID := strings.TrimPrefix(topic, models.TopicMissionPrefix)
		if _, err := uuid.Parse(missionID); err != nil {
			return fmt.Errorf("topic %s: %w", topic, models.ErrForbidden)
		}
		mission, err := a.missions.GetMission(ctx, missionID)
		if errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("topic %s: %w", topic, models.ErrForbidden)
		}
		if err != nil {
			return err
		}
		if mission.CompanyID == userID || mission.AssignedTo(userID) {
			return nil
		}
		return fmt.Errorf("topic %s: %w", topic, models.ErrForbidden)
	}

	return fmt.Errorf("unknown topic %s: %w", topic, models.ErrForbidden)
}
