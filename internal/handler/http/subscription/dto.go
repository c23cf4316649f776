package subscription

import (
	"time"

	"issuepilot/internal/domain/entity"
)

// repositoryDTO is the wire representation of a registered repository.
type repositoryDTO struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Owner string `json:"owner"`
	Type  string `json:"repository_type"`
}

func toRepositoryDTO(r *entity.Repository) repositoryDTO {
	return repositoryDTO{
		ID:    r.ID,
		Name:  r.Name,
		Owner: r.Owner,
		Type:  r.Type.String(),
	}
}

// timelineEventDTO is the wire representation of one issue timeline event.
type timelineEventDTO struct {
	Event     string    `json:"event"`
	Actor     string    `json:"actor,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func toTimelineDTO(events []*entity.TimelineEvent) []timelineEventDTO {
	out := make([]timelineEventDTO, 0, len(events))
	for _, ev := range events {
		out = append(out, timelineEventDTO{
			Event:     ev.Event,
			Actor:     ev.Actor,
			CreatedAt: ev.CreatedAt,
		})
	}
	return out
}
