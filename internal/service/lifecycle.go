package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/noah-isme/perception-api/internal/dto"
	"github.com/noah-isme/perception-api/internal/models"
	"github.com/noah-isme/perception-api/internal/observability"
	"github.com/noah-isme/perception-api/internal/repository"
)

// Lifecycle records the side effects of a state transition: audit entry, metric,
// events for everyone watching the paper and cache invalidation.
type Lifecycle struct {
	activity ActivityRecorder
	roster   repository.RosterRepository
	events   EventPublisher
	cache    *PaperListCache
	logger   zerolog.Logger
}

// NewLifecycle wires the transition side effects. Any collaborator may be nil.
func NewLifecycle(activity ActivityRecorder, roster repository.RosterRepository, events EventPublisher, cache *PaperListCache, logger zerolog.Logger) *Lifecycle {
	return &Lifecycle{
		activity: activity,
		roster:   roster,
		events:   events,
		cache:    cache,
		logger:   logger.With().Str("component", "lifecycle").Logger(),
	}
}

// transition describes one state change.
type transition struct {
	paper     models.Paper
	actor     Principal
	action    string
	eventType string
	metadata  map[string]interface{}
	audience  []string
	// audit is false for transitions that leave no activity entry.
	audit bool
}

func (l *Lifecycle) rosteredStudents(ctx context.Context, teacherEmail string) []string {
	if l == nil || l.roster == nil {
		return nil
	}
	students, err := l.roster.ListStudents(ctx, teacherEmail)
	if err != nil {
		l.logger.Warn().Err(err).Str("teacher", teacherEmail).Msg("failed to load roster for notification")
		return nil
	}
	return students
}

// paperAudience is the owner plus every rostered student.
func (l *Lifecycle) paperAudience(ctx context.Context, paper models.Paper) []string {
	return append([]string{paper.TeacherEmail}, l.rosteredStudents(ctx, paper.TeacherEmail)...)
}

func (l *Lifecycle) apply(ctx context.Context, t transition) {
	if l == nil {
		return
	}

	observability.LifecycleTransitions().WithLabelValues(t.action).Inc()

	if t.audit && l.activity != nil {
		entry := ActivityEntry{PaperID: t.paper.ID, Actor: t.actor, Action: t.action, Metadata: t.metadata}
		if err := l.activity.Record(ctx, entry); err != nil {
			l.logger.Warn().Err(err).Str("action", t.action).Msg("failed to record activity")
		}
	}

	students := make([]string, 0, len(t.audience))
	for _, email := range t.audience {
		if email != t.paper.TeacherEmail {
			students = append(students, email)
		}
	}
	l.cache.Invalidate(ctx, students...)

	if l.events == nil || t.eventType == "" {
		return
	}
	for _, topic := range t.audience {
		l.events.Publish(ctx, dto.Event{
			Type:       t.eventType,
			Topic:      topic,
			PaperID:    t.paper.ID,
			ActorEmail: t.actor.Email,
			Payload:    t.metadata,
		})
	}
}

func (l *Lifecycle) rosterChanged(ctx context.Context, actor Principal, teacherEmail, studentEmail string, added bool) {
	if l == nil {
		return
	}

	l.cache.Invalidate(ctx, studentEmail)
	if l.events == nil {
		return
	}

	payload := map[string]interface{}{
		"teacher_email": teacherEmail,
		"student_email": studentEmail,
		"added":         added,
	}
	for _, topic := range []string{teacherEmail, studentEmail} {
		l.events.Publish(ctx, dto.Event{
			Type:       dto.EventRosterChanged,
			Topic:      topic,
			ActorEmail: actor.Email,
			Payload:    payload,
		})
	}
}
