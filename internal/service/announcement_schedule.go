package service

import (
	"errors"
	"strings"
	"time"

	"github.com/go-openapi/strfmt"

	"github.com/noah-isme/sma-announcement-api/internal/dto"
	"github.com/noah-isme/sma-announcement-api/internal/models"
	appErrors "github.com/noah-isme/sma-announcement-api/pkg/errors"
)

// ResolveSchedule decides the publication columns for a requested publish time.
// A missing time, or one that is not after now, publishes immediately; a future
// time arms the schedule and leaves the announcement unpublished.
func ResolveSchedule(requestedAt *time.Time, now time.Time) models.PublicationState {
	now = now.UTC()
	if requestedAt == nil || !requestedAt.After(now) {
		return models.PublicationState{IsPublished: true, PublishedAt: &now}
	}
	at := requestedAt.UTC()
	return models.PublicationState{ScheduledAt: &at}
}

var errBlankScheduledAt = errors.New("scheduledAt is blank")

func parseScheduledAt(raw string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return time.Time{}, appErrors.Wrap(errBlankScheduledAt, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "scheduledAt must be an ISO-8601 date-time")
	}
	dt, err := strfmt.ParseDateTime(raw)
	if err != nil {
		return time.Time{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "scheduledAt must be an ISO-8601 date-time")
	}
	return time.Time(dt).UTC(), nil
}

func resolveCreateSchedule(raw *string, now time.Time) (models.PublicationState, error) {
	if raw == nil {
		return ResolveSchedule(nil, now), nil
	}
	at, err := parseScheduledAt(*raw)
	if err != nil {
		return models.PublicationState{}, err
	}
	return ResolveSchedule(&at, now), nil
}

// resolvePatchSchedule returns nil when scheduledAt was omitted from the patch.
// An explicit null publishes now.
func resolvePatchSchedule(opt dto.Optional[string], now time.Time) (*models.PublicationState, error) {
	if !opt.Set {
		return nil, nil
	}
	if opt.IsNull() {
		state := ResolveSchedule(nil, now)
		return &state, nil
	}
	at, err := parseScheduledAt(*opt.Value)
	if err != nil {
		return nil, err
	}
	state := ResolveSchedule(&at, now)
	return &state, nil
}
