package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"shared-planner/internal/datemath"
	"shared-planner/internal/model"
)

// DefaultMaxRecurrenceInstances bounds a single expansion.
const DefaultMaxRecurrenceInstances = 366

// instanceTitleLayout is appended to every instance title, e.g. "Homework (30.01)".
const instanceTitleLayout = "02.01"

// RecurrenceExpander turns one recurring task request into dated instances.
type RecurrenceExpander struct {
	maxInstances int
	loc          *time.Location
	newSeriesID  func() string
}

func NewRecurrenceExpander(maxInstances int, loc *time.Location) *RecurrenceExpander {
	if maxInstances <= 0 {
		maxInstances = DefaultMaxRecurrenceInstances
	}
	if loc == nil {
		loc = time.Local
	}
	return &RecurrenceExpander{
		maxInstances: maxInstances,
		loc:          loc,
		newSeriesID:  uuid.NewString,
	}
}

// Expand validates input and returns the instances in date order, first on
// the due date and none after the recurrence end date. Nothing is persisted.
func (e *RecurrenceExpander) Expand(ownerID string, input TaskInput) ([]model.Task, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.DueDate) == "" {
		return nil, invalid("due date", "required for a recurring task")
	}
	start, err := datemath.ParseISODate(input.DueDate, e.loc)
	if err != nil {
		return nil, invalid("due date", err.Error())
	}
	end, err := datemath.ParseISODate(input.RecurrenceEndDate, e.loc)
	if err != nil {
		return nil, invalid("recurrence end date", err.Error())
	}
	if datemath.CompareDays(end, start) < 0 {
		return nil, fmt.Errorf("%w: %s < %s", ErrInvalidRecurrenceRange, input.RecurrenceEndDate, input.DueDate)
	}
	if !input.RecurrenceKind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRecurrenceKind, input.RecurrenceKind)
	}

	var (
		instances = make([]model.Task, 0, 8)
		seriesID  = e.newSeriesID()
		startDay  = datemath.FormatISODate(start)
		endDay    = datemath.FormatISODate(end)
	)
	for cursor := start; datemath.CompareDays(cursor, end) <= 0; {
		if len(instances) == e.maxInstances {
			return nil, fmt.Errorf("%w: more than %d", ErrRecurrenceTooLong, e.maxInstances)
		}
		instances = append(instances, e.instance(ownerID, input, cursor, startDay, endDay, seriesID))

		next, err := datemath.Advance(cursor, datemath.Kind(input.RecurrenceKind))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnknownRecurrenceKind, err)
		}
		cursor = next
	}
	return instances, nil
}

func (e *RecurrenceExpander) instance(ownerID string, input TaskInput, day time.Time, startDay, endDay, seriesID string) model.Task {
	task := input.toTask(ownerID)
	dueDate := datemath.FormatISODate(day)

	task.Title = fmt.Sprintf("%s (%s)", task.Title, day.Format(instanceTitleLayout))
	task.DueDate = &dueDate
	task.IsRecurring = true
	task.RecurrenceKind = input.RecurrenceKind
	task.RecurrenceEndDate = &endDay
	task.IsRecurringInstance = true
	task.OriginalStartDate = &startDay
	task.SeriesID = &seriesID
	return task
}
