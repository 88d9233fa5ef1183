package scheduler

import (
	"fmt"

	"runwayscraper/pkg/models"
)

// UnitType names the level of the catalog a work unit operates on.
type UnitType string

const (
	UnitTypeSeason   UnitType = "season"
	UnitTypeDesigner UnitType = "designer"
	UnitTypeLook     UnitType = "look"
)

// UnitState tracks a unit through the dispatch lifecycle.
type UnitState string

const (
	StatePending    UnitState = "pending"
	StateInProgress UnitState = "in_progress"
	StateCompleted  UnitState = "completed"
	StateSkipped    UnitState = "skipped"
	StateFailed     UnitState = "failed"
)

// Unit is one independently schedulable piece of work. Which fields are set
// depends on the type: a season unit carries the season key and URL, a
// designer unit adds the designer URL, and a look unit adds the look number.
type Unit struct {
	Type        UnitType
	SeasonKey   models.SeasonKey
	SeasonURL   string
	DesignerURL string
	LookNumber  int
}

// ID returns a stable identity for state tracking and logs.
func (u Unit) ID() string {
	switch u.Type {
	case UnitTypeSeason:
		return fmt.Sprintf("season/%s", u.SeasonKey)
	case UnitTypeDesigner:
		return fmt.Sprintf("designer/%s", u.DesignerURL)
	case UnitTypeLook:
		return fmt.Sprintf("look/%s/%d", u.DesignerURL, u.LookNumber)
	default:
		return string(u.Type)
	}
}

// UnitError pairs a failed unit with its error.
type UnitError struct {
	Unit Unit
	Err  error
}

func (e UnitError) Error() string {
	return fmt.Sprintf("%s: %v", e.Unit.ID(), e.Err)
}

// Result summarizes one dispatch run. Failures are collected rather than
// aborting the run, so one broken page never stops the rest of the batch.
type Result struct {
	Processed int
	Completed int
	Skipped   int
	Failed    int
	Errors    []UnitError
}
