package refiner

import (
	"fmt"

	"refinery/engine"
)

// Scheduler names a sampling-schedule algorithm family.
type Scheduler string

// Supported schedulers. The names are part of the request contract.
const (
	SchedulerDDIM               Scheduler = "DDIM"
	SchedulerDPMSolverMultistep Scheduler = "DPMSolverMultistep"
	SchedulerKEulerAncestral    Scheduler = "K_EULER_ANCESTRAL"
	SchedulerKEuler             Scheduler = "K_EULER"
)

// Schedulers lists every supported scheduler name.
func Schedulers() []Scheduler {
	return []Scheduler{
		SchedulerDDIM,
		SchedulerDPMSolverMultistep,
		SchedulerKEulerAncestral,
		SchedulerKEuler,
	}
}

// Valid reports whether s names a supported scheduler.
func (s Scheduler) Valid() bool {
	switch s {
	case SchedulerDDIM, SchedulerDPMSolverMultistep, SchedulerKEulerAncestral, SchedulerKEuler:
		return true
	}
	return false
}

// ScheduleFactory builds a schedule for the request from the loaded
// pipeline's shared hyperparameters. Only the algorithm family differs
// between factories; everything else is inherited from the base config.
type ScheduleFactory func(base engine.ScheduleConfig) engine.Schedule

// ResolveScheduler maps a scheduler name to its factory.
// Unknown names fail with ErrInvalidArgument.
func ResolveScheduler(name Scheduler) (ScheduleFactory, error) {
	if !name.Valid() {
		return nil, fmt.Errorf("%w: unsupported scheduler %q", ErrInvalidArgument, name)
	}

	algorithm := string(name)
	return func(base engine.ScheduleConfig) engine.Schedule {
		return engine.Schedule{
			Algorithm: algorithm,
			Config:    base,
		}
	}, nil
}
