package service

import (
	"fmt"

	"go.uber.org/zap"
)

type EngineState string

const (
	StateIdle                EngineState = "Idle"
	StateSelectingRule       EngineState = "SelectingRule"
	StateMatchingPremises    EngineState = "MatchingPremises"
	StateComputingConclusion EngineState = "ComputingConclusion"
	StateRecording           EngineState = "Recording"
	StateTerminated          EngineState = "Terminated"
)

var transitions = map[EngineState][]EngineState{
	StateIdle:                {StateSelectingRule, StateTerminated},
	StateSelectingRule:       {StateMatchingPremises, StateTerminated},
	StateMatchingPremises:    {StateSelectingRule, StateComputingConclusion, StateTerminated},
	StateComputingConclusion: {StateRecording, StateSelectingRule, StateMatchingPremises, StateTerminated},
	StateRecording:           {StateComputingConclusion, StateSelectingRule, StateMatchingPremises, StateTerminated},
	StateTerminated:          {},
}

// TransitionFunc observes engine state changes.
type TransitionFunc func(runID string, from, to EngineState)

func CanTransition(from, to EngineState) bool {
	if from == to {
		return from != StateTerminated
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// machine tracks the state of one chaining run.
type machine struct {
	runID  string
	state  EngineState
	hook   TransitionFunc
	logger *zap.Logger
}

func newMachine(runID string, hook TransitionFunc, logger *zap.Logger) *machine {
	return &machine{runID: runID, state: StateIdle, hook: hook, logger: logger}
}

func (m *machine) to(next EngineState) {
	if m.state == next {
		return
	}
	if !CanTransition(m.state, next) {
		panic(fmt.Sprintf("chaining: illegal transition %s -> %s", m.state, next))
	}
	from := m.state
	m.state = next
	m.logger.Debug("engine transition",
		zap.String("run_id", m.runID),
		zap.String("from", string(from)),
		zap.String("to", string(next)))
	if m.hook != nil {
		m.hook(m.runID, from, next)
	}
}
