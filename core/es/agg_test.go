package es

import (
	"errors"
	"fmt"
	"log/slog"
)

// counterAgg is a minimal aggregate used across the kernel tests.
type counterAgg struct {
	BaseAggregate

	Name    string `json:"name"`
	Counter int    `json:"counter"`
}

type (
	counterCreated struct {
		Name string `json:"name"`
	}
	counterIncremented struct {
		By int `json:"by"`
	}
)

func (e *counterIncremented) Validate() error {
	if e.By <= 0 {
		return errors.New("increment must be positive")
	}
	return nil
}

func (a *counterAgg) GetAggType() string { return "counter" }

func (a *counterAgg) Register(r Registrar) {
	RegisterEvents(r, Event[counterCreated](), Event[counterIncremented]())
}

func (a *counterAgg) Apply(event any) error {
	switch e := event.(type) {
	case *counterCreated:
		a.Name = e.Name
		return nil
	case *counterIncremented:
		a.Counter += e.By
		return nil
	}
	return fmt.Errorf("unknown event: %T", event)
}

func (a *counterAgg) Create(name string) error {
	if a.Name != "" {
		return errors.New("counter already created")
	}
	return RaiseAndApply(a, &counterCreated{Name: name})
}

func (a *counterAgg) Inc(by int) error {
	if a.Name == "" {
		return errors.New("counter not created")
	}
	return RaiseAndApply(a, &counterIncremented{By: by})
}

func newCounterAgg(id string) *counterAgg {
	a := &counterAgg{}
	a.SetID(id)
	return a
}

func newCounterRegistry() *EventRegistry {
	reg := NewRegistry()
	(&counterAgg{}).Register(reg)
	return reg
}

func testLogger() *slog.Logger { return slog.Default() }
