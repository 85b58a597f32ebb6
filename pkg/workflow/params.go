// Package workflow holds the catalog of workflow types, their typed
// parameter declarations and the translation between those declarations
// and the generic form schema served to clients.
package workflow

import "time"

// Parameter is the closed set of typed parameter declarations a
// workflow can carry. Concrete types: StringParameter,
// BooleanParameter, IntegerParameter, FloatParameter,
// DateTimeParameter, DurationParameter.
type Parameter interface {
	Key() string
}

// EnumOption is one allowed value of a closed-choice string parameter.
type EnumOption struct {
	KeyName     string
	DisplayName string
}

type StringParameter struct {
	KeyName     string
	Title       string
	Description string
	Default     *string
	EnumOptions []EnumOption
}

func (p StringParameter) Key() string { return p.KeyName }

type BooleanParameter struct {
	KeyName     string
	Title       string
	Description string
	Default     *bool
}

func (p BooleanParameter) Key() string { return p.KeyName }

type IntegerParameter struct {
	KeyName     string
	Title       string
	Description string
	Default     *int
	Minimum     *int
	Maximum     *int
}

func (p IntegerParameter) Key() string { return p.KeyName }

type FloatParameter struct {
	KeyName     string
	Title       string
	Description string
	Default     *float64
	Minimum     *float64
	Maximum     *float64
}

func (p FloatParameter) Key() string { return p.KeyName }

type DateTimeParameter struct {
	KeyName     string
	Title       string
	Description string
	Default     *time.Time
}

func (p DateTimeParameter) Key() string { return p.KeyName }

type DurationParameter struct {
	KeyName     string
	Title       string
	Description string
	Default     *time.Duration
	Minimum     *time.Duration
	Maximum     *time.Duration
}

func (p DurationParameter) Key() string { return p.KeyName }

// Pointer helpers for building catalog definitions.

func String(s string) *string { return &s }

func Bool(b bool) *bool { return &b }

func Int(i int) *int { return &i }

func Float(f float64) *float64 { return &f }

func DateTime(t time.Time) *time.Time { return &t }

func Duration(d time.Duration) *time.Duration { return &d }
