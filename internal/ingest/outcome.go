package ingest

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/fortuna/courtcast/internal/apperr"
)

// Status is what happened to one upstream record.
type Status string

const (
	StatusWritten Status = "written"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Outcome is the per-record result of an ingestion step.
type Outcome struct {
	Key    string `json:"key"`
	Status Status `json:"status"`
	Err    error  `json:"-"`
}

// Result aggregates the outcomes of one operation.
type Result struct {
	Type     string    `json:"type"`
	Written  int       `json:"written"`
	Skipped  int       `json:"skipped"`
	Failed   int       `json:"failed"`
	Outcomes []Outcome `json:"-"`
}

// record files the outcome of one item. It returns the error only when
// the item's failure must abort the whole run.
func (r *Result) record(key string, err error) error {
	if err == nil {
		r.Written++
		r.Outcomes = append(r.Outcomes, Outcome{Key: key, Status: StatusWritten})
		return nil
	}

	switch {
	case apperr.Classify(err) == apperr.Abort:
		r.Failed++
		r.Outcomes = append(r.Outcomes, Outcome{Key: key, Status: StatusFailed, Err: err})
		return err
	case errors.Is(err, apperr.ErrUpstreamSchemaDrift),
		errors.Is(err, apperr.ErrReferencedEntityMissing),
		errors.Is(err, apperr.ErrUpstreamUnavailable):
		r.Skipped++
		r.Outcomes = append(r.Outcomes, Outcome{Key: key, Status: StatusSkipped, Err: err})
	default:
		r.Failed++
		r.Outcomes = append(r.Outcomes, Outcome{Key: key, Status: StatusFailed, Err: err})
	}
	return nil
}

// merge folds a sub-result into r.
func (r *Result) merge(o Result) {
	r.Written += o.Written
	r.Skipped += o.Skipped
	r.Failed += o.Failed
	r.Outcomes = append(r.Outcomes, o.Outcomes...)
}

// Errors returns the non-nil outcome errors.
func (r *Result) Errors() []error {
	var out []error
	for _, o := range r.Outcomes {
		if o.Err != nil {
			out = append(out, o.Err)
		}
	}
	return out
}

// StepReport is one step of a refresh.
type StepReport struct {
	Name   string `json:"name"`
	Result Result `json:"result"`
	Error  string `json:"error,omitempty"`
}

// RefreshReport is returned by RunIncrementalRefresh and RunFullIngestion.
type RefreshReport struct {
	Type     string        `json:"type"`
	Season   string        `json:"season"`
	Steps    []StepReport  `json:"steps"`
	Duration time.Duration `json:"duration"`
}

// Written totals the written records across steps.
func (r *RefreshReport) Written() int {
	n := 0
	for _, s := range r.Steps {
		n += s.Result.Written
	}
	return n
}

// FailedSteps lists the steps that returned an error.
func (r *RefreshReport) FailedSteps() []string {
	var out []string
	for _, s := range r.Steps {
		if s.Error != "" {
			out = append(out, s.Name)
		}
	}
	return out
}

func (r *RefreshReport) summary() *string {
	failed := r.FailedSteps()
	if len(failed) == 0 {
		return nil
	}
	msg := "failed steps: " + strings.Join(failed, ", ")
	return &msg
}
