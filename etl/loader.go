/*
loader.go - Load job orchestration

PURPOSE:
  Drives Reader -> Transformer -> Validator -> Writer for one fiscal
  year's file and keeps the job status current while it runs.

STATE MACHINE:
  queued -> running -> completed | failed
  No paused or retried state: a failed job is resubmitted from scratch.

FAILURE CATEGORIES (never conflated in the status):
  - validation failure: ValidationErrors carries the full list, the
    write stage is never reached
  - persistence failure: ErrorMessage carries the single writer error,
    the whole-file transaction was rolled back

CONCURRENCY:
  One job is one sequential pipeline. Different fiscal years may load
  concurrently against the same store; the same fiscal year must not,
  which the caller enforces (the second job would fail on duplicate
  keys anyway, but only after doing the work).

SEE ALSO:
  - jobs.go: Job status container and background job manager
  - qc/store.go: Writer contract the final stage relies on
*/
package etl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/stperic/snapqc/qc"
)

// DefaultChunkSize is the number of rows transformed per pass and the
// default insert chunk for writers.
const DefaultChunkSize = 10000

// Loader runs one load job. Configure once, then Load; a Loader is not
// reused across jobs.
type Loader struct {
	Writer qc.Writer
	Refs   qc.ReferenceResolver

	FiscalYear int
	ChunkSize  int // rows per transform pass; <=0 means DefaultChunkSize
	MaxRows    int // optional row cap; <=0 means the whole file

	Strict         bool // range violations become blocking errors
	SkipValidation bool // write without validating (not recommended)
	FailFast       bool // abort on the first malformed row or field error
}

// Load runs the pipeline against path, updating job as stages complete.
// The returned status equals job.Status() at the end.
func (l *Loader) Load(ctx context.Context, path string, job *Job) JobStatus {
	started := time.Now().UTC()
	job.Update(func(s *JobStatus) {
		s.State = JobRunning
		s.StartedAt = &started
	})
	log.Printf("load %s: starting fiscal year %d from %s", job.ID(), l.FiscalYear, path)

	// Reference tables are a hard precondition: coded fields cannot be
	// checked, and downstream consumers cannot join, without them.
	if l.Refs != nil && !l.Refs.AllPopulated() {
		return l.fail(job, qc.ErrReferencesNotReady.Error())
	}

	reader, err := NewReader(path, l.MaxRows)
	if err != nil {
		return l.fail(job, err.Error())
	}
	defer reader.Close()

	batch, readErr := l.readAndTransform(ctx, reader, job)
	if readErr != nil {
		return l.fail(job, readErr.Error())
	}

	if !l.SkipValidation {
		validator := NewValidator(l.Refs, l.Strict)
		report, err := validator.Validate(batch)
		if err != nil {
			return l.fail(job, err.Error())
		}
		job.Update(func(s *JobStatus) {
			for _, w := range report.Warnings {
				s.ValidationWarnings = append(s.ValidationWarnings, w.String())
			}
		})
		if !report.IsValid() {
			job.Update(func(s *JobStatus) {
				for _, e := range report.Errors {
					s.ValidationErrors = append(s.ValidationErrors, e.String())
				}
			})
			log.Printf("load %s: %d validation errors, nothing written", job.ID(), len(report.Errors))
			return l.fail(job, fmt.Sprintf("%v: %d errors", qc.ErrValidationFailed, len(report.Errors)))
		}
	}

	stats, err := l.Writer.WriteAll(ctx, batch)
	if err != nil {
		log.Printf("load %s: write failed, transaction rolled back: %v", job.ID(), err)
		return l.fail(job, err.Error())
	}

	completed := time.Now().UTC()
	job.Update(func(s *JobStatus) {
		s.State = JobCompleted
		s.CompletedAt = &completed
		s.CasesCreated = stats.Cases
		s.MembersCreated = stats.Members
		s.ErrorsCreated = stats.Findings
	})
	final := job.Status()
	log.Printf("load %s: completed in %s: %d cases, %d members, %d findings, %d rows skipped",
		job.ID(), completed.Sub(started), stats.Cases, stats.Members, stats.Findings, final.RowsSkipped)
	return final
}

// readAndTransform streams the file row by row, accumulating one batch
// for the whole-file transaction. Malformed rows are skipped and
// reported; a cancelled context aborts between chunks. Status updates
// are flushed once per chunk to keep lock churn off the hot path.
func (l *Loader) readAndTransform(ctx context.Context, reader *Reader, job *Job) (qc.Batch, error) {
	chunkSize := l.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	transformer := NewTransformer(l.FiscalYear)
	batch := qc.Batch{FiscalYear: l.FiscalYear}

	var pendingRows, pendingSkipped int
	var pendingErrs []string
	flush := func() {
		if pendingRows == 0 {
			return
		}
		rows, skipped, msgs := pendingRows, pendingSkipped, pendingErrs
		job.Update(func(s *JobStatus) {
			s.RowsProcessed += rows
			s.RowsSkipped += skipped
			s.TransformErrors = append(s.TransformErrors, msgs...)
		})
		pendingRows, pendingSkipped, pendingErrs = 0, 0, nil
	}

	for {
		record, err := reader.Next()
		if err == io.EOF {
			break
		}
		pendingRows++

		var malformed *qc.MalformedRecordError
		if errors.As(err, &malformed) {
			if l.FailFast {
				return batch, malformed
			}
			pendingSkipped++
			pendingErrs = append(pendingErrs, malformed.Error())
			continue
		}
		if err != nil {
			return batch, err
		}

		c, members, findings, transformErrs := transformer.TransformRow(record, reader.Row())
		if l.FailFast && len(transformErrs) > 0 {
			return batch, transformErrs[0]
		}
		for _, te := range transformErrs {
			pendingErrs = append(pendingErrs, te.Error())
		}
		if c == nil {
			pendingSkipped++
			continue
		}
		batch.Cases = append(batch.Cases, *c)
		batch.Members = append(batch.Members, members...)
		batch.Findings = append(batch.Findings, findings...)

		if pendingRows >= chunkSize {
			flush()
			if err := ctx.Err(); err != nil {
				return batch, err
			}
		}
	}
	flush()

	return batch, ctx.Err()
}

func (l *Loader) fail(job *Job, message string) JobStatus {
	completed := time.Now().UTC()
	job.Update(func(s *JobStatus) {
		s.State = JobFailed
		s.CompletedAt = &completed
		s.ErrorMessage = message
	})
	log.Printf("load %s: failed: %s", job.ID(), message)
	return job.Status()
}
