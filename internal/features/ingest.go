package features

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	repo "malasakit/internal/repo"
	sv "malasakit/internal/service"
	"malasakit/internal/twiml"
)

// Ingest attaches the caller's recording to their pending response and
// redirects to next. Failures to obtain the audio abandon the response and
// move on.
func (s *Survey) Ingest(ctx context.Context, call *Call, next State) *twiml.Response {
	log := s.log(ctx, ingestSegment, call).With(zap.String("next", string(next)))
	if _, ok := ParseState(string(next)); !ok {
		return s.fail(log, fmt.Errorf("unknown next state %q", next))
	}
	onward := twiml.New().Redirect(s.URL(next))

	respondent, log, err := s.respondent(ctx, log, call)
	if err != nil {
		return s.fail(log, err)
	}

	// A redelivered callback may arrive after the next prompt was presented,
	// so it must never reach that prompt's placeholder.
	if call.RecordingURL != "" {
		dup, err := s.repo.Response.FindBySource(ctx, respondent.ID, call.RecordingURL)
		if err == nil {
			log.Info("Duplicate recording callback", zap.Int64("responseId", dup.ID))
			return onward
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return s.fail(log, fmt.Errorf("%w: %v", ErrStorageFailure, err))
		}
	}

	target, err := s.repo.Response.LatestPending(ctx, respondent.ID)
	if errors.Is(err, repo.ErrNotFound) {
		return s.ingestWithoutPlaceholder(ctx, log, respondent, call, onward)
	}
	if err != nil {
		return s.fail(log, fmt.Errorf("%w: %v", ErrStorageFailure, err))
	}
	log = log.With(zap.Int64("responseId", target.ID))

	before := target.CreatedAt.Add(-s.config.SweepAge)
	if n, err := s.repo.Response.AbandonStale(ctx, respondent.ID, target.ID, before); err != nil {
		log.Warn("Failed to sweep stale placeholders", zap.Error(err))
	} else if n > 0 {
		log.Info("Abandoned stale placeholders", zap.Int64("count", n))
	}

	if err := s.attach(ctx, log, target, call.RecordingURL); err != nil {
		if errors.Is(err, ErrStorageFailure) {
			return s.fail(log, err)
		}
		log.Warn("Skipping recording", zap.Error(err))
		if err := s.repo.Response.MarkAbandoned(ctx, target.ID); err != nil {
			return s.fail(log, fmt.Errorf("%w: %v", ErrStorageFailure, err))
		}
		return twiml.New().Say(s.config.Skipped).Redirect(s.URL(next))
	}
	return onward
}

// ingestWithoutPlaceholder handles a new recording with nothing pending: a
// correction of the last answer.
func (s *Survey) ingestWithoutPlaceholder(ctx context.Context, log *zap.Logger, respondent *repo.Respondent, call *Call, onward *twiml.Response) *twiml.Response {
	if call.RecordingURL == "" {
		log.Debug("Nothing pending and no recording")
		return onward
	}

	last, err := s.repo.Response.LatestComplete(ctx, respondent.ID)
	if errors.Is(err, repo.ErrNotFound) {
		log.Warn("Recording with no response to attach to", zap.String("recordingUrl", call.RecordingURL))
		return onward
	}
	if err != nil {
		return s.fail(log, fmt.Errorf("%w: %v", ErrStorageFailure, err))
	}

	log = log.With(zap.Int64("responseId", last.ID))
	log.Info("Replacing recording of last answer")
	if err := s.attach(ctx, log, last, call.RecordingURL); err != nil {
		if errors.Is(err, ErrStorageFailure) {
			return s.fail(log, err)
		}
		log.Warn("Keeping previous recording", zap.Error(err))
	}
	return onward
}

// attach downloads url into the response's media path and completes it.
// Errors other than ErrStorageFailure leave the response untouched.
func (s *Survey) attach(ctx context.Context, log *zap.Logger, target *repo.Response, url string) error {
	if url == "" {
		return fmt.Errorf("%w: no recording posted", ErrRecordingUnavailable)
	}

	rec, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRecordingUnavailable, err)
	}

	rel := sv.ResponsePath(target.ID, rec.Ext)
	if err := s.media.Save(ctx, rel, rec.Body); err != nil {
		return fmt.Errorf("write recording: %w", err)
	}

	duration, err := s.media.Duration(rel)
	if err != nil {
		log.Debug("Could not probe recording duration", zap.Error(err))
	}

	changed, err := s.repo.Response.AttachRecording(ctx, target.ID, rel, url, duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	if !changed {
		return nil
	}
	log.Info("Recording attached",
		zap.String("recording", rel),
		zap.Int("bytes", len(rec.Body)),
		zap.Duration("duration", duration))

	if s.events != nil {
		s.events.EnqueueJob(log, RecordingAttached{
			ResponseID:   target.ID,
			RespondentID: target.RespondentID,
			PromptKind:   string(target.Prompt.Kind),
			PromptID:     target.Prompt.ID,
			Recording:    rel,
			DurationMs:   duration.Milliseconds(),
		})
	}
	return nil
}
