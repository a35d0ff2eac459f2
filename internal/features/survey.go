package features

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	repo "malasakit/internal/repo"
	sv "malasakit/internal/service"
	"malasakit/internal/session"
	"malasakit/internal/twiml"
	logging "malasakit/pkg/logger/pkg"
)

// State names double as the URL segment of their handler.
type State string

const (
	StateLanding      State = "landing"
	StateQuantitative State = "quantitative-questions"
	StateRateComments State = "rate-comments"
	StateQualitative  State = "qualitative-questions"
	StateEnd          State = "end"

	ingestSegment = "process-recording"
	pathPrefix    = "/feature-phone"
)

// Prompt keys looked up in the catalogue.
const (
	PromptWelcome           = "welcome"
	PromptRate              = "rate-prompt"
	PromptQuantitativeIntro = "quantitative-intro"
	PromptQualitativeIntro  = "qualitative-intro"
	PromptEnd               = "end"
)

// ParseState accepts the states an ingest callback may advance to.
func ParseState(s string) (State, bool) {
	switch st := State(s); st {
	case StateQuantitative, StateRateComments, StateQualitative:
		return st, true
	}
	return "", false
}

// Call carries the provider fields a handler needs.
type Call struct {
	Sid          string
	Language     string
	RecordingURL string
}

type Fetcher interface {
	Fetch(ctx context.Context, url string) (*sv.Recording, error)
}

type Publisher interface {
	EnqueueJob(logger *zap.Logger, job RecordingAttached) bool
}

type ISurvey interface {
	Landing(ctx context.Context, call *Call) *twiml.Response
	AskQuantitative(ctx context.Context, call *Call) *twiml.Response
	RateComment(ctx context.Context, call *Call) *twiml.Response
	AskQualitative(ctx context.Context, call *Call) *twiml.Response
	Ingest(ctx context.Context, call *Call, next State) *twiml.Response
	End(ctx context.Context, call *Call) *twiml.Response
	Apology() *twiml.Response
}

// Survey drives a caller through the phone survey, one callback at a time.
type Survey struct {
	repo    repo.Repository
	binder  session.Binder
	fetcher Fetcher
	media   *sv.MediaStore
	events  Publisher
	config  Config

	mu   sync.Mutex
	rand *rand.Rand
	pick func(n int) int
}

func New(repo *repo.Repository, binder session.Binder, fetcher Fetcher, media *sv.MediaStore, events Publisher, cfg *Config) *Survey {
	s := &Survey{
		repo:    *repo,
		binder:  binder,
		fetcher: fetcher,
		media:   media,
		events:  events,
		config:  *cfg,
		rand:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	s.pick = s.uniform
	return s
}

func (s *Survey) uniform(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rand.Intn(n)
}

// URL is the absolute or host-relative address of a state's handler.
func (s *Survey) URL(st State) string {
	return fmt.Sprintf("%s%s/%s/", s.config.BaseURL, pathPrefix, st)
}

// IngestURL is the recording callback that advances to next.
func (s *Survey) IngestURL(next State) string {
	return fmt.Sprintf("%s%s/%s/%s/", s.config.BaseURL, pathPrefix, ingestSegment, next)
}

func (s *Survey) Apology() *twiml.Response {
	return twiml.New().Say(s.config.Apology).Hangup()
}

func (s *Survey) Landing(ctx context.Context, call *Call) *twiml.Response {
	log := s.log(ctx, string(StateLanding), call)
	language := s.config.Language(call.Language)

	// A repeated landing callback keeps the caller it already started.
	if r := s.activeRespondent(ctx, log, call.Sid); r != nil {
		log = log.With(zap.Int64("respondentId", r.ID))
		welcome, err := s.prompt(ctx, PromptWelcome, r.Language)
		if err != nil {
			return s.fail(log, err)
		}
		log.Info("Call restarted", zap.String("language", r.Language))
		return s.landing(ctx, welcome, r.Language)
	}

	welcome, err := s.prompt(ctx, PromptWelcome, language)
	if err != nil {
		return s.fail(log, err)
	}

	respondentID, err := s.repo.Respondent.Create(ctx, language)
	if err != nil {
		return s.fail(log, fmt.Errorf("%w: %v", ErrStorageFailure, err))
	}
	log = log.With(zap.Int64("respondentId", respondentID))

	if err := s.bind(ctx, log, call.Sid, respondentID); err != nil {
		if derr := s.repo.Respondent.Delete(ctx, respondentID); derr != nil {
			log.Error("Failed to delete unbound respondent", zap.Error(derr))
		}
		return s.fail(log, fmt.Errorf("%w: %v", ErrStorageFailure, err))
	}
	log.Info("Call started", zap.String("language", language))
	return s.landing(ctx, welcome, language)
}

func (s *Survey) landing(ctx context.Context, welcome *repo.Prompt, language string) *twiml.Response {
	doc := twiml.New().Play(s.media.URL(welcome.Audio))
	s.playOptional(ctx, doc, PromptQuantitativeIntro, language)
	return doc.Redirect(s.URL(StateQuantitative))
}

// activeRespondent returns the respondent bound to callSid when it still
// exists and has not finished the survey.
func (s *Survey) activeRespondent(ctx context.Context, log *zap.Logger, callSid string) *repo.Respondent {
	id, ok, err := s.binder.Resolve(ctx, callSid)
	if err != nil {
		log.Warn("Failed to resolve session", zap.Error(err))
		return nil
	}
	if !ok {
		return nil
	}
	r, err := s.repo.Respondent.Get(ctx, id)
	if err != nil || r.Completed {
		return nil
	}
	return r
}

func (s *Survey) AskQuantitative(ctx context.Context, call *Call) *twiml.Response {
	return s.ask(ctx, call, repo.Quantitative)
}

func (s *Survey) AskQualitative(ctx context.Context, call *Call) *twiml.Response {
	return s.ask(ctx, call, repo.Qualitative)
}

// ask presents the first unanswered question of kind in catalogue order.
func (s *Survey) ask(ctx context.Context, call *Call, kind repo.QuestionKind) *twiml.Response {
	self, next, seconds := StateQuantitative, StateRateComments, s.config.QuantRecordSeconds
	if kind == repo.Qualitative {
		self, next, seconds = StateQualitative, StateEnd, s.config.QualRecordSeconds
	}
	log := s.log(ctx, string(self), call)

	respondent, log, err := s.respondent(ctx, log, call)
	if err != nil {
		return s.fail(log, err)
	}

	unanswered, err := s.repo.Response.GetUnanswered(ctx, respondent.ID, kind)
	if err != nil {
		return s.fail(log, fmt.Errorf("%w: %v", ErrStorageFailure, err))
	}
	if len(unanswered) == 0 {
		log.Debug("No questions left", zap.String("kind", string(kind)))
		return twiml.New().Redirect(s.URL(next))
	}

	question := unanswered[0]
	responseID, existed, err := s.repo.Response.CreatePlaceholder(ctx, respondent.ID, repo.PromptRef{Kind: repo.RefQuestion, ID: question.ID})
	if err != nil {
		return s.fail(log, fmt.Errorf("%w: %v", ErrStorageFailure, err))
	}
	if existed {
		log.Debug("Re-presenting question", zap.Int64("responseId", responseID), zap.Error(ErrDuplicatePlacement))
	}
	log.Info("Presenting question",
		zap.String("questionKey", question.Key),
		zap.Int64("responseId", responseID))

	return s.record(twiml.New().Play(s.media.URL(question.Audio)), seconds, self)
}

// RateComment plays a peer's comment and records the caller's rating.
func (s *Survey) RateComment(ctx context.Context, call *Call) *twiml.Response {
	log := s.log(ctx, string(StateRateComments), call)

	respondent, log, err := s.respondent(ctx, log, call)
	if err != nil {
		return s.fail(log, err)
	}

	comment, err := s.nextComment(ctx, log, respondent)
	if err != nil {
		return s.fail(log, fmt.Errorf("%w: %v", ErrStorageFailure, err))
	}
	if comment == nil {
		doc := twiml.New()
		s.playOptional(ctx, doc, PromptQualitativeIntro, respondent.Language)
		return doc.Redirect(s.URL(StateQualitative))
	}

	ratePrompt, err := s.prompt(ctx, PromptRate, respondent.Language)
	if err != nil {
		return s.fail(log, err)
	}

	responseID, _, err := s.repo.Response.CreatePlaceholder(ctx, respondent.ID, repo.PromptRef{Kind: repo.RefPeerResponse, ID: comment.ID})
	if errors.Is(err, repo.ErrInvalidReference) {
		log.Warn("Comment no longer ratable", zap.Int64("commentId", comment.ID), zap.Error(err))
		return twiml.New().Redirect(s.URL(StateQualitative))
	}
	if err != nil {
		return s.fail(log, fmt.Errorf("%w: %v", ErrStorageFailure, err))
	}
	log.Info("Presenting comment",
		zap.Int64("commentId", comment.ID),
		zap.Int64("responseId", responseID))

	doc := twiml.New().
		Play(s.media.URL(ratePrompt.Audio)).
		Play(s.media.URL(comment.Recording))
	return s.record(doc, s.config.QuantRecordSeconds, StateRateComments)
}

// nextComment returns the comment to present, or nil when the rating phase
// is over for this respondent.
func (s *Survey) nextComment(ctx context.Context, log *zap.Logger, respondent *repo.Respondent) (*repo.Response, error) {
	limit := s.config.MaxCommentsPerCall

	rated, err := s.repo.Response.CountRatings(ctx, respondent.ID)
	if err != nil {
		return nil, err
	}
	if rated >= limit {
		log.Debug("Rating limit reached", zap.Int("rated", rated))
		return nil, nil
	}

	pool, err := s.repo.Catalogue.CommentPool(ctx, respondent.Language, respondent.ID)
	if err != nil {
		return nil, err
	}
	if len(pool) < limit {
		log.Debug("Comment pool too small", zap.Int("pool", len(pool)), zap.Int("limit", limit))
		return nil, nil
	}

	pending, err := s.repo.Response.PendingRating(ctx, respondent.ID)
	switch {
	case err == nil:
		comment, err := s.repo.Response.Get(ctx, pending.Prompt.ID)
		if !errors.Is(err, repo.ErrNotFound) {
			return comment, err
		}
		// The comment's author was swept while the rating was pending.
		if err := s.repo.Response.MarkAbandoned(ctx, pending.ID); err != nil {
			return nil, err
		}
	case !errors.Is(err, repo.ErrNotFound):
		return nil, err
	}

	presented, err := s.repo.Response.PresentedComments(ctx, respondent.ID)
	if err != nil {
		return nil, err
	}
	return s.repo.Catalogue.SampleComment(ctx, respondent.Language, respondent.ID, presented, s.pick)
}

func (s *Survey) End(ctx context.Context, call *Call) *twiml.Response {
	log := s.log(ctx, string(StateEnd), call)
	language := s.config.Language(call.Language)

	respondentID, ok, err := s.binder.Resolve(ctx, call.Sid)
	if err != nil {
		log.Warn("Failed to resolve session", zap.Error(err))
	}
	if ok {
		log = log.With(zap.Int64("respondentId", respondentID))
		if r, err := s.repo.Respondent.Get(ctx, respondentID); err == nil {
			language = r.Language
		}
		if err := s.repo.Respondent.MarkCompleted(ctx, respondentID); err != nil {
			log.Error("Failed to mark respondent completed", zap.Error(err))
		}
		if err := s.binder.Forget(ctx, call.Sid); err != nil {
			log.Warn("Failed to forget session", zap.Error(err))
		}
	}
	log.Info("Call finished")

	doc := twiml.New()
	if p, err := s.prompt(ctx, PromptEnd, language); err == nil {
		doc.Play(s.media.URL(p.Audio))
	} else {
		doc.Say(s.config.Closing)
	}
	return doc.Hangup()
}

// record appends the recording verbs. The trailing redirect reaches the
// ingest handler when the caller stays silent and no recording is posted.
func (s *Survey) record(doc *twiml.Response, seconds int, self State) *twiml.Response {
	action := s.IngestURL(self)
	return doc.
		Record(seconds, action, s.config.RecordTimeoutSeconds).
		Redirect(action)
}

// respondent resolves the caller for call, recovering a lost session in place.
func (s *Survey) respondent(ctx context.Context, log *zap.Logger, call *Call) (*repo.Respondent, *zap.Logger, error) {
	id, ok, err := s.binder.Resolve(ctx, call.Sid)
	if err != nil {
		log.Warn("Failed to resolve session, starting over", zap.Error(err))
	}
	if ok {
		r, err := s.repo.Respondent.Get(ctx, id)
		if err == nil {
			return r, log.With(zap.Int64("respondentId", r.ID)), nil
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return nil, log, fmt.Errorf("%w: %v", ErrStorageFailure, err)
		}
		log.Warn("Bound respondent no longer exists", zap.Int64("respondentId", id))
	}

	language := s.config.Language(call.Language)
	id, err = s.repo.Respondent.Create(ctx, language)
	if err != nil {
		return nil, log, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	log = log.With(zap.Int64("respondentId", id))
	log.Warn("Recovered lost session", zap.Error(ErrSessionLost))

	if err := s.binder.Rebind(ctx, call.Sid, id); err != nil {
		return nil, log, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	r, err := s.repo.Respondent.Get(ctx, id)
	if err != nil {
		return nil, log, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	return r, log, nil
}

func (s *Survey) bind(ctx context.Context, log *zap.Logger, callSid string, respondentID int64) error {
	err := s.binder.Bind(ctx, callSid, respondentID)
	if errors.Is(err, session.ErrConflict) {
		log.Warn("Call already bound, rebinding", zap.Error(fmt.Errorf("%w: %v", ErrSessionConflict, err)))
		return s.binder.Rebind(ctx, callSid, respondentID)
	}
	return err
}

func (s *Survey) prompt(ctx context.Context, key, language string) (*repo.Prompt, error) {
	p, err := s.repo.Catalogue.GetPrompt(ctx, key, language)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s (%s)", ErrPromptMissing, key, language)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	return p, nil
}

func (s *Survey) playOptional(ctx context.Context, doc *twiml.Response, key, language string) {
	if p, err := s.prompt(ctx, key, language); err == nil {
		doc.Play(s.media.URL(p.Audio))
	}
}

func (s *Survey) fail(log *zap.Logger, err error) *twiml.Response {
	log.Error("Ending call", zap.Error(err))
	return s.Apology()
}

func (s *Survey) log(ctx context.Context, handler string, call *Call) *zap.Logger {
	return logging.Logger(ctx).With(
		zap.String("handler", handler),
		zap.String("callSid", call.Sid))
}
