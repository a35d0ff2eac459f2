package repo

import (
	"context"
	"errors"
	"time"

	entsql "entgo.io/ent/dialect/sql"
)

var (
	ErrNotFound           = errors.New("record not found")
	ErrUnknownDemographic = errors.New("unknown demographic")
	// ErrUnlinkedQuestion rejects a question with no web-survey counterpart.
	ErrUnlinkedQuestion = errors.New("question has no web question link")
)

const defaultTimeout = 2 * time.Second

type PromptKind string

const (
	PromptInstructions PromptKind = "instructions"
	PromptQuestion     PromptKind = "question"
)

type QuestionKind string

const (
	Quantitative QuestionKind = "quantitative"
	Qualitative  QuestionKind = "qualitative"
)

// RefKind discriminates what a response's prompt reference points at.
type RefKind string

const (
	RefQuestion     RefKind = "question"
	RefPeerResponse RefKind = "peer-response"
)

type ResponseState string

const (
	StatePending   ResponseState = "pending"
	StateComplete  ResponseState = "complete"
	StateAbandoned ResponseState = "abandoned"
)

// Demographic names a short pre-survey recording kept on the respondent.
type Demographic string

const (
	DemographicAge      Demographic = "age"
	DemographicGender   Demographic = "gender"
	DemographicLocation Demographic = "location"
)

type Respondent struct {
	ID                int64
	Language          string
	AgeRecording      string
	GenderRecording   string
	LocationRecording string
	WebRespondentID   *int64
	Completed         bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Prompt is any audio played to a caller.
type Prompt struct {
	ID         int64
	Kind       PromptKind
	Key        string
	Language   string
	Audio      string
	Transcript string
}

// Question is a prompt that expects a recorded answer. WebQuestionID links it
// to the web survey question it mirrors.
type Question struct {
	Prompt
	QuestionKind  QuestionKind
	WebQuestionID *int64
}

type PromptRef struct {
	Kind RefKind
	ID   int64
}

type Response struct {
	ID           int64
	RespondentID int64
	Prompt       PromptRef
	State        ResponseState
	Recording    string
	SourceURL    string
	DurationMs   int64
	SiblingKind  string
	SiblingID    *int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Repository struct {
	Respondent IRespondent
	Catalogue  ICatalogue
	Response   IResponse
	Driver     *entsql.Driver
}

// New wires every repository over drv. timeout bounds each database call.
func New(drv *entsql.Driver, timeout time.Duration) *Repository {
	b := newBase(drv, timeout)
	return &Repository{
		Driver:     drv,
		Respondent: &EntRespondent{base: b},
		Catalogue:  &EntCatalogue{base: b},
		Response:   &EntResponse{base: b},
	}
}

// Ping checks the database is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.Driver.DB().PingContext(ctx)
}

type base struct {
	drv     *entsql.Driver
	timeout time.Duration
	now     func() time.Time
}

func newBase(drv *entsql.Driver, timeout time.Duration) *base {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &base{
		drv:     drv,
		timeout: timeout,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (b *base) builder() *entsql.DialectBuilder {
	return entsql.Dialect(b.drv.Dialect())
}

func (b *base) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, b.timeout)
}
