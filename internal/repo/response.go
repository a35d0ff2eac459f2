package repo

import (
	"context"
	stdsql "database/sql"
	"errors"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"entgo.io/ent/dialect/sql/sqlgraph"

	"malasakit/internal/utils/tx"
	"malasakit/schema"
)

// ErrInvalidReference is returned when a prompt reference does not point at
// something a respondent may answer.
var ErrInvalidReference = errors.New("invalid prompt reference")

type IResponse interface {
	Get(ctx context.Context, id int64) (*Response, error)
	ListByRespondent(ctx context.Context, respondentID int64) ([]*Response, error)
	GetUnanswered(ctx context.Context, respondentID int64, kind QuestionKind) ([]*Question, error)
	CreatePlaceholder(ctx context.Context, respondentID int64, ref PromptRef) (int64, bool, error)
	AttachRecording(ctx context.Context, id int64, recording, sourceURL string, durationMs int64) (bool, error)
	MarkAbandoned(ctx context.Context, id int64) error
	LatestPending(ctx context.Context, respondentID int64) (*Response, error)
	LatestComplete(ctx context.Context, respondentID int64) (*Response, error)
	FindBySource(ctx context.Context, respondentID int64, sourceURL string) (*Response, error)
	PendingRating(ctx context.Context, respondentID int64) (*Response, error)
	CountRatings(ctx context.Context, respondentID int64) (int, error)
	PresentedComments(ctx context.Context, respondentID int64) ([]int64, error)
	AbandonStale(ctx context.Context, respondentID, keepID int64, before time.Time) (int64, error)
	SweepPending(ctx context.Context, before time.Time) (int64, error)
	LinkSibling(ctx context.Context, id int64, kind string, siblingID int64) error
}

type EntResponse struct {
	*base
}

var responseColumns = []string{
	schema.ResponseID,
	schema.ResponseRespondentID,
	schema.ResponsePromptKind,
	schema.ResponsePromptID,
	schema.ResponseState,
	schema.ResponseRecording,
	schema.ResponseSourceURL,
	schema.ResponseDurationMs,
	schema.ResponseSiblingKind,
	schema.ResponseSiblingID,
	schema.ResponseCreatedAt,
	schema.ResponseUpdatedAt,
}

func (r *EntResponse) Get(ctx context.Context, id int64) (*Response, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	return getResponse(ctx, r.drv, r.builder(), id)
}

func (r *EntResponse) ListByRespondent(ctx context.Context, respondentID int64) ([]*Response, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	return queryResponses(ctx, r.drv, r.selectResponses().
		Where(entsql.EQ(schema.ResponseRespondentID, respondentID)).
		OrderBy(entsql.Asc(schema.ResponseID)))
}

// GetUnanswered lists the questions of kind, in the respondent's language and
// catalogue order, that have no complete or abandoned response from them.
func (r *EntResponse) GetUnanswered(ctx context.Context, respondentID int64, kind QuestionKind) ([]*Question, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var language string
	q, args := r.builder().Select(schema.RespondentLanguage).
		From(entsql.Table(schema.RespondentTable)).
		Where(entsql.EQ(schema.RespondentID, respondentID)).
		Query()
	var rows entsql.Rows
	if err := r.drv.Query(ctx, q, args, &rows); err != nil {
		return nil, err
	}
	found := rows.Next()
	if found {
		if err := rows.Scan(&language); err != nil {
			rows.Close()
			return nil, err
		}
	}
	rows.Close()
	if !found {
		return nil, ErrNotFound
	}

	questions, err := listQuestions(ctx, r.drv, r.builder(), kind, language)
	if err != nil || len(questions) == 0 {
		return nil, err
	}
	answered, err := selectIDs(ctx, r.drv, r.builder().Select(schema.ResponsePromptID).
		From(entsql.Table(schema.ResponseTable)).
		Where(entsql.And(
			entsql.EQ(schema.ResponseRespondentID, respondentID),
			entsql.EQ(schema.ResponsePromptKind, string(RefQuestion)),
			entsql.In(schema.ResponseState, string(StateComplete), string(StateAbandoned)),
		)))
	if err != nil {
		return nil, err
	}
	done := make(map[int64]struct{}, len(answered))
	for _, id := range answered {
		done[id] = struct{}{}
	}
	var out []*Question
	for _, question := range questions {
		if _, ok := done[question.ID]; !ok {
			out = append(out, question)
		}
	}
	return out, nil
}

// CreatePlaceholder inserts a pending response for (respondentID, ref). When
// one already exists its id is returned with existed set.
func (r *EntResponse) CreatePlaceholder(ctx context.Context, respondentID int64, ref PromptRef) (id int64, existed bool, err error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	err = tx.WithTransaction(ctx, r.drv, func(ctx context.Context, t tx.Tx) error {
		if id, err = r.findByPrompt(ctx, t, respondentID, ref); err == nil {
			existed = true
			return nil
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		if err := r.checkReference(ctx, t, respondentID, ref); err != nil {
			return err
		}

		now := r.now()
		q, args := r.builder().Insert(schema.ResponseTable).
			Columns(
				schema.ResponseRespondentID,
				schema.ResponsePromptKind,
				schema.ResponsePromptID,
				schema.ResponseState,
				schema.ResponseDurationMs,
				schema.ResponseCreatedAt,
				schema.ResponseUpdatedAt,
			).
			Values(respondentID, string(ref.Kind), ref.ID, string(StatePending), 0, now, now).
			Query()
		var res stdsql.Result
		if err := t.Exec(ctx, q, args, &res); err != nil {
			return err
		}
		if id, err = res.LastInsertId(); err != nil {
			return err
		}
		return r.touchRespondent(ctx, t, respondentID)
	})
	if err != nil && sqlgraph.IsUniqueConstraintError(err) {
		// Lost a race with a concurrent callback for the same prompt.
		ctx, cancel := r.withTimeout(context.WithoutCancel(ctx))
		defer cancel()
		if id, err = r.findByPrompt(ctx, r.drv, respondentID, ref); err == nil {
			return id, true, nil
		}
	}
	if err != nil {
		return 0, false, fmt.Errorf("create placeholder: %w", err)
	}
	return id, existed, nil
}

// AttachRecording completes the response with recording. Attaching the same
// source twice is a no-op; changed reports whether the row was written.
func (r *EntResponse) AttachRecording(ctx context.Context, id int64, recording, sourceURL string, durationMs int64) (changed bool, err error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	err = tx.WithTransaction(ctx, r.drv, func(ctx context.Context, t tx.Tx) error {
		current, err := getResponse(ctx, t, r.builder(), id)
		if err != nil {
			return err
		}
		if current.State == StateComplete && current.SourceURL == sourceURL && current.Recording == recording {
			return nil
		}
		q, args := r.builder().Update(schema.ResponseTable).
			Set(schema.ResponseRecording, recording).
			Set(schema.ResponseSourceURL, sourceURL).
			Set(schema.ResponseDurationMs, durationMs).
			Set(schema.ResponseState, string(StateComplete)).
			Set(schema.ResponseUpdatedAt, r.now()).
			Where(entsql.EQ(schema.ResponseID, id)).
			Query()
		if err := t.Exec(ctx, q, args, nil); err != nil {
			return err
		}
		changed = true
		return r.touchRespondent(ctx, t, current.RespondentID)
	})
	if err != nil {
		return false, fmt.Errorf("attach recording to response %d: %w", id, err)
	}
	return changed, nil
}

// MarkAbandoned moves a pending response to abandoned. Other states are left alone.
func (r *EntResponse) MarkAbandoned(ctx context.Context, id int64) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	q, args := r.builder().Update(schema.ResponseTable).
		Set(schema.ResponseState, string(StateAbandoned)).
		Set(schema.ResponseUpdatedAt, r.now()).
		Where(entsql.And(
			entsql.EQ(schema.ResponseID, id),
			entsql.EQ(schema.ResponseState, string(StatePending)),
		)).
		Query()
	return r.drv.Exec(ctx, q, args, nil)
}

// LatestPending returns the most recently created pending response.
func (r *EntResponse) LatestPending(ctx context.Context, respondentID int64) (*Response, error) {
	return r.latest(ctx, entsql.And(
		entsql.EQ(schema.ResponseRespondentID, respondentID),
		entsql.EQ(schema.ResponseState, string(StatePending)),
	), schema.ResponseCreatedAt)
}

// LatestComplete returns the most recently updated complete response.
func (r *EntResponse) LatestComplete(ctx context.Context, respondentID int64) (*Response, error) {
	return r.latest(ctx, entsql.And(
		entsql.EQ(schema.ResponseRespondentID, respondentID),
		entsql.EQ(schema.ResponseState, string(StateComplete)),
	), schema.ResponseUpdatedAt)
}

func (r *EntResponse) FindBySource(ctx context.Context, respondentID int64, sourceURL string) (*Response, error) {
	return r.latest(ctx, entsql.And(
		entsql.EQ(schema.ResponseRespondentID, respondentID),
		entsql.EQ(schema.ResponseSourceURL, sourceURL),
	), schema.ResponseUpdatedAt)
}

// PendingRating returns the peer comment currently presented to the respondent.
func (r *EntResponse) PendingRating(ctx context.Context, respondentID int64) (*Response, error) {
	return r.latest(ctx, entsql.And(
		entsql.EQ(schema.ResponseRespondentID, respondentID),
		entsql.EQ(schema.ResponsePromptKind, string(RefPeerResponse)),
		entsql.EQ(schema.ResponseState, string(StatePending)),
	), schema.ResponseCreatedAt)
}

// CountRatings counts the peer comments the respondent answered or skipped.
func (r *EntResponse) CountRatings(ctx context.Context, respondentID int64) (int, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	return count(ctx, r.drv, r.builder().Select(entsql.Count("*")).
		From(entsql.Table(schema.ResponseTable)).
		Where(entsql.And(
			entsql.EQ(schema.ResponseRespondentID, respondentID),
			entsql.EQ(schema.ResponsePromptKind, string(RefPeerResponse)),
			entsql.In(schema.ResponseState, string(StateComplete), string(StateAbandoned)),
		)))
}

// PresentedComments lists every peer comment ever played to the respondent.
func (r *EntResponse) PresentedComments(ctx context.Context, respondentID int64) ([]int64, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	return selectIDs(ctx, r.drv, r.builder().Select(schema.ResponsePromptID).
		From(entsql.Table(schema.ResponseTable)).
		Where(entsql.And(
			entsql.EQ(schema.ResponseRespondentID, respondentID),
			entsql.EQ(schema.ResponsePromptKind, string(RefPeerResponse)),
		)))
}

// AbandonStale abandons the respondent's pending responses created before
// before, except keepID.
func (r *EntResponse) AbandonStale(ctx context.Context, respondentID, keepID int64, before time.Time) (int64, error) {
	return r.abandon(ctx, entsql.And(
		entsql.EQ(schema.ResponseRespondentID, respondentID),
		entsql.NEQ(schema.ResponseID, keepID),
		entsql.EQ(schema.ResponseState, string(StatePending)),
		entsql.LT(schema.ResponseCreatedAt, before.UTC()),
	))
}

// SweepPending abandons every pending response created before before.
func (r *EntResponse) SweepPending(ctx context.Context, before time.Time) (int64, error) {
	return r.abandon(ctx, entsql.And(
		entsql.EQ(schema.ResponseState, string(StatePending)),
		entsql.LT(schema.ResponseCreatedAt, before.UTC()),
	))
}

func (r *EntResponse) LinkSibling(ctx context.Context, id int64, kind string, siblingID int64) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	q, args := r.builder().Update(schema.ResponseTable).
		Set(schema.ResponseSiblingKind, kind).
		Set(schema.ResponseSiblingID, siblingID).
		Set(schema.ResponseUpdatedAt, r.now()).
		Where(entsql.EQ(schema.ResponseID, id)).
		Query()
	var res stdsql.Result
	if err := r.drv.Exec(ctx, q, args, &res); err != nil {
		return err
	}
	return expectAffected(res)
}

func (r *EntResponse) abandon(ctx context.Context, where *entsql.Predicate) (int64, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	q, args := r.builder().Update(schema.ResponseTable).
		Set(schema.ResponseState, string(StateAbandoned)).
		Set(schema.ResponseUpdatedAt, r.now()).
		Where(where).
		Query()
	var res stdsql.Result
	if err := r.drv.Exec(ctx, q, args, &res); err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *EntResponse) latest(ctx context.Context, where *entsql.Predicate, orderBy string) (*Response, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	out, err := queryResponses(ctx, r.drv, r.selectResponses().
		Where(where).
		OrderBy(entsql.Desc(orderBy), entsql.Desc(schema.ResponseID)).
		Limit(1))
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out[0], nil
}

func (r *EntResponse) findByPrompt(ctx context.Context, eq dialect.ExecQuerier, respondentID int64, ref PromptRef) (int64, error) {
	ids, err := selectIDs(ctx, eq, r.builder().Select(schema.ResponseID).
		From(entsql.Table(schema.ResponseTable)).
		Where(entsql.And(
			entsql.EQ(schema.ResponseRespondentID, respondentID),
			entsql.EQ(schema.ResponsePromptKind, string(ref.Kind)),
			entsql.EQ(schema.ResponsePromptID, ref.ID),
		)))
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, ErrNotFound
	}
	return ids[0], nil
}

// checkReference enforces what the two-column prompt reference cannot: a
// question must exist, a peer comment must be someone else's recorded answer.
func (r *EntResponse) checkReference(ctx context.Context, t tx.Tx, respondentID int64, ref PromptRef) error {
	switch ref.Kind {
	case RefQuestion:
		n, err := count(ctx, t, r.builder().Select(entsql.Count("*")).
			From(entsql.Table(schema.PromptTable)).
			Where(entsql.And(
				entsql.EQ(schema.PromptID, ref.ID),
				entsql.EQ(schema.PromptKind, string(PromptQuestion)),
			)))
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: question %d", ErrInvalidReference, ref.ID)
		}
	case RefPeerResponse:
		target, err := getResponse(ctx, t, r.builder(), ref.ID)
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: response %d", ErrInvalidReference, ref.ID)
		}
		if err != nil {
			return err
		}
		if target.Recording == "" || target.State != StateComplete || target.RespondentID == respondentID {
			return fmt.Errorf("%w: response %d is not a peer comment", ErrInvalidReference, ref.ID)
		}
	default:
		return fmt.Errorf("%w: kind %q", ErrInvalidReference, ref.Kind)
	}
	return nil
}

func (r *EntResponse) touchRespondent(ctx context.Context, t tx.Tx, respondentID int64) error {
	q, args := r.builder().Update(schema.RespondentTable).
		Set(schema.RespondentUpdatedAt, r.now()).
		Where(entsql.EQ(schema.RespondentID, respondentID)).
		Query()
	return t.Exec(ctx, q, args, nil)
}

func (r *EntResponse) selectResponses() *entsql.Selector {
	return r.builder().Select(responseColumns...).From(entsql.Table(schema.ResponseTable))
}

func getResponse(ctx context.Context, eq dialect.ExecQuerier, b *entsql.DialectBuilder, id int64) (*Response, error) {
	out, err := queryResponses(ctx, eq, b.Select(responseColumns...).
		From(entsql.Table(schema.ResponseTable)).
		Where(entsql.EQ(schema.ResponseID, id)))
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out[0], nil
}

func queryResponses(ctx context.Context, eq dialect.ExecQuerier, s *entsql.Selector) ([]*Response, error) {
	q, args := s.Query()
	var rows entsql.Rows
	if err := eq.Query(ctx, q, args, &rows); err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Response
	for rows.Next() {
		var (
			resp                           Response
			kind, state                    string
			recording, source, siblingKind stdsql.NullString
			siblingID                      stdsql.NullInt64
		)
		if err := rows.Scan(
			&resp.ID,
			&resp.RespondentID,
			&kind,
			&resp.Prompt.ID,
			&state,
			&recording,
			&source,
			&resp.DurationMs,
			&siblingKind,
			&siblingID,
			&resp.CreatedAt,
			&resp.UpdatedAt,
		); err != nil {
			return nil, err
		}
		resp.Prompt.Kind = RefKind(kind)
		resp.State = ResponseState(state)
		resp.Recording = recording.String
		resp.SourceURL = source.String
		resp.SiblingKind = siblingKind.String
		if siblingID.Valid {
			resp.SiblingID = &siblingID.Int64
		}
		out = append(out, &resp)
	}
	return out, rows.Err()
}
