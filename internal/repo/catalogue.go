package repo

import (
	"context"
	stdsql "database/sql"
	"fmt"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	"malasakit/schema"
)

// ICatalogue reads prompts and questions. Writes exist for seeding only.
type ICatalogue interface {
	GetPrompt(ctx context.Context, key, language string) (*Prompt, error)
	ListQuestions(ctx context.Context, kind QuestionKind, language string) ([]*Question, error)
	CreatePrompt(ctx context.Context, p *Prompt) (int64, error)
	CreateQuestion(ctx context.Context, q *Question) (int64, error)
	CommentPool(ctx context.Context, language string, respondentID int64) ([]int64, error)
	SampleComment(ctx context.Context, language string, respondentID int64, exclude []int64, pick func(n int) int) (*Response, error)
}

type EntCatalogue struct {
	*base
}

var promptColumns = []string{
	schema.PromptID,
	schema.PromptKind,
	schema.PromptKey,
	schema.PromptLanguage,
	schema.PromptAudio,
	schema.PromptTranscript,
	schema.PromptQuestionKind,
	schema.PromptQuestionID,
}

// GetPrompt returns the prompt for key in language, falling back to the
// untagged variant.
func (r *EntCatalogue) GetPrompt(ctx context.Context, key, language string) (*Prompt, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	s := r.builder().Select(promptColumns...).
		From(entsql.Table(schema.PromptTable)).
		Where(entsql.And(
			entsql.EQ(schema.PromptKey, key),
			entsql.In(schema.PromptLanguage, language, ""),
		)).
		OrderBy(entsql.Desc(schema.PromptLanguage)).
		Limit(1)
	questions, err := queryQuestions(ctx, r.drv, s)
	if err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return nil, ErrNotFound
	}
	return &questions[0].Prompt, nil
}

// ListQuestions returns the questions of kind ordered by key. A language
// specific row shadows the untagged row with the same key.
func (r *EntCatalogue) ListQuestions(ctx context.Context, kind QuestionKind, language string) ([]*Question, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	return listQuestions(ctx, r.drv, r.builder(), kind, language)
}

func (r *EntCatalogue) CreatePrompt(ctx context.Context, p *Prompt) (int64, error) {
	return r.insert(ctx, &Question{Prompt: *p})
}

func (r *EntCatalogue) CreateQuestion(ctx context.Context, q *Question) (int64, error) {
	if q.WebQuestionID == nil {
		return 0, fmt.Errorf("create question %q: %w", q.Key, ErrUnlinkedQuestion)
	}
	q.Kind = PromptQuestion
	return r.insert(ctx, q)
}

// CommentPool lists the completed qualitative answers in language that
// respondentID did not record, ordered by id.
func (r *EntCatalogue) CommentPool(ctx context.Context, language string, respondentID int64) ([]int64, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	questions, err := listQuestions(ctx, r.drv, r.builder(), Qualitative, language)
	if err != nil || len(questions) == 0 {
		return nil, err
	}
	ids := make([]int64, len(questions))
	for i, q := range questions {
		ids[i] = q.ID
	}
	return selectIDs(ctx, r.drv, r.builder().Select(schema.ResponseID).
		From(entsql.Table(schema.ResponseTable)).
		Where(entsql.And(
			entsql.EQ(schema.ResponsePromptKind, string(RefQuestion)),
			entsql.In(schema.ResponsePromptID, toAny(ids)...),
			entsql.EQ(schema.ResponseState, string(StateComplete)),
			entsql.NotNull(schema.ResponseRecording),
			entsql.NEQ(schema.ResponseRecording, ""),
			entsql.NEQ(schema.ResponseRespondentID, respondentID),
		)).
		OrderBy(entsql.Asc(schema.ResponseID)))
}

// SampleComment draws one comment from the pool minus exclude. pick receives
// the candidate count and returns an index. It returns nil when nothing is left.
func (r *EntCatalogue) SampleComment(ctx context.Context, language string, respondentID int64, exclude []int64, pick func(n int) int) (*Response, error) {
	pool, err := r.CommentPool(ctx, language, respondentID)
	if err != nil {
		return nil, err
	}
	candidates := subtract(pool, exclude)
	if len(candidates) == 0 {
		return nil, nil
	}
	i := pick(len(candidates))
	if i < 0 || i >= len(candidates) {
		return nil, fmt.Errorf("sample index %d out of range [0,%d)", i, len(candidates))
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return getResponse(ctx, r.drv, r.builder(), candidates[i])
}

func (r *EntCatalogue) insert(ctx context.Context, q *Question) (int64, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var transcript, webID any
	if q.Transcript != "" {
		transcript = q.Transcript
	}
	if q.WebQuestionID != nil {
		webID = *q.WebQuestionID
	}
	query, args := r.builder().Insert(schema.PromptTable).
		Columns(
			schema.PromptKind,
			schema.PromptKey,
			schema.PromptLanguage,
			schema.PromptAudio,
			schema.PromptTranscript,
			schema.PromptQuestionKind,
			schema.PromptQuestionID,
			schema.PromptCreatedAt,
		).
		Values(string(q.Kind), q.Key, q.Language, q.Audio, transcript, string(q.QuestionKind), webID, r.now()).
		Query()
	var res stdsql.Result
	if err := r.drv.Exec(ctx, query, args, &res); err != nil {
		return 0, fmt.Errorf("create prompt %q: %w", q.Key, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	q.ID = id
	return id, nil
}

func listQuestions(ctx context.Context, eq dialect.ExecQuerier, b *entsql.DialectBuilder, kind QuestionKind, language string) ([]*Question, error) {
	s := b.Select(promptColumns...).
		From(entsql.Table(schema.PromptTable)).
		Where(entsql.And(
			entsql.EQ(schema.PromptKind, string(PromptQuestion)),
			entsql.EQ(schema.PromptQuestionKind, string(kind)),
			entsql.In(schema.PromptLanguage, language, ""),
		)).
		OrderBy(entsql.Asc(schema.PromptKey), entsql.Desc(schema.PromptLanguage))
	all, err := queryQuestions(ctx, eq, s)
	if err != nil {
		return nil, err
	}
	out := make([]*Question, 0, len(all))
	for _, q := range all {
		if n := len(out); n > 0 && out[n-1].Key == q.Key {
			continue
		}
		out = append(out, q)
	}
	return out, nil
}

func queryQuestions(ctx context.Context, eq dialect.ExecQuerier, s *entsql.Selector) ([]*Question, error) {
	q, args := s.Query()
	var rows entsql.Rows
	if err := eq.Query(ctx, q, args, &rows); err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Question
	for rows.Next() {
		var (
			question    Question
			kind, qkind string
			transcript  stdsql.NullString
			webID       stdsql.NullInt64
		)
		if err := rows.Scan(
			&question.ID,
			&kind,
			&question.Key,
			&question.Language,
			&question.Audio,
			&transcript,
			&qkind,
			&webID,
		); err != nil {
			return nil, err
		}
		question.Kind = PromptKind(kind)
		question.QuestionKind = QuestionKind(qkind)
		question.Transcript = transcript.String
		if webID.Valid {
			question.WebQuestionID = &webID.Int64
		}
		out = append(out, &question)
	}
	return out, rows.Err()
}
