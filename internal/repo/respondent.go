package repo

import (
	"context"
	stdsql "database/sql"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"malasakit/internal/utils/tx"
	"malasakit/schema"
)

type IRespondent interface {
	Create(ctx context.Context, language string) (int64, error)
	Get(ctx context.Context, id int64) (*Respondent, error)
	Delete(ctx context.Context, id int64) error
	MarkCompleted(ctx context.Context, id int64) error
	LinkWebRespondent(ctx context.Context, id, webRespondentID int64) error
	AttachDemographic(ctx context.Context, id int64, field Demographic, recording string) error
	SweepIdle(ctx context.Context, before time.Time) (int64, error)
}

type EntRespondent struct {
	*base
}

var respondentColumns = []string{
	schema.RespondentID,
	schema.RespondentLanguage,
	schema.RespondentAgeRecording,
	schema.RespondentGenderRecording,
	schema.RespondentLocationRecording,
	schema.RespondentWebRespondentID,
	schema.RespondentCompleted,
	schema.RespondentCreatedAt,
	schema.RespondentUpdatedAt,
}

// Create inserts an anonymous respondent and returns its id.
func (r *EntRespondent) Create(ctx context.Context, language string) (int64, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	now := r.now()
	q, args := r.builder().Insert(schema.RespondentTable).
		Columns(schema.RespondentLanguage, schema.RespondentCompleted, schema.RespondentCreatedAt, schema.RespondentUpdatedAt).
		Values(language, false, now, now).
		Query()
	var res stdsql.Result
	if err := r.drv.Exec(ctx, q, args, &res); err != nil {
		return 0, fmt.Errorf("create respondent: %w", err)
	}
	return res.LastInsertId()
}

func (r *EntRespondent) Get(ctx context.Context, id int64) (*Respondent, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	q, args := r.builder().Select(respondentColumns...).
		From(entsql.Table(schema.RespondentTable)).
		Where(entsql.EQ(schema.RespondentID, id)).
		Query()
	var rows entsql.Rows
	if err := r.drv.Query(ctx, q, args, &rows); err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	var (
		resp                  Respondent
		age, gender, location stdsql.NullString
		webID                 stdsql.NullInt64
	)
	if err := rows.Scan(&resp.ID, &resp.Language, &age, &gender, &location, &webID, &resp.Completed, &resp.CreatedAt, &resp.UpdatedAt); err != nil {
		return nil, err
	}
	resp.AgeRecording, resp.GenderRecording, resp.LocationRecording = age.String, gender.String, location.String
	if webID.Valid {
		resp.WebRespondentID = &webID.Int64
	}
	return &resp, nil
}

// Delete removes the respondent and, through the foreign key, its responses.
func (r *EntRespondent) Delete(ctx context.Context, id int64) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	return tx.WithTransaction(ctx, r.drv, func(ctx context.Context, t tx.Tx) error {
		return r.deleteIDs(ctx, t, []any{id})
	})
}

func (r *EntRespondent) MarkCompleted(ctx context.Context, id int64) error {
	return r.update(ctx, id, schema.RespondentCompleted, true)
}

func (r *EntRespondent) LinkWebRespondent(ctx context.Context, id, webRespondentID int64) error {
	return r.update(ctx, id, schema.RespondentWebRespondentID, webRespondentID)
}

var demographicColumns = map[Demographic]string{
	DemographicAge:      schema.RespondentAgeRecording,
	DemographicGender:   schema.RespondentGenderRecording,
	DemographicLocation: schema.RespondentLocationRecording,
}

// AttachDemographic stores the media path of a demographic recording. It is
// allowed after the survey ended.
func (r *EntRespondent) AttachDemographic(ctx context.Context, id int64, field Demographic, recording string) error {
	column, ok := demographicColumns[field]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownDemographic, field)
	}
	return r.update(ctx, id, column, recording)
}

// SweepIdle deletes respondents that never finished, saw no activity since
// before and have no completed response.
func (r *EntRespondent) SweepIdle(ctx context.Context, before time.Time) (int64, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var deleted int64
	err := tx.WithTransaction(ctx, r.drv, func(ctx context.Context, t tx.Tx) error {
		idle, err := selectIDs(ctx, t, r.builder().Select(schema.RespondentID).
			From(entsql.Table(schema.RespondentTable)).
			Where(entsql.And(
				entsql.EQ(schema.RespondentCompleted, false),
				entsql.LT(schema.RespondentUpdatedAt, before.UTC()),
			)))
		if err != nil || len(idle) == 0 {
			return err
		}
		kept, err := selectIDs(ctx, t, r.builder().Select(schema.ResponseRespondentID).
			From(entsql.Table(schema.ResponseTable)).
			Where(entsql.And(
				entsql.In(schema.ResponseRespondentID, toAny(idle)...),
				entsql.EQ(schema.ResponseState, string(StateComplete)),
			)))
		if err != nil {
			return err
		}
		victims := subtract(idle, kept)
		if len(victims) == 0 {
			return nil
		}
		deleted = int64(len(victims))
		return r.deleteIDs(ctx, t, toAny(victims))
	})
	return deleted, err
}

func (r *EntRespondent) deleteIDs(ctx context.Context, t tx.Tx, ids []any) error {
	q, args := r.builder().Delete(schema.ResponseTable).
		Where(entsql.In(schema.ResponseRespondentID, ids...)).
		Query()
	if err := t.Exec(ctx, q, args, nil); err != nil {
		return fmt.Errorf("delete responses: %w", err)
	}
	q, args = r.builder().Delete(schema.RespondentTable).
		Where(entsql.In(schema.RespondentID, ids...)).
		Query()
	if err := t.Exec(ctx, q, args, nil); err != nil {
		return fmt.Errorf("delete respondents: %w", err)
	}
	return nil
}

func (r *EntRespondent) update(ctx context.Context, id int64, column string, value any) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	q, args := r.builder().Update(schema.RespondentTable).
		Set(column, value).
		Set(schema.RespondentUpdatedAt, r.now()).
		Where(entsql.EQ(schema.RespondentID, id)).
		Query()
	var res stdsql.Result
	if err := r.drv.Exec(ctx, q, args, &res); err != nil {
		return err
	}
	return expectAffected(res)
}
