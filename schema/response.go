package schema

import (
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

const (
	ResponseTable = "feature_phone_responses"

	ResponseID           = "id"
	ResponseRespondentID = "respondent_id"
	ResponsePromptKind   = "prompt_kind"
	ResponsePromptID     = "prompt_id"
	ResponseState        = "state"
	ResponseRecording    = "recording"
	ResponseSourceURL    = "source_url"
	ResponseDurationMs   = "duration_ms"
	ResponseSiblingKind  = "sibling_kind"
	ResponseSiblingID    = "sibling_id"
	ResponseCreatedAt    = "created_at"
	ResponseUpdatedAt    = "updated_at"
)

var responseColumns = []*schema.Column{
	{Name: ResponseID, Type: field.TypeInt64, Increment: true},
	{Name: ResponseRespondentID, Type: field.TypeInt64},
	{Name: ResponsePromptKind, Type: field.TypeEnum, Enums: []string{"question", "peer-response"}},
	{Name: ResponsePromptID, Type: field.TypeInt64},
	{Name: ResponseState, Type: field.TypeEnum, Enums: []string{"pending", "complete", "abandoned"}, Default: "pending"},
	{Name: ResponseRecording, Type: field.TypeString, Nullable: true},
	{Name: ResponseSourceURL, Type: field.TypeString, Size: 1024, Nullable: true},
	{Name: ResponseDurationMs, Type: field.TypeInt64, Default: 0},
	{Name: ResponseSiblingKind, Type: field.TypeString, Size: 32, Nullable: true},
	{Name: ResponseSiblingID, Type: field.TypeInt64, Nullable: true},
	{Name: ResponseCreatedAt, Type: field.TypeTime},
	{Name: ResponseUpdatedAt, Type: field.TypeTime},
}

// Responses holds answers and peer ratings. prompt_kind/prompt_id is a tagged
// reference to either a question prompt or another response; integrity is
// enforced by the repository.
var Responses = &schema.Table{
	Name:       ResponseTable,
	Columns:    responseColumns,
	PrimaryKey: []*schema.Column{responseColumns[0]},
	ForeignKeys: []*schema.ForeignKey{
		{
			Symbol:     "feature_phone_responses_respondent",
			Columns:    []*schema.Column{responseColumns[1]},
			RefColumns: []*schema.Column{respondentColumns[0]},
			OnDelete:   schema.Cascade,
		},
	},
	Indexes: []*schema.Index{
		{
			Name:    "response_respondent_prompt",
			Unique:  true,
			Columns: []*schema.Column{responseColumns[1], responseColumns[2], responseColumns[3]},
		},
		{
			Name:    "response_state_created_at",
			Columns: []*schema.Column{responseColumns[4], responseColumns[10]},
		},
	},
}

func init() {
	Responses.ForeignKeys[0].RefTable = Respondents
}
