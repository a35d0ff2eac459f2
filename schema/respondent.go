package schema

import (
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

const (
	RespondentTable = "feature_phone_respondents"

	RespondentID                = "id"
	RespondentLanguage          = "language"
	RespondentAgeRecording      = "age_recording"
	RespondentGenderRecording   = "gender_recording"
	RespondentLocationRecording = "location_recording"
	RespondentWebRespondentID   = "web_respondent_id"
	RespondentCompleted         = "completed"
	RespondentCreatedAt         = "created_at"
	RespondentUpdatedAt         = "updated_at"
)

var respondentColumns = []*schema.Column{
	{Name: RespondentID, Type: field.TypeInt64, Increment: true},
	{Name: RespondentLanguage, Type: field.TypeString, Size: 8, Default: ""},
	{Name: RespondentAgeRecording, Type: field.TypeString, Nullable: true},
	{Name: RespondentGenderRecording, Type: field.TypeString, Nullable: true},
	{Name: RespondentLocationRecording, Type: field.TypeString, Nullable: true},
	{Name: RespondentWebRespondentID, Type: field.TypeInt64, Nullable: true},
	{Name: RespondentCompleted, Type: field.TypeBool, Default: false},
	{Name: RespondentCreatedAt, Type: field.TypeTime},
	{Name: RespondentUpdatedAt, Type: field.TypeTime},
}

// Respondents holds anonymous callers. One row per call.
var Respondents = &schema.Table{
	Name:       RespondentTable,
	Columns:    respondentColumns,
	PrimaryKey: []*schema.Column{respondentColumns[0]},
	Indexes: []*schema.Index{
		{
			Name:    "respondent_completed_updated_at",
			Columns: []*schema.Column{respondentColumns[6], respondentColumns[8]},
		},
	},
}
