package schema

import (
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

const (
	PromptTable = "feature_phone_prompts"

	PromptID           = "id"
	PromptKind         = "kind"
	PromptKey          = "key"
	PromptLanguage     = "language"
	PromptAudio        = "audio"
	PromptTranscript   = "transcript"
	PromptQuestionKind = "question_kind"
	PromptQuestionID   = "question_id"
	PromptCreatedAt    = "created_at"
)

var promptColumns = []*schema.Column{
	{Name: PromptID, Type: field.TypeInt64, Increment: true},
	{Name: PromptKind, Type: field.TypeEnum, Enums: []string{"instructions", "question"}},
	{Name: PromptKey, Type: field.TypeString, Size: 64},
	{Name: PromptLanguage, Type: field.TypeString, Size: 8, Default: ""},
	{Name: PromptAudio, Type: field.TypeString},
	{Name: PromptTranscript, Type: field.TypeString, Size: 2147483647, Nullable: true},
	{Name: PromptQuestionKind, Type: field.TypeString, Size: 16, Default: ""},
	{Name: PromptQuestionID, Type: field.TypeInt64, Nullable: true},
	{Name: PromptCreatedAt, Type: field.TypeTime},
}

// Prompts is the catalogue of narration and question audio. Questions carry
// question_kind and the id of the web-survey question they mirror.
var Prompts = &schema.Table{
	Name:       PromptTable,
	Columns:    promptColumns,
	PrimaryKey: []*schema.Column{promptColumns[0]},
	Indexes: []*schema.Index{
		{
			Name:    "prompt_key_language",
			Unique:  true,
			Columns: []*schema.Column{promptColumns[2], promptColumns[3]},
		},
		{
			Name:    "prompt_kind_question_kind_language",
			Columns: []*schema.Column{promptColumns[1], promptColumns[6], promptColumns[3]},
		},
	},
}
