package features

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	logging "malasakit/pkg/logger/pkg"
)

const EventRecordingAttached = "recording.attached"

// RecordingAttached tells offline processing that an answer has audio.
type RecordingAttached struct {
	ResponseID   int64
	RespondentID int64
	PromptKind   string
	PromptID     int64
	Recording    string
	DurationMs   int64
	EnqueuedAt   time.Time
}

func (e RecordingAttached) Payload() ([]byte, error) {
	msg, err := structpb.NewStruct(map[string]any{
		"event":        EventRecordingAttached,
		"responseId":   e.ResponseID,
		"respondentId": e.RespondentID,
		"promptKind":   e.PromptKind,
		"promptId":     e.PromptID,
		"recording":    e.Recording,
		"durationMs":   e.DurationMs,
	})
	if err != nil {
		return nil, err
	}
	return protojson.Marshal(msg)
}

// ReceiveLinked applies a response.linked message: offline processing has
// matched a phone response to its web-survey counterpart.
func (s *Survey) ReceiveLinked(ctx context.Context, msg amqp.Delivery) error {
	var body structpb.Struct
	if err := protojson.Unmarshal(msg.Body, &body); err != nil {
		return err
	}
	fields := body.GetFields()

	responseID := int64(fields["responseId"].GetNumberValue())
	siblingKind := fields["siblingKind"].GetStringValue()
	siblingID := int64(fields["siblingId"].GetNumberValue())
	if responseID == 0 || siblingKind == "" || siblingID == 0 {
		return fmt.Errorf("incomplete response.linked message: %s", msg.Body)
	}

	response, err := s.repo.Response.Get(ctx, responseID)
	if err != nil {
		return err
	}
	if err := s.repo.Response.LinkSibling(ctx, responseID, siblingKind, siblingID); err != nil {
		return err
	}
	if v, ok := fields["webRespondentId"]; ok && v.GetNumberValue() > 0 {
		if err := s.repo.Respondent.LinkWebRespondent(ctx, response.RespondentID, int64(v.GetNumberValue())); err != nil {
			return err
		}
	}

	logging.Logger(ctx).Info("Linked response",
		zap.Int64("responseId", responseID),
		zap.String("siblingKind", siblingKind),
		zap.Int64("siblingId", siblingID))
	return nil
}
