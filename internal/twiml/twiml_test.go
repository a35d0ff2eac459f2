package twiml

import (
	"bytes"
	"reflect"
	"strings"
	"testing"
)

func TestMarshal(t *testing.T) {
	doc := New().
		Play("http://media/instructions/welcome.mp3").
		Record(3, "/feature-phone/process-recording/quantitative-questions/", 5).
		Redirect("/feature-phone/process-recording/quantitative-questions/")

	out, err := doc.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	s := string(out)
	for _, want := range []string{
		`<?xml version="1.0" encoding="UTF-8"?>`,
		`<Response><Play>http://media/instructions/welcome.mp3</Play>`,
		`<Record action="/feature-phone/process-recording/quantitative-questions/" method="POST" maxLength="3" timeout="5" playBeep="true"></Record>`,
		`<Redirect method="POST">/feature-phone/process-recording/quantitative-questions/</Redirect></Response>`,
	} {
		if !strings.Contains(s, want) {
			t.Fatalf("missing %q in\n%s", want, s)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	docs := []*Response{
		New(),
		New().Say("Salamat & paalam <3").Pause(1).Hangup(),
		New().Play("http://m/q.mp3").Record(10, "/r/", 5).Redirect("/r/"),
	}
	for _, doc := range docs {
		first, err := doc.Marshal()
		if err != nil {
			t.Fatal(err)
		}
		parsed, err := Parse(first)
		if err != nil {
			t.Fatalf("parse %s: %v", first, err)
		}
		if !reflect.DeepEqual(parsed.Verbs(), doc.Verbs()) {
			t.Fatalf("verbs differ: %v vs %v", parsed.Verbs(), doc.Verbs())
		}
		second, err := parsed.Marshal()
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(first, second) {
			t.Fatalf("round trip changed document:\n%s\n%s", first, second)
		}
	}
}

func TestParseRejectsUnknownVerbs(t *testing.T) {
	if _, err := Parse([]byte(`<Response><Dial>123</Dial></Response>`)); err == nil {
		t.Fatal("expected error for unsupported verb")
	}
	if _, err := Parse([]byte(`<Document/>`)); err == nil {
		t.Fatal("expected error for wrong root")
	}
}

func TestParseReadsAttributes(t *testing.T) {
	doc, err := Parse([]byte(`<Response><Record action="/next/" maxLength="10" timeout="5"/><Say>bye</Say></Response>`))
	if err != nil {
		t.Fatal(err)
	}
	rec, ok := doc.Children[0].(*Record)
	if !ok {
		t.Fatalf("expected *Record, got %T", doc.Children[0])
	}
	if rec.Action != "/next/" || rec.MaxLength != 10 || rec.Timeout != 5 {
		t.Fatalf("unexpected record %+v", rec)
	}
	if say := doc.Children[1].(*Say); say.Text != "bye" {
		t.Fatalf("unexpected say %q", say.Text)
	}
}
