package features

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	repo "malasakit/internal/repo"
	sv "malasakit/internal/service"
	"malasakit/internal/session"
	"malasakit/internal/twiml"
	"malasakit/internal/utils/testdb"
)

type collectingPublisher struct {
	mu   sync.Mutex
	jobs []RecordingAttached
}

func (p *collectingPublisher) EnqueueJob(logger *zap.Logger, job RecordingAttached) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.jobs = append(p.jobs, job)
	return true
}

type env struct {
	t      *testing.T
	survey *Survey
	repo   *repo.Repository
	binder session.Binder
	root   string
	audio  *httptest.Server
	events *collectingPublisher

	webQuestions int64
}

func newEnv(t *testing.T, configure func(*Config)) *env {
	t.Helper()

	audio := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/missing"):
			http.NotFound(w, r)
		case strings.HasPrefix(r.URL.Path, "/slow"):
			<-r.Context().Done()
		default:
			w.Header().Set("Content-Type", "audio/wav")
			w.Write([]byte("RIFF" + r.URL.Path))
		}
	}))
	t.Cleanup(audio.Close)

	cfg := DefaultConfig()
	if configure != nil {
		configure(&cfg)
	}

	root := t.TempDir()
	r := repo.New(testdb.Open(t), time.Second)
	binder := session.Memory(time.Minute)
	media := sv.NewMediaStore(&sv.MediaConfig{Root: root, BaseURL: "http://media.test"}, zap.NewNop())
	fetcher := sv.NewRecordingClient(&sv.RecordingConfig{Timeout: 300 * time.Millisecond}, zap.NewNop())
	events := &collectingPublisher{}

	s := New(r, binder, fetcher, media, events, &cfg)
	s.pick = func(n int) int { return 0 }

	return &env{t: t, survey: s, repo: r, binder: binder, root: root, audio: audio, events: events}
}

func (e *env) prompt(key string) {
	e.t.Helper()
	_, err := e.repo.Catalogue.CreatePrompt(context.Background(), &repo.Prompt{
		Kind:  repo.PromptInstructions,
		Key:   key,
		Audio: sv.PromptPath(sv.InstructionsDir, key),
	})
	if err != nil {
		e.t.Fatalf("seed prompt %s: %v", key, err)
	}
}

func (e *env) question(kind repo.QuestionKind, key string) *repo.Question {
	e.t.Helper()
	e.webQuestions++
	webID := e.webQuestions
	q := &repo.Question{
		Prompt:        repo.Prompt{Key: key, Audio: sv.PromptPath(sv.QuestionsDir, key)},
		QuestionKind:  kind,
		WebQuestionID: &webID,
	}
	if _, err := e.repo.Catalogue.CreateQuestion(context.Background(), q); err != nil {
		e.t.Fatalf("seed question %s: %v", key, err)
	}
	return q
}

// comment stores a completed answer to q from a fresh respondent.
func (e *env) comment(q *repo.Question, name string) int64 {
	e.t.Helper()
	ctx := context.Background()
	owner, err := e.repo.Respondent.Create(ctx, "en")
	if err != nil {
		e.t.Fatal(err)
	}
	id, _, err := e.repo.Response.CreatePlaceholder(ctx, owner, repo.PromptRef{Kind: repo.RefQuestion, ID: q.ID})
	if err != nil {
		e.t.Fatal(err)
	}
	if _, err := e.repo.Response.AttachRecording(ctx, id, "responses/"+name+".wav", "http://provider/"+name, 0); err != nil {
		e.t.Fatal(err)
	}
	return id
}

func (e *env) respondentFor(sid string) int64 {
	e.t.Helper()
	id, ok, err := e.binder.Resolve(context.Background(), sid)
	if err != nil || !ok {
		e.t.Fatalf("call %s not bound: %v", sid, err)
	}
	return id
}

func (e *env) responses(respondentID int64) []*repo.Response {
	e.t.Helper()
	out, err := e.repo.Response.ListByRespondent(context.Background(), respondentID)
	if err != nil {
		e.t.Fatal(err)
	}
	return out
}

func expectVerbs(t *testing.T, doc *twiml.Response, want ...string) {
	t.Helper()
	if got := doc.Verbs(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected verbs %v, got %v\n%s", want, got, doc)
	}
}

func redirectTo(t *testing.T, doc *twiml.Response) string {
	t.Helper()
	last, ok := doc.Children[len(doc.Children)-1].(*twiml.Redirect)
	if !ok {
		t.Fatalf("document does not end in a redirect:\n%s", doc)
	}
	return last.URL
}

func TestParseLanguages(t *testing.T) {
	got := ParseLanguages("en:English, TL:Tagalog,ceb")
	want := []Language{{"en", "English"}, {"tl", "Tagalog"}, {"ceb", "ceb"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v", got)
	}

	cfg := DefaultConfig()
	if cfg.Language("TL") != "tl" || cfg.Language("fr") != "en" || cfg.Language("") != "en" {
		t.Fatal("language fallback broken")
	}
}

func TestLandingWithoutWelcomeHangsUp(t *testing.T) {
	e := newEnv(t, nil)
	doc := e.survey.Landing(context.Background(), &Call{Sid: "C6"})
	expectVerbs(t, doc, "Say", "Hangup")

	if _, ok, _ := e.binder.Resolve(context.Background(), "C6"); ok {
		t.Fatal("call should not be bound")
	}
	if _, err := e.repo.Respondent.Get(context.Background(), 1); err != repo.ErrNotFound {
		t.Fatalf("no respondent should exist, got %v", err)
	}
}

func TestLanding(t *testing.T) {
	e := newEnv(t, nil)
	e.prompt(PromptWelcome)
	e.prompt(PromptQuantitativeIntro)

	doc := e.survey.Landing(context.Background(), &Call{Sid: "C1", Language: "tl"})
	expectVerbs(t, doc, "Play", "Play", "Redirect")
	if got := redirectTo(t, doc); got != "/feature-phone/quantitative-questions/" {
		t.Fatalf("unexpected redirect %s", got)
	}
	if play := doc.Children[0].(*twiml.Play); play.URL != "http://media.test/instructions/welcome.mp3" {
		t.Fatalf("unexpected welcome url %s", play.URL)
	}

	r, err := e.repo.Respondent.Get(context.Background(), e.respondentFor("C1"))
	if err != nil {
		t.Fatal(err)
	}
	if r.Language != "tl" || r.Completed {
		t.Fatalf("unexpected respondent %+v", r)
	}
}

func TestAskIsDeterministic(t *testing.T) {
	e := newEnv(t, nil)
	e.prompt(PromptWelcome)
	e.question(repo.Quantitative, "q2")
	first := e.question(repo.Quantitative, "q1")
	ctx := context.Background()

	e.survey.Landing(ctx, &Call{Sid: "C1"})
	a := e.survey.AskQuantitative(ctx, &Call{Sid: "C1"})
	b := e.survey.AskQuantitative(ctx, &Call{Sid: "C1"})
	expectVerbs(t, a, "Play", "Record", "Redirect")
	if a.String() != b.String() {
		t.Fatalf("re-entering ask changed the prompt:\n%s\n%s", a, b)
	}
	if play := a.Children[0].(*twiml.Play); play.URL != "http://media.test/"+first.Audio {
		t.Fatalf("expected first question by key, got %s", play.URL)
	}
	rec := a.Children[1].(*twiml.Record)
	if rec.MaxLength != 3 || rec.Action != "/feature-phone/process-recording/quantitative-questions/" {
		t.Fatalf("unexpected record %+v", rec)
	}

	if got := e.responses(e.respondentFor("C1")); len(got) != 1 {
		t.Fatalf("expected a single placeholder, got %d", len(got))
	}
}

func TestFullSurvey(t *testing.T) {
	e := newEnv(t, nil)
	e.prompt(PromptWelcome)
	e.question(repo.Quantitative, "q1")
	e.question(repo.Quantitative, "q2")
	e.question(repo.Qualitative, "open")
	ctx := context.Background()
	call := func(url string) *Call { return &Call{Sid: "C1", RecordingURL: url} }

	redirectTo(t, e.survey.Landing(ctx, call("")))
	for i, url := range []string{"/r1", "/r2"} {
		expectVerbs(t, e.survey.AskQuantitative(ctx, call("")), "Play", "Record", "Redirect")
		doc := e.survey.Ingest(ctx, call(e.audio.URL+url), StateQuantitative)
		if got := redirectTo(t, doc); got != "/feature-phone/quantitative-questions/" {
			t.Fatalf("ingest %d: unexpected redirect %s", i, got)
		}
	}
	if got := redirectTo(t, e.survey.AskQuantitative(ctx, call(""))); got != "/feature-phone/rate-comments/" {
		t.Fatalf("expected rate-comments, got %s", got)
	}
	if got := redirectTo(t, e.survey.RateComment(ctx, call(""))); got != "/feature-phone/qualitative-questions/" {
		t.Fatalf("expected qualitative, got %s", got)
	}
	rec := e.survey.AskQualitative(ctx, call(""))
	if r := rec.Children[1].(*twiml.Record); r.MaxLength != 10 {
		t.Fatalf("qualitative record length %d", r.MaxLength)
	}
	e.survey.Ingest(ctx, call(e.audio.URL+"/r3"), StateQualitative)
	if got := redirectTo(t, e.survey.AskQualitative(ctx, call(""))); got != "/feature-phone/end/" {
		t.Fatalf("expected end, got %s", got)
	}
	expectVerbs(t, e.survey.End(ctx, call("")), "Say", "Hangup")

	// End forgets the binding, so look the respondent up through the events.
	if len(e.events.jobs) != 3 {
		t.Fatalf("expected 3 events, got %d", len(e.events.jobs))
	}
	respondentID := e.events.jobs[0].RespondentID
	responses := e.responses(respondentID)
	if len(responses) != 3 {
		t.Fatalf("expected 3 responses, got %d", len(responses))
	}
	for _, r := range responses {
		if r.State != repo.StateComplete {
			t.Fatalf("response %d is %s", r.ID, r.State)
		}
		info, err := os.Stat(filepath.Join(e.root, filepath.FromSlash(r.Recording)))
		if err != nil || info.Size() == 0 {
			t.Fatalf("recording %s missing: %v", r.Recording, err)
		}
	}
	respondent, err := e.repo.Respondent.Get(ctx, respondentID)
	if err != nil || !respondent.Completed {
		t.Fatalf("respondent not completed: %+v %v", respondent, err)
	}
}

func TestNoQuestionsRunsStraightToEnd(t *testing.T) {
	e := newEnv(t, nil)
	e.prompt(PromptWelcome)
	e.prompt(PromptEnd)
	ctx := context.Background()
	call := &Call{Sid: "C0"}

	steps := []struct {
		run  func() *twiml.Response
		next string
	}{
		{func() *twiml.Response { return e.survey.Landing(ctx, call) }, "/feature-phone/quantitative-questions/"},
		{func() *twiml.Response { return e.survey.AskQuantitative(ctx, call) }, "/feature-phone/rate-comments/"},
		{func() *twiml.Response { return e.survey.RateComment(ctx, call) }, "/feature-phone/qualitative-questions/"},
		{func() *twiml.Response { return e.survey.AskQualitative(ctx, call) }, "/feature-phone/end/"},
	}
	for _, step := range steps {
		if got := redirectTo(t, step.run()); got != step.next {
			t.Fatalf("expected %s, got %s", step.next, got)
		}
	}
	expectVerbs(t, e.survey.End(ctx, call), "Play", "Hangup")
	if got := e.responses(1); len(got) != 0 {
		t.Fatalf("expected no responses, got %d", len(got))
	}
}

func TestSessionLostRecoversInPlace(t *testing.T) {
	e := newEnv(t, nil)
	e.question(repo.Quantitative, "q1")

	doc := e.survey.AskQuantitative(context.Background(), &Call{Sid: "C2"})
	expectVerbs(t, doc, "Play", "Record", "Redirect")
	if got := e.responses(e.respondentFor("C2")); len(got) != 1 {
		t.Fatalf("expected placeholder for recovered respondent, got %d", len(got))
	}
}

func TestDuplicateIngestIsIdempotent(t *testing.T) {
	e := newEnv(t, nil)
	e.prompt(PromptWelcome)
	e.question(repo.Quantitative, "q1")
	e.question(repo.Quantitative, "q2")
	ctx := context.Background()

	e.survey.Landing(ctx, &Call{Sid: "C3"})
	e.survey.AskQuantitative(ctx, &Call{Sid: "C3"})
	call := &Call{Sid: "C3", RecordingURL: e.audio.URL + "/r1"}
	first := e.survey.Ingest(ctx, call, StateQuantitative)
	second := e.survey.Ingest(ctx, call, StateQuantitative)
	if first.String() != second.String() {
		t.Fatalf("duplicate ingest changed output:\n%s\n%s", first, second)
	}

	responses := e.responses(e.respondentFor("C3"))
	if len(responses) != 1 || responses[0].State != repo.StateComplete {
		t.Fatalf("expected one complete response, got %+v", responses)
	}
	if len(e.events.jobs) != 1 {
		t.Fatalf("expected one event, got %d", len(e.events.jobs))
	}
}

func TestIngestWithoutAudioAdvances(t *testing.T) {
	cases := []struct {
		name string
		url  func(e *env) string
	}{
		{"not found", func(e *env) string { return e.audio.URL + "/missing" }},
		{"timeout", func(e *env) string { return e.audio.URL + "/slow" }},
		{"silence", func(e *env) string { return "" }},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			e := newEnv(t, nil)
			e.prompt(PromptWelcome)
			e.question(repo.Quantitative, "q1")
			ctx := context.Background()

			e.survey.Landing(ctx, &Call{Sid: "C5"})
			e.survey.AskQuantitative(ctx, &Call{Sid: "C5"})
			doc := e.survey.Ingest(ctx, &Call{Sid: "C5", RecordingURL: c.url(e)}, StateQuantitative)
			expectVerbs(t, doc, "Say", "Redirect")
			if got := redirectTo(t, doc); got != "/feature-phone/quantitative-questions/" {
				t.Fatalf("unexpected redirect %s", got)
			}

			responses := e.responses(e.respondentFor("C5"))
			if len(responses) != 1 || responses[0].State != repo.StateAbandoned || responses[0].Recording != "" {
				t.Fatalf("expected abandoned empty placeholder, got %+v", responses[0])
			}
			if got := redirectTo(t, e.survey.AskQuantitative(ctx, &Call{Sid: "C5"})); got != "/feature-phone/rate-comments/" {
				t.Fatalf("abandoned question should not be asked again, got %s", got)
			}
		})
	}
}

func TestIngestRejectsUnknownNextState(t *testing.T) {
	e := newEnv(t, nil)
	expectVerbs(t, e.survey.Ingest(context.Background(), &Call{Sid: "C9"}, "landing"), "Say", "Hangup")
}

func TestRateCommentSkipsSmallPool(t *testing.T) {
	e := newEnv(t, nil)
	e.prompt(PromptWelcome)
	e.prompt(PromptRate)
	open := e.question(repo.Qualitative, "open")
	e.comment(open, "only")
	ctx := context.Background()

	e.survey.Landing(ctx, &Call{Sid: "C4"})
	doc := e.survey.RateComment(ctx, &Call{Sid: "C4"})
	if got := redirectTo(t, doc); got != "/feature-phone/qualitative-questions/" {
		t.Fatalf("expected qualitative, got %s", got)
	}
	if got := e.responses(e.respondentFor("C4")); len(got) != 0 {
		t.Fatalf("no placeholder expected, got %d", len(got))
	}
}

func TestRateCommentPresentsEachCommentOnce(t *testing.T) {
	e := newEnv(t, nil)
	e.prompt(PromptWelcome)
	e.prompt(PromptRate)
	open := e.question(repo.Qualitative, "open")
	a := e.comment(open, "a")
	b := e.comment(open, "b")
	e.comment(open, "c")
	ctx := context.Background()

	e.survey.Landing(ctx, &Call{Sid: "C7"})
	var heard []string
	for i := 0; i < 2; i++ {
		doc := e.survey.RateComment(ctx, &Call{Sid: "C7"})
		expectVerbs(t, doc, "Play", "Play", "Record", "Redirect")
		heard = append(heard, doc.Children[1].(*twiml.Play).URL)
		e.survey.Ingest(ctx, &Call{Sid: "C7", RecordingURL: e.audio.URL + "/rating"}, StateRateComments)
	}
	want := []string{"http://media.test/responses/a.wav", "http://media.test/responses/b.wav"}
	if !reflect.DeepEqual(heard, want) {
		t.Fatalf("expected %v, got %v", want, heard)
	}

	if got := redirectTo(t, e.survey.RateComment(ctx, &Call{Sid: "C7"})); got != "/feature-phone/qualitative-questions/" {
		t.Fatalf("rating limit should end the phase, got %s", got)
	}

	ratings := e.responses(e.respondentFor("C7"))
	if len(ratings) != 2 || ratings[0].Prompt.ID != a || ratings[1].Prompt.ID != b {
		t.Fatalf("unexpected ratings %+v", ratings)
	}
	for _, r := range ratings {
		if r.Prompt.Kind != repo.RefPeerResponse || r.State != repo.StateComplete {
			t.Fatalf("unexpected rating %+v", r)
		}
	}
}

func TestRateCommentNeedsRatePrompt(t *testing.T) {
	e := newEnv(t, nil)
	e.prompt(PromptWelcome)
	open := e.question(repo.Qualitative, "open")
	e.comment(open, "a")
	e.comment(open, "b")
	ctx := context.Background()

	e.survey.Landing(ctx, &Call{Sid: "C8"})
	expectVerbs(t, e.survey.RateComment(ctx, &Call{Sid: "C8"}), "Say", "Hangup")
	if got := e.responses(e.respondentFor("C8")); len(got) != 0 {
		t.Fatalf("no placeholder expected, got %d", len(got))
	}
}

func TestSweeper(t *testing.T) {
	e := newEnv(t, func(c *Config) { c.SweepAge = time.Minute })
	e.prompt(PromptWelcome)
	e.question(repo.Quantitative, "q1")
	ctx := context.Background()

	e.survey.Landing(ctx, &Call{Sid: "C10"})
	e.survey.AskQuantitative(ctx, &Call{Sid: "C10"})
	respondentID := e.respondentFor("C10")

	sw := NewSweeper(e.repo, &e.survey.config, zap.NewNop())
	if a, d, err := sw.Sweep(ctx); err != nil || a != 0 || d != 0 {
		t.Fatalf("fresh call swept: %d %d %v", a, d, err)
	}

	sw.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	a, d, err := sw.Sweep(ctx)
	if err != nil || a != 1 || d != 1 {
		t.Fatalf("expected 1 abandoned and 1 deleted, got %d %d %v", a, d, err)
	}
	if _, err := e.repo.Respondent.Get(ctx, respondentID); err != repo.ErrNotFound {
		t.Fatalf("respondent should be gone, got %v", err)
	}

	// The next callback of the dropped call starts over with a new respondent.
	doc := e.survey.AskQuantitative(ctx, &Call{Sid: "C10"})
	expectVerbs(t, doc, "Play", "Record", "Redirect")
	if e.respondentFor("C10") == respondentID {
		t.Fatal("expected a new respondent")
	}
}

func TestLateDuplicateLeavesNextQuestionUnanswered(t *testing.T) {
	e := newEnv(t, nil)
	e.prompt(PromptWelcome)
	e.question(repo.Quantitative, "q1")
	second := e.question(repo.Quantitative, "q2")
	ctx := context.Background()
	first := &Call{Sid: "C12", RecordingURL: e.audio.URL + "/r1"}

	e.survey.Landing(ctx, &Call{Sid: "C12"})
	e.survey.AskQuantitative(ctx, &Call{Sid: "C12"})
	e.survey.Ingest(ctx, first, StateQuantitative)
	asked := e.survey.AskQuantitative(ctx, &Call{Sid: "C12"})

	doc := e.survey.Ingest(ctx, first, StateQuantitative)
	if got := redirectTo(t, doc); got != "/feature-phone/quantitative-questions/" {
		t.Fatalf("unexpected redirect %s", got)
	}

	responses := e.responses(e.respondentFor("C12"))
	if len(responses) != 2 {
		t.Fatalf("expected 2 responses, got %d", len(responses))
	}
	if r := responses[1]; r.Prompt.ID != second.ID || r.State != repo.StatePending || r.SourceURL != "" {
		t.Fatalf("second question was answered by the redelivery: %+v", r)
	}
	if len(e.events.jobs) != 1 {
		t.Fatalf("expected one event, got %d", len(e.events.jobs))
	}
	again := e.survey.AskQuantitative(ctx, &Call{Sid: "C12"})
	if again.String() != asked.String() {
		t.Fatalf("second question should be asked again:\n%s\n%s", asked, again)
	}
}

func TestIngestEdgePaths(t *testing.T) {
	cases := []struct {
		name    string
		prepare func(e *env)
		url     string
		verbs   []string
		check   func(t *testing.T, e *env)
	}{
		{
			name: "disk write fails",
			prepare: func(e *env) {
				if err := os.WriteFile(filepath.Join(e.root, sv.ResponsesDir), []byte("x"), 0o644); err != nil {
					e.t.Fatal(err)
				}
			},
			url:   "/r1",
			verbs: []string{"Say", "Redirect"},
			check: func(t *testing.T, e *env) {
				responses := e.responses(e.respondentFor("C11"))
				if len(responses) != 1 || responses[0].State != repo.StateAbandoned || responses[0].Recording != "" {
					t.Fatalf("expected abandoned placeholder, got %+v", responses[0])
				}
				if len(e.events.jobs) != 0 {
					t.Fatalf("no event expected, got %d", len(e.events.jobs))
				}
			},
		},
		{
			name: "correction replaces last answer",
			prepare: func(e *env) {
				e.survey.Ingest(context.Background(), &Call{Sid: "C11", RecordingURL: e.audio.URL + "/r1"}, StateQuantitative)
			},
			url:   "/r2",
			verbs: []string{"Redirect"},
			check: func(t *testing.T, e *env) {
				responses := e.responses(e.respondentFor("C11"))
				if len(responses) != 1 {
					t.Fatalf("expected 1 response, got %d", len(responses))
				}
				r := responses[0]
				if r.State != repo.StateComplete || r.SourceURL != e.audio.URL+"/r2" {
					t.Fatalf("answer not replaced: %+v", r)
				}
				body, err := os.ReadFile(filepath.Join(e.root, filepath.FromSlash(r.Recording)))
				if err != nil || !strings.Contains(string(body), "/r2") {
					t.Fatalf("recording not rewritten: %q %v", body, err)
				}
				if len(e.events.jobs) != 2 {
					t.Fatalf("expected 2 events, got %d", len(e.events.jobs))
				}
			},
		},
		{
			name: "storage failure",
			prepare: func(e *env) {
				e.repo.Driver.Close()
			},
			url:   "/r1",
			verbs: []string{"Say", "Hangup"},
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			e := newEnv(t, nil)
			e.prompt(PromptWelcome)
			e.question(repo.Quantitative, "q1")
			ctx := context.Background()

			e.survey.Landing(ctx, &Call{Sid: "C11"})
			e.survey.AskQuantitative(ctx, &Call{Sid: "C11"})
			c.prepare(e)

			doc := e.survey.Ingest(ctx, &Call{Sid: "C11", RecordingURL: e.audio.URL + c.url}, StateQuantitative)
			expectVerbs(t, doc, c.verbs...)
			if c.check != nil {
				c.check(t, e)
			}
		})
	}
}

func TestRepeatedLandingKeepsRespondent(t *testing.T) {
	e := newEnv(t, nil)
	e.prompt(PromptWelcome)
	ctx := context.Background()

	first := e.survey.Landing(ctx, &Call{Sid: "C13", Language: "tl"})
	id := e.respondentFor("C13")
	second := e.survey.Landing(ctx, &Call{Sid: "C13"})
	if first.String() != second.String() {
		t.Fatalf("landing output changed:\n%s\n%s", first, second)
	}
	if got := e.respondentFor("C13"); got != id {
		t.Fatalf("call rebound from %d to %d", id, got)
	}
	if _, err := e.repo.Respondent.Get(ctx, id+1); err != repo.ErrNotFound {
		t.Fatalf("no second respondent expected, got %v", err)
	}
	r, _ := e.repo.Respondent.Get(ctx, id)
	if r.Language != "tl" {
		t.Fatalf("language changed to %q", r.Language)
	}

	// Once the survey ended the same call sid starts a new respondent.
	if err := e.repo.Respondent.MarkCompleted(ctx, id); err != nil {
		t.Fatal(err)
	}
	e.survey.Landing(ctx, &Call{Sid: "C13"})
	if got := e.respondentFor("C13"); got == id {
		t.Fatal("completed respondent should not be reused")
	}
}
