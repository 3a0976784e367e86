package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"psychout-service/internal/app"
	"psychout-service/internal/domain"
	"psychout-service/internal/infra/memory"
)

func newTestServer(t *testing.T) (*httptest.Server, *app.GameService, *memory.GameStore) {
	t.Helper()
	store := memory.NewGameStore()
	store.AddTopic("Movies", []domain.Question{
		{QuestionText: "What is the highest-grossing film of 1997?", AnswerText: "Titanic"},
		{QuestionText: "Which film won the first Academy Award for Best Picture?", AnswerText: "Wings"},
		{QuestionText: "What was the first feature-length animated film?", AnswerText: "Snow White and the Seven Dwarfs"},
	})
	repo := memory.NewQuestionRepository(memory.StoreLoader{Store: store}, time.Minute)
	feed := app.NewFeed()
	service := app.NewGameService(store, repo, app.DefaultRules(), feed)
	handler := NewHandler(service, memory.NewSessionStore(), feed)

	server := httptest.NewServer(handler.Router())
	t.Cleanup(server.Close)
	return server, service, store
}

func newPlayerClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &http.Client{Jar: jar}
}

func get(t *testing.T, client *http.Client, url string) string {
	t.Helper()
	resp, err := client.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: status %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(body)
}

func post(t *testing.T, client *http.Client, target string, form url.Values) {
	t.Helper()
	resp, err := client.PostForm(target, form)
	if err != nil {
		t.Fatalf("POST %s: %v", target, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		t.Fatalf("POST %s: status %d", target, resp.StatusCode)
	}
}

func TestFullGameOverHTTP(t *testing.T) {
	server, _, store := newTestServer(t)
	ctx := context.Background()

	operator := newPlayerClient(t)
	post(t, operator, server.URL+"/manage/start_new", url.Values{"topic": {"Movies"}, "num_answers": {"2"}})

	alice := newPlayerClient(t)
	if body := get(t, alice, server.URL+"/"); !strings.Contains(body, "Join") {
		t.Fatalf("expected welcome screen, got: %s", body)
	}
	post(t, alice, server.URL+"/register", url.Values{"name": {"Alice"}})

	bob := newPlayerClient(t)
	post(t, bob, server.URL+"/register", url.Values{"name": {"Bob"}})

	// Registered players land on the open question form.
	if body := get(t, alice, server.URL+"/"); !strings.Contains(body, "open_question") {
		t.Fatalf("expected question form, got: %s", body)
	}

	post(t, alice, server.URL+"/open_question", url.Values{"answer": {"Titanic2"}})
	if body := get(t, alice, server.URL+"/"); !strings.Contains(body, "Hang tight") {
		t.Fatalf("expected waiting screen after answering, got: %s", body)
	}
	post(t, bob, server.URL+"/open_question", url.Values{"answer": {"Titanic3"}})

	// Quota reached: the quiz shows all three slots.
	body := get(t, alice, server.URL+"/")
	if !strings.Contains(body, "Which one is the real answer?") {
		t.Fatalf("expected quiz, got: %s", body)
	}
	if n := strings.Count(body, `name="answer"`); n != 3 {
		t.Fatalf("expected 3 quiz entries, got %d", n)
	}

	game, err := store.ActiveGame(ctx)
	if err != nil {
		t.Fatalf("active game: %v", err)
	}
	questionID := *game.CurrentQuestionID
	answers, _ := store.Answers(ctx, game.ID, questionID)
	players, _ := store.Players(ctx, game.ID)
	var aliceID int64
	for _, p := range players {
		if p.Name == "Alice" {
			aliceID = p.ID
		}
	}
	var aliceSlot int
	taken := map[int]bool{}
	for _, a := range answers {
		taken[a.Slot] = true
		if a.AuthorID == aliceID {
			aliceSlot = a.Slot
		}
	}
	realSlot := -1
	for slot := 0; slot <= 2; slot++ {
		if !taken[slot] {
			realSlot = slot
		}
	}

	post(t, alice, server.URL+"/quiz", url.Values{"answer": {strconv.Itoa(realSlot)}})
	post(t, bob, server.URL+"/quiz", url.Values{"answer": {strconv.Itoa(aliceSlot)}})

	// Everyone voted: the index redirects to the summary, which also nudges
	// the round forward.
	body = get(t, alice, server.URL+"/")
	if !strings.Contains(body, "Alice: 4") {
		t.Fatalf("expected Alice at 4 points in summary, got: %s", body)
	}
	if !strings.Contains(body, "the real answer") {
		t.Fatalf("summary must reveal the real answer, got: %s", body)
	}

	fresh, _ := store.Game(ctx, game.ID)
	if fresh.CurrentQuestionID == nil || *fresh.CurrentQuestionID == questionID {
		t.Fatalf("viewing the summary should have advanced the round")
	}
}

func TestCurQuestionAPI(t *testing.T) {
	server, _, store := newTestServer(t)
	client := newPlayerClient(t)

	var resp struct {
		Cur    *int64 `json:"cur"`
		IsQuiz bool   `json:"is_quiz"`
	}
	if err := json.Unmarshal([]byte(get(t, client, server.URL+"/api/cur_question")), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Cur != nil || resp.IsQuiz {
		t.Fatalf("no game yet: expected null/false, got %+v", resp)
	}

	post(t, client, server.URL+"/manage/start_new", url.Values{"topic": {"Movies"}})
	post(t, client, server.URL+"/register", url.Values{"name": {"Alice"}})
	get(t, client, server.URL+"/") // assigns the first question

	if err := json.Unmarshal([]byte(get(t, client, server.URL+"/api/cur_question")), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Cur == nil {
		t.Fatalf("expected a current question after first visit")
	}
	game, _ := store.ActiveGame(context.Background())
	if *resp.Cur != *game.CurrentQuestionID {
		t.Fatalf("api reports question %d, store has %d", *resp.Cur, *game.CurrentQuestionID)
	}
}

func TestStartNewUnknownTopic(t *testing.T) {
	server, _, _ := newTestServer(t)
	resp, err := http.PostForm(server.URL+"/manage/start_new", url.Values{"topic": {"Nope"}})
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown topic, got %d", resp.StatusCode)
	}
}

func TestUnregisteredPostRedirectsHome(t *testing.T) {
	server, _, _ := newTestServer(t)
	client := newPlayerClient(t)
	post(t, client, server.URL+"/manage/start_new", url.Values{"topic": {"Movies"}})

	noRedirect := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	resp, err := noRedirect.PostForm(server.URL+"/open_question", url.Values{"answer": {"sneaky"}})
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("expected redirect for unregistered player, got %d", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "/" {
		t.Fatalf("expected redirect to /, got %q", loc)
	}
}

