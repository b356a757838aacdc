package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"pinpress-api/internal/article"
	"pinpress-api/internal/auth"
	"pinpress-api/internal/domain"
	"pinpress-api/internal/inference"
	"pinpress-api/internal/pinterest"
	"pinpress-api/internal/store"
	"pinpress-api/internal/topics"
)

const (
	aliceToken = "tok-alice"
	bobToken   = "tok-bob"
)

type fakeGenerator struct {
	titles    []string
	err       error
	lastReq   article.Request
	lastTopic string
}

func (f *fakeGenerator) GenerateTitles(ctx context.Context, topic string) ([]string, error) {
	f.lastTopic = topic
	if f.err != nil {
		return nil, f.err
	}
	return f.titles, nil
}

func (f *fakeGenerator) GenerateArticle(ctx context.Context, req article.Request) (*article.Run, error) {
	f.lastReq = req
	if f.err != nil {
		return &article.Run{States: []article.State{article.TitleChosen, article.Failed}}, f.err
	}
	return &article.Run{
		States: []article.State{article.TitleChosen, article.ArticleDrafted, article.ImagesAttached, article.Persisted},
		Article: &domain.Article{
			ID:         "a-1",
			OwnerID:    req.OwnerID,
			Title:      req.Title,
			Keyword:    req.Keyword,
			HTML:       "<article></article>",
			CoverImage: "https://img.example/cover.png",
			Images:     []string{"https://img.example/1.png", ""},
		},
	}, nil
}

type fakeIllustrator struct {
	coverErr error
}

func (f *fakeIllustrator) CoverImage(ctx context.Context, prompt string) (string, error) {
	if f.coverErr != nil {
		return "", f.coverErr
	}
	return "https://img.example/cover-" + prompt, nil
}

func (f *fakeIllustrator) SectionImages(ctx context.Context, prompts []string) ([]string, error) {
	out := make([]string, len(prompts))
	for i := range prompts {
		out[i] = fmt.Sprintf("https://img.example/s%d", i)
	}
	return out, nil
}

type fakeTopics []topics.Topic

func (f fakeTopics) Topics(ctx context.Context) []topics.Topic { return f }

type fakePublisher struct {
	lastPin pinterest.Pin
	lastTok string
	err     error
}

func (f *fakePublisher) AuthURL(state string) string {
	return "https://www.pinterest.com/oauth/?state=" + state
}

func (f *fakePublisher) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	if code == "bad" {
		return nil, errors.New("invalid_grant")
	}
	return &oauth2.Token{AccessToken: "at-" + code, RefreshToken: "rt-" + code}, nil
}

func (f *fakePublisher) CreatePin(ctx context.Context, accessToken string, pin pinterest.Pin) (*pinterest.CreatedPin, error) {
	f.lastTok, f.lastPin = accessToken, pin
	if f.err != nil {
		return nil, f.err
	}
	return &pinterest.CreatedPin{ID: "pin-1", BoardID: pin.BoardID, Title: pin.Title}, nil
}

func newTestServer(t *testing.T, mutate func(*Deps)) *Server {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "articles.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	deps := Deps{
		Generator:         &fakeGenerator{titles: []string{"1. One", "2. Two"}},
		Illustrator:       &fakeIllustrator{},
		Store:             st,
		Verifier:          auth.NewStatic(map[string]string{aliceToken: "alice", bobToken: "bob"}),
		Topics:            fakeTopics{{Keyword: "Travel", Source: "default"}},
		GenerationTimeout: time.Minute,
		RateLimit:         100,
	}
	if mutate != nil {
		mutate(&deps)
	}
	s := New(deps)
	t.Cleanup(s.limiter.Stop)
	return s
}

func do(s *Server, method, path, token, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.Echo.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("invalid JSON %q: %v", rec.Body.String(), err)
	}
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	decode(t, rec, &body)
	return body.Error
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t, nil)

	cases := []struct {
		name, method, path, token string
	}{
		{"no header titles", http.MethodPost, "/api/titles", ""},
		{"bad token article", http.MethodPost, "/api/article", "nope"},
		{"no header image", http.MethodPost, "/api/image", ""},
		{"no header list", http.MethodGet, "/api/articles", ""},
		{"bad token topics", http.MethodGet, "/api/topics", "tok-alic"},
		{"no header pins", http.MethodPost, "/api/pinterest/pins", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(s, tc.method, tc.path, tc.token, `{"topic":"x","title":"x","prompt":"x"}`)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rec.Code)
			}
			if errorMessage(t, rec) == "" {
				t.Errorf("expected error message")
			}
		})
	}
}

func TestHealthz(t *testing.T) {
	rec := do(newTestServer(t, nil), http.MethodGet, "/healthz", "", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthz = %d %q", rec.Code, rec.Body.String())
	}
}

func TestTitles(t *testing.T) {
	gen := &fakeGenerator{titles: []string{"1. Save More", "2. Spend Less"}}
	s := newTestServer(t, func(d *Deps) { d.Generator = gen })

	rec := do(s, http.MethodPost, "/api/titles", aliceToken, `{"topic":"  Personal Finance "}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Titles []string `json:"titles"`
	}
	decode(t, rec, &body)
	if len(body.Titles) != 2 || body.Titles[0] != "1. Save More" {
		t.Errorf("titles = %q", body.Titles)
	}
	if gen.lastTopic != "Personal Finance" {
		t.Errorf("topic = %q", gen.lastTopic)
	}

	rec = do(s, http.MethodPost, "/api/titles", aliceToken, `{"prompt":"Travel"}`)
	if rec.Code != http.StatusOK || gen.lastTopic != "Travel" {
		t.Errorf("prompt field not accepted: %d %q", rec.Code, gen.lastTopic)
	}
}

func TestValidationErrors(t *testing.T) {
	s := newTestServer(t, func(d *Deps) { d.Pinterest = &fakePublisher{} })

	cases := []struct {
		name, path, body string
	}{
		{"titles without topic", "/api/titles", `{"topic":"   "}`},
		{"article without title", "/api/article", `{"keyword":"budget"}`},
		{"image without prompt", "/api/image", `{"sectionPrompts":["a"]}`},
		{"save without html", "/api/articles", `{"title":"T"}`},
		{"pin without image", "/api/pinterest/pins", `{"accessToken":"at"}`},
		{"malformed json", "/api/article", `{"title":`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(s, http.MethodPost, tc.path, aliceToken, tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestArticle(t *testing.T) {
	gen := &fakeGenerator{}
	s := newTestServer(t, func(d *Deps) { d.Generator = gen })

	rec := do(s, http.MethodPost, "/api/article", bobToken, `{"keyword":" budgeting ","title":"Money Tips"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Article domain.Article `json:"article"`
	}
	decode(t, rec, &body)
	if body.Article.ID != "a-1" || body.Article.OwnerID != "bob" || len(body.Article.Images) != 2 {
		t.Errorf("unexpected article %+v", body.Article)
	}
	if gen.lastReq.Keyword != "budgeting" || gen.lastReq.OwnerID != "bob" {
		t.Errorf("unexpected request %+v", gen.lastReq)
	}
}

func TestPipelineFailures(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		code    int
		message string
	}{
		{
			"provider",
			&article.StageError{State: article.TitleChosen, Err: fmt.Errorf("Failed to generate article content: %w", &inference.ProviderError{Provider: "replicate", StatusCode: 502, Message: "bad gateway"})},
			http.StatusInternalServerError,
			"Failed to generate article content",
		},
		{
			"malformed",
			&article.StageError{State: article.TitleChosen, Err: &article.MalformedArticleError{Reason: "missing </article>", Raw: "junk"}},
			http.StatusInternalServerError,
			"Invalid article format received",
		},
		{
			"timeout",
			&article.StageError{State: article.ArticleDrafted, Err: &inference.ProviderTimeoutError{JobID: "j", Attempts: 300}},
			http.StatusInternalServerError,
			"Generation timed out",
		},
		{
			"persistence",
			&article.StageError{State: article.ImagesAttached, Err: &article.PersistenceError{Err: errors.New("disk full")}},
			http.StatusInternalServerError,
			"disk full",
		},
		{
			"job failed",
			&article.StageError{State: article.ArticleDrafted, Err: &inference.JobFailedError{JobID: "j", Reason: "NSFW"}},
			http.StatusInternalServerError,
			"Prediction failed: NSFW",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestServer(t, func(d *Deps) { d.Generator = &fakeGenerator{err: tc.err} })
			rec := do(s, http.MethodPost, "/api/article", aliceToken, `{"title":"T"}`)
			if rec.Code != tc.code {
				t.Fatalf("status = %d, want %d", rec.Code, tc.code)
			}
			if msg := errorMessage(t, rec); !strings.Contains(msg, tc.message) {
				t.Errorf("error = %q, want it to contain %q", msg, tc.message)
			}
		})
	}
}

func TestImage(t *testing.T) {
	s := newTestServer(t, nil)

	rec := do(s, http.MethodPost, "/api/image", aliceToken, `{"prompt":"beach","sectionPrompts":["a","b"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		CoverImage    string   `json:"coverImage"`
		SectionImages []string `json:"sectionImages"`
	}
	decode(t, rec, &body)
	if body.CoverImage != "https://img.example/cover-beach" || len(body.SectionImages) != 2 {
		t.Errorf("unexpected body %+v", body)
	}

	rec = do(s, http.MethodPost, "/api/image", aliceToken, `{"prompt":"beach"}`)
	decode(t, rec, &body)
	if body.SectionImages == nil || len(body.SectionImages) != 0 {
		t.Errorf("expected empty section list, got %v", body.SectionImages)
	}

	failing := newTestServer(t, func(d *Deps) {
		d.Illustrator = &fakeIllustrator{coverErr: errors.New("Failed to generate cover image: boom")}
	})
	rec = do(failing, http.MethodPost, "/api/image", aliceToken, `{"prompt":"beach"}`)
	if rec.Code != http.StatusInternalServerError || !strings.Contains(errorMessage(t, rec), "cover image") {
		t.Errorf("cover failure = %d %s", rec.Code, rec.Body.String())
	}
}

func TestArticleCRUD(t *testing.T) {
	s := newTestServer(t, nil)

	rec := do(s, http.MethodPost, "/api/articles", aliceToken,
		`{"title":"Saved","html":"<article><h1>Saved</h1></article>","coverImage":"https://img.example/c.png","images":["https://img.example/1.png",""]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}
	var created struct {
		Article domain.Article `json:"article"`
	}
	decode(t, rec, &created)
	id := created.Article.ID
	if id == "" || created.Article.OwnerID != "alice" {
		t.Fatalf("unexpected article %+v", created.Article)
	}

	rec = do(s, http.MethodGet, "/api/articles", aliceToken, "")
	var list struct {
		Articles []domain.Article `json:"articles"`
	}
	decode(t, rec, &list)
	if len(list.Articles) != 1 || list.Articles[0].ID != id {
		t.Fatalf("list = %+v", list.Articles)
	}

	rec = do(s, http.MethodGet, "/api/articles", bobToken, "")
	decode(t, rec, &list)
	if list.Articles == nil || len(list.Articles) != 0 {
		t.Fatalf("bob should see an empty list, got %+v", list.Articles)
	}

	if rec = do(s, http.MethodGet, "/api/articles/"+id, aliceToken, ""); rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	if rec = do(s, http.MethodGet, "/api/articles/"+id, bobToken, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("cross-owner get status = %d, want 404", rec.Code)
	}
	if msg := errorMessage(t, rec); msg != "Article not found" {
		t.Errorf("error = %q", msg)
	}
	if rec = do(s, http.MethodDelete, "/api/articles/"+id, bobToken, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("cross-owner delete status = %d, want 404", rec.Code)
	}
	if rec = do(s, http.MethodDelete, "/api/articles/"+id, aliceToken, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	if rec = do(s, http.MethodDelete, "/api/articles/"+id, aliceToken, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want 404", rec.Code)
	}
}

func TestTopics(t *testing.T) {
	rec := do(newTestServer(t, nil), http.MethodGet, "/api/topics", aliceToken, "")
	var body struct {
		Topics []topics.Topic `json:"topics"`
	}
	decode(t, rec, &body)
	if len(body.Topics) != 1 || body.Topics[0].Keyword != "Travel" {
		t.Fatalf("topics = %+v", body.Topics)
	}
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, func(d *Deps) { d.RateLimit = 2 })

	for i := 0; i < 2; i++ {
		if rec := do(s, http.MethodPost, "/api/titles", aliceToken, `{"topic":"x"}`); rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, rec.Code)
		}
	}
	if rec := do(s, http.MethodPost, "/api/titles", aliceToken, `{"topic":"x"}`); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec := do(s, http.MethodPost, "/api/titles", bobToken, `{"topic":"x"}`); rec.Code != http.StatusOK {
		t.Fatalf("other owner status = %d, want 200", rec.Code)
	}
	if rec := do(s, http.MethodGet, "/api/articles", aliceToken, ""); rec.Code != http.StatusOK {
		t.Fatalf("CRUD should not be rate limited, got %d", rec.Code)
	}
}

func TestPinterest(t *testing.T) {
	pub := &fakePublisher{}
	s := newTestServer(t, func(d *Deps) { d.Pinterest = pub })

	rec := do(s, http.MethodGet, "/api/auth/pinterest", aliceToken, "")
	var authBody struct {
		AuthURL string `json:"authUrl"`
	}
	decode(t, rec, &authBody)
	if !strings.HasPrefix(authBody.AuthURL, "https://www.pinterest.com/oauth/?state=") {
		t.Errorf("authUrl = %q", authBody.AuthURL)
	}

	rec = do(s, http.MethodGet, "/api/auth/pinterest/callback?code=xyz", "", "")
	var tokens map[string]string
	decode(t, rec, &tokens)
	if rec.Code != http.StatusOK || tokens["access_token"] != "at-xyz" || tokens["refresh_token"] != "rt-xyz" {
		t.Fatalf("callback = %d %v", rec.Code, tokens)
	}
	if rec = do(s, http.MethodGet, "/api/auth/pinterest/callback", "", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("missing code status = %d, want 400", rec.Code)
	}
	if rec = do(s, http.MethodGet, "/api/auth/pinterest/callback?code=bad", "", ""); rec.Code != http.StatusInternalServerError {
		t.Errorf("failed exchange status = %d, want 500", rec.Code)
	}

	rec = do(s, http.MethodPost, "/api/pinterest/pins", aliceToken,
		`{"accessToken":"at","imageUrl":"https://img.example/c.png","title":"T","description":"D","boardId":"b-1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("create pin status = %d: %s", rec.Code, rec.Body.String())
	}
	if pub.lastTok != "at" || pub.lastPin.BoardID != "b-1" || pub.lastPin.ImageURL != "https://img.example/c.png" {
		t.Errorf("unexpected pin call %q %+v", pub.lastTok, pub.lastPin)
	}

	pub.err = pinterest.ErrNoBoard
	rec = do(s, http.MethodPost, "/api/pinterest/pins", aliceToken, `{"accessToken":"at","imageUrl":"https://img.example/c.png"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing board status = %d, want 400", rec.Code)
	}
}

func TestPinterestNotConfigured(t *testing.T) {
	s := newTestServer(t, nil)
	if rec := do(s, http.MethodGet, "/api/auth/pinterest", aliceToken, ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if rec := do(s, http.MethodGet, "/api/auth/pinterest/callback?code=x", "", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestErrorResponse(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("verify: %w", auth.ErrInvalidToken), http.StatusUnauthorized},
		{fmt.Errorf("find: %w", store.ErrNotFound), http.StatusNotFound},
		{&article.StageError{State: article.TitleChosen, Err: article.ErrEmptyTitle}, http.StatusBadRequest},
		{&article.StageError{State: article.AwaitingTopic, Err: article.ErrNoTitles}, http.StatusInternalServerError},
		{context.DeadlineExceeded, http.StatusInternalServerError},
		{&pinterest.APIError{StatusCode: 401}, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		code, msg := errorResponse(tc.err)
		if code != tc.code {
			t.Errorf("errorResponse(%v) code = %d, want %d", tc.err, code, tc.code)
		}
		if msg == "" {
			t.Errorf("errorResponse(%v) returned empty message", tc.err)
		}
	}
}
