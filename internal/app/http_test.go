package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"bloom/api/internal/store"
)

func newTestServer(fs *fakeStore) (*httptest.Server, *Service) {
	svc := newTestService(fs)
	server := httptest.NewServer(NewHTTPServer(svc, "*").Handler())
	return server, svc
}

func authedRequest(t *testing.T, method, url, token string, body string) *http.Request {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeResponse(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return payload
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := newTestServer(&fakeStore{})
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/health")
	if err != nil {
		t.Fatalf("health request: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d, want 200", resp.StatusCode)
	}
	payload := decodeResponse(t, resp)
	if payload["ok"] != true {
		t.Fatalf("health ok = %v, want true", payload["ok"])
	}
}

func TestProtectedRoutesRejectMissingToken(t *testing.T) {
	server, _ := newTestServer(&fakeStore{})
	defer server.Close()

	paths := []string{"/api/me", "/api/reflections", "/api/streak", "/api/quests", "/api/badges", "/api/xp", "/api/contacts", "/api/memories", "/api/privacy"}
	for _, path := range paths {
		resp, err := http.Get(server.URL + path)
		if err != nil {
			t.Fatalf("request %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("%s status = %d, want 401", path, resp.StatusCode)
		}
	}
}

func TestMeEndpointWithValidToken(t *testing.T) {
	fs := &fakeStore{
		getUserByIDFn: func(_ context.Context, id string) (store.User, error) {
			return store.User{ID: id, DisplayName: "Ada", Email: "ada@example.com", Timezone: "Europe/London"}, nil
		},
	}
	server, svc := newTestServer(fs)
	defer server.Close()

	session, err := svc.CreateSession(context.Background(), "usr_1")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	req := authedRequest(t, http.MethodGet, server.URL+"/api/me", session.Token, "")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("me request: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me status = %d, want 200", resp.StatusCode)
	}
	payload := decodeResponse(t, resp)
	if payload["displayName"] != "Ada" {
		t.Fatalf("displayName = %v, want Ada", payload["displayName"])
	}
	if payload["timezone"] != "Europe/London" {
		t.Fatalf("timezone = %v, want Europe/London", payload["timezone"])
	}
}

func TestLogoutRevokesAccessToken(t *testing.T) {
	revoked := map[string]bool{}
	fs := &fakeStore{
		revokeAccessTokenFn: func(_ context.Context, jti string, _ time.Time) error {
			revoked[jti] = true
			return nil
		},
		isAccessTokenRevokedFn: func(_ context.Context, jti string) (bool, error) {
			return revoked[jti], nil
		},
	}
	server, svc := newTestServer(fs)
	defer server.Close()

	session, err := svc.CreateSession(context.Background(), "usr_1")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	req := authedRequest(t, http.MethodPost, server.URL+"/api/session/logout", session.Token, "")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("logout request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout status = %d, want 200", resp.StatusCode)
	}

	req = authedRequest(t, http.MethodGet, server.URL+"/api/me", session.Token, "")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("me request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("me after logout status = %d, want 401", resp.StatusCode)
	}
}

func TestCreateReflectionEndpoint(t *testing.T) {
	var inserted store.Reflection
	fs := &fakeStore{
		insertReflectionFn: func(_ context.Context, item store.Reflection) error {
			inserted = item
			return nil
		},
	}
	server, svc := newTestServer(fs)
	defer server.Close()

	session, err := svc.CreateSession(context.Background(), "usr_1")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	body := `{"title":"Morning pages","body":"Slept well, feeling calm.","mood":"calm","moodScore":7,"tags":["sleep"]}`
	req := authedRequest(t, http.MethodPost, server.URL+"/api/reflections", session.Token, body)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", resp.StatusCode)
	}
	payload := decodeResponse(t, resp)

	if inserted.UserID != "usr_1" {
		t.Fatalf("inserted user = %q, want usr_1", inserted.UserID)
	}
	if inserted.Mood != "calm" || inserted.MoodScore != 7 {
		t.Fatalf("inserted mood = %q/%d, want calm/7", inserted.Mood, inserted.MoodScore)
	}
	if !strings.HasPrefix(payload["id"].(string), "rfl_") {
		t.Fatalf("id = %v, want rfl_ prefix", payload["id"])
	}
	if _, ok := payload["gamification"]; !ok {
		t.Fatal("response missing gamification summary")
	}
}

func TestStreakEndpointReturnsState(t *testing.T) {
	server, svc := newTestServer(&fakeStore{})
	defer server.Close()

	session, err := svc.CreateSession(context.Background(), "usr_1")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	req := authedRequest(t, http.MethodGet, server.URL+"/api/streak", session.Token, "")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("streak request: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("streak status = %d, want 200", resp.StatusCode)
	}
	payload := decodeResponse(t, resp)
	if payload["current"] != float64(0) {
		t.Fatalf("current = %v, want 0", payload["current"])
	}
	if payload["maxFreezes"] != float64(3) {
		t.Fatalf("maxFreezes = %v, want 3", payload["maxFreezes"])
	}
}

func TestQuestCompleteConflictStatus(t *testing.T) {
	fs := &fakeStore{
		getQuestFn: func(context.Context, string) (store.Quest, error) {
			return store.Quest{ID: "q1", Kind: "reflection", TimeFrame: "daily", Target: 1, Active: true}, nil
		},
		countInWindowFn: func(context.Context, string, time.Time, time.Time, bool) (int, error) {
			return 1, nil
		},
		completeQuestFn: func(context.Context, store.QuestCompletion, int, int) (bool, error) {
			return false, nil
		},
	}
	server, svc := newTestServer(fs)
	defer server.Close()

	session, err := svc.CreateSession(context.Background(), "usr_1")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	req := authedRequest(t, http.MethodPost, server.URL+"/api/quests/q1/complete", session.Token, "")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("complete request: %v", err)
	}
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("complete status = %d, want 409", resp.StatusCode)
	}
	payload := decodeResponse(t, resp)
	if payload["code"] != "ALREADY_COMPLETED" {
		t.Fatalf("code = %v, want ALREADY_COMPLETED", payload["code"])
	}
}

func TestUnknownRouteIs404(t *testing.T) {
	server, svc := newTestServer(&fakeStore{})
	defer server.Close()

	session, err := svc.CreateSession(context.Background(), "usr_1")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	req := authedRequest(t, http.MethodGet, server.URL+"/api/nothing-here", session.Token, "")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}
