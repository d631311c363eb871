package adaptive

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/lsat-prep/adaptive/internal/auth"
	"github.com/lsat-prep/adaptive/internal/models"
)

func newRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/adaptive/quizzes", h.GenerateQuiz).Methods("POST")
	r.HandleFunc("/adaptive/sessions/{id}", h.GetSession).Methods("GET")
	r.HandleFunc("/adaptive/sessions/{id}/submit", h.SubmitResults).Methods("POST")
	r.HandleFunc("/adaptive/sessions/{id}/abandon", h.AbandonSession).Methods("POST")
	return r
}

func do(t *testing.T, router http.Handler, method, path string, userID int64, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if userID != 0 {
		req = req.WithContext(auth.WithUserID(req.Context(), userID))
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandler_QuizFlow(t *testing.T) {
	opts := DefaultOptions()
	opts.Cooldown = time.Hour
	f := newFixture(t, opts)
	f.bank.fill(weakCat, "Weak", models.LevelA, 20)
	f.store.addUser(2, models.LevelA)
	router := newRouter(NewHandler(f.svc))

	if rec := do(t, router, "POST", "/adaptive/quizzes", 0, nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous generate: status %d", rec.Code)
	}

	rec := do(t, router, "POST", "/adaptive/quizzes", learner, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("generate: status %d body %s", rec.Code, rec.Body.String())
	}
	var quiz models.GeneratedQuiz
	if err := json.NewDecoder(rec.Body).Decode(&quiz); err != nil {
		t.Fatal(err)
	}

	rec = do(t, router, "POST", "/adaptive/quizzes", learner, nil)
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") != "3600" {
		t.Errorf("cooldown: status %d Retry-After %q", rec.Code, rec.Header().Get("Retry-After"))
	}

	path := "/adaptive/sessions/" + quiz.SessionID
	if rec := do(t, router, "GET", path, 2, nil); rec.Code != http.StatusNotFound {
		t.Errorf("other user's session: status %d", rec.Code)
	}
	if rec := do(t, router, "GET", path, learner, nil); rec.Code != http.StatusOK {
		t.Errorf("get session: status %d", rec.Code)
	}

	req := models.SubmitRequest{Answers: answerAll(f, &quiz)}
	rec = do(t, router, "POST", path+"/submit", learner, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("submit: status %d body %s", rec.Code, rec.Body.String())
	}
	var result models.AdaptiveResult
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	if result.SessionID != quiz.SessionID || result.MaxScore != len(quiz.Questions) {
		t.Errorf("result = %+v", result)
	}

	if rec := do(t, router, "POST", path+"/submit", learner, req); rec.Code != http.StatusConflict {
		t.Errorf("second submit: status %d", rec.Code)
	}
	if rec := do(t, router, "POST", path+"/abandon", learner, nil); rec.Code != http.StatusConflict {
		t.Errorf("abandon completed session: status %d", rec.Code)
	}
	if rec := do(t, router, "GET", "/adaptive/sessions/nope", learner, nil); rec.Code != http.StatusNotFound {
		t.Errorf("missing session: status %d", rec.Code)
	}
}

func TestHandler_InsufficientData(t *testing.T) {
	f := newFixture(t, noLimits())
	f.analytics.enoughData = false
	router := newRouter(NewHandler(f.svc))

	rec := do(t, router, "POST", "/adaptive/quizzes", learner, nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status %d, want 422", rec.Code)
	}
}

func TestHandler_OverdueSessionOfAnotherUser(t *testing.T) {
	f := newFixture(t, noLimits())
	f.bank.fill(weakCat, "Weak", models.LevelA, 20)
	f.store.addUser(2, models.LevelA)
	router := newRouter(NewHandler(f.svc))

	rec := do(t, router, "POST", "/adaptive/quizzes", learner, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("generate: status %d body %s", rec.Code, rec.Body.String())
	}
	var quiz models.GeneratedQuiz
	if err := json.NewDecoder(rec.Body).Decode(&quiz); err != nil {
		t.Fatal(err)
	}

	*f.now = t0.Add(25 * time.Hour)
	path := "/adaptive/sessions/" + quiz.SessionID
	for _, call := range []struct{ method, path string }{
		{"GET", path},
		{"POST", path + "/submit"},
		{"POST", path + "/abandon"},
	} {
		if rec := do(t, router, call.method, call.path, 2, nil); rec.Code != http.StatusNotFound {
			t.Errorf("%s %s as other user: status %d", call.method, call.path, rec.Code)
		}
	}
	if got := f.store.sessions[quiz.SessionID].Status; got != models.SessionActive {
		t.Fatalf("other user changed session status to %s", got)
	}

	rec = do(t, router, "GET", path, learner, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("owner get: status %d", rec.Code)
	}
	var sess models.AdaptiveSession
	if err := json.NewDecoder(rec.Body).Decode(&sess); err != nil {
		t.Fatal(err)
	}
	if sess.Status != models.SessionExpired || f.store.sessions[quiz.SessionID].Status != models.SessionExpired {
		t.Errorf("owner read did not expire the session: %s", sess.Status)
	}
}
