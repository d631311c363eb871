package adaptive

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lsat-prep/adaptive/internal/apperr"
	"github.com/lsat-prep/adaptive/internal/models"
	"github.com/lsat-prep/adaptive/internal/selection"
	"github.com/lsat-prep/adaptive/internal/streak"
)

// SessionStore persists users' adaptive sessions and results.
type SessionStore interface {
	GetUser(ctx context.Context, userID int64) (*models.User, error)
	CountSessionsSince(ctx context.Context, userID int64, since time.Time) (int, error)
	// LastSessionAt returns nil when the user never started a session.
	LastSessionAt(ctx context.Context, userID int64) (*time.Time, error)
	CreateSession(ctx context.Context, s *models.AdaptiveSession) error
	GetSession(ctx context.Context, sessionID string) (*models.AdaptiveSession, error)
	// TransitionSession moves a session from one status to another and
	// reports false when the session was no longer in from.
	TransitionSession(ctx context.Context, sessionID string, from, to models.SessionStatus, at time.Time) (bool, error)
	// SaveResult stores the result and completes the session atomically. It
	// fails with apperr.ErrState when the session already has a result or
	// is no longer active.
	SaveResult(ctx context.Context, r *models.AdaptiveResult) error
	// RecentResults returns the user's latest results, most recent first.
	RecentResults(ctx context.Context, userID int64, limit int) ([]models.AdaptiveResult, error)
	ResultTimes(ctx context.Context, userID int64, since time.Time) ([]time.Time, error)
}

type Analytics interface {
	HasMinimumData(ctx context.Context, userID int64) (bool, error)
	Analyze(ctx context.Context, userID int64) (*models.PerformanceSnapshot, error)
	RecordAttempt(ctx context.Context, attempt models.Attempt) (*models.Attempt, error)
	Invalidate(ctx context.Context, userID int64)
}

type Selector interface {
	SelectAdaptiveQuestions(ctx context.Context, c selection.Criteria) (*selection.Selection, error)
	ExcludeRecentQuestions(ctx context.Context, userID int64, days int) ([]int64, error)
}

type QuestionBank interface {
	GetByIDs(ctx context.Context, ids []int64) (map[int64]models.Question, error)
	RecordUsage(ctx context.Context, served []int64, correct []int64) error
}

// ItemAcquirer supplies new questions when the bank runs short.
type ItemAcquirer interface {
	Acquire(ctx context.Context, categoryID int64, level models.StudyLevel, count int) ([]models.Question, error)
}

type Options struct {
	DailyLimit        int
	Cooldown          time.Duration
	QuizSize          int
	WeakRatio         float64
	SessionTTL        time.Duration
	RecentDays        int
	BalanceDifficulty bool
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions() Options {
	return Options{
		DailyLimit:        10,
		Cooldown:          5 * time.Minute,
		QuizSize:          selection.DefaultTotal,
		WeakRatio:         selection.DefaultWeakRatio,
		SessionTTL:        24 * time.Hour,
		RecentDays:        7,
		BalanceDifficulty: true,
	}
}

const streakLookbackDays = 366

type Service struct {
	store     SessionStore
	analytics Analytics
	selector  Selector
	bank      QuestionBank
	acquirer  ItemAcquirer
	opts      Options
	now       func() time.Time
}

// NewService wires the orchestrator. acquirer may be nil, in which case
// quizzes are served from the existing bank only.
func NewService(store SessionStore, analytics Analytics, selector Selector, bank QuestionBank, acquirer ItemAcquirer, opts Options) *Service {
	return &Service{
		store:     store,
		analytics: analytics,
		selector:  selector,
		bank:      bank,
		acquirer:  acquirer,
		opts:      opts,
		now:       time.Now,
	}
}

// ── Generate ────────────────────────────────────────────

// Generate builds a quiz weighted toward the user's weakest categories and
// opens a session for it.
func (s *Service) Generate(ctx context.Context, userID int64) (*models.GeneratedQuiz, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if !user.HasStudyLevel() {
		return nil, apperr.Validation("user %d has not declared a study level", userID)
	}
	level := *user.StudyLevel

	ok, err := s.analytics.HasMinimumData(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: user %d needs more completed quizzes", apperr.ErrInsufficientData, userID)
	}

	now := s.now()
	if err := s.checkRateLimits(ctx, userID, now); err != nil {
		return nil, err
	}

	snap, err := s.analytics.Analyze(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("analyze: %w", err)
	}

	exclude, err := s.selector.ExcludeRecentQuestions(ctx, userID, s.opts.RecentDays)
	if err != nil {
		return nil, err
	}

	weakIDs := models.CategoryIDs(snap.WeakestCategories)
	strongIDs := models.CategoryIDs(snap.StrongestCategories)
	if len(weakIDs) == 0 && len(strongIDs) == 0 {
		// nothing ranked yet: practise every category the user has touched
		weakIDs = models.CategoryIDs(snap.CategoryPerformances)
	}

	sel, err := s.selector.SelectAdaptiveQuestions(ctx, selection.Criteria{
		UserID:            userID,
		Level:             level,
		WeakCategoryIDs:   weakIDs,
		StrongCategoryIDs: strongIDs,
		Total:             s.opts.QuizSize,
		WeakRatio:         s.opts.WeakRatio,
		ExcludeIDs:        exclude,
		BalanceDifficulty: s.opts.BalanceDifficulty,
	})
	if err != nil {
		return nil, fmt.Errorf("select questions: %w", err)
	}

	dist := models.Distribution{
		WeakCategories:   weakIDs,
		StrongCategories: strongIDs,
		TargetWeak:       sel.TargetWeak,
		TargetStrong:     sel.TargetStrong,
		ActualWeak:       sel.ActualWeak,
		ActualStrong:     sel.ActualStrong,
	}
	qs := sel.Questions

	if short := s.quizSize() - len(qs); short > 0 && s.acquirer != nil {
		acquired := s.acquire(ctx, userID, level, weakIDs, qs, short)
		qs = append(qs, acquired...)
		dist.ActualWeak += len(acquired)
		dist.Acquired = len(acquired)
	}

	if len(qs) == 0 {
		return nil, fmt.Errorf("%w: no questions available for user %d at level %s", apperr.ErrInsufficientItems, userID, level)
	}

	ids := make([]int64, len(qs))
	for i, q := range qs {
		ids[i] = q.ID
	}

	session := &models.AdaptiveSession{
		ID:           newSessionID(now),
		UserID:       userID,
		QuestionIDs:  ids,
		Distribution: dist,
		Snapshot:     snap,
		Status:       models.SessionActive,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.sessionTTL()),
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	log.Printf("[adaptive] user %d: session %s with %d questions (weak %d/%d, strong %d/%d, acquired %d)",
		userID, session.ID, len(qs), dist.ActualWeak, dist.TargetWeak, dist.ActualStrong, dist.TargetStrong, dist.Acquired)

	out := &models.GeneratedQuiz{
		SessionID: session.ID,
		Questions: make([]models.Question, len(qs)),
		Metadata: models.QuizMetadata{
			Distribution:        dist,
			WeakCategoryNames:   categoryNames(snap.WeakestCategories),
			StrongCategoryNames: categoryNames(snap.StrongestCategories),
			OverallSuccessRate:  snap.OverallSuccessRate,
			ExpiresAt:           session.ExpiresAt,
		},
	}
	for i, q := range qs {
		out.Questions[i] = q.Sanitized()
	}
	return out, nil
}

func (s *Service) checkRateLimits(ctx context.Context, userID int64, now time.Time) error {
	if s.opts.DailyLimit > 0 {
		midnight := now.UTC().Truncate(24 * time.Hour)
		n, err := s.store.CountSessionsSince(ctx, userID, midnight)
		if err != nil {
			return fmt.Errorf("count sessions: %w", err)
		}
		if n >= s.opts.DailyLimit {
			return &apperr.RateLimitError{
				Limit:      fmt.Sprintf("%d quizzes per day", s.opts.DailyLimit),
				RetryAfter: midnight.Add(24 * time.Hour).Sub(now),
			}
		}
	}

	if s.opts.Cooldown > 0 {
		last, err := s.store.LastSessionAt(ctx, userID)
		if err != nil {
			return fmt.Errorf("last session: %w", err)
		}
		if last != nil {
			if elapsed := now.Sub(*last); elapsed < s.opts.Cooldown {
				return &apperr.RateLimitError{
					Limit:      fmt.Sprintf("one quiz every %s", s.opts.Cooldown),
					RetryAfter: s.opts.Cooldown - elapsed,
				}
			}
		}
	}
	return nil
}

// acquire tops up a short quiz with generated questions for the weak
// categories, spread evenly. Failures are logged and yield fewer questions.
func (s *Service) acquire(ctx context.Context, userID int64, level models.StudyLevel, weakIDs []int64, have []models.Question, need int) []models.Question {
	if len(weakIDs) == 0 {
		return nil
	}
	seen := make(map[int64]bool, len(have))
	for _, q := range have {
		seen[q.ID] = true
	}

	var out []models.Question
	for i, catID := range weakIDs {
		remaining := need - len(out)
		if remaining <= 0 {
			break
		}
		share := (remaining + len(weakIDs) - i - 1) / (len(weakIDs) - i)
		qs, err := s.acquirer.Acquire(ctx, catID, level, share)
		if err != nil {
			log.Printf("[adaptive] WARN: acquire %d questions for user %d category %d: %v", share, userID, catID, err)
			continue
		}
		for _, q := range qs {
			if len(out) < need && !seen[q.ID] {
				seen[q.ID] = true
				out = append(out, q)
			}
		}
	}
	return out
}

// ── Submit ──────────────────────────────────────────────

// SubmitResults grades a session, stores its result and feeds the attempt
// back into analytics. A session accepts exactly one submission.
func (s *Service) SubmitResults(ctx context.Context, sessionID string, answers []models.SubmittedAnswer) (*models.AdaptiveResult, error) {
	now := s.now()

	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, fmt.Errorf("%w: cannot submit: %w", apperr.ErrState, err)
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	if err := s.ensureActive(ctx, session, now); err != nil {
		return nil, err
	}

	selected, err := indexAnswers(session, answers)
	if err != nil {
		return nil, err
	}

	bank, err := s.bank.GetByIDs(ctx, session.QuestionIDs)
	if err != nil {
		return nil, fmt.Errorf("load session questions: %w", err)
	}

	var (
		graded     []models.Question
		correct    = make(map[int64]bool)
		correctIDs []int64
		attempt    []models.AttemptAnswer
		score      int
	)
	for _, id := range session.QuestionIDs {
		q, ok := bank[id]
		if !ok {
			log.Printf("[adaptive] WARN: session %s question %d no longer exists, not graded", sessionID, id)
			continue
		}
		graded = append(graded, q)
		ok = IsCorrect(q, selected[id])
		if ok {
			correct[id] = true
			correctIDs = append(correctIDs, id)
			score++
		}
		attempt = append(attempt, models.AttemptAnswer{
			QuestionID:      id,
			SubmittedAnswer: strings.Join(normalizeKeys(selected[id]), ","),
			IsCorrect:       ok,
		})
	}

	catResults := CategoryResults(graded, correct, session.Snapshot)
	avg := AverageCategoryRate(catResults)

	result := &models.AdaptiveResult{
		SessionID:           session.ID,
		UserID:              session.UserID,
		OverallScore:        score,
		MaxScore:            len(graded),
		CategoryResults:     catResults,
		Recommendations:     Recommendations(catResults),
		AverageCategoryRate: avg,
		Progress:            s.progress(ctx, session.UserID, avg, now),
		StartedAt:           session.CreatedAt,
		CompletedAt:         now,
	}
	if len(graded) > 0 {
		result.SuccessRate = round2(float64(score) / float64(len(graded)))
	}

	if err := s.store.SaveResult(ctx, result); err != nil {
		return nil, fmt.Errorf("save result: %w", err)
	}

	s.recordAttempt(ctx, session, attempt, now)
	if err := s.bank.RecordUsage(ctx, session.QuestionIDs, correctIDs); err != nil {
		log.Printf("[adaptive] WARN: usage counters for session %s: %v", sessionID, err)
	}
	s.analytics.Invalidate(ctx, session.UserID)

	return result, nil
}

// indexAnswers maps question id to the selected keys, rejecting answers for
// questions outside the session and duplicate answers.
func indexAnswers(session *models.AdaptiveSession, answers []models.SubmittedAnswer) (map[int64][]string, error) {
	inSession := make(map[int64]bool, len(session.QuestionIDs))
	for _, id := range session.QuestionIDs {
		inSession[id] = true
	}

	out := make(map[int64][]string, len(answers))
	for _, a := range answers {
		if !inSession[a.QuestionID] {
			return nil, apperr.Validation("question %d is not part of session %s", a.QuestionID, session.ID)
		}
		if _, dup := out[a.QuestionID]; dup {
			return nil, apperr.Validation("question %d answered more than once", a.QuestionID)
		}
		out[a.QuestionID] = a.Selected
	}
	return out, nil
}

// progress degrades to an empty comparison when history cannot be read.
func (s *Service) progress(ctx context.Context, userID int64, current float64, now time.Time) models.ProgressComparison {
	previous, err := s.store.RecentResults(ctx, userID, ProgressWindow)
	if err != nil {
		log.Printf("[adaptive] WARN: recent results for user %d: %v", userID, err)
		previous = nil
	}
	pc := CompareProgress(current, previous)

	times, err := s.store.ResultTimes(ctx, userID, streak.Since(now, streakLookbackDays))
	if err != nil {
		log.Printf("[adaptive] WARN: result dates for user %d: %v", userID, err)
		return pc
	}
	pc.StreakDays = streak.Days(append(times, now), now)
	return pc
}

func (s *Service) recordAttempt(ctx context.Context, session *models.AdaptiveSession, answers []models.AttemptAnswer, now time.Time) {
	if len(answers) == 0 {
		return
	}
	sessionID := session.ID
	_, err := s.analytics.RecordAttempt(ctx, models.Attempt{
		UserID:      session.UserID,
		SessionID:   &sessionID,
		Answers:     answers,
		CompletedAt: now,
	})
	if err != nil {
		log.Printf("[adaptive] WARN: record attempt for session %s: %v", session.ID, err)
	}
}

// ── Session lifecycle ───────────────────────────────────

// GetSession returns the session, marking it expired first when its time
// is up.
func (s *Service) GetSession(ctx context.Context, sessionID string) (*models.AdaptiveSession, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	s.ExpireIfDue(ctx, session)
	return session, nil
}

// OwnedSession loads a session without touching its state. Sessions of
// other users are reported as missing.
func (s *Service) OwnedSession(ctx context.Context, userID int64, sessionID string) (*models.AdaptiveSession, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.UserID != userID {
		return nil, apperr.NotFound("session", sessionID)
	}
	return session, nil
}

// ExpireIfDue marks an active session expired once its time is up.
func (s *Service) ExpireIfDue(ctx context.Context, session *models.AdaptiveSession) {
	if now := s.now(); session.Expired(now) {
		s.expire(ctx, session, now)
	}
}

// Abandon closes an active session without a result.
func (s *Service) Abandon(ctx context.Context, sessionID string) (*models.AdaptiveSession, error) {
	now := s.now()
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureActive(ctx, session, now); err != nil {
		return nil, err
	}

	ok, err := s.store.TransitionSession(ctx, sessionID, models.SessionActive, models.SessionAbandoned, now)
	if err != nil {
		return nil, fmt.Errorf("abandon session: %w", err)
	}
	if !ok {
		return nil, apperr.State("session %s is no longer active", sessionID)
	}
	session.Status = models.SessionAbandoned
	session.CompletedAt = &now
	return session, nil
}

func (s *Service) ensureActive(ctx context.Context, session *models.AdaptiveSession, now time.Time) error {
	if session.Expired(now) {
		s.expire(ctx, session, now)
		return apperr.State("session %s expired at %s", session.ID, session.ExpiresAt.UTC().Format(time.RFC3339))
	}
	if session.Status.Terminal() {
		return apperr.State("session %s is %s", session.ID, session.Status)
	}
	return nil
}

func (s *Service) expire(ctx context.Context, session *models.AdaptiveSession, now time.Time) {
	if _, err := s.store.TransitionSession(ctx, session.ID, models.SessionActive, models.SessionExpired, now); err != nil {
		log.Printf("[adaptive] WARN: expire session %s: %v", session.ID, err)
	}
	session.Status = models.SessionExpired
}

func (s *Service) quizSize() int {
	if s.opts.QuizSize <= 0 {
		return selection.DefaultTotal
	}
	return s.opts.QuizSize
}

func (s *Service) sessionTTL() time.Duration {
	if s.opts.SessionTTL <= 0 {
		return 24 * time.Hour
	}
	return s.opts.SessionTTL
}

// newSessionID returns adaptive_<unix millis>_<9 random chars>.
func newSessionID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("adaptive_%d_%s", now.UnixMilli(), suffix)
}

func categoryNames(perfs []models.CategoryPerformance) []string {
	names := make([]string, len(perfs))
	for i, p := range perfs {
		names[i] = p.CategoryName
	}
	return names
}
