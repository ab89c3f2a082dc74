package attempts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rhythmcheck/backend/internal/gameconfig"
	"github.com/rhythmcheck/backend/internal/gamification"
	"github.com/rhythmcheck/backend/internal/models"
	"github.com/rhythmcheck/backend/internal/scoring"
)

const trendDays = 14

var validate = validator.New(validator.WithRequiredStructEnabled())

type Service struct {
	recordings RecordingStore
	attempts   AttemptStore
	profiles   ProfileStore
	config     ConfigSource
	ledger     Ledger
	now        func() time.Time
	log        *slog.Logger
}

func NewService(recordings RecordingStore, attempts AttemptStore, profiles ProfileStore, config ConfigSource, ledger Ledger, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		recordings: recordings,
		attempts:   attempts,
		profiles:   profiles,
		config:     config,
		ledger:     ledger,
		now:        time.Now,
		log:        logger.With(slog.String("component", "attempts")),
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// ── Submission ──────────────────────────────────────────

// Submit grades a learner's interpretation, stores the attempt and credits
// progression. Grading errors are returned before anything is stored. If
// the attempt is stored but crediting fails, the error is returned and the
// attempt stays on record.
func (s *Service) Submit(ctx context.Context, learnerID int64, req models.SubmitAttemptRequest) (*models.SubmissionResult, error) {
	if err := validate.Struct(req); err != nil {
		return nil, invalidRequest(err)
	}
	if _, err := s.profiles.GetProfile(ctx, learnerID); err != nil {
		return nil, err
	}
	rec, err := s.recordings.GetRecording(ctx, req.RecordingID)
	if err != nil {
		return nil, err
	}
	cfg, err := s.config.Get(ctx)
	if err != nil {
		return nil, gameconfig.Unavailable(err)
	}

	result, err := scoring.Score(rec.Schema, req.Fields, rec.Reference, scoring.OptionsFromConfig(*cfg))
	if err != nil {
		return nil, err
	}

	attempt := models.Attempt{
		ID:                uuid.New(),
		LearnerID:         learnerID,
		RecordingID:       rec.ID,
		RecordingCategory: rec.Category,
		Difficulty:        rec.Difficulty,
		Submission:        req.Fields,
		Reference:         rec.Reference,
		Comparisons:       result.Comparisons,
		TotalPoints:       result.TotalPoints,
		MaxPoints:         result.MaxPoints,
		Score:             result.Score,
		IsPassing:         result.IsPassing,
		OccurredAt:        s.now().UTC(),
	}
	if err := s.attempts.CreateAttempt(ctx, attempt); err != nil {
		return nil, fmt.Errorf("store attempt: %w", err)
	}

	if _, err := s.ledger.EnsureLearner(ctx, learnerID); err != nil {
		return nil, s.creditFailed(attempt, err)
	}
	credit, err := s.ledger.RecordAttempt(ctx, learnerID, gamification.AttemptOutcome{
		AttemptID:  attempt.ID.String(),
		Score:      result.Score,
		IsPassing:  result.IsPassing,
		IsPerfect:  result.IsPerfect,
		Category:   dominantCategory(rec),
		Difficulty: rec.Difficulty,
		OccurredAt: attempt.OccurredAt,
	})
	if err != nil {
		return nil, s.creditFailed(attempt, err)
	}

	s.log.Info("attempt graded",
		slog.Int64("learner_id", learnerID),
		slog.String("attempt_id", attempt.ID.String()),
		slog.String("recording_id", rec.ID),
		slog.Int("score", result.Score),
		slog.Bool("passing", result.IsPassing))

	return &models.SubmissionResult{
		AttemptID:            attempt.ID,
		Scoring:              *result,
		XP:                   credit.XP,
		Streak:               credit.Streak,
		Progress:             credit.Progress,
		AchievementsUnlocked: gamification.AchievementIDs(credit.Unlocked),
	}, nil
}

func (s *Service) creditFailed(a models.Attempt, err error) error {
	s.log.Error("attempt stored but progression not credited",
		slog.Int64("learner_id", a.LearnerID),
		slog.String("attempt_id", a.ID.String()),
		slog.String("error", err.Error()))
	return fmt.Errorf("credit attempt %s: %w", a.ID, err)
}

// dominantCategory is the scoring category that mastery achievements count
// a passed recording toward. Recordings tagged with a known category use it
// directly; otherwise the category holding most fields wins, ties going to
// the first listed.
func dominantCategory(rec *models.Recording) string {
	if models.ValidCategories[rec.Category] {
		return rec.Category
	}
	counts := make(map[string]int)
	best, bestN := "", 0
	for _, f := range rec.Schema.Fields {
		counts[f.Category]++
		if counts[f.Category] > bestN {
			best, bestN = f.Category, counts[f.Category]
		}
	}
	return best
}

// ── Recordings ──────────────────────────────────────────

func (s *Service) ListRecordings(ctx context.Context) ([]models.Recording, error) {
	return s.recordings.ListRecordings(ctx)
}

func (s *Service) GetRecording(ctx context.Context, id string) (*models.Recording, error) {
	return s.recordings.GetRecording(ctx, id)
}

// UpsertRecording stores a recording after proving it can be graded: every
// schema field has a usable reference value and a point band.
func (s *Service) UpsertRecording(ctx context.Context, req models.UpsertRecordingRequest) (*models.Recording, error) {
	if err := validate.Struct(req); err != nil {
		return nil, invalidRequest(err)
	}
	if len(req.Schema.Fields) == 0 {
		return nil, fmt.Errorf("%w: schema has no fields", ErrInvalidRecording)
	}
	cfg, err := s.config.Get(ctx)
	if err != nil {
		return nil, gameconfig.Unavailable(err)
	}
	if _, err := scoring.Score(req.Schema, models.Submission{}, req.Reference, scoring.OptionsFromConfig(*cfg)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRecording, err)
	}

	rec := models.Recording{
		ID:         req.ID,
		Title:      req.Title,
		Category:   req.Category,
		Difficulty: req.Difficulty,
		Schema:     req.Schema,
		Reference:  req.Reference,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.recordings.UpsertRecording(ctx, rec); err != nil {
		return nil, err
	}
	s.log.Info("recording saved", slog.String("recording_id", rec.ID), slog.Int("fields", len(rec.Schema.Fields)))
	return &rec, nil
}

// ── Learners ────────────────────────────────────────────

func (s *Service) CreateLearner(ctx context.Context, req models.CreateLearnerRequest) (*models.Profile, error) {
	if err := validate.Struct(req); err != nil {
		return nil, invalidRequest(err)
	}
	role := req.Role
	if role == "" {
		role = models.RoleLearner
	}
	p, err := s.profiles.CreateProfile(ctx, req.Name, role)
	if err != nil {
		return nil, err
	}
	if role == models.RoleLearner {
		if _, err := s.ledger.EnsureLearner(ctx, p.LearnerID); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// ── History ─────────────────────────────────────────────

// History returns one page of a learner's attempts, newest first.
func (s *Service) History(ctx context.Context, learnerID int64, page, pageSize int) (*models.HistoryListResponse, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 50 {
		pageSize = 50
	}

	all, err := s.attempts.ListAttempts(ctx, &learnerID)
	if err != nil {
		return nil, err
	}

	resp := &models.HistoryListResponse{
		Attempts: []models.AttemptSummary{},
		Total:    len(all),
		Page:     page,
		PageSize: pageSize,
	}
	// Checked before multiplying so an oversized page cannot overflow.
	if page-1 >= (len(all)+pageSize-1)/pageSize {
		return resp, nil
	}
	start := (page - 1) * pageSize
	for i := len(all) - 1 - start; i >= 0 && len(resp.Attempts) < pageSize; i-- {
		resp.Attempts = append(resp.Attempts, all[i].Summary())
	}
	return resp, nil
}

// Attempt returns one of the learner's attempts in full.
func (s *Service) Attempt(ctx context.Context, learnerID int64, id uuid.UUID) (*models.Attempt, error) {
	all, err := s.attempts.ListAttempts(ctx, &learnerID)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].ID == id {
			return &all[i], nil
		}
	}
	return nil, ErrAttemptNotFound
}

// HistoryStats summarises a learner's attempts by category, difficulty and
// recent day.
func (s *Service) HistoryStats(ctx context.Context, learnerID int64) (*models.HistoryStatsResponse, error) {
	all, err := s.attempts.ListAttempts(ctx, &learnerID)
	if err != nil {
		return nil, err
	}

	var (
		overall    tally
		categories = map[string]*tally{}
		difficulty = map[models.Difficulty]*tally{}
		days       = map[string]*tally{}
		cutoff     = s.now().UTC().AddDate(0, 0, -trendDays)
	)
	for _, a := range all {
		overall.add(a)
		tallyFor(categories, a.RecordingCategory).add(a)
		tallyFor(difficulty, a.Difficulty).add(a)
		if a.OccurredAt.After(cutoff) {
			tallyFor(days, a.OccurredAt.UTC().Format("2006-01-02")).add(a)
		}
	}

	resp := &models.HistoryStatsResponse{
		TotalAttempts: overall.attempts,
		TotalPassed:   overall.passed,
		PassRate:      overall.stat().PassRate,
		AverageScore:  overall.stat().AverageScore,
		CategoryStats: make(map[string]models.AccuracyStat, len(categories)),
		DifficultyStats: models.DifficultyBreakdown{
			Easy:   tallyFor(difficulty, models.DifficultyEasy).stat(),
			Medium: tallyFor(difficulty, models.DifficultyMedium).stat(),
			Hard:   tallyFor(difficulty, models.DifficultyHard).stat(),
		},
		RecentTrend: make([]models.DailyAccuracy, 0, len(days)),
	}
	for c, t := range categories {
		resp.CategoryStats[c] = t.stat()
	}
	for d, t := range days {
		st := t.stat()
		resp.RecentTrend = append(resp.RecentTrend, models.DailyAccuracy{
			Date: d, Attempts: st.Attempts, Passed: st.Passed, AverageScore: st.AverageScore,
		})
	}
	sort.Slice(resp.RecentTrend, func(i, j int) bool { return resp.RecentTrend[i].Date < resp.RecentTrend[j].Date })
	return resp, nil
}

type tally struct {
	attempts, passed, scoreSum int
}

func tallyFor[K comparable](m map[K]*tally, k K) *tally {
	t, ok := m[k]
	if !ok {
		t = &tally{}
		m[k] = t
	}
	return t
}

func (t *tally) add(a models.Attempt) {
	t.attempts++
	t.scoreSum += a.Score
	if a.IsPassing {
		t.passed++
	}
}

func (t *tally) stat() models.AccuracyStat {
	st := models.AccuracyStat{Attempts: t.attempts, Passed: t.passed}
	if t.attempts > 0 {
		st.PassRate = round1(100 * float64(t.passed) / float64(t.attempts))
		st.AverageScore = round1(float64(t.scoreSum) / float64(t.attempts))
	}
	return st
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// IsNotFound reports whether err means a recording, profile or attempt is missing.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRecordingNotFound) || errors.Is(err, ErrProfileNotFound) || errors.Is(err, ErrAttemptNotFound)
}
