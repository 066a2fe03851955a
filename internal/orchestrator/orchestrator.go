// Package orchestrator runs one analysis of a pull request revision end to
// end: lock, cache, request, AI, persist, publish, release.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rostilos/CodeCrow-sub008/consts"
	"github.com/rostilos/CodeCrow-sub008/internal/aiclient"
	"github.com/rostilos/CodeCrow-sub008/internal/cache"
	"github.com/rostilos/CodeCrow-sub008/internal/git/provider"
	"github.com/rostilos/CodeCrow-sub008/internal/lock"
	"github.com/rostilos/CodeCrow-sub008/internal/model"
	"github.com/rostilos/CodeCrow-sub008/internal/store"
	apperrors "github.com/rostilos/CodeCrow-sub008/pkg/errors"
	"github.com/rostilos/CodeCrow-sub008/pkg/idgen"
	"github.com/rostilos/CodeCrow-sub008/pkg/logger"
	"github.com/rostilos/CodeCrow-sub008/pkg/telemetry"
)

// State is a step of the analysis state machine
type State string

const (
	StateLockPending     State = "LOCK_PENDING"
	StateLockHeld        State = "LOCK_HELD"
	StateCacheChecked    State = "CACHE_CHECKED"
	StateRequestBuilt    State = "REQUEST_BUILT"
	StateAIInvoked       State = "AI_INVOKED"
	StateResultPersisted State = "RESULT_PERSISTED"
	StateResultPublished State = "RESULT_PUBLISHED"
	StateLockReleased    State = "LOCK_RELEASED"
	StateLockTimeout     State = "LOCK_TIMEOUT"
	StateFailed          State = "FAILED"
)

// Outcome is the definitive result of Run
type Outcome string

const (
	OutcomeSuccess     Outcome = "success"
	OutcomeCacheHit    Outcome = "cache_hit"
	OutcomeFailed      Outcome = "failed"
	OutcomeLockTimeout Outcome = "lock_timeout"
)

// AIInvoker is the AI service boundary; *aiclient.Client satisfies it.
type AIInvoker interface {
	Invoke(ctx context.Context, req aiclient.Request, sink aiclient.Sink) (*aiclient.Result, error)
}

// Providers resolves the VCS provider a project lives on; *providers.Set
// satisfies it.
type Providers interface {
	Get(name string) (provider.Provider, error)
	Token(name string) string
}

// Request identifies the PR revision to analyze. Only Project and PRNumber
// are required for pull requests; missing branch, commit and descriptive
// fields are fetched from the provider before the lock is taken.
type Request struct {
	Project      *model.Project
	PRNumber     int
	PREntityID   int64
	CommitHash   string
	SourceBranch string
	TargetBranch string

	Title       string
	Description string
	Author      string

	// OutputLanguage overrides Config.OutputLanguage when set
	OutputLanguage string
}

// Result is what Run returns. Err is set for failed and lock_timeout
// outcomes and never for success or cache_hit.
type Result struct {
	RunID    string
	Outcome  Outcome
	Analysis *model.CodeAnalysis
	LockKey  string
	Err      error

	// Trace lists the states the run passed through, in order
	Trace []State
	// Warnings collects non-fatal failures, e.g. publishing
	Warnings []string
}

// Config holds orchestration settings
type Config struct {
	// LockWait bounds how long Run waits for a busy target
	LockWait time.Duration
	// OutputLanguage is the default language of AI output
	OutputLanguage string
	// MaxAllowedTokens overrides project token limits when positive
	MaxAllowedTokens int
	// MaxFileChecks caps the existence checks for files of previous issues
	MaxFileChecks int
}

// Deps are the collaborators of an Orchestrator
type Deps struct {
	Locks     *lock.Manager
	Analyses  store.AnalysisStore
	AI        AIInvoker
	Providers Providers
}

// Orchestrator runs analyses. It is safe for concurrent use; cross-process
// exclusion comes from the lock table, not from the orchestrator.
type Orchestrator struct {
	cfg       Config
	locks     *lock.Manager
	analyses  store.AnalysisStore
	cache     *cache.AnalysisCache
	ai        AIInvoker
	providers Providers
	log       *zap.Logger
}

// New creates an Orchestrator
func New(cfg Config, deps Deps) *Orchestrator {
	if cfg.LockWait <= 0 {
		cfg.LockWait = consts.DefaultLockWaitMinutes * time.Minute
	}
	if cfg.OutputLanguage == "" {
		cfg.OutputLanguage = aiclient.DefaultOutputLanguage
	}
	if cfg.MaxFileChecks <= 0 {
		cfg.MaxFileChecks = defaultMaxFileChecks
	}
	return &Orchestrator{
		cfg:       cfg,
		locks:     deps.Locks,
		analyses:  deps.Analyses,
		cache:     cache.New(deps.Analyses),
		ai:        deps.AI,
		providers: deps.Providers,
		log:       logger.Named("orchestrator"),
	}
}

// run carries the state of one Run call
type run struct {
	req    Request
	vcs    provider.Provider
	events *emitter
	result *Result
	log    *zap.Logger
	span   trace.Span
}

func (r *run) enter(s State) {
	r.result.Trace = append(r.result.Trace, s)
	if r.span != nil {
		telemetry.AddSpanEvent(r.span, string(s))
	}
}

// fail records a FAILED transition and reports err to the sink
func (r *run) fail(err error) *Result {
	r.enter(StateFailed)
	r.result.Outcome = OutcomeFailed
	r.result.Err = err
	r.events.emit(EventError, err.Error(), StateFailed, nil)
	r.log.Error("Analysis failed", zap.Error(err))
	return r.result
}

// Run analyzes one PR revision. It never returns a nil Result and never
// panics on collaborator failures; a panicking collaborator yields a failed
// outcome. sink may be nil. Once the lock is held it is released on every path.
func (o *Orchestrator) Run(ctx context.Context, req Request, sink aiclient.Sink) *Result {
	start := time.Now()
	runID := idgen.NewRunID()

	var projectID uint
	if req.Project != nil {
		projectID = req.Project.ID
	}
	log := logger.WithAnalysisContext(projectID, req.PRNumber, req.CommitHash).
		Named("orchestrator").
		With(zap.String(logger.FieldRunID, runID))
	r := &run{
		req:    req,
		events: newEmitter(sink, runID, log),
		result: &Result{RunID: runID},
		log:    log,
	}

	ctx, span := telemetry.StartSpan(ctx, "analysis.run",
		telemetry.WithAnalysisAttributes(projectID, req.PRNumber, req.CommitHash, req.SourceBranch),
	)
	defer span.End()
	r.span = span

	metrics := telemetry.GetMetrics()
	held := false
	defer func() {
		metrics.RecordAnalysisFinished(ctx, string(r.result.Outcome), held, time.Since(start).Seconds())
		span.SetAttributes(telemetry.AttrOutcome.String(string(r.result.Outcome)))
		if r.result.Err != nil {
			telemetry.SetSpanError(span, r.result.Err)
		} else {
			telemetry.SetSpanOK(span)
		}
		r.events.final(r.result)
	}()
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("Analysis panicked", zap.Any("panic", rec), zap.Stack("stack"))
			r.fail(apperrors.ErrInternal("analysis panicked", fmt.Errorf("%v", rec)))
		}
	}()

	r.enter(StateLockPending)
	if err := o.prepare(ctx, r); err != nil {
		return r.fail(err)
	}
	if req.CommitHash == "" {
		r.log = r.log.With(zap.String(logger.FieldCommit, r.req.CommitHash))
	}

	target := lock.PRAnalysis(r.req.Project.ID, r.req.SourceBranch, r.req.CommitHash, r.req.PRNumber)
	r.result.LockKey = target.Key()
	span.SetAttributes(telemetry.AttrLockKey.String(r.result.LockKey))

	key, ok, err := o.locks.AcquireWithWait(ctx, target, o.cfg.LockWait, func(waited, remaining time.Duration) {
		r.events.emit(EventInfo, "waiting for another analysis of this revision to finish", StateLockPending, map[string]any{
			"waitedSeconds":    int(waited.Seconds()),
			"remainingSeconds": int(remaining.Seconds()),
		})
	})
	if err != nil {
		return r.fail(apperrors.ErrInternal("lock acquisition failed", err))
	}
	if !ok {
		r.enter(StateLockTimeout)
		r.result.Outcome = OutcomeLockTimeout
		r.result.Err = apperrors.ErrLocked(target.Key())
		r.events.emit(EventWarning, "analysis of this revision is already in progress, try again later", StateLockTimeout, nil)
		return r.result
	}

	held = true
	metrics.RecordAnalysisStarted(ctx)
	defer o.release(ctx, r, key)

	r.enter(StateLockHeld)
	r.events.emit(EventInfo, "lock acquired", StateLockHeld, nil)

	o.analyze(ctx, r)
	return r.result
}

// prepare resolves the provider and fills in PR fields the caller left out
func (o *Orchestrator) prepare(ctx context.Context, r *run) error {
	if r.req.Project == nil {
		return apperrors.ErrValidation("project is required")
	}
	if r.req.PRNumber <= 0 {
		return apperrors.ErrValidation("pull request number is required")
	}

	vcs, err := o.providers.Get(r.req.Project.Provider)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrCodeVCSUnsupported, "provider unavailable", err)
	}
	r.vcs = vcs

	if r.req.CommitHash != "" && r.req.SourceBranch != "" {
		return nil
	}
	pr, err := vcs.GetPullRequest(ctx, r.req.Project.Owner, r.req.Project.Repo, r.req.PRNumber)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrCodeVCSRequest, "failed to fetch pull request", err)
	}
	fillFromPR(&r.req, pr)
	if r.req.CommitHash == "" {
		return apperrors.ErrValidation("pull request has no head commit")
	}
	return nil
}

func fillFromPR(req *Request, pr *provider.PullRequest) {
	if req.CommitHash == "" {
		req.CommitHash = pr.HeadSHA
	}
	if req.SourceBranch == "" {
		req.SourceBranch = pr.HeadBranch
	}
	if req.TargetBranch == "" {
		req.TargetBranch = pr.BaseBranch
	}
	if req.Title == "" {
		req.Title = pr.Title
	}
	if req.Description == "" {
		req.Description = pr.Description
	}
	if req.Author == "" {
		req.Author = pr.Author
	}
	if req.PREntityID == 0 {
		req.PREntityID = pr.EntityID
	}
}

// release runs on every path after the lock was acquired. A cancelled run
// context must not leave the row behind, so release detaches from it.
func (o *Orchestrator) release(ctx context.Context, r *run, key string) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := o.locks.Release(releaseCtx, key); err != nil {
		r.log.Error("Failed to release analysis lock", zap.String(logger.FieldLockKey, key), zap.Error(err))
	}
	r.enter(StateLockReleased)
}

// analyze runs every step between LOCK_HELD and LOCK_RELEASED
func (o *Orchestrator) analyze(ctx context.Context, r *run) {
	project := r.req.Project

	cached, err := o.cache.Lookup(ctx, project.ID, r.req.CommitHash, r.req.PRNumber)
	if err != nil {
		r.fail(apperrors.Wrap(apperrors.ErrCodeDBQuery, "cache lookup failed", err))
		return
	}
	if cached != nil {
		r.enter(StateCacheChecked)
		r.events.emit(EventInfo, "revision already analyzed, republishing stored result", StateCacheChecked, map[string]any{
			"analysisId": cached.ID,
		})
		o.publish(ctx, r, cached, true)
		r.result.Outcome = OutcomeCacheHit
		r.result.Analysis = cached
		return
	}

	gathered, err := o.gather(ctx, r)
	if err != nil {
		r.fail(err)
		return
	}

	hit, err := o.cache.MatchFingerprint(ctx, project.ID, r.req.CommitHash, r.req.PRNumber, gathered.fingerprint)
	if err != nil {
		r.fail(apperrors.Wrap(apperrors.ErrCodeDBQuery, "fingerprint lookup failed", err))
		return
	}
	r.enter(StateCacheChecked)
	if hit != nil {
		o.reuse(ctx, r, hit.Analysis)
		return
	}

	req := o.buildRequest(ctx, r, gathered)
	r.enter(StateRequestBuilt)
	r.events.emit(EventInfo, "analysis request prepared", StateRequestBuilt, map[string]any{
		"analysisMode":   req.AnalysisMode,
		"changedFiles":   len(req.ChangedFiles),
		"previousIssues": len(req.PreviousIssues),
	})

	aiResult, err := o.ai.Invoke(ctx, req, r.events.forward)
	if err != nil {
		code := apperrors.ErrCodeAIUnavailable
		if errors.Is(err, aiclient.ErrMissingFields) || errors.Is(err, aiclient.ErrInvalidResponse) {
			code = apperrors.ErrCodeAIResponse
		}
		r.fail(apperrors.Wrap(code, "AI analysis failed", err))
		return
	}
	r.enter(StateAIInvoked)

	analysis := toAnalysis(r.req, req, aiResult, gathered.fingerprint)
	if err := o.analyses.Save(ctx, analysis); err != nil {
		r.fail(apperrors.Wrap(apperrors.ErrCodeDBQuery, "failed to save analysis", err))
		return
	}
	r.enter(StateResultPersisted)
	recordIssues(ctx, analysis)
	r.events.emit(EventInfo, "analysis saved", StateResultPersisted, map[string]any{
		"analysisId":  analysis.ID,
		"prVersion":   analysis.PRVersion,
		"totalIssues": analysis.TotalIssues,
	})

	o.publish(ctx, r, analysis, false)
	r.result.Outcome = OutcomeSuccess
	r.result.Analysis = analysis
}

// reuse persists a fingerprint match as the next version of this PR and
// publishes it without invoking the AI
func (o *Orchestrator) reuse(ctx context.Context, r *run, clone *model.CodeAnalysis) {
	clone.SourceBranchName = r.req.SourceBranch
	if r.req.TargetBranch != "" {
		clone.TargetBranchName = r.req.TargetBranch
	}
	if err := o.analyses.Save(ctx, clone); err != nil {
		r.fail(apperrors.Wrap(apperrors.ErrCodeDBQuery, "failed to save reused analysis", err))
		return
	}
	r.events.emit(EventInfo, "identical changes were analyzed before, reusing that result", StateCacheChecked, map[string]any{
		"analysisId":   clone.ID,
		"reusedFromId": clone.Metadata["reused_from_analysis_id"],
	})

	o.publish(ctx, r, clone, true)
	r.result.Outcome = OutcomeCacheHit
	r.result.Analysis = clone
}

// publish posts the analysis to the VCS. Failures are warnings only.
func (o *Orchestrator) publish(ctx context.Context, r *run, analysis *model.CodeAnalysis, cached bool) {
	err := r.vcs.PostAnalysisResults(ctx, analysis, r.req.Project, r.req.PRNumber, r.req.PREntityID)
	if !cached {
		r.enter(StateResultPublished)
	}
	if err == nil {
		r.events.emit(EventInfo, "results published", StateResultPublished, nil)
		return
	}

	telemetry.GetMetrics().RecordPublishFailure(ctx, r.vcs.Name(), cached)
	msg := fmt.Sprintf("failed to publish results to %s: %v", r.vcs.Name(), err)
	r.result.Warnings = append(r.result.Warnings, msg)
	r.events.emit(EventWarning, msg, StateResultPublished, nil)
	r.log.Warn("Publishing analysis results failed", zap.Bool("cache_hit", cached), zap.Error(err))
}

func recordIssues(ctx context.Context, a *model.CodeAnalysis) {
	m := telemetry.GetMetrics()
	m.RecordIssues(ctx, string(model.SeverityHigh), int64(a.HighSeverityCount))
	m.RecordIssues(ctx, string(model.SeverityMedium), int64(a.MediumSeverityCount))
	m.RecordIssues(ctx, string(model.SeverityLow), int64(a.LowSeverityCount))
	m.RecordIssues(ctx, string(model.SeverityInfo), int64(a.InfoSeverityCount))
}
