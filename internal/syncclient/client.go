package syncclient

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"codepair/internal/review"
	"codepair/internal/runner"
	"codepair/pkg/interfaces"
	"codepair/pkg/types"
)

// Client keeps one participant's local mirror of a shared session in step
// with the store. Local edits apply to the mirror immediately and are
// persisted through the store; remote snapshots arrive over the broker and
// are adopted wholesale. Snapshots stamped with this client's own identity
// are skipped, so in-flight local edits are never clobbered by their own
// echo.
type Client struct {
	store    interfaces.SessionStore
	broker   interfaces.SessionBroker
	catalog  interfaces.QuestionCatalog
	runner   interfaces.CodeRunner
	reviewer interfaces.CodeReviewer

	sessionKey    string
	participantID string
	role          string

	mu      sync.RWMutex
	mirror  *types.Session
	loading bool
	started bool

	cancelSub func()
	done      chan struct{}
}

// Config carries the sync client's identity and collaborators. Catalog,
// Runner and Reviewer are optional; the corresponding operations fail
// with their package's disabled error when absent.
type Config struct {
	Store    interfaces.SessionStore
	Broker   interfaces.SessionBroker
	Catalog  interfaces.QuestionCatalog
	Runner   interfaces.CodeRunner
	Reviewer interfaces.CodeReviewer

	SessionKey    string
	ParticipantID string
	Role          string
}

// New creates a sync client. A participant identity is mandatory: without
// one, echoes cannot be told apart from remote edits.
func New(cfg Config) (*Client, error) {
	if cfg.ParticipantID == "" {
		return nil, ErrNoIdentity
	}
	if !types.IsValidParticipantID(cfg.ParticipantID) {
		return nil, types.ErrInvalidParticipantID
	}
	if !types.IsValidSessionKey(cfg.SessionKey) {
		return nil, types.ErrInvalidSessionKey
	}
	if cfg.Role != "" && !types.IsValidRole(cfg.Role) {
		return nil, types.ErrInvalidRole
	}
	if cfg.Store == nil || cfg.Broker == nil {
		return nil, fmt.Errorf("sync client requires a store and a broker")
	}

	return &Client{
		store:         cfg.Store,
		broker:        cfg.Broker,
		catalog:       cfg.Catalog,
		runner:        cfg.Runner,
		reviewer:      cfg.Reviewer,
		sessionKey:    cfg.SessionKey,
		participantID: cfg.ParticipantID,
		role:          cfg.Role,
		loading:       true,
		done:          make(chan struct{}),
	}, nil
}

// Start subscribes to the session's snapshot stream, then initializes the
// session row. Subscription comes first: a snapshot committed between the
// two steps must not be lost. The row returned by Initialize seeds the
// mirror only if no snapshot arrived in the meantime, so a fresher remote
// write is never overwritten by the older initialize read.
func (c *Client) Start(ctx context.Context, initialCode, language string) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	c.mu.Unlock()

	ch, cancel, err := c.broker.Subscribe(c.sessionKey)
	if err != nil {
		return fmt.Errorf("failed to subscribe to session %s: %w", c.sessionKey, err)
	}
	c.cancelSub = cancel

	go c.consume(ch)

	session, err := c.store.Initialize(ctx, c.sessionKey, initialCode, language, c.participantID)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to initialize session %s: %w", c.sessionKey, err)
	}

	c.mu.Lock()
	if c.loading {
		c.mirror = session
		c.loading = false
	}
	c.mu.Unlock()

	return nil
}

// Stop cancels the snapshot subscription and waits for the consume
// goroutine to drain.
func (c *Client) Stop() {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return
	}
	c.started = false
	c.mu.Unlock()

	if c.cancelSub != nil {
		c.cancelSub()
	}
	<-c.done
}

func (c *Client) consume(ch <-chan *types.Session) {
	defer close(c.done)
	for snapshot := range ch {
		c.apply(snapshot)
	}
}

// apply adopts one snapshot into the mirror. The first delivery always
// lands and ends the loading phase; after that, snapshots carrying this
// client's own identity are echoes of writes already reflected locally
// and are skipped.
func (c *Client) apply(snapshot *types.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.loading && snapshot.LastUpdatedBy == c.participantID {
		return
	}

	c.mirror = snapshot
	c.loading = false
}

// Snapshot returns a copy of the local mirror, or nil while loading.
func (c *Client) Snapshot() *types.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.mirror == nil {
		return nil
	}
	copied := *c.mirror
	if c.mirror.ExecutionResult != nil {
		result := *c.mirror.ExecutionResult
		copied.ExecutionResult = &result
	}
	if c.mirror.CursorPosition != nil {
		cursor := *c.mirror.CursorPosition
		copied.CursorPosition = &cursor
	}
	return &copied
}

// IsLoading reports whether the initial session state has arrived yet.
func (c *Client) IsLoading() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loading
}

// ParticipantID returns this client's identity.
func (c *Client) ParticipantID() string {
	return c.participantID
}

// Role returns this client's role in the session.
func (c *Client) Role() string {
	return c.role
}

// SetCode replaces the shared code buffer.
func (c *Client) SetCode(ctx context.Context, code string) error {
	if err := c.ready(); err != nil {
		return err
	}

	c.applyLocal(func(s *types.Session) { s.Code = code })

	session, err := c.store.UpdateCode(ctx, c.sessionKey, code, nil, nil, c.participantID)
	if err != nil {
		return err
	}
	c.adoptOwn(session)
	return nil
}

// SetLanguage switches the shared language. When a question is selected
// the code buffer resets to that question's starter snippet for the new
// language in the same atomic write, so every participant lands on the
// same buffer.
func (c *Client) SetLanguage(ctx context.Context, language string) error {
	if !types.IsValidLanguage(language) {
		return types.ErrInvalidLanguage
	}
	if err := c.ready(); err != nil {
		return err
	}

	starter, hasStarter := c.starterFor(ctx, language)

	var session *types.Session
	var err error
	if hasStarter {
		c.applyLocal(func(s *types.Session) {
			s.Language = language
			s.Code = starter
		})
		session, err = c.store.UpdateCode(ctx, c.sessionKey, starter, &language, nil, c.participantID)
	} else {
		c.applyLocal(func(s *types.Session) { s.Language = language })
		session, err = c.store.Patch(ctx, c.sessionKey, &types.SessionPatch{Language: &language}, c.participantID)
	}
	if err != nil {
		return err
	}
	c.adoptOwn(session)
	return nil
}

// SelectQuestion switches the shared question and resets the code buffer
// to the question's starter snippet for the current language.
func (c *Client) SelectQuestion(ctx context.Context, questionID string) error {
	if err := c.ready(); err != nil {
		return err
	}
	if c.catalog == nil {
		return interfaces.ErrQuestionNotFound
	}

	language := c.currentLanguage()
	starter, err := c.catalog.StarterCode(ctx, questionID, language)
	if err != nil {
		return err
	}

	c.applyLocal(func(s *types.Session) {
		s.QuestionID = questionID
		s.Code = starter
	})

	session, err := c.store.Patch(ctx, c.sessionKey, &types.SessionPatch{
		QuestionID: &questionID,
		Code:       &starter,
	}, c.participantID)
	if err != nil {
		return err
	}
	c.adoptOwn(session)
	return nil
}

// SetStdin replaces the shared custom input for code execution.
func (c *Client) SetStdin(ctx context.Context, stdin string) error {
	if err := c.ready(); err != nil {
		return err
	}

	c.applyLocal(func(s *types.Session) { s.Stdin = stdin })

	session, err := c.store.UpdateStdin(ctx, c.sessionKey, stdin, c.participantID)
	if err != nil {
		return err
	}
	c.adoptOwn(session)
	return nil
}

// SetCursor moves this participant's shared cursor.
func (c *Client) SetCursor(ctx context.Context, cursor types.CursorPosition) error {
	if err := cursor.Validate(); err != nil {
		return err
	}
	if err := c.ready(); err != nil {
		return err
	}

	c.applyLocal(func(s *types.Session) {
		position := cursor
		s.CursorPosition = &position
	})

	session, err := c.store.UpdateCursor(ctx, c.sessionKey, cursor, c.participantID)
	if err != nil {
		return err
	}
	c.adoptOwn(session)
	return nil
}

// Run executes the current code buffer and shares the outcome. Failures
// are shared too: a rejected verdict or an unreachable execution backend
// lands in the session's execution result where every participant sees it.
func (c *Client) Run(ctx context.Context) (*types.ExecutionResult, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	if c.runner == nil {
		return nil, runner.ErrRunnerDisabled
	}

	snapshot := c.Snapshot()
	languageID, ok := types.ExecutionLanguageIDs[snapshot.Language]
	if !ok {
		return nil, types.ErrInvalidLanguage
	}

	runResult, err := c.runner.Run(ctx, &types.RunRequest{
		LanguageID: languageID,
		SourceCode: snapshot.Code,
		Stdin:      snapshot.Stdin,
	})
	if err != nil {
		log.Printf("Code execution failed for session %s: %v", c.sessionKey, err)
	}
	result := runner.NormalizeOutcome(runResult, err, snapshot.Stdin)

	c.applyLocal(func(s *types.Session) { s.ExecutionResult = result })

	session, storeErr := c.store.UpdateExecutionResult(ctx, c.sessionKey, result, c.participantID)
	if storeErr != nil {
		return nil, storeErr
	}
	c.adoptOwn(session)

	return result, nil
}

// RequestReview asks the AI reviewer to assess the current code buffer and
// persists the accepted review under this participant's identity.
func (c *Client) RequestReview(ctx context.Context) (*types.Review, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	if c.reviewer == nil {
		return nil, review.ErrReviewerDisabled
	}

	snapshot := c.Snapshot()
	rev, err := c.reviewer.Review(ctx, snapshot.Code, snapshot.Language)
	if err != nil {
		return nil, err
	}

	rev.ID = uuid.New().String()
	rev.SessionKey = c.sessionKey
	rev.ParticipantID = c.participantID

	if err := c.store.SaveReview(ctx, rev); err != nil {
		return nil, fmt.Errorf("failed to save review: %w", err)
	}
	return rev, nil
}

func (c *Client) ready() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.started {
		return ErrNotStarted
	}
	if c.loading || c.mirror == nil {
		return ErrNotReady
	}
	return nil
}

// applyLocal mutates the mirror optimistically before the store write, so
// the local view never lags behind this participant's own edits.
func (c *Client) applyLocal(mutate func(*types.Session)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mirror != nil {
		mutate(c.mirror)
	}
}

// adoptOwn folds the committed document from our own write back into the
// mirror, picking up the authoritative writer stamp and timestamp. A row
// older than the mirror is discarded: with concurrent callers a slow
// earlier write must not roll the mirror back past a newer commit whose
// broker echo is suppressed.
func (c *Client) adoptOwn(session *types.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mirror != nil && session.LastUpdatedAt.Before(c.mirror.LastUpdatedAt) {
		return
	}
	c.mirror = session
}

func (c *Client) currentLanguage() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.mirror == nil {
		return types.LanguageJavaScript
	}
	return c.mirror.Language
}

func (c *Client) starterFor(ctx context.Context, language string) (string, bool) {
	c.mu.RLock()
	questionID := ""
	if c.mirror != nil {
		questionID = c.mirror.QuestionID
	}
	c.mu.RUnlock()

	if c.catalog == nil || questionID == "" {
		return "", false
	}

	starter, err := c.catalog.StarterCode(ctx, questionID, language)
	if err != nil {
		log.Printf("Starter code lookup failed for question %s: %v", questionID, err)
		return "", false
	}
	return starter, true
}
