package syncclient

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"codepair/internal/broker"
	"codepair/internal/catalog"
	"codepair/internal/store"
	"codepair/pkg/database"
	"codepair/pkg/types"
)

func setupSyncEnv(t *testing.T) (*store.Manager, *broker.Broker) {
	t.Helper()

	b := broker.NewBroker(16)
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start broker: %v", err)
	}
	t.Cleanup(func() { _ = b.Stop() })

	config := &database.Config{
		DatabasePath:    filepath.Join(t.TempDir(), "test.db"),
		MaxConnections:  10,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 30 * time.Minute,
	}
	m, err := store.NewManager(config, b)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })

	return m, b
}

func startedClient(t *testing.T, m *store.Manager, b *broker.Broker, participantID string, cfg func(*Config)) *Client {
	t.Helper()

	config := Config{
		Store:         m,
		Broker:        b,
		SessionKey:    "interview-1",
		ParticipantID: participantID,
		Role:          types.RoleCandidate,
	}
	if cfg != nil {
		cfg(&config)
	}

	client, err := New(config)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := client.Start(context.Background(), "// welcome", types.LanguageJavaScript); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(client.Stop)

	return client
}

// waitFor polls until the condition holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func TestNew_RequiresIdentity(t *testing.T) {
	m, b := setupSyncEnv(t)

	_, err := New(Config{Store: m, Broker: b, SessionKey: "interview-1"})
	if err != ErrNoIdentity {
		t.Errorf("Expected ErrNoIdentity, got %v", err)
	}
}

func TestNew_Validation(t *testing.T) {
	m, b := setupSyncEnv(t)

	if _, err := New(Config{Store: m, Broker: b, SessionKey: "bad key", ParticipantID: "alice"}); err != types.ErrInvalidSessionKey {
		t.Errorf("Expected ErrInvalidSessionKey, got %v", err)
	}
	if _, err := New(Config{Store: m, Broker: b, SessionKey: "interview-1", ParticipantID: "alice", Role: "observer"}); err != types.ErrInvalidRole {
		t.Errorf("Expected ErrInvalidRole, got %v", err)
	}
}

func TestClient_StartSeedsMirror(t *testing.T) {
	m, b := setupSyncEnv(t)
	client := startedClient(t, m, b, "alice", nil)

	if client.IsLoading() {
		t.Error("Client should not be loading after Start")
	}

	snapshot := client.Snapshot()
	if snapshot == nil {
		t.Fatal("Snapshot is nil after Start")
	}
	if snapshot.Code != "// welcome" || snapshot.Language != types.LanguageJavaScript {
		t.Errorf("Mirror = %q/%q, want // welcome/javascript", snapshot.Code, snapshot.Language)
	}
}

// A slow earlier write returning after a faster later one must not roll
// the mirror back to the older committed row.
func TestClient_AdoptOwnKeepsNewerMirror(t *testing.T) {
	m, b := setupSyncEnv(t)
	client := startedClient(t, m, b, "alice", nil)

	newer := client.Snapshot()
	newer.Code = "second write"
	newer.LastUpdatedAt = time.Now().UTC()
	client.adoptOwn(newer)

	stale := client.Snapshot()
	stale.Code = "first write"
	stale.LastUpdatedAt = newer.LastUpdatedAt.Add(-time.Second)
	client.adoptOwn(stale)

	if got := client.Snapshot().Code; got != "second write" {
		t.Errorf("Mirror = %q, want the newer write kept", got)
	}
}

func TestClient_MutateBeforeStart(t *testing.T) {
	m, b := setupSyncEnv(t)

	client, err := New(Config{Store: m, Broker: b, SessionKey: "interview-1", ParticipantID: "alice"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := client.SetCode(context.Background(), "x"); err != ErrNotStarted {
		t.Errorf("Expected ErrNotStarted, got %v", err)
	}
}

// Snapshots stamped with the client's own identity are echoes and must not
// clobber the local mirror; snapshots from others are adopted wholesale.
func TestClient_EchoSuppression(t *testing.T) {
	m, b := setupSyncEnv(t)
	client := startedClient(t, m, b, "alice", nil)

	before := client.Snapshot()

	client.apply(&types.Session{
		SessionKey:    "interview-1",
		Code:          "stale echo",
		Language:      types.LanguageJavaScript,
		LastUpdatedBy: "alice",
		LastUpdatedAt: time.Now().UTC(),
	})
	if got := client.Snapshot().Code; got != before.Code {
		t.Errorf("Own echo was adopted: mirror code = %q", got)
	}

	client.apply(&types.Session{
		SessionKey:    "interview-1",
		Code:          "remote edit",
		Language:      types.LanguagePython,
		LastUpdatedBy: "bob",
		LastUpdatedAt: time.Now().UTC(),
	})
	snapshot := client.Snapshot()
	if snapshot.Code != "remote edit" || snapshot.Language != types.LanguagePython {
		t.Errorf("Remote snapshot not adopted: %q/%q", snapshot.Code, snapshot.Language)
	}
}

func TestClient_EditsPropagateBetweenClients(t *testing.T) {
	m, b := setupSyncEnv(t)
	alice := startedClient(t, m, b, "alice", nil)
	bob := startedClient(t, m, b, "bob", nil)

	if err := alice.SetCode(context.Background(), "const x = 1"); err != nil {
		t.Fatalf("SetCode failed: %v", err)
	}

	waitFor(t, "bob to adopt alice's edit", func() bool {
		return bob.Snapshot().Code == "const x = 1"
	})

	// Alice's own mirror reflects the edit immediately.
	if got := alice.Snapshot().Code; got != "const x = 1" {
		t.Errorf("Alice's mirror = %q, want her own edit", got)
	}

	if err := bob.SetStdin(context.Background(), "10 20"); err != nil {
		t.Fatalf("SetStdin failed: %v", err)
	}
	waitFor(t, "alice to adopt bob's stdin", func() bool {
		return alice.Snapshot().Stdin == "10 20"
	})
}

func TestClient_SetLanguageResetsStarterCode(t *testing.T) {
	m, b := setupSyncEnv(t)
	questions := catalog.NewStaticCatalog()
	alice := startedClient(t, m, b, "alice", func(c *Config) { c.Catalog = questions })
	bob := startedClient(t, m, b, "bob", func(c *Config) { c.Catalog = questions })

	if err := alice.SelectQuestion(context.Background(), "two-sum"); err != nil {
		t.Fatalf("SelectQuestion failed: %v", err)
	}

	question, err := questions.GetQuestion(context.Background(), "two-sum")
	if err != nil {
		t.Fatalf("GetQuestion failed: %v", err)
	}

	waitFor(t, "bob to see the selected question", func() bool {
		s := bob.Snapshot()
		return s.QuestionID == "two-sum" && s.Code == question.StarterCode[types.LanguageJavaScript]
	})

	if err := alice.SetLanguage(context.Background(), types.LanguagePython); err != nil {
		t.Fatalf("SetLanguage failed: %v", err)
	}

	pythonStarter := question.StarterCode[types.LanguagePython]
	if got := alice.Snapshot().Code; got != pythonStarter {
		t.Errorf("Alice's buffer = %q, want python starter", got)
	}

	// The reset buffer and the language switch arrive at bob as one write.
	waitFor(t, "bob to land on the python starter", func() bool {
		s := bob.Snapshot()
		return s.Language == types.LanguagePython && s.Code == pythonStarter
	})
}

func TestClient_SetLanguageWithoutQuestion(t *testing.T) {
	m, b := setupSyncEnv(t)
	alice := startedClient(t, m, b, "alice", nil)

	if err := alice.SetCode(context.Background(), "my work"); err != nil {
		t.Fatalf("SetCode failed: %v", err)
	}
	if err := alice.SetLanguage(context.Background(), types.LanguageJava); err != nil {
		t.Fatalf("SetLanguage failed: %v", err)
	}

	snapshot := alice.Snapshot()
	if snapshot.Language != types.LanguageJava {
		t.Errorf("Language = %q, want java", snapshot.Language)
	}
	if snapshot.Code != "my work" {
		t.Errorf("Code = %q, language switch without a question must keep the buffer", snapshot.Code)
	}
}

func TestClient_SetCursor(t *testing.T) {
	m, b := setupSyncEnv(t)
	alice := startedClient(t, m, b, "alice", nil)
	bob := startedClient(t, m, b, "bob", nil)

	if err := alice.SetCursor(context.Background(), types.CursorPosition{Line: 0, Column: 1}); err != types.ErrInvalidCursor {
		t.Errorf("Expected ErrInvalidCursor, got %v", err)
	}

	if err := alice.SetCursor(context.Background(), types.CursorPosition{Line: 3, Column: 7}); err != nil {
		t.Fatalf("SetCursor failed: %v", err)
	}
	waitFor(t, "bob to see alice's cursor", func() bool {
		c := bob.Snapshot().CursorPosition
		return c != nil && c.Line == 3 && c.Column == 7
	})
}

type fakeRunner struct {
	result *types.RunResult
	err    error
	gotReq *types.RunRequest
}

func (f *fakeRunner) Run(ctx context.Context, req *types.RunRequest) (*types.RunResult, error) {
	f.gotReq = req
	return f.result, f.err
}

func TestClient_RunSharesOutput(t *testing.T) {
	m, b := setupSyncEnv(t)

	stdout := "42\n"
	fake := &fakeRunner{result: &types.RunResult{
		Stdout:            &stdout,
		StatusID:          3,
		StatusDescription: "Accepted",
	}}

	alice := startedClient(t, m, b, "alice", func(c *Config) { c.Runner = fake })
	bob := startedClient(t, m, b, "bob", nil)

	if err := alice.SetCode(context.Background(), "console.log(42)"); err != nil {
		t.Fatalf("SetCode failed: %v", err)
	}
	if err := alice.SetStdin(context.Background(), "6 7"); err != nil {
		t.Fatalf("SetStdin failed: %v", err)
	}

	result, err := alice.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if fake.gotReq.LanguageID != types.ExecutionLanguageIDs[types.LanguageJavaScript] {
		t.Errorf("LanguageID = %d, want javascript mapping", fake.gotReq.LanguageID)
	}
	if fake.gotReq.SourceCode != "console.log(42)" || fake.gotReq.Stdin != "6 7" {
		t.Errorf("Run request = %+v, buffer and stdin not forwarded", fake.gotReq)
	}

	if result.Error != "" {
		t.Errorf("Error = %q, want empty for accepted run", result.Error)
	}
	if result.Output["stdout"] != "42\n" {
		t.Errorf("Output stdout = %v, want 42\\n", result.Output["stdout"])
	}

	waitFor(t, "bob to see the execution result", func() bool {
		r := bob.Snapshot().ExecutionResult
		return r != nil && r.Output != nil && r.Output["stdout"] == "42\n"
	})
}

func TestClient_RunRejectedVerdict(t *testing.T) {
	m, b := setupSyncEnv(t)

	fake := &fakeRunner{result: &types.RunResult{
		StatusID:          5,
		StatusDescription: "Time Limit Exceeded",
	}}
	alice := startedClient(t, m, b, "alice", func(c *Config) { c.Runner = fake })
	bob := startedClient(t, m, b, "bob", nil)

	result, err := alice.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Error != "Time Limit Exceeded" {
		t.Errorf("Error = %q, want Time Limit Exceeded", result.Error)
	}

	// The failure is shared state, not private to the runner.
	waitFor(t, "bob to see the failed run", func() bool {
		r := bob.Snapshot().ExecutionResult
		return r != nil && r.Error == "Time Limit Exceeded"
	})
}

func TestClient_RunTransportError(t *testing.T) {
	m, b := setupSyncEnv(t)

	fake := &fakeRunner{err: errors.New("connection refused")}
	alice := startedClient(t, m, b, "alice", func(c *Config) { c.Runner = fake })

	result, err := alice.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error, transport failures should land in the result: %v", err)
	}
	if result.Error != "connection refused" {
		t.Errorf("Error = %q, want connection refused", result.Error)
	}
	if result.Output != nil {
		t.Errorf("Output = %v, want nil when the backend was unreachable", result.Output)
	}
}

type fakeReviewer struct {
	review *types.Review
	err    error
}

func (f *fakeReviewer) Review(ctx context.Context, code, language string) (*types.Review, error) {
	if f.err != nil {
		return nil, f.err
	}
	r := *f.review
	r.Code = code
	r.Language = language
	return &r, nil
}

func TestClient_RequestReview(t *testing.T) {
	m, b := setupSyncEnv(t)

	fake := &fakeReviewer{review: &types.Review{
		Quality:          "good",
		CodeQualityScore: 8,
		Summary:          "Looks fine",
		CreatedAt:        time.Now().UTC(),
	}}
	alice := startedClient(t, m, b, "alice", func(c *Config) { c.Reviewer = fake })

	if err := alice.SetCode(context.Background(), "print(42)"); err != nil {
		t.Fatalf("SetCode failed: %v", err)
	}

	review, err := alice.RequestReview(context.Background())
	if err != nil {
		t.Fatalf("RequestReview failed: %v", err)
	}
	if review.ID == "" {
		t.Error("Review ID was not assigned")
	}
	if review.SessionKey != "interview-1" || review.ParticipantID != "alice" {
		t.Errorf("Review identity = %q/%q", review.SessionKey, review.ParticipantID)
	}

	stored, err := m.GetReview(context.Background(), "interview-1", "alice")
	if err != nil {
		t.Fatalf("GetReview failed: %v", err)
	}
	if stored.ID != review.ID || stored.Code != "print(42)" {
		t.Errorf("Stored review = %q with code %q", stored.ID, stored.Code)
	}
}
