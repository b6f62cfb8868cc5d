//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloo-solutions/researchq/internal/api/handlers"
	"github.com/cloo-solutions/researchq/internal/jobs"
	"github.com/cloo-solutions/researchq/internal/openai"
	"github.com/cloo-solutions/researchq/internal/repository"
	"github.com/cloo-solutions/researchq/internal/server"
	"github.com/cloo-solutions/researchq/internal/service"
	"github.com/cloo-solutions/researchq/internal/storage"
	"github.com/cloo-solutions/researchq/internal/testutil"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	testTeamID   = "team-e2e"
	testTeamSlug = "e2e"
	testUserID   = "user-e2e"
	testAppURL   = "https://research.example.com"
)

// E2ETestEnv holds all resources needed for E2E tests
type E2ETestEnv struct {
	T          *testing.T
	Ctx        context.Context
	PostgresC  *testutil.PostgresContainer
	RustFSC    *testutil.RustFSContainer
	Pool       *pgxpool.Pool
	Server     *httptest.Server
	Model      *fakeModel
	Notices    *recordingNotifier
	Sweeper    *jobs.ResearchSweeper
	S3Client   *storage.S3Client
	BinaryDir  string
	HTTPClient *http.Client
}

// SetupE2EEnv starts Postgres and RustFS, seeds a team and serves the full
// router against a fake model endpoint. With dispatch set, submissions are
// processed in the background.
func SetupE2EEnv(t *testing.T, dispatch bool) *E2ETestEnv {
	ctx := context.Background()

	pgC := testutil.NewPostgresContainer(ctx, t)
	s3C := testutil.NewRustFSContainer(ctx, t)
	pool := testutil.NewTestPool(ctx, t, pgC, "../../migrations")

	s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        s3C.Endpoint(),
		Region:          "us-east-1",
		AccessKeyID:     "rustfsadmin",
		SecretAccessKey: "rustfsadmin",
		Bucket:          "test-records",
		UsePathStyle:    true,
	})
	if err != nil {
		t.Fatalf("failed to create S3 client: %v", err)
	}
	if err := s3Client.EnsureBucket(ctx); err != nil {
		t.Fatalf("failed to create bucket: %v", err)
	}

	testutil.SeedTeamAndUser(ctx, t, pool, testTeamID, testTeamSlug, testUserID)

	env := &E2ETestEnv{
		T:          t,
		Ctx:        ctx,
		PostgresC:  pgC,
		RustFSC:    s3C,
		Pool:       pool,
		Model:      newFakeModel(),
		Notices:    &recordingNotifier{},
		S3Client:   s3Client,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
	env.startServer(dispatch)
	return env
}

// Cleanup releases all resources
func (e *E2ETestEnv) Cleanup() {
	if e.Server != nil {
		e.Server.Close()
	}
	if e.Sweeper != nil {
		e.Sweeper.Wait()
	}
	if e.Model != nil {
		e.Model.Close()
	}
	if e.Pool != nil {
		e.Pool.Close()
	}
	if e.RustFSC != nil {
		e.RustFSC.Terminate(e.Ctx)
	}
	if e.PostgresC != nil {
		e.PostgresC.Terminate(e.Ctx)
	}
	if e.BinaryDir != "" {
		os.RemoveAll(e.BinaryDir)
	}
}

func (e *E2ETestEnv) startServer(dispatch bool) {
	requestRepo := repository.NewResearchRequestRepository(e.Pool)
	teamRepo := repository.NewTeamRepository(e.Pool)
	chunkRepo := repository.NewDocumentChunkRepository(e.Pool)

	llm := openai.NewClient(openai.Config{BaseURL: e.Model.URL + "/v1"})

	svc := service.NewResearchService(service.ResearchServiceDeps{
		Requests:    requestRepo,
		Records:     repository.NewResearchRecordRepository(e.Pool),
		Teams:       teamRepo,
		Users:       repository.NewUserRepository(e.Pool),
		Chunks:      chunkRepo,
		Versions:    chunkRepo,
		Executor:    llm,
		Synthesizer: llm,
		Tx:          repository.NewTxRunner(e.Pool),
		Notifier:    e.Notices,
		Exporter:    e.S3Client,
		Credentials: service.NewCredentialResolver(teamRepo, "sk-e2e", "gpt-4o"),
		Retry:       service.RetryPolicy{Attempts: 2, Delay: 10 * time.Millisecond},
		AppURL:      testAppURL,
	})

	e.Sweeper = jobs.NewResearchSweeper(svc, requestRepo)
	var dispatcher handlers.Dispatcher
	if dispatch {
		dispatcher = e.Sweeper
	}

	e.Server = httptest.NewServer(server.NewRouter(server.RouterConfig{
		Teams:           teamRepo,
		ResearchHandler: handlers.NewResearchHandler(svc, dispatcher),
		HealthCheck:     e.Pool.Ping,
	}))
}

// ImportChunks stores the given pages, one document per map entry.
func (e *E2ETestEnv) ImportChunks(docs map[string][]string) {
	m := &service.ChunkManifest{TeamID: testTeamID}
	for id, pages := range docs {
		doc := service.ManifestDocument{ID: id, Title: strings.ToUpper(id), Version: "v1"}
		for i, text := range pages {
			doc.Pages = append(doc.Pages, service.ManifestPage{Page: fmt.Sprint(i + 1), Text: text})
		}
		m.Documents = append(m.Documents, doc)
	}

	importer := service.NewChunkImporter(repository.NewDocumentChunkRepository(e.Pool), nil)
	if _, err := importer.Import(e.Ctx, m); err != nil {
		e.T.Fatalf("failed to import chunks: %v", err)
	}
}

// BuildBinaries builds the research CLI.
func (e *E2ETestEnv) BuildBinaries() {
	tmpDir, err := os.MkdirTemp("", "research-e2e-*")
	if err != nil {
		e.T.Fatalf("failed to create temp dir: %v", err)
	}
	e.BinaryDir = tmpDir

	cmd := exec.Command("go", "build", "-o", filepath.Join(tmpDir, "research"), "./cmd/research")
	cmd.Dir = "../.."
	if out, err := cmd.CombinedOutput(); err != nil {
		e.T.Fatalf("failed to build research: %v\n%s", err, out)
	}
}

// RunResearch runs the research CLI against the test server.
func (e *E2ETestEnv) RunResearch(args ...string) (string, error) {
	cmd := exec.Command(filepath.Join(e.BinaryDir, "research"), args...)
	cmd.Dir = e.BinaryDir
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("RESEARCH_TEAM_ID=%s", testTeamID),
		fmt.Sprintf("RESEARCH_API_URL=%s", e.Server.URL),
	)
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// APIResponse represents a standard API response
type APIResponse struct {
	StatusCode int
	Data       json.RawMessage `json:"data"`
	Error      string          `json:"error,omitempty"`
	Code       string          `json:"code,omitempty"`
}

// Get performs a GET request scoped to the test team.
func (e *E2ETestEnv) Get(path string) *APIResponse {
	return e.doRequest(http.MethodGet, path, nil)
}

// Post performs a POST request scoped to the test team.
func (e *E2ETestEnv) Post(path string, body interface{}) *APIResponse {
	return e.doRequest(http.MethodPost, path, body)
}

func (e *E2ETestEnv) doRequest(method, path string, body interface{}) *APIResponse {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			e.T.Fatalf("failed to marshal body: %v", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequest(method, e.Server.URL+path, reqBody)
	if err != nil {
		e.T.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Team-ID", testTeamID)

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		e.T.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		e.T.Fatalf("failed to read body: %v", err)
	}

	apiResp := &APIResponse{StatusCode: resp.StatusCode}
	if err := json.Unmarshal(respBody, apiResp); err != nil {
		e.T.Fatalf("HTTP %d: %s", resp.StatusCode, respBody)
	}
	return apiResp
}

// DownloadFile downloads a file from the presigned URL
func (e *E2ETestEnv) DownloadFile(downloadURL string) ([]byte, error) {
	resp, err := e.HTTPClient.Get(downloadURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

// fakeModel is an OpenAI-compatible chat endpoint that answers every
// question with a fixed text and counts calls.
type fakeModel struct {
	*httptest.Server

	mu    sync.Mutex
	calls int
}

func newFakeModel() *fakeModel {
	m := &fakeModel{}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		m.calls++
		m.mu.Unlock()

		var req struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)

		answer := "revenue grew twelve percent"
		if len(req.Messages) > 0 && strings.Contains(req.Messages[len(req.Messages)-1].Content, "[\"") {
			answer = "overall: revenue is up"
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-e2e",
			"object": "chat.completion",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]string{"role": "assistant", "content": answer},
			}},
		})
	}))
	return m
}

func (m *fakeModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []service.CompletionNotice
}

func (n *recordingNotifier) NotifyResearchComplete(ctx context.Context, notice service.CompletionNotice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
	return nil
}

func (n *recordingNotifier) All() []service.CompletionNotice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]service.CompletionNotice(nil), n.notices...)
}
