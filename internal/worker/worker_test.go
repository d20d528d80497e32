package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vgarzom/miso4208-project-cypress-executor/internal/artifacts"
	"github.com/vgarzom/miso4208-project-cypress-executor/internal/cache"
	"github.com/vgarzom/miso4208-project-cypress-executor/internal/domain"
	"github.com/vgarzom/miso4208-project-cypress-executor/internal/engine"
	"github.com/vgarzom/miso4208-project-cypress-executor/internal/mq"
	"github.com/vgarzom/miso4208-project-cypress-executor/internal/repo"
)

// --- fakes ---

type fakeQueue struct {
	mu         sync.Mutex
	messages   []*mq.Message
	deleted    []string
	receives   int
	receiveErr error
	deleteErr  error
	onEmpty    func()
}

func (q *fakeQueue) ReceiveOne(_ context.Context) (*mq.Message, error) {
	q.mu.Lock()
	q.receives++
	if q.receiveErr != nil {
		q.mu.Unlock()
		return nil, q.receiveErr
	}
	if len(q.messages) == 0 {
		onEmpty := q.onEmpty
		q.mu.Unlock()
		if onEmpty != nil {
			onEmpty()
		}
		return nil, nil
	}
	msg := q.messages[0]
	q.messages = q.messages[1:]
	q.mu.Unlock()
	return msg, nil
}

func (q *fakeQueue) Delete(_ context.Context, msg *mq.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.deleted = append(q.deleted, msg.ID)
	return q.deleteErr
}

type fakeRepo struct {
	mu           sync.Mutex
	jobs         map[string]*domain.Job
	fetchErr     error
	setStatusErr error
	saveErr      error
	connectErrs  []error

	connects     int
	fetches      []string
	statusWrites []domain.JobStatus
	saved        []domain.Job
}

func (r *fakeRepo) Connect(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connects++
	if len(r.connectErrs) > 0 {
		err := r.connectErrs[0]
		r.connectErrs = r.connectErrs[1:]
		return err
	}
	return nil
}

func (r *fakeRepo) FetchFull(_ context.Context, id string) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetches = append(r.fetches, id)
	if r.fetchErr != nil {
		return nil, r.fetchErr
	}
	job, ok := r.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: job %s", repo.ErrNotFound, id)
	}
	cp := *job
	return &cp, nil
}

func (r *fakeRepo) SetStatus(_ context.Context, _ string, status domain.JobStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statusWrites = append(r.statusWrites, status)
	return r.setStatusErr
}

func (r *fakeRepo) SaveResult(_ context.Context, job *domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved = append(r.saved, *job)
	return r.saveErr
}

type fakeCache struct {
	root  string
	err   error
	calls []string
}

func (c *fakeCache) Ensure(_ context.Context, fileName string) (string, error) {
	c.calls = append(c.calls, fileName)
	if c.err != nil {
		return "", c.err
	}
	return filepath.Join(c.root, fileName), nil
}

type fakeRunner struct {
	report *engine.Report
	err    error
	panic  any

	specs  []string
	opts   []engine.Options
	ctxErr error
}

func (r *fakeRunner) Run(ctx context.Context, specPath string, opts engine.Options) (*engine.Report, error) {
	r.specs = append(r.specs, specPath)
	r.opts = append(r.opts, opts)
	r.ctxErr = ctx.Err()
	if r.panic != nil {
		panic(r.panic)
	}
	return r.report, r.err
}

type fakePublisher struct {
	mu        sync.Mutex
	published map[string]string // name → path
	waited    bool
}

func (p *fakePublisher) Publish(_ context.Context, localPath, name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.published == nil {
		p.published = make(map[string]string)
	}
	p.published[name] = localPath
}

func (p *fakePublisher) URL(name string) string {
	return "https://koko-data.s3.us-east-1.amazonaws.com/images/" + name
}

func (p *fakePublisher) Wait() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.waited = true
}

type fakeUploader struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (u *fakeUploader) PutPublic(_ context.Context, key string, _ []byte, _ string) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.err != nil {
		return "", u.err
	}
	u.keys = append(u.keys, key)
	return u.URL(key), nil
}

func (u *fakeUploader) URL(key string) string {
	return "https://koko-data.s3.us-east-1.amazonaws.com/" + key
}

// --- helpers ---

type harness struct {
	queue     *fakeQueue
	repo      *fakeRepo
	cache     *fakeCache
	runner    *fakeRunner
	publisher ArtifactPublisher
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return &harness{
		queue: &fakeQueue{},
		repo: &fakeRepo{jobs: map[string]*domain.Job{
			"abc123": {
				ID:     "abc123",
				Status: domain.JobStatusPending,
				Case:   domain.Case{ID: "c1", Name: "Login", FileName: "login.spec.js"},
			},
		}},
		cache:     &fakeCache{root: t.TempDir()},
		runner:    &fakeRunner{report: &engine.Report{ReporterStats: domain.ReporterStats{Passes: 3, Tests: 3}}},
		publisher: &fakePublisher{},
	}
}

func (h *harness) executor() *Executor {
	return NewExecutor(ExecutorConfig{
		Queue:     h.queue,
		Repo:      h.repo,
		Cache:     h.cache,
		Runner:    h.runner,
		Publisher: h.publisher,
	})
}

func message(id, body string) *mq.Message {
	return &mq.Message{ID: id, ReceiptHandle: "rh-" + id, Body: []byte(body)}
}

func strPtr(s string) *string { return &s }

var screenshotName = regexp.MustCompile(`^[A-Za-z0-9]{12}_\d+\.png$`)

// --- Executor ---

func TestExecutor_Success(t *testing.T) {
	h := newHarness(t)

	res := h.executor().Handle(context.Background(), message("m1", `{"test_id":"abc123"}`))

	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.True(t, res.Deleted)
	assert.Equal(t, []string{"m1"}, h.queue.deleted)

	assert.Equal(t, []string{"login.spec.js"}, h.cache.calls)
	require.Len(t, h.runner.specs, 1)
	assert.Equal(t, filepath.Join(h.cache.root, "login.spec.js"), h.runner.specs[0])
	assert.False(t, h.runner.opts[0].Video)

	assert.Equal(t, []domain.JobStatus{domain.JobStatusInProgress}, h.repo.statusWrites)
	require.Len(t, h.repo.saved, 1)
	saved := h.repo.saved[0]
	assert.Equal(t, domain.JobStatusSuccess, saved.Status)
	assert.Nil(t, saved.Error)
	require.NotNil(t, saved.ReporterStats)
	assert.Equal(t, 3, saved.ReporterStats.Passes)
	assert.Empty(t, saved.Screenshots)
}

func TestExecutor_FailedWithScreenshot(t *testing.T) {
	h := newHarness(t)
	shot := filepath.Join(t.TempDir(), "a.png")
	require.NoError(t, os.WriteFile(shot, []byte("png"), 0o644))

	uploader := &fakeUploader{}
	publisher := artifacts.NewPublisher(uploader, nil)
	h.publisher = publisher
	h.runner.report = &engine.Report{
		ReporterStats: domain.ReporterStats{Passes: 2, Tests: 3},
		Screenshots:   []engine.ScreenshotRef{{Path: shot, Height: 720, Width: 1280}},
	}

	res := h.executor().Handle(context.Background(), message("m1", `{"test_id":"abc123"}`))
	publisher.Wait()

	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.True(t, res.Deleted)

	require.Len(t, h.repo.saved, 1)
	saved := h.repo.saved[0]
	assert.Equal(t, domain.JobStatusFailed, saved.Status)
	require.Len(t, saved.Screenshots, 1)
	assert.Regexp(t, `^[A-Za-z0-9]{12}_0\.png$`, saved.Screenshots[0].Name)
	assert.Equal(t, uploader.URL("images/"+saved.Screenshots[0].Name), saved.Screenshots[0].URL)
	assert.Equal(t, 720, saved.Screenshots[0].Height)

	require.Len(t, uploader.keys, 1)
	assert.Equal(t, "images/"+saved.Screenshots[0].Name, uploader.keys[0])
	assert.NoFileExists(t, shot)
}

func TestExecutor_ScreenshotNamesShareBatchID(t *testing.T) {
	for _, n := range []int{0, 1, 5, 50} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			h := newHarness(t)
			refs := make([]engine.ScreenshotRef, n)
			for i := range refs {
				refs[i] = engine.ScreenshotRef{Path: fmt.Sprintf("/tmp/shot-%d.png", i)}
			}
			h.runner.report = &engine.Report{
				ReporterStats: domain.ReporterStats{Passes: 1, Tests: 1},
				Screenshots:   refs,
			}

			h.executor().Handle(context.Background(), message("m1", `{"test_id":"abc123"}`))

			require.Len(t, h.repo.saved, 1)
			shots := h.repo.saved[0].Screenshots
			require.Len(t, shots, n)

			names := make(map[string]struct{}, n)
			for i, s := range shots {
				assert.Regexp(t, screenshotName, s.Name)
				assert.Equal(t, shots[0].Name[:artifacts.IDLength], s.Name[:artifacts.IDLength])
				assert.Equal(t, fmt.Sprintf("_%d.png", i), s.Name[artifacts.IDLength:])
				names[s.Name] = struct{}{}
			}
			assert.Len(t, names, n)
			assert.Len(t, h.publisher.(*fakePublisher).published, n)
		})
	}
}

func TestExecutor_EngineError(t *testing.T) {
	h := newHarness(t)
	h.runner.report = &engine.Report{
		Error:       strPtr("Timed out"),
		Screenshots: []engine.ScreenshotRef{{Path: "/tmp/a.png"}},
	}

	res := h.executor().Handle(context.Background(), message("m1", `{"test_id":"abc123"}`))

	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, OutcomeEngineError, res.Outcome)
	assert.True(t, res.Deleted)

	require.Len(t, h.repo.saved, 1)
	saved := h.repo.saved[0]
	assert.Equal(t, domain.JobStatusFailed, saved.Status)
	require.NotNil(t, saved.Error)
	assert.Equal(t, "Timed out", *saved.Error)
	assert.Nil(t, saved.ReporterStats)
	assert.Empty(t, saved.Screenshots)
	assert.Empty(t, h.publisher.(*fakePublisher).published)
}

func TestExecutor_EngineInvocationFailure(t *testing.T) {
	h := newHarness(t)
	h.runner.report = nil
	h.runner.err = fmt.Errorf("%w: exit status 1: Cannot find module 'cypress'", engine.ErrEngine)

	res := h.executor().Handle(context.Background(), message("m1", `{"test_id":"abc123"}`))

	assert.Equal(t, OutcomeEngineError, res.Outcome)
	require.Len(t, h.repo.saved, 1)
	assert.Equal(t, domain.JobStatusFailed, h.repo.saved[0].Status)
	assert.Contains(t, *h.repo.saved[0].Error, "Cannot find module")
	assert.Equal(t, []string{"m1"}, h.queue.deleted)
}

func TestExecutor_MalformedMessage(t *testing.T) {
	for _, body := range []string{`not json`, `{}`, `{"test_id":""}`, ``} {
		t.Run(body, func(t *testing.T) {
			h := newHarness(t)

			res := h.executor().Handle(context.Background(), message("m1", body))

			assert.Equal(t, StateAborted, res.State)
			assert.Equal(t, OutcomeMalformed, res.Outcome)
			assert.True(t, res.Deleted)
			assert.Empty(t, h.repo.fetches)
			assert.Empty(t, h.runner.specs)
		})
	}
}

func TestExecutor_JobNotFound(t *testing.T) {
	h := newHarness(t)

	res := h.executor().Handle(context.Background(), message("m1", `{"test_id":"missing"}`))

	assert.Equal(t, StateAborted, res.State)
	assert.Equal(t, OutcomeNotFound, res.Outcome)
	assert.Equal(t, []string{"missing"}, h.repo.fetches)
	assert.Empty(t, h.repo.statusWrites)
	assert.Empty(t, h.repo.saved)
	assert.Equal(t, []string{"m1"}, h.queue.deleted)
}

func TestExecutor_QueryError(t *testing.T) {
	h := newHarness(t)
	h.repo.fetchErr = fmt.Errorf("%w: server selection timeout", repo.ErrQuery)

	res := h.executor().Handle(context.Background(), message("m1", `{"test_id":"abc123"}`))

	assert.Equal(t, OutcomeQueryError, res.Outcome)
	assert.Empty(t, h.repo.statusWrites)
	assert.True(t, res.Deleted)
}

func TestExecutor_SpecUnavailable(t *testing.T) {
	h := newHarness(t)
	h.cache.err = fmt.Errorf("%w: NoSuchKey", cache.ErrFetch)

	res := h.executor().Handle(context.Background(), message("m1", `{"test_id":"abc123"}`))

	assert.Equal(t, StateAborted, res.State)
	assert.Equal(t, OutcomeSpecUnavailable, res.Outcome)
	assert.Empty(t, h.runner.specs)
	assert.Empty(t, h.repo.saved)
	assert.True(t, res.Deleted)
}

func TestExecutor_AlreadyFinished(t *testing.T) {
	for _, status := range []domain.JobStatus{domain.JobStatusSuccess, domain.JobStatusFailed} {
		t.Run(string(status), func(t *testing.T) {
			h := newHarness(t)
			h.repo.jobs["abc123"].Status = status

			res := h.executor().Handle(context.Background(), message("m1", `{"test_id":"abc123"}`))

			assert.Equal(t, OutcomeAlreadyFinished, res.Outcome)
			assert.Empty(t, h.repo.statusWrites)
			assert.Empty(t, h.runner.specs)
			assert.Empty(t, h.repo.saved)
			assert.True(t, res.Deleted)
		})
	}
}

func TestExecutor_UnknownStatusNotRun(t *testing.T) {
	h := newHarness(t)
	h.repo.jobs["abc123"].Status = "queued"
	h.runner.report = &engine.Report{
		ReporterStats: domain.ReporterStats{Passes: 2, Tests: 3},
		Screenshots:   []engine.ScreenshotRef{{Path: "/tmp/shot.png"}},
	}
	pub := h.publisher.(*fakePublisher)

	res := h.executor().Handle(context.Background(), message("m1", `{"test_id":"abc123"}`))

	assert.Equal(t, StateAborted, res.State)
	assert.Equal(t, OutcomeInvalidStatus, res.Outcome)
	assert.Empty(t, h.repo.statusWrites)
	assert.Empty(t, h.cache.calls)
	assert.Empty(t, h.runner.specs)
	assert.Empty(t, pub.published)
	assert.Empty(t, h.repo.saved)
	assert.True(t, res.Deleted)
}

func TestExecutor_MissingStatusTreatedAsPending(t *testing.T) {
	h := newHarness(t)
	h.repo.jobs["abc123"].Status = ""

	res := h.executor().Handle(context.Background(), message("m1", `{"test_id":"abc123"}`))

	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Equal(t, []domain.JobStatus{domain.JobStatusInProgress}, h.repo.statusWrites)
	require.Len(t, h.repo.saved, 1)
	assert.Equal(t, domain.JobStatusSuccess, h.repo.saved[0].Status)
}

func TestExecutor_RedeliveredInProgressJobRuns(t *testing.T) {
	h := newHarness(t)
	h.repo.jobs["abc123"].Status = domain.JobStatusInProgress

	res := h.executor().Handle(context.Background(), message("m1", `{"test_id":"abc123"}`))

	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Len(t, h.runner.specs, 1)
}

func TestExecutor_BestEffortWrites(t *testing.T) {
	h := newHarness(t)
	h.repo.setStatusErr = errors.New("write concern timeout")
	h.repo.saveErr = fmt.Errorf("%w: job abc123 already finished", repo.ErrInvalidState)

	res := h.executor().Handle(context.Background(), message("m1", `{"test_id":"abc123"}`))

	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Len(t, h.runner.specs, 1)
	assert.Len(t, h.repo.saved, 1)
	assert.True(t, res.Deleted)
}

func TestExecutor_DeleteFailure(t *testing.T) {
	h := newHarness(t)
	h.queue.deleteErr = errors.New("receipt handle expired")

	res := h.executor().Handle(context.Background(), message("m1", `{"test_id":"abc123"}`))

	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.False(t, res.Deleted)
	assert.Equal(t, []string{"m1"}, h.queue.deleted)
}

func TestExecutor_PanicStillDeletes(t *testing.T) {
	h := newHarness(t)
	h.runner.panic = "runner exploded"

	res := h.executor().Handle(context.Background(), message("m1", `{"test_id":"abc123"}`))

	assert.Equal(t, StateAborted, res.State)
	assert.Equal(t, OutcomePanic, res.Outcome)
	assert.True(t, res.Deleted)
}

// --- Worker ---

func newTestWorker(h *harness) *Worker {
	return New(Config{
		Store:             h.repo,
		Queue:             h.queue,
		Cache:             h.cache,
		Runner:            h.runner,
		Publisher:         h.publisher,
		IdleInterval:      time.Millisecond,
		ConnectRetryDelay: time.Millisecond,
	})
}

func TestWorker_Defaults(t *testing.T) {
	w := New(Config{Publisher: &fakePublisher{}})

	assert.Equal(t, 10*time.Second, w.idleInterval)
	assert.Equal(t, 5*time.Second, w.connectRetryDelay)
}

func TestWorker_PollOnce(t *testing.T) {
	h := newHarness(t)
	w := newTestWorker(h)

	handled, err := w.PollOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, handled)

	h.queue.messages = []*mq.Message{message("m1", `{"test_id":"abc123"}`)}
	handled, err = w.PollOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, []string{"m1"}, h.queue.deleted)
}

func TestWorker_PollOnce_ReceiveError(t *testing.T) {
	h := newHarness(t)
	h.queue.receiveErr = errors.New("connection reset")

	handled, err := newTestWorker(h).PollOnce(context.Background())

	assert.False(t, handled)
	assert.ErrorContains(t, err, "connection reset")
}

func TestWorker_InFlightJobIgnoresCancellation(t *testing.T) {
	h := newHarness(t)
	h.queue.messages = []*mq.Message{message("m1", `{"test_id":"abc123"}`)}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	handled, err := newTestWorker(h).PollOnce(ctx)

	require.NoError(t, err)
	assert.True(t, handled)
	assert.NoError(t, h.runner.ctxErr)
	assert.Len(t, h.repo.saved, 1)
}

func TestWorker_Run(t *testing.T) {
	h := newHarness(t)
	h.repo.connectErrs = []error{errors.New("no reachable servers"), errors.New("no reachable servers")}
	h.queue.messages = []*mq.Message{
		message("m1", `{"test_id":"abc123"}`),
		message("m2", `garbage`),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.queue.onEmpty = cancel

	err := newTestWorker(h).Run(ctx)

	require.NoError(t, err)
	assert.Equal(t, 3, h.repo.connects)
	assert.Equal(t, []string{"m1", "m2"}, h.queue.deleted)
	assert.Equal(t, 3, h.queue.receives)
	assert.True(t, h.publisher.(*fakePublisher).waited)
}

func TestWorker_Run_IdlePolling(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	empty := 0
	h.queue.onEmpty = func() {
		empty++
		if empty == 3 {
			cancel()
		}
	}

	require.NoError(t, newTestWorker(h).Run(ctx))
	assert.Equal(t, 3, h.queue.receives)
}

func TestWorker_Run_CancelledWhileConnecting(t *testing.T) {
	h := newHarness(t)
	errs := make([]error, 1000)
	for i := range errs {
		errs[i] = errors.New("no reachable servers")
	}
	h.repo.connectErrs = errs

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := newTestWorker(h).Run(ctx)

	assert.ErrorIs(t, err, ErrConnection)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, h.queue.receives)
}
