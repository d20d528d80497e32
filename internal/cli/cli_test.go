package cli

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.PathValue("id") != "abc123" {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":{"code":"NOT_FOUND","message":"job not found"}}`))
			return
		}
		w.Write([]byte(`{"data":{
			"id":"abc123","status":"failed","error":null,
			"reporterStats":{"tests":3,"passes":2},
			"screenshots":[{"name":"AbCdEfGhIjKl_0.png","url":"https://b.s3.us-east-1.amazonaws.com/images/AbCdEfGhIjKl_0.png"}],
			"case":{"name":"Login","file_name":"login.spec.js"}
		}}`))
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":{"code":"UNAVAILABLE","message":"store is not connected"}}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_GetJob(t *testing.T) {
	client := NewClient(newTestServer(t).URL)

	job, err := client.GetJob("abc123")

	require.NoError(t, err)
	assert.Equal(t, "failed", job.Status)
	assert.Equal(t, "login.spec.js", job.Case.FileName)
	require.NotNil(t, job.ReporterStats)
	assert.Equal(t, 2, job.ReporterStats.Passes)
	require.Len(t, job.Screenshots, 1)
	assert.Equal(t, "AbCdEfGhIjKl_0.png", job.Screenshots[0].Name)
}

func TestClient_Errors(t *testing.T) {
	client := NewClient(newTestServer(t).URL)

	_, err := client.GetJob("missing")
	assert.EqualError(t, err, "NOT_FOUND: job not found")

	err = client.Ready()
	assert.EqualError(t, err, "UNAVAILABLE: store is not connected")
}

func TestJobShowCmd(t *testing.T) {
	srv := newTestServer(t)
	var stdout, stderr bytes.Buffer

	cmd := NewJobCmd(
		func() *Client { return NewClient(srv.URL) },
		func() *Output { return NewOutputTo(false, &stdout, &stderr) },
	)
	cmd.SetArgs([]string{"show", "abc123"})

	require.NoError(t, cmd.Execute())
	out := stdout.String()
	assert.Contains(t, out, "STATUS")
	assert.Contains(t, out, "login.spec.js")
	assert.Contains(t, out, "failed")
}

type fakeSender struct {
	sent []string
	err  error
}

func (s *fakeSender) SendTestRequest(_ context.Context, testID string) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, testID)
	return nil
}

func TestEnqueueCmd(t *testing.T) {
	sender := &fakeSender{}
	closed := false
	var stdout, stderr bytes.Buffer

	cmd := NewEnqueueCmd(
		func(context.Context) (Sender, func(), error) { return sender, func() { closed = true }, nil },
		func() *Output { return NewOutputTo(false, &stdout, &stderr) },
	)
	cmd.SetArgs([]string{"abc123", "def456"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, []string{"abc123", "def456"}, sender.sent)
	assert.True(t, closed)
	assert.Contains(t, stderr.String(), "Queued def456")
}

func TestEnqueueCmd_Errors(t *testing.T) {
	outputFn := func() *Output { return NewOutputTo(false, &bytes.Buffer{}, &bytes.Buffer{}) }

	cmd := NewEnqueueCmd(func(context.Context) (Sender, func(), error) {
		return &fakeSender{err: errors.New("access denied")}, func() {}, nil
	}, outputFn)
	cmd.SetArgs([]string{"abc123"})
	cmd.SilenceUsage = true
	assert.ErrorContains(t, cmd.Execute(), "enqueue abc123: access denied")

	cmd = NewEnqueueCmd(func(context.Context) (Sender, func(), error) {
		return nil, nil, errors.New("dial amqp")
	}, outputFn)
	cmd.SetArgs([]string{"abc123"})
	cmd.SilenceUsage = true
	assert.ErrorContains(t, cmd.Execute(), "dial amqp")
}
