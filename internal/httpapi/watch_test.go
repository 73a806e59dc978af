// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package httpapi

import (
	"bufio"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kristinsson/tcsched/internal/blob"
	"github.com/kristinsson/tcsched/internal/jobdb"
	"github.com/kristinsson/tcsched/internal/jobmanager"
	"github.com/kristinsson/tcsched/internal/model"
	"github.com/kristinsson/tcsched/pkg/auth"
	"github.com/kristinsson/tcsched/pkg/logging"
	"github.com/kristinsson/tcsched/pkg/middleware"
	"github.com/kristinsson/tcsched/pkg/watch"
)

func TestJobWatchSSEStreamsConnectedEvent(t *testing.T) {
	_, ts := newTestServer(t)
	token := login(t, ts)
	jobID := createJob(t, ts, token, "source bytes")

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/job/"+jobID+"/watch", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	scanner := bufio.NewScanner(resp.Body)
	found := false
	for scanner.Scan() {
		if strings.Contains(scanner.Text(), "event: connected") {
			found = true
			break
		}
	}
	assert.True(t, found, "expected a connected SSE event")
}

func TestJobWatchSSERejectsUnauthorizedJob(t *testing.T) {
	_, ts := newTestServer(t)
	token := login(t, ts)
	jobID := createJob(t, ts, token, "source bytes")

	other := login(t, ts)
	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/job/"+jobID+"/watch", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+other)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode, "SSE handshake always succeeds; the source error is carried as an event")

	scanner := bufio.NewScanner(resp.Body)
	found := false
	for scanner.Scan() {
		if strings.Contains(scanner.Text(), "event: error") {
			found = true
			break
		}
	}
	assert.True(t, found, "expected an error SSE event for an unauthorized job")
}

func TestAllWatchSourceCollectsAuthorizedJobsOnly(t *testing.T) {
	db := jobdb.New()
	store := blob.NewMemoryStore()
	mgr := jobmanager.New(db, store, logging.NoOpLogger{})
	authenticator := auth.NewLocalAuthenticator()
	s := NewServer(Config{Jobs: mgr, Authenticator: authenticator, LoginSecret: testSecret})

	token := authenticator.NewToken()
	jobA, err := mgr.CreateJob(strings.NewReader("a"), model.Options{VideoCodec: "libx264"})
	require.NoError(t, err)
	_, err = mgr.CreateJob(strings.NewReader("b"), model.Options{VideoCodec: "libx264"})
	require.NoError(t, err)
	authenticator.Grant(token, jobA)

	// Drive allWatchSource through the real bearer-auth middleware so the
	// token lands in the request context the same way a live request
	// would populate it.
	var captured <-chan watch.TaskEvent
	handler := middleware.WithBearerAuth(authenticator)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var err error
		captured, err = s.allWatchSource(r.Context(), r)
		require.NoError(t, err)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/watch", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.NotNil(t, captured)

	// Let the pollers take their initial snapshot, then move task 0 of both
	// jobs out of pending: only job A's change may reach the channel.
	time.Sleep(50 * time.Millisecond)
	_, err = mgr.AllocateTask()
	require.NoError(t, err)
	_, err = mgr.AllocateTask()
	require.NoError(t, err)

	select {
	case ev := <-captured:
		assert.Equal(t, "task_state_change", ev.EventType)
		assert.Equal(t, 0, ev.TaskIndex, "job A is the only authorized job, at position 0")
	case <-time.After(3 * watch.DefaultPollInterval):
		t.Fatal("expected a task-state event from the authorized job")
	}
	select {
	case ev := <-captured:
		t.Fatalf("unexpected event from an unauthorized job: %+v", ev)
	case <-time.After(500 * time.Millisecond):
	}
}
