// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kristinsson/tcsched/api"
	"github.com/kristinsson/tcsched/internal/blob"
	"github.com/kristinsson/tcsched/internal/jobdb"
	"github.com/kristinsson/tcsched/internal/jobmanager"
	"github.com/kristinsson/tcsched/pkg/auth"
	"github.com/kristinsson/tcsched/pkg/logging"
)

func decodeJSON(resp *http.Response, v interface{}) error {
	return json.NewDecoder(resp.Body).Decode(v)
}

const testSecret = "hunter2"

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	db := jobdb.New()
	store := blob.NewMemoryStore()
	mgr := jobmanager.New(db, store, logging.NoOpLogger{})
	s := NewServer(Config{
		Jobs:          mgr,
		Authenticator: auth.NewLocalAuthenticator(),
		LoginSecret:   testSecret,
		Version:       "test",
	})
	ts := httptest.NewServer(s.NewRouter())
	t.Cleanup(ts.Close)
	return s, ts
}

func login(t *testing.T, ts *httptest.Server) string {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/login", nil)
	require.NoError(t, err)
	req.Header.Set("credentials", testSecret)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	buf := new(bytes.Buffer)
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return buf.String()
}

func createJob(t *testing.T, ts *httptest.Server, token string, body string) string {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/job", bytes.NewBufferString(body))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("video_codec", "libx264")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	buf := new(bytes.Buffer)
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return buf.String()
}

func TestVersionRequiresNoAuth(t *testing.T) {
	_, ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/api/version")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	_, ts := newTestServer(t)
	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/login", nil)
	req.Header.Set("credentials", "wrong")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestLoginAcceptsGoodCredentials(t *testing.T) {
	_, ts := newTestServer(t)
	token := login(t, ts)
	assert.NotEmpty(t, token)
}

func TestLogoutInvalidatesToken(t *testing.T) {
	_, ts := newTestServer(t)
	token := login(t, ts)

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/login", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	req2, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/job", nil)
	req2.Header.Set("Authorization", "Bearer "+token)
	resp2, err := http.DefaultClient.Do(req2)
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp2.StatusCode)
}

func TestJobRoutesRejectMissingToken(t *testing.T) {
	_, ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/api/job")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestCreateJobRequiresVideoCodecHeader(t *testing.T) {
	_, ts := newTestServer(t)
	token := login(t, ts)

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/job", bytes.NewBufferString("source"))
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateAndListJob(t *testing.T) {
	_, ts := newTestServer(t)
	token := login(t, ts)

	jobID := createJob(t, ts, token, "source bytes")
	assert.NotEmpty(t, jobID)

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/job", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestJobOutputUnavailableBeforeFulfilled(t *testing.T) {
	_, ts := newTestServer(t)
	token := login(t, ts)
	jobID := createJob(t, ts, token, "source bytes")

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/job/"+jobID+"/output", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestJobOutputRejectsForeignToken(t *testing.T) {
	_, ts := newTestServer(t)
	token := login(t, ts)
	jobID := createJob(t, ts, token, "source bytes")

	other := login(t, ts)
	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/job/"+jobID+"/output", nil)
	req.Header.Set("Authorization", "Bearer "+other)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestAllocateTaskThenFetchInputAndSubmitOutput(t *testing.T) {
	_, ts := newTestServer(t)
	token := login(t, ts)
	createJob(t, ts, token, "source bytes")

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/allocate_task", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var inst api.TaskInstance
	require.NoError(t, decodeJSON(resp, &inst))
	require.NotEmpty(t, inst.TaskID)
	require.Len(t, inst.Input, 1)

	inputReq, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/job/"+inst.JobID+"/task/"+inst.TaskID+"/input/0", nil)
	inputReq.Header.Set("Authorization", "Bearer "+token)
	inputResp, err := http.DefaultClient.Do(inputReq)
	require.NoError(t, err)
	defer inputResp.Body.Close()
	assert.Equal(t, http.StatusOK, inputResp.StatusCode)

	outputReq, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/job/"+inst.JobID+"/task/"+inst.TaskID+"/output", bytes.NewBufferString("result"))
	outputReq.Header.Set("Authorization", "Bearer "+token)
	outputResp, err := http.DefaultClient.Do(outputReq)
	require.NoError(t, err)
	defer outputResp.Body.Close()
	assert.Equal(t, http.StatusCreated, outputResp.StatusCode)
}

func TestAllocateTaskUnavailableWhenNothingPending(t *testing.T) {
	_, ts := newTestServer(t)
	token := login(t, ts)

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/allocate_task", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestCancelTaskReturnsItToPending(t *testing.T) {
	_, ts := newTestServer(t)
	token := login(t, ts)
	createJob(t, ts, token, "source bytes")

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/allocate_task", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	var inst api.TaskInstance
	require.NoError(t, decodeJSON(resp, &inst))
	resp.Body.Close()

	cancelReq, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/job/"+inst.JobID+"/task/"+inst.TaskID, nil)
	cancelReq.Header.Set("Authorization", "Bearer "+token)
	cancelResp, err := http.DefaultClient.Do(cancelReq)
	require.NoError(t, err)
	cancelResp.Body.Close()
	assert.Equal(t, http.StatusNoContent, cancelResp.StatusCode)

	retryReq, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/allocate_task", nil)
	retryReq.Header.Set("Authorization", "Bearer "+token)
	retryResp, err := http.DefaultClient.Do(retryReq)
	require.NoError(t, err)
	retryResp.Body.Close()
	assert.Equal(t, http.StatusOK, retryResp.StatusCode)
}

func TestDeleteJobRevokesAccess(t *testing.T) {
	_, ts := newTestServer(t)
	token := login(t, ts)
	jobID := createJob(t, ts, token, "source bytes")

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/job/"+jobID, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	req2, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/job/"+jobID+"/output", nil)
	req2.Header.Set("Authorization", "Bearer "+token)
	resp2, err := http.DefaultClient.Do(req2)
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp2.StatusCode)
}

func TestOpenAPIDocumentIsServed(t *testing.T) {
	_, ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/api/openapi.json")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
