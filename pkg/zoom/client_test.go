package zoom

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutorhub-api/pkg/config"
)

type fakeZoom struct {
	tokenCalls int32
	lastBody   createMeetingBody
	lastPath   string
	createCode int
}

func (f *fakeZoom) server(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.tokenCalls, 1)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "client", user)
		assert.Equal(t, "secret", pass)
		assert.Equal(t, "account_credentials", r.URL.Query().Get("grant_type"))
		assert.Equal(t, "acct", r.URL.Query().Get("account_id"))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"access_token": "tok", "expires_in": 3600})
	})
	mux.HandleFunc("/v2/users/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		f.lastPath = r.URL.Path
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&f.lastBody))
		if f.createCode != 0 {
			w.WriteHeader(f.createCode)
			_, _ = w.Write([]byte(`{"code":1001,"message":"User does not exist"}`))
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":81234567890,"join_url":"https://zoom.us/j/1","start_url":"https://zoom.us/s/1","host_email":"a@example.com"}`))
	})
	mux.HandleFunc("/v2/meetings/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		if r.URL.Path == "/v2/meetings/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(srv *httptest.Server) *Client {
	return NewClient(config.ZoomConfig{
		AccountID:    "acct",
		ClientID:     "client",
		ClientSecret: "secret",
		BaseURL:      srv.URL + "/v2",
		AuthURL:      srv.URL + "/oauth/token",
	}, nil)
}

func TestCreateMeetingUsesFirstHostAndAlternates(t *testing.T) {
	fake := &fakeZoom{}
	client := newTestClient(fake.server(t))

	meeting, err := client.CreateMeeting(context.Background(), MeetingRequest{
		Topic:           "Assessment: Ada",
		HostEmails:      []string{"a@example.com", "b@example.com", "c@example.com"},
		Date:            "2024-06-03",
		Time:            "10:30",
		DurationMinutes: 30,
		Timezone:        "UTC",
	})
	require.NoError(t, err)
	assert.Equal(t, "81234567890", meeting.MeetingID)
	assert.Equal(t, "https://zoom.us/j/1", meeting.JoinURL)
	assert.Equal(t, "/v2/users/a@example.com/meetings", fake.lastPath)
	assert.Equal(t, "b@example.com;c@example.com", fake.lastBody.Settings.AlternativeHosts)
	assert.Equal(t, "2024-06-03T10:30:00", fake.lastBody.StartTime)
	assert.Equal(t, 2, fake.lastBody.Type)

	_, err = client.CreateMeeting(context.Background(), MeetingRequest{Date: "2024-06-04", Time: "09:00", DurationMinutes: 30})
	require.NoError(t, err)
	assert.Equal(t, "/v2/users/me/meetings", fake.lastPath)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fake.tokenCalls))
}

func TestCreateMeetingProviderError(t *testing.T) {
	fake := &fakeZoom{createCode: http.StatusNotFound}
	client := newTestClient(fake.server(t))

	_, err := client.CreateMeeting(context.Background(), MeetingRequest{HostEmails: []string{"x@example.com"}, Date: "2024-06-03", Time: "10:00", DurationMinutes: 30})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "User does not exist", apiErr.Message)
}

func TestCreateMeetingRejectsBadStart(t *testing.T) {
	client := NewClient(config.ZoomConfig{}, nil)
	_, err := client.CreateMeeting(context.Background(), MeetingRequest{Date: "03/06/2024", Time: "10:00"})
	assert.Error(t, err)
}

func TestDeleteMeetingTreatsNotFoundAsDone(t *testing.T) {
	fake := &fakeZoom{}
	client := newTestClient(fake.server(t))
	require.NoError(t, client.DeleteMeeting(context.Background(), "123"))
	require.NoError(t, client.DeleteMeeting(context.Background(), "missing"))
}

func TestDisabled(t *testing.T) {
	_, err := Disabled{}.CreateMeeting(context.Background(), MeetingRequest{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}
