package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFetchFarms(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, ActionGetFarms, r.URL.Query().Get("action"))
		// Unknown envelope fields must be tolerated.
		w.Write([]byte(`{"success":true,"data":[{"id":"a","name":"Alpha","type":"berries"},{"id":"b"}],"timestamp":12345,"requestId":"x"}`))
	}))
	defer srv.Close()

	list, err := NewClient(srv.URL).FetchFarms(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "Alpha", list[0].Name)
	require.Equal(t, "berries", list[0].Type)
}

func TestFetchFarmsServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false,"error":"sheet unavailable"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).FetchFarms(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "sheet unavailable")
	var netErr *NetworkError
	require.False(t, errors.As(err, &netErr), "a server-side error is not a transport failure")
}

func TestSubmitWriteAccepted(t *testing.T) {
	t.Parallel()

	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"success":true,"message":"saved"}`))
	}))
	defer srv.Close()

	res, err := NewClient(srv.URL).SubmitWrite(context.Background(), ActionAddReview, []byte(`{"farmId":"a","rating":4}`))
	require.NoError(t, err)
	require.True(t, res.Accepted)
	require.Equal(t, "saved", res.Message)

	// The action key rides alongside the payload fields.
	require.Equal(t, ActionAddReview, got["action"])
	require.Equal(t, "a", got["farmId"])
	require.EqualValues(t, 4, got["rating"])
}

func TestSubmitWriteRejected(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false,"error":"review limit reached"}`))
	}))
	defer srv.Close()

	res, err := NewClient(srv.URL).SubmitWrite(context.Background(), ActionAddReview, []byte(`{}`))
	require.NoError(t, err, "a rejection is a verdict, not a failure")
	require.False(t, res.Accepted)
	require.Equal(t, "review limit reached", res.Message)
}

func TestSubmitWriteNonEnvelopeBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`<html>Bad Gateway</html>`))
	}))
	defer srv.Close()

	res, err := NewClient(srv.URL).SubmitWrite(context.Background(), ActionAddFarm, []byte(`{}`))
	require.NoError(t, err)
	require.False(t, res.Accepted)
	require.Contains(t, res.Message, "502")
}

func TestSubmitWriteTransportFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listening anymore

	_, err := NewClient(srv.URL).SubmitWrite(context.Background(), ActionAddFarm, []byte(`{}`))
	require.Error(t, err)
	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	require.Equal(t, ActionAddFarm, netErr.Op)
}

func TestVerifyIdentity(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, ActionCheckUser, body["action"])
		if body["email"] == "veteran@example.com" {
			w.Write([]byte(`{"success":true,"registered":true}`))
			return
		}
		w.Write([]byte(`{"success":true,"registered":false}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	ok, err := client.VerifyIdentity(context.Background(), "veteran@example.com")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = client.VerifyIdentity(context.Background(), "stranger@example.com")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestVerifyIdentityGarbledResponse(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`<html>Bad Gateway</html>`))
	}))
	defer srv.Close()

	// A body that is not the envelope must surface as an error, never as
	// a quiet "not registered".
	_, err := NewClient(srv.URL).VerifyIdentity(context.Background(), "veteran@example.com")
	require.Error(t, err)
	require.Contains(t, err.Error(), "502")
	var netErr *NetworkError
	require.False(t, errors.As(err, &netErr))
}
