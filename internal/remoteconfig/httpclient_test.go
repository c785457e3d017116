package remoteconfig

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPRemoteClient_List_FollowsPagination(t *testing.T) {
	var nextLinkServed bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("page") == "2" {
			nextLinkServed = true
			json.NewEncoder(w).Encode(wireListResponse{
				Items: []wireSetting{{Key: "b", Value: "2", ETag: "eb"}},
			})
			return
		}
		json.NewEncoder(w).Encode(wireListResponse{
			Items:    []wireSetting{{Key: "a", Value: "1", ETag: "ea"}},
			NextLink: "/kv?page=2",
		})
	}))
	defer server.Close()

	client := NewHTTPRemoteClient(server.URL, server.Client())
	settings, err := client.List(context.Background(), Selector{KeyFilter: "*"})
	require.NoError(t, err)
	require.True(t, nextLinkServed)
	require.Len(t, settings, 2)
	assert.Equal(t, "a", settings[0].Key)
	assert.Equal(t, "b", settings[1].Key)
}

func TestHTTPRemoteClient_Get_NotFoundMapsToErrSettingNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewHTTPRemoteClient(server.URL, server.Client())
	_, err := client.Get(context.Background(), "missing", "")
	require.ErrorIs(t, err, ErrSettingNotFound)
}

func TestHTTPRemoteClient_GetChange_NotModifiedIsChangeNone(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == "e1" {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		t.Fatalf("expected If-None-Match header to be set")
	}))
	defer server.Close()

	client := NewHTTPRemoteClient(server.URL, server.Client())
	change, err := client.GetChange(context.Background(), Setting{Key: "a", ETag: "e1"})
	require.NoError(t, err)
	assert.Equal(t, ChangeNone, change.Kind)
}

func TestHTTPRemoteClient_GetChange_ModifiedReturnsFreshSetting(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(wireSetting{Key: "a", Value: "2", ETag: "e2"})
	}))
	defer server.Close()

	client := NewHTTPRemoteClient(server.URL, server.Client())
	change, err := client.GetChange(context.Background(), Setting{Key: "a", ETag: "e1"})
	require.NoError(t, err)
	assert.Equal(t, ChangeModified, change.Kind)
	require.NotNil(t, change.Current)
	assert.Equal(t, "2", change.Current.Value)
}

func TestHTTPRemoteClient_GetChange_NotFoundIsChangeDeleted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewHTTPRemoteClient(server.URL, server.Client())
	change, err := client.GetChange(context.Background(), Setting{Key: "a", ETag: "e1"})
	require.NoError(t, err)
	assert.Equal(t, ChangeDeleted, change.Kind)
}

func TestHTTPRemoteClient_StatusError_ClassifiesByCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte("slow down"))
	}))
	defer server.Close()

	client := NewHTTPRemoteClient(server.URL, server.Client())
	_, err := client.Get(context.Background(), "a", "")
	require.Error(t, err)
	var rce *RemoteConfigError
	require.ErrorAs(t, err, &rce)
	assert.Equal(t, KindTransient, rce.Kind)
}

func TestNewHTTPClientFor_BuildsOnePerReplica(t *testing.T) {
	clientFor := NewHTTPClientFor(nil)
	client := clientFor(&Replica{Endpoint: "https://cfg.example.com"})
	require.NotNil(t, client)
}
