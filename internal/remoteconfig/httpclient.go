package remoteconfig

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// HTTPRemoteClient is the reference RemoteClient implementation: a thin
// REST client over a single configuration service replica. It speaks the
// same key-value wire shape as Azure App Configuration's data plane (GET
// /kv/{key}, If-None-Match conditional requests, a nextLink field in the
// response body for pagination) since that is the protocol this provider's model is drawn
// from, but any server exposing the same shape works.
type HTTPRemoteClient struct {
	baseURL string
	http    *http.Client
}

// NewHTTPRemoteClient builds a client against baseURL (e.g.
// "https://my-config.azconfig.io"), using httpClient if non-nil or
// http.DefaultClient otherwise.
func NewHTTPRemoteClient(baseURL string, httpClient *http.Client) *HTTPRemoteClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPRemoteClient{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// NewHTTPClientFor returns a ClientFor closure that builds one
// HTTPRemoteClient per replica endpoint, sharing httpClient across all of
// them. Pass nil for httpClient to use http.DefaultClient.
func NewHTTPClientFor(httpClient *http.Client) func(*Replica) RemoteClient {
	return func(r *Replica) RemoteClient {
		return NewHTTPRemoteClient(r.Endpoint, httpClient)
	}
}

type wireSetting struct {
	Key   string `json:"key"`
	Label string `json:"label,omitempty"`
	Value string `json:"value"`
	ETag  string `json:"etag"`
}

func (s wireSetting) toSetting() Setting {
	return Setting{Key: s.Key, Label: s.Label, Value: s.Value, ETag: s.ETag}
}

type wireListResponse struct {
	Items    []wireSetting `json:"items"`
	NextLink string        `json:"nextLink,omitempty"`
}

// List pages through /kv matching selector.
func (c *HTTPRemoteClient) List(ctx context.Context, selector Selector) ([]Setting, error) {
	q := url.Values{}
	if selector.KeyFilter != "" {
		q.Set("key", selector.KeyFilter)
	}
	if selector.LabelFilter != "" {
		q.Set("label", selector.LabelFilter)
	}

	path := "/kv?" + q.Encode()
	var out []Setting
	for path != "" {
		var page wireListResponse
		if err := c.getJSON(ctx, path, "", &page); err != nil {
			return nil, err
		}
		for _, s := range page.Items {
			out = append(out, s.toSetting())
		}
		path = page.NextLink
	}
	return out, nil
}

// ListSnapshot pages through /kv belonging to a named snapshot.
func (c *HTTPRemoteClient) ListSnapshot(ctx context.Context, name string) ([]Setting, error) {
	q := url.Values{}
	q.Set("snapshot", name)

	path := "/kv?" + q.Encode()
	var out []Setting
	for path != "" {
		var page wireListResponse
		if err := c.getJSON(ctx, path, "", &page); err != nil {
			return nil, err
		}
		for _, s := range page.Items {
			out = append(out, s.toSetting())
		}
		path = page.NextLink
	}
	return out, nil
}

type wireSnapshot struct {
	Name        string `json:"name"`
	Composition string `json:"compositionType"`
}

// GetSnapshot resolves a named snapshot's metadata.
func (c *HTTPRemoteClient) GetSnapshot(ctx context.Context, name string) (Snapshot, error) {
	var ws wireSnapshot
	if err := c.getJSON(ctx, "/snapshots/"+url.PathEscape(name), "", &ws); err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Name: ws.Name, Composition: ws.Composition}, nil
}

// Get fetches a single setting.
func (c *HTTPRemoteClient) Get(ctx context.Context, key, label string) (Setting, error) {
	q := url.Values{}
	if label != "" {
		q.Set("label", label)
	}
	path := "/kv/" + url.PathEscape(key)
	if enc := q.Encode(); enc != "" {
		path += "?" + enc
	}

	var ws wireSetting
	if err := c.getJSON(ctx, path, "", &ws); err != nil {
		return Setting{}, err
	}
	return ws.toSetting(), nil
}

// GetChange performs a conditional fetch against known's etag.
func (c *HTTPRemoteClient) GetChange(ctx context.Context, known Setting) (ChangeRecord, error) {
	q := url.Values{}
	if known.Label != "" {
		q.Set("label", known.Label)
	}
	path := "/kv/" + url.PathEscape(known.Key)
	if enc := q.Encode(); enc != "" {
		path += "?" + enc
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return ChangeRecord{}, NewError(KindInvalidConfig, "building request", err)
	}
	if known.ETag != "" {
		req.Header.Set("If-None-Match", known.ETag)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return ChangeRecord{}, NewError(KindTransient, "remote config request failed", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotModified:
		return ChangeRecord{Kind: ChangeNone, Key: known.Key, Label: known.Label}, nil
	case http.StatusNotFound:
		return ChangeRecord{Kind: ChangeDeleted, Key: known.Key, Label: known.Label}, nil
	case http.StatusOK:
		var ws wireSetting
		if err := json.NewDecoder(resp.Body).Decode(&ws); err != nil {
			return ChangeRecord{}, NewError(KindInvalidConfig, "decoding response", err)
		}
		s := ws.toSetting()
		return ChangeRecord{Kind: ChangeModified, Key: known.Key, Label: known.Label, Current: &s}, nil
	default:
		return ChangeRecord{}, c.statusError(resp)
	}
}

func (c *HTTPRemoteClient) getJSON(ctx context.Context, path, ifNoneMatch string, out interface{}) error {
	reqURL := path
	if !strings.HasPrefix(path, "http") {
		reqURL = c.baseURL + path
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return NewError(KindInvalidConfig, "building request", err)
	}
	if ifNoneMatch != "" {
		req.Header.Set("If-None-Match", ifNoneMatch)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return NewError(KindTransient, "remote config request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrSettingNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return c.statusError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return NewError(KindInvalidConfig, "decoding response", err)
	}
	return nil
}

func (c *HTTPRemoteClient) statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	kind := ClassifyHTTPStatus(resp.StatusCode)
	return NewError(kind, fmt.Sprintf("remote config returned %d: %s", resp.StatusCode, string(body)), nil)
}
