package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verso-archive/verso/pkg/verso"
	"github.com/verso-archive/verso/pkg/verso/api"
	"github.com/verso-archive/verso/pkg/verso/repo/memory"
	memorystorage "github.com/verso-archive/verso/pkg/verso/storage/memory"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	svc, err := verso.New(
		verso.WithRepository(memory.New()),
		verso.WithBlobStore("memory", memorystorage.New()),
	)
	require.NoError(t, err)

	srv := httptest.NewServer(api.NewRouter(svc))
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()

	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func createBucket(t *testing.T, srv *httptest.Server, name string) {
	t.Helper()

	resp := doJSON(t, http.MethodPost, srv.URL+"/buckets", map[string]string{"name": name})
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func uploadObject(t *testing.T, srv *httptest.Server, bucket, key, content string, fields map[string]string) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("key", key))
	for name, value := range fields {
		require.NoError(t, w.WriteField(name, value))
	}
	part, err := w.CreateFormFile("file", "upload.bin")
	require.NoError(t, err)
	_, err = io.Copy(part, strings.NewReader(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req, err := http.NewRequest(http.MethodPost, fmt.Sprintf("%s/buckets/%s/objects", srv.URL, bucket), &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestBucketEndpoints(t *testing.T) {
	srv := newTestServer(t)

	t.Run("Create", func(t *testing.T) {
		createBucket(t, srv, "docs")
	})

	t.Run("CreateDuplicate", func(t *testing.T) {
		resp := doJSON(t, http.MethodPost, srv.URL+"/buckets", map[string]string{"name": "docs"})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("CreateMissingName", func(t *testing.T) {
		resp := doJSON(t, http.MethodPost, srv.URL+"/buckets", map[string]string{})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("Get", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/buckets/docs")
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		bucket := decode[verso.Bucket](t, resp)
		assert.Equal(t, "docs", bucket.Name)
	})

	t.Run("GetNotFound", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/buckets/nope")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("List", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/buckets")
		require.NoError(t, err)
		buckets := decode[[]verso.Bucket](t, resp)
		assert.Len(t, buckets, 1)
	})

	t.Run("Delete", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodDelete, srv.URL+"/buckets/docs", nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	})
}

func TestObjectEndpoints(t *testing.T) {
	srv := newTestServer(t)
	createBucket(t, srv, "docs")

	t.Run("Upload", func(t *testing.T) {
		resp := uploadObject(t, srv, "docs", "report", "hello world", map[string]string{
			"create":        "new",
			"tag":           "stable",
			"content_type":  "text/plain",
			"download_name": "report.txt",
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		version := decode[verso.ObjectVersion](t, resp)
		assert.Equal(t, "report", version.Key)
		assert.Equal(t, int64(0), version.VersionNumber)
		assert.Equal(t, "stable", version.Tag)
		assert.Equal(t, "text/plain", version.ContentType)
		assert.Equal(t, verso.StatusUsed, version.Status)
	})

	t.Run("UploadConflict", func(t *testing.T) {
		resp := uploadObject(t, srv, "docs", "report", "again", map[string]string{"create": "new"})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("UploadInvalidMethod", func(t *testing.T) {
		resp := uploadObject(t, srv, "docs", "report", "again", map[string]string{"create": "upsert"})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("UploadUnknownBucket", func(t *testing.T) {
		resp := uploadObject(t, srv, "ghost", "report", "x", nil)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("UploadSecondVersion", func(t *testing.T) {
		resp := uploadObject(t, srv, "docs", "report", "hello again", map[string]string{"create": "version"})
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		version := decode[verso.ObjectVersion](t, resp)
		assert.Equal(t, int64(1), version.VersionNumber)
		// inherited from version 0
		assert.Equal(t, "text/plain", version.ContentType)
	})

	t.Run("GetLatest", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/buckets/docs/objects/report")
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		version := decode[verso.ObjectVersion](t, resp)
		assert.Equal(t, int64(1), version.VersionNumber)
	})

	t.Run("GetByVersion", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/buckets/docs/objects/report?version=0")
		require.NoError(t, err)
		version := decode[verso.ObjectVersion](t, resp)
		assert.Equal(t, int64(0), version.VersionNumber)
	})

	t.Run("GetInvalidVersion", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/buckets/docs/objects/report?version=abc")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("GetInvalidUUID", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/buckets/docs/objects/report?uuid=zzz")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("ListVersions", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/buckets/docs/objects/report/versions")
		require.NoError(t, err)
		versions := decode[[]verso.ObjectVersion](t, resp)
		assert.Len(t, versions, 2)
	})

	t.Run("Download", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/buckets/docs/objects/report/data?version=0")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		data, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, "hello world", string(data))
		assert.Equal(t, "text/plain", resp.Header.Get("Content-Type"))
		assert.Contains(t, resp.Header.Get("Content-Disposition"), "report.txt")
	})

	t.Run("RedirectUnsupported", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/buckets/docs/objects/report/data?redirect=true")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("DeleteWithoutFilter", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodDelete, srv.URL+"/buckets/docs/objects/report", nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("SoftDelete", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodDelete, srv.URL+"/buckets/docs/objects/report?version=1", nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		version := decode[verso.ObjectVersion](t, resp)
		assert.Equal(t, verso.StatusDeleted, version.Status)
	})

	t.Run("Purge", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodDelete, srv.URL+"/buckets/docs/objects/report?version=1&purge=true", nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		version := decode[verso.ObjectVersion](t, resp)
		assert.Equal(t, verso.StatusPurged, version.Status)
	})
}

func TestCollectionEndpoints(t *testing.T) {
	srv := newTestServer(t)
	createBucket(t, srv, "docs")

	resp := uploadObject(t, srv, "docs", "intro", "intro content", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	t.Run("Create", func(t *testing.T) {
		resp := doJSON(t, http.MethodPost, srv.URL+"/buckets/docs/collections", map[string]any{
			"key":     "handbook",
			"create":  "new",
			"members": []map[string]any{{"key": "intro"}},
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		collection := decode[verso.CollectionVersion](t, resp)
		assert.Equal(t, "handbook", collection.Key)
		require.Len(t, collection.Members, 1)
		assert.Equal(t, "intro", collection.Members[0].ObjectKey)
	})

	t.Run("CreateMemberNotFound", func(t *testing.T) {
		resp := doJSON(t, http.MethodPost, srv.URL+"/buckets/docs/collections", map[string]any{
			"key":     "broken",
			"members": []map[string]any{{"key": "ghost"}},
		})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("Get", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/buckets/docs/collections/handbook")
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		collection := decode[verso.CollectionVersion](t, resp)
		assert.Equal(t, int64(0), collection.VersionNumber)
	})

	t.Run("ListVersions", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/buckets/docs/collections/handbook/versions")
		require.NoError(t, err)
		versions := decode[[]verso.CollectionVersion](t, resp)
		assert.Len(t, versions, 1)
	})

	t.Run("DeleteWithoutFilter", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodDelete, srv.URL+"/buckets/docs/collections/handbook", nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("Delete", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodDelete, srv.URL+"/buckets/docs/collections/handbook?version=0", nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		collection := decode[verso.CollectionVersion](t, resp)
		assert.Equal(t, verso.StatusDeleted, collection.Status)
	})
}

func TestAuditEndpoint(t *testing.T) {
	srv := newTestServer(t)
	createBucket(t, srv, "docs")

	resp := uploadObject(t, srv, "docs", "report", "content", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	t.Run("List", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/audit")
		require.NoError(t, err)
		entries := decode[[]verso.AuditEntry](t, resp)
		require.Len(t, entries, 2)
		assert.Equal(t, verso.AuditCreateBucket, entries[0].Operation)
		assert.Equal(t, verso.AuditCreateObject, entries[1].Operation)
	})

	t.Run("Pagination", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/audit?offset=1&limit=1")
		require.NoError(t, err)
		entries := decode[[]verso.AuditEntry](t, resp)
		require.Len(t, entries, 1)
		assert.Equal(t, verso.AuditCreateObject, entries[0].Operation)
	})
}

func TestUploadContentTypeHandling(t *testing.T) {
	srv := newTestServer(t)
	createBucket(t, srv, "media")

	upload := func(t *testing.T, key, partType string, fields map[string]string) *verso.ObjectVersion {
		t.Helper()

		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		require.NoError(t, w.WriteField("key", key))
		for name, value := range fields {
			require.NoError(t, w.WriteField(name, value))
		}
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", `form-data; name="file"; filename="upload.bin"`)
		header.Set("Content-Type", partType)
		part, err := w.CreatePart(header)
		require.NoError(t, err)
		_, err = io.WriteString(part, "payload")
		require.NoError(t, err)
		require.NoError(t, w.Close())

		req, err := http.NewRequest(http.MethodPost, srv.URL+"/buckets/media/objects", &buf)
		require.NoError(t, err)
		req.Header.Set("Content-Type", w.FormDataContentType())

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		version := decode[verso.ObjectVersion](t, resp)
		return &version
	}

	t.Run("ExplicitPartHeader", func(t *testing.T) {
		version := upload(t, "notes", "text/markdown", nil)
		assert.Equal(t, "text/markdown", version.ContentType)
	})

	t.Run("FormFieldOverridesPartHeader", func(t *testing.T) {
		version := upload(t, "clip", "text/markdown", map[string]string{"content_type": "video/mp4"})
		assert.Equal(t, "video/mp4", version.ContentType)
	})

	t.Run("GenericPartHeaderIsUnset", func(t *testing.T) {
		version := upload(t, "raw", "application/octet-stream", nil)
		assert.Empty(t, version.ContentType)
	})

	// Multipart writers stamp file parts with application/octet-stream when
	// the caller sets nothing, so a version upload without a content type
	// must still inherit from the prior version.
	t.Run("SecondVersionInheritsThroughGenericHeader", func(t *testing.T) {
		first := upload(t, "doc", "text/plain", nil)
		require.Equal(t, "text/plain", first.ContentType)

		second := upload(t, "doc", "application/octet-stream", map[string]string{"create": "version"})
		assert.Equal(t, int64(1), second.VersionNumber)
		assert.Equal(t, "text/plain", second.ContentType)
	})
}
