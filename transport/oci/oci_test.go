package oci

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/imgload/transport"
)

// fakeRegistry serves a single repository with one tagged manifest.
type fakeRegistry struct {
	blobs     map[digest.Digest][]byte
	manifests map[string][]byte
}

func (f *fakeRegistry) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	switch {
	case path == "/v2/" || path == "/v2":
		w.WriteHeader(http.StatusOK)
	case strings.HasPrefix(path, "/v2/test/img/blobs/"):
		dgst := digest.Digest(strings.TrimPrefix(path, "/v2/test/img/blobs/"))
		data, ok := f.blobs[dgst]
		if !ok {
			http.NotFound(w, r)
			return
		}
		f.write(w, r, "application/octet-stream", dgst, data)
	case strings.HasPrefix(path, "/v2/test/img/manifests/"):
		ref := strings.TrimPrefix(path, "/v2/test/img/manifests/")
		data, ok := f.manifests[ref]
		if !ok {
			http.NotFound(w, r)
			return
		}
		f.write(w, r, ocispec.MediaTypeImageManifest, digest.FromBytes(data), data)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeRegistry) write(w http.ResponseWriter, r *http.Request, mediaType string, dgst digest.Digest, data []byte) {
	w.Header().Set("Content-Type", mediaType)
	w.Header().Set("Docker-Content-Digest", dgst.String())
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(data)
}

func newFakeRegistry(t *testing.T, layers map[string][]byte) (host string, blobDigests map[string]digest.Digest) {
	t.Helper()

	f := &fakeRegistry{
		blobs:     make(map[digest.Digest][]byte),
		manifests: make(map[string][]byte),
	}
	blobDigests = make(map[string]digest.Digest)

	var descs []ocispec.Descriptor
	// Deterministic order: non-image layer first so selection is exercised.
	for _, mediaType := range []string{"application/vnd.example.thumbnail-meta", "image/png"} {
		data, ok := layers[mediaType]
		if !ok {
			continue
		}
		dgst := digest.FromBytes(data)
		f.blobs[dgst] = data
		blobDigests[mediaType] = dgst
		descs = append(descs, ocispec.Descriptor{MediaType: mediaType, Digest: dgst, Size: int64(len(data))})
	}

	config := []byte("{}")
	f.blobs[digest.FromBytes(config)] = config
	manifest := ocispec.Manifest{
		MediaType: ocispec.MediaTypeImageManifest,
		Config: ocispec.Descriptor{
			MediaType: ocispec.MediaTypeEmptyJSON,
			Digest:    digest.FromBytes(config),
			Size:      int64(len(config)),
		},
		Layers: descs,
	}
	manifest.SchemaVersion = 2
	raw, err := json.Marshal(manifest)
	require.NoError(t, err)
	f.manifests["v1"] = raw
	f.manifests[digest.FromBytes(raw).String()] = raw

	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return strings.TrimPrefix(srv.URL, "http://"), blobDigests
}

func TestTransportOpen(t *testing.T) {
	t.Parallel()

	pngBytes := []byte("\x89PNG\r\n\x1a\nnot-really-a-png")
	meta := []byte(`{"alt":"a cat"}`)
	host, digests := newFakeRegistry(t, map[string][]byte{
		"image/png":                              pngBytes,
		"application/vnd.example.thumbnail-meta": meta,
	})
	tr := New(WithPlainHTTP(true))

	t.Run("fetches blob by digest", func(t *testing.T) {
		t.Parallel()
		key := "oci://" + host + "/test/img@" + digests["image/png"].String()

		resp, err := tr.Open(context.Background(), key)
		require.NoError(t, err)
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, pngBytes, data)
		assert.Equal(t, int64(len(pngBytes)), resp.ContentLength)
	})

	t.Run("resolves tag to image layer", func(t *testing.T) {
		t.Parallel()
		resp, err := tr.Open(context.Background(), "oci://"+host+"/test/img:v1")
		require.NoError(t, err)
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, pngBytes, data)
		assert.Equal(t, "image/png", resp.ContentType)
		assert.Equal(t, int64(len(pngBytes)), resp.ContentLength)
	})

	t.Run("missing tag is not found", func(t *testing.T) {
		t.Parallel()
		_, err := tr.Open(context.Background(), "oci://"+host+"/test/img:nope")
		require.ErrorIs(t, err, transport.ErrNotFound)
	})

	t.Run("missing blob is not found", func(t *testing.T) {
		t.Parallel()
		missing := digest.FromString("missing")
		_, err := tr.Open(context.Background(), "oci://"+host+"/test/img@"+missing.String())
		require.ErrorIs(t, err, transport.ErrNotFound)
	})
}

func TestParseKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		key      string
		wantRepo string
		wantRef  string
		wantErr  bool
	}{
		{
			name:     "tag",
			key:      "oci://registry.example.com/images/cat:v1",
			wantRepo: "images/cat",
			wantRef:  "v1",
		},
		{
			name:     "digest",
			key:      "oci://registry.example.com/images/cat@" + digest.FromString("x").String(),
			wantRepo: "images/cat",
			wantRef:  digest.FromString("x").String(),
		},
		{name: "wrong scheme", key: "https://registry.example.com/images/cat:v1", wantErr: true},
		{name: "no reference", key: "oci://registry.example.com/images/cat", wantErr: true},
		{name: "invalid reference", key: "oci://UPPER/Case:v1", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ref, err := parseKey(tt.key)
			if tt.wantErr {
				require.ErrorIs(t, err, transport.ErrMalformedKey)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "registry.example.com", ref.Registry)
			assert.Equal(t, tt.wantRepo, ref.Repository)
			assert.Equal(t, tt.wantRef, ref.Reference)
		})
	}
}

func TestSelectLayer(t *testing.T) {
	t.Parallel()

	_, err := selectLayer(nil)
	require.ErrorIs(t, err, ErrNoLayers)

	meta := ocispec.Descriptor{MediaType: "application/json"}
	img := ocispec.Descriptor{MediaType: "image/webp"}

	got, err := selectLayer([]ocispec.Descriptor{meta, img})
	require.NoError(t, err)
	assert.Equal(t, img, got)

	got, err = selectLayer([]ocispec.Descriptor{meta})
	require.NoError(t, err)
	assert.Equal(t, meta, got, "falls back to the first layer")
}

func TestNewOptions(t *testing.T) {
	t.Parallel()

	tr := New()
	assert.False(t, tr.plainHTTP)
	assert.Equal(t, "imgload/1.0", tr.userAgent)
	assert.Nil(t, tr.credential)
	assert.Equal(t, []string{"oci"}, tr.Schemes())

	tr = New(WithPlainHTTP(true), WithUserAgent("ua/2"), WithStaticCredentials("example.com", "u", "p"))
	assert.True(t, tr.plainHTTP)
	assert.Equal(t, "ua/2", tr.userAgent)
	require.NotNil(t, tr.credential)

	cred, err := tr.credential(context.Background(), "example.com")
	require.NoError(t, err)
	assert.Equal(t, "u", cred.Username)

	tr = New(WithStaticToken("example.com", "tok"))
	cred, err = tr.credential(context.Background(), "example.com")
	require.NoError(t, err)
	assert.Equal(t, "tok", cred.AccessToken)
}
