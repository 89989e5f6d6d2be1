// Package oci provides a transport that reads images stored in OCI registries.
//
// Keys take the form oci://<registry>/<repository>@<digest> to fetch a blob
// directly, or oci://<registry>/<repository>:<tag> to resolve an image
// manifest and fetch its image layer. The layer chosen is the first whose
// media type starts with "image/", falling back to the first layer.
package oci

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"oras.land/oras-go/v2/errdef"
	"oras.land/oras-go/v2/registry"
	"oras.land/oras-go/v2/registry/remote"
	"oras.land/oras-go/v2/registry/remote/auth"
	"oras.land/oras-go/v2/registry/remote/credentials"
	"oras.land/oras-go/v2/registry/remote/errcode"
	"oras.land/oras-go/v2/registry/remote/retry"

	"github.com/meigma/imgload/transport"
)

// Scheme is the key scheme served by this transport.
const Scheme = "oci"

// maxManifestSize bounds how much of a manifest is read.
const maxManifestSize = 4 << 20

// ErrNoLayers is returned when a manifest has nothing to fetch.
var ErrNoLayers = errors.New("oci: manifest has no layers")

// Transport fetches oci:// keys.
type Transport struct {
	plainHTTP  bool
	userAgent  string
	credential auth.CredentialFunc
	authClient *auth.Client
}

var _ transport.SchemeHandler = (*Transport)(nil)

// New creates an OCI transport. Without credential options access is anonymous.
func New(opts ...Option) *Transport {
	t := &Transport{
		userAgent: "imgload/1.0",
	}
	for _, opt := range opts {
		opt(t)
	}

	t.authClient = &auth.Client{
		Client:     retry.DefaultClient,
		Cache:      auth.NewCache(),
		Credential: t.credential,
		Header: http.Header{
			"User-Agent": []string{t.userAgent},
		},
	}
	return t
}

// Schemes implements transport.SchemeHandler.
func (t *Transport) Schemes() []string {
	return []string{Scheme}
}

// Open resolves key and returns the image blob.
func (t *Transport) Open(ctx context.Context, key string) (*transport.Response, error) {
	ref, err := parseKey(key)
	if err != nil {
		return nil, err
	}

	repo, err := remote.NewRepository(ref.Registry + "/" + ref.Repository)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", transport.ErrMalformedKey, err)
	}
	repo.PlainHTTP = t.plainHTTP
	repo.Client = t.authClient

	if ref.ValidateReferenceAsDigest() == nil {
		desc, rc, err := repo.Blobs().FetchReference(ctx, ref.Reference)
		if err != nil {
			return nil, mapError(err)
		}
		return response(desc, rc), nil
	}

	layer, err := t.resolveLayer(ctx, repo, ref.Reference)
	if err != nil {
		return nil, err
	}
	rc, err := repo.Fetch(ctx, layer)
	if err != nil {
		return nil, mapError(err)
	}
	return response(layer, rc), nil
}

func (t *Transport) resolveLayer(ctx context.Context, repo *remote.Repository, tag string) (ocispec.Descriptor, error) {
	desc, rc, err := repo.FetchReference(ctx, tag)
	if err != nil {
		return ocispec.Descriptor{}, mapError(err)
	}
	defer rc.Close()

	if desc.MediaType != "" && desc.MediaType != ocispec.MediaTypeImageManifest {
		return ocispec.Descriptor{}, fmt.Errorf("oci: unsupported manifest media type %s", desc.MediaType)
	}

	var manifest ocispec.Manifest
	if err := json.NewDecoder(io.LimitReader(rc, maxManifestSize)).Decode(&manifest); err != nil {
		return ocispec.Descriptor{}, fmt.Errorf("oci: decode manifest: %w", err)
	}
	return selectLayer(manifest.Layers)
}

// selectLayer prefers the first image/* layer.
func selectLayer(layers []ocispec.Descriptor) (ocispec.Descriptor, error) {
	if len(layers) == 0 {
		return ocispec.Descriptor{}, ErrNoLayers
	}
	for _, l := range layers {
		if strings.HasPrefix(l.MediaType, "image/") {
			return l, nil
		}
	}
	return layers[0], nil
}

func response(desc ocispec.Descriptor, rc io.ReadCloser) *transport.Response {
	return &transport.Response{
		Body:          rc,
		ContentLength: desc.Size,
		ContentType:   desc.MediaType,
	}
}

// parseKey turns oci://host/repo[:tag|@digest] into a registry reference.
func parseKey(key string) (registry.Reference, error) {
	rest, ok := strings.CutPrefix(key, Scheme+"://")
	if !ok {
		return registry.Reference{}, fmt.Errorf("%w: %q is not an %s:// key", transport.ErrMalformedKey, key, Scheme)
	}
	ref, err := registry.ParseReference(rest)
	if err != nil {
		return registry.Reference{}, fmt.Errorf("%w: %v", transport.ErrMalformedKey, err)
	}
	if ref.Reference == "" {
		return registry.Reference{}, fmt.Errorf("%w: %q needs a tag or digest", transport.ErrMalformedKey, key)
	}
	return ref, nil
}

// mapError maps ORAS errors onto transport sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, errdef.ErrNotFound) {
		return fmt.Errorf("%w: %v", transport.ErrNotFound, err)
	}
	var errResp *errcode.ErrorResponse
	if errors.As(err, &errResp) && errResp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %v", transport.ErrNotFound, err)
	}
	return err
}

// dockerCredential loads ~/.docker/config.json. A missing or unreadable
// config yields anonymous access.
func dockerCredential() auth.CredentialFunc {
	store, err := credentials.NewStoreFromDocker(credentials.StoreOptions{})
	if err != nil {
		return nil
	}
	return credentials.Credential(store)
}
