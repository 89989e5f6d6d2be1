package oci

import "oras.land/oras-go/v2/registry/remote/auth"

// Option configures a Transport.
type Option func(*Transport)

// WithPlainHTTP uses plain HTTP (no TLS). Useful for local registries.
func WithPlainHTTP(enabled bool) Option {
	return func(t *Transport) {
		t.plainHTTP = enabled
	}
}

// WithUserAgent sets the User-Agent header for registry requests.
func WithUserAgent(ua string) Option {
	return func(t *Transport) {
		t.userAgent = ua
	}
}

// WithStaticCredentials sets username/password credentials for one registry host.
func WithStaticCredentials(registry, username, password string) Option {
	return func(t *Transport) {
		t.credential = auth.StaticCredential(registry, auth.Credential{
			Username: username,
			Password: password,
		})
	}
}

// WithStaticToken sets a bearer token for one registry host.
func WithStaticToken(registry, token string) Option {
	return func(t *Transport) {
		t.credential = auth.StaticCredential(registry, auth.Credential{
			AccessToken: token,
		})
	}
}

// WithDockerConfig reads credentials from the docker config file. If it
// cannot be loaded the transport stays anonymous.
func WithDockerConfig() Option {
	return func(t *Transport) {
		if cred := dockerCredential(); cred != nil {
			t.credential = cred
		}
	}
}
