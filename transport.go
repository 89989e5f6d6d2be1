package imgload

import (
	"github.com/meigma/imgload/transport"
	httptransport "github.com/meigma/imgload/transport/http"
	"github.com/meigma/imgload/transport/oci"
)

// DefaultTransport returns a transport serving http and https keys over
// net/http and oci keys from OCI registries with anonymous access.
func DefaultTransport() *transport.Mux {
	return transport.NewMux(httptransport.New(), oci.New())
}
