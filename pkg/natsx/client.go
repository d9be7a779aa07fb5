package natsx

import (
	"os"
	"strings"

	"github.com/nats-io/nats.go"
)

const (
	// HeaderDebugID carries the debug id of a published trace.
	HeaderDebugID = "Parley-Debug-Id"
	// HeaderProvider carries the provider that served the traced exchange.
	HeaderProvider = "Parley-Provider"
)

// NewClient connects to url, falling back to the NATS_URL environment
// variable and then to nats.DefaultURL. Without options the connection is
// named "parley" and uses compression.
func NewClient(url string, opts ...nats.Option) (*nats.Conn, error) {
	if url == "" {
		url = os.Getenv("NATS_URL")
	}
	if url == "" {
		url = nats.DefaultURL
	}
	if len(opts) == 0 {
		opts = append(opts, nats.Name("parley"), nats.Compression(true))
	}
	return nats.Connect(url, opts...)
}

// Subject joins a subject prefix and a token, replacing characters that are
// not allowed inside a token.
func Subject(prefix, token string) string {
	token = strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_").Replace(token)
	if prefix == "" {
		return token
	}
	return strings.TrimSuffix(prefix, ".") + "." + token
}
