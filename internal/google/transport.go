package google

import "net/http"

// userAgentTransport tags every provider request with the service name.
type userAgentTransport struct {
	Transport http.RoundTripper
}

// RoundTrip adds the User-Agent header to each request.
func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", userAgent)
	return t.Transport.RoundTrip(req)
}
