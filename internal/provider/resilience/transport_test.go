package resilience

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type trackingBody struct {
	io.Reader
	closed *bool
}

func (b trackingBody) Close() error {
	*b.closed = true
	return nil
}

// scriptedTransport answers each attempt with the next status code and
// remembers every body it handed out.
type scriptedTransport struct {
	statuses []int
	bodies   []*bool
}

func (s *scriptedTransport) RoundTrip(*http.Request) (*http.Response, error) {
	status := s.statuses[len(s.bodies)]
	closed := new(bool)
	s.bodies = append(s.bodies, closed)
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{},
		Body:       trackingBody{strings.NewReader("x"), closed},
	}, nil
}

func TestClient_DoWithContext_ClosesSupersededResponses(t *testing.T) {
	transport := &scriptedTransport{statuses: []int{502, 502, 200}}

	cfg := DefaultClientConfig("test")
	cfg.MaxRetries = 3
	cfg.InitialInterval = time.Millisecond
	client := NewClient(cfg)
	client.httpClient.Transport = transport

	req, err := http.NewRequest(http.MethodGet, "http://upstream.test/", http.NoBody)
	require.NoError(t, err)

	resp, err := client.DoWithContext(context.Background(), req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Len(t, transport.bodies, 3)
	assert.True(t, *transport.bodies[0])
	assert.True(t, *transport.bodies[1])
	assert.False(t, *transport.bodies[2])
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestClient_DoWithContext_KeepsLastResponseOpenWhenExhausted(t *testing.T) {
	transport := &scriptedTransport{statuses: []int{502, 502}}

	cfg := DefaultClientConfig("test")
	cfg.MaxRetries = 1
	cfg.InitialInterval = time.Millisecond
	client := NewClient(cfg)
	client.httpClient.Transport = transport

	req, err := http.NewRequest(http.MethodGet, "http://upstream.test/", http.NoBody)
	require.NoError(t, err)

	resp, err := client.DoWithContext(context.Background(), req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Len(t, transport.bodies, 2)
	assert.True(t, *transport.bodies[0])
	assert.False(t, *transport.bodies[1])
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}
