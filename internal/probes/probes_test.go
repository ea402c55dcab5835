package probes

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/culture-union/checkpulse/models"
)

type panicProber struct{}

func (panicProber) Probe(context.Context, models.Task) models.Result {
	panic("boom")
}

type staticProber struct {
	result models.Result
}

func (p staticProber) Probe(context.Context, models.Task) models.Result {
	return p.result
}

func TestExecuteUnknownType(t *testing.T) {
	set := Set{}
	result := Execute(context.Background(), set, models.Task{ID: "t-1", Type: models.CheckType("smoke")})

	assert.Equal(t, "t-1", result.ID)
	assert.Equal(t, models.StatusError, result.Status)
	assert.Contains(t, result.Error, "smoke")
	require.NotNil(t, result.ResponseTime)
}

func TestExecuteRecoversPanic(t *testing.T) {
	set := Set{models.CheckPing: panicProber{}}
	result := Execute(context.Background(), set, models.Task{ID: "t-1", Type: models.CheckPing, GroupID: "g-1"})

	assert.Equal(t, models.StatusError, result.Status)
	assert.Contains(t, result.Error, "boom")
	assert.Equal(t, "t-1", result.ID)
	assert.Equal(t, "g-1", result.GroupID)
}

func TestExecuteStampsIdentityAndElapsed(t *testing.T) {
	set := Set{models.CheckTCP: staticProber{result: models.Result{Status: models.StatusOK}}}
	result := Execute(context.Background(), set, models.Task{ID: "t-9", Type: models.CheckTCP, GroupID: "g-9"})

	assert.Equal(t, "t-9", result.ID)
	assert.Equal(t, "g-9", result.GroupID)
	require.NotNil(t, result.ResponseTime)
	assert.GreaterOrEqual(t, *result.ResponseTime, 0.0)
}

func TestExecuteKeepsProberResponseTime(t *testing.T) {
	rt := 1.5
	set := Set{models.CheckTCP: staticProber{result: models.Result{Status: models.StatusOK, ResponseTime: &rt}}}
	result := Execute(context.Background(), set, models.Task{ID: "t-1", Type: models.CheckTCP})

	require.NotNil(t, result.ResponseTime)
	assert.Equal(t, 1.5, *result.ResponseTime)
}

func TestHTTPProberOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("X-Probe", "yes")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewHTTPProber(2 * time.Second)
	result := p.Probe(context.Background(), models.Task{Target: srv.URL, Type: models.CheckHTTP})

	assert.Equal(t, models.StatusOK, result.Status)
	require.NotNil(t, result.Code)
	assert.Equal(t, http.StatusOK, *result.Code)
	require.NotNil(t, result.Data)
	assert.Equal(t, models.CheckHTTP, result.Data.Type)
	assert.Equal(t, "yes", result.Data.Headers["X-Probe"])
	assert.Equal(t, srv.URL, result.Data.URL)
	require.NotNil(t, result.ResponseTime)
}

func TestHTTPProberServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewHTTPProber(2 * time.Second)
	result := p.Probe(context.Background(), models.Task{Target: srv.URL, Type: models.CheckHTTP})

	assert.Equal(t, models.StatusFail, result.Status)
	require.NotNil(t, result.Code)
	assert.Equal(t, http.StatusInternalServerError, *result.Code)
}

func TestHTTPProberConnectionRefused(t *testing.T) {
	p := NewHTTPProber(time.Second)
	result := p.Probe(context.Background(), models.Task{Target: "http://127.0.0.1:1", Type: models.CheckHTTP})

	assert.Equal(t, models.StatusFail, result.Status)
	assert.Nil(t, result.Code)
	assert.NotEmpty(t, result.Error)
}

func TestHTTPProberInvalidTarget(t *testing.T) {
	p := NewHTTPProber(time.Second)
	result := p.Probe(context.Background(), models.Task{Target: "", Type: models.CheckHTTP})

	assert.Equal(t, models.StatusError, result.Status)
}

func TestPrepareURL(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"example.com", "http://example.com"},
		{"example.com/healthz", "http://example.com/healthz"},
		{"https://example.com", "https://example.com"},
		{"http://example.com:8080", "http://example.com:8080"},
	}
	for _, tc := range cases {
		got, err := prepareURL(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got)
	}

	_, err := prepareURL("")
	assert.Error(t, err)
}

func TestTCPProberOK(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err == nil {
			conn.Close()
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	p := NewTCPProber(2 * time.Second)
	result := p.Probe(context.Background(), models.Task{Target: "127.0.0.1", Port: addr.Port, Type: models.CheckTCP})

	assert.Equal(t, models.StatusOK, result.Status)
	require.NotNil(t, result.Data)
	assert.Equal(t, "127.0.0.1", result.Data.Host)
	assert.Equal(t, addr.Port, result.Data.Port)
	require.NotNil(t, result.ResponseTime)
}

func TestTCPProberRefused(t *testing.T) {
	p := NewTCPProber(time.Second)
	result := p.Probe(context.Background(), models.Task{Target: "127.0.0.1", Port: 1, Type: models.CheckTCP})

	assert.Equal(t, models.StatusFail, result.Status)
	assert.NotEmpty(t, result.Error)
}

func TestTCPProberDefaultPort(t *testing.T) {
	p := NewTCPProber(100 * time.Millisecond)
	result := p.Probe(context.Background(), models.Task{Target: "192.0.2.1", Type: models.CheckTCP})

	require.NotNil(t, result.Data)
	assert.Equal(t, defaultTCPPort, result.Data.Port)
}

func TestParsePingTime(t *testing.T) {
	output := "64 bytes from 93.184.216.34: icmp_seq=1 ttl=56 time=12.4 ms"
	rtt, ok := parsePingTime(output)
	require.True(t, ok)
	assert.InDelta(t, 0.0124, rtt, 1e-9)

	_, ok = parsePingTime("ping: unknown host")
	assert.False(t, ok)
}

func TestSplitLines(t *testing.T) {
	output := "traceroute to example.com (93.184.216.34), 15 hops max\n 1  gateway (192.168.1.1)  0.5 ms\n\n 2  * * *\n"
	lines := splitLines(output)
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "15 hops max")
	assert.Contains(t, lines[2], "* * *")
}

func TestDNSProberUnsupportedType(t *testing.T) {
	p := NewDNSProber(time.Second)
	result := p.Probe(context.Background(), models.Task{Target: "example.com", RecordType: "SRV", Type: models.CheckDNS})

	assert.Equal(t, models.StatusError, result.Status)
	assert.Contains(t, result.Error, "SRV")
}

func TestDNSProberDefaultsToA(t *testing.T) {
	p := NewDNSProber(time.Second)
	result := p.Probe(context.Background(), models.Task{Target: "invalid.invalid", Type: models.CheckDNS})

	// Resolution of the reserved .invalid TLD never succeeds; what matters
	// here is the classification (fail, not error) and the record type default.
	assert.Equal(t, models.StatusFail, result.Status)
	require.NotNil(t, result.Data)
	assert.Equal(t, "A", result.Data.RecordType)
}
