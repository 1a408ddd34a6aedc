package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DynamicCake/dftools/auth"
	"github.com/DynamicCake/dftools/federation"
	"github.com/DynamicCake/dftools/plot"
	"github.com/DynamicCake/dftools/testutil"
)

func request(remoteAddr string, headers map[string]string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/instance/v0/whoami", nil)
	r.RemoteAddr = remoteAddr
	for k, v := range headers {
		r.Header.Set(k, v)
	}
	return r
}

func TestKeyAuth(t *testing.T) {
	f := testutil.NewFixture(t)
	owner := f.RegisterPlot(t, 23612)
	key, err := f.Store.CreateKey(context.Background(), 23612)
	require.NoError(t, err)

	a := &auth.KeyAuth{Store: f.Store}

	p, err := a.Authenticate(request("10.0.0.1:5000", map[string]string{auth.HeaderAPIKey: key}))
	require.NoError(t, err)
	assert.EqualValues(t, 23612, p.PlotID)
	assert.Equal(t, owner, p.Owner)

	_, err = a.Authenticate(request("10.0.0.1:5000", map[string]string{auth.HeaderAPIKey: "wrong"}))
	assert.ErrorIs(t, err, auth.ErrInvalidAPIKey)

	_, err = a.Authenticate(request("10.0.0.1:5000", nil))
	assert.ErrorIs(t, err, auth.ErrInvalidAPIKey)
}

func TestPlotAuthUnregistered(t *testing.T) {
	f := testutil.NewFixture(t)
	a := &auth.PlotAuth{Store: f.Store, AllowedIPs: auth.DebugGameServerIPs}

	claim, err := a.AuthenticateUnregistered(request("127.0.0.1:40000",
		map[string]string{auth.HeaderUserAgent: "Hypercube/7.2 (23612, DynamicCake)"}))
	require.NoError(t, err)
	assert.EqualValues(t, 23612, claim.PlotID)
	assert.Equal(t, "DynamicCake", claim.Owner)
}

func TestPlotAuthRejectsUnlistedIP(t *testing.T) {
	f := testutil.NewFixture(t)
	a := &auth.PlotAuth{Store: f.Store, AllowedIPs: auth.GameServerIPs}

	_, err := a.AuthenticateUnregistered(request("127.0.0.1:40000",
		map[string]string{auth.HeaderUserAgent: "Hypercube/7.2 (23612, DynamicCake)"}))
	assert.ErrorIs(t, err, auth.ErrIPNotAllowed)

	_, err = a.AuthenticateUnregistered(request("[::1]:40000",
		map[string]string{auth.HeaderUserAgent: "Hypercube/7.2 (23612, DynamicCake)"}))
	assert.ErrorIs(t, err, auth.ErrNotIPv4)

	_, err = a.AuthenticateUnregistered(request("not-an-address",
		map[string]string{auth.HeaderUserAgent: "Hypercube/7.2 (23612, DynamicCake)"}))
	assert.ErrorIs(t, err, auth.ErrNotIPv4)
}

func TestPlotAuthRejectsMalformedUserAgent(t *testing.T) {
	f := testutil.NewFixture(t)
	a := &auth.PlotAuth{Store: f.Store, AllowedIPs: auth.DebugGameServerIPs}

	_, err := a.AuthenticateUnregistered(request("127.0.0.1:40000",
		map[string]string{auth.HeaderUserAgent: "garbage"}))
	assert.ErrorIs(t, err, plot.ErrMalformedUserAgent)
}

func TestPlotAuthRegisteredVariant(t *testing.T) {
	f := testutil.NewFixture(t)
	owner := f.RegisterPlot(t, 23612)
	a := &auth.PlotAuth{Store: f.Store, AllowedIPs: auth.DebugGameServerIPs}

	headers := map[string]string{auth.HeaderUserAgent: "Hypercube/7.2 (23612, DynamicCake)"}
	p, err := a.Authenticate(request("127.0.0.1:40000", headers))
	require.NoError(t, err)
	assert.Equal(t, owner, p.Owner)
	assert.True(t, p.Instance.IsCurrent())

	headers[auth.HeaderUserAgent] = "Hypercube/7.2 (999, DynamicCake)"
	_, err = a.Authenticate(request("127.0.0.1:40000", headers))
	assert.ErrorIs(t, err, auth.ErrPlotNotRegistered)
}

func TestPlotAuthAcceptsBareRealIPAddr(t *testing.T) {
	f := testutil.NewFixture(t)
	a := &auth.PlotAuth{Store: f.Store, AllowedIPs: []netip.Addr{netip.MustParseAddr("51.222.245.229")}}

	_, err := a.AuthenticateUnregistered(request("51.222.245.229",
		map[string]string{auth.HeaderUserAgent: "Hypercube/7.2 (1, X)"}))
	require.NoError(t, err)
}

func TestEitherPicksSchemeByHeader(t *testing.T) {
	f := testutil.NewFixture(t)
	f.RegisterPlot(t, 1)
	key, err := f.Store.CreateKey(context.Background(), 1)
	require.NoError(t, err)

	e := &auth.Either{
		Key:  &auth.KeyAuth{Store: f.Store},
		Plot: &auth.PlotAuth{Store: f.Store, AllowedIPs: auth.DebugGameServerIPs},
	}

	principal, err := e.Authenticate(request("10.0.0.9:5000", map[string]string{auth.HeaderAPIKey: key}))
	require.NoError(t, err)
	assert.Equal(t, auth.SchemeKey, principal.Scheme)
	assert.EqualValues(t, 1, principal.Plot.PlotID)

	principal, err = e.Authenticate(request("127.0.0.1:5000",
		map[string]string{auth.HeaderUserAgent: "Hypercube/7.2 (1, DynamicCake)"}))
	require.NoError(t, err)
	assert.Equal(t, auth.SchemePlot, principal.Scheme)

	// An invalid key does not fall through to plot auth.
	_, err = e.Authenticate(request("127.0.0.1:5000", map[string]string{
		auth.HeaderAPIKey:    "wrong",
		auth.HeaderUserAgent: "Hypercube/7.2 (1, DynamicCake)",
	}))
	assert.ErrorIs(t, err, auth.ErrInvalidAPIKey)

	_, err = e.Authenticate(request("127.0.0.1:5000", map[string]string{}))
	assert.ErrorIs(t, err, auth.ErrMissingCredentials)
}

func TestServerAuth(t *testing.T) {
	pub, _ := testutil.NewKeyPair(t)
	tokens := federation.NewTokens([]byte("shared-secret"), "self.example.com", time.Hour)

	peer := plot.NewInstance(pub, "peer.example.com")
	token, err := tokens.Mint(peer)
	require.NoError(t, err)

	a := &auth.ServerAuth{Tokens: tokens}
	server, err := a.Authenticate(request("10.0.0.1:5000", map[string]string{auth.HeaderServerKey: token}))
	require.NoError(t, err)
	assert.Equal(t, plot.InstanceDomain("peer.example.com"), server.Domain)
	assert.True(t, pub.Equal(server.Key))

	_, err = a.Authenticate(request("10.0.0.1:5000", map[string]string{auth.HeaderServerKey: "junk"}))
	assert.ErrorIs(t, err, federation.ErrCannotVerify)

	_, err = a.Authenticate(request("10.0.0.1:5000", nil))
	assert.ErrorIs(t, err, federation.ErrCannotVerify)
}
