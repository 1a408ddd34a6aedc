package auth

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"

	"github.com/DynamicCake/dftools/plot"
	"github.com/DynamicCake/dftools/store"
)

// GameServerIPs is the release allow-list: the game-server addresses whose
// plot claims are trusted. Only addresses verified by an operator belong
// here.
var GameServerIPs = []netip.Addr{
	netip.AddrFrom4([4]byte{51, 222, 245, 229}),
}

// DebugGameServerIPs additionally allows loopback for local development.
var DebugGameServerIPs = append([]netip.Addr{
	netip.AddrFrom4([4]byte{127, 0, 0, 1}),
}, GameServerIPs...)

// PlotAuth authenticates the legacy game-server credential: a structured
// User-Agent of the form "Hypercube/<ver> (<plot_id>, <owner_name>)" sent
// from an allow-listed IPv4 address. It identifies the game-server process
// vouching for a plot, not an end user, which is why it is pinned to known
// server addresses.
//
// This is the only scheme that can authenticate a plot that is not yet
// registered; registration itself depends on it.
type PlotAuth struct {
	Log        *slog.Logger
	Store      *store.Store
	AllowedIPs []netip.Addr
}

// AuthenticateUnregistered validates the IP and parses the claim without
// consulting the plot directory. The owner in the result is a claimed
// name, not a verified UUID.
func (a *PlotAuth) AuthenticateUnregistered(r *http.Request) (plot.Unregistered, error) {
	addr, err := peerAddr(r)
	if err != nil {
		return plot.Unregistered{}, err
	}
	if !a.allowed(addr) {
		a.log().Info("denied game-server ip", "addr", addr)
		return plot.Unregistered{}, ErrIPNotAllowed
	}

	claim, err := plot.ParseUserAgent(r.Header.Get(HeaderUserAgent))
	if err != nil {
		a.log().Error("malformed user agent", "header", r.Header.Get(HeaderUserAgent))
		return plot.Unregistered{}, err
	}
	return claim, nil
}

// Authenticate layers a registration check on top of the unregistered
// variant, upgrading the claimed owner name to the stored owner UUID and
// instance.
func (a *PlotAuth) Authenticate(r *http.Request) (plot.Plot, error) {
	claim, err := a.AuthenticateUnregistered(r)
	if err != nil {
		return plot.Plot{}, err
	}
	p, err := a.Store.Get(r.Context(), claim.PlotID)
	if err != nil {
		return plot.Plot{}, fmt.Errorf("looking up claimed plot: %w", err)
	}
	if p == nil {
		return plot.Plot{}, ErrPlotNotRegistered
	}
	return *p, nil
}

func (a *PlotAuth) allowed(addr netip.Addr) bool {
	for _, ip := range a.AllowedIPs {
		if ip == addr {
			return true
		}
	}
	return false
}

func (a *PlotAuth) log() *slog.Logger {
	if a.Log != nil {
		return a.Log
	}
	return slog.Default()
}

// peerAddr extracts the caller's IPv4 address from the request. RemoteAddr
// may be bare (behind the RealIP middleware) or host:port.
func peerAddr(r *http.Request) (netip.Addr, error) {
	var addr netip.Addr
	if ap, err := netip.ParseAddrPort(r.RemoteAddr); err == nil {
		addr = ap.Addr()
	} else if a, err := netip.ParseAddr(r.RemoteAddr); err == nil {
		addr = a
	} else {
		return netip.Addr{}, ErrNotIPv4
	}
	addr = addr.Unmap()
	if !addr.Is4() {
		return netip.Addr{}, ErrNotIPv4
	}
	return addr, nil
}
