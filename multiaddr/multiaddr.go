/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package multiaddr parses and formats the composite "/proto/value/..."
// addresses used throughout the core. This is a closed, minimal grammar
// over a fixed protocol registry -- deliberately not the full
// github.com/multiformats/go-multiaddr codec, which supports protocols
// (circuit relay, QUIC, unix sockets, ...) this core has no use for.
// Structural composition (components(), layering rules) follows the same
// model multiformats/go-multiaddr popularized.
package multiaddr

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/facebook/p2pcore/errs"
	"github.com/facebook/p2pcore/identity"
)

// Protocol is a code from the closed registry this package supports.
type Protocol int

// The closed protocol registry.
const (
	IP4 Protocol = iota
	IP6
	TCP
	UDP
	WS
	WSS
	P2P
	DNS
)

var protoNames = map[Protocol]string{
	IP4: "ip4",
	IP6: "ip6",
	TCP: "tcp",
	UDP: "udp",
	WS:  "ws",
	WSS: "wss",
	P2P: "p2p",
	DNS: "dns",
}

var namesToProto = func() map[string]Protocol {
	m := make(map[string]Protocol, len(protoNames))
	for p, n := range protoNames {
		m[n] = p
	}
	return m
}()

func (p Protocol) String() string {
	if n, ok := protoNames[p]; ok {
		return n
	}
	return "unknown"
}

// hasValue reports whether a protocol code carries a value segment. ws/wss
// are bare markers -- they never consume a following segment.
func (p Protocol) hasValue() bool {
	return p != WS && p != WSS
}

// Component is one typed (protocol, value) tuple of a Multiaddr.
type Component struct {
	Proto Protocol
	// Raw is the textual value as it appeared in the address.
	Raw string
	// Typed values, populated per Proto: IP4/IP6 -> IP, TCP/UDP -> Port,
	// P2P -> Peer, DNS -> Raw only.
	IP   net.IP
	Port uint16
	Peer identity.PeerId
}

// Multiaddr is an ordered sequence of typed components.
type Multiaddr struct {
	components []Component
}

// Components yields the typed tuples in order.
func (m Multiaddr) Components() []Component {
	out := make([]Component, len(m.components))
	copy(out, m.components)
	return out
}

// Equal is structural equality on components.
func (m Multiaddr) Equal(other Multiaddr) bool {
	if len(m.components) != len(other.components) {
		return false
	}
	for i, c := range m.components {
		o := other.components[i]
		if c.Proto != o.Proto || c.Raw != o.Raw {
			return false
		}
	}
	return true
}

// String formats the Multiaddr back to its canonical "/proto/value/..."
// textual form.
func (m Multiaddr) String() string {
	var b strings.Builder
	for _, c := range m.components {
		b.WriteByte('/')
		b.WriteString(c.Proto.String())
		if c.Proto.hasValue() {
			b.WriteByte('/')
			b.WriteString(c.Raw)
		}
	}
	return b.String()
}

// Parse is total on well-formed strings and fails with BadAddr otherwise.
// Layering rules are enforced as components accumulate: tcp/udp must
// follow ip4, ip6, or dns; ws/wss must follow tcp.
func Parse(s string) (Multiaddr, error) {
	var m Multiaddr
	if s == "" || s[0] != '/' {
		return m, errs.New(errs.BadAddr, "address must start with '/': %q", s)
	}

	segs := strings.Split(s, "/")[1:] // leading "" before the first '/'
	i := 0
	for i < len(segs) {
		protoName := segs[i]
		i++
		proto, ok := namesToProto[protoName]
		if !ok {
			return Multiaddr{}, errs.New(errs.BadAddr, "unknown protocol %q in %q", protoName, s)
		}
		var value string
		if proto.hasValue() {
			if i >= len(segs) {
				return Multiaddr{}, errs.New(errs.BadAddr, "protocol %q missing value in %q", protoName, s)
			}
			value = segs[i]
			i++
		}

		c, err := newComponent(proto, value)
		if err != nil {
			return Multiaddr{}, err
		}
		if err := checkLayering(m.components, c); err != nil {
			return Multiaddr{}, err
		}
		m.components = append(m.components, c)
	}
	if len(m.components) == 0 {
		return Multiaddr{}, errs.New(errs.BadAddr, "empty address: %q", s)
	}
	return m, nil
}

func newComponent(proto Protocol, value string) (Component, error) {
	c := Component{Proto: proto, Raw: value}
	switch proto {
	case IP4:
		ip := net.ParseIP(value).To4()
		if ip == nil {
			return c, errs.New(errs.BadAddr, "invalid ip4 value %q", value)
		}
		c.IP = ip
	case IP6:
		ip := net.ParseIP(value)
		if ip == nil || ip.To4() != nil {
			return c, errs.New(errs.BadAddr, "invalid ip6 value %q", value)
		}
		c.IP = ip
	case TCP, UDP:
		port, err := strconv.ParseUint(value, 10, 16)
		if err != nil {
			return c, errs.New(errs.BadAddr, "invalid port value %q: %v", value, err)
		}
		c.Port = uint16(port)
	case P2P:
		pid, err := identity.DecodeBase58(value)
		if err != nil {
			return c, errs.New(errs.BadAddr, "invalid p2p value %q: %v", value, err)
		}
		c.Peer = pid
	case DNS:
		if value == "" {
			return c, errs.New(errs.BadAddr, "empty dns value")
		}
	case WS, WSS:
		if value != "" {
			return c, errs.New(errs.BadAddr, "%s takes no value, got %q", proto, value)
		}
	default:
		return c, errs.New(errs.BadAddr, "unsupported protocol %v", proto)
	}
	return c, nil
}

func checkLayering(prior []Component, next Component) error {
	switch next.Proto {
	case TCP, UDP:
		if len(prior) == 0 || !isAddressable(prior[len(prior)-1].Proto) {
			return errs.New(errs.BadAddr, "%s must follow ip4, ip6 or dns", next.Proto)
		}
	case WS, WSS:
		if len(prior) == 0 || prior[len(prior)-1].Proto != TCP {
			return errs.New(errs.BadAddr, "%s must follow tcp", next.Proto)
		}
	}
	return nil
}

func isAddressable(p Protocol) bool {
	return p == IP4 || p == IP6 || p == DNS
}

// NewTCP is a small constructor convenience used by tests and the driver
// for the common ip4+tcp[+p2p] shape.
func NewTCP(ip net.IP, port uint16, peer *identity.PeerId) Multiaddr {
	var m Multiaddr
	if ip4 := ip.To4(); ip4 != nil {
		m.components = append(m.components, Component{Proto: IP4, Raw: ip4.String(), IP: ip4})
	} else {
		m.components = append(m.components, Component{Proto: IP6, Raw: ip.String(), IP: ip})
	}
	m.components = append(m.components, Component{Proto: TCP, Raw: fmt.Sprintf("%d", port), Port: port})
	if peer != nil {
		m.components = append(m.components, Component{Proto: P2P, Raw: peer.EncodeBase58(), Peer: *peer})
	}
	return m
}
