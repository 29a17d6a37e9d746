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

package cmd

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/facebook/p2pcore/identity"
	"github.com/facebook/p2pcore/iface"
	"github.com/facebook/p2pcore/metrics"
	"github.com/facebook/p2pcore/multiaddr"
	"github.com/facebook/p2pcore/swarm"
)

const readBufSize = 64 * 1024

// Driver wires a *swarm.Swarm to real TCP sockets and timers. The core is
// not safe for concurrent use, so every entry point (a socket read, a fired
// timer, a CLI-triggered Dial/Subscribe/Publish) takes mu before touching
// sw and drains its action queue before releasing it.
type Driver struct {
	mu sync.Mutex
	sw *swarm.Swarm

	conns      map[iface.ConnectionId]net.Conn
	nextConnID uint64

	timers map[iface.TimerId]*time.Timer

	rec *metrics.Recorder
	log *log.Entry
}

// NewDriver constructs a Driver around an already-configured Swarm.
func NewDriver(sw *swarm.Swarm, rec *metrics.Recorder) *Driver {
	return &Driver{
		sw:     sw,
		conns:  make(map[iface.ConnectionId]net.Conn),
		timers: make(map[iface.TimerId]*time.Timer),
		rec:    rec,
		log:    log.WithField("component", "driver"),
	}
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}

// Listen starts accepting inbound connections on addr (host:port form) and
// registers them with the core as they arrive. It returns once the listener
// is up; accepting continues on a background goroutine until ctx is done.
func (d *Driver) Listen(ctx context.Context, g *errgroup.Group, hostPort string) error {
	ln, err := net.Listen("tcp", hostPort)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", hostPort, err)
	}
	d.log.Infof("listening on %s", ln.Addr())

	g.Go(func() error {
		<-ctx.Done()
		return ln.Close()
	})
	g.Go(func() error {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("accept on %s: %w", hostPort, err)
			}
			connID := d.registerConnection(conn, conn.RemoteAddr().String(), swarm.Inbound)
			g.Go(func() error { return d.readLoop(ctx, connID, conn) })
		}
	})
	return nil
}

// Dial requests an outbound connection. addr is a p2pcore multiaddr (e.g.
// "/ip4/10.0.0.1/tcp/4001/p2p/<peer id>"); only its ip4/ip6 and tcp
// components matter to the socket dial. The p2p component (if present) is
// the identity the core checks the handshake-proven peer against, closing
// the connection on a mismatch.
func (d *Driver) Dial(ctx context.Context, g *errgroup.Group, addr string) error {
	ma, err := multiaddr.Parse(addr)
	if err != nil {
		return err
	}
	hostPort, err := tcpHostPort(ma)
	if err != nil {
		return err
	}

	d.mu.Lock()
	if err := d.sw.Dial(addr); err != nil {
		d.mu.Unlock()
		return err
	}
	d.pumpLocked()
	d.mu.Unlock()

	g.Go(func() error {
		conn, err := (&net.Dialer{}).DialContext(ctx, "tcp", hostPort)
		if err != nil {
			d.log.Errorf("dial %s (%s): %v", addr, hostPort, err)
			return nil
		}
		connID := d.registerConnection(conn, addr, swarm.Outbound)
		return d.readLoop(ctx, connID, conn)
	})
	return nil
}

func tcpHostPort(ma multiaddr.Multiaddr) (string, error) {
	var ip net.IP
	var port uint16
	for _, c := range ma.Components() {
		switch c.Proto {
		case multiaddr.IP4, multiaddr.IP6:
			ip = c.IP
		case multiaddr.TCP:
			port = c.Port
		}
	}
	if ip == nil || port == 0 {
		return "", fmt.Errorf("address %s has no ip4/ip6+tcp component", ma.String())
	}
	return net.JoinHostPort(ip.String(), fmt.Sprintf("%d", port)), nil
}

func (d *Driver) registerConnection(conn net.Conn, addr string, dir swarm.Direction) iface.ConnectionId {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextConnID++
	connID := iface.ConnectionId(d.nextConnID)
	d.conns[connID] = conn
	d.sw.OnConnectionOpened(connID, addr, dir)
	d.pumpLocked()
	return connID
}

func (d *Driver) readLoop(ctx context.Context, connID iface.ConnectionId, conn net.Conn) error {
	buf := make([]byte, readBufSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			d.mu.Lock()
			if ferr := d.sw.OnDataReceived(connID, append([]byte{}, buf[:n]...), nowMs()); ferr != nil {
				d.log.Warnf("connection %d: %v", connID, ferr)
			}
			d.pumpLocked()
			d.mu.Unlock()
		}
		if err != nil {
			d.closeConnection(connID, err)
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (d *Driver) closeConnection(connID iface.ConnectionId, reason error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	conn, ok := d.conns[connID]
	if !ok {
		return
	}
	conn.Close()
	delete(d.conns, connID)
	d.sw.OnConnectionClosed(connID, reason)
	d.pumpLocked()
}

// Subscribe, Publish are thin, lock-protected wrappers a CLI subcommand or
// console loop calls directly; every one of them flushes the action queue
// before returning.
func (d *Driver) Subscribe(topic, validatorExpr string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	err := d.sw.Subscribe(topic, validatorExpr)
	d.pumpLocked()
	return err
}

func (d *Driver) Publish(topic string, data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sw.Publish(topic, data)
	d.pumpLocked()
}

// DrainEvents returns and clears events queued by the Swarm since the last
// call, for a caller (the console loop) that wants to print them.
func (d *Driver) DrainEvents() []iface.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sw.DrainEvents()
}

// Peers returns the peer id of every connection with a resolved identity.
func (d *Driver) Peers() []identity.PeerId {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sw.Peers()
}

// pumpLocked executes every action the Swarm has queued. Caller must hold
// mu. It does not recurse: the CloseConnection case calls
// OnConnectionClosed inline, which queues an event but no action, and
// timer callbacks run on their own goroutine, taking mu before they call
// OnTimer and pumpLocked.
func (d *Driver) pumpLocked() {
	for _, a := range d.sw.Poll() {
		switch a.Kind {
		case iface.ActionSend:
			conn, ok := d.conns[a.ConnID]
			if !ok {
				continue
			}
			if _, err := conn.Write(a.Bytes); err != nil {
				d.log.Warnf("write to connection %d: %v", a.ConnID, err)
			}

		case iface.ActionCloseConnection:
			conn, ok := d.conns[a.ConnID]
			if !ok {
				continue
			}
			conn.Close()
			delete(d.conns, a.ConnID)
			d.sw.OnConnectionClosed(a.ConnID, nil)

		case iface.ActionSetTimer:
			timerID, durationMs := a.TimerID, a.DurationMs
			d.timers[timerID] = time.AfterFunc(time.Duration(durationMs)*time.Millisecond, func() {
				d.mu.Lock()
				defer d.mu.Unlock()
				delete(d.timers, timerID)
				d.sw.OnTimer(timerID, nowMs())
				d.pumpLocked()
			})

		case iface.ActionCancelTimer:
			if t, ok := d.timers[a.TimerID]; ok {
				t.Stop()
				delete(d.timers, a.TimerID)
			}

		case iface.ActionDial, iface.ActionListen, iface.ActionAccept:
			// These are driven by the Driver's own Listen/Dial entry points,
			// not replayed here: a Dial/Listen call already performed the
			// socket operation before the corresponding Swarm call that
			// queued this action.

		default:
			d.log.Warnf("unhandled action kind %v", a.Kind)
		}
	}
}

// LogEvent renders one event the way the console loop and run's background
// event watcher both want it displayed.
func LogEvent(ev iface.Event) {
	switch ev.Kind {
	case iface.EventIdentified:
		log.Infof("%s connection %d identified as %s", color.CyanString("identify"), ev.ConnID, ev.Peer.EncodeBase58())
	case iface.EventConnectionClosed:
		if ev.Reason != nil {
			log.Warnf("%s connection %d: %v", color.YellowString("closed"), ev.ConnID, ev.Reason)
		} else {
			log.Infof("%s connection %d", color.YellowString("closed"), ev.ConnID)
		}
	case iface.EventMessage:
		log.Infof("%s topic=%s from=%s bytes=%d", color.GreenString("message"), ev.Topic, ev.From.EncodeBase58(), len(ev.Data))
	case iface.EventPongReceived:
		log.Debugf("%s connection %d latency=%dms", color.MagentaString("pong"), ev.ConnID, ev.LatencyMs)
	case iface.EventPingTimeout:
		log.Warnf("%s connection %d", color.RedString("ping timeout"), ev.ConnID)
	case iface.EventIdentifyFailed:
		log.Warnf("%s connection %d: %v", color.RedString("identify failed"), ev.ConnID, ev.Reason)
	case iface.EventInsufficientPeers:
		log.Warnf("%s topic=%s", color.RedString("insufficient peers"), ev.Topic)
	case iface.EventSubscribed:
		log.Infof("%s topic=%s", color.CyanString("subscribed"), ev.Topic)
	}
}
