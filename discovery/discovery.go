// Package discovery implements the broadcast radio-address listener (C8):
// a UDP socket on port 4992 that waits for a matching VITA-49 advertisement
// and decodes its key=value payload.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/sdrwf/wfcore/vita"
)

// Port is the default broadcast discovery port (spec §4.8).
const Port = 4992

// ErrNotFound is returned when no matching advertisement arrives before the
// listener's deadline.
var ErrNotFound = errors.New("discovery: not found")

// Address is the decoded radio address from a discovery advertisement.
type Address struct {
	IP   string
	Port uint16
}

func (a Address) String() string {
	return fmt.Sprintf("%s:%d", a.IP, a.Port)
}

// Match identifies which VITA-49 packet is the discovery advertisement: its
// class must equal check, and its stream id must equal StreamID.
type Match struct {
	Check    vita.ClassCheck
	StreamID uint32
}

// Listen binds a UDP socket on Port and waits for one matching
// advertisement, or until ctx is done. The socket is bound without
// SO_REUSEADDR, so Listen returns a bind error while another socket holds
// the port. S1: a datagram with
// EXT_DATA_WITH_ID, the discovery stream id, and payload "ip=10.0.3.34
// port=4992" decodes to 10.0.3.34:4992.
func Listen(ctx context.Context, match Match) (Address, error) {
	conn, err := net.ListenPacket("udp4", fmt.Sprintf(":%d", Port))
	if err != nil {
		return Address{}, fmt.Errorf("discovery: bind port %d: %w", Port, err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	decoder := vita.NewDecoder(match.Check)
	buf := make([]byte, 2048)

	for {
		if deadline, ok := ctx.Deadline(); ok {
			_ = conn.SetReadDeadline(deadline)
		}

		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return Address{}, fmt.Errorf("%w: %v", ErrNotFound, ctx.Err())
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				return Address{}, ErrNotFound
			}
			return Address{}, fmt.Errorf("discovery: read: %w", err)
		}

		p, err := decoder.Parse(buf[:n])
		if err != nil {
			continue // not a packet from our radio's class; ignore
		}
		if p.Header.StreamID != match.StreamID {
			continue
		}

		addr, err := decodePayload(p.Payload)
		if err != nil {
			continue
		}
		return addr, nil
	}
}

// decodePayload parses an ASCII "key=value ..." blob into an Address.
func decodePayload(payload []byte) (Address, error) {
	fields := make(map[string]string)
	for _, tok := range strings.Fields(string(payload)) {
		kv := strings.SplitN(tok, "=", 2)
		if len(kv) != 2 {
			continue
		}
		fields[kv[0]] = kv[1]
	}

	ip, ok := fields["ip"]
	if !ok {
		return Address{}, fmt.Errorf("discovery: payload missing ip=")
	}
	portStr, ok := fields["port"]
	if !ok {
		return Address{}, fmt.Errorf("discovery: payload missing port=")
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return Address{}, fmt.Errorf("discovery: bad port %q: %w", portStr, err)
	}

	return Address{IP: ip, Port: uint16(port)}, nil
}

// ListenTimeout is a convenience wrapper around Listen using a plain
// timeout instead of a caller-supplied context.
func ListenTimeout(timeout time.Duration, match Match) (Address, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return Listen(ctx, match)
}
