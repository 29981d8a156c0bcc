package registry

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/arclight-project/arclight/internal/protocol"
)

// ReachabilityProbe validates that a registering game server's
// advertised endpoint is actually reachable, returning the measured
// round-trip time. Context cancellation bounds the probe.
type ReachabilityProbe interface {
	Probe(ctx context.Context, address string, port uint16) (time.Duration, error)
}

// UDPProbe sends a single magic byte to the advertised UDP endpoint
// and waits for it to be echoed back. Game servers answer the probe on
// their game port, so a reply both proves reachability and gives a
// latency estimate for ping-favoring matchmaking.
type UDPProbe struct{}

func (p *UDPProbe) Probe(ctx context.Context, address string, port uint16) (time.Duration, error) {
	endpoint := net.JoinHostPort(address, strconv.Itoa(int(port)))
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "udp", endpoint)
	if err != nil {
		return 0, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return 0, err
		}
	}

	start := time.Now()
	if _, err := conn.Write([]byte{protocol.ProbeMagicByte}); err != nil {
		return 0, fmt.Errorf("send probe to %s: %w", endpoint, err)
	}

	reply := make([]byte, 16)
	n, err := conn.Read(reply)
	if err != nil {
		return 0, fmt.Errorf("await probe reply from %s: %w", endpoint, err)
	}
	if n < 1 || reply[0] != protocol.ProbeMagicByte {
		return 0, fmt.Errorf("unexpected probe reply from %s", endpoint)
	}
	return time.Since(start), nil
}
