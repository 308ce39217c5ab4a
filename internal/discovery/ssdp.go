package discovery

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/ipv4"
)

const (
	ssdpAddr   = "239.255.255.250:1900"
	ssdpTarget = "urn:schemas-upnp-org:device:MediaRenderer:1"
	ssdpMX     = 2
	ssdpTTL    = 2
)

// Response is one SSDP search answer.
type Response struct {
	Location string
	USN      string
	Headers  map[string]string
	FromIP   string
}

// Searcher sends an M-SEARCH and collects the answers.
type Searcher struct {
	// Addr is the destination of the search datagram. Defaults to the SSDP
	// multicast group.
	Addr string
	// Target is the ST header value.
	Target string
	// MX is the response-window hint in seconds.
	MX int
}

// NewSearcher returns a Searcher for media renderers on the SSDP group.
func NewSearcher() *Searcher {
	return &Searcher{Addr: ssdpAddr, Target: ssdpTarget, MX: ssdpMX}
}

// Discover sends one search and collects responses until timeout elapses or
// maxResults unique locations have been seen. Responses are returned in
// arrival order; repeats of a LOCATION are dropped. Silence is not an error.
func (s *Searcher) Discover(ctx context.Context, timeout time.Duration, maxResults int) ([]Response, error) {
	conn, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	// Keep the search on the local network segment.
	if err := ipv4.NewPacketConn(conn).SetMulticastTTL(ssdpTTL); err != nil {
		return nil, err
	}

	addr, err := net.ResolveUDPAddr("udp4", s.Addr)
	if err != nil {
		return nil, err
	}

	if err := sendSearch(conn, addr, s.Target, s.MX); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}

	results := make([]Response, 0)
	seen := make(map[string]struct{})

	buf := make([]byte, 65535)
	for maxResults <= 0 || len(results) < maxResults {
		if ctx.Err() != nil {
			return results, ctx.Err()
		}
		n, raddr, err := conn.ReadFrom(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				break
			}
			return results, err
		}

		resp := parseResponse(string(buf[:n]))
		if resp.Location == "" {
			continue
		}
		if _, exists := seen[resp.Location]; exists {
			continue
		}
		seen[resp.Location] = struct{}{}
		if udpAddr, ok := raddr.(*net.UDPAddr); ok {
			resp.FromIP = udpAddr.IP.String()
		}
		results = append(results, resp)
	}

	return results, nil
}

func searchMessage(addr, target string, mx int) string {
	return strings.Join([]string{
		"M-SEARCH * HTTP/1.1",
		"HOST: " + addr,
		"MAN: \"ssdp:discover\"",
		"MX: " + strconv.Itoa(mx),
		"ST: " + target,
		"",
		"",
	}, "\r\n")
}

func sendSearch(conn net.PacketConn, addr *net.UDPAddr, target string, mx int) error {
	// HOST always names the multicast group, even when the datagram is aimed elsewhere.
	_, err := conn.WriteTo([]byte(searchMessage(ssdpAddr, target, mx)), addr)
	return err
}

func parseResponse(raw string) Response {
	scanner := bufio.NewScanner(strings.NewReader(raw))
	headers := make(map[string]string)

	scanner.Scan() // status line

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			break
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.ToUpper(strings.TrimSpace(parts[0]))
		value := strings.TrimSpace(parts[1])
		headers[key] = value
	}

	return Response{
		Location: headers["LOCATION"],
		USN:      headers["USN"],
		Headers:  headers,
	}
}
