// Command dnsprobe sends a single DNS query to a server over UDP and
// prints the response header, outside of any running balancer. It exercises
// the same synthetic-query and reply-parsing path the watchdog subsystem
// uses internally, exposed standalone for manually checking a forwarder
// from the command line.
package main

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/lanetnet/dnsbalancer/internal/dns"
	"github.com/lanetnet/dnsbalancer/internal/dnsfp"
)

func main() {
	var (
		server   = flag.String("server", "127.0.0.1:53", "DNS server HOST:PORT")
		name     = flag.String("name", "example.com", "Query name")
		qtype    = flag.Int("qtype", int(dns.TypeA), "Query type (numeric, A=1)")
		timeout  = flag.Duration("timeout", 2*time.Second, "Timeout")
		recvSize = flag.Int("recv-size", dns.MaxIncomingDNSMessageSize, "UDP receive buffer size")
		quiet    = flag.Bool("quiet", false, "Suppress output (exit status indicates success)")
	)
	flag.Parse()

	resp, err := queryUDP(*server, *name, uint16(*qtype), *timeout, *recvSize)
	if err != nil {
		if !*quiet {
			fmt.Fprintf(os.Stderr, "dnsprobe error: %v\n", err)
		}
		os.Exit(1)
	}
	if *quiet {
		return
	}

	meta, err := dns.ParseReplyMeta(resp)
	if err != nil {
		fmt.Printf("received %d bytes (unparseable: %v)\n", len(resp), err)
		os.Exit(1)
	}

	fmt.Printf("id=%d rcode=%d name=%q type=%d class=%d\n",
		meta.ID, dns.RCodeFromFlags(meta.Flags), meta.Q.Name, meta.Q.Type, meta.Q.Class)
}

func queryUDP(server, name string, qtype uint16, timeout time.Duration, recvSize int) ([]byte, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("name required")
	}

	addr, err := net.ResolveUDPAddr("udp", server)
	if err != nil {
		return nil, err
	}
	c, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	// id is arbitrary here: there is no client port to encode, this is a
	// one-shot probe outside of any tracking table.
	req, err := dnsfp.BuildWatchdogQuery(strings.TrimSuffix(name, "."), qtype, uint16(dns.ClassIN), 0x1234)
	if err != nil {
		return nil, err
	}

	_ = c.SetDeadline(time.Now().Add(timeout))
	if _, err := c.Write(req); err != nil {
		return nil, err
	}
	buf := make([]byte, recvSize)
	n, err := c.Read(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}
