package transmitter

import (
	"context"
	"encoding/binary"
	"fmt"
	"log"
	"net"
	"sync"
)

// UDP forwards every word buffer as one datagram to a monitor, typically an
// SDR bridge or a capture tool on the bench. Words are big-endian.
type UDP struct {
	address string
	port    int
	logger  *log.Logger

	mu     sync.Mutex
	conn   *net.UDPConn
	remote *net.UDPAddr
	buf    []byte
	sent   uint64
}

// NewUDP creates a monitor transmitter for address:port
func NewUDP(address string, port int, logger *log.Logger) *UDP {
	return &UDP{
		address: address,
		port:    port,
		logger:  logger,
	}
}

// Open resolves the monitor address and creates an unbound socket
func (u *UDP) Open() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	remote, err := ParseUDPAddr(u.address, u.port)
	if err != nil {
		return fmt.Errorf("resolve monitor %s:%d: %w", u.address, u.port, err)
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		return fmt.Errorf("open monitor socket: %w", err)
	}

	u.conn = conn
	u.remote = remote
	u.logf("UDP monitor %s -> %s", conn.LocalAddr(), remote)
	return nil
}

// Send writes the words as one datagram. A write on a UDP socket completes
// once the kernel has the datagram, which is the acceptance point here.
func (u *UDP) Send(ctx context.Context, words []uint32) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	if u.conn == nil {
		return ErrNotOpen
	}

	n := len(words) * 4
	if cap(u.buf) < n {
		u.buf = make([]byte, n)
	}
	u.buf = u.buf[:n]
	for i, w := range words {
		binary.BigEndian.PutUint32(u.buf[4*i:], w)
	}

	if _, err := u.conn.WriteToUDP(u.buf, u.remote); err != nil {
		return fmt.Errorf("monitor write: %w", err)
	}
	u.sent++
	return nil
}

// LocalAddr returns the bound socket address, nil before Open
func (u *UDP) LocalAddr() net.Addr {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.conn == nil {
		return nil
	}
	return u.conn.LocalAddr()
}

// Close closes the socket
func (u *UDP) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.conn == nil {
		return nil
	}
	err := u.conn.Close()
	u.conn = nil
	u.logf("UDP monitor closed after %d datagrams", u.sent)
	return err
}

func (u *UDP) logf(format string, args ...interface{}) {
	if u.logger != nil {
		u.logger.Printf(format, args...)
	}
}

// Lookup resolves hostname to an IPv4 address
func Lookup(hostname string) (net.IP, error) {
	if ip := net.ParseIP(hostname); ip != nil {
		return ip, nil
	}

	ips, err := net.LookupIP(hostname)
	if err != nil {
		return nil, err
	}

	for _, ip := range ips {
		if ip.To4() != nil {
			return ip, nil
		}
	}

	return nil, fmt.Errorf("no IPv4 address found for %s", hostname)
}

// ParseUDPAddr resolves address and pairs it with port
func ParseUDPAddr(address string, port int) (*net.UDPAddr, error) {
	ip, err := Lookup(address)
	if err != nil {
		return nil, err
	}

	return &net.UDPAddr{
		IP:   ip,
		Port: port,
	}, nil
}
