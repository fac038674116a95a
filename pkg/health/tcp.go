package health

import (
	"context"
	"fmt"
	"net"
	"time"
)

// TCPChecker counts an agent ready once its port accepts a connection
type TCPChecker struct {
	// Address is host:port (e.g., "10.0.4.17:22")
	Address string
	Timeout time.Duration
}

// NewTCPChecker creates a checker with a 5s dial timeout
func NewTCPChecker(address string) *TCPChecker {
	return &TCPChecker{Address: address, Timeout: 5 * time.Second}
}

// Check dials once and closes the connection right away
func (t *TCPChecker) Check(ctx context.Context) Result {
	start := time.Now()
	result := Result{CheckedAt: start}

	conn, err := (&net.Dialer{Timeout: t.Timeout}).DialContext(ctx, "tcp", t.Address)
	if err != nil {
		result.Message = fmt.Sprintf("dial %s: %v", t.Address, err)
	} else {
		_ = conn.Close()
		result.Healthy = true
		result.Message = fmt.Sprintf("%s accepting connections", t.Address)
	}
	result.Duration = time.Since(start)
	return result
}

// Type returns CheckTypeTCP
func (t *TCPChecker) Type() CheckType {
	return CheckTypeTCP
}

func (t *TCPChecker) WithTimeout(timeout time.Duration) *TCPChecker {
	t.Timeout = timeout
	return t
}
