// Command healthcheck queries the activity server's health endpoint and exits
// non-zero unless both the server and its database report ok. It is meant for
// container HEALTHCHECK directives, where no shell or curl is available.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	flag "github.com/spf13/pflag"
)

const defaultAddr = "127.0.0.1:8080"

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

func run(args []string, errOut io.Writer) int {
	fs := flag.NewFlagSet("healthcheck", flag.ContinueOnError)
	fs.SetOutput(errOut)
	addr := fs.String("addr", os.Getenv("ACTIVITY_LISTEN_ADDR"), "Server listen address")
	timeout := fs.Duration("timeout", 2*time.Second, "Request timeout")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if err := checkHealth(loopbackAddr(*addr), *timeout); err != nil {
		fmt.Fprintln(errOut, "unhealthy:", err)
		return 1
	}
	return 0
}

// checkHealth fetches /api/v1/health and requires a 200 with status "ok".
func checkHealth(addr string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/api/v1/health", nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var body struct {
		Status   string `json:"status"`
		Database string `json:"database"`
	}
	decodeErr := json.NewDecoder(resp.Body).Decode(&body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d, database %q", resp.StatusCode, body.Database)
	}
	if decodeErr != nil {
		return fmt.Errorf("decode health response: %w", decodeErr)
	}
	if body.Status != "ok" {
		return errors.New("server reports " + body.Status)
	}
	return nil
}

// loopbackAddr rewrites a bind-all listen address to loopback, since the check
// runs inside the server's own container.
func loopbackAddr(listen string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return defaultAddr
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}
