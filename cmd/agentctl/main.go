package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// agentctl drives the running server's control plane from the command line:
//
//	agentctl -addr http://localhost:3000 status
//	agentctl run acct_one acct_two
//	agentctl stats -days 30
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		addr string
		days int
	)
	flag.StringVar(&addr, "addr", envOrDefault("INSTAAGENT_ADDR", "http://localhost:3000"), "control-plane base URL")
	flag.IntVar(&days, "days", 7, "stats window in days (stats command only)")
	flag.Parse()

	if flag.NArg() == 0 {
		return fmt.Errorf("usage: agentctl [flags] <run|run-now|start|stop|status|stats> [accounts...]")
	}

	addr = strings.TrimSuffix(addr, "/")
	client := &http.Client{Timeout: 10 * time.Minute}

	switch cmd := flag.Arg(0); cmd {
	case "run":
		var body io.Reader
		if flag.NArg() > 1 {
			payload, err := json.Marshal(map[string]any{"targets": flag.Args()[1:]})
			if err != nil {
				return err
			}
			body = bytes.NewReader(payload)
		}
		return call(client, http.MethodPost, addr+"/smart-comment/run", body)

	case "run-now":
		return call(client, http.MethodPost, addr+"/scheduler/run-now", nil)

	case "start":
		return call(client, http.MethodPost, addr+"/scheduler/start", nil)

	case "stop":
		return call(client, http.MethodPost, addr+"/scheduler/stop", nil)

	case "status":
		return call(client, http.MethodGet, addr+"/scheduler/status", nil)

	case "stats":
		return call(client, http.MethodGet, fmt.Sprintf("%s/smart-comment/stats?days=%d", addr, days), nil)

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func call(client *http.Client, method, url string, body io.Reader) error {
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	// Pretty-print when the body is JSON, otherwise echo it.
	var pretty bytes.Buffer
	if json.Indent(&pretty, raw, "", "  ") == nil {
		fmt.Println(pretty.String())
	} else {
		fmt.Println(string(raw))
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("server returned %s", resp.Status)
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
