// coffeectl drives the customer agent from the command line: show the menu,
// quote an order, confirm payment, check a session.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

const usage = `usage:
  coffeectl menu
  coffeectl order --drink <name> [--size <size>] [--bean <bean>] [--session <id>]
  coffeectl confirm --session <id>
  coffeectl session --session <id>

environment:
  CUSTOMER_URL  customer agent base url (default http://localhost:8081)`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	base := strings.TrimRight(getenv("CUSTOMER_URL", "http://localhost:8081"), "/")
	cli := &client{base: base, http: &http.Client{Timeout: 60 * time.Second}}

	var err error
	switch os.Args[1] {
	case "menu":
		err = cli.menu()
	case "order":
		err = cli.order(os.Args[2:])
	case "confirm":
		err = cli.confirm(os.Args[2:])
	case "session":
		err = cli.session(os.Args[2:])
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type client struct {
	base string
	http *http.Client
}

func (c *client) menu() error {
	return c.get("/menu")
}

func (c *client) order(args []string) error {
	opts := parseFlags(args)
	drink := opts["drink"]
	if drink == "" {
		return fmt.Errorf("--drink is required")
	}
	session := opts["session"]
	if session == "" {
		session = "cli-" + uuid.NewString()
		fmt.Fprintln(os.Stderr, "session:", session)
	}
	return c.post("/orders", map[string]string{
		"session_id": session,
		"drink":      drink,
		"size":       opts["size"],
		"bean":       opts["bean"],
	})
}

func (c *client) confirm(args []string) error {
	opts := parseFlags(args)
	if opts["session"] == "" {
		return fmt.Errorf("--session is required")
	}
	return c.post("/orders/confirm", map[string]string{"session_id": opts["session"]})
}

func (c *client) session(args []string) error {
	opts := parseFlags(args)
	if opts["session"] == "" {
		return fmt.Errorf("--session is required")
	}
	return c.get("/sessions/" + opts["session"])
}

func (c *client) get(path string) error {
	resp, err := c.http.Get(c.base + path)
	if err != nil {
		return err
	}
	return printResponse(resp)
}

func (c *client) post(path string, body any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := c.http.Post(c.base+path, "application/json", bytes.NewReader(b))
	if err != nil {
		return err
	}
	return printResponse(resp)
}

func printResponse(resp *http.Response) error {
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	var pretty bytes.Buffer
	if json.Indent(&pretty, raw, "", "  ") == nil {
		fmt.Println(pretty.String())
	} else {
		fmt.Println(strings.TrimSpace(string(raw)))
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

// parseFlags reads --key value pairs; order of keys is free.
func parseFlags(args []string) map[string]string {
	out := map[string]string{}
	for i := 0; i < len(args)-1; i++ {
		if strings.HasPrefix(args[i], "--") {
			out[strings.TrimPrefix(args[i], "--")] = args[i+1]
			i++
		}
	}
	return out
}

func getenv(k, d string) string {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	return v
}
