package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	full := fs.Bool("full", false, "include the exported world state")
	_ = fs.Parse(args)

	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/admin/v1/state"
	if *full {
		u += "?full=1"
	}
	req, _ := http.NewRequest(http.MethodGet, u, nil)
	doAdmin(req, 5*time.Second)
}

func snapshotCmd(args []string) {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)

	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/admin/v1/snapshot"
	req, _ := http.NewRequest(http.MethodPost, u, nil)
	doAdmin(req, 10*time.Second)
}

// editCmd posts one JSON edit, taken from -json or stdin.
func editCmd(args []string) {
	fs := flag.NewFlagSet("edit", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	body := fs.String("json", "", `edit JSON, e.g. {"op":"LINK","pos":[4,1,0],"other":[2,1,0]} (default: stdin)`)
	_ = fs.Parse(args)

	b := []byte(strings.TrimSpace(*body))
	if len(b) == 0 {
		var err error
		b, err = io.ReadAll(os.Stdin)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read stdin:", err)
			os.Exit(1)
		}
	}

	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/admin/v1/edit"
	req, _ := http.NewRequest(http.MethodPost, u, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	doAdmin(req, 10*time.Second)
}

func doAdmin(req *http.Request, timeout time.Duration) {
	cl := &http.Client{Timeout: timeout}
	resp, err := cl.Do(req)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(strings.TrimSpace(string(b)))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}
