// Command shadow_compare replays read-only catalogue requests against both
// the legacy transcription backend and this API, and reports response drift.
// Run it during cutover with both services pointed at the same database.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"reflect"
	"strings"
	"time"
)

type target struct {
	Method   string `json:"method"`
	Path     string `json:"path"`
	Critical bool   `json:"critical"`
}

// defaultTargets covers the public read surface. Write endpoints are excluded
// so the tool stays safe to run against production.
var defaultTargets = []target{
	{Method: http.MethodGet, Path: "/api/v1/works", Critical: true},
	{Method: http.MethodGet, Path: "/api/v1/works?page=2&limit=5", Critical: true},
	{Method: http.MethodGet, Path: "/health", Critical: true},
}

// volatileKeys are envelope fields expected to differ between backends.
var volatileKeys = map[string]bool{
	"request_id": true,
	"requestId":  true,
	"timestamp":  true,
	"issued_at":  true,
}

type result struct {
	target       target
	newStatus    int
	legacyStatus int
	statusMatch  bool
	bodyMatch    bool
	err          error
	newDur       time.Duration
	legacyDur    time.Duration
}

func main() {
	var (
		newBase     string
		legacyBase  string
		targetsPath string
		timeout     time.Duration
	)
	flag.StringVar(&newBase, "new-base", "http://localhost:8080", "new API base URL")
	flag.StringVar(&legacyBase, "legacy-base", "http://localhost:3000", "legacy API base URL")
	flag.StringVar(&targetsPath, "targets", "", "optional JSON file with extra targets")
	flag.DurationVar(&timeout, "timeout", 5*time.Second, "per-request timeout")
	flag.Parse()

	targets := defaultTargets
	if targetsPath != "" {
		extra, err := loadTargets(targetsPath)
		if err != nil {
			log.Fatalf("failed to load targets: %v", err)
		}
		targets = append(targets, extra...)
	}

	client := &http.Client{Timeout: timeout}
	breaking := 0
	for _, tgt := range targets {
		res := compare(client, newBase, legacyBase, tgt)
		printResult(res)
		if tgt.Critical && (res.err != nil || !res.statusMatch || !res.bodyMatch) {
			breaking++
		}
	}

	fmt.Printf("breaking diffs: %d (of %d targets)\n", breaking, len(targets))
	if breaking > 0 {
		os.Exit(1)
	}
}

func loadTargets(path string) ([]target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var targets []target
	if err := json.Unmarshal(data, &targets); err != nil {
		return nil, err
	}
	return targets, nil
}

func compare(client *http.Client, newBase, legacyBase string, tgt target) result {
	res := result{target: tgt}

	newBody, newStatus, newDur, err := fetch(client, newBase, tgt)
	if err != nil {
		res.err = fmt.Errorf("new backend: %w", err)
		return res
	}
	legacyBody, legacyStatus, legacyDur, err := fetch(client, legacyBase, tgt)
	if err != nil {
		res.err = fmt.Errorf("legacy backend: %w", err)
		return res
	}

	res.newStatus, res.legacyStatus = newStatus, legacyStatus
	res.newDur, res.legacyDur = newDur, legacyDur
	res.statusMatch = newStatus == legacyStatus
	res.bodyMatch = bodiesEqual(newBody, legacyBody)
	return res
}

func fetch(client *http.Client, base string, tgt target) ([]byte, int, time.Duration, error) {
	url := strings.TrimRight(base, "/") + tgt.Path
	req, err := http.NewRequest(tgt.Method, url, nil)
	if err != nil {
		return nil, 0, 0, err
	}
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, 0, err
	}
	defer resp.Body.Close() //nolint:errcheck
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, 0, err
	}
	return body, resp.StatusCode, time.Since(start), nil
}

// bodiesEqual compares responses structurally, dropping volatile envelope
// fields and collapsing integral floats so number encoding differences do
// not count as drift.
func bodiesEqual(a, b []byte) bool {
	if bytes.Equal(bytes.TrimSpace(a), bytes.TrimSpace(b)) {
		return true
	}
	var aj, bj interface{}
	if err := json.Unmarshal(a, &aj); err != nil {
		return false
	}
	if err := json.Unmarshal(b, &bj); err != nil {
		return false
	}
	normalize(&aj)
	normalize(&bj)
	return reflect.DeepEqual(aj, bj)
}

func normalize(v *interface{}) {
	switch val := (*v).(type) {
	case map[string]interface{}:
		for k := range val {
			if volatileKeys[k] {
				delete(val, k)
			}
		}
		for k, inner := range val {
			normalize(&inner)
			val[k] = inner
		}
	case []interface{}:
		for i, inner := range val {
			normalize(&inner)
			val[i] = inner
		}
	case float64:
		if val == float64(int64(val)) {
			*v = int64(val)
		}
	}
}

func printResult(res result) {
	status := "OK"
	switch {
	case res.err != nil:
		status = "ERROR"
	case !res.statusMatch || !res.bodyMatch:
		status = "DIFF"
	}
	fmt.Printf("[%s] %s %s\n", status, res.target.Method, res.target.Path)
	if res.err != nil {
		fmt.Printf("  error: %v\n", res.err)
		return
	}
	fmt.Printf("  new: %d (%s) legacy: %d (%s) status_match=%t body_match=%t critical=%t\n",
		res.newStatus, res.newDur, res.legacyStatus, res.legacyDur,
		res.statusMatch, res.bodyMatch, res.target.Critical)
}
