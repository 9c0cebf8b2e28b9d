package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"dishrush.game/internal/sim/world"
)

func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	raw := fs.Bool("raw", false, "print the /metrics.json body as is")
	_ = fs.Parse(args)

	cl := &http.Client{Timeout: 5 * time.Second}
	body, err := fetchMetrics(cl, *baseURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "state:", err)
		os.Exit(1)
	}
	if *raw {
		fmt.Println(string(body))
		return
	}
	var m world.WorldMetrics
	if err := json.Unmarshal(body, &m); err != nil {
		fmt.Fprintln(os.Stderr, "decode:", err)
		os.Exit(1)
	}
	printMetrics(os.Stdout, m)
}

func fetchMetrics(cl *http.Client, baseURL string) ([]byte, error) {
	u := strings.TrimRight(strings.TrimSpace(baseURL), "/") + "/metrics.json"
	resp, err := cl.Get(u)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("%s: %s", u, resp.Status)
	}
	return b, nil
}

func printMetrics(out io.Writer, m world.WorldMetrics) {
	t := m.Totals
	fmt.Fprintf(out, "tick=%d step_ms=%.3f\n", m.Tick, m.StepMS)
	fmt.Fprintf(out, "agents=%d clients=%d sources=%d consumables=%d carried=%d\n",
		m.Agents, m.Clients, m.Sources, m.Consumables, m.Carried)
	fmt.Fprintf(out, "queues inbox=%d join=%d leave=%d\n",
		m.QueueDepths.Inbox, m.QueueDepths.Join, m.QueueDepths.Leave)
	fmt.Fprintf(out, "pickups=%d deliveries=%d cleaned=%d\n", t.Pickups, t.Deliveries, t.DishesCleaned)
	fmt.Fprintf(out, "stumbles=%d dropped=%d\n", t.Stumbles, t.DishesDropped)
	fmt.Fprintf(out, "checks begun=%d passed=%d failed=%d stale=%d\n",
		t.ChecksBegun, t.ChecksPassed, t.ChecksFailed, t.StaleOutcomes)
	fmt.Fprintf(out, "splatters=%d impairments=%d consumables_eaten=%d\n",
		t.Splatters, t.Impairments, t.ConsumablesEaten)
}
