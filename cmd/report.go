package cmd

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/stat"

	"github.com/kilianp07/warehouse/config"
	coremetrics "github.com/kilianp07/warehouse/core/metrics"
	"github.com/kilianp07/warehouse/infra/journal"
)

var (
	reportSince time.Duration
	reportAGV   string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarize the journal of a scheduler",
	RunE:  runReport,
}

func init() {
	reportCmd.Flags().DurationVar(&reportSince, "since", 24*time.Hour, "only include events newer than this")
	reportCmd.Flags().StringVar(&reportAGV, "agv", "", "only include this AGV")
	rootCmd.AddCommand(reportCmd)
}

// chargingSummary aggregates charging outcomes.
type chargingSummary struct {
	Outcomes map[string]int
	Failures map[string]int
	Stations map[string]int
	// Wait statistics in seconds over assigned and dropped requests.
	MeanWait float64
	StdWait  float64
	P95Wait  float64
	MaxWait  float64
}

func summarizeCharging(recs []coremetrics.ChargingRecord) chargingSummary {
	s := chargingSummary{
		Outcomes: make(map[string]int),
		Failures: make(map[string]int),
		Stations: make(map[string]int),
	}
	waits := make([]float64, 0, len(recs))
	for _, r := range recs {
		s.Outcomes[r.Outcome]++
		if r.Failure != "" {
			s.Failures[r.Failure]++
		}
		if r.StationID != "" {
			s.Stations[r.StationID]++
		}
		waits = append(waits, r.Wait.Seconds())
	}
	if len(waits) == 0 {
		return s
	}
	sort.Float64s(waits)
	s.MeanWait, s.StdWait = stat.MeanStdDev(waits, nil)
	if len(waits) == 1 {
		s.StdWait = 0
	}
	s.P95Wait = stat.Quantile(0.95, stat.Empirical, waits, nil)
	s.MaxWait = waits[len(waits)-1]
	return s
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	store, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer func() { _ = store.Close() }()

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()
	var start time.Time
	if reportSince > 0 {
		start = time.Now().Add(-reportSince)
	}
	recs, err := store.QueryCharging(ctx, journal.ChargingQuery{Start: start, AGVID: reportAGV})
	if err != nil {
		return fmt.Errorf("query charging: %w", err)
	}
	orders, err := store.CountOrders(ctx)
	if err != nil {
		return fmt.Errorf("count orders: %w", err)
	}
	printReport(cmd.OutOrStdout(), summarizeCharging(recs), orders)
	return nil
}

func printReport(w io.Writer, s chargingSummary, orders map[string]int) {
	title := color.New(color.Bold)
	_, _ = title.Fprintln(w, "Charging")
	for _, k := range sortedKeys(s.Outcomes) {
		_, _ = fmt.Fprintf(w, "  %-10s %d\n", outcomeLabel(k), s.Outcomes[k])
	}
	for _, k := range sortedKeys(s.Failures) {
		_, _ = fmt.Fprintf(w, "    %s %d\n", color.New(color.FgYellow).Sprint(k), s.Failures[k])
	}
	for _, k := range sortedKeys(s.Stations) {
		_, _ = fmt.Fprintf(w, "  station %s: %d\n", k, s.Stations[k])
	}
	_, _ = fmt.Fprintf(w, "  wait mean %.2fs std %.2fs p95 %.2fs max %.2fs\n", s.MeanWait, s.StdWait, s.P95Wait, s.MaxWait)

	_, _ = title.Fprintln(w, "Orders")
	for _, k := range sortedKeys(orders) {
		_, _ = fmt.Fprintf(w, "  %-10s %d\n", k, orders[k])
	}
}

func outcomeLabel(outcome string) string {
	switch outcome {
	case "charged":
		return color.New(color.FgGreen).Sprint(outcome)
	case "failed":
		return color.New(color.FgRed).Sprint(outcome)
	case "dropped":
		return color.New(color.FgYellow).Sprint(outcome)
	}
	return outcome
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
