// Command analyze_trades replays trade journals through the learning
// engine and prints per-bucket performance, insights and detected loss
// patterns. Run it offline against logs/journal after a session:
//
//	go run ./cmd/analyze_trades -dir logs/journal
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"options-scalping-bot/internal/adaptive"
	"options-scalping-bot/internal/logging"
	"options-scalping-bot/internal/trade"
)

func main() {
	dir := flag.String("dir", "logs/journal", "journal directory")
	days := flag.Int("days", 30, "how many days back to include")
	flag.Parse()

	logger := logging.New(&logging.Config{Level: "WARN", Output: "stderr", Component: "analyze"})

	files, err := trade.JournalFiles(*dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "list journals: %v\n", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintf(os.Stderr, "no journal files under %s\n", *dir)
		os.Exit(1)
	}

	cutoff := time.Now().AddDate(0, 0, -*days)
	engine := adaptive.NewEngine(0, 0, logger)
	loaded := 0

	for _, path := range files {
		entries, err := trade.ReadJournal(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "skip %s: %v\n", path, err)
			continue
		}
		for _, e := range entries {
			if e.Event != "close" || e.Timestamp.Before(cutoff) {
				continue
			}
			t := e.Trade
			engine.Record(adaptive.TradeFeatures{
				Buckets:        t.Buckets,
				EntryDelta:     t.EntryDelta,
				EntryGamma:     t.EntryGamma,
				EntryTheta:     t.EntryTheta,
				ExitReason:     t.ExitReason,
				HoldingMinutes: t.ExitTime.Sub(t.EntryTime).Minutes(),
				Won:            t.RealizedPnL > 0,
				PnL:            t.RealizedPnL,
				Timestamp:      e.Timestamp,
			})
			loaded++
		}
	}

	summary := engine.Summary()
	fmt.Printf("Loaded %d closed trades from %d journal files\n\n", loaded, len(files))
	fmt.Printf("Win rate: %.1f%%  Total PnL: %.0f\n\n",
		summary["win_rate"].(float64)*100, summary["total_pnl"].(float64))

	printBucketStats(engine)
	printInsights(engine)
	printPatterns(engine, logger)
}

func printBucketStats(engine *adaptive.Engine) {
	stats := engine.BucketStats()
	buckets := make([]adaptive.Bucket, 0, len(stats))
	for b := range stats {
		buckets = append(buckets, b)
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i] < buckets[j] })

	fmt.Println("Per-bucket performance:")
	for _, b := range buckets {
		perf := stats[b]
		marker := " "
		if !perf.SampleSizeAdequate {
			marker = "*"
		}
		fmt.Printf("  %-22s %4d trades  win %5.1f%%  pnl %8.0f %s\n",
			b, perf.TotalTrades, perf.WinRate*100, perf.TotalPnL, marker)
	}
	fmt.Println("  (* = sample below minimum)")
	fmt.Println()
}

func printInsights(engine *adaptive.Engine) {
	insights := engine.Insights()
	if len(insights) == 0 {
		fmt.Println("No actionable insights yet.")
		fmt.Println()
		return
	}
	fmt.Println("Insights:")
	for _, in := range insights {
		fmt.Printf("  %-8s %-22s conf %.2f  delta %+.2f  (%s)\n",
			in.Type, in.Bucket, in.Confidence, in.Recommendation, in.Reason)
	}
	fmt.Println()
}

func printPatterns(engine *adaptive.Engine, logger *logging.Logger) {
	detector := adaptive.NewPatternDetector(logger)
	patterns := detector.Analyze(engine.History(), time.Now())
	if len(patterns) == 0 {
		fmt.Println("No recurring loss patterns.")
		return
	}
	fmt.Println("Loss patterns:")
	for _, p := range patterns {
		fmt.Printf("  [%s] %-10s %-22s %d losses, %.0f lost, action: %s\n",
			p.Severity, p.PatternType, p.Characteristic, p.Occurrences, p.TotalLoss, p.RecommendedAction)
	}
}
