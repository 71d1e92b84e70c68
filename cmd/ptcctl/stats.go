package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var statsTrends bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Report message and dead-letter breakdowns",
	RunE: func(cmd *cobra.Command, args []string) error {
		if statsTrends {
			if !localFlag {
				return fmt.Errorf("stats --trends requires --local (day/type breakdowns are computed from the store directly)")
			}
			return statsTrendsLocal()
		}
		if localFlag {
			return statsLocal()
		}
		return statsRemote()
	},
}

func init() {
	statsCmd.Flags().BoolVar(&statsTrends, "trends", false, "show failures by type, by day over the last 7 days, and top error messages")
}

func statsRemote() error {
	c, err := newClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stats, err := c.Stats(ctx)
	if err != nil {
		return err
	}
	if jsonFlag {
		return printJSON(stats)
	}
	printHeading("stats")
	for k, v := range stats {
		fmt.Printf("%-16s %v\n", k, v)
	}
	return nil
}

func statsLocal() error {
	s, err := openLocalStore()
	if err != nil {
		return err
	}
	defer s.Close()

	msgStats, err := s.GetStats()
	if err != nil {
		return err
	}
	workerStats, err := s.GetWorkerStats()
	if err != nil {
		return err
	}
	dlStats, err := s.GetDeadLetterStats()
	if err != nil {
		return err
	}

	if jsonFlag {
		return printJSON(map[string]interface{}{
			"messages":     msgStats,
			"workers":      workerStats,
			"dead_letters": dlStats,
		})
	}

	printHeading("stats")
	fmt.Printf("messages:     %+v\n", *msgStats)
	fmt.Printf("workers:      %+v\n", *workerStats)
	fmt.Printf("dead letters: %+v\n", *dlStats)
	return nil
}

// statsTrendsLocal computes failures-by-type, failures-by-day over the last
// 7 days, and the top error messages directly against the dead_letters
// table; this breakdown has no admin HTTP endpoint, so it is --local only.
func statsTrendsLocal() error {
	s, err := openLocalStore()
	if err != nil {
		return err
	}
	defer s.Close()
	db := s.DB()

	byType := map[string]int64{}
	rows, err := db.Query(`SELECT type, COUNT(*) FROM dead_letters GROUP BY type ORDER BY COUNT(*) DESC`)
	if err != nil {
		return fmt.Errorf("failures by type: %w", err)
	}
	for rows.Next() {
		var t string
		var n int64
		if err := rows.Scan(&t, &n); err != nil {
			rows.Close()
			return err
		}
		byType[t] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	sevenDaysAgo := time.Now().AddDate(0, 0, -7).UnixMilli()
	byDay := map[string]int64{}
	rows, err = db.Query(`
		SELECT strftime('%Y-%m-%d', failed_at / 1000, 'unixepoch'), COUNT(*)
		FROM dead_letters WHERE failed_at >= ?
		GROUP BY 1 ORDER BY 1`, sevenDaysAgo)
	if err != nil {
		return fmt.Errorf("failures by day: %w", err)
	}
	for rows.Next() {
		var day string
		var n int64
		if err := rows.Scan(&day, &n); err != nil {
			rows.Close()
			return err
		}
		byDay[day] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	type topError struct {
		Error string `json:"error"`
		Count int64  `json:"count"`
	}
	var topErrors []topError
	rows, err = db.Query(`SELECT error, COUNT(*) AS n FROM dead_letters GROUP BY error ORDER BY n DESC LIMIT 5`)
	if err != nil {
		return fmt.Errorf("top errors: %w", err)
	}
	for rows.Next() {
		var te topError
		if err := rows.Scan(&te.Error, &te.Count); err != nil {
			rows.Close()
			return err
		}
		topErrors = append(topErrors, te)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	if jsonFlag {
		return printJSON(map[string]interface{}{
			"failures_by_type": byType,
			"failures_by_day":  byDay,
			"top_errors":       topErrors,
		})
	}

	printHeading("failures by type")
	for t, n := range byType {
		fmt.Printf("  %-16s %d\n", t, n)
	}
	printHeading("failures by day (last 7 days)")
	for day, n := range byDay {
		fmt.Printf("  %-12s %d\n", day, n)
	}
	printHeading("top error messages")
	for _, te := range topErrors {
		fmt.Printf("  %4d  %s\n", te.Count, te.Error)
	}
	return nil
}
