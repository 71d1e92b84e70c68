package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/maumercado/ptc/internal/ptc/store"
)

var workersCmd = &cobra.Command{
	Use:   "workers",
	Short: "Enumerate registered workers",
	RunE: func(cmd *cobra.Command, args []string) error {
		if localFlag {
			return workersLocal()
		}
		return workersRemote()
	},
}

func workersRemote() error {
	c, err := newClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	workers, err := c.ListWorkers(ctx)
	if err != nil {
		return err
	}
	if jsonFlag {
		return printJSON(workers)
	}
	printHeading(fmt.Sprintf("%d worker(s)", len(workers)))
	for _, w := range workers {
		fmt.Printf("%-20s pid=%-8d status=%-8s heartbeat=%d caps=%v\n",
			w.ID, w.PID, w.Status, w.LastHeartbeat, w.Capabilities)
	}
	return nil
}

func workersLocal() error {
	s, err := openLocalStore()
	if err != nil {
		return err
	}
	defer s.Close()

	workers, err := s.ListWorkers(store.ListWorkersFilter{})
	if err != nil {
		return err
	}
	if jsonFlag {
		return printJSON(workers)
	}
	printHeading(fmt.Sprintf("%d worker(s)", len(workers)))
	for _, w := range workers {
		fmt.Printf("%-20s pid=%-8d status=%-8s heartbeat=%d caps=%v\n",
			w.ID, w.PID, w.Status, w.LastHeartbeat, w.Capabilities)
	}
	return nil
}

func printJSON(v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}
