package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Summarize queue depth, pending acks, and worker/dead-letter counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		if localFlag {
			return fmt.Errorf("status requires a running coordinator; drop --local")
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		st, err := c.GetStatus(ctx)
		if err != nil {
			return err
		}

		if jsonFlag {
			b, err := json.MarshalIndent(st, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(b))
			return nil
		}

		printHeading(fmt.Sprintf("coordinator: %s", st.Name))
		fmt.Printf("queue:         %v\n", st.Queue)
		fmt.Printf("pending acks:  %v\n", st.PendingAcks)
		fmt.Printf("messages:      %v\n", st.Messages)
		fmt.Printf("workers:       %v\n", st.Workers)
		fmt.Printf("dead letters:  %v\n", st.DeadLetters)
		fmt.Printf("reassignments: %v\n", st.Reassignments)
		return nil
	},
}
