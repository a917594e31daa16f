package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newChatCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "chat [message]",
		Short: "Ask the teacher agent for guidance",
		Long: `Sends a message to the Gemini teacher agent. The agent reads the layout and
pulses what to click; it never clicks for you. Without a message, reads one
message per line from stdin until EOF.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			t, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer t.Close()

			out := cmd.OutOrStdout()
			if len(args) > 0 {
				reply, err := t.Chat(ctx, strings.Join(args, " "))
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(out, reply)
				return err
			}

			sc := bufio.NewScanner(cmd.InOrStdin())
			fmt.Fprint(out, "> ")
			for sc.Scan() {
				msg := strings.TrimSpace(sc.Text())
				if msg == "" {
					fmt.Fprint(out, "> ")
					continue
				}
				reply, err := t.Chat(ctx, msg)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s\n> ", reply)
			}
			return sc.Err()
		},
	}
}
