package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type turnOutcome struct {
	Kind          string   `json:"kind"`
	Text          string   `json:"text"`
	MissingFields []string `json:"missing_fields"`
	Reason        string   `json:"reason"`
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a one-shot policy question",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.Join(args, " ")
		requester, _ := cmd.Flags().GetString("requester")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		sessionID, err := openSession(cmd.Context(), client)
		if err != nil {
			return err
		}
		defer closeSession(client, sessionID)

		outcome, err := sendMessage(cmd.Context(), client, sessionID, question, requester)
		if err != nil {
			return err
		}

		printOutcome(outcome)
		return nil
	},
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive service-desk conversation",
	RunE: func(cmd *cobra.Command, args []string) error {
		requester, _ := cmd.Flags().GetString("requester")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		sessionID, err := openSession(cmd.Context(), client)
		if err != nil {
			return err
		}
		defer closeSession(client, sessionID)

		fmt.Println("deskflow chat — describe your request, or type 'exit' to quit.")
		scanner := bufio.NewScanner(os.Stdin)
		for {
			fmt.Print(colorize(colorBold, "> "))
			if !scanner.Scan() {
				break
			}
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if line == "exit" || line == "quit" {
				break
			}

			outcome, err := sendMessage(cmd.Context(), client, sessionID, line, requester)
			if err != nil {
				printError("%v", err)
				continue
			}
			printOutcome(outcome)
		}
		return scanner.Err()
	},
}

func init() {
	askCmd.Flags().String("requester", "", "who is asking (recorded on tickets)")
	chatCmd.Flags().String("requester", "", "who is asking (recorded on tickets)")
}

func openSession(ctx context.Context, client *apiClient) (string, error) {
	resp, err := client.post(ctx, "/v1/sessions", nil)
	if err != nil {
		return "", err
	}
	var created map[string]string
	if err := decodeJSON(resp, &created); err != nil {
		return "", err
	}
	return created["id"], nil
}

func closeSession(client *apiClient, id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if resp, err := client.delete(ctx, "/v1/sessions/"+id); err == nil {
		resp.Body.Close()
	}
}

func sendMessage(ctx context.Context, client *apiClient, sessionID, message, requester string) (turnOutcome, error) {
	resp, err := client.post(ctx, "/v1/sessions/"+sessionID+"/messages", map[string]string{
		"message":   message,
		"requester": requester,
	})
	if err != nil {
		return turnOutcome{}, err
	}

	var outcome turnOutcome
	if err := decodeJSON(resp, &outcome); err != nil {
		return turnOutcome{}, err
	}
	return outcome, nil
}

func printOutcome(o turnOutcome) {
	switch o.Kind {
	case "ANSWERED":
		fmt.Println(o.Text)
	case "INFO_REQUESTED":
		fmt.Println(colorize(colorYellow, o.Text))
	case "TICKET_OPENED":
		fmt.Println(colorize(colorGreen, o.Text))
	default:
		fmt.Println(o.Text)
	}
}
