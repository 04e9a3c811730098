package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	historyFile string
	temperature float32
	maxTokens   int
	stream      bool
)

var ragCmd = &cobra.Command{
	Use:   "rag",
	Short: "Interact with the RAG service",
}

var uploadCmd = &cobra.Command{
	Use:   "upload [file.pdf]",
	Short: "Upload a PDF to the RAG service",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := newAPIClient().Upload(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s (%d chunks)\n", resp.Message, resp.DocumentCount)
		return nil
	},
}

var chatCmd = &cobra.Command{
	Use:   "chat [question]",
	Short: "Ask a question about the uploaded documents",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := buildChatRequest(cmd, strings.Join(args, " "))
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		client := newAPIClient()

		if stream {
			sources, err := client.ChatStream(cmd.Context(), req, out)
			if err != nil {
				return err
			}
			fmt.Fprintln(out)
			printSources(out, sources)
			return nil
		}

		resp, err := client.Chat(cmd.Context(), req)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, resp.Response)
		printSources(out, resp.Sources)
		return nil
	},
}

// buildChatRequest appends question to the optional history file's messages.
// Sampling flags are only sent when set, so the server defaults apply otherwise.
func buildChatRequest(cmd *cobra.Command, question string) (chatRequest, error) {
	var req chatRequest
	if historyFile != "" {
		data, err := os.ReadFile(historyFile)
		if err != nil {
			return req, fmt.Errorf("failed to read history: %w", err)
		}
		if err := json.Unmarshal(data, &req.Messages); err != nil {
			return req, fmt.Errorf("history must be a JSON array of {role, content} messages: %w", err)
		}
	}
	req.Messages = append(req.Messages, chatMessage{Role: roleUser, Content: question})

	if cmd.Flags().Changed("temperature") {
		t := temperature
		req.Temperature = &t
	}
	if cmd.Flags().Changed("max-tokens") {
		n := maxTokens
		req.MaxTokens = &n
	}
	return req, nil
}

func printSources(w io.Writer, sources []source) {
	if len(sources) == 0 {
		return
	}
	fmt.Fprintln(w, "\nSources:")
	for i, s := range sources {
		fmt.Fprintf(w, "  [%d] %s (score %.4f)\n", i+1, s.Filename, s.Score)
	}
}

func init() {
	chatCmd.Flags().StringVar(&historyFile, "history", "", "JSON file with prior messages")
	chatCmd.Flags().Float32Var(&temperature, "temperature", defaultTemperature, "sampling temperature (0.0-1.0)")
	chatCmd.Flags().IntVar(&maxTokens, "max-tokens", defaultMaxTokens, "maximum tokens to generate (1-4096)")
	chatCmd.Flags().BoolVar(&stream, "stream", false, "print the answer as it is generated")

	rootCmd.AddCommand(ragCmd)
	ragCmd.AddCommand(uploadCmd)
	ragCmd.AddCommand(chatCmd)
}
