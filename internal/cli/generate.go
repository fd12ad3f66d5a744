package cli

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	"github.com/vietddude/eventsync/internal/control"
	"github.com/vietddude/eventsync/internal/core/domain"
	"github.com/vietddude/eventsync/internal/generation"
)

var (
	inputPath string
	callerID  string
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate an event configuration from a YAML inputs file and print it as JSON",
	Run:   runGenerate,
}

func init() {
	generateCmd.Flags().StringVar(&inputPath, "input", "", "YAML file with event_basics, audience, goals, format, duration_hours and attendees")
	generateCmd.Flags().StringVar(&callerID, "caller", "cli", "caller ID used for rate limiting and ownership")
	_ = generateCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) {
	cfg := loadConfig(cmd)

	data, err := os.ReadFile(inputPath)
	if err != nil {
		slog.Error("Failed to read input", "error", err)
		os.Exit(1)
	}
	var inputs domain.GenerationInputs
	if err := yaml.Unmarshal(data, &inputs); err != nil {
		slog.Error("Failed to parse input", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	app, err := control.New(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize eventsync", "error", err)
		os.Exit(1)
	}
	defer func() { _ = app.Stop(ctx) }()

	res, err := app.Generation.GenerateWithResilience(ctx, generation.Request{
		CallerID: callerID,
		Inputs:   inputs,
	}, nil)
	if err != nil {
		slog.Error("Generation failed", "error", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(res)
}
