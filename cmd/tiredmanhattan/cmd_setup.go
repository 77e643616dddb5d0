package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/tiredmanhattan/internal/config"
)

func init() {
	rootCmd.AddCommand(setupCmd)
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard",
	Long: `Walk through the account credentials and asset paths and write them
to the config file. Press Enter to keep the value shown in brackets.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		out := cmd.OutOrStdout()
		p := newPrompter(cmd.InOrStdin(), out)

		fmt.Fprintln(out, "tiredmanhattan setup")
		fmt.Fprintln(out)
		runSetup(p, cfg)

		if err := config.Save(cfgPath, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Configuration saved to", cfgPath)
		for _, w := range setupWarnings(cfg) {
			fmt.Fprintln(out, "Warning:", w)
		}
		return nil
	},
}

func runSetup(p *prompter, cfg *config.Config) {
	tw := &cfg.Twitter
	tw.ScreenName = strings.TrimPrefix(p.ask("Account handle (blank to look it up)", tw.ScreenName), "@")
	tw.APIKey = p.secret("API key", tw.APIKey)
	tw.APIKeySecret = p.secret("API key secret", tw.APIKeySecret)
	tw.AccessToken = p.secret("Access token", tw.AccessToken)
	tw.AccessTokenSecret = p.secret("Access token secret", tw.AccessTokenSecret)
	tw.BearerToken = p.secret("Bearer token (optional)", tw.BearerToken)

	cfg.Assets.Background = p.ask("Background image", cfg.Assets.Background)
	cfg.Assets.Font = p.ask("Font file (blank for Go Bold)", cfg.Assets.Font)
	cfg.HTTP.Listen = p.ask("HTTP listen address", cfg.HTTP.Listen)
}

// setupWarnings lists what would stop serve from starting.
func setupWarnings(cfg *config.Config) []string {
	var warnings []string
	creds := credentials(cfg)
	if !creds.HasAppContext() {
		warnings = append(warnings, "no bearer token or API key pair; the mention stream cannot connect")
	}
	if !creds.HasUserContext() {
		warnings = append(warnings, "user credentials incomplete; replies cannot be posted")
	}
	if _, err := os.Stat(cfg.Assets.Background); err != nil {
		warnings = append(warnings, "background image not found at "+cfg.Assets.Background)
	}
	return warnings
}

// prompter reads one answer per line.
type prompter struct {
	in  *bufio.Scanner
	out io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: bufio.NewScanner(in), out: out}
}

func (p *prompter) ask(label, current string) string {
	return p.read(label, current, current)
}

// secret is ask with the current value masked.
func (p *prompter) secret(label, current string) string {
	return p.read(label, config.Mask(current), current)
}

func (p *prompter) read(label, shown, current string) string {
	if shown != "" {
		fmt.Fprintf(p.out, "%s [%s]: ", label, shown)
	} else {
		fmt.Fprintf(p.out, "%s: ", label)
	}
	if p.in.Scan() {
		if input := strings.TrimSpace(p.in.Text()); input != "" {
			return input
		}
	}
	return current
}
