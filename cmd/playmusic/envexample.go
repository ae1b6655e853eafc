package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

const envExampleFile = ".env.example"

func newEnvExampleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "env-example",
		Short: "Generate .env.example from the current flag defaults",
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), "Generating .env.example file from current configuration...")

			content := generateEnvExampleContent(cmd.Root())
			if err := os.WriteFile(envExampleFile, []byte(content), 0600); err != nil {
				return fmt.Errorf("failed to write %s: %w", envExampleFile, err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Successfully generated .env.example file")
			return nil
		},
	}
}

func generateEnvExampleContent(root *cobra.Command) string {
	var content strings.Builder

	content.WriteString("# =============================================================================\n")
	content.WriteString("# playmusic Configuration\n")
	content.WriteString("# =============================================================================\n")
	content.WriteString("#\n")
	content.WriteString("# Copy this file to .env and update with your values\n")
	content.WriteString("# All environment variables have CLI flag equivalents (use --help to see them)\n")
	content.WriteString("#\n")
	content.WriteString("# Format: PLAYMUSIC_<SETTING>=value\n")
	content.WriteString("# CLI equivalent: --<setting>\n")
	content.WriteString("#\n\n")

	generatePlayMusicSection(&content, root)
	generateAppSection(&content, root)
	generateServerSection(&content, root)
	generateLoggingSection(&content, root)

	return content.String()
}

func flagToEnvVar(flagName string) string {
	return envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(flagName, "-", "_"))
}

func getDefaultValueString(cmd *cobra.Command, flagName string) string {
	if f := cmd.PersistentFlags().Lookup(flagName); f != nil {
		return f.DefValue
	}
	return ""
}

func writeSectionHeader(content *strings.Builder, title string, flags ...string) {
	content.WriteString("# -----------------------------------------------------------------------------\n")
	fmt.Fprintf(content, "# %s\n", title)
	content.WriteString("# -----------------------------------------------------------------------------\n")
	if len(flags) > 0 {
		fmt.Fprintf(content, "# CLI: --%s\n", strings.Join(flags, ", --"))
	}
}

// writeSetting writes one NAME=value line; the default is taken from the flag when value is empty.
func writeSetting(content *strings.Builder, cmd *cobra.Command, flagName, value, comment string) {
	def := getDefaultValueString(cmd, flagName)
	if value == "" {
		value = def
	}
	if def != "" {
		comment = fmt.Sprintf("%s (default: %s)", comment, def)
	}
	fmt.Fprintf(content, "%s=%s    # %s\n", flagToEnvVar(flagName), value, comment)
}

func generatePlayMusicSection(content *strings.Builder, cmd *cobra.Command) {
	writeSectionHeader(content, "Google Play Music Account",
		"playmusic-email", "playmusic-token-path", "playmusic-stream-quality")
	writeSetting(content, cmd, "playmusic-email", "you@example.com", "Account shown for the session")
	writeSetting(content, cmd, "playmusic-display-name", "", "Display name shown for the session")
	writeSetting(content, cmd, "playmusic-token-path", "", "Where `playmusic auth` saves the token")
	writeSetting(content, cmd, "playmusic-stream-quality", "", "Stream quality: low, med, hi")
	writeSetting(content, cmd, "playmusic-signing-key", "your_signing_key_here", "Key used to sign stream requests")
	writeSetting(content, cmd, "playmusic-base-url", "", "Catalog API base URL")
	content.WriteString("\n")

	writeSectionHeader(content, "Token Refresh (optional)",
		"playmusic-client-id", "playmusic-client-secret", "playmusic-token-url")
	writeSetting(content, cmd, "playmusic-client-id", "your_client_id_here", "OAuth client ID")
	writeSetting(content, cmd, "playmusic-client-secret", "your_client_secret_here", "OAuth client secret")
	writeSetting(content, cmd, "playmusic-token-url", "", "OAuth token endpoint")
	content.WriteString("\n")
}

func generateAppSection(content *strings.Builder, cmd *cobra.Command) {
	writeSectionHeader(content, "Caching and Timeouts",
		"cache-size", "missing-cache-size", "request-timeout-secs")
	writeSetting(content, cmd, "cache-size", "", "Catalog records kept in memory")
	writeSetting(content, cmd, "missing-cache-size", "", "Not-found ids remembered")
	writeSetting(content, cmd, "request-timeout-secs", "", "Timeout for each catalog request")
	content.WriteString("\n")
}

func generateServerSection(content *strings.Builder, cmd *cobra.Command) {
	writeSectionHeader(content, "HTTP Server Configuration", "server-host", "server-port", "rate-limit-per-minute")
	writeSetting(content, cmd, "server-host", "127.0.0.1", "Server bind address")
	writeSetting(content, cmd, "server-port", "", "Server port")
	writeSetting(content, cmd, "rate-limit-per-minute", "", "Lookups per client per minute, 0 disables the limit")
	content.WriteString("\n")
}

func generateLoggingSection(content *strings.Builder, cmd *cobra.Command) {
	writeSectionHeader(content, "Logging Configuration", "log-level")
	writeSetting(content, cmd, "log-level", "", "Log level: debug, info, warn, error")
}
