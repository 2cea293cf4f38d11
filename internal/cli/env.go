package cli

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/pendergraft/xdeploy/internal/config"
)

const privateKeyEnv = "DEPLOYER_PRIVATE_KEY"

// loadEnv loads configuration from the environment and builds the logger.
// Logs go to stderr so reports on stdout stay machine readable.
func loadEnv() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, setupLogger(cfg, os.Stderr), nil
}

func setupLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Logging.Level),
	}

	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// readPrivateKey returns the deployer key from the environment, or prompts
// for it without echo on a terminal
func readPrivateKey(stderr io.Writer) (string, error) {
	if key := strings.TrimSpace(os.Getenv(privateKeyEnv)); key != "" {
		return key, nil
	}

	fmt.Fprint(stderr, "Deployer private key: ")

	var key string
	stdinFd := int(os.Stdin.Fd())
	if term.IsTerminal(stdinFd) {
		byteKey, err := term.ReadPassword(stdinFd)
		fmt.Fprintln(stderr) // New line after password input
		if err != nil {
			return "", fmt.Errorf("failed to read private key: %w", err)
		}
		key = string(byteKey)
	} else {
		// Non-terminal, read from stdin
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return "", fmt.Errorf("failed to read private key: %w", err)
		}
		key = line
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("private key cannot be empty (set %s)", privateKeyEnv)
	}
	return key, nil
}
