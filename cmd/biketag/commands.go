package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/biketag-game/biketag-go"
	"github.com/biketag-game/biketag-go/internal/auth"
	"github.com/biketag-game/biketag-go/internal/backend"
	"github.com/biketag-game/biketag-go/internal/config"
	"github.com/biketag-game/biketag-go/internal/tui"
)

var tagCmd = &cobra.Command{
	Use:   "tag",
	Short: "Read a single tag",
}

var tagGetCmd = &cobra.Command{
	Use:   "get [number|slug]",
	Short: "Show one tag (the latest when no argument is given)",
	Args:  cobra.MaximumNArgs(1),
	PreRunE: func(_ *cobra.Command, _ []string) error {
		return initClient()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		over, err := sourceOverload()
		if err != nil {
			return err
		}
		ctx, cancel := withTimeout(cmd)
		defer cancel()

		return report(cmd.OutOrStdout(), client.GetTag(ctx, tagArg(args), over...), renderTag)
	},
}

var tagsCmd = &cobra.Command{
	Use:   "tags",
	Short: "Read several tags",
}

var tagsGetCmd = &cobra.Command{
	Use:   "get [numbers...]",
	Short: "List tags (all of them when no numbers are given)",
	PreRunE: func(_ *cobra.Command, _ []string) error {
		return initClient()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		numbers, err := tagNumbersArg(args)
		if err != nil {
			return err
		}
		over, err := sourceOverload()
		if err != nil {
			return err
		}
		if tagsLimit > 0 {
			over = append(over, biketag.Options{Limit: tagsLimit})
		}
		ctx, cancel := withTimeout(cmd)
		defer cancel()

		return report(cmd.OutOrStdout(), client.GetTags(ctx, numbers, over...), renderTags)
	},
}

var gameCmd = &cobra.Command{
	Use:   "game",
	Short: "Read game settings",
}

var gameGetCmd = &cobra.Command{
	Use:   "get [name]",
	Short: "Show a game (the configured game when no name is given)",
	Args:  cobra.MaximumNArgs(1),
	PreRunE: func(_ *cobra.Command, _ []string) error {
		return initClient()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		name := cfg.BikeTag.Game
		if len(args) > 0 {
			name = args[0]
		}
		over, err := sourceOverload()
		if err != nil {
			return err
		}
		ctx, cancel := withTimeout(cmd)
		defer cancel()

		return report(cmd.OutOrStdout(), client.GetGame(ctx, biketag.Slug(name), over...), renderGame)
	},
}

var dataCmd = &cobra.Command{
	Use:   "data",
	Short: "Read the realtime peer",
}

var dataGetCmd = &cobra.Command{
	Use:   "get <soul>",
	Short: "Show one node from the realtime peer",
	Args:  cobra.ExactArgs(1),
	PreRunE: func(_ *cobra.Command, _ []string) error {
		return initClient()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := withTimeout(cmd)
		defer cancel()

		peer, err := client.Data(ctx)
		if err != nil {
			return exitErr(exitValidation, err.Error())
		}
		defer peer.Close()

		node, err := peer.Get(ctx, args[0])
		if err != nil {
			return exitErr(exitBackend, err.Error())
		}
		return write(cmd.OutOrStdout(), node, func() string { return renderNode(args[0], node) })
	},
}

var backendsCmd = &cobra.Command{
	Use:   "backends",
	Short: "Show which backends are ready",
	PreRunE: func(_ *cobra.Command, _ []string) error {
		return initClient()
	},
	RunE: func(cmd *cobra.Command, _ []string) error {
		status := backendStatus(client)
		return write(cmd.OutOrStdout(), status, func() string { return renderBackends(status) })
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration with secrets redacted",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := initConfig(); err != nil {
			return err
		}
		global, project := config.DiscoveredPaths()
		out := cmd.OutOrStdout()
		if flagOutput == outputText || flagOutput == outputYAML {
			fmt.Fprintf(out, "# global:  %s\n# project: %s\n", orNone(global), orNone(project))
			fmt.Fprint(out, cfg.String())
			return nil
		}
		var redacted map[string]any
		if err := yaml.Unmarshal([]byte(cfg.String()), &redacted); err != nil {
			return fmt.Errorf("render config: %w", err)
		}
		return write(out, redacted, nil)
	},
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the response cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached response",
	PreRunE: func(_ *cobra.Command, _ []string) error {
		return initClient()
	},
	RunE: func(cmd *cobra.Command, _ []string) error {
		n := responseCache.Len()
		responseCache.Clear()
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Removed %d cached responses\n", n)
		return nil
	},
}

var loginCmd = &cobra.Command{
	Use:   "login <backend> <field>",
	Short: "Store a backend secret in the OS keyring",
	Long: `Store one backend secret in the OS keyring, e.g.

  biketag login imgur client_secret
  biketag login reddit password --value hunter2

The value is read from stdin unless --value is given. For CI, set the
matching BIKETAG_* environment variable instead.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := secretKey(args[0], args[1])
		if err != nil {
			return err
		}
		value := loginValue
		if value == "" {
			value, err = readSecret(cmd.InOrStdin())
			if err != nil {
				return err
			}
		}
		if err := auth.StoreSecret(key, value); err != nil {
			if errors.Is(err, auth.ErrKeyringNotAvail) {
				fmt.Fprintln(cmd.ErrOrStderr(), "Warning: keyring not available, secret not stored")
				fmt.Fprintln(cmd.ErrOrStderr(), "Set the matching BIKETAG_* environment variable instead")
				return nil
			}
			return fmt.Errorf("store secret: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Stored %s\n", key)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout <backend> <field>",
	Short: "Remove a backend secret from the OS keyring",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := secretKey(args[0], args[1])
		if err != nil {
			return err
		}
		if err := auth.DeleteSecret(key); err != nil {
			if errors.Is(err, auth.ErrKeyringNotAvail) {
				fmt.Fprintln(cmd.OutOrStdout(), "No stored secrets (keyring not available)")
				return nil
			}
			return fmt.Errorf("delete secret: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Removed %s\n", key)
		return nil
	},
}

// secretKey validates a backend/field pair against the known secrets.
func secretKey(backendName, field string) (auth.SecretKey, error) {
	key := auth.SecretKey{Backend: strings.ToLower(backendName), Field: strings.ToLower(field)}
	var known []string
	for _, k := range config.SecretKeys() {
		if k == key {
			return key, nil
		}
		known = append(known, k.String())
	}
	slices.Sort(known)
	return auth.SecretKey{}, exitErr(exitValidation, fmt.Sprintf("unknown secret %s (known: %s)", key, strings.Join(known, ", ")))
}

// readSecret reads one line from r.
func readSecret(r io.Reader) (string, error) {
	if f, ok := r.(*os.File); ok && f == os.Stdin {
		fmt.Fprint(os.Stderr, "Secret: ")
	}
	sc := bufio.NewScanner(r)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return "", fmt.Errorf("read secret: %w", err)
		}
		return "", exitErr(exitValidation, "no secret given")
	}
	value := strings.TrimSpace(sc.Text())
	if value == "" {
		return "", exitErr(exitValidation, "no secret given")
	}
	return value, nil
}

// backendRow is one line of the backends report.
type backendRow struct {
	Backend       string `json:"backend" yaml:"backend"`
	Ready         bool   `json:"ready" yaml:"ready"`
	MostAvailable bool   `json:"most_available" yaml:"most_available"`
}

func backendStatus(c *biketag.Client) []backendRow {
	most := c.MostAvailable()
	rows := make([]backendRow, 0, len(backend.Kinds()))
	for _, k := range backend.Kinds() {
		rows = append(rows, backendRow{Backend: k.String(), Ready: c.Ready(k), MostAvailable: k == most})
	}
	return rows
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Browse tags interactively and print the ones you pick",
	Args:  cobra.NoArgs,
	PreRunE: func(_ *cobra.Command, _ []string) error {
		return initClient()
	},
	RunE: func(cmd *cobra.Command, _ []string) error {
		over, err := sourceOverload()
		if err != nil {
			return err
		}
		res, err := tui.Run(client, tui.Options{Game: cfg.BikeTag.Game, Overloads: over})
		if err != nil {
			return err
		}
		if res.Cancelled {
			return nil
		}
		return write(cmd.OutOrStdout(), res.Selected, func() string { return renderTags(res.Selected) })
	},
}
