package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/sydlexius/camwatch/internal/auth"
	"github.com/sydlexius/camwatch/internal/camera"
	"github.com/sydlexius/camwatch/internal/config"
	"github.com/sydlexius/camwatch/internal/database"
)

func newImportCmd() *cobra.Command {
	var (
		by        string
		keepEdits bool
	)
	cmd := &cobra.Command{
		Use:   "import-cameras <file.json>",
		Short: "Upsert camera metadata from a JSON array",
		Long: `Reads a JSON array of camera records and upserts every record with a
usable six digit code. Legacy field names (codigo, nome, categoria,
descricao, coords, level) are accepted. With --keep-edits, rows last
written by anyone other than --by are left as they are.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			db, err := database.Open(cfg.Database.Path)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer db.Close() //nolint:errcheck
			if err := database.Migrate(db); err != nil {
				return fmt.Errorf("running migrations: %w", err)
			}

			f, err := os.Open(args[0]) //nolint:gosec // operator-supplied path
			if err != nil {
				return err
			}
			defer f.Close() //nolint:errcheck

			opts := camera.ImportOptions{By: by}
			if keepEdits {
				opts.Owner = by
			}
			res, err := camera.NewStore(db).ImportJSON(cmd.Context(), f, opts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, w := range res.Warnings {
				fmt.Fprintf(out, "warning: %s\n", w)
			}
			fmt.Fprintf(out, "imported %d cameras, skipped %d", res.Imported, res.Skipped)
			if res.Kept > 0 {
				fmt.Fprintf(out, ", kept %d edited", res.Kept)
			}
			fmt.Fprintln(out)
			return nil
		},
	}
	cmd.Flags().StringVar(&by, "by", "import-cameras", "name recorded in the audit log")
	cmd.Flags().BoolVar(&keepEdits, "keep-edits", false, "skip rows last written by someone other than --by")
	return cmd
}

func newHashTokenCmd() *cobra.Command {
	var generate bool
	cmd := &cobra.Command{
		Use:   "hash-token",
		Short: "Hash a service token for auth.static_tokens",
		Long: `Reads a service token from the terminal (without echo) or stdin and
prints the bcrypt hash to put in auth.static_tokens. With --generate a
random token is created and printed along with its hash.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()

			var token string
			if generate {
				t, err := auth.GenerateToken()
				if err != nil {
					return err
				}
				token = t
				fmt.Fprintf(out, "token: %s\n", token)
			} else {
				t, err := readToken(cmd.InOrStdin(), cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				token = t
			}

			hash, err := auth.HashToken(token)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "hash: %s\n", hash)
			return nil
		},
	}
	cmd.Flags().BoolVar(&generate, "generate", false, "generate a random token")
	return cmd
}

// readToken prompts on a terminal, or reads one line from a pipe.
func readToken(in io.Reader, prompt io.Writer) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) { //nolint:gosec // fd fits in int
		fmt.Fprint(prompt, "Token: ")
		b, err := term.ReadPassword(int(f.Fd())) //nolint:gosec // fd fits in int
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("reading token: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading token: %w", err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", errors.New("empty token")
	}
	return line, nil
}
