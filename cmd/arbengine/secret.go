package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alanyoungcy/arbengine/internal/credentials"
)

// passwordEnv supplies the encryption password when --password is absent.
const passwordEnv = "ARBENGINE_SECRET_PASSWORD"

func newEncryptSecretCmd() *cobra.Command {
	var (
		out      string
		password string
	)
	cmd := &cobra.Command{
		Use:   "encrypt-secret",
		Short: "Encrypt a venue API secret read from stdin",
		Long: `Reads one line from stdin, encrypts it with the password and writes the
result to --out. Point a venue's secret_file at the output and supply the
password through secret_password or the environment.`,
		Example: `  printf '%s\n' "$SECRET" | ARBENGINE_SECRET_PASSWORD=pw arbengine encrypt-secret --out kraken.enc`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				password = os.Getenv(passwordEnv)
			}
			if password == "" {
				return fmt.Errorf("no password: set --password or %s", passwordEnv)
			}
			secret, err := readLine(cmd)
			if err != nil {
				return err
			}
			data, err := credentials.EncryptSecret(secret, password)
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, data, 0o600); err != nil {
				return fmt.Errorf("writing %s: %w", out, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (required)")
	cmd.Flags().StringVar(&password, "password", "", "encryption password (default $"+passwordEnv+")")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func readLine(cmd *cobra.Command) (string, error) {
	sc := bufio.NewScanner(cmd.InOrStdin())
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return "", fmt.Errorf("reading secret: %w", err)
		}
		return "", errors.New("no secret on stdin")
	}
	return strings.TrimSpace(sc.Text()), nil
}
