package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"journeycal/internal/capture"
	"journeycal/internal/config"
)

func newSnapshotCmd() *cobra.Command {
	opts := capture.SnapshotOptions{}
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Save a PNG of the grid page served by a running instance",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.URL == "" {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				opts.URL = "http://" + cfg.Listen + "/"
				if opts.Username == "" && cfg.BasicAuth != nil {
					opts.Username = cfg.BasicAuth.Username
				}
			}
			if opts.Username != "" && opts.Password == "" {
				opts.Password = os.Getenv("JOURNEYCAL_PASSWORD")
			}
			return capture.Snapshot(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.URL, "url", "", "Page to capture (default: the configured listen address)")
	cmd.Flags().StringVarP(&opts.OutputPath, "out", "o", "journeycal.png", "Output PNG path")
	cmd.Flags().IntVar(&opts.Width, "width", capture.DefaultWidth, "Viewport width")
	cmd.Flags().IntVar(&opts.Height, "height", capture.DefaultHeight, "Viewport height")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", capture.DefaultTimeout, "Capture timeout")
	cmd.Flags().StringVar(&opts.Username, "user", "", "Basic auth user")
	cmd.Flags().StringVar(&opts.Password, "password", "", "Basic auth password (or JOURNEYCAL_PASSWORD)")
	return cmd
}

func newHashPasswordCmd() *cobra.Command {
	var user string
	var write bool
	cmd := &cobra.Command{
		Use:   "hash-password",
		Short: "Hash a password for basic_auth.password_hash",
		Long: `Prompts for a password twice and prints its bcrypt hash. With --write
the hash and --user are stored in the config file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword(cmd.InOrStdin(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			hash, err := config.HashPassword(password)
			if err != nil {
				return err
			}
			if !write {
				fmt.Fprintln(cmd.OutOrStdout(), hash)
				return nil
			}
			if user == "" {
				return errors.New("--write needs --user")
			}
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			cfg.BasicAuth = &config.BasicAuthConfig{Username: user, PasswordHash: hash}
			if err := cfg.Save(cfgFile); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "basic auth for %q written to %s\n", user, cfgFile)
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "Basic auth user name")
	cmd.Flags().BoolVar(&write, "write", false, "Store the credentials in the config file")
	return cmd
}

// readPassword prompts twice without echo on a terminal. Piped input is read
// as two lines.
func readPassword(in io.Reader, prompt io.Writer) (string, error) {
	var first, second string
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fd := int(f.Fd())
		fmt.Fprint(prompt, "Enter password:   ")
		p1, err := term.ReadPassword(fd)
		fmt.Fprintln(prompt)
		if err != nil {
			return "", err
		}
		fmt.Fprint(prompt, "Confirm password: ")
		p2, err := term.ReadPassword(fd)
		fmt.Fprintln(prompt)
		if err != nil {
			return "", err
		}
		first, second = string(p1), string(p2)
	} else {
		data, err := io.ReadAll(in)
		if err != nil {
			return "", err
		}
		lines := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
		first = lines[0]
		second = first
		if len(lines) > 1 && lines[1] != "" {
			second = lines[1]
		}
	}
	if first == "" {
		return "", errors.New("password cannot be empty")
	}
	if first != second {
		return "", errors.New("passwords do not match")
	}
	return first, nil
}
