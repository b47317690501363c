package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/compose-network/harberger/x/auth"
)

func newKeygenCmd() *cobra.Command {
	var (
		out   string
		force bool
	)
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a caller key and print its address",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := os.Stat(out); err == nil && !force {
				return fmt.Errorf("%s already exists, pass --force to replace it", out)
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
			signer, err := auth.GenerateKey()
			if err != nil {
				return err
			}
			if err := signer.SaveKey(out); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), signer.Address().Hex())
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "caller.key", "key file to write")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing key file")
	return cmd
}

func newSignCmd() *cobra.Command {
	var (
		keyFile  string
		method   string
		target   string
		body     string
		bodyFile string
		nonce    uint64
		ttl      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Print the auth headers for one ledger request",
		Long: "Signs method, path, nonce, expiry and body with the key in --key-file and\n" +
			"prints the headers to send, one per line.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			signer, err := auth.LoadKey(keyFile)
			if err != nil {
				return err
			}

			payload := []byte(body)
			if bodyFile != "" {
				if payload, err = os.ReadFile(bodyFile); err != nil {
					return fmt.Errorf("read body: %w", err)
				}
			}
			if !cmd.Flag("nonce").Changed {
				nonce = uint64(time.Now().UnixNano())
			}

			req := auth.Request{
				Method: method,
				Target: target,
				Nonce:  nonce,
				Expiry: time.Now().Add(ttl),
				Body:   payload,
			}
			sig, err := signer.SignRequest(req)
			if err != nil {
				return err
			}

			cfg := auth.DefaultConfig()
			headers := http.Header{}
			cfg.SetHeaders(headers, req, sig)
			for _, name := range []string{cfg.SignatureHeader, cfg.NonceHeader, cfg.ExpiryHeader} {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", name, headers.Get(name))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&keyFile, "key-file", "caller.key", "key file written by keygen")
	cmd.Flags().StringVar(&method, "method", "POST", "HTTP method")
	cmd.Flags().StringVar(&target, "path", "", "request path and query, e.g. /v1/slots/0/claim")
	cmd.Flags().StringVar(&body, "body", "", "request body")
	cmd.Flags().StringVar(&bodyFile, "body-file", "", "read the request body from a file")
	cmd.Flags().Uint64Var(&nonce, "nonce", 0, "request nonce (default: current unix nanoseconds)")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Minute, "how long the signature stays valid")
	_ = cmd.MarkFlagRequired("path")
	cmd.MarkFlagsMutuallyExclusive("body", "body-file")
	return cmd
}
