package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kimhsiao/tijara/backend/internal/crypto"
	"github.com/kimhsiao/tijara/backend/internal/errors"
)

// EncryptSecretOptions holds flags for the encrypt-secret command.
type EncryptSecretOptions struct {
	*RootOptions
	MachineID string
}

// NewEncryptSecretCommand creates the encrypt-secret command.
func NewEncryptSecretCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EncryptSecretOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "encrypt-secret [value]",
		Short: "Encrypt a secret with this machine's key for the config file",
		Long: `Encrypt an API token or storage secret for remote.token_encrypted or
assets.secret_key_encrypted. Without an argument the value is read from the
first line of stdin. The result only decrypts on the same machine.

Example:
  echo -n "$TOKEN" | tijara-sync encrypt-secret`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: withPrinter(rootOpts, func(cmd *cobra.Command, args []string, p *Printer) error {
			secret, err := readSecret(cmd.InOrStdin(), args)
			if err != nil {
				return WrapExitError(ExitCommandError, "no secret given", err)
			}

			machineID := opts.MachineID
			if machineID == "" {
				machineID = crypto.MachineID()
			}
			encrypted, err := crypto.EncryptSecret(secret, machineID)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to encrypt secret",
					errors.Wrap(errors.ErrCryptoFailed, "encrypt", err))
			}

			return p.Success(map[string]string{"encrypted": encrypted}, func(w io.Writer) {
				fmt.Fprintln(w, encrypted)
			})
		}),
	}

	cmd.Flags().StringVar(&opts.MachineID, "machine-id", "", "encrypt for another machine id")

	return cmd
}

func readSecret(in io.Reader, args []string) (string, error) {
	if len(args) == 1 {
		if args[0] == "" {
			return "", errors.New(errors.ErrInvalid, "secret is empty")
		}
		return args[0], nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	secret := strings.TrimRight(line, "\r\n")
	if secret == "" {
		return "", errors.New(errors.ErrInvalid, "secret is empty")
	}
	return secret, nil
}
