package main

import (
	"encoding/json"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/c360/blockflow/errors"
)

func newConfigCmd(a *app) *cobra.Command {
	var (
		check  bool
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Config prints the configuration after defaults, every --config layer and
BLOCKFLOW_* variables are applied. Credentials are masked.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if check {
				// loading already validated it
				fmt.Fprintln(a.out, color.GreenString("configuration is valid"))
				return nil
			}

			redacted := a.cfg.Redacted()
			var (
				data []byte
				err  error
			)
			if asJSON {
				data, err = json.MarshalIndent(redacted, "", "  ")
				data = append(data, '\n')
			} else {
				data, err = redacted.YAML()
			}
			if err != nil {
				return errors.WrapFatal(err, "blockflow", "config", "encode configuration")
			}
			_, err = a.out.Write(data)
			return err
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "only validate the configuration")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of YAML")
	return cmd
}
