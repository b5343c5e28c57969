package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"alphadip-config/configs"
	"alphadip-config/pipelines"
	"alphadip-config/pipelines/setup"
)

func newTemplateCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "template",
		Short: "Write the configuration template",
		Long: `Write the configuration template with placeholder values.

Use -o - to print it instead of writing a file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "-" {
				_, err := cmd.OutOrStdout().Write(configs.RenderTemplate())
				return err
			}
			if err := configs.WriteTemplate(out); err != nil {
				return failed(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", configs.TemplateFileName, "Template path")
	return cmd
}

func newInitCmd() *cobra.Command {
	var (
		templatePath string
		outPath      string
		force        bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the runtime config from the template",
		Long: `Copy the template to the runtime config file so real credentials can be
filled in. An existing runtime file is kept unless --force is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := configs.InitRuntime(templatePath, outPath, force); err != nil {
				if errors.Is(err, configs.ErrExists) {
					return failed(fmt.Errorf("%w (use --force to overwrite)", err))
				}
				return failed(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s from %s\n", outPath, templatePath)
			fmt.Fprintf(cmd.OutOrStdout(), "Edit it and replace every placeholder, then run 'alphadip validate -f %s'\n", outPath)

			ignored, err := configs.IsGitIgnored(outPath)
			switch {
			case err != nil:
				fmt.Fprintf(cmd.ErrOrStderr(), "Warning: could not read .gitignore: %v\n", err)
			case !ignored:
				fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %s is not in .gitignore; never commit real credentials\n", filepath.Base(outPath))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&templatePath, "template", configs.TemplateFileName, "Template path")
	cmd.Flags().StringVar(&outPath, "out", configs.RuntimeFileName, "Runtime config path")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing runtime config")
	return cmd
}

func newValidateCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the runtime config",
		Long: `Validate the runtime config without contacting Google.

Exit status is 0 when every key holds a usable value, 1 when any key is
missing, still a placeholder, or malformed, and 2 on usage errors.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configs.LoadFile(file)
			if err != nil {
				return failed(err)
			}

			p, err := pipelines.New(setup.Name, pipelines.NewOfflineState(cfg))
			if err != nil {
				return failed(err)
			}
			err = p.ValidateConfig()
			var ve *configs.ValidationError
			if errors.As(err, &ve) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s is not valid:\n", file)
				for _, f := range ve.Fields {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", f.Error())
				}
				return &exitError{code: exitFailed}
			}
			if err != nil {
				return failed(err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s is valid\n", file)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", configs.RuntimeFileName, "Runtime config path")
	return cmd
}

func newShowCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the runtime config with the API key masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configs.LoadFile(file)
			if err != nil {
				return failed(err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(cfg.Masked())
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", configs.RuntimeFileName, "Runtime config path")
	return cmd
}

func newExtractIDCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract-id <url>",
		Short: "Print the spreadsheet ID from a Google Sheets URL",
		Long: `Print the spreadsheet ID from a Google Sheets URL, for example

  alphadip extract-id https://docs.google.com/spreadsheets/d/{SHEETS_ID}/edit`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := configs.ExtractSheetsID(args[0])
			if err != nil {
				return failed(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
}
