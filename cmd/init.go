// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/imulink/imulink/internal/config"
)

var (
	initOutput string
	initYes    bool
	initPrint  bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long: `Write the default configuration to ` + config.DefaultConfig + `
or to the path given with --output. An existing file is kept unless --yes is
passed.`,
	// the configuration being created may not exist yet
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE:              runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().StringVarP(&initOutput, "output", "o", config.DefaultConfig, "Output path")
	initCmd.Flags().BoolVarP(&initYes, "yes", "y", false, "Overwrite an existing file")
	initCmd.Flags().BoolVar(&initPrint, "print", false, "Print the defaults instead of writing them")
}

func runInit(cmd *cobra.Command, args []string) error {
	defaults := config.NewImulinkOpt()
	if initPrint {
		out, err := yaml.Marshal(defaults)
		if err != nil {
			return err
		}
		fmt.Print(string(out))
		return nil
	}

	err := config.Dump(defaults, initOutput, initYes)
	if errors.Is(err, config.ErrConfigExists) {
		return fmt.Errorf("%s already exists (use --yes to overwrite)", initOutput)
	}
	if err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", initOutput)
	return nil
}
