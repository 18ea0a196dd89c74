package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"url-spider/pkg/config"
)

func newValidateCmd(global *globalOptions, stdout, stderr io.Writer) *cobra.Command {
	var siteKey string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the config file and its site profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return exitCode(doValidate(global.configPath, siteKey, stdout, stderr))
		},
	}
	cmd.Flags().StringVar(&siteKey, "site", "", "Validate only this site profile")
	return cmd
}

// doValidate is the testable implementation of the validate command
func doValidate(configPath, siteKey string, stdout, stderr io.Writer) int {
	appCfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	// Sites are checked one by one below so every broken profile is reported
	sites := appCfg.Sites
	appCfg.Sites = nil
	warnings, err := appCfg.Validate()
	for _, w := range warnings {
		fmt.Fprintf(stdout, "WARN: %s\n", w)
	}
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}

	if siteKey != "" {
		siteCfg, ok := sites[siteKey]
		if !ok {
			fmt.Fprintf(stderr, "Error: site '%s' not found in config\n", siteKey)
			return 1
		}
		siteWarnings, err := siteCfg.Validate()
		if err != nil {
			fmt.Fprintf(stderr, "ERROR: [%s] %v\n", siteKey, err)
			return 1
		}
		for _, w := range siteWarnings {
			fmt.Fprintf(stdout, "WARN: [%s] %s\n", siteKey, w)
		}
		fmt.Fprintf(stdout, "OK: Site '%s' configuration is valid\n", siteKey)
	} else {
		hasError := false
		keys := make([]string, 0, len(sites))
		for k := range sites {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, key := range keys {
			siteCfg := sites[key]
			siteWarnings, err := siteCfg.Validate()
			if err != nil {
				fmt.Fprintf(stderr, "ERROR: [%s] %v\n", key, err)
				hasError = true
				continue
			}
			for _, w := range siteWarnings {
				fmt.Fprintf(stdout, "WARN: [%s] %s\n", key, w)
			}
			fmt.Fprintf(stdout, "OK: [%s]\n", key)
		}
		if hasError {
			return 1
		}
	}

	fmt.Fprintln(stdout, "\nConfiguration valid.")
	return 0
}
