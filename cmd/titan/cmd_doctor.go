package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Djtony707/TITAN/internal/config"
)

type doctorCheck struct {
	Name string
	OK   bool
	Info string
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that the configured workspace, store, and broker binaries are usable",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		var checks []doctorCheck

		if _, err := os.Stat(cfg.Workspace.Root); err == nil {
			checks = append(checks, doctorCheck{"workspace_root", true, cfg.Workspace.Root})
		} else {
			checks = append(checks, doctorCheck{"workspace_root", false, err.Error()})
		}

		dbPath := cfg.Store.Path
		if dbPath == "" {
			home, _ := os.UserHomeDir()
			dbPath = filepath.Join(home, ".titan", "titan.db")
		}
		if _, err := os.Stat(filepath.Dir(dbPath)); err == nil {
			checks = append(checks, doctorCheck{"store_dir", true, filepath.Dir(dbPath)})
		} else {
			checks = append(checks, doctorCheck{"store_dir", false, err.Error()})
		}

		for _, bin := range cfg.Broker.AllowedExecBinaries {
			if path, err := exec.LookPath(bin); err == nil {
				checks = append(checks, doctorCheck{"exec_binary:" + bin, true, path})
			} else {
				checks = append(checks, doctorCheck{"exec_binary:" + bin, false, "not found on PATH"})
			}
		}

		return printJSON(checks)
	},
}

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Write a default config.toml and create the ~/.titan directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfgPath
		if path == "" {
			path = config.DefaultConfigPath()
		}
		if _, err := os.Stat(path); err == nil {
			fmt.Fprintf(cmdOut, "config already exists at %s, leaving it untouched\n", path)
			return nil
		}

		cfg := config.DefaultConfig()
		if wsOverride != "" {
			abs, err := filepath.Abs(wsOverride)
			if err != nil {
				return err
			}
			cfg.Workspace.Root = abs
		} else {
			cwd, err := os.Getwd()
			if err != nil {
				return err
			}
			cfg.Workspace.Root = cwd
		}

		if err := cfg.Save(path); err != nil {
			return err
		}

		home, _ := os.UserHomeDir()
		if err := os.MkdirAll(filepath.Join(home, ".titan"), 0o755); err != nil {
			return err
		}

		fmt.Fprintf(cmdOut, "wrote %s, workspace root %s\n", path, cfg.Workspace.Root)
		return nil
	},
}
