package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/omuapps/obssync/internal/config"
)

var (
	configPaths bool
	configInit  bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	RunE:  runConfig,
}

func init() {
	configCmd.Flags().BoolVar(&configPaths, "paths", false, "Show system paths instead")
	configCmd.Flags().BoolVar(&configInit, "init", false, "Write the effective configuration to the global config file if it does not exist")
}

func runConfig(cmd *cobra.Command, args []string) error {
	if configPaths {
		paths := config.GetPaths()
		fmt.Println("obssync paths:")
		fmt.Println()
		fmt.Printf("  Config:   %s\n", paths.Config)
		fmt.Printf("  Data:     %s\n", paths.Data)
		fmt.Printf("  State:    %s\n", paths.State)
		fmt.Printf("  Storage:  %s\n", paths.StoragePath())
		fmt.Printf("  Logs:     %s\n", paths.LogDir())
		fmt.Printf("  OBS:      %s\n", config.DefaultOBSDir())
		return nil
	}

	a, err := loadApp()
	if err != nil {
		return err
	}

	if configInit {
		path := config.GlobalConfigPath()
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
		if err := config.Save(a.cfg, path); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", path)
		return nil
	}

	data, err := json.MarshalIndent(a.cfg, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
