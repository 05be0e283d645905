package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"startup-positioning-map/internal/clusters"
)

func newLabelClustersCmd(opts *globalOptions) *cobra.Command {
	var (
		file  string
		names string
	)

	cmd := &cobra.Command{
		Use:   "label-clusters",
		Short: "Add semantic cluster names to the clustered startup data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("file") {
				file = cfg.Clusters.DataFile
			}
			if !cmd.Flags().Changed("names") {
				names = cfg.Clusters.NamesFile
			}

			if names != "" {
				names = resolvePath(cfg.Environment.ProjectDir, names)
			}
			nameMap, err := clusters.LoadNames(names)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Reading %s...\n", file)
			res, err := clusters.Label(resolvePath(cfg.Environment.ProjectDir, file), nameMap)
			if err != nil {
				return err
			}
			clusters.Print(out, res)
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "Clustered CSV to label (default $CLUSTERED_DATA_FILE)")
	cmd.Flags().StringVar(&names, "names", "", "YAML file with cluster names (default $CLUSTER_NAMES_FILE or built-in names)")
	return cmd
}

// resolvePath makes relative paths relative to the project root.
func resolvePath(projectDir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(projectDir, path)
}
