package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/root-talis/fuelmig/topology"
)

func newProjectCommand(a *app) *cobra.Command {
	var (
		input  string
		format string
	)

	cmd := &cobra.Command{
		Use:   "project",
		Short: "Render the deployment network document of a cluster",
		Long: `Reads a YAML projection request (cluster, nodes and role metadata) and
prints the network document every node is deployed with.

Examples:
  fuelmig project --input cluster.yaml
  fuelmig project --input - --format json < cluster.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var r io.Reader = cmd.InOrStdin()
			if input != "-" {
				f, err := os.Open(input)
				if err != nil {
					return fmt.Errorf("failed to open input: %w", err)
				}
				defer f.Close()
				r = f
			}

			in, err := topology.LoadInput(r)
			if err != nil {
				return err
			}

			doc, err := topology.Project(in.Cluster, in.Nodes, in.Roles, topology.Options{MasterIP: a.cfg.MasterIP})
			if err != nil {
				return err
			}
			a.logger.WithField("cluster", in.Cluster.Name).WithField("nodes", len(doc.Nodes)).Debug("projected cluster")

			var out []byte
			switch format {
			case "yaml":
				out, err = doc.YAML()
			case "json":
				out, err = doc.JSON()
			default:
				return fmt.Errorf("unknown format %q, expected yaml or json", format)
			}
			if err != nil {
				return err
			}

			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "-", "projection request file, - for stdin")
	cmd.Flags().StringVarP(&format, "format", "f", "yaml", "output format: yaml or json")
	return cmd
}
