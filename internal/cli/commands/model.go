package commands

import (
	"fmt"

	"github.com/casegrid-labs/casegrid/internal/loader"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// NewModelCommand creates the model command and its subcommands.
func NewModelCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Manage saved model aliases",
		Long: `Save model files under an alias in the state database, so studies can
reference them by name instead of by path.`,
	}

	cmd.AddCommand(newModelSaveCommand())
	cmd.AddCommand(newModelShowCommand())
	cmd.AddCommand(newModelListCommand())
	cmd.AddCommand(newModelDeleteCommand())
	return cmd
}

func newModelSaveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "save <alias> <model-file>",
		Short: "Save a model file under an alias",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			alias, path := args[0], args[1]

			model, err := loader.LoadModel(path)
			if err != nil {
				return err
			}
			model.ID = alias

			s, err := openStore(getConfig(cmd).StatePath)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.SaveModel(model); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved model %q\n", alias)
			return nil
		},
	}
}

func newModelShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <alias>",
		Short: "Print a saved model as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore(getConfig(cmd).StatePath)
			if err != nil {
				return err
			}
			defer s.Close()

			model, err := s.GetModel(args[0])
			if err != nil {
				return err
			}

			data, err := loader.MarshalModel(model)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}

func newModelListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openStore(getConfig(cmd).StatePath)
			if err != nil {
				return err
			}
			defer s.Close()

			models, err := s.ListModels()
			if err != nil {
				return err
			}
			if len(models) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "(no saved models)")
				return nil
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Alias", "Var Marker", "Formula Marker", "Outputs"})
			for _, m := range models {
				t.AppendRow(table.Row{m.ID, m.VarMarker, m.FormulaMarker, len(m.Output)})
			}
			t.Render()
			return nil
		},
	}
}

func newModelDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <alias>",
		Short: "Delete a saved model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore(getConfig(cmd).StatePath)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.DeleteModel(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted model %q\n", args[0])
			return nil
		},
	}
}
