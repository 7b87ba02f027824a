package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/CreativeUnicorns/leafprefs"
)

func inspectCmd() *cobra.Command {
	var withValues bool
	cmd := &cobra.Command{
		Use:   "inspect <export.json>",
		Short: "Print a leaf's exported preference tree",
		Long: `Print the preference tree a leaf exported with Preferences.Export.

With --values, the stored value of every preference is read from the
configured storage and shown next to its default.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			opts := []leafprefs.Option{leafprefs.WithLogger(logger)}
			if withValues {
				m, closeStore, err := openManager()
				if err != nil {
					return err
				}
				defer closeStore()
				opts = append(opts, leafprefs.WithStorage(m.Storage()))
			}
			m := leafprefs.New(opts...)

			prefs, err := m.LoadExport(ctx, args[0])
			if err != nil {
				return err
			}
			defer prefs.Close()

			out := cmd.OutOrStdout()
			printHeader(out, prefs.BundleIdentifier())
			for _, p := range prefs.Preferences() {
				printPreference(cmd, out, "  ", p, withValues)
			}
			for _, g := range prefs.Groups() {
				title := fmt.Sprintf("  %s (%s)", g.Name(), g.ID())
				if g.ShownKey() != "" {
					title += dimColor.Sprintf(" shown by %s", g.ShownKey())
				}
				_, _ = labelColor.Fprintln(out, title)
				for _, p := range g.Preferences() {
					printPreference(cmd, out, "    ", p, withValues)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&withValues, "values", false, "show stored values from the configured storage")
	return cmd
}

func printPreference(cmd *cobra.Command, out io.Writer, indent string, p *leafprefs.Preference, withValues bool) {
	def, ok := p.Default()
	if !ok {
		def = leafprefs.Absent(p.Kind())
	}
	_, _ = labelColor.Fprintf(out, "%s%s", indent, p.ID())
	_, _ = kindColor.Fprintf(out, "  %s", p.Kind())
	fmt.Fprintf(out, "  %q  default %s", p.Name(), renderValue(def))
	if withValues {
		if v, found := p.Value(cmd.Context()); found {
			fmt.Fprintf(out, "  value %s", renderValue(v))
		}
	}
	fmt.Fprintln(out)
}
