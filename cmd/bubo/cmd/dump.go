package cmd

import (
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/grailbio/base/log"
	"github.com/spf13/cobra"
)

func newExportCmd() *cobra.Command {
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Write every attribute set to a snappy-compressed dump",
		Long: `Write every stored attribute set as a snappy-framed stream of literal
records. The dump does not depend on the store's internal numbering and can be
loaded into any store with import.

Examples:
  bubo export --out attrs.sz
  bubo export > attrs.sz`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := storeFrom(cmd)
			if err != nil {
				return err
			}
			out, _ := cmd.Flags().GetString("out")

			var w io.Writer = cmd.OutOrStdout()
			if out != "" && out != "-" {
				f, err := os.OpenFile(out, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
				if err != nil {
					return err
				}
				defer func() {
					if cerr := f.Close(); cerr != nil {
						log.Error.Printf("close %s: %v", out, cerr)
					}
				}()
				w = f
			}

			n, err := s.Export(w)
			if err != nil {
				return err
			}
			log.Printf("exported %d attribute sets", n)
			return nil
		},
	}
	exportCmd.Flags().StringP("out", "o", "", "Output file (default stdout)")
	return exportCmd
}

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file|->",
		Short: "Add every attribute set from a dump written by export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := storeFrom(cmd)
			if err != nil {
				return err
			}

			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}

			added, err := s.Import(r)
			if err != nil {
				return errors.Wrapf(err, "import %s (%d sets added before the error)", args[0], added)
			}
			cmd.Printf("imported %d new attribute sets\n", added)
			return nil
		},
	}
}
