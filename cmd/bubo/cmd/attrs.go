package cmd

import (
	"github.com/spf13/cobra"
	"github.com/ssargent/bubo/pkg/attrs"
)

func newAddCmd() *cobra.Command {
	addCmd := &cobra.Command{
		Use:   "add <tag=value>...",
		Short: "Add an attribute set",
		Long: `Add an attribute set to the store. The order of the attributes does not
matter; ignored tags are dropped.

Example:
  bubo add host=db-01 region=eu`,
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := attrs.ParsePairs(args)
			if err != nil {
				return err
			}
			s, err := storeFrom(cmd)
			if err != nil {
				return err
			}
			wantString, _ := cmd.Flags().GetBool("string")

			existed, attrString, err := s.Add(set, wantString)
			if err != nil {
				return err
			}
			if existed {
				cmd.Println("exists")
			} else {
				cmd.Println("added")
			}
			if wantString {
				cmd.Println(attrString)
			}
			return nil
		},
	}
	addCmd.Flags().Bool("string", false, "Print the canonical attribute string")
	return addCmd
}

func newContainsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "contains <tag=value>...",
		Short: "Check whether an attribute set is stored",
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := attrs.ParsePairs(args)
			if err != nil {
				return err
			}
			s, err := storeFrom(cmd)
			if err != nil {
				return err
			}
			found, err := s.Contains(set)
			if err != nil {
				return err
			}
			cmd.Println(found)
			return nil
		},
	}
}

func newRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <tag=value>...",
		Short: "Remove an attribute set",
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := attrs.ParsePairs(args)
			if err != nil {
				return err
			}
			s, err := storeFrom(cmd)
			if err != nil {
				return err
			}
			removed, err := s.Remove(set)
			if err != nil {
				return err
			}
			if removed {
				cmd.Println("removed")
			} else {
				cmd.Println("not found")
			}
			return nil
		},
	}
}

func newListCmd() *cobra.Command {
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List stored attribute sets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := storeFrom(cmd)
			if err != nil {
				return err
			}
			limit, _ := cmd.Flags().GetInt("limit")
			sets, err := s.List(limit)
			if err != nil {
				return err
			}
			for _, set := range sets {
				cmd.Println(attrs.String(set))
			}
			return nil
		},
	}
	listCmd.Flags().IntP("limit", "n", 0, "Maximum number of sets to print (0 = all)")
	return listCmd
}
