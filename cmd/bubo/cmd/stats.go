package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"
	"github.com/ssargent/bubo/pkg/hashset"
)

func newStatsCmd() *cobra.Command {
	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show store statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := storeFrom(cmd)
			if err != nil {
				return err
			}
			stats, err := s.Stats()
			if err != nil {
				return err
			}

			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(stats)
			}

			hs := stats.Attrs.HashSet
			cmd.Printf("Store ID:        %s\n", stats.StoreID)
			cmd.Printf("Attribute sets:  %d\n", stats.Entries)
			cmd.Printf("Log size:        %d bytes\n", stats.LogSize)
			cmd.Printf("Tags:            %d\n", stats.Attrs.Strings.Tags)
			cmd.Printf("Values:          %d\n", stats.Attrs.Strings.Values)
			cmd.Printf("String bytes:    %d\n", stats.Attrs.Strings.Bytes)
			cmd.Printf("Hash set slots:  %d (%d tombstones)\n", hs.SpineLen, hs.Tombstones)
			cmd.Printf("Hash set memory: %d bytes (table %d, blobs %d/%d used)\n",
				hs.Bytes, hs.HTBytes, hs.BlobUsedBytes, hs.BlobAllocatedBytes)
			return nil
		},
	}
	statsCmd.Flags().Bool("json", false, "Print statistics as JSON")
	return statsCmd
}

func newHashCmd() *cobra.Command {
	hashCmd := &cobra.Command{
		Use:   "hash <data>",
		Short: "Print the bucketing hash of a string",
		Long: `Print the hash the store uses to bucket records, computed over the bytes
of the argument.

Example:
  bubo hash abc
  bubo hash --func murmur3 --seed 7 abc`,
		Annotations: map[string]string{skipStore: "true"},
		Args:        cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("func")
			seed, _ := cmd.Flags().GetUint32("seed")
			if name == "" {
				name = configFrom(cmd).HashSet.Hash
			}

			fn, err := hashset.HashFunc(name, seed)
			if err != nil {
				return err
			}
			cmd.Printf("%08x\n", fn([]byte(args[0])))
			return nil
		},
	}
	hashCmd.Flags().String("func", "", "Hash function (jenkins, murmur3); defaults to the configured one")
	hashCmd.Flags().Uint32("seed", 0, "Seed for murmur3")
	return hashCmd
}
