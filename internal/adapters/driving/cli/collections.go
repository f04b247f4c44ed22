package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/digital-forge/forge-rag/internal/core/domain"
)

var (
	createDimension int
	createMetric    string
	rebuildFull     bool
)

var collectionsCmd = &cobra.Command{
	Use:   "collections",
	Short: "Manage vector store collections",
}

var collectionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all collections",
	RunE:  runCollectionsList,
}

var collectionsCreateCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Create a collection",
	Args:  cobra.ExactArgs(1),
	RunE:  runCollectionsCreate,
}

var collectionsDescribeCmd = &cobra.Command{
	Use:   "describe [name]",
	Short: "Show collection details",
	Args:  cobra.ExactArgs(1),
	RunE:  runCollectionsDescribe,
}

var collectionsRebuildCmd = &cobra.Command{
	Use:   "rebuild [name]",
	Short: "Rebuild a collection's index",
	Long: `Triggers an incremental index optimization. With --full the index
is rebuilt from scratch, which blocks until the rebuild completes.`,
	Args: cobra.ExactArgs(1),
	RunE: runCollectionsRebuild,
}

func init() {
	collectionsCreateCmd.Flags().IntVarP(&createDimension, "dimension", "d", 1536, "vector dimension")
	collectionsCreateCmd.Flags().StringVarP(&createMetric, "metric", "m", "cosine", "distance metric (cosine, dot, euclid)")
	collectionsRebuildCmd.Flags().BoolVar(&rebuildFull, "full", false, "rebuild the index from scratch")

	collectionsCmd.AddCommand(collectionsListCmd)
	collectionsCmd.AddCommand(collectionsCreateCmd)
	collectionsCmd.AddCommand(collectionsDescribeCmd)
	collectionsCmd.AddCommand(collectionsRebuildCmd)
	rootCmd.AddCommand(collectionsCmd)
}

func runCollectionsList(cmd *cobra.Command, _ []string) error {
	infos, err := indexService.ListCollections(cmd.Context())
	if err != nil {
		return fmt.Errorf("listing collections: %w", err)
	}

	if len(infos) == 0 {
		cmd.Println("No collections.")
		return nil
	}

	for _, info := range infos {
		cmd.Printf("  %-24s %6d vectors  dim=%d  %s  [%s]\n",
			info.Name, info.VectorCount, info.Dimension, info.Distance, info.State)
	}
	return nil
}

func runCollectionsCreate(cmd *cobra.Command, args []string) error {
	name := args[0]
	metric := domain.DistanceMetric(createMetric)

	if err := indexService.CreateCollection(cmd.Context(), name, createDimension, metric); err != nil {
		return fmt.Errorf("creating collection: %w", err)
	}

	cmd.Printf("Created collection %q (dim=%d, metric=%s)\n", name, createDimension, metric)
	return nil
}

func runCollectionsDescribe(cmd *cobra.Command, args []string) error {
	info, err := indexService.DescribeCollection(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("describing collection: %w", err)
	}

	cmd.Printf("Name:      %s\n", info.Name)
	cmd.Printf("State:     %s\n", info.State)
	cmd.Printf("Vectors:   %d\n", info.VectorCount)
	cmd.Printf("Dimension: %d\n", info.Dimension)
	cmd.Printf("Metric:    %s\n", info.Distance)
	if !info.IndexedAt.IsZero() {
		cmd.Printf("Indexed:   %s\n", info.IndexedAt.Format("2006-01-02 15:04:05"))
	}

	if degraded := indexService.DegradedDocuments(info.Name); len(degraded) > 0 {
		cmd.Println("Degraded documents:")
		for _, path := range degraded {
			cmd.Printf("  %s\n", path)
		}
	}
	return nil
}

func runCollectionsRebuild(cmd *cobra.Command, args []string) error {
	mode := domain.RebuildIncremental
	if rebuildFull {
		mode = domain.RebuildFull
	}

	info, err := indexService.Rebuild(cmd.Context(), args[0], mode)
	if err != nil {
		return fmt.Errorf("rebuild failed: %w", err)
	}

	cmd.Printf("Rebuild (%s) complete: %d vectors, state %s\n", mode, info.VectorCount, info.State)
	return nil
}
