// Package main provides the entry point for the lsky-uploader CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

// Shared flag variables for all commands.
var (
	vaultDir    string
	verbose     bool
	assumeYes   bool
	noteArgHint = "relative path of the note inside the vault"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "lsky-uploader",
		Short: "Sync Obsidian image references with a Lsky Pro image host",
		Long: `lsky-uploader uploads local images referenced by Obsidian notes to a
Lsky Pro server and rewrites the notes to point at the hosted URLs. It
can also localize hosted images back into the vault, and clean up
hosted images no note references anymore.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&vaultDir, "vault", "", "vault directory (overrides VAULT_DIR)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	uploadCmd := &cobra.Command{
		Use:   "upload <note>",
		Short: "Upload a note's local images and rewrite its references",
		Long: `Upload resolves every local image reference in the given note, uploads
each image to the configured server, and rewrites the references to the
hosted URLs. The note path is ` + noteArgHint + `.`,
		Args: cobra.ExactArgs(1),
		RunE: runUpload,
	}
	rootCmd.AddCommand(uploadCmd)

	downloadCmd := &cobra.Command{
		Use:   "download <note>",
		Short: "Localize a note's hosted images back into the vault",
		Long: `Download fetches every image the note references on the configured
server into a folder next to the note and rewrites the references to
local embeds. The note path is ` + noteArgHint + `.`,
		Args: cobra.ExactArgs(1),
		RunE: runDownload,
	}
	rootCmd.AddCommand(downloadCmd)

	downloadAllCmd := &cobra.Command{
		Use:   "download-all",
		Short: "Localize hosted images across every note in the vault",
		RunE:  runDownloadAll,
	}
	rootCmd.AddCommand(downloadAllCmd)

	cleanCmd := &cobra.Command{
		Use:   "clean",
		Short: "Delete hosted images no note references anymore",
		Long: `Clean lists the full remote inventory, scans every note for references
to it, and deletes the images nothing references. Deletion requires
confirmation unless --yes is given.`,
		RunE: runClean,
	}
	cleanCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "skip the deletion confirmation prompt")
	rootCmd.AddCommand(cleanCmd)

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the vault and upload images of notes as they change",
		RunE:  runWatch,
	}
	rootCmd.AddCommand(watchCmd)

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Println("lsky-uploader " + Version)
		},
	}
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
