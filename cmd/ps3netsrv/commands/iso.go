package commands

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/marmos91/ps3netsrv/pkg/iso"
)

func newISOCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "iso",
		Short: "Virtual ISO tools",
	}
	cmd.AddCommand(newISOInspectCmd(afero.NewOsFs()))
	return cmd
}

func newISOInspectCmd(fs afero.Fs) *cobra.Command {
	var tree bool

	cmd := &cobra.Command{
		Use:   "inspect <dir>",
		Short: "Build the virtual ISO of a folder and describe it",
		Long: `Build the virtual ISO a client would see for <dir>, without serving it,
and print its volume information. With --tree every file and directory
record is listed with its LBA and size.

Examples:
  ps3netsrv iso inspect /srv/ps3/GAMES/BLES00000
  ps3netsrv iso inspect --tree /srv/ps3/PSXGAMES/game`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return inspectISO(cmd.OutOrStdout(), fs, args[0], tree)
		},
	}

	cmd.Flags().BoolVar(&tree, "tree", false, "list every record of the image")
	return cmd
}

func inspectISO(out io.Writer, fs afero.Fs, dir string, tree bool) error {
	start := time.Now()
	v, err := iso.NewVirtualISO(fs, dir)
	if err != nil {
		return fmt.Errorf("failed to build virtual ISO: %w", err)
	}
	defer func() { _ = v.Close() }()
	elapsed := time.Since(start)

	img, err := iso.Inspect(v)
	if err != nil {
		return fmt.Errorf("failed to read back virtual ISO: %w", err)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Name:\t%s\n", v.Name())
	fmt.Fprintf(w, "Volume ID:\t%s\n", img.VolumeID)
	if v.PS3Mode() {
		fmt.Fprintf(w, "Title ID:\t%s\n", v.TitleID())
	}
	fmt.Fprintf(w, "Size:\t%d bytes\n", v.Size())
	fmt.Fprintf(w, "Sectors:\t%d\n", img.VolumeSectors)
	fmt.Fprintf(w, "Metadata:\t%d bytes\n", v.MetadataSize())
	fmt.Fprintf(w, "Directories:\t%d\n", len(img.PathTable))
	fmt.Fprintf(w, "Files:\t%d\n", v.Files())
	fmt.Fprintf(w, "Build time:\t%s\n", elapsed.Round(time.Microsecond))
	if err := w.Flush(); err != nil {
		return err
	}

	if !tree {
		return nil
	}

	fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "LBA\tSIZE\t\tPATH\t")
	err = iso.Walk(v, img.Root, func(p string, rec iso.Record) error {
		kind := ""
		switch {
		case rec.IsDir():
			kind = "d"
		case rec.MultiExtent():
			kind = "+"
		}
		_, err := fmt.Fprintf(w, "%d\t%d\t%s\t%s\t\n", rec.LBA, rec.Size, kind, p)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to walk virtual ISO: %w", err)
	}
	return w.Flush()
}
