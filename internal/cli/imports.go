package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/smart-daily/dailychat/internal/importer"
)

func newImportCommand(a *app) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Preview and import daily entries from a CSV file",
		Long: `Upload a CSV file of date,name,content rows for preview, then confirm
to write the entries. Rows of unknown members and rows without content
are skipped. The preview expires after a few minutes.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			wf := importer.New(a.client, a.log)
			preview, err := wf.Preview(cmd.Context(), filepath.Base(args[0]), f)
			if err != nil {
				return err
			}
			fmt.Fprint(a.out, renderPreview(preview))

			if !yes {
				answer, err := a.readLine("确认导入？(y/N) ")
				if err != nil {
					return err
				}
				if !strings.EqualFold(answer, "y") && !strings.EqualFold(answer, "yes") {
					wf.Reset()
					fmt.Fprintln(a.out, "已取消导入")
					return nil
				}
			}

			result, err := wf.Confirm(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprint(a.out, renderImportResult(result))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Import without asking for confirmation")
	return cmd
}
