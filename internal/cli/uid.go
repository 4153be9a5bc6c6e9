package cli

import (
	"time"

	"github.com/spf13/cobra"

	"quicknotes/internal/notestore"
)

type idOut struct {
	ID string `json:"id"`
}

func (o idOut) Text() string { return o.ID }

func newUIDCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "uid",
		Short: "Print a fresh note id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeOut(cmd, app, idOut{ID: notestore.NewID(time.Now())})
		},
	}
}
