package main

import (
	stderrors "errors"
	"fmt"
	"os"
	"os/signal"
	"os/user"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/c360/blockflow/errors"
	"github.com/c360/blockflow/program"
	"github.com/c360/blockflow/programstore"
)

func newImportCmd(a *app) *cobra.Command {
	var (
		id, name, description string
		update                bool
	)

	cmd := &cobra.Command{
		Use:   "import <program.json>",
		Short: "Store a program document in the program store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			prog, err := readProgramFile(path, a.logger)
			if err != nil {
				return err
			}
			if id == "" {
				id = programName(path, false)
			}
			if name == "" {
				name = id
			}

			doc, err := programstore.NewDocument(id, name, prog)
			if err != nil {
				return err
			}
			doc.Description = description
			doc.CreatedBy = currentUser()

			store, closeFn, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			err = store.Create(cmd.Context(), doc)
			if stderrors.Is(err, programstore.ErrExists) && update {
				existing, getErr := store.Get(cmd.Context(), id)
				if getErr != nil {
					return getErr
				}
				existing.Name = doc.Name
				existing.Program = doc.Program
				if description != "" {
					existing.Description = description
				}
				err = store.Update(cmd.Context(), existing)
				doc = existing
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(a.out, "%s %s version %d\n", color.GreenString("stored"), doc.ID, doc.Version)
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "document id (default: file name without extension)")
	cmd.Flags().StringVar(&name, "name", "", "display name (default: id)")
	cmd.Flags().StringVar(&description, "description", "", "free text description")
	cmd.Flags().BoolVar(&update, "update", false, "replace the program when the id already exists")
	return cmd
}

func newExportCmd(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Write a stored program as a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeFn, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			doc, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			prog, err := doc.Load(program.WithLogger(a.logger))
			if err != nil {
				return err
			}
			data, err := program.Marshal(prog)
			if err != nil {
				return err
			}
			data = append(data, '\n')

			if output == "" || output == "-" {
				_, err = a.out.Write(data)
				return err
			}
			if err := os.WriteFile(output, data, 0644); err != nil {
				return errors.WrapInvalid(err, "blockflow", "export", "write "+output)
			}
			a.logger.Info("program exported", "id", doc.ID, "version", doc.Version, "path", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: stdout)")
	return cmd
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored programs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, closeFn, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			docs, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			printDocuments(a, docs)
			return nil
		},
	}
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a stored program",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeFn, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			if err := store.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s %s\n", color.RedString("deleted"), args[0])
			return nil
		},
	}
}

func newWatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print program changes as they are stored, until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			store, closeFn, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			changes, err := store.Watch(ctx)
			if err != nil {
				return err
			}
			printChanges(a, changes)
			return nil
		},
	}
}

// printChanges writes one line per change until the feed closes
func printChanges(a *app, changes <-chan programstore.Change) {
	for c := range changes {
		if c.Deleted {
			fmt.Fprintf(a.out, "%s %s\n", color.RedString("deleted"), c.ID)
			continue
		}
		fmt.Fprintf(a.out, "%s %s version %d (%s)\n",
			color.GreenString("updated"), c.ID, c.Document.Version, c.Document.Name)
	}
}

func printDocuments(a *app, docs []*programstore.Document) {
	if len(docs) == 0 {
		fmt.Fprintln(a.out, "no programs stored")
		return
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tVERSION\tUPDATED\tBY")
	for _, d := range docs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			d.ID, d.Name, d.Version, d.UpdatedAt.Local().Format(time.DateTime), d.CreatedBy)
	}
	_ = tw.Flush()
}

func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return filepath.Base(strings.ReplaceAll(u.Username, `\`, "/"))
	}
	return os.Getenv("USER")
}
