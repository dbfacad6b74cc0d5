package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"statharvest/internal/docstore"
	"statharvest/lib/util/serviceutil"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var storeFlag string

func openStore(cmd *cobra.Command) docstore.Store {
	cfg := env.cfg.Store
	if cmd.Flags().Changed("store") {
		cfg.File = storeFlag
		cfg.Url = ""
	}
	store, err := docstore.Open(cmd.Context(), cfg, env.tel, env.clock)
	if err != nil {
		serviceutil.Fatal("failed to open document store", err)
	}
	return store
}

var docstoreCmd = &cobra.Command{
	Use:   "docstore",
	Short: "Insert, fetch and list JSON documents.",
}

var docstoreInsertCmd = &cobra.Command{
	Use:   "insert <collection> <json|->",
	Short: "Insert a JSON document, '-' reads it from stdin.",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		body := []byte(args[1])
		if args[1] == "-" {
			var err error
			body, err = io.ReadAll(os.Stdin)
			if err != nil {
				serviceutil.Fatal("failed to read stdin", err)
			}
		}
		if !json.Valid(body) {
			serviceutil.Fatal("invalid document", fmt.Errorf("not valid JSON"))
		}

		store := openStore(cmd)
		defer store.Close()
		id, err := store.Insert(cmd.Context(), args[0], json.RawMessage(body))
		if err != nil {
			serviceutil.Fatal("failed to insert document", err)
		}
		fmt.Println(id)
	},
}

var docstoreGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Print a document.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		store := openStore(cmd)
		defer store.Close()
		doc, err := store.Get(cmd.Context(), args[0])
		if errors.Is(err, docstore.ErrNotFound) {
			fmt.Fprintf(os.Stderr, "no document with id %s\n", args[0])
			os.Exit(1)
		}
		if err != nil {
			serviceutil.Fatal("failed to get document", err)
		}
		fmt.Println(string(doc.Body))
	},
}

var docstoreListCmd = &cobra.Command{
	Use:   "list [collection]",
	Short: "List documents, newest first.",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		limit, _ := cmd.Flags().GetInt("limit")
		collection := ""
		if len(args) > 0 {
			collection = args[0]
		}

		store := openStore(cmd)
		defer store.Close()
		docs, err := store.List(cmd.Context(), collection, limit)
		if err != nil {
			serviceutil.Fatal("failed to list documents", err)
		}

		t := newTable()
		t.AppendHeader(table.Row{"ID", "Collection", "Created", "Size"})
		for _, doc := range docs {
			t.AppendRow(table.Row{
				doc.ID,
				doc.Collection,
				humanize.Time(doc.CreatedAt),
				humanize.Bytes(uint64(len(doc.Body))),
			})
		}
		t.Render()
	},
}

func init() {
	docstoreCmd.PersistentFlags().StringVar(&storeFlag, "store", "", "sqlite file to use instead of the configured store.")
	docstoreListCmd.Flags().Int("limit", 20, "Most documents to list, 0 lists all.")

	docstoreCmd.AddCommand(docstoreInsertCmd, docstoreGetCmd, docstoreListCmd)
	rootCmd.AddCommand(docstoreCmd)
}
