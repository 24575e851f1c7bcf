package main

import (
	"easy-chat/domain"
	"easy-chat/repositories"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
)

const messagePrefix = "msg:"

func main() {
	dbPath := flag.String("db", "./data/badger", "Path to badger DB")
	author := flag.String("author", "", "Only show events from this username")
	limit := flag.Int("limit", 0, "Maximum number of rows, 0 for all")
	flag.Parse()

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	messages, err := scan(db, *author, *limit)
	if err != nil {
		log.Fatal(err)
	}
	render(os.Stdout, messages)
}

// scan walks the archive oldest first.
func scan(db *badger.DB, author string, limit int) ([]repositories.ArchivedMessage, error) {
	var messages []repositories.ArchivedMessage
	err := db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(messagePrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(messages) == limit {
				break
			}
			item := it.Item()
			err := item.Value(func(v []byte) error {
				var m repositories.ArchivedMessage
				if err := json.Unmarshal(v, &m); err != nil {
					fmt.Printf("Error unmarshaling key %s: %v\n", string(item.Key()), err)
					return nil
				}
				if author != "" && m.Username != author {
					return nil
				}
				messages = append(messages, m)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return messages, err
}

func render(w io.Writer, messages []repositories.ArchivedMessage) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Time", "Kind", "ID", "Username", "Lang", "Content"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	for _, m := range messages {
		displayID := m.ID.String()
		if len(displayID) > 8 {
			displayID = displayID[:8]
		}
		table.Append([]string{
			m.At.Format("2006-01-02 15:04:05"),
			colorKind(m.Kind),
			displayID,
			m.Username,
			m.Lang,
			m.Content,
		})
	}
	table.Render()
	fmt.Fprintf(w, "\n%d event(s)\n", len(messages))
}

func colorKind(kind domain.Kind) string {
	switch kind {
	case domain.KindJoin:
		return color.New(color.FgGreen).Render(string(kind))
	case domain.KindLeave:
		return color.New(color.FgYellow).Render(string(kind))
	default:
		return color.New(color.FgCyan).Render(string(kind))
	}
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true)

	db, err := badger.Open(opts)
	if err != nil {
		if strings.Contains(err.Error(), "Log truncate required") {
			return nil, fmt.Errorf("archive needs recovery, start the server once: %w", err)
		}
		return nil, err
	}
	return db, nil
}
