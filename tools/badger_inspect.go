package main

import (
	"chat-relay/domain"
	"chat-relay/repositories"
	"flag"
	"log"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/database"
	"github.com/olekukonko/tablewriter"
)

func main() {
	dbPath := flag.String("db", database.DefaultPath, "Path to badger DB")
	room := flag.String("room", string(domain.GlobalRoom), "Room to list, newest first")
	pageSize := flag.Int("page", 50, "Messages read per page")
	pages := flag.Int("pages", 1, "Number of pages to print")
	flag.Parse()

	db, err := badger.Open(badger.DefaultOptions(*dbPath).
		WithReadOnly(true).
		WithLoggingLevel(badger.ERROR))
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Time", "ID", "Sender", "Lang", "Content"})
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

	repository := repositories.NewMessageRepository(db, slog.Default(), pageSize)
	var cursor *string
	for page := 0; page < *pages; page++ {
		messages, next, err := repository.GetMessages(domain.RoomName(*room), cursor)
		if err != nil {
			log.Fatal(err)
		}
		for _, m := range messages {
			// First 8 characters of the id are enough to tell messages apart
			table.Append([]string{
				m.At.Format("2006-01-02 15:04:05"),
				m.ID.String()[:8],
				m.Author + " (" + m.SenderID + ")",
				m.Lang,
				m.Content,
			})
		}
		if next == nil {
			break
		}
		cursor = next
	}

	table.Render()
}
