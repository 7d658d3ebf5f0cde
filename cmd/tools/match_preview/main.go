package main

import (
	"context"
	"flag"
	"log"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/The-culture-connection/rfpueen/internal/db"
	"github.com/The-culture-connection/rfpueen/internal/match"
	"github.com/The-culture-connection/rfpueen/internal/models"
)

// splitList turns a comma-separated flag into a trimmed slice.
func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func main() {
	fundingTypes := flag.String("types", "Grants", "comma-separated funding types")
	interestsMain := flag.String("main", "", "comma-separated main interests")
	interestsSub := flag.String("sub", "", "comma-separated sub interests")
	userID := flag.String("user", "", "user id for applied/saved filtering")
	flag.Parse()

	ctx := context.Background()
	pool, err := db.Connect(ctx)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	collections, err := match.LoadCollectionMap("")
	if err != nil {
		log.Fatal(err)
	}

	store := db.NewStore(pool)
	engine := match.NewEngine(store, store, collections)

	profile := models.Profile{
		FundingTypes:  splitList(*fundingTypes),
		InterestsMain: splitList(*interestsMain),
		InterestsSub:  splitList(*interestsSub),
	}

	resp, err := engine.FindMatches(ctx, profile, *userID)
	if err != nil {
		log.Fatalf("Match failed: %v", err)
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"#", "Score", "Win%", "Urgency", "Collection", "Title"})

	for i, m := range resp.Opportunities {
		title := m.Title
		if len(title) > 60 {
			title = title[:57] + "..."
		}
		t.AppendRow(table.Row{i + 1, m.Score, m.WinRate, m.UrgencyBucket, m.Collection, title})
	}
	t.AppendFooter(table.Row{"", "", "", "", "Total", resp.Total})
	t.Render()
}
