// Command tfctl is a dev CLI for tweetfilter maintenance and debugging tasks.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/pkg/browser"

	"github.com/obsxrver/tweetfilter/internal/blacklist"
	browseropts "github.com/obsxrver/tweetfilter/internal/browser"
	"github.com/obsxrver/tweetfilter/internal/cache"
	"github.com/obsxrver/tweetfilter/internal/config"
	"github.com/obsxrver/tweetfilter/internal/storage"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "cache":
		if len(os.Args) < 3 {
			fmt.Println("Usage: tfctl cache <stats|cleanup|clear>")
			os.Exit(1)
		}
		runCache(os.Args[2])
	case "blacklist":
		if len(os.Args) < 3 {
			fmt.Println("Usage: tfctl blacklist <list|add|remove> [handle]")
			os.Exit(1)
		}
		runBlacklist(os.Args[2], os.Args[3:])
	case "bot-test":
		runBotTest()
	case "open":
		if len(os.Args) < 3 {
			fmt.Println("Usage: tfctl open <config|data>")
			os.Exit(1)
		}
		runOpen(os.Args[2])
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: tfctl <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  cache stats        Show rating cache statistics")
	fmt.Println("  cache cleanup      Remove incomplete and invalid cache entries")
	fmt.Println("  cache clear        Delete all cached ratings")
	fmt.Println("  blacklist list     Show blacklisted handles")
	fmt.Println("  blacklist add      Add a handle to the blacklist")
	fmt.Println("  blacklist remove   Remove a handle from the blacklist")
	fmt.Println("  bot-test           Open bot.sannysoft.com to audit browser fingerprint")
	fmt.Println("  open config        Open config file in default editor")
	fmt.Println("  open data          Open data directory in file explorer")
}

func loadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		cfg = config.Default()
	}
	return cfg
}

func openKV(cfg *config.Config) storage.KV {
	dbPath, err := cfg.DBPath()
	if err != nil {
		log.Fatalf("Failed to resolve database path: %v", err)
	}

	kv, err := storage.NewSQLite(dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	return kv
}

func runCache(action string) {
	cfg := loadConfig()
	c := cache.New(openKV(cfg), time.Duration(cfg.Cache.DebounceMs)*time.Millisecond)

	switch action {
	case "stats":
		fmt.Printf("Cached ratings: %d\n", c.Size())
	case "cleanup":
		stats := c.Cleanup()
		c.Flush()
		fmt.Printf("Removed %d streaming-incomplete and %d invalid entries (%d remain)\n",
			stats.StreamingIncomplete, stats.InvalidScore, c.Size())
	case "clear":
		n := c.Size()
		c.Clear()
		fmt.Printf("Cleared %d cached ratings\n", n)
	default:
		fmt.Printf("Unknown cache action: %s\n", action)
		os.Exit(1)
	}
}

func runBlacklist(action string, args []string) {
	handles := blacklist.Load(openKV(loadConfig()))

	switch action {
	case "list":
		fmt.Printf("Blacklisted handles: %d\n", handles.Size())
		for _, h := range handles.All() {
			fmt.Printf("  @%s\n", h)
		}
	case "add":
		if len(args) < 1 {
			fmt.Println("Usage: tfctl blacklist add <handle>")
			os.Exit(1)
		}
		handles.Add(args[0])
		fmt.Printf("Added @%s\n", args[0])
	case "remove":
		if len(args) < 1 {
			fmt.Println("Usage: tfctl blacklist remove <handle>")
			os.Exit(1)
		}
		handles.Remove(args[0])
		fmt.Printf("Removed @%s\n", args[0])
	default:
		fmt.Printf("Unknown blacklist action: %s\n", action)
		os.Exit(1)
	}
}

func runBotTest() {
	log.Println("Opening bot.sannysoft.com with stealth browser options...")

	opts := browseropts.Options(false) // non-headless so you can see it

	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
	defer cancel()

	ctx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	go func() {
		err := chromedp.Run(ctx,
			chromedp.Navigate("https://bot.sannysoft.com"),
		)
		if err != nil {
			log.Printf("Failed to navigate: %v", err)
		}
	}()

	fmt.Println("Press Enter to end program...")
	fmt.Scanln()

	log.Println("Done.")
}

func runOpen(target string) {
	var path string
	var err error

	switch target {
	case "config":
		path, err = config.ConfigPath()
	case "data":
		path, err = config.DataDir()
	default:
		fmt.Printf("Unknown target: %s\n", target)
		os.Exit(1)
	}

	if err != nil {
		log.Fatalf("Failed to get path: %v", err)
	}

	if err := browser.OpenFile(path); err != nil {
		log.Fatalf("Failed to open: %v", err)
	}
}
