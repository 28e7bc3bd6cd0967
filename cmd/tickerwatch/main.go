// tickerwatch captures Binance market streams into date-rotated jsonl
// files, one directory per symbol. With -book it also maintains live order
// books from the differential depth feed, resynchronizing through REST
// snapshots whenever the update sequence gaps.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/quantarc/binance-gateway/pkg/binance"
	"github.com/quantarc/binance-gateway/pkg/binance/stream"
)

var (
	symbolsFlag  = flag.String("symbols", "BTCUSDT", "comma-separated symbols to watch")
	outDir       = flag.String("out-dir", "data/stream", "output root directory")
	streamURL    = flag.String("url", binance.DefaultStreamURL, "market stream endpoint")
	trackBooks   = flag.Bool("book", false, "maintain live order books from the depth feed")
	bookInterval = flag.Duration("book-interval", 15*time.Second, "top-of-book log cadence")
	depthLimit   = flag.Int("depth-limit", 1000, "snapshot rows per side for book sync")
)

// captureLine is one jsonl record from the mini ticker feed. Prices stay
// strings so nothing is rounded on the way to disk.
type captureLine struct {
	Time        string `json:"time"`
	Timestamp   int64  `json:"timestamp"`
	Symbol      string `json:"symbol"`
	Open        string `json:"open"`
	High        string `json:"high"`
	Low         string `json:"low"`
	Close       string `json:"close"`
	Volume      string `json:"volume"`
	QuoteVolume string `json:"quote_volume"`
}

// dateWriter appends lines to <root>/<date>.jsonl, rotating when the UTC
// date changes. Files are opened append-mode so restarts never clobber a
// day already on disk.
type dateWriter struct {
	root        string
	currentDate string
	currentFile *os.File
}

func newDateWriter(root string) (*dateWriter, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &dateWriter{root: root}, nil
}

func (w *dateWriter) write(date string, line []byte) error {
	if err := w.rotate(date); err != nil {
		return err
	}
	_, err := w.currentFile.Write(append(line, '\n'))
	return err
}

func (w *dateWriter) rotate(date string) error {
	if date == w.currentDate && w.currentFile != nil {
		return nil
	}
	if err := w.close(); err != nil {
		return err
	}
	path := filepath.Join(w.root, date+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	w.currentFile = f
	w.currentDate = date
	return nil
}

func (w *dateWriter) close() error {
	if w == nil || w.currentFile == nil {
		return nil
	}
	if err := w.currentFile.Sync(); err != nil {
		_ = w.currentFile.Close()
		w.currentFile = nil
		return err
	}
	err := w.currentFile.Close()
	w.currentFile = nil
	return err
}

type watcher struct {
	writers map[string]*dateWriter
	books   map[string]*stream.Book
	rest    *binance.Client
	limit   int
	records int
}

func main() {
	flag.Parse()
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	symbols := parseSymbols(*symbolsFlag)
	if len(symbols) == 0 {
		log.Fatal("[WATCH] at least one symbol is required")
	}

	w := &watcher{
		writers: make(map[string]*dateWriter, len(symbols)),
		books:   make(map[string]*stream.Book),
		limit:   *depthLimit,
	}

	names := make([]string, 0, len(symbols)*2)
	for _, sym := range symbols {
		writer, err := newDateWriter(filepath.Join(*outDir, sym))
		if err != nil {
			log.Fatalf("[WATCH] open output for %s: %v", sym, err)
		}
		w.writers[sym] = writer
		names = append(names, stream.MiniTickerStream(sym))
		if *trackBooks {
			w.books[sym] = stream.NewBook(sym)
			names = append(names, stream.DepthStreamFast(sym))
		}
	}
	if *trackBooks {
		// Snapshots come from the public REST depth endpoint; no
		// credentials are needed.
		w.rest = binance.NewClient("", "")
	}

	client := stream.NewClient(stream.DefaultConfig(*streamURL), stream.Handlers{
		OnConnect:    func() { log.Println("[STREAM] connected") },
		OnDisconnect: func(err error) { log.Printf("[STREAM] disconnected: %v", err) },
		OnError:      func(err error) { log.Printf("[STREAM] error: %v", err) },
		OnStateChange: func(old, new stream.State) {
			log.Printf("[STREAM] %s -> %s", old, new)
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		log.Fatalf("[STREAM] connect: %v", err)
	}
	sub, err := client.Subscribe(names...)
	if err != nil {
		log.Fatalf("[STREAM] subscribe: %v", err)
	}
	log.Printf("[WATCH] watching %s (books=%v)", strings.Join(symbols, ","), *trackBooks)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	bookTick := time.NewTicker(*bookInterval)
	defer bookTick.Stop()

	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				log.Println("[WATCH] subscription closed")
				return
			}
			w.handleEvent(ctx, ev)

		case <-bookTick.C:
			w.logBooks()

		case <-sigCh:
			log.Println("[WATCH] shutting down")
			sub.Close()
			if err := client.Close(); err != nil {
				log.Printf("[STREAM] close: %v", err)
			}
			for sym, writer := range w.writers {
				if err := writer.close(); err != nil {
					log.Printf("[WATCH] close %s writer: %v", sym, err)
				}
			}
			log.Printf("[WATCH] done, %d records captured", w.records)
			return
		}
	}
}

func (w *watcher) handleEvent(ctx context.Context, ev stream.Event) {
	switch stream.EventType(ev.Data) {
	case "24hrMiniTicker":
		ticker, err := stream.DecodeMiniTicker(ev.Data)
		if err != nil {
			log.Printf("[WATCH] bad ticker event: %v", err)
			return
		}
		w.capture(ticker)

	case "depthUpdate":
		update, err := stream.DecodeDepthUpdate(ev.Data)
		if err != nil {
			log.Printf("[WATCH] bad depth event: %v", err)
			return
		}
		w.applyDepth(ctx, update)
	}
}

func (w *watcher) capture(t *stream.MiniTicker) {
	symbol := strings.ToUpper(t.Symbol)
	writer := w.writers[symbol]
	if writer == nil {
		return
	}

	ts := time.UnixMilli(t.EventTime).UTC()
	line := captureLine{
		Time:        ts.Format(time.RFC3339),
		Timestamp:   t.EventTime,
		Symbol:      symbol,
		Open:        t.Open.String(),
		High:        t.High.String(),
		Low:         t.Low.String(),
		Close:       t.Close.String(),
		Volume:      t.BaseVolume.String(),
		QuoteVolume: t.QuoteVolume.String(),
	}
	encoded, err := json.Marshal(line)
	if err != nil {
		log.Printf("[WATCH] encode %s: %v", symbol, err)
		return
	}
	if err := writer.write(ts.Format("2006-01-02"), encoded); err != nil {
		log.Printf("[WATCH] write %s: %v", symbol, err)
		return
	}
	w.records++
	if w.records%1000 == 0 {
		log.Printf("[WATCH] progress: records=%d", w.records)
	}
}

func (w *watcher) applyDepth(ctx context.Context, u *stream.DepthUpdate) {
	symbol := strings.ToUpper(u.Symbol)
	book := w.books[symbol]
	if book == nil {
		return
	}

	if err := book.ApplyUpdate(u); errors.Is(err, stream.ErrBookOutOfSync) {
		log.Printf("[BOOK] %s sequence gap, resyncing", symbol)
	}
	if !book.Synced() {
		w.syncBook(ctx, symbol, book)
	}
}

// syncBook fetches a REST snapshot and replays the buffered updates over
// it. Failures are logged and retried on the next depth event.
func (w *watcher) syncBook(ctx context.Context, symbol string, book *stream.Book) {
	depth, err := w.rest.Depth(ctx, symbol, w.limit)
	if err != nil {
		log.Printf("[BOOK] %s snapshot failed: %v", symbol, err)
		return
	}
	if err := book.ApplySnapshot(depth); err != nil {
		log.Printf("[BOOK] %s snapshot rejected: %v", symbol, err)
		return
	}
	log.Printf("[BOOK] %s synced at update %d", symbol, book.LastUpdateID())
}

func (w *watcher) logBooks() {
	for symbol, book := range w.books {
		if !book.Synced() {
			log.Printf("[BOOK] %s syncing...", symbol)
			continue
		}
		bid, _ := book.BestBid()
		ask, _ := book.BestAsk()
		bids, asks := book.Depths()
		log.Printf("[BOOK] %s bid=%s ask=%s spread=%s levels=%d/%d",
			symbol, bid, ask, book.Spread(), bids, asks)
	}
}

func parseSymbols(raw string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, part := range strings.Split(raw, ",") {
		sym := strings.ToUpper(strings.TrimSpace(part))
		if sym == "" {
			continue
		}
		if _, dup := seen[sym]; dup {
			continue
		}
		seen[sym] = struct{}{}
		out = append(out, sym)
	}
	return out
}
