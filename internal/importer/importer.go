package importer

import (
	"context"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	cserrors "github.com/Aman-CERP/chatsearch/internal/errors"
)

// Adder indexes one message. *search.Service and *daemon.Client implement it.
type Adder interface {
	AddDocument(ctx context.Context, channelID, messageID int64, text, author string, ts time.Time) error
}

// Progress is reported after every added message.
type Progress struct {
	Files  int
	Done   int
	Failed int
	Total  int
}

// Fraction returns the completed share in [0, 1].
func (p Progress) Fraction() float64 {
	if p.Total == 0 {
		return 1
	}
	return float64(p.Done) / float64(p.Total)
}

// Summary describes a finished import.
type Summary struct {
	Files    int
	Messages int
	Failed   int
	Duration time.Duration
}

// Options configures an Importer.
type Options struct {
	// Workers bounds how many export files are parsed at once. Default 8.
	Workers int

	// Location is used for export dates without a UTC offset.
	Location *time.Location

	// OnProgress, when set, is called after every added message.
	OnProgress func(Progress)
}

// Importer feeds export files into an Adder.
type Importer struct {
	adder Adder
	opts  Options
}

// New creates an Importer.
func New(adder Adder, opts Options) *Importer {
	if opts.Workers <= 0 {
		opts.Workers = 8
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &Importer{adder: adder, opts: opts}
}

// ImportDir imports every export page in dir into channelID. Individual
// add failures are counted, not fatal.
func (im *Importer) ImportDir(ctx context.Context, channelID int64, dir string) (Summary, error) {
	start := time.Now()

	files, err := FindExportFiles(dir)
	if err != nil {
		return Summary{}, cserrors.New(cserrors.ErrCodeExportRead, "cannot read export directory", err).
			WithDetail("dir", dir)
	}
	if len(files) == 0 {
		return Summary{}, cserrors.New(cserrors.ErrCodeExportRead, "no messages*.html files found", nil).
			WithDetail("dir", dir).
			WithSuggestion("Export the chat from Telegram Desktop as HTML")
	}

	// Parse everything first so progress has a total.
	pages := make([][]Message, len(files))
	pg, pctx := errgroup.WithContext(ctx)
	pg.SetLimit(im.opts.Workers)
	for i, path := range files {
		pg.Go(func() error {
			if err := pctx.Err(); err != nil {
				return err
			}
			msgs, err := im.parseFile(path)
			if err != nil {
				return err
			}
			pages[i] = msgs
			return nil
		})
	}
	if err := pg.Wait(); err != nil {
		return Summary{}, err
	}
	var all []Message
	for _, msgs := range pages {
		all = append(all, msgs...)
	}

	slog.Info("import_started",
		slog.Int64("channel_id", channelID),
		slog.Int("files", len(files)),
		slog.Int("messages", len(all)))

	// Messages are added one at a time in export order: the store breaks
	// timestamp ties by insertion order.
	progress := Progress{Files: len(files), Total: len(all)}
	for _, m := range all {
		if err := ctx.Err(); err != nil {
			return Summary{}, err
		}
		if err := im.adder.AddDocument(ctx, channelID, m.ID, m.Text, m.Author, m.Timestamp); err != nil {
			if ctx.Err() != nil {
				return Summary{}, ctx.Err()
			}
			progress.Failed++
			slog.Warn("import_add_failed", append([]any{slog.Int64("message_id", m.ID)}, cserrors.LogAttrs(err)...)...)
		}
		progress.Done++
		if im.opts.OnProgress != nil {
			im.opts.OnProgress(progress)
		}
	}

	summary := Summary{
		Files:    len(files),
		Messages: len(all),
		Failed:   progress.Failed,
		Duration: time.Since(start),
	}
	slog.Info("import_completed",
		slog.Int("messages", summary.Messages),
		slog.Int("failed", summary.Failed),
		slog.Duration("duration", summary.Duration))
	return summary, nil
}

func (im *Importer) parseFile(path string) ([]Message, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, cserrors.New(cserrors.ErrCodeExportRead, "cannot open export file", err).WithDetail("file", path)
	}
	defer f.Close()

	msgs, err := Parse(f, im.opts.Location)
	if err != nil {
		return nil, cserrors.New(cserrors.ErrCodeExportRead, "cannot parse export file", err).WithDetail("file", path)
	}
	return msgs, nil
}
