// Command scexec runs blocks of executable content from a YAML document
// against a fresh session and prints what they logged and the events they
// left on the queues.
//
// Usage:
//
//	scexec -doc chart.yaml [-block onentry] [-interactive] [-wait 2s]
//
// Configuration is read from the environment (LOG_LEVEL, SCXML_DATAMODEL,
// SCXML_DISPATCH_WORKERS, OTEL_ENABLED and friends). The exit code is 2 when
// any action failed.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/amp-labs/statechart/cli"
	"github.com/amp-labs/statechart/config"
	"github.com/amp-labs/statechart/dispatch"
	"github.com/amp-labs/statechart/document"
	"github.com/amp-labs/statechart/model"
	"github.com/amp-labs/statechart/script"
	"github.com/amp-labs/statechart/session"
	"github.com/amp-labs/statechart/sink"
)

const exitActionFailed = 2

var (
	docPath     = flag.String("doc", "", "path to the YAML document")
	blockName   = flag.String("block", "", "block to run (default: every block in name order)")
	interactive = flag.Bool("interactive", false, "choose the blocks to run interactively")
	wait        = flag.Duration("wait", 0, "how long to wait for delayed sends before reporting")
)

func main() {
	script.New("scexec").Run(run)
}

func run(ctx context.Context, cfg config.Config) error {
	if *docPath == "" {
		return script.ExitWithErrorMessage("-doc is required")
	}

	doc, err := document.Load(*docPath)
	if err != nil {
		return script.ExitWithError(err)
	}

	if doc.Datamodel == "" {
		doc.Datamodel = cfg.Datamodel
	}

	blocks, err := doc.Compile(model.NewActionFactory())
	if err != nil {
		return script.ExitWithError(err)
	}

	names, err := chooseBlocks(doc)
	if err != nil {
		return script.ExitWithError(err)
	}

	mem := sink.NewMemory()

	s, err := doc.Start(ctx,
		session.WithSink(sink.Multi{mem, sink.NewSlog(slog.LevelDebug)}),
		session.WithDispatchOptions(
			dispatch.WithWorkers(cfg.DispatchWorkers),
			dispatch.WithHTTPTimeout(cfg.HTTPTimeout),
			dispatch.WithDNSRefresh(cfg.DNSRefresh),
		))
	if s == nil {
		return script.ExitWithError(err)
	}

	defer func() {
		_ = s.Close(context.WithoutCancel(ctx))
	}()

	title := doc.Name
	if title == "" {
		title = *docPath
	}

	fmt.Fprint(os.Stdout, cli.BannerAutoWidth(fmt.Sprintf("%s\n%s datamodel, session %s", title, doc.Datamodel, s.SessionID()), cli.AlignCenter))
	fmt.Fprintln(os.Stdout)

	if err != nil {
		fmt.Fprintf(os.Stdout, "global script failed: %v\n", err)
	}

	for _, name := range names {
		mem.Reset()

		_ = s.Execute(ctx, blocks[name])

		if *wait > 0 {
			settle(ctx, s, *wait)
		}

		fmt.Fprint(os.Stdout, cli.DividerAutoWidth())
		fmt.Fprintf(os.Stdout, "block %s\n", name)
		fmt.Fprint(os.Stdout, cli.Report(mem.Entries(), s.Internal().Drain(), s.External().Drain()))
	}

	if s.ErrorCount() > 0 {
		return script.Exit(exitActionFailed)
	}

	return nil
}

// chooseBlocks resolves which blocks to run from the flags.
func chooseBlocks(doc *document.Document) ([]string, error) {
	switch {
	case *blockName != "":
		if _, ok := doc.Blocks[*blockName]; !ok {
			return nil, fmt.Errorf("%w: %q", document.ErrUnknownBlock, *blockName)
		}

		return []string{*blockName}, nil
	case *interactive:
		return cli.NewPrompter().MultiSelect("Blocks to run", doc.BlockNames()...)
	default:
		return doc.BlockNames(), nil
	}
}

// settle waits until no delayed send is pending or the timeout passes.
func settle(ctx context.Context, s *session.Session, timeout time.Duration) {
	d, ok := s.Dispatcher().(*dispatch.Dispatcher)
	if !ok {
		return
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	tick := time.NewTicker(10 * time.Millisecond) //nolint:mnd
	defer tick.Stop()

	for d.Pending() > 0 {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			return
		case <-tick.C:
		}
	}
}
