package main

import (
	"fmt"
	"strconv"
	"strings"

	"netlynx/internal/config"
	"netlynx/internal/ingestion"
	"netlynx/internal/netlog"
	"netlynx/internal/tracker"
	"netlynx/internal/views"

	"github.com/dustin/go-humanize"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

type dumpFlags struct {
	sourceType string
	search     string
	errorsOnly bool
	activeOnly bool
	textID     int64
	status     bool
}

func newDumpCmd() *cobra.Command {
	var f dumpFlags
	cmd := &cobra.Command{
		Use:   "dump <export.json>",
		Short: "Print the classified sources of a NetLog export",
		Long: `Dump classifies a complete NetLog export in memory and prints one row per
source. Nothing is written to the database.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			loader := ingestion.NewLoader(nil, trackerConfig(cfg), cfg.Performance.BatchSize, logger)
			result, err := loader.LoadFile(args[0], captureName(args[0]))
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("text") {
				text, ok := result.Tracker.Text(f.textID)
				if !ok {
					return fmt.Errorf("source %d not found", f.textID)
				}
				fmt.Print(text)
				return nil
			}

			filter := tracker.Filter{
				SourceType: netlog.SourceType(f.sourceType),
				Search:     f.search,
			}
			if f.errorsOnly {
				filter.Error = &f.errorsOnly
			}
			if f.activeOnly {
				filter.Active = &f.activeOnly
			}
			if err := printSummaries(result.Summaries(filter), cfg.Tracker.NumericDate); err != nil {
				return err
			}

			if f.status {
				cv := &views.CaptureViews{
					Proxy:     views.NewProxyView(result.Clock()),
					HTTPCache: views.NewHTTPCacheView(),
				}
				cv.Load(result.Export.PolledData)
				cv.Proxy.Attach(result.Tracker)
				printStatus(cv)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&f.sourceType, "type", "", "Only sources of this type, e.g. URL_REQUEST")
	cmd.Flags().StringVar(&f.search, "search", "", "Only sources whose description contains this text")
	cmd.Flags().BoolVar(&f.errorsOnly, "errors", false, "Only sources that ended in error")
	cmd.Flags().BoolVar(&f.activeOnly, "active", false, "Only sources still active at the end of the capture")
	cmd.Flags().Int64Var(&f.textID, "text", 0, "Print the events of one source as text instead of the table")
	cmd.Flags().BoolVar(&f.status, "status", false, "Also print the proxy and HTTP cache status")
	return cmd
}

func trackerConfig(cfg *config.Config) tracker.Config {
	return tracker.Config{
		MaxSources:       cfg.Tracker.MaxSources,
		PrivacyStripping: cfg.Tracker.PrivacyStripping,
		NumericDate:      cfg.Tracker.NumericDate,
	}
}

func printSummaries(summaries []tracker.Summary, numericDate bool) error {
	data := pterm.TableData{{"ID", "Type", "Description", "Start", "Duration", "Events", "State"}}
	errCount := 0
	for _, s := range summaries {
		state := "done"
		if !s.IsInactive {
			state = "active"
		}
		if s.IsError {
			state = pterm.Red("error")
			errCount++
		}
		start := s.StartTime.Format("2006-01-02 15:04:05.000")
		if numericDate {
			start = strconv.FormatInt(s.StartTime.UnixMilli(), 10)
		}
		data = append(data, []string{
			strconv.FormatInt(s.SourceID, 10),
			string(s.SourceType),
			truncate(s.Description, 80),
			start,
			fmt.Sprintf("%s ms", humanize.Comma(s.DurationMs)),
			humanize.Comma(int64(s.EventCount)),
			state,
		})
	}

	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		return err
	}
	pterm.Info.Printfln("%s sources, %s with errors",
		humanize.Comma(int64(len(summaries))), humanize.Comma(int64(errCount)))
	return nil
}

func printStatus(cv *views.CaptureViews) {
	snap := cv.Proxy.Snapshot()
	pterm.DefaultSection.Println("Proxy")
	pterm.Println(pterm.Bold.Sprint("Original settings"))
	pterm.Println(snap.Original)
	pterm.Println(pterm.Bold.Sprint("Effective settings"))
	pterm.Println(snap.Effective)
	for _, bp := range snap.BadProxies {
		pterm.Printfln("Bad proxy %s until %s", bp.ProxyURI, bp.BadUntil.Format("2006-01-02 15:04:05"))
	}
	if snap.ResolverSourceID != 0 {
		pterm.Println(pterm.Bold.Sprintf("Proxy resolver (source %d)", snap.ResolverSourceID))
		pterm.Println(snap.ResolverLog)
	}

	pterm.DefaultSection.Println("HTTP cache")
	pterm.Println(strings.Join(cv.HTTPCache.Lines(), "\n"))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
