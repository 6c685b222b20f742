// Command routeinfo builds a small mixing session and prints how every route
// negotiated its processor chain and compensated latency.
//
// Usage:
//
//	routeinfo [flags]
//
// Each track gets an outboard insert with the latency taken from -latency.
// Tracks feed the master; with -aux they also feed an effect bus through
// aux sends.
//
// Examples:
//
//	routeinfo
//	routeinfo -tracks 3 -latency 0,256,1024
//	routeinfo -aux -monitor -strict
//	routeinfo -latency 64 -xml
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/cwbudde/algo-mixer/dsp/chans"
	"github.com/cwbudde/algo-mixer/mixer/processor"
	"github.com/cwbudde/algo-mixer/mixer/route"
	"github.com/cwbudde/algo-mixer/mixer/session"
	"github.com/cwbudde/algo-mixer/mixer/state"
)

type options struct {
	tracks   int
	latency  []int
	aux      bool
	monitor  bool
	strict   bool
	rate     float64
	block    int
	printXML bool
}

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("routeinfo", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var o options
	latency := fs.String("latency", "0,128", "comma separated outboard latency in samples, one per track")
	fs.IntVar(&o.tracks, "tracks", 2, "number of mono tracks")
	fs.BoolVar(&o.aux, "aux", false, "add an effect bus fed by aux sends from every track")
	fs.BoolVar(&o.monitor, "monitor", false, "add a monitor section")
	fs.BoolVar(&o.strict, "strict", false, "create routes with strict i/o")
	fs.Float64Var(&o.rate, "rate", 48000, "sample rate in Hz")
	fs.IntVar(&o.block, "block", 1024, "block size in samples")
	fs.BoolVar(&o.printXML, "xml", false, "print the saved session state")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: routeinfo [flags]\n\n")
		fmt.Fprintf(stderr, "Builds a demo session and prints each route's chain and latencies.\n\n")
		fmt.Fprintf(stderr, "Flags:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	var err error
	if o.latency, err = parseLatencies(*latency); err != nil {
		return err
	}
	if o.tracks < 1 {
		return fmt.Errorf("need at least one track, got %d", o.tracks)
	}

	s, err := build(o, slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))
	if err != nil {
		return err
	}
	if err := printRoutes(stdout, s); err != nil {
		return err
	}
	if o.printXML {
		doc, err := state.Encode(s)
		if err != nil {
			return err
		}
		out, err := state.Marshal(doc)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(stdout, "\n%s\n", out); err != nil {
			return err
		}
	}
	return nil
}

func parseLatencies(list string) ([]int, error) {
	var out []int
	for _, f := range strings.Split(list, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		n, err := strconv.Atoi(f)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("bad latency %q", f)
		}
		out = append(out, n)
	}
	return out, nil
}

func build(o options, log *slog.Logger) (*session.Session, error) {
	s := session.New(
		session.WithSampleRate(o.rate),
		session.WithBlockSize(o.block),
		session.WithStrictIO(o.strict),
		session.WithAutoConnect(true),
		session.WithLogger(log),
	)
	mono, stereo := chans.NewCount(1, 0), chans.NewCount(2, 0)
	if _, err := s.AddMaster(stereo); err != nil {
		return nil, err
	}
	if o.monitor {
		if _, err := s.AddMonitorSection(stereo); err != nil {
			return nil, err
		}
	}
	var fx *route.Route
	if o.aux {
		var err error
		if fx, err = s.NewBus("FX", stereo); err != nil {
			return nil, err
		}
	}

	for i := range o.tracks {
		t, err := s.NewTrack(fmt.Sprintf("Track %d", i+1), mono)
		if err != nil {
			return nil, err
		}
		if i < len(o.latency) && o.latency[i] > 0 {
			insert := processor.NewPortInsert("Outboard", o.latency[i], s.Config().Processor)
			if err := t.AddProcessorAt(insert, route.PreFader); err != nil {
				return nil, err
			}
		}
		if fx != nil {
			if err := t.AddAuxSend(fx, nil); err != nil {
				return nil, err
			}
		}
	}
	return s, nil
}

func printRoutes(w io.Writer, s *session.Session) error {
	byRoute := make(map[string]session.Latency)
	for _, l := range s.Latencies() {
		byRoute[l.Route] = l
	}
	for _, r := range s.Routes() {
		l := byRoute[r.Name()]
		if _, err := fmt.Fprintf(w, "%s (%s)  in %s  signal %d  playback %d/%d  delay %d\n",
			r.Name(), r.Kind(), r.InputCount(), l.Signal, l.In, l.Out, r.CompensationDelay()); err != nil {
			return err
		}

		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintf(tw, "  Processor\tKind\tIn\tOut\tLatency\tIn Lat\tOut Lat\tShown\n")
		fmt.Fprintf(tw, "  ---------\t----\t--\t---\t-------\t------\t-------\t-----\n")
		for _, p := range r.Processors() {
			lat := 0
			if p.Active() {
				lat = p.EffectiveLatency()
			}
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
				p.Name(), p.Kind(), p.InputStreams(), p.OutputStreams(),
				lat, p.InputLatency(), p.OutputLatency(), yesNo(p.DisplayToUser()))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
