package config

import (
	"flag"
	"strings"
	"time"
)

// Flags binds the command-line overrides. Only flags given on the command
// line are applied, so file and environment values survive otherwise.
type Flags struct {
	fs *flag.FlagSet

	natal     string
	timezone  string
	preset    string
	bodies    string
	targets   string
	from      string
	to        string
	days      int
	step      time.Duration
	refine    bool
	exact     bool
	ingresses bool
	noMerge   bool
	format    string
	out       string
	ingest    string
	addr      string
}

// NewFlags registers the override flags on fs.
func NewFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{fs: fs}
	fs.StringVar(&f.natal, "natal", "", "natal frame file (yaml or json)")
	fs.StringVar(&f.timezone, "tz", "", "display timezone, defaults to the frame's")
	fs.StringVar(&f.preset, "preset", "", "scan preset: augment, long, lunar or planets")
	fs.StringVar(&f.bodies, "bodies", "", "comma-separated moving bodies")
	fs.StringVar(&f.targets, "targets", "", "comma-separated natal targets")
	fs.StringVar(&f.from, "from", "", "range start (RFC3339, 2006-01-02 15:04 or 2006-01-02)")
	fs.StringVar(&f.to, "to", "", "range end")
	fs.IntVar(&f.days, "days", 0, "range length in days when -to is not given")
	fs.DurationVar(&f.step, "step", 0, "sampling step")
	fs.BoolVar(&f.refine, "refine", false, "refine window peaks by bisection")
	fs.BoolVar(&f.exact, "exact", false, "add exact-hit events")
	fs.BoolVar(&f.ingresses, "ingresses", false, "add house ingress events")
	fs.BoolVar(&f.noMerge, "no-merge", false, "keep axis halves as separate events")
	fs.StringVar(&f.format, "format", "", "output format: json, jsonl or csv")
	fs.StringVar(&f.out, "out", "", "output file, - for stdout")
	fs.StringVar(&f.ingest, "ingest", "", "ingest webhook URL")
	fs.StringVar(&f.addr, "addr", "", "HTTP listen address")
	return f
}

// Apply copies every flag that was set onto c.
func (f *Flags) Apply(c *Config) {
	f.fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "natal":
			c.Natal = f.natal
		case "tz":
			c.Timezone = f.timezone
		case "preset":
			c.Preset = f.preset
		case "bodies":
			c.Bodies = splitList(f.bodies)
		case "targets":
			c.Targets = splitList(f.targets)
		case "from":
			c.From = f.from
		case "to":
			c.To = f.to
		case "days":
			c.Days = f.days
		case "step":
			c.Step = f.step
		case "refine":
			c.Refine = f.refine
		case "exact":
			c.Exact = f.exact
		case "ingresses":
			c.Ingresses = f.ingresses
		case "no-merge":
			merge := !f.noMerge
			c.MergeAxes = &merge
		case "format":
			c.Output.Format = strings.ToLower(f.format)
		case "out":
			c.Output.Path = f.out
		case "ingest":
			c.Output.Ingest = f.ingest
		case "addr":
			c.Server.Addr = f.addr
		}
	})
}
