// dbbc3ctl is an interactive command client for the DBBC3 control
// software. Commands typed at the prompt map onto the typed query
// operations of the current dialect; raw passthrough is available for
// anything not covered.
package main

import (
	"flag"
	"os"
	"strconv"
	"strings"

	prompt "github.com/c-bata/go-prompt"
	"github.com/juju/errors"

	"github.com/vlbitools/dbbc3/board"
	"github.com/vlbitools/dbbc3/conf"
	"github.com/vlbitools/dbbc3/control"
	"github.com/vlbitools/dbbc3/internal/cli"
	"github.com/vlbitools/dbbc3/log2"
)

const usage = `commands:
- version                    control software mode and version
- time                       board times
- level B                    IF power level of board B
- power B                    sampler powers of board B
- bstat B S                  bit statistics of board B sampler S (0-3)
- corr B                     sampler correlations of board B
- lock B                     synthesizer lock of board B
- freq B                     synthesizer frequency of board B
- regread B DEV REG          read register
- regwrite B DEV REG VAL     write register
- cal on|off [T G O]         calibration loop on with threshold/gain/offset
- phase                      sampler phase check
- timesync B                 synchronize board B to system time
- ppsdelay [B]               PPS delays (all boards or board B)
- dscpower B                 OCT sampler powers of board B
- dscbstat B S               OCT bit statistics of board B sampler S
- dsccorr B                  OCT sampler correlations of board B
- tap B FILE [SCALE]         load tap filter 1 from FILE
- tap2 B FILE [SCALE]        load tap filter 2 from FILE
- raw CMD...                 send CMD verbatim, print response
- ops                        list operations of the active dialect
- log=yes / log=no           toggle debug logging
boards are numbers 0-7 or letters A-H
`

var log = log2.NewStderr(log2.LInfo)

func main() {
	cmdline := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	flagConfig := cmdline.String("config", "", "path to HCL config")
	flagHost := cmdline.String("host", "", "DBBC3 host, overrides config")
	flagPort := cmdline.Int("port", 0, "DBBC3 control port, overrides config")
	flagMode := cmdline.String("mode", "", "expected mode, e.g. DDC_V")
	flagVersion := cmdline.String("version", "", "expected major version")
	flagBoards := cmdline.Int("boards", 0, "number of installed boards")
	cmdline.Parse(os.Args[1:])

	log.SetFlags(log2.LInteractiveFlags)

	opt := control.Options{Log: log}
	if *flagConfig != "" {
		c := conf.MustReadConfig(log, conf.NewOsFullReader(""), *flagConfig)
		opt = c.SessionOptions(log)
	}
	if *flagHost != "" {
		opt.Host = *flagHost
	}
	if *flagPort != 0 {
		opt.Port = *flagPort
	}
	if *flagMode != "" {
		opt.Mode = *flagMode
	}
	if *flagVersion != "" {
		opt.Version = *flagVersion
	}
	if *flagBoards != 0 {
		opt.NumBoards = *flagBoards
	}
	if opt.Host == "" {
		log.Fatalf("need -host or -config with a device block")
	}

	s := control.NewSession(opt)
	if err := s.Connect(); err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	defer s.Disconnect()
	v := s.DeviceVersion()
	log.Infof("connected to %s mode=%s version=%d,%s dialect=%s",
		opt.Host, v.Mode, v.Major, v.MinorString, s.Dialect().String())

	cli.MainLoop("dbbc3", newExecutor(s), newCompleter())
}

func newCompleter() func(d prompt.Document) []prompt.Suggest {
	suggests := []prompt.Suggest{
		{Text: "version", Description: "control software version"},
		{Text: "time", Description: "board times"},
		{Text: "level", Description: "IF power level"},
		{Text: "power", Description: "sampler powers"},
		{Text: "bstat", Description: "sampler bit statistics"},
		{Text: "corr", Description: "sampler correlations"},
		{Text: "lock", Description: "synthesizer lock state"},
		{Text: "freq", Description: "synthesizer frequency"},
		{Text: "regread", Description: "read register"},
		{Text: "regwrite", Description: "write register"},
		{Text: "cal", Description: "calibration loop on/off"},
		{Text: "phase", Description: "sampler phase check"},
		{Text: "timesync", Description: "synchronize board time"},
		{Text: "ppsdelay", Description: "PPS delays"},
		{Text: "dscpower", Description: "OCT sampler powers"},
		{Text: "dscbstat", Description: "OCT bit statistics"},
		{Text: "dsccorr", Description: "OCT sampler correlations"},
		{Text: "tap", Description: "load tap filter 1"},
		{Text: "tap2", Description: "load tap filter 2"},
		{Text: "raw", Description: "send command verbatim"},
		{Text: "ops", Description: "list dialect operations"},
		{Text: "help", Description: "show command help"},
	}
	return func(d prompt.Document) []prompt.Suggest {
		return prompt.FilterFuzzy(suggests, d.GetWordBeforeCursor(), true)
	}
}

// calArgs fills absent calibration switches with the device defaults.
func calArgs(args []string) (threshold, gain, offset string) {
	threshold, gain, offset = "on", "off", "off"
	if len(args) > 0 {
		threshold = args[0]
	}
	if len(args) > 1 {
		gain = args[1]
	}
	if len(args) > 2 {
		offset = args[2]
	}
	return threshold, gain, offset
}

func newExecutor(s *control.Session) func(string) {
	return func(line string) {
		line = strings.TrimSpace(line)
		if line == "" {
			return
		}
		if err := execute(s, line); err != nil {
			log.Errorf("%s", errors.ErrorStack(err))
		}
	}
}

func execute(s *control.Session, line string) error {
	words := strings.Fields(line)
	cmd, args := words[0], words[1:]

	needBoard := func() (board.ID, error) {
		if len(args) < 1 {
			return 0, errors.Errorf("%s: missing board argument", cmd)
		}
		return s.ResolveBoard(args[0])
	}

	switch cmd {
	case "help", "?":
		log.Infof(usage)

	case "log=yes":
		log.SetLevel(log2.LDebug)
	case "log=no":
		log.SetLevel(log2.LInfo)

	case "ops":
		for _, op := range s.Dialect().SupportedOps() {
			log.Infof("%s", op)
		}

	case "version":
		v, err := s.Version()
		if err != nil {
			return err
		}
		log.Infof("mode=%s major=%d minor=%d (%s)", v.Mode, v.Major, v.Minor, v.MinorString)

	case "time":
		bts, err := s.Time()
		if err != nil {
			return err
		}
		for i, bt := range bts {
			if bt.HasTimestamp {
				log.Infof("board %s: %s seconds=%d", board.ID(i).Label(), bt.Timestamp.Format("2006-01-02T15:04:05"), bt.Seconds)
			} else {
				log.Infof("board %s: seconds=%d", board.ID(i).Label(), bt.Seconds)
			}
		}

	case "level":
		b, err := needBoard()
		if err != nil {
			return err
		}
		lvl, err := s.IFLevel(b)
		if err != nil {
			return err
		}
		log.Infof("board %s: input=%d attenuation=%d mode=%s count=%d target=%d",
			b.Label(), lvl.InputType, lvl.Attenuation, lvl.Mode, lvl.Count, lvl.Target)

	case "power":
		b, err := needBoard()
		if err != nil {
			return err
		}
		pow, err := s.SamplerPower(b)
		if err != nil {
			return err
		}
		log.Infof("board %s: power=%v", b.Label(), pow)

	case "bstat":
		b, err := needBoard()
		if err != nil {
			return err
		}
		if len(args) < 2 {
			return errors.Errorf("bstat: missing sampler argument")
		}
		sampler, err := strconv.Atoi(args[1])
		if err != nil {
			return errors.Annotate(err, "bstat sampler")
		}
		stats, err := s.SamplerStats(b, sampler)
		if err != nil {
			return err
		}
		log.Infof("board %s sampler %d: %v", b.Label(), sampler, stats)

	case "corr":
		b, err := needBoard()
		if err != nil {
			return err
		}
		corr, err := s.SamplerCorr(b)
		if err != nil {
			return err
		}
		log.Infof("board %s: corr=%v", b.Label(), corr)

	case "lock":
		b, err := needBoard()
		if err != nil {
			return err
		}
		locked, err := s.SynthLock(b)
		if err != nil {
			return err
		}
		synth, source := b.Synthesizer()
		log.Infof("board %s (synth %d source %d): locked=%v", b.Label(), synth, source, locked)

	case "freq":
		b, err := needBoard()
		if err != nil {
			return err
		}
		f, err := s.SynthFreq(b)
		if err != nil {
			return err
		}
		log.Infof("board %s: target=%v MHz actual=%v MHz", b.Label(), f.TargetMHz, f.ActualMHz)

	case "regread":
		b, err := needBoard()
		if err != nil {
			return err
		}
		if len(args) < 3 {
			return errors.Errorf("regread: want board device register")
		}
		reg, err := strconv.Atoi(args[2])
		if err != nil {
			return errors.Annotate(err, "regread register")
		}
		v, err := s.RegRead(b, args[1], reg)
		if err != nil {
			return err
		}
		log.Infof("board %s %s[%d]: %s / %s / %d", b.Label(), args[1], reg, v.Hex, v.Bin, v.Dec)

	case "regwrite":
		b, err := needBoard()
		if err != nil {
			return err
		}
		if len(args) < 4 {
			return errors.Errorf("regwrite: want board device register value")
		}
		reg, err := strconv.Atoi(args[2])
		if err != nil {
			return errors.Annotate(err, "regwrite register")
		}
		value, err := strconv.ParseUint(args[3], 0, 32)
		if err != nil {
			return errors.Annotate(err, "regwrite value")
		}
		changed, err := s.RegWrite(b, args[1], reg, uint32(value))
		if err != nil {
			return err
		}
		log.Infof("board %s %s[%d]: changed=%v", b.Label(), args[1], reg, changed)

	case "cal":
		if len(args) < 1 {
			return errors.Errorf("cal: want on|off")
		}
		switch args[0] {
		case "off":
			resp, err := s.DisableLoop()
			if err != nil {
				return err
			}
			log.Infof("%s", resp)
		case "on":
			threshold, gain, offset := calArgs(args[1:])
			cs, err := s.EnableCal(threshold, gain, offset)
			if err != nil {
				return err
			}
			log.Infof("cal on: threshold=%s gain=%s offset=%s", cs.Threshold, cs.Gain, cs.Offset)
		default:
			return errors.Errorf("cal: want on|off, got %q", args[0])
		}

	case "phase":
		ok, err := s.CheckPhase()
		if err != nil {
			return err
		}
		log.Infof("phase in sync: %v", ok)

	case "timesync":
		b, err := needBoard()
		if err != nil {
			return err
		}
		ts, err := s.TimeSync(b)
		if err != nil {
			return err
		}
		log.Infof("board %s: success=%v time=%s", b.Label(), ts.Success, ts.Timestamp.Format("2006-01-02T15:04:05"))

	case "ppsdelay":
		b := board.All
		if len(args) > 0 {
			var err error
			if b, err = s.ResolveBoard(args[0]); err != nil {
				return err
			}
		}
		delays, err := s.PPSDelay(b)
		if err != nil {
			return err
		}
		log.Infof("pps delays (ns): %v", delays)

	case "dscpower":
		b, err := needBoard()
		if err != nil {
			return err
		}
		values, err := s.DSCPower(b)
		if err != nil {
			return err
		}
		log.Infof("board %s: power=%v", b.Label(), values)

	case "dscbstat":
		b, err := needBoard()
		if err != nil {
			return err
		}
		if len(args) < 2 {
			return errors.Errorf("dscbstat: missing sampler argument")
		}
		sampler, err := strconv.Atoi(args[1])
		if err != nil {
			return errors.Annotate(err, "dscbstat sampler")
		}
		stats, err := s.DSCStats(b, sampler)
		if err != nil {
			return err
		}
		for i, st := range stats {
			log.Infof("board %s sampler %d level %d: count=%d %d%%", b.Label(), sampler, i, st.Count, st.Percent)
		}

	case "dsccorr":
		b, err := needBoard()
		if err != nil {
			return err
		}
		corr, err := s.DSCCorr(b)
		if err != nil {
			return err
		}
		log.Infof("board %s: corr=%v", b.Label(), corr)

	case "tap", "tap2":
		b, err := needBoard()
		if err != nil {
			return err
		}
		if len(args) < 2 {
			return errors.Errorf("%s: missing filter file argument", cmd)
		}
		scaling := 1
		if len(args) > 2 {
			if scaling, err = strconv.Atoi(args[2]); err != nil {
				return errors.Annotatef(err, "%s scaling", cmd)
			}
		}
		var resp string
		if cmd == "tap" {
			resp, err = s.TapFilter(b, args[1], scaling)
		} else {
			resp, err = s.TapFilter2(b, args[1], scaling)
		}
		if err != nil {
			return err
		}
		log.Infof("%s", resp)

	case "raw":
		if len(args) < 1 {
			return errors.Errorf("raw: missing command")
		}
		resp, err := s.SendCommand(strings.Join(args, " "))
		if err != nil {
			return err
		}
		log.Infof("%s", resp)

	default:
		return errors.Errorf("unknown command %q, try help", cmd)
	}
	return nil
}
