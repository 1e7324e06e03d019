// dbbc3mon listens for the DBBC3 monitoring multicast and logs a
// per-message summary. Intended to run as a service; notifies systemd
// when the receiver is up.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	stdlog "log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"

	"github.com/vlbitools/dbbc3/conf"
	"github.com/vlbitools/dbbc3/log2"
	"github.com/vlbitools/dbbc3/mcast"
)

var log = log2.NewStderr(log2.LInfo)

func main() {
	flagConfig := flag.String("config", "", "path to HCL config")
	flagGroup := flag.String("group", "", "multicast group, overrides config")
	flagPort := flag.Int("port", 0, "multicast port, overrides config")
	flagIface := flag.String("iface", "", "interface to join on, overrides config")
	flagInterval := flag.Duration("interval", 10*time.Second, "summary log interval")
	flagOnce := flag.Bool("once", false, "wait for a single message, report it, exit")
	flagJSON := flag.Bool("json", false, "with -once, print the decoded message as JSON")
	flag.Parse()

	if sdnotify("start") {
		// under systemd, journal adds timestamps
		log.SetFlags(log2.LServiceFlags)
	} else {
		log.SetFlags(log2.LInteractiveFlags)
	}

	opt := mcast.ReceiverOptions{Log: log}
	if *flagConfig != "" {
		c := conf.MustReadConfig(log, conf.NewOsFullReader(""), *flagConfig)
		opt = c.ReceiverOptions(log)
	}
	if *flagGroup != "" {
		opt.Group = *flagGroup
	}
	if *flagPort != 0 {
		opt.Port = *flagPort
	}
	if *flagIface != "" {
		opt.Iface = *flagIface
	}

	if *flagOnce {
		snap, err := mcast.Poll(opt)
		if err != nil {
			log.Fatal(errors.ErrorStack(err))
		}
		if *flagJSON {
			printJSON(snap)
		} else {
			printSummary(snap, 0)
		}
		return
	}

	r := mcast.NewReceiver(opt)
	if err := r.Start(); err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	sdnotify(daemon.SdNotifyReady)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	tick := time.NewTicker(*flagInterval)
	defer tick.Stop()

	for {
		select {
		case sig := <-sigCh:
			log.Infof("signal %v, stopping", sig)
			sdnotify(daemon.SdNotifyStopping)
			r.Stop()
			return
		case <-tick.C:
			logSummary(r)
		}
	}
}

func logSummary(r *mcast.Receiver) {
	snap := r.LatestNow()
	if snap == nil {
		log.Infof("no message received yet")
		return
	}
	printSummary(snap, r.SinceLastMessage().Round(time.Millisecond))
}

func printSummary(snap *mcast.Snapshot, age time.Duration) {
	log.Infof("mode=%s version=%d,%s age=%s", snap.Mode, snap.MajorVersion, snap.MinorVersionString, age)
	for n := 1; n <= mcast.NumIF; n++ {
		ifs := snap.IF(n)
		pcts := make([]string, 4)
		for s := 0; s < 4; s++ {
			pcts[s] = fmt.Sprintf("%.0f/%.0f/%.0f/%.0f",
				ifs.Samplers[s].StatsPct[0], ifs.Samplers[s].StatsPct[1],
				ifs.Samplers[s].StatsPct[2], ifs.Samplers[s].StatsPct[3])
		}
		log.Infof("if %d: synth lock=%v freq=%.0fMHz attenuation=%d count=%d pps=%dns bstat=[%s]",
			n, ifs.Synth.Lock, ifs.Synth.FrequencyMHz, ifs.Gcomo.Attenuation, ifs.Gcomo.Count, ifs.PPSDelay,
			strings.Join(pcts, " "))
	}
}

func printJSON(snap *mcast.Snapshot) {
	view := struct {
		Mode               string
		MajorVersion       int
		MinorVersionString string
		BoardPresent       [mcast.NumIF]bool
		BoardActive        [mcast.NumIF]bool
		IFs                []mcast.IFStatus
	}{
		Mode:               snap.Mode,
		MajorVersion:       snap.MajorVersion,
		MinorVersionString: snap.MinorVersionString,
		BoardPresent:       snap.BoardPresent,
		BoardActive:        snap.BoardActive,
		IFs:                make([]mcast.IFStatus, 0, mcast.NumIF),
	}
	for n := 1; n <= mcast.NumIF; n++ {
		view.IFs = append(view.IFs, *snap.IF(n))
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(&view); err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
}

func sdnotify(s string) bool {
	ok, err := daemon.SdNotify(false, s)
	if err != nil {
		stdlog.Fatal("sdnotify: ", errors.ErrorStack(err))
	}
	return ok
}
