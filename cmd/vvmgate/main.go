package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/juju/errors"

	"github.com/marine-iot/vvmgate/ble"
	"github.com/marine-iot/vvmgate/config"
	"github.com/marine-iot/vvmgate/csvsink"
	"github.com/marine-iot/vvmgate/health"
	"github.com/marine-iot/vvmgate/logx"
	"github.com/marine-iot/vvmgate/signalk"
	"github.com/marine-iot/vvmgate/vvm"
	"github.com/marine-iot/vvmgate/vvm/convert"
	"github.com/marine-iot/vvmgate/vvm/session"
)

func main() {
	flagConfig := flag.String("config", "vvmgate.hcl", "")
	flagAddress := flag.String("address", "", "target device address, overrides config")
	flagName := flag.String("name", "", "target device name, overrides config")
	flagURL := flag.String("url", "", "signalk stream url, overrides config")
	flagUsername := flag.String("username", "", "signalk username, overrides config")
	flagPassword := flag.String("password", "", "signalk password, overrides config")
	flagDebug := flag.Bool("debug", false, "debug logging")
	flag.Parse()

	const logFlagsService = log.Lshortfile
	const logFlagsInteractive = log.Lshortfile | log.Ltime | log.Lmicroseconds
	mainLog := logx.NewStderr(logx.LInfo)
	if sdnotify(mainLog, "READY=0\nSTATUS=starting\n") {
		// under systemd, journal already stamps each line
		mainLog.SetFlags(logFlagsService)
	} else {
		mainLog.SetFlags(logFlagsInteractive)
	}

	conf, err := config.ReadFile(*flagConfig, mainLog)
	if err != nil {
		mainLog.Fatalf("%s", errors.ErrorStack(err))
	}
	if *flagAddress != "" {
		conf.Device.Address = *flagAddress
	}
	if *flagName != "" {
		conf.Device.Name = *flagName
	}
	if *flagURL != "" {
		conf.SignalK.URL = *flagURL
	}
	if *flagUsername != "" {
		conf.SignalK.Username = *flagUsername
	}
	if *flagPassword != "" {
		conf.SignalK.Password = *flagPassword
	}
	if *flagDebug || conf.Logging.Debug {
		mainLog.SetLevel(logx.LDebug)
	}
	if conf.Device.Address == "" && conf.Device.Name == "" {
		mainLog.Fatalf("need device address or name; see -address/-name or config device block")
	}
	if conf.SignalK.URL == "" {
		mainLog.Fatalf("need signalk url; see -url or config signalk block")
	}

	healthState := health.NewState()
	conv := convert.NewEngine(conf.Conversion, mainLog)

	publisher := signalk.NewPublisher(signalk.Config{
		URL:               conf.SignalK.URL,
		Username:          conf.SignalK.Username,
		Password:          conf.SignalK.Password,
		ConnectTimeout:    conf.ConnectTimeout(),
		ReconnectInterval: conf.ReconnectInterval(),
		SendUnknown:       conf.SignalK.SendUnknown,
	}, conv, healthState, mainLog)

	receivers := []vvm.DataReceiver{publisher}

	var sink *csvsink.Sink
	if conf.CSV.Enable {
		sink = csvsink.NewSink(csvsink.Config{
			Path:          conf.CSV.File,
			FlushInterval: conf.CSVFlushInterval(),
		}, mainLog)
		receivers = append(receivers, sink)
	}

	sess := session.NewSession(session.Config{
		Address:          conf.Device.Address,
		Name:             conf.Device.Name,
		TableTimeout:     conf.TableTimeout(),
		ResponseTimeout:  conf.ResponseTimeout(),
		StreamingTimeout: conf.StreamingTimeout(),
		RetryDelay:       conf.RetryDelay(),
	}, ble.NewTinyGoTransport(mainLog), conv, healthState, mainLog, receivers...)

	var heartbeat *health.Heartbeat
	if conf.Healthcheck.Enable {
		heartbeat = health.NewHeartbeat(healthState, conf.Healthcheck.File,
			conf.HealthcheckInterval(), mainLog)
		heartbeat.Start()
	}

	publisher.Start()
	sess.Start()
	sdnotify(mainLog, daemon.SdNotifyReady)
	mainLog.Infof("vvmgate running device=%s%s url=%s",
		conf.Device.Address, conf.Device.Name, conf.SignalK.URL)

	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigch
	mainLog.Infof("shutdown signal=%v", sig)
	sdnotify(mainLog, daemon.SdNotifyStopping)

	sess.Close()
	publisher.Close()
	if heartbeat != nil {
		heartbeat.Close()
	}
	if sink != nil {
		if err := sink.Close(); err != nil {
			mainLog.Errorf("csv close: %v", err)
		}
	}
	mainLog.Infof("goodbye")
}

func sdnotify(log *logx.Log, s string) bool {
	ok, err := daemon.SdNotify(false, s)
	if err != nil {
		log.Fatalf("sdnotify: %s", errors.ErrorStack(err))
	}
	return ok
}
