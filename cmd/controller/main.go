//go:build tinygo

// Command controller is the on-vehicle firmware entrypoint: it brings up
// WiFi as the link layer standing in for the cellular modem's packet data
// session, wires the battery estimator, posture classifier, wall clock, and
// rental orchestrator to the peripherals in internal/hal, and runs the
// cooperative loop that ticks them all off one scheduler.
package main

import (
	"log/slog"
	"machine"
	"net/netip"
	"time"

	"github.com/soypat/cyw43439"
	"github.com/soypat/cyw43439/examples/cywnet"
	"github.com/soypat/lneto/tcp"

	"openenterprise/scootctl/internal/battery"
	"openenterprise/scootctl/internal/cellinfo"
	"openenterprise/scootctl/internal/clock"
	"openenterprise/scootctl/internal/codec"
	"openenterprise/scootctl/internal/config"
	"openenterprise/scootctl/internal/console"
	"openenterprise/scootctl/internal/credentials"
	"openenterprise/scootctl/internal/demux"
	"openenterprise/scootctl/internal/hal"
	"openenterprise/scootctl/internal/posture"
	"openenterprise/scootctl/internal/rental"
	"openenterprise/scootctl/internal/scheduler"
	"openenterprise/scootctl/internal/tasks"
	"openenterprise/scootctl/internal/telemetry"
	"openenterprise/scootctl/internal/transport"
	"openenterprise/scootctl/internal/ui"
	"openenterprise/scootctl/internal/version"
)

const maintenanceCadenceMS = 200

var requestedIP = [4]byte{192, 168, 1, 100}

// serialSink renders UI pages as log lines; the physical display driver is
// out of scope here.
type serialSink struct{ log *slog.Logger }

func (s serialSink) Render(page ui.Page, fields ui.Fields) {
	s.log.Info("ui:render", slog.String("page", page.String()), slog.Float64("speed_kmh", float64(fields.SpeedKMH)), slog.Int("battery_pct", fields.BatteryPercent))
}

func main() {
	time.Sleep(2 * time.Second)
	println("========================================")
	println("  scootctl")
	println("  Version:", version.Version)
	println("  Git SHA:", version.GitSHA)
	println("========================================")

	logger := slog.New(telemetry.NewSlogHandler(machine.Serial, &slog.HandlerOptions{Level: slog.LevelDebug}))
	netLogger := slog.New(slog.NewTextHandler(machine.Serial, &slog.HandlerOptions{Level: slog.Level(12)}))

	machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 8000})
	machine.Watchdog.Start()

	devcfg := cyw43439.DefaultWifiConfig()
	devcfg.Logger = netLogger
	cystack, err := cywnet.NewConfiguredPicoWithStack(
		credentials.MQTTUser(), credentials.MQTTPassword(), devcfg,
		cywnet.StackConfig{Hostname: "scootctl", MaxTCPPorts: 2},
	)
	if err != nil {
		logger.Error("wifi:setup-failed", slog.String("err", err.Error()))
		fatal()
	}
	go loopForeverStack(cystack)

	dhcpResults, err := cystack.SetupWithDHCP(cywnet.DHCPConfig{RequestedAddr: netip.AddrFrom4(requestedIP)})
	if err != nil {
		logger.Error("dhcp:failed", slog.String("err", err.Error()))
		fatal()
	}
	logger.Info("dhcp:complete", slog.String("addr", dhcpResults.AssignedAddr.String()))

	stack := cystack.LnetoStack()
	rstack := stack.StackRetrying(5 * time.Millisecond)
	dialFn := func(conn *tcp.Conn, addr netip.AddrPort, timeout time.Duration) error {
		lport := uint16(stack.Prand32()>>17) + 1024
		return rstack.DoDialTCP(conn, lport, addr, timeout, 3)
	}
	resolve := func(addr string) (netip.AddrPort, error) {
		return netip.ParseAddrPort(addr)
	}

	brokerAddr, err := netip.ParseAddrPort(config.MQTTBroker())
	if err != nil {
		logger.Error("config:broker-invalid", slog.String("err", err.Error()))
		fatal()
	}

	telemetry.Enable()
	if collectorAddr, err := config.TelemetryCollectorAddr(); err == nil {
		sender := telemetry.NewSender(stack, collectorAddr)
		go sender.Run()
	} else {
		logger.Warn("telemetry:collector-addr-invalid", slog.String("err", err.Error()))
	}

	wallClock := clock.NewSource(func() int64 { return time.Now().UnixMilli() })
	nowMS := func() int64 {
		if ms, err := wallClock.NowMS(); err == nil {
			return ms
		}
		return time.Now().UnixMilli()
	}

	mqttClient := transport.NewNatiuMQTT(brokerAddr, dialFn)
	httpDialer := &transport.LnetoDialer{DialFn: dialFn, Resolve: resolve}
	httpClient := transport.NewHTTP(httpDialer, nowMS)
	socket := transport.NewSocket(mqttClient, httpClient)

	dx := demux.New()
	mqttClient.OnMessage(dx.Dispatch)
	sched := scheduler.New()
	driver := ui.NewDriver(serialSink{log: logger})

	store := battery.NewFlashStore()
	gauge := hal.NewI2CBatteryGauge(machine.I2C0, 0x6A)
	estimator := battery.NewEstimator(store, func(msg string) { logger.Info("battery", slog.String("msg", msg)) })
	if v, _, err := gauge.Read(); err == nil {
		estimator.Begin(v, nowMS())
	}

	imu := hal.NewI2CIMU(machine.I2C0, 0x68)
	classifier := posture.NewClassifier()

	helmetSwitch := hal.NewGPIOHelmetSwitch(machine.GP6)
	statusLED := hal.NewGPIOStatusLED(machine.GP7)
	modem := hal.NewUARTModem(machine.UART1)
	qrScanner := hal.NewUARTQRScanner(machine.UART0)

	orchestrator := rental.NewOrchestrator(rental.Config{
		Socket:               socket,
		Scheduler:            sched,
		Demux:                dx,
		UI:                   driver,
		BikeID:               config.BikeID(),
		TelemetryTopic:       config.TelemetryTopic(),
		AlertTopic:           config.AlertTopic(),
		ValidateReqTopic:     config.ValidateReqTopic(),
		UpdateTopicFmt:       config.UpdateTopicFmt(),
		TerminateReqTopicFmt: config.TerminateReqTopicFmt(),
		MQTTClientID:         config.MQTTClientID(),
		MQTTUser:             credentials.MQTTUser(),
		MQTTPass:             credentials.MQTTPassword(),
		ReconnectMS:          config.MQTTReconnectBackoff().Milliseconds(),
		NowMS:                nowMS,
		Log:                  logger,
	})

	if err := socket.MQTTConnect(config.MQTTClientID(), credentials.MQTTUser(), credentials.MQTTPassword()); err != nil {
		logger.Warn("mqtt:initial-connect-failed", slog.String("err", err.Error()))
	}

	var cellCache cellinfo.Info
	var lastLat, lastLng float32
	lastMaintenanceMS := int64(0)
	rebootRequested := false

	consoleServer := &console.Server{
		Password: credentials.ConsolePassword(),
		Status:   controllerStatus{orchestrator: orchestrator, estimator: estimator, classifier: classifier, sched: sched, addr: dhcpResults.AssignedAddr},
		Refresh: func() bool {
			lastMaintenanceMS = 0
			return true
		},
		Reboot: func() { rebootRequested = true },
		Log:    logger,
	}
	go consoleServer.Serve(stack)

	logger.Info("init:complete", slog.String("bike_id", config.BikeID()))

	for {
		if rebootRequested {
			// Stop feeding the watchdog so it resets the board; there is no
			// software reset entry point available outside the OTA
			// bootloader this firmware doesn't carry.
			time.Sleep(9 * time.Second)
		}
		machine.Watchdog.Update()

		now := nowMS()

		if code, ok := qrScanner.ReadCode(); ok {
			trip, err := codec.DecodeTripQR([]byte(code))
			if err == nil {
				trip.CurrentLat, trip.CurrentLng = lastLat, lastLng
			}
			orchestrator.OnQRScanned(trip, err, now)
		}

		ax, ay, az, err := imu.Read()
		var uprightConfirmed bool
		if err == nil {
			classifier.Update(ax, ay, az, now)
			uprightConfirmed = classifier.Confirmed() == posture.Upright
		}

		if v, c, err := gauge.Read(); err == nil {
			estimator.Update(v, c, now)
		}

		sensors := rental.Sensors{
			BatteryPercent:  estimator.Percent(),
			Posture:         rental.PostureUpright(uprightConfirmed),
			HelmetConnected: helmetSwitch.Connected(),
		}
		orchestrator.Tick(sensors, now)

		statusLED.Set(orchestrator.State() != rental.Idle)

		if now-lastMaintenanceMS >= maintenanceCadenceMS {
			lastMaintenanceMS = now
			cellTask := tasks.NewCellTowerQueryTask(modem, &cellCache, config.DefaultCellQueryTimeout.Milliseconds(), nowMS)
			if sched.EnqueueIfSpace(cellTask, scheduler.Low) {
				geoTask := tasks.NewGeolocationLookupTask(
					socket, &cellCache, &lastLat, &lastLng,
					config.GeoAPIURL(), credentials.GeoAPIToken(),
					config.DefaultCellQueryTimeout.Milliseconds(), nowMS,
				)
				sched.EnqueueIfSpace(geoTask, scheduler.Low)
			}
		}

		sched.Step()
		driver.Tick(now)

		if err := socket.MQTTLoop(); err != nil {
			logger.Warn("mqtt:loop", slog.String("err", err.Error()))
		}
	}
}

func fatal() {
	for i := 0; i < 15; i++ {
		time.Sleep(time.Second)
	}
}

func loopForeverStack(stack *cywnet.Stack) {
	var count int
	for {
		send, recv, _ := stack.RecvAndSend()
		if send == 0 && recv == 0 {
			time.Sleep(5 * time.Millisecond)
		}
		count++
		if count >= 100 {
			machine.Watchdog.Update()
			count = 0
		}
	}
}

// controllerStatus adapts the independently-owned orchestrator, battery
// estimator, posture classifier, and scheduler into the single
// console.StatusProvider the debug console reports from.
type controllerStatus struct {
	orchestrator *rental.Orchestrator
	estimator    *battery.Estimator
	classifier   *posture.Classifier
	sched        *scheduler.Scheduler
	addr         netip.Addr
}

func (s controllerStatus) RentalState() string  { return s.orchestrator.State().String() }
func (s controllerStatus) TripID() string       { return s.orchestrator.TripID() }
func (s controllerStatus) UsageState() string   { return s.orchestrator.UsageState().String() }
func (s controllerStatus) BatteryPercent() int  { return s.estimator.Percent() }
func (s controllerStatus) PostureState() string { return s.classifier.Confirmed().String() }
func (s controllerStatus) SchedulerDepth() int  { return s.sched.Len() }
func (s controllerStatus) NetAddr() string      { return s.addr.String() }
