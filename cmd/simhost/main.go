//go:build !tinygo

// Command simhost runs the same cooperative controller core against
// simulated peripherals and a loopback broker, so the scheduler, rental
// state machine, battery estimator, and posture classifier all exercise
// without real vehicle hardware. It exposes a Prometheus endpoint for the
// queue depth, completed-task count, and battery SOC, and accepts an
// optional YAML file layering overrides on the embedded configuration.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"openenterprise/scootctl/internal/battery"
	"openenterprise/scootctl/internal/codec"
	"openenterprise/scootctl/internal/config"
	"openenterprise/scootctl/internal/console"
	"openenterprise/scootctl/internal/credentials"
	"openenterprise/scootctl/internal/demux"
	"openenterprise/scootctl/internal/hal"
	"openenterprise/scootctl/internal/posture"
	"openenterprise/scootctl/internal/rental"
	"openenterprise/scootctl/internal/scheduler"
	"openenterprise/scootctl/internal/telemetry"
	"openenterprise/scootctl/internal/transport"
	"openenterprise/scootctl/internal/ui"
)

var (
	metricsAddr        = flag.String("metrics-addr", ":9090", "address to serve /metrics on")
	consoleAddr        = flag.String("console-addr", ":2323", "address to serve the debug console on")
	configPath         = flag.String("config", "", "optional YAML file overriding embedded configuration")
	tickMS             = flag.Int64("tick-ms", 50, "simulated milliseconds advanced per loop iteration")
	telemetryCollector = flag.String("telemetry-collector", "", "optional http://host:port OTLP-shaped collector; telemetry is disabled if empty")
)

var (
	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scootctl_scheduler_queue_depth",
		Help: "Number of tasks currently queued in the cooperative scheduler.",
	})
	tasksCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scootctl_scheduler_tasks_completed_total",
		Help: "Total tasks that have run to completion.",
	})
	batterySOC = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scootctl_battery_soc_percent",
		Help: "Estimated battery state of charge, percent.",
	})
	rentalStateGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scootctl_rental_state",
		Help: "Current rental orchestrator state (ordinal).",
	})
)

// logSink renders UI page transitions as structured log lines.
type logSink struct{ log zerolog.Logger }

func (s logSink) Render(page ui.Page, fields ui.Fields) {
	s.log.Info().Str("page", page.String()).Float32("speed_kmh", fields.SpeedKMH).Int("battery_pct", fields.BatteryPercent).Msg("ui:render")
}

func main() {
	flag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}).With().Timestamp().Str("component", "simhost").Logger()

	if *configPath != "" {
		if err := config.LoadYAMLOverrides(*configPath); err != nil {
			log.Warn().Err(err).Str("path", *configPath).Msg("config:override-load-failed")
		} else {
			log.Info().Str("path", *configPath).Msg("config:override-loaded")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	metricsSrv := &http.Server{Addr: *metricsAddr, Handler: promhttp.Handler()}
	g.Go(func() error {
		log.Info().Str("addr", *metricsAddr).Msg("metrics:listening")
		err := metricsSrv.ListenAndServe()
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return metricsSrv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		runSimulation(gctx, log)
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("simhost:exit")
		os.Exit(1)
	}
}

func runSimulation(ctx context.Context, log zerolog.Logger) {
	var nowMS int64
	clock := func() int64 { return nowMS }

	telemetry.Enable()
	if *telemetryCollector != "" {
		sender := telemetry.NewSender(*telemetryCollector, log)
		sender.Start(ctx)
		defer sender.Stop()
	}

	store := battery.NewMemStore()
	estimator := battery.NewEstimator(store, func(msg string) { log.Debug().Str("battery", msg).Msg("battery") })
	gauge := &hal.FakeBatteryGauge{Voltage: battery.MaxVoltage, CurrentMA: 400}
	estimator.Begin(gauge.Voltage, 0)

	imu := &hal.FakeIMU{AZ: 1.0}
	classifier := posture.NewClassifier()

	helmet := hal.NewFakeHelmetSwitch(true)
	led := &hal.FakeStatusLED{}
	qr := &hal.FakeQRScanner{}

	broker := newLoopbackBroker(config.ValidateReqTopic(), config.UpdateTopicFmt())
	dialer := &loopbackDialer{lat: 37.7749, lon: -122.4194}
	httpClient := transport.NewHTTP(dialer, clock)
	socket := transport.NewSocket(broker, httpClient)
	if err := socket.MQTTConnect(config.MQTTClientID(), credentials.MQTTUser(), credentials.MQTTPassword()); err != nil {
		log.Error().Err(err).Msg("mqtt:connect-failed")
	}

	dx := demux.New()
	broker.OnMessage(dx.Dispatch)
	sched := scheduler.New()
	driver := ui.NewDriver(logSink{log: log})

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
		NowMS:                clock,
		Log:                  slog.Default(),
	})

	qr.Scan(`{"id":"trip-sim-1","customer_id":"cust-1","bike_id":"` + config.BikeID() + `","reservation_expiry":9999999999999,"trip_secret":"s3cr3t"}`)

	if ln, err := net.Listen("tcp", *consoleAddr); err != nil {
		log.Warn().Err(err).Str("addr", *consoleAddr).Msg("console:listen-failed")
	} else {
		consoleServer := &console.Server{
			Password: credentials.ConsolePassword(),
			Status:   simhostStatus{orchestrator: orchestrator, estimator: estimator, classifier: classifier, sched: sched, addr: *consoleAddr},
			Refresh:  func() bool { return true },
			Reboot:   func() { log.Warn().Msg("console:reboot-requested-ignored-in-simulation") },
			Log:      slog.Default(),
		}
		log.Info().Str("addr", *consoleAddr).Msg("console:listening")
		go consoleServer.Serve(ln)
		go func() {
			<-ctx.Done()
			ln.Close()
		}()
	}

	ticker := time.NewTicker(time.Duration(*tickMS) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		nowMS += *tickMS

		if code, ok := qr.ReadCode(); ok {
			trip, err := codec.DecodeTripQR([]byte(code))
			orchestrator.OnQRScanned(trip, err, nowMS)
		}

		ax, ay, az, _ := imu.Read()
		classifier.Update(ax, ay, az, nowMS)
		upright := classifier.Confirmed() == posture.Upright

		v, c, _ := gauge.Read()
		estimator.Update(v, c, nowMS)

		sensors := rental.Sensors{
			BatteryPercent:  estimator.Percent(),
			Posture:         rental.PostureUpright(upright),
			HelmetConnected: helmet.Connected(),
		}
		orchestrator.Tick(sensors, nowMS)
		led.Set(orchestrator.State() != rental.Idle)

		before := sched.Len()
		sched.Step()
		if sched.Len() < before {
			tasksCompleted.Inc()
		}
		driver.Tick(nowMS)
		if err := socket.MQTTLoop(); err != nil {
			log.Warn().Err(err).Msg("mqtt:loop")
		}

		queueDepth.Set(float64(sched.Len()))
		batterySOC.Set(float64(estimator.Percent()))
		rentalStateGauge.Set(float64(orchestrator.State()))
		telemetry.RecordGauge("battery_soc_percent", int64(estimator.Percent()))
	}
}

// simhostStatus adapts the simulation's orchestrator, battery estimator,
// posture classifier, and scheduler into the console.StatusProvider the
// debug console reports from.
type simhostStatus struct {
	orchestrator *rental.Orchestrator
	estimator    *battery.Estimator
	classifier   *posture.Classifier
	sched        *scheduler.Scheduler
	addr         string
}

func (s simhostStatus) RentalState() string  { return s.orchestrator.State().String() }
func (s simhostStatus) TripID() string       { return s.orchestrator.TripID() }
func (s simhostStatus) UsageState() string   { return s.orchestrator.UsageState().String() }
func (s simhostStatus) BatteryPercent() int  { return s.estimator.Percent() }
func (s simhostStatus) PostureState() string { return s.classifier.Confirmed().String() }
func (s simhostStatus) SchedulerDepth() int  { return s.sched.Len() }
func (s simhostStatus) NetAddr() string      { return s.addr }
