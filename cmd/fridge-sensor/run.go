package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/fridge-sensor/internal/config"
	"github.com/sweeney/fridge-sensor/internal/controller"
	"github.com/sweeney/fridge-sensor/internal/gpio"
	"github.com/sweeney/fridge-sensor/internal/logger"
	"github.com/sweeney/fridge-sensor/internal/logic"
	"github.com/sweeney/fridge-sensor/internal/mqtt"
	"github.com/sweeney/fridge-sensor/internal/probe"
	"github.com/sweeney/fridge-sensor/internal/report"
	"github.com/sweeney/fridge-sensor/internal/scale"
	"github.com/sweeney/fridge-sensor/internal/serial"
	"github.com/sweeney/fridge-sensor/internal/status"
	"github.com/sweeney/fridge-sensor/internal/store"
	"github.com/sweeney/fridge-sensor/internal/web"
)

func loadConfig(o options) (*config.Config, error) {
	cfg, err := config.Load(o.configPath, o.configPath != "")
	if err != nil {
		return nil, err
	}
	if o.serialPort != "" {
		cfg.Serial.Port = o.serialPort
	}
	if o.broker != "" {
		cfg.MQTT.Broker = o.broker
	}
	if o.httpAddr != "" {
		cfg.HTTP.Addr = o.httpAddr
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	return cfg, nil
}

func run(o options) error {
	cfg, err := loadConfig(o)
	if err != nil {
		return err
	}

	log, err := logger.FromString(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	clock := controller.NewSystemClock()
	capture := logic.NewInputCapture(cfg.Door.EdgeDebounce)

	board, err := gpio.NewRealBoard(cfg.Pins(), controller.EdgeHandlers(capture, clock))
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer board.Close()

	cell, err := scale.OpenHX711(cfg.GPIO.Chip, cfg.Scale.DTPin, cfg.Scale.SCKPin, cfg.Scale.CalibrationFactor)
	if err != nil {
		return fmt.Errorf("init load cell: %w", err)
	}
	defer cell.Close()

	thermo := probe.NewW1Probe(cfg.Probe.Dir, cfg.Probe.Device)
	kv := store.NewFile(cfg.Store.Path, cfg.Store.Namespace)

	if o.printState {
		return printState(os.Stdout, board, cell, thermo, kv, cfg.Weight.DoorSamples)
	}

	host, err := serial.Open(cfg.Serial.Port, cfg.Serial.Baud, log)
	if err != nil {
		return fmt.Errorf("init serial: %w", err)
	}
	defer host.Close()

	var (
		publisher  mqtt.Publisher
		mqttStatus mqtt.ConnectionStatus
		mirrors    []report.Mirror
	)
	if cfg.MQTT.Broker != "" {
		p, err := mqtt.NewRealPublisher(mqtt.Options{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			DeviceID: cfg.DeviceID,
		}, log)
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		defer p.Close()
		publisher, mqttStatus = p, p
		mirrors = append(mirrors, p)
	}

	tracker := status.NewTracker(time.Now(), status.Config{
		DeviceID:   cfg.DeviceID,
		PollMs:     cfg.Poll.Milliseconds(),
		SerialPort: cfg.Serial.Port,
		Broker:     cfg.MQTT.Broker,
		HTTPAddr:   cfg.HTTP.Addr,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	ctrl := controller.New(cfg.Controller(), controller.Deps{
		Log:     log,
		Clock:   clock,
		Wall:    controller.NewWallClock(nil),
		Capture: capture,
		Board:   board,
		Cell:    cell,
		Probe:   thermo,
		Store:   kv,
		Host:    host,
		Mirrors: mirrors,
	})

	startCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = ctrl.Startup(startCtx)
	stop()
	if err != nil {
		log.Infof("interrupted during startup: %v", err)
		return nil
	}
	tracker.Update(ctrl.State())

	if publisher != nil {
		snap := tracker.Snapshot()
		startup := mqtt.SystemEvent{
			Timestamp:  snap.Now,
			Event:      "STARTUP",
			Retained:   true,
			RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
		}
		if err := publisher.PublishSystem(startup); err != nil {
			log.Warnf("failed to publish startup event: %v", err)
		} else {
			log.Info("published startup event")
		}
	}

	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Infof("http status server listening on %s", cfg.HTTP.Addr)
	}

	log.Infof("started: device=%s serial=%s poll=%v broker=%q %s",
		cfg.DeviceID, cfg.Serial.Port, cfg.Poll, cfg.MQTT.Broker, ctrl.State())

	ticker := time.NewTicker(cfg.Poll)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	return runLoop(ctrl, tracker, publisher, mqttStatus, log, time.Now, ticker.C, sigCh)
}

func runLoop(ctrl *controller.Controller, tracker *status.Tracker, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, log *zap.SugaredLogger, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	reports := ctrl.State().Counts.StatusReport

	for {
		select {
		case s := <-sig:
			log.Infof("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			if publisher == nil {
				return nil
			}
			event := mqtt.SystemEvent{
				Timestamp: now(),
				Event:     "SHUTDOWN",
				Reason:    signalName,
				Retained:  true,
			}
			if tracker != nil {
				if mqttStatus != nil {
					tracker.SetMQTTConnected(mqttStatus.IsConnected())
				}
				snap := tracker.Snapshot()
				event.RawPayload = status.FormatStatusEvent(snap, "SHUTDOWN", signalName)
			}
			if err := publisher.PublishSystem(event); err != nil {
				log.Warnf("failed to publish shutdown event: %v", err)
			} else {
				log.Info("published shutdown event")
			}
			return nil

		case <-tick:
			ctrl.Step()

			if tracker == nil {
				continue
			}
			st := ctrl.State()
			tracker.Update(st)
			if mqttStatus != nil {
				tracker.SetMQTTConnected(mqttStatus.IsConnected())
			}
			// Refresh network info alongside each status report.
			if st.Counts.StatusReport != reports {
				reports = st.Counts.StatusReport
				if net := readNetworkInfo(); net != nil {
					tracker.SetNetwork(net)
				}
			}
		}
	}
}

// printState reads every sensor once using the saved tare offset.
func printState(w io.Writer, board gpio.Board, cell scale.Cell, thermo probe.Reader, kv store.Store, samples int) error {
	offset, err := kv.GetLong(store.KeyTareOffset, 0)
	if err != nil {
		return fmt.Errorf("load tare offset: %w", err)
	}
	cell.SetOffset(offset)

	open, err := board.DoorOpen()
	if err != nil {
		return fmt.Errorf("read door: %w", err)
	}
	grams, err := cell.ReadGrams(samples)
	if err != nil {
		return fmt.Errorf("read weight: %w", err)
	}
	celsius, err := thermo.ReadCelsius()
	disconnected := errors.Is(err, probe.ErrDisconnected)
	if err != nil && !disconnected {
		return fmt.Errorf("read temperature: %w", err)
	}

	fmt.Fprint(w, formatState(open, grams, celsius, disconnected))
	return nil
}

func formatState(open bool, grams, celsius float64, disconnected bool) string {
	door := "CLOSED"
	if open {
		door = "OPEN"
	}
	temp := fmt.Sprintf("%.2f C", celsius)
	if disconnected {
		temp = "disconnected"
	}
	return fmt.Sprintf("Door: %s, Weight: %.0f g, Temperature: %s\n", door, grams, temp)
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
