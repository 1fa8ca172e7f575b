package main

import (
	"log"
	"os"
	"syscall"
	"time"

	"github.com/sweeney/adaptive-light/internal/board"
	"github.com/sweeney/adaptive-light/internal/config"
	"github.com/sweeney/adaptive-light/internal/gpio"
	"github.com/sweeney/adaptive-light/internal/logic"
	"github.com/sweeney/adaptive-light/internal/metrics"
	"github.com/sweeney/adaptive-light/internal/mqtt"
	"github.com/sweeney/adaptive-light/internal/status"
)

// daemon holds the collaborators of the control loop. Optional fields may be nil.
type daemon struct {
	engine     *logic.Engine
	link       board.Link
	linkDone   <-chan struct{}                // optional: closed when the link read loop exits
	lastSample func() time.Time               // optional
	parseErrs  func() int                     // optional
	encoder    gpio.Encoder                   // optional
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus          // optional
	tracker    *status.Tracker                // optional
	metrics    *metrics.Metrics               // optional
	heartbeat  time.Duration
	reload     func() (*config.Config, error) // optional

	lastDuty    uint8
	dutySent    bool
	dutyFailing bool
	dutyErrors  uint64
}

// runLoop owns the engine. Every tick it drains encoder input, steps the
// engine, writes the duty cycle when it changes and publishes events.
// It returns on SIGINT or SIGTERM; SIGHUP reloads the config.
func runLoop(d *daemon, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	for {
		select {
		case s := <-sig:
			if s == syscall.SIGHUP {
				d.reloadConfig(now())
				continue
			}
			d.shutdown(now(), s)
			return nil

		case <-d.linkDone:
			d.linkDone = nil
			log.Printf("board: link closed, raising fault")
			d.handle(d.engine.SetFault(now(), true))

		case <-tick:
			d.step(now())
		}
	}
}

func (d *daemon) step(t time.Time) {
	if d.encoder != nil {
		d.drainEncoder()
	}

	d.handle(d.engine.Step(t, d.link))
	d.writeDuty()

	diag := d.engine.Diagnostics()
	if d.engine.LogDue(t) {
		log.Printf("summary: %s", diag.Summary())
	}

	if hb := d.engine.CheckHeartbeat(t, d.heartbeat); hb != nil {
		log.Printf("heartbeat: uptime=%v light_on=%d light_off=%d presence_lost=%d presence_restored=%d",
			hb.Uptime, hb.Counts.LightOn, hb.Counts.LightOff, hb.Counts.PresenceLost, hb.Counts.PresenceRestored)
		d.updateStatus(diag)
		if net := readNetworkInfo(); net != nil && d.tracker != nil {
			d.tracker.SetNetwork(net)
		}
		d.publishSystem(hb.Timestamp, "HEARTBEAT", "", false)
		return
	}

	d.updateStatus(diag)
}

func (d *daemon) drainEncoder() {
	events := d.encoder.Events()
	for {
		select {
		case ev := <-events:
			d.handle(d.engine.HandleEncoder(ev))
		default:
			return
		}
	}
}

// writeDuty sends the output when it changed or the last write failed.
func (d *daemon) writeDuty() {
	duty := d.engine.OutputPercent()
	if d.dutySent && duty == d.lastDuty {
		return
	}

	if err := d.link.SetDuty(duty); err != nil {
		d.dutySent = false
		d.dutyErrors++
		if d.metrics != nil {
			d.metrics.DutyErrors.Inc()
		}
		if !d.dutyFailing {
			log.Printf("board: set duty %d%%: %v", duty, err)
			d.dutyFailing = true
		}
		return
	}
	if d.dutyFailing {
		log.Printf("board: set duty recovered after %d errors", d.dutyErrors)
		d.dutyFailing = false
	}
	d.lastDuty = duty
	d.dutySent = true
}

// handle logs, counts and publishes engine events. Publish failures never
// stop the loop.
func (d *daemon) handle(events []logic.Event) {
	if len(events) == 0 {
		return
	}
	if d.metrics != nil {
		d.metrics.CountEvents(events)
	}
	for _, ev := range events {
		if ev.Type == logic.EventPresenceLost {
			log.Printf("event: %s reason=%s status=%s out=%d dist=%d", ev.Type, ev.Reason, ev.Status, ev.OutputPercent, ev.DistanceCm)
		} else {
			log.Printf("event: %s status=%s out=%d dist=%d", ev.Type, ev.Status, ev.OutputPercent, ev.DistanceCm)
		}
		if err := d.publisher.Publish(ev); err != nil {
			log.Printf("mqtt: publish error: %v", err)
		}
	}
}

func (d *daemon) updateStatus(diag logic.Diagnostics) {
	var dropped uint64
	if d.encoder != nil {
		dropped = d.encoder.Dropped()
	}
	var parseErrs uint64
	if d.parseErrs != nil {
		parseErrs = uint64(d.parseErrs())
	}
	connected := d.mqttStatus != nil && d.mqttStatus.IsConnected()

	if d.tracker != nil {
		var last time.Time
		if d.lastSample != nil {
			last = d.lastSample()
		}
		d.tracker.Update(diag, d.engine.EventCountsSnapshot())
		d.tracker.SetIO(last, d.dutyErrors, dropped, parseErrs)
		d.tracker.SetMQTTConnected(connected)
	}
	if d.metrics != nil {
		d.metrics.Observe(diag)
		d.metrics.EncoderDropped.Set(float64(dropped))
		d.metrics.ParseErrors.Set(float64(parseErrs))
		if connected {
			d.metrics.MQTTConnected.Set(1)
		} else {
			d.metrics.MQTTConnected.Set(0)
		}
	}
}

func (d *daemon) reloadConfig(t time.Time) {
	if d.reload == nil {
		return
	}
	cfg, err := d.reload()
	if err != nil {
		log.Printf("config: reload failed, keeping current settings: %v", err)
		return
	}

	d.engine.ApplyPolicy(cfg.Policy)
	if err := d.link.SetEchoTimeout(cfg.Policy.EchoTimeoutUs); err != nil {
		log.Printf("board: set echo timeout: %v", err)
	}
	d.heartbeat = cfg.MQTT.Heartbeat
	if d.tracker != nil {
		d.tracker.SetConfig(statusConfig(cfg))
	}
	log.Printf("config: reloaded (away=%t flat=%t away_timeout=%dms stale_timeout=%dms)",
		cfg.Policy.AwayModeEnabled, cfg.Policy.FlatModeEnabled, cfg.Policy.AwayTimeoutMs, cfg.Policy.StaleTimeoutMs)
	d.publishSystem(t, "RELOADED", "SIGHUP", false)
}

func (d *daemon) shutdown(t time.Time, s os.Signal) {
	log.Printf("received %v, shutting down", s)
	signalName := "UNKNOWN"
	if s == syscall.SIGINT {
		signalName = "SIGINT"
	} else if s == syscall.SIGTERM {
		signalName = "SIGTERM"
	}
	d.updateStatus(d.engine.Diagnostics())
	d.publishSystem(t, "SHUTDOWN", signalName, true)
}

// publishSystem sends a lifecycle event carrying a full status snapshot when
// a tracker is available.
func (d *daemon) publishSystem(t time.Time, event, reason string, retained bool) {
	se := mqtt.SystemEvent{
		Timestamp: t,
		Event:     event,
		Reason:    reason,
		Retained:  retained,
	}
	if d.tracker != nil {
		se.RawPayload = status.FormatStatusEvent(d.tracker.Snapshot(), event, reason)
	}
	if err := d.publisher.PublishSystem(se); err != nil {
		log.Printf("mqtt: publish %s event: %v", event, err)
	} else if event != "HEARTBEAT" {
		log.Printf("mqtt: published %s event", event)
	}
}
