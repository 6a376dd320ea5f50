// Command promexp exposes magnetometer readings as Prometheus metrics.
package main

import (
	"flag"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/merulogic/ak09916"
	"github.com/merulogic/ak09916/periphio"
)

func main() {
	busName := flag.String("bus", "1", "I2C bus name or number")
	listen := flag.String("listen", ":9101", "Prometheus exporter address")
	poll := flag.Duration("poll", 10*time.Millisecond, "data-ready poll interval")
	flag.Parse()

	if _, err := host.Init(); err != nil {
		log.Fatalln("periph host init:", err)
	}
	bus, err := i2creg.Open(*busName)
	if err != nil {
		log.Fatalf("open I2C bus %s: %v", *busName, err)
	}
	defer bus.Close()

	dev := ak09916.New(periphio.Wrap(bus), ak09916.Config{})
	if err := dev.SwitchMode(ak09916.ModeContinuous10Hz); err != nil {
		log.Fatalln("switch mode:", err)
	}

	field := promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "sensors",
		Subsystem: "ak09916",
		Name:      "field_microtesla",
	}, []string{"axis"})
	overflows := promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sensors",
		Subsystem: "ak09916",
		Name:      "overflows_total",
	})
	overruns := promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sensors",
		Subsystem: "ak09916",
		Name:      "overruns_total",
	})

	go func() {
		for {
			m, err := dev.PollMeasurement(*poll)
			if err != nil {
				log.Println("read error:", err)
				time.Sleep(time.Second)
				continue
			}
			if m.Overflow {
				overflows.Inc()
				continue // saturated counts are not useful as gauges
			}
			if m.Overrun {
				overruns.Inc()
			}
			field.WithLabelValues("x").Set(m.XMicroteslas())
			field.WithLabelValues("y").Set(m.YMicroteslas())
			field.WithLabelValues("z").Set(m.ZMicroteslas())
		}
	}()

	http.Handle("/metrics", promhttp.Handler())
	log.Println("listening on", *listen)
	log.Fatalln(http.ListenAndServe(*listen, nil))
}
